package lendr

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/slok/lendr/test/integration/testutils"
)

// Config holds integration test configuration loaded from environment variables.
type Config struct {
	Binary string
}

func (c *Config) defaults() error {
	if c.Binary == "" {
		c.Binary = "lendr"
	}

	// go test changes the CWD to the package directory.
	if !filepath.IsAbs(c.Binary) {
		return fmt.Errorf("LENDR_INTEGRATION_BINARY must be an absolute path, got %q", c.Binary)
	}
	if _, err := os.Stat(c.Binary); err != nil {
		return fmt.Errorf("lendr binary not found at %q: %w", c.Binary, err)
	}

	return nil
}

// NewConfig loads integration test configuration from environment variables.
// If the config is invalid or the activation env var is not set, the test is skipped.
func NewConfig(t *testing.T) Config {
	t.Helper()

	const (
		envActivation = "LENDR_INTEGRATION"
		envBinary     = "LENDR_INTEGRATION_BINARY"
	)

	if os.Getenv(envActivation) != "true" {
		t.Skipf("Skipping integration test: %s is not set to 'true'", envActivation)
	}

	c := Config{
		Binary: os.Getenv(envBinary),
	}

	if err := c.defaults(); err != nil {
		t.Skipf("Skipping due to invalid config: %s", err)
	}

	return c
}

// Env is an isolated lendr data directory with a local library registry.
type Env struct {
	Config   Config
	DataDir  string
	Registry *httptest.Server
}

// NewEnv returns a new data directory with providersYAML as the local
// providers file. The library registry always answers not found, only the
// local providers are available.
func NewEnv(t *testing.T, config Config, providersYAML string) *Env {
	t.Helper()

	registry := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(registry.Close)

	dir := t.TempDir()
	if providersYAML != "" {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "providers.yaml"), []byte(providersYAML), 0o644))
	}

	return &Env{Config: config, DataDir: dir, Registry: registry}
}

// Run runs a lendr command on the environment data directory.
func (e *Env) Run(ctx context.Context, cmdArgs string) (stdout, stderr []byte, err error) {
	args := fmt.Sprintf("--no-log --data-dir %s --registry-uri %s %s", e.DataDir, e.Registry.URL, cmdArgs)
	return testutils.RunLendr(ctx, nil, e.Config.Binary, args, true)
}

// RunArgs runs a lendr command with arguments that may contain spaces.
func (e *Env) RunArgs(ctx context.Context, args ...string) (stdout, stderr []byte, err error) {
	all := append([]string{"--no-log", "--data-dir", e.DataDir, "--registry-uri", e.Registry.URL}, args...)
	return testutils.RunLendrArgs(ctx, nil, e.Config.Binary, all, true)
}
