package provider

import (
	"context"
	"fmt"
	"io/fs"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/slok/lendr/internal/model"
)

// YAMLSource loads provider descriptions from a YAML file.
type YAMLSource struct {
	fs   fs.FS
	path string
}

// NewYAMLSource returns a source reading path from the filesystem.
func NewYAMLSource(filesystem fs.FS, path string) *YAMLSource {
	return &YAMLSource{fs: filesystem, path: path}
}

func (s *YAMLSource) Name() string { return "yaml:" + s.path }

// Load reads and validates every provider of the file.
func (s *YAMLSource) Load(ctx context.Context) (map[string]model.AccountProviderDescription, error) {
	data, err := fs.ReadFile(s.fs, s.path)
	if err != nil {
		return nil, fmt.Errorf("reading providers file: %w", err)
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var f ProvidersFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}

	res := make(map[string]model.AccountProviderDescription, len(f.Providers))
	for i, p := range f.Providers {
		d := p.toModel()
		if err := ValidateDescription(d); err != nil {
			return nil, fmt.Errorf("provider %d: %w", i, err)
		}
		if _, ok := res[d.ID]; ok {
			return nil, fmt.Errorf("provider %d: duplicated id %q", i, d.ID)
		}
		res[d.ID] = d
	}

	return res, nil
}

// ProvidersFile represents the YAML structure of a providers file.
type ProvidersFile struct {
	Providers []ProviderYAML `yaml:"providers"`
}

// ProviderYAML represents the YAML structure of a provider description.
type ProviderYAML struct {
	ID                     string    `yaml:"id"`
	Title                  string    `yaml:"title"`
	Updated                time.Time `yaml:"updated"`
	AuthenticationDocument string    `yaml:"authentication_document"`
	Catalog                string    `yaml:"catalog"`
	Logo                   string    `yaml:"logo"`
	Automatic              bool      `yaml:"automatic"`
	// Testing providers are only loaded when testing libraries are shown.
	Testing bool `yaml:"testing"`
}

func (p ProviderYAML) toModel() model.AccountProviderDescription {
	d := model.AccountProviderDescription{
		ID:           p.ID,
		Title:        p.Title,
		Updated:      p.Updated.UTC(),
		IsAutomatic:  p.Automatic,
		IsProduction: !p.Testing,
	}
	if p.AuthenticationDocument != "" {
		d.Links = append(d.Links, model.Link{
			Href:     p.AuthenticationDocument,
			Relation: model.RelAuthenticationDocument,
			Type:     model.TypeAuthenticationDocument,
		})
	}
	if p.Catalog != "" {
		d.Links = append(d.Links, model.Link{
			Href:     p.Catalog,
			Relation: model.RelCatalog,
			Type:     model.TypeOPDSCatalog,
		})
	}
	if p.Logo != "" {
		d.Images = append(d.Images, model.Link{Href: p.Logo, Relation: model.RelLogo})
	}
	return d
}
