package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/slok/lendr/internal/httpclient"
	"github.com/slok/lendr/internal/log"
	"github.com/slok/lendr/internal/model"
)

// RegistrySourceConfig is the configuration of the remote library registry source.
type RegistrySourceConfig struct {
	URI        string
	HTTPClient httpclient.Client
	Logger     log.Logger
}

func (c *RegistrySourceConfig) defaults() error {
	if err := ValidateURI(c.URI); err != nil {
		return err
	}
	if c.HTTPClient == nil {
		return fmt.Errorf("http client is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "provider.RegistrySource", "uri": c.URI})
	return nil
}

// RegistrySource loads the library catalog published by a library registry
// server (an OPDS 2 catalogs feed).
type RegistrySource struct {
	uri    string
	client httpclient.Client
	logger log.Logger
}

// NewRegistrySource returns a new remote registry source.
func NewRegistrySource(cfg RegistrySourceConfig) (*RegistrySource, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &RegistrySource{uri: cfg.URI, client: cfg.HTTPClient, logger: cfg.Logger}, nil
}

func (s *RegistrySource) Name() string { return "registry:" + s.uri }

type registryFeed struct {
	Catalogs []struct {
		Metadata struct {
			ID           string    `json:"id"`
			Title        string    `json:"title"`
			Updated      time.Time `json:"updated"`
			IsAutomatic  bool      `json:"isAutomatic"`
			IsProduction *bool     `json:"isProduction"`
		} `json:"metadata"`
		Links  []model.Link `json:"links"`
		Images []model.Link `json:"images"`
	} `json:"catalogs"`
}

// Load fetches the catalog, invalid entries are skipped.
func (s *RegistrySource) Load(ctx context.Context) (map[string]model.AccountProviderDescription, error) {
	result := httpclient.Get(ctx, s.client, s.uri, nil)
	ok, isOK := result.(httpclient.OK)
	if !isOK {
		return nil, fmt.Errorf("could not fetch registry: %w", httpclient.TaskErrorOf("registry request failed", result))
	}
	data, err := httpclient.ReadBody(ok)
	if err != nil {
		return nil, err
	}

	var feed registryFeed
	if err := json.Unmarshal(data, &feed); err != nil {
		return nil, fmt.Errorf("could not parse registry: %w", err)
	}

	res := make(map[string]model.AccountProviderDescription, len(feed.Catalogs))
	for _, c := range feed.Catalogs {
		d := model.AccountProviderDescription{
			ID:           c.Metadata.ID,
			Title:        c.Metadata.Title,
			Updated:      c.Metadata.Updated.UTC(),
			Links:        c.Links,
			Images:       c.Images,
			IsAutomatic:  c.Metadata.IsAutomatic,
			IsProduction: c.Metadata.IsProduction == nil || *c.Metadata.IsProduction,
		}
		if err := ValidateDescription(d); err != nil {
			s.logger.Warningf("Skipping registry entry: %s", err)
			continue
		}
		res[d.ID] = d
	}

	s.logger.Debugf("Loaded %d providers", len(res))
	return res, nil
}
