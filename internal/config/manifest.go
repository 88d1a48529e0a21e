package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// FeedSource names where the feed tables come from: a zipped archive URL
// or a local directory of .txt tables. Exactly one must be set.
type FeedSource struct {
	URL string `yaml:"url" validate:"omitempty,url"`
	Dir string `yaml:"dir"`
}

// ServiceEndpoint is an optional external geometry service.
type ServiceEndpoint struct {
	BaseURL string `yaml:"baseURL" validate:"omitempty,url"`
}

// Manifest is the feeds.yml file describing the data sources. The service
// is fully usable with only a local feed directory and everything else
// left empty.
type Manifest struct {
	Feed FeedSource `yaml:"feed" validate:"required"`

	// Sidecar is the optional route name → relation id mapping file.
	Sidecar string `yaml:"sidecar"`

	Relations ServiceEndpoint `yaml:"relations"`
	Router    ServiceEndpoint `yaml:"router"`
}

// LoadManifest reads and validates the manifest file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}

	v := validator.New()
	if err := v.Struct(&m); err != nil {
		return nil, fmt.Errorf("validate manifest: %w", err)
	}

	if (m.Feed.URL == "") == (m.Feed.Dir == "") {
		return nil, fmt.Errorf("manifest feed needs exactly one of url or dir")
	}

	return &m, nil
}
