// Package config loads integration settings from YAML files.
package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/goliatone/go-integrations/core"
	"gopkg.in/yaml.v3"
)

// FileLoader reads a YAML document as raw config for core.CfgxConfigProvider.
// When Section is set only that top-level key is returned, so one file can
// carry both service settings and provider credentials.
type FileLoader struct {
	Path    string
	Section string
	// ExpandEnv substitutes ${VAR} references before parsing.
	ExpandEnv bool
}

func NewFileLoader(path string) *FileLoader {
	return &FileLoader{Path: path, Section: "integrations", ExpandEnv: true}
}

func (l *FileLoader) LoadRaw(ctx context.Context) (map[string]any, error) {
	if l == nil || strings.TrimSpace(l.Path) == "" {
		return map[string]any{}, nil
	}
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
	doc, err := readDocument(l.Path, l.ExpandEnv)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(l.Section) == "" {
		return doc, nil
	}
	section, ok := doc[l.Section]
	if !ok || section == nil {
		return map[string]any{}, nil
	}
	typed, ok := section.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("config: section %q in %s is not a mapping", l.Section, l.Path)
	}
	return typed, nil
}

// ProviderCredentials are the per-provider OAuth client settings.
type ProviderCredentials struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	TokenURL     string `yaml:"token_url"`
	APIBaseURL   string `yaml:"api_base_url"`
	Disabled     bool   `yaml:"disabled"`
}

type providersDocument struct {
	Providers map[string]ProviderCredentials `yaml:"providers"`
}

// LoadProviderCredentials reads the top-level providers mapping keyed by
// provider identifier.
func LoadProviderCredentials(path string) (map[string]ProviderCredentials, error) {
	data, err := readFile(path, true)
	if err != nil {
		return nil, err
	}
	var doc providersDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	out := make(map[string]ProviderCredentials, len(doc.Providers))
	for id, creds := range doc.Providers {
		id = strings.TrimSpace(strings.ToLower(id))
		if id == "" || creds.Disabled {
			continue
		}
		out[id] = creds
	}
	return out, nil
}

func readDocument(path string, expand bool) (map[string]any, error) {
	data, err := readFile(path, expand)
	if err != nil {
		return nil, err
	}
	doc := map[string]any{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return doc, nil
}

func readFile(path string, expand bool) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if expand {
		data = []byte(os.ExpandEnv(string(data)))
	}
	return data, nil
}

var _ core.RawConfigLoader = (*FileLoader)(nil)
