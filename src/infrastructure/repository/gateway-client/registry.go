package gateway_client

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v2"
)

// InstanceConfig holds the credentials of one gateway instance (a connected
// WhatsApp session).
type InstanceConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url,omitempty"`
}

// InstanceRegistry maps instance ids to their credentials
type InstanceRegistry struct {
	Instances map[string]InstanceConfig `yaml:"instances"`
}

// LoadInstanceRegistry reads the registry file. A missing file yields an empty
// registry so that gateways without per-instance keys keep working.
func LoadInstanceRegistry(path string) (*InstanceRegistry, error) {
	registry := &InstanceRegistry{Instances: map[string]InstanceConfig{}}
	if path == "" {
		return registry, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return registry, nil
		}
		return nil, fmt.Errorf("couldn't read gateway instances file: %w", err)
	}
	if err := yaml.Unmarshal(raw, registry); err != nil {
		return nil, fmt.Errorf("couldn't parse gateway instances file: %w", err)
	}
	if registry.Instances == nil {
		registry.Instances = map[string]InstanceConfig{}
	}
	return registry, nil
}

func (r *InstanceRegistry) Lookup(instanceID string) InstanceConfig {
	if r == nil {
		return InstanceConfig{}
	}
	return r.Instances[instanceID]
}
