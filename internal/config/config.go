package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config models assetline.yml.
type Config struct {
	Server struct {
		Addr     string `yaml:"addr"`
		BasePath string `yaml:"base_path"`
	} `yaml:"server"`
	Auth struct {
		// AllowDevHeader accepts X-User-Id as the caller identity. Local use only.
		AllowDevHeader bool `yaml:"allow_dev_header"`
	} `yaml:"auth"`
	Log struct {
		Mode        string `yaml:"mode"`
		HashUserIDs bool   `yaml:"hash_user_ids"`
	} `yaml:"log"`
	Lineage struct {
		MaxTraversalDepth int `yaml:"max_traversal_depth"`
		RelationshipTypes map[string]struct {
			Description string `yaml:"description"`
		} `yaml:"relationship_types"`
	} `yaml:"lineage"`
	Workflows struct {
		DefaultPriority int `yaml:"default_priority"`
	} `yaml:"workflows"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with al config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the default config if the file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("config.server.addr is required")
	}
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("config.server.base_path must start with /")
	}
	switch strings.ToLower(c.Log.Mode) {
	case "", "dev", "development", "prod", "production":
	default:
		return fmt.Errorf("config.log.mode must be dev or prod")
	}
	if c.Lineage.MaxTraversalDepth < 0 {
		return fmt.Errorf("config.lineage.max_traversal_depth must not be negative")
	}
	if len(c.Lineage.RelationshipTypes) == 0 {
		return fmt.Errorf("config.lineage.relationship_types is required")
	}
	for name := range c.Lineage.RelationshipTypes {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("config.lineage.relationship_types contains an empty type")
		}
	}
	return nil
}

// RelationshipTypes returns the accepted relationship types, sorted.
func (c *Config) RelationshipTypes() []string {
	types := make([]string, 0, len(c.Lineage.RelationshipTypes))
	for name := range c.Lineage.RelationshipTypes {
		types = append(types, name)
	}
	sort.Strings(types)
	return types
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "assetline.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	if err := yaml.Unmarshal([]byte(defaultTemplate), &cfg); err != nil {
		panic(fmt.Sprintf("default config template: %v", err))
	}
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Missing
// sections fall back to the defaults.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	cfg.Lineage.RelationshipTypes = nil
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if len(cfg.Lineage.RelationshipTypes) == 0 {
		cfg.Lineage.RelationshipTypes = Default().Lineage.RelationshipTypes
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `server:
  addr: 127.0.0.1:8080
  base_path: /v1

auth:
  allow_dev_header: false

log:
  mode: dev
  hash_user_ids: false

lineage:
  max_traversal_depth: 64
  relationship_types:
    derived_from:
      description: "Child was generated from the parent"
    variant_of:
      description: "Child is an alternative take on the parent"
    component_of:
      description: "Parent is a part used to compose the child"

workflows:
  default_priority: 0
`
