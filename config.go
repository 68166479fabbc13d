package certify

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"github.com/flanksource/certify/background"
	"github.com/flanksource/certify/cache"
	"github.com/flanksource/certify/fonts"
	"github.com/flanksource/certify/rasterizer"
	"gopkg.in/yaml.v3"
)

// FontsConfig controls where the embeddable font is looked up.
type FontsConfig struct {
	Roots  []string `yaml:"roots,omitempty" json:"roots,omitempty"`
	File   string   `yaml:"file,omitempty" json:"file,omitempty"`
	Family string   `yaml:"family,omitempty" json:"family,omitempty"`
}

// RasterizerConfig selects the primary rasterizers, in order. "none" renders
// through the raster fallback only.
type RasterizerConfig struct {
	Order              []string `yaml:"order,omitempty" json:"order,omitempty"`
	rasterizer.Options `yaml:",inline" json:",inline"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr            string        `yaml:"addr,omitempty" json:"addr,omitempty"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout,omitempty" json:"shutdownTimeout,omitempty"`
}

// Config is the service configuration, read from YAML and overridden by flags and env.
type Config struct {
	Database string `yaml:"database,omitempty" json:"database,omitempty"`
	// BackgroundDir serves object-store backgrounds from a directory when Appwrite is not configured
	BackgroundDir string                    `yaml:"backgroundDir,omitempty" json:"backgroundDir,omitempty"`
	Appwrite      background.AppwriteConfig `yaml:"appwrite,omitempty" json:"appwrite,omitempty"`
	Fonts         FontsConfig               `yaml:"fonts,omitempty" json:"fonts,omitempty"`
	Rasterizers   RasterizerConfig          `yaml:"rasterizers,omitempty" json:"rasterizers,omitempty"`
	Cache         cache.Config              `yaml:"cache,omitempty" json:"cache,omitempty"`
	Server        ServerConfig              `yaml:"server,omitempty" json:"server,omitempty"`
	// Concurrency bounds parallel renders of the batch command
	Concurrency int `yaml:"concurrency,omitempty" json:"concurrency,omitempty"`
}

// DefaultConfig is used for anything a config file leaves unset.
func DefaultConfig() Config {
	return Config{
		Database: "certify.db",
		Fonts: FontsConfig{
			File:   fonts.DefaultFileName,
			Family: fonts.DefaultFamily,
		},
		Rasterizers: RasterizerConfig{
			Options: rasterizer.Options{Timeout: 30 * time.Second},
		},
		Cache: cache.Config{Type: "memory", TTL: cache.DefaultTTL},
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: 10 * time.Second,
		},
		Concurrency: 4,
	}
}

// LoadConfig reads a YAML config on top of DefaultConfig, then applies the environment.
// An empty path only applies defaults and environment.
func LoadConfig(path string) (Config, error) {
	config := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return config, fmt.Errorf("failed to read config: %w", err)
		}
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&config); err != nil {
			return config, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}
	config.ApplyEnv()
	return config, nil
}

// ApplyEnv fills secrets and endpoints from the environment when the file left them empty.
func (c *Config) ApplyEnv() {
	c.Appwrite = c.Appwrite.Merge(background.AppwriteConfigFromEnv())
	if addr := os.Getenv("REDIS_ADDR"); addr != "" && c.Cache.Addr == "" {
		c.Cache.Addr = addr
	}
	if pw := os.Getenv("REDIS_PASSWORD"); pw != "" {
		c.Cache.Password = pw
	}
	if db := os.Getenv("CERTIFY_DATABASE"); db != "" {
		c.Database = db
	}
}

func (c Config) String() string {
	if c.Appwrite.APIKey != "" {
		c.Appwrite.APIKey = "****"
	}
	data, _ := yaml.Marshal(c)
	return string(data)
}
