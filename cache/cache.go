// Package cache stores rendered certificate documents between requests.
package cache

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Cache is a byte store with per entry expiry. A miss is (nil, false, nil).
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Config selects and configures a cache backend.
type Config struct {
	// Type is one of memory, redis or none
	Type     string        `yaml:"type,omitempty" json:"type,omitempty"`
	Addr     string        `yaml:"addr,omitempty" json:"addr,omitempty"`
	Password string        `yaml:"-" json:"-"`
	DB       int           `yaml:"db,omitempty" json:"db,omitempty"`
	Prefix   string        `yaml:"prefix,omitempty" json:"prefix,omitempty"`
	TTL      time.Duration `yaml:"ttl,omitempty" json:"ttl,omitempty"`
}

// DefaultTTL matches the max-age the HTTP layer sends for rendered documents.
const DefaultTTL = 24 * time.Hour

// New builds the backend named by config.Type. An empty type is an in-memory cache.
func New(config Config) (Cache, error) {
	switch strings.ToLower(config.Type) {
	case "", "memory":
		return NewMemory(), nil
	case "redis":
		return NewRedis(config)
	case "none", "null":
		return Null{}, nil
	default:
		return nil, fmt.Errorf("unknown cache type %q", config.Type)
	}
}

// Key joins the parts that identify a rendered document.
func Key(parts ...string) string {
	return strings.Join(parts, ":")
}

// Null never stores anything.
type Null struct{}

func (Null) Get(context.Context, string) ([]byte, bool, error)        { return nil, false, nil }
func (Null) Set(context.Context, string, []byte, time.Duration) error { return nil }
func (Null) Delete(context.Context, string) error                     { return nil }
func (Null) Close() error                                             { return nil }
