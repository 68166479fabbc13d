package rasterizer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/flanksource/commons/logger"
	"github.com/samber/lo"
)

// ErrNoRasterizer is returned when no configured rasterizer is available.
var ErrNoRasterizer = errors.New("no rasterizer available")

// Chain tries rasterizers in order until one succeeds.
type Chain struct {
	rasterizers []Rasterizer
	preferred   string
	mu          sync.RWMutex
	log         logger.Logger
}

// NewChain creates a chain of the given rasterizers, in priority order.
func NewChain(rasterizers ...Rasterizer) *Chain {
	return &Chain{
		rasterizers: lo.Filter(rasterizers, func(r Rasterizer, _ int) bool { return r != nil }),
		log:         logger.GetLogger("rasterizer"),
	}
}

// NewChainFromTypes builds a chain by name, an empty list uses DefaultOrder.
func NewChainFromTypes(types []Type, opts Options) (*Chain, error) {
	if len(types) == 0 {
		types = DefaultOrder
	}
	var rasterizers []Rasterizer
	for _, t := range lo.Uniq(types) {
		r, err := New(t, opts)
		if err != nil {
			return nil, err
		}
		rasterizers = append(rasterizers, r)
	}
	return NewChain(rasterizers...), nil
}

// Name lists the rasterizers of the chain.
func (c *Chain) Name() string {
	return fmt.Sprintf("chain%v", c.Names())
}

// IsAvailable is true when at least one rasterizer is available.
func (c *Chain) IsAvailable() bool {
	return len(c.Available()) > 0
}

// Names returns every configured rasterizer name, available or not.
func (c *Chain) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return lo.Map(c.rasterizers, func(r Rasterizer, _ int) string { return r.Name() })
}

// Available returns the names of the rasterizers that can run on this system.
func (c *Chain) Available() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return lo.FilterMap(c.rasterizers, func(r Rasterizer, _ int) (string, bool) {
		return r.Name(), r.IsAvailable()
	})
}

// SetPreferred moves the named rasterizer to the front of the chain.
func (c *Chain) SetPreferred(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !lo.ContainsBy(c.rasterizers, func(r Rasterizer) bool { return r.Name() == name }) {
		return fmt.Errorf("rasterizer '%s' not configured", name)
	}
	c.preferred = name
	return nil
}

// ordered returns the rasterizers with the preferred one first.
func (c *Chain) ordered() []Rasterizer {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Rasterizer, 0, len(c.rasterizers))
	for _, r := range c.rasterizers {
		if r.Name() == c.preferred {
			out = append([]Rasterizer{r}, out...)
		} else {
			out = append(out, r)
		}
	}
	return out
}

// Rasterize attempts each available rasterizer in order and returns the first
// output with the name of the rasterizer that produced it.
func (c *Chain) Rasterize(ctx context.Context, req Request) ([]byte, error) {
	png, _, err := c.RasterizeWithName(ctx, req)
	return png, err
}

// RasterizeWithName is Rasterize that also reports which rasterizer succeeded.
func (c *Chain) RasterizeWithName(ctx context.Context, req Request) ([]byte, string, error) {
	var lastErr error
	tried := 0

	for _, r := range c.ordered() {
		if !r.IsAvailable() {
			continue
		}
		tried++
		png, err := r.Rasterize(ctx, req)
		if err == nil {
			return png, r.Name(), nil
		}
		c.log.Debugf("%s failed: %v", r.Name(), err)
		lastErr = fmt.Errorf("%s: %w", r.Name(), err)
		if ctx.Err() != nil {
			break
		}
	}

	if tried == 0 {
		return nil, "", fmt.Errorf("%w (configured: %v)", ErrNoRasterizer, c.Names())
	}
	return nil, "", fmt.Errorf("all rasterizers failed, last error: %w", lastErr)
}

// Close closes any rasterizers that hold resources (like Playwright)
func (c *Chain) Close() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var errs []error
	for _, r := range c.rasterizers {
		if closer, ok := r.(interface{ Close() error }); ok {
			if err := closer.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
