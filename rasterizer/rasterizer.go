// Package rasterizer turns an assembled SVG document into PNG bytes using external
// vector renderers (rsvg-convert, Inkscape, Chromium through Playwright).
package rasterizer

import (
	"context"
	"fmt"
	"time"
)

// Rasterizer renders an SVG document to PNG.
type Rasterizer interface {
	// Name returns the name of the rasterizer
	Name() string

	// IsAvailable checks if the rasterizer can run on this system
	IsAvailable() bool

	// Rasterize renders req.SVG at its original size
	Rasterize(ctx context.Context, req Request) ([]byte, error)
}

// Request is a single document to rasterize.
type Request struct {
	SVG []byte

	// Canvas size in pixels, the output must match it exactly
	Width  int
	Height int

	// Font files the renderer must use instead of discovering system fonts
	FontFiles []string

	// @font-face rule for renderers that understand CSS fonts
	FontCSS string
}

// Options configures the rasterizers built by name.
type Options struct {
	// Timeout bounds a single external process run (0 = no limit)
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// InstallBrowsers lets the Playwright rasterizer download Chromium on first use
	InstallBrowsers bool `json:"installBrowsers,omitempty" yaml:"installBrowsers,omitempty"`
}

// Type names a rasterizer implementation.
type Type string

const (
	TypeRSVG       Type = "rsvg"
	TypeInkscape   Type = "inkscape"
	TypePlaywright Type = "playwright"
)

// DefaultOrder is tried when no explicit order is configured.
var DefaultOrder = []Type{TypeRSVG, TypeInkscape}

// New builds a rasterizer by type name.
func New(t Type, opts Options) (Rasterizer, error) {
	switch t {
	case TypeRSVG, "rsvg-convert":
		return NewRSVG(opts), nil
	case TypeInkscape:
		return NewInkscape(opts), nil
	case TypePlaywright:
		return NewPlaywright(opts), nil
	default:
		return nil, fmt.Errorf("unknown rasterizer %q", t)
	}
}

// Error represents a failure of one rasterizer
type Error struct {
	Rasterizer string
	Operation  string
	Err        error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s rasterizer %s failed: %v", e.Rasterizer, e.Operation, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new rasterizer error
func NewError(rasterizer, operation string, err error) error {
	return &Error{
		Rasterizer: rasterizer,
		Operation:  operation,
		Err:        err,
	}
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
