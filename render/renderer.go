// Package render composites certificate images: background and text overlay are
// assembled into one SVG document and rasterized, with an in-process raster
// fallback when no vector rasterizer succeeds.
package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/png"
	"io"
	"time"

	"github.com/flanksource/certify/api"
	"github.com/flanksource/certify/fonts"
	"github.com/flanksource/certify/overlay"
	"github.com/flanksource/certify/rasterizer"
	"github.com/flanksource/commons/logger"
)

// Strategy tags which path produced a render.
type Strategy string

const (
	StrategyPrimary  Strategy = "primary"
	StrategyFallback Strategy = "fallback"
)

// Result is a rendered certificate image.
type Result struct {
	PNG        []byte        `json:"-"`
	Width      int           `json:"width"`
	Height     int           `json:"height"`
	Strategy   Strategy      `json:"strategy"`
	Rasterizer string        `json:"rasterizer,omitempty"`
	Warnings   []api.Warning `json:"warnings,omitempty"`
	Duration   time.Duration `json:"duration"`
}

// Degraded is true when the raster fallback produced the image.
func (r *Result) Degraded() bool {
	return r.Strategy == StrategyFallback
}

// HasWarning reports whether a warning of kind was raised.
func (r *Result) HasWarning(kind api.WarningKind) bool {
	for _, w := range r.Warnings {
		if w.Kind == kind {
			return true
		}
	}
	return false
}

// FontResolver supplies the embeddable font, see fonts.Resolver.
type FontResolver interface {
	Resolve(ctx context.Context) (*fonts.FontAsset, bool)
}

// BackgroundLoader supplies background bytes, see background.Loader.
type BackgroundLoader interface {
	Load(ctx context.Context, ref api.BackgroundRef) ([]byte, error)
}

// Renderer renders certificate PNGs. It holds no per-call state and is safe for concurrent use.
type Renderer struct {
	Fonts       FontResolver
	Backgrounds BackgroundLoader
	// Primary is the vector rasterizer, nil renders straight through the fallback
	Primary  rasterizer.Rasterizer
	Fallback *Compositor

	log logger.Logger
}

// New creates a renderer.
func New(fontResolver FontResolver, backgrounds BackgroundLoader, primary rasterizer.Rasterizer) *Renderer {
	return &Renderer{
		Fonts:       fontResolver,
		Backgrounds: backgrounds,
		Primary:     primary,
		Fallback:    NewCompositor(),
		log:         logger.GetLogger("render"),
	}
}

// Close releases the primary rasterizer, like a running Playwright browser. It is safe
// to call more than once.
func (r *Renderer) Close() error {
	if closer, ok := r.Primary.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// RenderPNG renders the template with the payload. Only an unavailable background
// is fatal (*api.TemplateAssetError); a missing font or a failing primary
// rasterizer are reported as warnings on the result.
func (r *Renderer) RenderPNG(ctx context.Context, tpl api.TemplateDescriptor, payload api.Payload) (*Result, error) {
	start := time.Now()
	if r.log == nil {
		r.log = logger.GetLogger("render")
	}
	if tpl.Width <= 0 || tpl.Height <= 0 {
		return nil, &api.TemplateAssetError{TemplateID: tpl.ID, Ref: tpl.Background,
			Err: fmt.Errorf("invalid canvas size %dx%d", tpl.Width, tpl.Height)}
	}

	result := &Result{Width: tpl.Width, Height: tpl.Height}

	var asset *fonts.FontAsset
	if r.Fonts != nil {
		asset, _ = r.Fonts.Resolve(ctx)
	}
	if asset == nil {
		result.Warnings = append(result.Warnings, api.Warning{
			Kind:    api.WarningFontAssetMissing,
			Message: fmt.Sprintf("%s: no embeddable font, rendering with %s", tpl, fonts.FamilyList(nil)),
		})
	}

	fields := tpl.Resolve(payload)

	bg, err := r.loadBackground(ctx, tpl)
	if err != nil {
		return nil, err
	}

	doc := Document(tpl.Width, tpl.Height, bg, fields, asset)

	out, name, err := r.primary(ctx, tpl, doc, asset)
	if err == nil {
		result.PNG, result.Strategy, result.Rasterizer = out, StrategyPrimary, name
		result.Duration = time.Since(start)
		r.log.Debugf("rendered %s with %s in %s", tpl, name, result.Duration)
		return result, nil
	}

	r.log.Warnf("RenderDegraded: %s: primary rasterizer failed, using raster fallback: %v", tpl, err)
	result.Warnings = append(result.Warnings, api.Warning{
		Kind:    api.WarningRenderDegraded,
		Message: fmt.Sprintf("%s: %v", tpl, err),
	})

	fallback := r.Fallback
	if fallback == nil {
		fallback = NewCompositor()
	}
	out, err = fallback.Composite(ctx, bg, overlay.Build(tpl.Width, tpl.Height, fields, asset), tpl.Width, tpl.Height, asset)
	if err != nil {
		var assetErr *api.TemplateAssetError
		if errors.As(err, &assetErr) {
			assetErr.TemplateID, assetErr.Ref = tpl.ID, tpl.Background
		}
		return nil, err
	}

	result.PNG, result.Strategy = out, StrategyFallback
	result.Duration = time.Since(start)
	return result, nil
}

func (r *Renderer) loadBackground(ctx context.Context, tpl api.TemplateDescriptor) ([]byte, error) {
	if r.Backgrounds == nil {
		return nil, &api.TemplateAssetError{TemplateID: tpl.ID, Ref: tpl.Background, Err: fmt.Errorf("no background loader")}
	}
	bg, err := r.Backgrounds.Load(ctx, tpl.Background)
	if err != nil {
		var assetErr *api.TemplateAssetError
		if errors.As(err, &assetErr) {
			assetErr.TemplateID = tpl.ID
			return nil, err
		}
		return nil, &api.TemplateAssetError{TemplateID: tpl.ID, Ref: tpl.Background, Err: err}
	}
	return bg, nil
}

type namedRasterizer interface {
	RasterizeWithName(ctx context.Context, req rasterizer.Request) ([]byte, string, error)
}

// primary runs the vector rasterizer and checks it produced a PNG of the canvas size.
func (r *Renderer) primary(ctx context.Context, tpl api.TemplateDescriptor, doc []byte, asset *fonts.FontAsset) ([]byte, string, error) {
	if r.Primary == nil {
		return nil, "", rasterizer.ErrNoRasterizer
	}

	req := rasterizer.Request{SVG: doc, Width: tpl.Width, Height: tpl.Height}
	if asset != nil {
		req.FontFiles = []string{asset.Path}
		req.FontCSS = asset.CSS()
	}

	var out []byte
	var name string
	var err error
	if named, ok := r.Primary.(namedRasterizer); ok {
		out, name, err = named.RasterizeWithName(ctx, req)
	} else {
		name = r.Primary.Name()
		out, err = r.Primary.Rasterize(ctx, req)
	}
	if err != nil {
		return nil, name, err
	}

	out, err = StripMetadata(out)
	if err != nil {
		return nil, name, fmt.Errorf("%s output: %w", name, err)
	}
	cfg, err := png.DecodeConfig(bytes.NewReader(out))
	if err != nil {
		return nil, name, fmt.Errorf("%s output: %w", name, err)
	}
	if cfg.Width != tpl.Width || cfg.Height != tpl.Height {
		return nil, name, fmt.Errorf("%s output is %dx%d, expected %dx%d", name, cfg.Width, cfg.Height, tpl.Width, tpl.Height)
	}
	return out, name, nil
}
