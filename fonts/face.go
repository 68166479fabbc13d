package fonts

import (
	"fmt"
	"image"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/font/sfnt"
	"golang.org/x/image/math/fixed"
)

var (
	goRegularOnce sync.Once
	goRegular     *opentype.Font
	goRegularErr  error
)

func goRegularFont() (*opentype.Font, error) {
	goRegularOnce.Do(func() {
		goRegular, goRegularErr = opentype.Parse(goregular.TTF)
	})
	return goRegular, goRegularErr
}

func newFace(f *opentype.Font, size float64) (font.Face, error) {
	return opentype.NewFace(f, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingNone,
	})
}

// DefaultFace returns the embedded Go Regular face at size pixels.
func DefaultFace(size float64) (font.Face, error) {
	f, err := goRegularFont()
	if err != nil {
		return nil, fmt.Errorf("parse go regular: %w", err)
	}
	return newFace(f, size)
}

// Face returns a face at size pixels that draws with the asset and falls back to
// Go Regular for runes the asset has no glyph for. The face is not safe for
// concurrent use, create one per render.
func (f *FontAsset) Face(size float64) (font.Face, error) {
	fallback, err := DefaultFace(size)
	if err != nil {
		return nil, err
	}
	if !f.Parsed() {
		return fallback, nil
	}
	primary, err := newFace(f.parsed, size)
	if err != nil {
		return fallback, nil
	}
	return &chainFace{primary: primary, primaryFont: f.parsed, fallback: fallback}, nil
}

// chainFace picks, per rune, the first face that has a glyph for it.
type chainFace struct {
	primary     font.Face
	primaryFont *sfnt.Font
	fallback    font.Face
	buf         sfnt.Buffer
}

func (c *chainFace) pick(r rune) font.Face {
	idx, err := c.primaryFont.GlyphIndex(&c.buf, r)
	if err == nil && idx != 0 {
		return c.primary
	}
	return c.fallback
}

func (c *chainFace) Close() error {
	err := c.primary.Close()
	if ferr := c.fallback.Close(); err == nil {
		err = ferr
	}
	return err
}

func (c *chainFace) Glyph(dot fixed.Point26_6, r rune) (image.Rectangle, image.Image, image.Point, fixed.Int26_6, bool) {
	return c.pick(r).Glyph(dot, r)
}

func (c *chainFace) GlyphBounds(r rune) (fixed.Rectangle26_6, fixed.Int26_6, bool) {
	return c.pick(r).GlyphBounds(r)
}

func (c *chainFace) GlyphAdvance(r rune) (fixed.Int26_6, bool) {
	return c.pick(r).GlyphAdvance(r)
}

func (c *chainFace) Kern(r0, r1 rune) fixed.Int26_6 {
	face := c.pick(r0)
	if face != c.pick(r1) {
		return 0
	}
	return face.Kern(r0, r1)
}

func (c *chainFace) Metrics() font.Metrics {
	return c.primary.Metrics()
}
