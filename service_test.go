package certify

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/flanksource/certify/api"
	"github.com/flanksource/certify/rasterizer"
	"github.com/flanksource/certify/render"
	"github.com/flanksource/certify/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solidPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

type countingRasterizer struct {
	out   []byte
	calls int
}

func (c *countingRasterizer) Name() string      { return "counting" }
func (c *countingRasterizer) IsAvailable() bool { return true }
func (c *countingRasterizer) Rasterize(context.Context, rasterizer.Request) ([]byte, error) {
	c.calls++
	return c.out, nil
}

func newService(t *testing.T) *Service {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bg.png"), solidPNG(t, 400, 300), 0o644))

	config := DefaultConfig()
	config.Database = filepath.Join(dir, "certify.db")
	config.BackgroundDir = dir
	config.Fonts.Roots = []string{filepath.Join(dir, "fonts")}
	config.Rasterizers.Order = []string{"none"}

	s, err := NewService(config)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	s.Now = func() time.Time { return time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC) }

	ctx := context.Background()
	_, err = s.Store.PutTemplate(ctx, "WD", "2025A", api.TemplateDescriptor{
		Width: 400, Height: 300, Background: api.ObjectStoreRef("bg.png"),
		Fields: []api.FieldSpec{{Name: "name", X: 200, Y: 150, FontSize: 24}},
	})
	require.NoError(t, err)
	require.NoError(t, s.Store.PutStudent(ctx, store.Student{PublicID: "WD-1", Name: "Jane", Course: "WD", Batch: "2025A", Status: store.StatusComplete}))
	require.NoError(t, s.Store.PutStudent(ctx, store.Student{PublicID: "WD-2", Name: "John", Course: "WD", Batch: "2025A", Status: store.StatusBlocked}))
	require.NoError(t, s.Store.PutStudent(ctx, store.Student{PublicID: "OT-1", Name: "Abebe", Course: "OT", Batch: "2025A", Status: store.StatusComplete}))
	return s
}

func TestEligibility(t *testing.T) {
	s := newService(t)
	ctx := context.Background()

	st, err := s.Eligibility(ctx, " WD-1 ")
	require.NoError(t, err)
	assert.Equal(t, "Jane", st.Name)

	st, err = s.Eligibility(ctx, "WD-2")
	assert.True(t, errors.Is(err, api.ErrNotEligible))
	require.NotNil(t, st)
	assert.Equal(t, store.StatusBlocked, st.Status)

	_, err = s.Eligibility(ctx, "missing")
	assert.True(t, errors.Is(err, api.ErrNotFound))
}

func TestCertificateFallback(t *testing.T) {
	s := newService(t)
	ctx := context.Background()

	cert, err := s.Certificate(ctx, "WD-1", "png")
	require.NoError(t, err)
	assert.Equal(t, "WD-1.png", cert.Filename)
	assert.Equal(t, "image/png", cert.ContentType)
	assert.Equal(t, render.StrategyFallback, cert.Strategy)
	assert.False(t, cert.Cached)

	cfg, err := png.DecodeConfig(bytes.NewReader(cert.Data))
	require.NoError(t, err)
	assert.Equal(t, 400, cfg.Width)

	// degraded renders are not cached
	cert, err = s.Certificate(ctx, "WD-1", "png")
	require.NoError(t, err)
	assert.False(t, cert.Cached)

	cert, err = s.Certificate(ctx, "WD-1", "PDF")
	require.NoError(t, err)
	assert.Equal(t, "WD-1.pdf", cert.Filename)
	assert.True(t, bytes.HasPrefix(cert.Data, []byte("%PDF")))
}

func TestCertificateCache(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	primary := &countingRasterizer{out: solidPNG(t, 400, 300)}
	s.Renderer.Primary = primary

	first, err := s.Certificate(ctx, "WD-1", "png")
	require.NoError(t, err)
	assert.Equal(t, render.StrategyPrimary, first.Strategy)

	second, err := s.Certificate(ctx, "WD-1", "png")
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Data, second.Data)
	assert.Equal(t, 1, primary.calls)

	// a template update changes the cache key
	tpl, err := s.Store.Template(ctx, "WD", "2025A")
	require.NoError(t, err)
	_, err = s.Store.PutTemplate(ctx, "WD", "2025A", tpl.Descriptor)
	require.NoError(t, err)
	third, err := s.Certificate(ctx, "WD-1", "png")
	require.NoError(t, err)
	assert.False(t, third.Cached)
	assert.Equal(t, 2, primary.calls)
}

func TestCertificateErrors(t *testing.T) {
	s := newService(t)
	ctx := context.Background()

	_, err := s.Certificate(ctx, "OT-1", "png")
	assert.True(t, errors.Is(err, api.ErrTemplateNotConfigured))

	_, err = s.Certificate(ctx, "WD-2", "pdf")
	assert.True(t, errors.Is(err, api.ErrNotEligible))

	_, err = s.Certificate(ctx, "WD-1", "gif")
	assert.Error(t, err)

	_, err = s.Store.PutTemplate(ctx, "WD", "2025A", api.TemplateDescriptor{Background: api.ObjectStoreRef("missing.png")})
	require.NoError(t, err)
	_, err = s.Certificate(ctx, "WD-1", "png")
	assert.True(t, api.IsTemplateAssetError(err))
}

type closingRasterizer struct {
	countingRasterizer
	closed int
}

func (c *closingRasterizer) Close() error {
	c.closed++
	return nil
}

func TestRenderServiceClosesRasterizers(t *testing.T) {
	dir := t.TempDir()
	bg := filepath.Join(dir, "bg.png")
	require.NoError(t, os.WriteFile(bg, solidPNG(t, 400, 300), 0o644))

	config := DefaultConfig()
	config.Fonts.Roots = []string{filepath.Join(dir, "fonts")}
	config.Rasterizers.Order = []string{"none"}
	s, err := NewRenderService(config)
	require.NoError(t, err)
	primary := &closingRasterizer{countingRasterizer: countingRasterizer{out: solidPNG(t, 400, 300)}}
	s.Renderer.Primary = primary

	tpl := api.TemplateDescriptor{Width: 400, Height: 300, Background: api.LocalPathRef(bg)}
	cert, err := s.Render(context.Background(), tpl, api.Payload{}, "pdf")
	require.NoError(t, err)
	assert.Equal(t, render.StrategyPrimary, cert.Strategy)
	assert.Equal(t, 1, primary.calls)

	require.NoError(t, s.Close())
	assert.Equal(t, 1, primary.closed)
	require.NoError(t, s.Close())
	assert.Equal(t, 1, primary.closed)
}

func TestServiceClosesRasterizers(t *testing.T) {
	s := newService(t)
	primary := &closingRasterizer{}
	s.Renderer.Primary = primary
	require.NoError(t, s.Close())
	assert.Equal(t, 1, primary.closed)
}
