package render

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/flanksource/certify/api"
	"github.com/flanksource/certify/background"
	"github.com/flanksource/certify/fonts"
	"github.com/flanksource/certify/overlay"
	"github.com/flanksource/certify/rasterizer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/font/gofont/goregular"
)

func solidPNG(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(c), image.Point{}, draw.Src)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func fontResolver(t *testing.T) *fonts.Resolver {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, fonts.DefaultFileName), goregular.TTF, 0o644))
	return fonts.NewResolver(dir)
}

func missingFonts(t *testing.T) *fonts.Resolver {
	return fonts.NewResolver(filepath.Join(t.TempDir(), "none"))
}

func certificate(bgPath string) api.TemplateDescriptor {
	visible := true
	return api.TemplateDescriptor{
		ID:         "course-1/batch-1",
		Width:      1600,
		Height:     1131,
		Background: api.LocalPathRef(bgPath),
		Fields: []api.FieldSpec{
			{Name: "name", X: 800, Y: 500, FontSize: 64, Color: "#000000", Align: api.AlignCenter, Visible: &visible},
		},
	}
}

type failing struct{ calls int }

func (f *failing) Name() string      { return "failing" }
func (f *failing) IsAvailable() bool { return true }
func (f *failing) Rasterize(context.Context, rasterizer.Request) ([]byte, error) {
	f.calls++
	return nil, errors.New("malformed glyph table")
}

type recording struct {
	out []byte
	req rasterizer.Request
}

func (r *recording) Name() string      { return "recording" }
func (r *recording) IsAvailable() bool { return true }
func (r *recording) Rasterize(_ context.Context, req rasterizer.Request) ([]byte, error) {
	r.req = req
	return r.out, nil
}

func decode(t *testing.T, data []byte) image.Image {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	return img
}

func luminance(c color.Color) uint32 {
	r, g, b, _ := c.RGBA()
	return (r*299 + g*587 + b*114) / 1000 >> 8
}

func TestFallbackActivation(t *testing.T) {
	bg := writeFile(t, "bg.png", solidPNG(t, 1600, 1131, color.White))
	primary := &failing{}
	r := New(fontResolver(t), background.NewLoader(nil), primary)

	result, err := r.RenderPNG(context.Background(), certificate(bg), api.Payload{"name": "Jane Doe"})
	require.NoError(t, err)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, StrategyFallback, result.Strategy)
	assert.True(t, result.Degraded())
	assert.True(t, result.HasWarning(api.WarningRenderDegraded))
	assert.False(t, result.HasWarning(api.WarningFontAssetMissing))

	img := decode(t, result.PNG)
	assert.Equal(t, 1600, img.Bounds().Dx())
	assert.Equal(t, 1131, img.Bounds().Dy())
}

func TestEndToEndTextNearAnchor(t *testing.T) {
	bg := writeFile(t, "bg.png", solidPNG(t, 1600, 1131, color.White))
	r := New(fontResolver(t), background.NewLoader(nil), nil)

	result, err := r.RenderPNG(context.Background(), certificate(bg), api.Payload{"name": "Jane Doe"})
	require.NoError(t, err)
	img := decode(t, result.PNG)

	dark := 0
	for y := 440; y <= 515; y++ {
		for x := 600; x <= 1000; x++ {
			if luminance(img.At(x, y)) < 100 {
				dark++
			}
		}
	}
	assert.Greater(t, dark, 100, "expected dark text pixels around (800,500)")

	// nothing drawn far away from the field
	assert.Greater(t, luminance(img.At(100, 100)), uint32(250))
	assert.Greater(t, luminance(img.At(800, 900)), uint32(250))
}

func TestMalformedPayloadTextKeepsOtherFields(t *testing.T) {
	bg := writeFile(t, "bg.png", solidPNG(t, 400, 100, color.White))
	visible := true
	tpl := api.TemplateDescriptor{
		ID:         "course-1/batch-1",
		Width:      400,
		Height:     100,
		Background: api.LocalPathRef(bg),
		Fields: []api.FieldSpec{
			{Name: "a", X: 100, Y: 40, FontSize: 24, Color: "#000000", Align: api.AlignCenter, Visible: &visible},
			{Name: "b", X: 300, Y: 80, FontSize: 24, Color: "#000000", Align: api.AlignCenter, Visible: &visible},
		},
	}
	payload := api.Payload{"a": "Bad\xffName", "b": "Second"}

	nodes, err := ParseTextNodes(overlay.Build(tpl.Width, tpl.Height, tpl.Resolve(payload), nil))
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	assert.Equal(t, "BadName", nodes[0].Value)
	assert.Equal(t, "Second", nodes[1].Value)

	r := New(fontResolver(t), background.NewLoader(nil), nil)
	result, err := r.RenderPNG(context.Background(), tpl, payload)
	require.NoError(t, err)

	img := decode(t, result.PNG)
	dark := 0
	for y := 0; y < 100; y++ {
		for x := 200; x < 400; x++ {
			if luminance(img.At(x, y)) < 100 {
				dark++
			}
		}
	}
	assert.Greater(t, dark, 0, "second field must still be drawn")
}

func TestTextIsCenteredOnX(t *testing.T) {
	bg := writeFile(t, "bg.png", solidPNG(t, 400, 100, color.White))
	tpl := api.TemplateDescriptor{Width: 400, Height: 100, Background: api.LocalPathRef(bg),
		Fields: []api.FieldSpec{{Name: "n", X: 200, Y: 60, FontSize: 40}}}

	result, err := New(missingFonts(t), background.NewLoader(nil), nil).
		RenderPNG(context.Background(), tpl, api.Payload{"n": "MMMM"})
	require.NoError(t, err)
	img := decode(t, result.PNG)

	minX, maxX := 400, 0
	for y := 0; y < 100; y++ {
		for x := 0; x < 400; x++ {
			if luminance(img.At(x, y)) < 128 {
				minX, maxX = min(minX, x), max(maxX, x)
			}
		}
	}
	require.Less(t, minX, maxX)
	assert.InDelta(t, 200, (minX+maxX)/2, 6)
}

func TestIdempotent(t *testing.T) {
	bg := writeFile(t, "bg.png", solidPNG(t, 1600, 1131, color.RGBA{200, 220, 240, 255}))
	r := New(fontResolver(t), background.NewLoader(nil), &failing{})
	tpl := certificate(bg)
	payload := api.Payload{"name": "Jane Doe"}

	first, err := r.RenderPNG(context.Background(), tpl, payload)
	require.NoError(t, err)
	second, err := r.RenderPNG(context.Background(), tpl, payload)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(first.PNG, second.PNG))
}

func TestConcurrentRendersAgree(t *testing.T) {
	bg := writeFile(t, "bg.png", solidPNG(t, 320, 200, color.White))
	r := New(fontResolver(t), background.NewLoader(nil), nil)
	tpl := api.TemplateDescriptor{Width: 320, Height: 200, Background: api.LocalPathRef(bg),
		Fields: []api.FieldSpec{{Name: "name", X: 160, Y: 100, FontSize: 24}}}

	want, err := r.RenderPNG(context.Background(), tpl, api.Payload{"name": "Abebe"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([][]byte, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := r.RenderPNG(context.Background(), tpl, api.Payload{"name": "Abebe"})
			if err == nil {
				results[i] = res.PNG
			}
		}(i)
	}
	wg.Wait()
	for i, got := range results {
		assert.True(t, bytes.Equal(want.PNG, got), "render %d differs", i)
	}
}

func TestMissingBackground(t *testing.T) {
	r := New(fontResolver(t), background.NewLoader(nil), &failing{})
	for name, ref := range map[string]api.BackgroundRef{
		"empty":   {},
		"missing": api.LocalPathRef(filepath.Join(t.TempDir(), "nope.png")),
		"store":   api.ObjectStoreRef("abc"),
	} {
		t.Run(name, func(t *testing.T) {
			tpl := certificate("")
			tpl.Background = ref
			_, err := r.RenderPNG(context.Background(), tpl, api.Payload{"name": "x"})
			require.Error(t, err)
			var assetErr *api.TemplateAssetError
			require.True(t, errors.As(err, &assetErr))
			assert.Equal(t, "course-1/batch-1", assetErr.TemplateID)
		})
	}
}

func TestInvalidCanvas(t *testing.T) {
	bg := writeFile(t, "bg.png", solidPNG(t, 10, 10, color.White))
	tpl := certificate(bg)
	tpl.Width = 0
	_, err := New(nil, background.NewLoader(nil), nil).RenderPNG(context.Background(), tpl, nil)
	assert.True(t, api.IsTemplateAssetError(err))
}

func TestUndecodableBackgroundInFallback(t *testing.T) {
	bg := writeFile(t, "bg.png", []byte("definitely not an image"))
	_, err := New(nil, background.NewLoader(nil), nil).RenderPNG(context.Background(), certificate(bg), nil)
	assert.True(t, api.IsTemplateAssetError(err))
}

func TestPrimaryPath(t *testing.T) {
	bg := writeFile(t, "bg.png", solidPNG(t, 1600, 1131, color.White))
	rendered := withTextChunk(t, solidPNG(t, 1600, 1131, color.Black))
	primary := &recording{out: rendered}
	resolver := fontResolver(t)
	r := New(resolver, background.NewLoader(nil), primary)

	result, err := r.RenderPNG(context.Background(), certificate(bg), api.Payload{"name": "ሰላም"})
	require.NoError(t, err)
	assert.Equal(t, StrategyPrimary, result.Strategy)
	assert.Equal(t, "recording", result.Rasterizer)
	assert.Empty(t, result.Warnings)
	assert.NotContains(t, string(result.PNG), "tEXt")

	asset, _ := resolver.Resolve(context.Background())
	assert.Equal(t, []string{asset.Path}, primary.req.FontFiles)
	assert.Equal(t, 1600, primary.req.Width)
	assert.Contains(t, string(primary.req.SVG), `font-family="NotoSansEthiopic, DejaVu Sans`)
	assert.Contains(t, string(primary.req.SVG), "ሰላም")
}

type closing struct {
	recording
	closed int
}

func (c *closing) Close() error {
	c.closed++
	return nil
}

func TestCloseReleasesPrimary(t *testing.T) {
	primary := &closing{}
	r := New(missingFonts(t), background.NewLoader(nil), primary)
	require.NoError(t, r.Close())
	assert.Equal(t, 1, primary.closed)

	assert.NoError(t, New(missingFonts(t), background.NewLoader(nil), nil).Close())
	assert.NoError(t, New(missingFonts(t), background.NewLoader(nil), &recording{}).Close())
}

func TestPrimaryWrongSizeFallsBack(t *testing.T) {
	bg := writeFile(t, "bg.png", solidPNG(t, 1600, 1131, color.White))
	r := New(fontResolver(t), background.NewLoader(nil), &recording{out: solidPNG(t, 800, 600, color.Black)})

	result, err := r.RenderPNG(context.Background(), certificate(bg), api.Payload{"name": "x"})
	require.NoError(t, err)
	assert.Equal(t, StrategyFallback, result.Strategy)
	assert.Equal(t, 1600, decode(t, result.PNG).Bounds().Dx())
}

func TestFontAssetMissing(t *testing.T) {
	bg := writeFile(t, "bg.png", solidPNG(t, 1600, 1131, color.White))
	primary := &recording{out: solidPNG(t, 1600, 1131, color.White)}
	r := New(missingFonts(t), background.NewLoader(nil), primary)

	result, err := r.RenderPNG(context.Background(), certificate(bg), api.Payload{"name": "ሰላም"})
	require.NoError(t, err)
	assert.True(t, result.HasWarning(api.WarningFontAssetMissing))
	assert.False(t, result.HasWarning(api.WarningRenderDegraded))
	assert.Empty(t, primary.req.FontFiles)

	svg := string(primary.req.SVG)
	assert.Contains(t, svg, `font-family="DejaVu Sans, Verdana, Arial, sans-serif"`)
	assert.NotContains(t, svg, "NotoSansEthiopic")
	assert.NotContains(t, svg, "@font-face")
}

func TestDocument(t *testing.T) {
	bg := solidPNG(t, 2, 2, color.White)
	fields := []api.ResolvedField{{X: 1, Y: 2, FontSize: 10, Color: "red", Visible: true, Value: "A & B"}}
	asset := &fonts.FontAsset{Family: "NotoSansEthiopic", Data: []byte("font")}
	doc := string(Document(1600, 1131, bg, fields, asset))

	assert.Contains(t, doc, `viewBox="0 0 1600 1131"`)
	assert.Contains(t, doc, `preserveAspectRatio="xMidYMid slice"`)
	assert.Contains(t, doc, "data:image/png;base64,")
	assert.Contains(t, doc, ">A &amp; B</text>")

	style := strings.Index(doc, "@font-face")
	img := strings.Index(doc, "<image")
	text := strings.Index(doc, "<text")
	assert.True(t, style >= 0 && style < img && img < text, "expected style, image, text order")
}

func TestCoverFit(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 200, 100))
	draw.Draw(src, image.Rect(0, 0, 100, 100), image.NewUniform(color.RGBA{255, 0, 0, 255}), image.Point{}, draw.Src)
	draw.Draw(src, image.Rect(100, 0, 200, 100), image.NewUniform(color.RGBA{0, 0, 255, 255}), image.Point{}, draw.Src)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, src))

	out, err := NewCompositor().Composite(context.Background(), buf.Bytes(), nil, 100, 100, nil)
	require.NoError(t, err)
	img := decode(t, out)
	require.Equal(t, image.Rect(0, 0, 100, 100), img.Bounds())

	r, _, b, _ := img.At(10, 50).RGBA()
	assert.Greater(t, r, b)
	r, _, b, _ = img.At(90, 50).RGBA()
	assert.Greater(t, b, r)
}

func TestSVGBackground(t *testing.T) {
	svg := []byte(`<svg xmlns="http://www.w3.org/2000/svg" width="10" height="10" viewBox="0 0 10 10"><rect width="10" height="10" fill="#00ff00"/></svg>`)
	img, err := DecodeBackground(svg, 40, 20)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, img.Bounds().Dx(), 40)
	assert.GreaterOrEqual(t, img.Bounds().Dy(), 20)
	_, g, _, _ := img.At(5, 5).RGBA()
	assert.Greater(t, g, uint32(0x8000))
}

func TestParseTextNodes(t *testing.T) {
	fields := []api.ResolvedField{
		{X: 10, Y: 20, FontSize: 30, Color: "#ff0000", Align: api.AlignRight, Visible: true, Value: `<b>&"'`},
		{X: 1, Y: 2, FontSize: 3, Visible: false, Value: "hidden"},
	}
	nodes, err := ParseTextNodes(overlay.Build(100, 100, fields, nil))
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, TextNode{X: 10, Y: 20, Anchor: "end", Fill: "#ff0000", FontSize: 30, Value: `<b>&"'`}, nodes[0])

	_, err = ParseTextNodes([]byte("<svg><text>unterminated"))
	assert.Error(t, err)
}

func withTextChunk(t *testing.T, data []byte) []byte {
	t.Helper()
	payload := []byte("Software\x00librsvg")
	chunk := make([]byte, 0, 12+len(payload))
	chunk = binary.BigEndian.AppendUint32(chunk, uint32(len(payload)))
	chunk = append(chunk, "tEXt"...)
	chunk = append(chunk, payload...)
	chunk = binary.BigEndian.AppendUint32(chunk, crc32.ChecksumIEEE(append([]byte("tEXt"), payload...)))

	// after the IHDR chunk: signature(8) + IHDR(12+13)
	at := 8 + 25
	out := append([]byte{}, data[:at]...)
	out = append(out, chunk...)
	return append(out, data[at:]...)
}

func TestStripMetadata(t *testing.T) {
	plain := solidPNG(t, 4, 4, color.White)
	tagged := withTextChunk(t, plain)
	require.NotEqual(t, plain, tagged)
	decode(t, tagged)

	stripped, err := StripMetadata(tagged)
	require.NoError(t, err)
	assert.Equal(t, plain, stripped)

	_, err = StripMetadata([]byte("nope"))
	assert.Error(t, err)
	_, err = StripMetadata(plain[:20])
	assert.Error(t, err)
}
