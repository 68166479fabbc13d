package main

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/flanksource/certify/packager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommands(t *testing.T) {
	root := newRootCommand()
	names := []string{}
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"render", "batch", "serve", "import", "fonts", "inspect", "version"})
	assert.Contains(t, getVersionInfo(), "certify dev")
}

func TestRenderAndBatch(t *testing.T) {
	dir := t.TempDir()
	img := image.NewRGBA(image.Rect(0, 0, 320, 200))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	bg := filepath.Join(dir, "bg.png")
	require.NoError(t, os.WriteFile(bg, buf.Bytes(), 0o644))

	tplFile := filepath.Join(dir, "template.yaml")
	require.NoError(t, os.WriteFile(tplFile, []byte(`
width: 320
height: 200
background:
  kind: local-path
  path: `+bg+`
fields:
  - name: name
    x: 160
    y: 100
    fontSize: 24
`), 0o644))

	out := filepath.Join(dir, "out.pdf")
	root := newRootCommand()
	root.SetArgs([]string{"render", "--rasterizer", "none", "--font-root", filepath.Join(dir, "fonts"),
		"--template", tplFile, "--set", "name=Jane Doe", "-o", out})
	require.NoError(t, root.Execute())

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	info, err := packager.Inspect(data)
	require.NoError(t, err)
	assert.Equal(t, 1, info.Pages)
	assert.InDelta(t, 320, info.Sizes[0].Width, 0.01)

	fixtures := filepath.Join(dir, "fixtures.yaml")
	require.NoError(t, os.WriteFile(fixtures, []byte(`
templates:
  - course: WD
    batch: 2025A
    template:
      width: 320
      height: 200
      background:
        kind: local-path
        path: `+bg+`
      fields:
        - name: name
          x: 160
          y: 100
students:
  - publicId: WD-1
    name: Jane
    course: WD
    batch: 2025A
    status: complete
  - publicId: WD-2
    name: John
    course: WD
    batch: 2025A
    status: pending
`), 0o644))

	db := filepath.Join(dir, "certify.db")
	root = newRootCommand()
	root.SetArgs([]string{"import", "--db", db, fixtures})
	require.NoError(t, root.Execute())

	outDir := filepath.Join(dir, "out")
	root = newRootCommand()
	root.SetArgs([]string{"batch", "--db", db, "--rasterizer", "none", "--cache", "none",
		"--course", "WD", "--batch", "2025A", "--format", "png", "--out", outDir})
	require.NoError(t, root.Execute())

	assert.FileExists(t, filepath.Join(outDir, "WD-1.png"))
	assert.NoFileExists(t, filepath.Join(outDir, "WD-2.png"))
}
