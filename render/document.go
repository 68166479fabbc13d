package render

import (
	"bytes"
	"fmt"

	svg "github.com/ajstarks/svgo"
	"github.com/flanksource/certify/api"
	"github.com/flanksource/certify/background"
	"github.com/flanksource/certify/fonts"
	"github.com/flanksource/certify/overlay"
)

// Document assembles the full certificate SVG: font rule, background covering the
// canvas, then the text nodes.
func Document(width, height int, bg []byte, fields []api.ResolvedField, asset *fonts.FontAsset) []byte {
	var buf bytes.Buffer
	canvas := svg.New(&buf)
	canvas.Start(width, height, fmt.Sprintf(`viewBox="0 0 %d %d"`, width, height))
	overlay.WriteStyle(canvas, asset)
	canvas.Image(0, 0, width, height, background.DataURI(bg), `preserveAspectRatio="xMidYMid slice"`)
	overlay.WriteNodes(canvas.Writer, fields, asset)
	canvas.End()
	return buf.Bytes()
}
