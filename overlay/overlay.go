// Package overlay builds the SVG text layer of a certificate.
package overlay

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	svg "github.com/ajstarks/svgo"
	"github.com/flanksource/certify/api"
	"github.com/flanksource/certify/fonts"
	"github.com/samber/lo"
)

var escaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#39;",
)

// Escape makes s safe to use as SVG text content or as an attribute value. Invalid
// UTF-8 and runes outside the XML character range are dropped.
func Escape(s string) string {
	s = strings.Map(func(r rune) rune {
		if isXMLChar(r) {
			return r
		}
		return -1
	}, strings.ToValidUTF8(s, ""))
	return escaper.Replace(s)
}

func isXMLChar(r rune) bool {
	switch {
	case r == 0x09, r == 0x0A, r == 0x0D:
		return true
	case r >= 0x20 && r <= 0xD7FF:
		return true
	case r >= 0xE000 && r <= 0xFFFD:
		return true
	case r >= 0x10000 && r <= 0x10FFFF:
		return true
	}
	return false
}

// Visible drops hidden fields and fields whose value is blank.
func Visible(fields []api.ResolvedField) []api.ResolvedField {
	return lo.Filter(fields, func(f api.ResolvedField, _ int) bool {
		return !f.IsElided()
	})
}

// Build returns a standalone SVG document of width x height holding one text node per
// visible field. When asset is set its @font-face rule is embedded in the document.
func Build(width, height int, fields []api.ResolvedField, asset *fonts.FontAsset) []byte {
	var buf bytes.Buffer
	canvas := svg.New(&buf)
	canvas.Start(width, height, fmt.Sprintf(`viewBox="0 0 %d %d"`, width, height))
	WriteStyle(canvas, asset)
	WriteNodes(canvas.Writer, fields, asset)
	canvas.End()
	return buf.Bytes()
}

// WriteStyle writes a <defs> block with the font's @font-face rule, nothing when asset is nil.
func WriteStyle(canvas *svg.SVG, asset *fonts.FontAsset) {
	if asset == nil {
		return
	}
	canvas.Def()
	canvas.Style("text/css", asset.CSS())
	canvas.DefEnd()
}

// Nodes returns only the text nodes, for embedding into another SVG document.
func Nodes(fields []api.ResolvedField, asset *fonts.FontAsset) []byte {
	var buf bytes.Buffer
	WriteNodes(&buf, fields, asset)
	return buf.Bytes()
}

// WriteNodes writes one <text> element per visible field, in order.
func WriteNodes(w io.Writer, fields []api.ResolvedField, asset *fonts.FontAsset) {
	family := Escape(fonts.FamilyList(asset))
	for _, f := range Visible(fields) {
		fmt.Fprintf(w, `<text x="%s" y="%s" text-anchor="%s" fill="%s" font-size="%s" font-family="%s">%s</text>`+"\n",
			num(f.X), num(f.Y), f.Align.TextAnchor(), Escape(f.Color), num(f.FontSize), family, Escape(f.Value))
	}
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
