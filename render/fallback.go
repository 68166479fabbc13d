package render

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/flanksource/certify/api"
	"github.com/flanksource/certify/fonts"
	"github.com/flanksource/commons/logger"
	"github.com/fogleman/gg"
	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
	"golang.org/x/image/font"
)

// Compositor is the in-process raster path used when no vector rasterizer succeeds.
// It crops the background to the canvas and paints the overlay SVG on top.
type Compositor struct {
	log logger.Logger
}

// NewCompositor creates the raster fallback compositor.
func NewCompositor() *Compositor {
	return &Compositor{log: logger.GetLogger("render")}
}

// Composite returns a PNG of exactly width x height. A background that cannot be
// decoded is a *api.TemplateAssetError; problems with the overlay only reduce fidelity.
func (c *Compositor) Composite(ctx context.Context, bg, overlaySVG []byte, width, height int, asset *fonts.FontAsset) ([]byte, error) {
	img, err := DecodeBackground(bg, width, height)
	if err != nil {
		return nil, &api.TemplateAssetError{Err: fmt.Errorf("decode background: %w", err)}
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(dst, dst.Bounds(), imaging.Fill(img, width, height, imaging.Center, imaging.Lanczos), image.Point{}, draw.Src)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.drawShapes(dst, overlaySVG)
	if err := c.drawText(dst, overlaySVG, asset); err != nil {
		c.log.Warnf("RenderDegraded: overlay text could not be drawn: %v", err)
	}

	var buf bytes.Buffer
	if err := (&png.Encoder{CompressionLevel: png.DefaultCompression}).Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeBackground decodes PNG, JPEG and GIF backgrounds, and rasterizes SVG ones
// large enough to cover width x height.
func DecodeBackground(data []byte, width, height int) (image.Image, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err == nil {
		return img, nil
	}
	if !looksLikeSVG(data) {
		return nil, err
	}

	icon, serr := oksvg.ReadIconStream(bytes.NewReader(data), oksvg.IgnoreErrorMode)
	if serr != nil {
		return nil, fmt.Errorf("svg background: %w", serr)
	}
	vw, vh := icon.ViewBox.W, icon.ViewBox.H
	if vw <= 0 || vh <= 0 {
		vw, vh = float64(width), float64(height)
	}
	scale := math.Max(float64(width)/vw, float64(height)/vh)
	w, h := int(math.Ceil(vw*scale)), int(math.Ceil(vh*scale))

	rgba := image.NewRGBA(image.Rect(0, 0, w, h))
	icon.SetTarget(0, 0, float64(w), float64(h))
	scanner := rasterx.NewScannerGV(w, h, rgba, rgba.Bounds())
	icon.Draw(rasterx.NewDasher(w, h, scanner), 1.0)
	return rgba, nil
}

func looksLikeSVG(data []byte) bool {
	head := data
	if len(head) > 512 {
		head = head[:512]
	}
	return bytes.Contains(head, []byte("<svg"))
}

// drawShapes paints the non-text vector content of the overlay. oksvg ignores
// <text>, which drawText handles.
func (c *Compositor) drawShapes(dst *image.RGBA, overlaySVG []byte) {
	icon, err := oksvg.ReadIconStream(bytes.NewReader(overlaySVG), oksvg.IgnoreErrorMode)
	if err != nil {
		c.log.Debugf("overlay shapes skipped: %v", err)
		return
	}
	if icon.ViewBox.W <= 0 || icon.ViewBox.H <= 0 {
		return
	}
	w, h := dst.Bounds().Dx(), dst.Bounds().Dy()
	icon.SetTarget(0, 0, float64(w), float64(h))
	scanner := rasterx.NewScannerGV(w, h, dst, dst.Bounds())
	icon.Draw(rasterx.NewDasher(w, h, scanner), 1.0)
}

// TextNode is a <text> element of the overlay.
type TextNode struct {
	X, Y     float64
	Anchor   string
	Fill     string
	FontSize float64
	Value    string
}

// ParseTextNodes reads every <text> element of an SVG document, entities decoded.
func ParseTextNodes(doc []byte) ([]TextNode, error) {
	decoder := xml.NewDecoder(bytes.NewReader(doc))
	decoder.Strict = true

	var nodes []TextNode
	var current *TextNode
	var value strings.Builder

	for {
		tok, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nodes, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local != "text" {
				continue
			}
			node := TextNode{Anchor: "start", Fill: api.DefaultColor, FontSize: api.DefaultFontSize}
			for _, attr := range t.Attr {
				switch attr.Name.Local {
				case "x":
					node.X = parseNumber(attr.Value, 0)
				case "y":
					node.Y = parseNumber(attr.Value, 0)
				case "text-anchor":
					node.Anchor = attr.Value
				case "fill":
					node.Fill = attr.Value
				case "font-size":
					node.FontSize = parseNumber(attr.Value, api.DefaultFontSize)
				}
			}
			current = &node
			value.Reset()
		case xml.CharData:
			if current != nil {
				value.Write(t)
			}
		case xml.EndElement:
			if t.Name.Local == "text" && current != nil {
				current.Value = value.String()
				nodes = append(nodes, *current)
				current = nil
			}
		}
	}
	return nodes, nil
}

func parseNumber(s string, def float64) float64 {
	s = strings.TrimSuffix(strings.TrimSpace(s), "px")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return def
	}
	return v
}

func anchorOffset(anchor string) float64 {
	switch anchor {
	case "middle":
		return 0.5
	case "end":
		return 1
	default:
		return 0
	}
}

func (c *Compositor) drawText(dst *image.RGBA, overlaySVG []byte, asset *fonts.FontAsset) error {
	nodes, err := ParseTextNodes(overlaySVG)
	if len(nodes) == 0 {
		return err
	}

	faces := map[float64]font.Face{}
	defer func() {
		for _, f := range faces {
			_ = f.Close()
		}
	}()

	dc := gg.NewContextForRGBA(dst)
	for _, node := range nodes {
		fill, cerr := oksvg.ParseSVGColor(node.Fill)
		if cerr != nil {
			c.log.Debugf("unsupported fill %q, using black: %v", node.Fill, cerr)
			fill = color.Black
		}
		if fill == nil {
			continue
		}

		face, ok := faces[node.FontSize]
		if !ok {
			var ferr error
			if asset != nil {
				face, ferr = asset.Face(node.FontSize)
			} else {
				face, ferr = fonts.DefaultFace(node.FontSize)
			}
			if ferr != nil {
				return ferr
			}
			faces[node.FontSize] = face
		}

		dc.SetFontFace(face)
		dc.SetColor(fill)
		dc.DrawStringAnchored(node.Value, node.X, node.Y, anchorOffset(node.Anchor), 0)
	}
	return err
}
