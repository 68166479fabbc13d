// Package packager wraps rendered certificate images into single page PDF documents.
package packager

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"time"

	"github.com/flanksource/certify/api"
	"github.com/flanksource/certify/render"
	"github.com/flanksource/commons/logger"
	"github.com/jung-kurt/gofpdf"
)

// CreationDate is stamped into every document so that packaging the same image twice
// produces the same bytes.
var CreationDate = time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC)

const imageName = "certificate"

// Document is a packaged certificate together with the render that produced it.
type Document struct {
	PDF   []byte
	Image *render.Result
}

// Packager renders certificates as PDF.
type Packager struct {
	Renderer *render.Renderer
	Creator  string
	Date     time.Time

	log logger.Logger
}

// New creates a packager on top of the renderer.
func New(renderer *render.Renderer) *Packager {
	return &Packager{
		Renderer: renderer,
		Creator:  "certify",
		Date:     CreationDate,
		log:      logger.GetLogger("packager"),
	}
}

// RenderPDF renders the PNG and packages it as a one page PDF the size of the image.
// Render errors are returned unchanged, packaging failures as *api.DocumentPackagingError.
func (p *Packager) RenderPDF(ctx context.Context, tpl api.TemplateDescriptor, payload api.Payload) (*Document, error) {
	if p.Renderer == nil {
		return nil, fmt.Errorf("packager has no renderer")
	}
	result, err := p.Renderer.RenderPNG(ctx, tpl, payload)
	if err != nil {
		return nil, err
	}
	doc, err := p.Package(result.PNG)
	if err != nil {
		return nil, err
	}
	if p.log != nil {
		p.log.Debugf("packaged %s (%d bytes png, %d bytes pdf)", tpl, len(result.PNG), len(doc))
	}
	return &Document{PDF: doc, Image: result}, nil
}

// Package embeds the PNG on a single page of exactly its pixel size, in points, with
// no margins.
func (p *Packager) Package(data []byte) ([]byte, error) {
	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, api.NewPackagingError("decode", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, api.NewPackagingError("decode", fmt.Errorf("empty image %dx%d", cfg.Width, cfg.Height))
	}

	data, err = normalize(data)
	if err != nil {
		return nil, api.NewPackagingError("normalize", err)
	}

	w, h := float64(cfg.Width), float64(cfg.Height)
	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "pt",
		Size:           gofpdf.SizeType{Wd: w, Ht: h},
	})
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetCatalogSort(true)
	pdf.SetCreationDate(p.creationDate())
	if p.Creator != "" {
		pdf.SetCreator(p.Creator, true)
	}
	pdf.AddPage()

	opts := gofpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader(imageName, opts, bytes.NewReader(data))
	if err := pdf.Error(); err != nil {
		return nil, api.NewPackagingError("embed", err)
	}
	pdf.ImageOptions(imageName, 0, 0, w, h, false, opts, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, api.NewPackagingError("write", err)
	}
	return buf.Bytes(), nil
}

func (p *Packager) creationDate() time.Time {
	if p.Date.IsZero() {
		return CreationDate
	}
	return p.Date
}

// normalize re-encodes PNGs the PDF writer cannot embed directly (16 bit depth or
// interlaced) as 8 bit NRGBA.
func normalize(data []byte) ([]byte, error) {
	// IHDR data starts at 16: width(4) height(4) depth(1) color(1) compression(1) filter(1) interlace(1)
	if len(data) < 29 {
		return nil, fmt.Errorf("truncated png header")
	}
	depth, interlace := data[24], data[28]
	if depth <= 8 && interlace == 0 {
		return data, nil
	}

	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	nrgba := image.NewNRGBA(img.Bounds())
	draw.Draw(nrgba, nrgba.Bounds(), img, img.Bounds().Min, draw.Src)

	var buf bytes.Buffer
	if err := png.Encode(&buf, nrgba); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
