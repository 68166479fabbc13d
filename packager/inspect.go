package packager

import (
	"bytes"
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"github.com/samber/lo"
)

// PageSize is a page's media box size in points.
type PageSize struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func (s PageSize) String() string {
	return fmt.Sprintf("%gx%g", s.Width, s.Height)
}

// Info describes the structure of a PDF document.
type Info struct {
	Pages int        `json:"pages"`
	Sizes []PageSize `json:"sizes"`
	Bytes int        `json:"bytes"`
}

// Inspect validates the PDF and reports its page count and page sizes.
func Inspect(data []byte) (*Info, error) {
	conf := model.NewDefaultConfiguration()

	pages, err := api.PageCount(bytes.NewReader(data), conf)
	if err != nil {
		return nil, fmt.Errorf("failed to read PDF: %w", err)
	}
	dims, err := api.PageDims(bytes.NewReader(data), conf)
	if err != nil {
		return nil, fmt.Errorf("failed to read page dimensions: %w", err)
	}

	return &Info{
		Pages: pages,
		Bytes: len(data),
		Sizes: lo.Map(dims, func(d types.Dim, _ int) PageSize {
			return PageSize{Width: d.Width, Height: d.Height}
		}),
	}, nil
}
