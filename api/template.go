package api

import (
	"fmt"
	"strings"

	"github.com/samber/lo"
)

// Align controls how a field's text is anchored on its (X, Y) position.
type Align string

const (
	AlignLeft   Align = "left"
	AlignCenter Align = "center"
	AlignRight  Align = "right"
)

// TextAnchor maps the alignment onto the SVG text-anchor value.
// Anything that is not explicitly left or right is centered.
func (a Align) TextAnchor() string {
	switch a {
	case AlignLeft:
		return "start"
	case AlignRight:
		return "end"
	default:
		return "middle"
	}
}

// BackgroundKind discriminates where a template's background image lives.
type BackgroundKind string

const (
	BackgroundObjectStore BackgroundKind = "object-store"
	BackgroundLocalPath   BackgroundKind = "local-path"
)

// BackgroundRef points at the background image of a template, either an object
// in the object store (ID) or a file on local disk (Path).
type BackgroundRef struct {
	Kind BackgroundKind `json:"kind,omitempty" yaml:"kind,omitempty"`
	ID   string         `json:"id,omitempty" yaml:"id,omitempty"`
	Path string         `json:"path,omitempty" yaml:"path,omitempty"`
}

// ObjectStoreRef returns a reference to an object store file.
func ObjectStoreRef(id string) BackgroundRef {
	return BackgroundRef{Kind: BackgroundObjectStore, ID: id}
}

// LocalPathRef returns a reference to a file on local disk.
func LocalPathRef(path string) BackgroundRef {
	return BackgroundRef{Kind: BackgroundLocalPath, Path: path}
}

// IsEmpty is true when neither variant of the reference is populated.
func (r BackgroundRef) IsEmpty() bool {
	switch r.Kind {
	case BackgroundObjectStore:
		return strings.TrimSpace(r.ID) == ""
	case BackgroundLocalPath:
		return strings.TrimSpace(r.Path) == ""
	default:
		return true
	}
}

func (r BackgroundRef) String() string {
	switch r.Kind {
	case BackgroundObjectStore:
		return fmt.Sprintf("object-store:%s", r.ID)
	case BackgroundLocalPath:
		return fmt.Sprintf("local-path:%s", r.Path)
	default:
		return "<none>"
	}
}

// FieldSpec is a named, positioned and styled piece of text on a template.
// Coordinates are not clamped to the canvas.
type FieldSpec struct {
	Name     string  `json:"name" yaml:"name"`
	X        float64 `json:"x" yaml:"x"`
	Y        float64 `json:"y" yaml:"y"`
	FontSize float64 `json:"fontSize,omitempty" yaml:"fontSize,omitempty"`
	Color    string  `json:"color,omitempty" yaml:"color,omitempty"`
	Align    Align   `json:"align,omitempty" yaml:"align,omitempty"`
	Visible  *bool   `json:"visible,omitempty" yaml:"visible,omitempty"`
}

// IsVisible defaults to true when Visible is unset.
func (f FieldSpec) IsVisible() bool {
	return f.Visible == nil || *f.Visible
}

// Resolve joins the field with its value from the payload.
func (f FieldSpec) Resolve(payload Payload) ResolvedField {
	return ResolvedField{
		X:        f.X,
		Y:        f.Y,
		FontSize: lo.Ternary(f.FontSize > 0, f.FontSize, DefaultFontSize),
		Color:    lo.Ternary(f.Color != "", f.Color, DefaultColor),
		Align:    f.Align,
		Visible:  f.IsVisible(),
		Value:    payload.Get(f.Name),
	}
}

// TemplateDescriptor describes how the certificates of one course/batch are rendered.
type TemplateDescriptor struct {
	// ID identifies the template in logs, it plays no part in rendering
	ID         string        `json:"id,omitempty" yaml:"id,omitempty"`
	Width      int           `json:"width" yaml:"width"`
	Height     int           `json:"height" yaml:"height"`
	Background BackgroundRef `json:"background" yaml:"background"`
	Fields     []FieldSpec   `json:"fields,omitempty" yaml:"fields,omitempty"`
}

// Resolve joins every field of the template with the payload, preserving order.
func (t TemplateDescriptor) Resolve(payload Payload) []ResolvedField {
	return lo.Map(t.Fields, func(f FieldSpec, _ int) ResolvedField {
		return f.Resolve(payload)
	})
}

func (t TemplateDescriptor) String() string {
	id := lo.Ternary(t.ID != "", t.ID, "<anonymous>")
	return fmt.Sprintf("template %s (%dx%d, %s)", id, t.Width, t.Height, t.Background)
}

// ResolvedField is a FieldSpec joined with its payload value for a single render.
type ResolvedField struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	FontSize float64 `json:"fontSize"`
	Color    string  `json:"color"`
	Align    Align   `json:"align,omitempty"`
	Visible  bool    `json:"visible"`
	Value    string  `json:"value"`
}

// IsElided is true when the field must not be emitted: hidden, or blank after trimming.
func (r ResolvedField) IsElided() bool {
	return !r.Visible || strings.TrimSpace(r.Value) == ""
}
