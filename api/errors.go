package api

import (
	"errors"
	"fmt"
)

// ErrNotFound is wrapped by errors for missing templates, students and assets.
var ErrNotFound = errors.New("not found")

// ErrTemplateNotConfigured is returned when a course/batch has no template.
var ErrTemplateNotConfigured = fmt.Errorf("template not configured for this course and batch: %w", ErrNotFound)

// ErrNotEligible is returned for students that have not completed their course.
var ErrNotEligible = errors.New("not eligible to download yet")

// TemplateAssetError is returned when the background image of a template cannot be obtained.
type TemplateAssetError struct {
	TemplateID string
	Ref        BackgroundRef
	Err        error
}

func (e *TemplateAssetError) Error() string {
	if e.TemplateID != "" {
		return fmt.Sprintf("template %s: background %s unavailable: %v", e.TemplateID, e.Ref, e.Err)
	}
	return fmt.Sprintf("template background %s unavailable: %v", e.Ref, e.Err)
}

func (e *TemplateAssetError) Unwrap() error {
	return e.Err
}

// DocumentPackagingError is returned when a rendered PNG could not be wrapped into a PDF.
type DocumentPackagingError struct {
	Op  string
	Err error
}

func (e *DocumentPackagingError) Error() string {
	return fmt.Sprintf("pdf %s failed: %v", e.Op, e.Err)
}

func (e *DocumentPackagingError) Unwrap() error {
	return e.Err
}

// NewPackagingError wraps err as a DocumentPackagingError for the given step.
func NewPackagingError(op string, err error) error {
	return &DocumentPackagingError{Op: op, Err: err}
}

// IsTemplateAssetError reports whether err is, or wraps, a TemplateAssetError.
func IsTemplateAssetError(err error) bool {
	var target *TemplateAssetError
	return errors.As(err, &target)
}

// IsPackagingError reports whether err is, or wraps, a DocumentPackagingError.
func IsPackagingError(err error) bool {
	var target *DocumentPackagingError
	return errors.As(err, &target)
}

// WarningKind classifies non fatal anomalies that are absorbed during a render.
type WarningKind string

const (
	// WarningFontAssetMissing means no embeddable font was found and only generic
	// font names were used, non-Latin glyphs may be missing.
	WarningFontAssetMissing WarningKind = "FontAssetMissing"
	// WarningRenderDegraded means the primary rasterizer failed and the raster
	// compositing fallback produced the image.
	WarningRenderDegraded WarningKind = "RenderDegraded"
)

// Warning is a log-only anomaly, also attached to render results.
type Warning struct {
	Kind    WarningKind `json:"kind"`
	Message string      `json:"message"`
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: %s", w.Kind, w.Message)
}
