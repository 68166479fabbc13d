package api

// Field defaults applied when a template leaves them unset.
const (
	DefaultFontSize = 48.0
	DefaultColor    = "#000000"
	DefaultWidth    = 1600
	DefaultHeight   = 1131
)

// MIME types produced or sniffed by the renderer.
const (
	MimePNG  = "image/png"
	MimeJPEG = "image/jpeg"
	MimeGIF  = "image/gif"
	MimePDF  = "application/pdf"
)

// Output formats.
const (
	FormatPNG = "png"
	FormatPDF = "pdf"
)

// ContentType returns the MIME type for an output format.
func ContentType(format string) string {
	if format == FormatPDF {
		return MimePDF
	}
	return MimePNG
}
