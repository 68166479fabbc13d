package rasterizer

import (
	"context"
	"fmt"
	"strconv"

	"github.com/flanksource/certify/exec"
	"github.com/flanksource/commons/logger"
)

// Inkscape rasterizes with the Inkscape 1.x command line.
type Inkscape struct {
	opts Options
	log  logger.Logger
}

// NewInkscape creates a new Inkscape rasterizer
func NewInkscape(opts Options) *Inkscape {
	return &Inkscape{opts: opts, log: logger.GetLogger("rasterizer")}
}

// Name returns the name of this rasterizer
func (r *Inkscape) Name() string {
	return "inkscape"
}

// IsAvailable checks if Inkscape is available in PATH
func (r *Inkscape) IsAvailable() bool {
	return exec.LookPath("inkscape")
}

// Args returns the command line for a request, reading stdin and writing stdout.
func (r *Inkscape) Args(req Request) []string {
	args := []string{"--pipe", "--export-type=png", "--export-filename=-", "--export-area-page"}
	if req.Width > 0 {
		args = append(args, "--export-width="+strconv.Itoa(req.Width))
	}
	if req.Height > 0 {
		args = append(args, "--export-height="+strconv.Itoa(req.Height))
	}
	return args
}

// Rasterize pipes the document through Inkscape.
func (r *Inkscape) Rasterize(ctx context.Context, req Request) ([]byte, error) {
	if !r.IsAvailable() {
		return nil, NewError(r.Name(), "convert", fmt.Errorf("inkscape not found in PATH"))
	}
	return runPiped(ctx, r.Name(), r.opts, r.log, req, "inkscape", r.Args(req))
}
