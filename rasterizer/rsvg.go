package rasterizer

import (
	"context"
	"fmt"
	"strconv"

	"github.com/flanksource/certify/exec"
	"github.com/flanksource/commons/logger"
)

// RSVG rasterizes with librsvg's rsvg-convert.
type RSVG struct {
	opts Options
	log  logger.Logger
}

// NewRSVG creates a new rsvg-convert rasterizer
func NewRSVG(opts Options) *RSVG {
	return &RSVG{opts: opts, log: logger.GetLogger("rasterizer")}
}

// Name returns the name of this rasterizer
func (r *RSVG) Name() string {
	return "rsvg-convert"
}

// IsAvailable checks if rsvg-convert is available in PATH
func (r *RSVG) IsAvailable() bool {
	return exec.LookPath("rsvg-convert")
}

// Args returns the command line for a request, the document is read from stdin.
func (r *RSVG) Args(req Request) []string {
	args := []string{"--format=png", "--unlimited"}
	if req.Width > 0 {
		args = append(args, "--width="+strconv.Itoa(req.Width))
	}
	if req.Height > 0 {
		args = append(args, "--height="+strconv.Itoa(req.Height))
	}
	return args
}

// Rasterize pipes the document through rsvg-convert. When font files are given
// fontconfig is pointed at them only.
func (r *RSVG) Rasterize(ctx context.Context, req Request) ([]byte, error) {
	if !r.IsAvailable() {
		return nil, NewError(r.Name(), "convert", fmt.Errorf("rsvg-convert not found in PATH"))
	}
	return runPiped(ctx, r.Name(), r.opts, r.log, req, "rsvg-convert", r.Args(req))
}

func runPiped(ctx context.Context, name string, opts Options, log logger.Logger, req Request, bin string, args []string) ([]byte, error) {
	ctx, cancel := withTimeout(ctx, opts.Timeout)
	defer cancel()

	p := exec.New(bin, args...).WithStdin(req.SVG).WithLogger(log)
	if len(req.FontFiles) > 0 {
		env, cleanup, err := fontConfig(req.FontFiles)
		if err != nil {
			return nil, NewError(name, "fontconfig", err)
		}
		defer cleanup()
		p = p.WithEnv(env)
	}

	p = p.Run(ctx)
	if err := p.Error(); err != nil {
		return nil, NewError(name, "convert", err)
	}
	if p.Stdout.Len() == 0 {
		return nil, NewError(name, "convert", fmt.Errorf("no output"))
	}
	return p.Stdout.Bytes(), nil
}
