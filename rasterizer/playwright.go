package rasterizer

import (
	"context"
	"fmt"
	"sync"

	"github.com/flanksource/commons/logger"
	"github.com/playwright-community/playwright-go"
)

// Playwright rasterizes by screenshotting the document in headless Chromium.
// The browser is started on first use and shared until Close.
type Playwright struct {
	opts    Options
	log     logger.Logger
	mu      sync.Mutex
	pw      *playwright.Playwright
	browser playwright.Browser
}

// NewPlaywright creates a new Playwright rasterizer
func NewPlaywright(opts Options) *Playwright {
	return &Playwright{opts: opts, log: logger.GetLogger("rasterizer")}
}

// Name returns the name of this rasterizer
func (r *Playwright) Name() string {
	return "playwright"
}

// IsAvailable is always true, the driver and browser are resolved lazily
func (r *Playwright) IsAvailable() bool {
	return true
}

// HTML wraps the document in a page with no margins and the font rule preloaded.
func HTML(req Request) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
    <meta charset="utf-8">
    <style>
        %s
        html, body { margin: 0; padding: 0; overflow: hidden; }
        svg { display: block; }
    </style>
</head>
<body>
%s
</body>
</html>`, req.FontCSS, stripXMLDecl(req.SVG))
}

func (r *Playwright) start() (playwright.Browser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.browser != nil {
		return r.browser, nil
	}

	if r.opts.InstallBrowsers {
		if err := playwright.Install(&playwright.RunOptions{
			Browsers: []string{"chromium"},
		}); err != nil {
			return nil, NewError(r.Name(), "install browsers", err)
		}
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, NewError(r.Name(), "start playwright", err)
	}

	browser, err := pw.Chromium.Launch()
	if err != nil {
		_ = pw.Stop()
		return nil, NewError(r.Name(), "launch browser", err)
	}
	r.pw = pw
	r.browser = browser
	r.log.Infof("started chromium %s for rasterizing", browser.Version())
	return browser, nil
}

// Rasterize loads the document into a fresh page sized to the canvas and screenshots it.
func (r *Playwright) Rasterize(ctx context.Context, req Request) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, NewError(r.Name(), "convert", err)
	}
	browser, err := r.start()
	if err != nil {
		return nil, err
	}

	page, err := browser.NewPage()
	if err != nil {
		return nil, NewError(r.Name(), "create page", err)
	}
	defer page.Close()

	if req.Width > 0 && req.Height > 0 {
		if err := page.SetViewportSize(req.Width, req.Height); err != nil {
			return nil, NewError(r.Name(), "set viewport", err)
		}
	}

	if err := page.SetContent(HTML(req)); err != nil {
		return nil, NewError(r.Name(), "set content", err)
	}
	if _, err := page.Evaluate("document.fonts.ready.then(() => true)"); err != nil {
		r.log.Debugf("waiting for fonts failed: %v", err)
	}

	png, err := page.Screenshot(playwright.PageScreenshotOptions{
		Type: playwright.ScreenshotTypePng,
	})
	if err != nil {
		return nil, NewError(r.Name(), "screenshot PNG", err)
	}
	return png, nil
}

// Close closes the browser and Playwright instance
func (r *Playwright) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.browser != nil {
		if err := r.browser.Close(); err != nil {
			return err
		}
		r.browser = nil
	}

	if r.pw != nil {
		if err := r.pw.Stop(); err != nil {
			return err
		}
		r.pw = nil
	}

	return nil
}
