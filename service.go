// Package certify renders course completion certificates from stored templates and
// student records, as PNG or single page PDF.
package certify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/flanksource/certify/api"
	"github.com/flanksource/certify/background"
	"github.com/flanksource/certify/cache"
	"github.com/flanksource/certify/fonts"
	"github.com/flanksource/certify/packager"
	"github.com/flanksource/certify/rasterizer"
	"github.com/flanksource/certify/render"
	"github.com/flanksource/certify/store"
	"github.com/flanksource/commons/logger"
	"github.com/samber/lo"
)

// Certificate is a rendered document ready to be served or written.
type Certificate struct {
	Data        []byte          `json:"-"`
	Format      string          `json:"format"`
	ContentType string          `json:"contentType"`
	Filename    string          `json:"filename"`
	Strategy    render.Strategy `json:"strategy,omitempty"`
	Warnings    []api.Warning   `json:"warnings,omitempty"`
	Cached      bool            `json:"cached,omitempty"`
}

// Service ties the store, the cache and the render core together.
type Service struct {
	Config   Config
	Store    *store.Store
	Cache    cache.Cache
	Fonts    *fonts.Resolver
	Renderer *render.Renderer
	Packager *packager.Packager
	Now      func() time.Time

	closers []func() error
	log     logger.Logger
}

// NewRenderer builds the render core from config: font resolver, background loader and
// the primary rasterizer chain.
func NewRenderer(config Config) (*render.Renderer, *fonts.Resolver, error) {
	resolver := fonts.NewResolver(config.Fonts.Roots...)
	if config.Fonts.File != "" {
		resolver.FileName = config.Fonts.File
	}
	if config.Fonts.Family != "" {
		resolver.Family = config.Fonts.Family
	}

	var objects background.ObjectStore
	switch {
	case !config.Appwrite.IsEmpty():
		appwrite, err := background.NewAppwriteStore(config.Appwrite)
		if err != nil {
			return nil, nil, err
		}
		objects = appwrite
	case config.BackgroundDir != "":
		objects = background.DirStore{Dir: config.BackgroundDir}
	}

	var primary rasterizer.Rasterizer
	if !lo.Contains(config.Rasterizers.Order, "none") {
		types := lo.Map(config.Rasterizers.Order, func(s string, _ int) rasterizer.Type {
			return rasterizer.Type(strings.ToLower(strings.TrimSpace(s)))
		})
		chain, err := rasterizer.NewChainFromTypes(types, config.Rasterizers.Options)
		if err != nil {
			return nil, nil, err
		}
		primary = chain
	}

	return render.New(resolver, background.NewLoader(objects), primary), resolver, nil
}

// NewRenderService builds a service that renders templates given directly, without a
// store or cache. Close releases the rasterizers.
func NewRenderService(config Config) (*Service, error) {
	renderer, resolver, err := NewRenderer(config)
	if err != nil {
		return nil, err
	}
	return &Service{
		Config:   config,
		Fonts:    resolver,
		Renderer: renderer,
		Packager: packager.New(renderer),
		Now:      time.Now,
		closers:  []func() error{renderer.Close},
		log:      logger.GetLogger("certify"),
	}, nil
}

// NewService opens the store and cache named by config and builds the renderer.
func NewService(config Config) (*Service, error) {
	s := &Service{Config: config, Now: time.Now, log: logger.GetLogger("certify")}

	renderer, resolver, err := NewRenderer(config)
	if err != nil {
		return nil, err
	}
	s.Renderer, s.Fonts = renderer, resolver
	s.Packager = packager.New(renderer)
	s.closers = append(s.closers, renderer.Close)

	db, err := store.Open(config.Database)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	s.Store = db
	s.closers = append(s.closers, db.Close)

	c, err := cache.New(config.Cache)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	s.Cache = c
	s.closers = append(s.closers, c.Close)

	return s, nil
}

// Close releases the store, the cache and any rasterizer processes.
func (s *Service) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	s.closers = nil
	return errors.Join(errs...)
}

// Eligibility returns the student if they may download their certificate. Unknown
// students wrap api.ErrNotFound, incomplete ones api.ErrNotEligible.
func (s *Service) Eligibility(ctx context.Context, publicID string) (*store.Student, error) {
	publicID = strings.TrimSpace(publicID)
	student, err := s.Store.Student(ctx, publicID)
	if err != nil {
		return nil, err
	}
	if !student.Eligible() {
		return student, fmt.Errorf("student %s is %s: %w", publicID, student.Status, api.ErrNotEligible)
	}
	return student, nil
}

// Certificate renders the certificate of an eligible student in format (png or pdf).
// Results of the primary rasterizer are cached per student, format and template version.
func (s *Service) Certificate(ctx context.Context, publicID, format string) (*Certificate, error) {
	format, err := normalizeFormat(format)
	if err != nil {
		return nil, err
	}
	student, err := s.Eligibility(ctx, publicID)
	if err != nil {
		return nil, err
	}

	tpl, err := s.Store.Template(ctx, student.Course, student.Batch)
	if errors.Is(err, api.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", store.TemplateID(student.Course, student.Batch), api.ErrTemplateNotConfigured)
	}
	if err != nil {
		return nil, err
	}

	filename := fmt.Sprintf("%s.%s", student.PublicID, format)
	key := cache.Key(student.PublicID, format, fmt.Sprint(tpl.Version))
	if s.Cache != nil {
		data, ok, err := s.Cache.Get(ctx, key)
		if err != nil {
			s.log.Warnf("cache get %s: %v", key, err)
		}
		if ok {
			return &Certificate{Data: data, Format: format, ContentType: api.ContentType(format), Filename: filename, Cached: true}, nil
		}
	}

	cert, err := s.Render(ctx, tpl.Descriptor, store.PayloadFor(*student, s.now()), format)
	if err != nil {
		return nil, err
	}
	cert.Filename = filename

	if s.Cache != nil && cert.Strategy == render.StrategyPrimary {
		if err := s.Cache.Set(ctx, key, cert.Data, s.Config.Cache.TTL); err != nil {
			s.log.Warnf("cache set %s: %v", key, err)
		}
	}
	return cert, nil
}

// Render renders a template with an explicit payload.
func (s *Service) Render(ctx context.Context, tpl api.TemplateDescriptor, payload api.Payload, format string) (*Certificate, error) {
	format, err := normalizeFormat(format)
	if err != nil {
		return nil, err
	}
	cert := &Certificate{Format: format, ContentType: api.ContentType(format)}

	var result *render.Result
	if format == api.FormatPDF {
		doc, err := s.Packager.RenderPDF(ctx, tpl, payload)
		if err != nil {
			return nil, err
		}
		cert.Data, result = doc.PDF, doc.Image
	} else {
		result, err = s.Renderer.RenderPNG(ctx, tpl, payload)
		if err != nil {
			return nil, err
		}
		cert.Data = result.PNG
	}
	cert.Strategy, cert.Warnings = result.Strategy, result.Warnings
	return cert, nil
}

func (s *Service) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

func normalizeFormat(format string) (string, error) {
	switch f := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(format), ".")); f {
	case "", api.FormatPNG:
		return api.FormatPNG, nil
	case api.FormatPDF:
		return api.FormatPDF, nil
	default:
		return "", fmt.Errorf("unsupported format %q", format)
	}
}
