// Package server exposes certificate eligibility and downloads over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/flanksource/certify"
	"github.com/flanksource/certify/api"
	"github.com/flanksource/certify/store"
	"github.com/flanksource/commons/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Certificates is the part of certify.Service the HTTP layer needs.
type Certificates interface {
	Eligibility(ctx context.Context, publicID string) (*store.Student, error)
	Certificate(ctx context.Context, publicID, format string) (*certify.Certificate, error)
}

type Server struct {
	certificates Certificates
	now          func() time.Time
	log          logger.Logger
}

// New returns the HTTP handler of the public certificate API.
func New(certificates Certificates) http.Handler {
	s := &Server{certificates: certificates, now: time.Now, log: logger.GetLogger("server")}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/health", s.health)
	r.Route("/certificate/{publicId}", func(r chi.Router) {
		r.Get("/", s.eligibility)
		r.Get("/png", s.download(api.FormatPNG))
		r.Get("/pdf", s.download(api.FormatPDF))
	})
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debugf("%s %s %d %s", r.Method, r.URL.Path, ww.Status(), time.Since(start))
	})
}

type message struct {
	Message string       `json:"message"`
	Status  store.Status `json:"status,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": s.now().UTC().Format(time.RFC3339),
	})
}

type eligibility struct {
	PublicID string       `json:"publicId"`
	Name     string       `json:"name"`
	Course   string       `json:"course"`
	Batch    string       `json:"batch"`
	Status   store.Status `json:"status"`
}

func (s *Server) eligibility(w http.ResponseWriter, r *http.Request) {
	publicID := strings.TrimSpace(chi.URLParam(r, "publicId"))
	student, err := s.certificates.Eligibility(r.Context(), publicID)
	if err != nil {
		s.error(w, publicID, student, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, eligibility{
		PublicID: student.PublicID,
		Name:     student.Name,
		Course:   student.CourseName,
		Batch:    student.Batch,
		Status:   student.Status,
	})
}

func (s *Server) download(format string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		publicID := strings.TrimSpace(chi.URLParam(r, "publicId"))
		cert, err := s.certificates.Certificate(r.Context(), publicID, format)
		if err != nil {
			var student *store.Student
			if errors.Is(err, api.ErrNotEligible) {
				student, _ = s.certificates.Eligibility(r.Context(), publicID)
			}
			s.error(w, publicID, student, err)
			return
		}
		if len(cert.Warnings) > 0 {
			s.log.Infof("%s served with warnings: %v", cert.Filename, cert.Warnings)
		}
		w.Header().Set("Content-Type", cert.ContentType)
		w.Header().Set("Content-Disposition", `attachment; filename="`+cert.Filename+`"`)
		w.Header().Set("Cache-Control", "public, max-age=86400, immutable")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(cert.Data)
	}
}

// error maps service errors onto status codes. Details stay in the logs.
func (s *Server) error(w http.ResponseWriter, publicID string, student *store.Student, err error) {
	switch {
	case errors.Is(err, api.ErrTemplateNotConfigured):
		writeJSON(w, http.StatusNotFound, message{Message: "Template not configured for this course and batch"})
	case errors.Is(err, api.ErrNotEligible):
		msg := message{Message: "Not eligible to download yet"}
		if student != nil {
			msg.Status = student.Status
		}
		writeJSON(w, http.StatusForbidden, msg)
	case api.IsTemplateAssetError(err):
		s.log.Errorf("%s: %v", publicID, err)
		writeJSON(w, http.StatusNotFound, message{Message: "Certificate template background unavailable"})
	case errors.Is(err, api.ErrNotFound):
		writeJSON(w, http.StatusNotFound, message{Message: "Certificate not found"})
	case api.IsPackagingError(err):
		s.log.Errorf("%s: %v", publicID, err)
		writeJSON(w, http.StatusInternalServerError, message{Message: "Failed to create PDF"})
	default:
		s.log.Errorf("%s: %v", publicID, err)
		writeJSON(w, http.StatusInternalServerError, message{Message: "Server error"})
	}
}
