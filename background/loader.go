// Package background resolves template background images and sniffs their format.
package background

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"

	"github.com/flanksource/certify/api"
	"github.com/flanksource/commons/logger"
)

var (
	magicPNG  = []byte{0x89, 0x50, 0x4E, 0x47}
	magicJPEG = []byte{0xFF, 0xD8, 0xFF}
	magicGIF  = []byte{0x47, 0x49, 0x46}
)

// DetectMIME sniffs the image type from the leading bytes, defaulting to image/png.
func DetectMIME(b []byte) string {
	if len(b) < 4 {
		return api.MimePNG
	}
	switch {
	case bytes.HasPrefix(b, magicPNG):
		return api.MimePNG
	case bytes.HasPrefix(b, magicJPEG):
		return api.MimeJPEG
	case bytes.HasPrefix(b, magicGIF):
		return api.MimeGIF
	default:
		return api.MimePNG
	}
}

// DataURI embeds b as a base64 data URI with its sniffed MIME type.
func DataURI(b []byte) string {
	return fmt.Sprintf("data:%s;base64,%s", DetectMIME(b), base64.StdEncoding.EncodeToString(b))
}

// ObjectStore downloads stored files by id.
type ObjectStore interface {
	Download(ctx context.Context, id string) ([]byte, error)
}

// Loader fetches background bytes for a BackgroundRef.
type Loader struct {
	Store ObjectStore
}

// NewLoader creates a loader, store may be nil when only local paths are used.
func NewLoader(store ObjectStore) *Loader {
	return &Loader{Store: store}
}

// Load returns the background bytes. Every failure is a *api.TemplateAssetError.
func (l *Loader) Load(ctx context.Context, ref api.BackgroundRef) ([]byte, error) {
	data, err := l.load(ctx, ref)
	if err != nil {
		return nil, &api.TemplateAssetError{Ref: ref, Err: err}
	}
	return data, nil
}

func (l *Loader) load(ctx context.Context, ref api.BackgroundRef) ([]byte, error) {
	if ref.IsEmpty() {
		return nil, fmt.Errorf("no background reference: %w", api.ErrNotFound)
	}

	switch ref.Kind {
	case api.BackgroundObjectStore:
		if l == nil || l.Store == nil {
			return nil, fmt.Errorf("object store not configured for %s: %w", ref.ID, api.ErrNotFound)
		}
		data, err := l.Store.Download(ctx, ref.ID)
		if err != nil {
			return nil, fmt.Errorf("download %s: %w", ref.ID, err)
		}
		if len(data) == 0 {
			return nil, fmt.Errorf("object %s is empty: %w", ref.ID, api.ErrNotFound)
		}
		logger.Debugf("loaded background %s (%d bytes)", ref, len(data))
		return data, nil

	case api.BackgroundLocalPath:
		data, err := os.ReadFile(ref.Path)
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", ref.Path, api.ErrNotFound)
		} else if err != nil {
			return nil, err
		}
		if len(data) == 0 {
			return nil, fmt.Errorf("%s is empty: %w", ref.Path, api.ErrNotFound)
		}
		logger.Debugf("loaded background %s (%d bytes)", ref, len(data))
		return data, nil
	}

	return nil, fmt.Errorf("unknown background kind %q: %w", ref.Kind, api.ErrNotFound)
}
