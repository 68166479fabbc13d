package background

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/flanksource/certify/api"
)

// DirStore serves objects from files named by id under a directory.
type DirStore struct {
	Dir string
}

// Download reads Dir/id, ids may not escape the directory.
func (s DirStore) Download(ctx context.Context, id string) ([]byte, error) {
	if id == "" || strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return nil, fmt.Errorf("invalid object id %q: %w", id, api.ErrNotFound)
	}
	data, err := os.ReadFile(filepath.Join(s.Dir, id))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("object %s: %w", id, api.ErrNotFound)
	}
	return data, err
}
