// Package fonts locates the embeddable multilingual font used by certificates and
// builds raster font faces for the in-process compositing path.
package fonts

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/flanksource/commons/logger"
	"github.com/samber/lo"
	"golang.org/x/image/font/opentype"
)

const (
	DefaultFileName = "NotoSansEthiopic-VariableFont_wdth,wght.ttf"
	DefaultFamily   = "NotoSansEthiopic"
)

// GenericFamilies is appended after the embeddable family, or used alone when no font is found.
var GenericFamilies = []string{"DejaVu Sans", "Verdana", "Arial", "sans-serif"}

// FontAsset is a loaded font file, safe to share between concurrent renders.
type FontAsset struct {
	Path   string
	Family string
	Data   []byte

	parsed *opentype.Font
}

// CSS returns an @font-face rule with the font bytes embedded as a data URI.
func (f *FontAsset) CSS() string {
	if f == nil {
		return ""
	}
	return fmt.Sprintf("@font-face { font-family: '%s'; src: url('data:font/ttf;base64,%s') format('truetype'); font-weight: 100 900; font-style: normal; font-display: swap; }",
		f.Family, base64.StdEncoding.EncodeToString(f.Data))
}

// Dir is the directory containing the font file.
func (f *FontAsset) Dir() string {
	if f == nil {
		return ""
	}
	return filepath.Dir(f.Path)
}

// Parsed reports whether the font could be parsed for raster drawing.
func (f *FontAsset) Parsed() bool {
	return f != nil && f.parsed != nil
}

// FamilyChain returns the font-family list used in text nodes, with the asset's family first if present.
func FamilyChain(asset *FontAsset) []string {
	if asset == nil || asset.Family == "" {
		return GenericFamilies
	}
	return append([]string{asset.Family}, GenericFamilies...)
}

// FamilyList joins FamilyChain for a font-family attribute.
func FamilyList(asset *FontAsset) string {
	return strings.Join(FamilyChain(asset), ", ")
}

// Resolver searches an ordered list of directories for the font file and
// memoizes the first successful load.
type Resolver struct {
	Roots    []string
	FileName string
	Family   string

	mu     sync.Mutex
	cached *FontAsset
	log    logger.Logger
}

// NewResolver creates a resolver, empty roots fall back to DefaultRoots.
func NewResolver(roots ...string) *Resolver {
	return &Resolver{
		Roots:    lo.Ternary(len(roots) > 0, roots, DefaultRoots()),
		FileName: DefaultFileName,
		Family:   DefaultFamily,
		log:      logger.GetLogger("fonts"),
	}
}

// DefaultRoots covers the layouts the service is deployed with: a fonts folder in the
// working directory, next to the binary, and two levels above the binary.
func DefaultRoots() []string {
	roots := []string{}
	if cwd, err := os.Getwd(); err == nil {
		roots = append(roots, filepath.Join(cwd, "fonts"))
	}
	if exe, err := os.Executable(); err == nil {
		dir := filepath.Dir(exe)
		roots = append(roots, filepath.Join(dir, "..", "..", "fonts"), filepath.Join(dir, "fonts"))
	}
	return lo.Uniq(roots)
}

// Candidates lists the file paths probed, in order.
func (r *Resolver) Candidates() []string {
	name := lo.Ternary(r.FileName != "", r.FileName, DefaultFileName)
	return lo.Map(r.Roots, func(root string, _ int) string {
		return filepath.Join(root, name)
	})
}

// Resolve returns the font asset, or false when none of the candidates exist.
// A miss is logged as FontAssetMissing and probed again on the next call.
func (r *Resolver) Resolve(ctx context.Context) (*FontAsset, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cached != nil {
		return r.cached, true
	}
	if r.log == nil {
		r.log = logger.GetLogger("fonts")
	}

	for _, candidate := range r.Candidates() {
		if ctx.Err() != nil {
			return nil, false
		}
		info, err := os.Stat(candidate)
		if err != nil || info.IsDir() {
			continue
		}
		asset, err := r.load(candidate)
		if err != nil {
			r.log.Warnf("FontAssetMissing: failed to read %s: %v", candidate, err)
			continue
		}
		r.log.Infof("loaded font %s from %s (%d bytes)", asset.Family, asset.Path, len(asset.Data))
		r.cached = asset
		return asset, true
	}

	r.log.Warnf("FontAssetMissing: %s not found in %v, using %s", r.FileName, r.Candidates(), strings.Join(GenericFamilies, ", "))
	return nil, false
}

// Reset drops the memoized font so the next Resolve probes the filesystem again.
func (r *Resolver) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cached = nil
}

func (r *Resolver) load(path string) (*FontAsset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty font file")
	}
	asset := &FontAsset{
		Path:   path,
		Family: lo.Ternary(r.Family != "", r.Family, DefaultFamily),
		Data:   data,
	}
	if parsed, err := opentype.Parse(data); err != nil {
		r.log.Debugf("font %s cannot be parsed for raster drawing: %v", path, err)
	} else {
		asset.parsed = parsed
	}
	return asset, nil
}

// Load reads a single font file without any search, for callers that already know the path.
func Load(path, family string) (*FontAsset, error) {
	r := &Resolver{Family: family, log: logger.GetLogger("fonts")}
	return r.load(path)
}
