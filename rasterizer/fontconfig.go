package rasterizer

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"

	"github.com/samber/lo"
)

// fontConfig writes a fontconfig file that only knows the directories of the given
// font files, so external renderers never fall back to whatever fonts the host has.
// The returned cleanup removes the temporary files.
func fontConfig(fontFiles []string) (env map[string]string, cleanup func(), err error) {
	dir, err := os.MkdirTemp("", "certify-fontconfig-*")
	if err != nil {
		return nil, nil, err
	}
	cleanup = func() { _ = os.RemoveAll(dir) }

	dirs := lo.Uniq(lo.Map(fontFiles, func(f string, _ int) string {
		abs, err := filepath.Abs(f)
		if err != nil {
			abs = f
		}
		return filepath.Dir(abs)
	}))

	var buf bytes.Buffer
	buf.WriteString(`<?xml version="1.0"?>` + "\n")
	buf.WriteString(`<!DOCTYPE fontconfig SYSTEM "fonts.dtd">` + "\n")
	buf.WriteString("<fontconfig>\n")
	for _, d := range dirs {
		buf.WriteString("  <dir>")
		if err := xml.EscapeText(&buf, []byte(d)); err != nil {
			cleanup()
			return nil, nil, err
		}
		buf.WriteString("</dir>\n")
	}
	fmt.Fprintf(&buf, "  <cachedir>%s</cachedir>\n", filepath.Join(dir, "cache"))
	buf.WriteString("</fontconfig>\n")

	path := filepath.Join(dir, "fonts.conf")
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		cleanup()
		return nil, nil, err
	}
	return map[string]string{"FONTCONFIG_FILE": path}, cleanup, nil
}
