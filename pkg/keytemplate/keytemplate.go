// Package keytemplate renders cache key templates for dynamic cache
// invalidation. A template like
//
//	deps-v1-{{ checksum "environment.yml" }}
//
// embeds a cryptographic hash of the referenced file, so a changed dependency
// spec produces a different key on the next run. Rendering is deterministic:
// identical template plus byte-identical referenced files always yield the
// same key.
package keytemplate

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"
)

// Render expands a cache key template. File references inside checksum calls
// are resolved relative to dir.
func Render(templateStr string, dir string) (string, error) {
	tmpl, err := template.
		New("cachekey").
		Funcs(template.FuncMap{
			"checksum": func(path string) (string, error) {
				return checksumFile(filepath.Join(dir, path))
			},
			"env": os.Getenv,
		}).Parse(templateStr)
	if err != nil {
		return "", fmt.Errorf("failed to parse cache key template '%s': %w", templateStr, err)
	}

	var buf strings.Builder

	err = tmpl.Execute(&buf, nil)
	if err != nil {
		return "", fmt.Errorf("failed to render cache key template '%s': %w", templateStr, err)
	}

	return strings.TrimSpace(buf.String()), nil
}

func checksumFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read checksum file: %w", err)
	}

	sum := sha256.Sum256(data)

	return hex.EncodeToString(sum[:]), nil
}
