// Package pathutil converts between file system paths and the slash-separated,
// root-relative form used to name units.
//
// The index stores relative paths so that an index file stays valid when the
// project is moved or checked out elsewhere. Paths are converted back to
// absolute form only at the file system boundary.
package pathutil

import (
	"path/filepath"
	"strings"
)

// ToRelative converts path to a slash-separated path relative to rootDir.
// Relative inputs are taken to be relative to rootDir already. Paths outside
// the root, or that cannot be related to it, keep their absolute form.
//
// Examples:
//   - ToRelative("/home/user/project/src/main.go", "/home/user/project") → "src/main.go"
//   - ToRelative("/other/location/file.go", "/home/user/project") → "/other/location/file.go"
//   - ToRelative("src/main.go", "/home/user/project") → "src/main.go"
func ToRelative(path, rootDir string) string {
	if path == "" || rootDir == "" {
		return filepath.ToSlash(path)
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(rootDir, path)
	}
	path = filepath.Clean(path)

	rel, err := filepath.Rel(filepath.Clean(rootDir), path)
	if err != nil || IsOutside(rel) {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

// ToAbsolute is the inverse of ToRelative
func ToAbsolute(rel, rootDir string) string {
	p := filepath.FromSlash(rel)
	if filepath.IsAbs(p) || rootDir == "" {
		return p
	}
	return filepath.Join(rootDir, p)
}

// IsOutside reports whether a path produced by filepath.Rel escapes its base
func IsOutside(rel string) bool {
	return rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
