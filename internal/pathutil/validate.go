// Package pathutil confines client-supplied file paths to a set of root
// directories.
package pathutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrOutsideRoots is returned for paths that resolve outside every root.
var ErrOutsideRoots = errors.New("path is outside the allowed directories")

// Sandbox accepts paths that resolve, symlinks included, inside one of its
// root directories. Roots need not exist yet.
type Sandbox struct {
	roots []string
}

// NewSandbox resolves roots once. Empty entries are ignored; at least one
// root is required.
func NewSandbox(roots ...string) (*Sandbox, error) {
	s := &Sandbox{}
	for _, root := range roots {
		if root == "" {
			continue
		}
		abs, err := filepath.Abs(root)
		if err != nil {
			return nil, fmt.Errorf("resolving root %s: %w", Redact(root), err)
		}
		resolved, err := resolveExisting(abs)
		if err != nil {
			return nil, err
		}
		s.roots = append(s.roots, resolved)
	}
	if len(s.roots) == 0 {
		return nil, errors.New("sandbox needs at least one root directory")
	}
	return s, nil
}

// DataSandbox confines paths to ~/.whiteworms plus any extra roots.
func DataSandbox(extra ...string) (*Sandbox, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}
	return NewSandbox(append([]string{filepath.Join(homeDir, ".whiteworms")}, extra...)...)
}

// Roots returns the resolved root directories.
func (s *Sandbox) Roots() []string {
	return append([]string(nil), s.roots...)
}

// Resolve returns the absolute, symlink-resolved form of path, or an error
// wrapping ErrOutsideRoots when it escapes the sandbox. The file itself may
// not exist yet; its parent directories are resolved as far as they exist.
func (s *Sandbox) Resolve(path string) (string, error) {
	if path == "" {
		return "", errors.New("empty path")
	}
	if strings.ContainsRune(path, '\x00') {
		return "", errors.New("path contains null byte")
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", Redact(path), err)
	}
	dir, err := resolveExisting(filepath.Dir(abs))
	if err != nil {
		return "", err
	}
	resolved := filepath.Join(dir, filepath.Base(abs))

	for _, root := range s.roots {
		if within(resolved, root) {
			return resolved, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrOutsideRoots, Redact(abs))
}

// Redact shortens a path to .../<parent>/<base> for error messages and
// audit records, e.g. ".../.whiteworms/karate.edges".
func Redact(path string) string {
	if path == "" {
		return ""
	}
	cleaned := filepath.Clean(path)
	base := filepath.Base(cleaned)
	parent := filepath.Base(filepath.Dir(cleaned))
	if parent == "." || parent == string(filepath.Separator) {
		return base
	}
	return ".../" + parent + "/" + base
}

// resolveExisting evaluates symlinks on the deepest existing ancestor of
// dir and re-appends the missing tail.
func resolveExisting(dir string) (string, error) {
	var tail []string
	for {
		resolved, err := filepath.EvalSymlinks(dir)
		if err == nil {
			for i := len(tail) - 1; i >= 0; i-- {
				resolved = filepath.Join(resolved, tail[i])
			}
			return resolved, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("cannot resolve %s", Redact(dir))
		}
		tail = append(tail, filepath.Base(dir))
		dir = parent
	}
}

// within reports whether path is root or lies below it.
func within(path, root string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}
