package pathutil

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func newSandbox(t *testing.T, roots ...string) *Sandbox {
	t.Helper()
	s, err := NewSandbox(roots...)
	if err != nil {
		t.Fatalf("NewSandbox() error = %v", err)
	}
	return s
}

func TestSandbox_Resolve(t *testing.T) {
	root := t.TempDir()
	other := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "networks"), 0700); err != nil {
		t.Fatal(err)
	}
	s := newSandbox(t, root)

	tests := []struct {
		name    string
		path    string
		wantErr string
	}{
		{"file in root", filepath.Join(root, "karate.edges"), ""},
		{"file in subdirectory", filepath.Join(root, "networks", "email.edges"), ""},
		{"file in missing subdirectory", filepath.Join(root, "new", "deep", "x.edges"), ""},
		{"root itself", root, ""},
		{"doubled separators", root + string(os.PathSeparator) + string(os.PathSeparator) + "karate.edges", ""},
		{"dot-dot escape", filepath.Join(root, "..", "etc", "passwd"), "outside"},
		{"embedded dot-dot escape", filepath.Join(root, "networks", "..", "..", "etc", "passwd"), "outside"},
		{"other directory", filepath.Join(other, "karate.edges"), "outside"},
		{"sibling with shared prefix", root + "-evil" + string(os.PathSeparator) + "x.edges", "outside"},
		{"empty", "", "empty"},
		{"null byte", filepath.Join(root, "kar\x00ate.edges"), "null byte"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Resolve(tt.path)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Resolve(%q) error = %v", tt.path, err)
				}
				if !filepath.IsAbs(got) {
					t.Errorf("Resolve(%q) = %q, want an absolute path", tt.path, got)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Resolve(%q) error = %v, want %q", tt.path, err, tt.wantErr)
			}
		})
	}
}

func TestSandbox_OutsideIsSentinel(t *testing.T) {
	s := newSandbox(t, t.TempDir())
	_, err := s.Resolve(filepath.Join(t.TempDir(), "x.edges"))
	if !errors.Is(err, ErrOutsideRoots) {
		t.Errorf("error = %v, want ErrOutsideRoots", err)
	}
}

func TestSandbox_MultipleRoots(t *testing.T) {
	a, b := t.TempDir(), t.TempDir()
	s := newSandbox(t, a, "", b)
	if len(s.Roots()) != 2 {
		t.Fatalf("Roots() = %v, want 2 entries", s.Roots())
	}
	if _, err := s.Resolve(filepath.Join(b, "ring.edges")); err != nil {
		t.Errorf("path in second root rejected: %v", err)
	}
}

func TestNewSandbox_NoRoots(t *testing.T) {
	if _, err := NewSandbox(); err == nil {
		t.Error("expected error without roots")
	}
	if _, err := NewSandbox("", ""); err == nil {
		t.Error("expected error with only empty roots")
	}
}

func TestSandbox_Symlinks(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlink test not supported on Windows")
	}
	root := t.TempDir()
	outside := t.TempDir()
	real := filepath.Join(root, "real")
	if err := os.MkdirAll(real, 0700); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(outside, filepath.Join(root, "escape")); err != nil {
		t.Fatalf("failed to create symlink: %v", err)
	}
	if err := os.Symlink(real, filepath.Join(root, "link")); err != nil {
		t.Fatalf("failed to create symlink: %v", err)
	}
	s := newSandbox(t, root)

	if _, err := s.Resolve(filepath.Join(root, "escape", "karate.edges")); !errors.Is(err, ErrOutsideRoots) {
		t.Errorf("symlink out of the root: error = %v, want ErrOutsideRoots", err)
	}
	got, err := s.Resolve(filepath.Join(root, "link", "karate.edges"))
	if err != nil {
		t.Fatalf("symlink inside the root rejected: %v", err)
	}
	if filepath.Base(filepath.Dir(got)) != "real" {
		t.Errorf("Resolve() = %q, want the link target", got)
	}
}

func TestSandbox_RootThroughSymlink(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlink test not supported on Windows")
	}
	real := t.TempDir()
	link := filepath.Join(t.TempDir(), "data")
	if err := os.Symlink(real, link); err != nil {
		t.Fatalf("failed to create symlink: %v", err)
	}
	s := newSandbox(t, link)
	if _, err := s.Resolve(filepath.Join(real, "karate.edges")); err != nil {
		t.Errorf("path under the resolved root rejected: %v", err)
	}
}

func TestDataSandbox(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)
	extra := t.TempDir()

	s, err := DataSandbox(extra)
	if err != nil {
		t.Fatalf("DataSandbox() error = %v", err)
	}
	if _, err := s.Resolve(filepath.Join(home, ".whiteworms", "archives", "a.json.gz")); err != nil {
		t.Errorf("path under ~/.whiteworms rejected: %v", err)
	}
	if _, err := s.Resolve(filepath.Join(extra, "ring.edges")); err != nil {
		t.Errorf("path under the extra root rejected: %v", err)
	}
	if _, err := s.Resolve(filepath.Join(home, "elsewhere.edges")); err == nil {
		t.Error("path directly under HOME should be rejected")
	}
}

func TestRedact(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"", ""},
		{"/home/user/.whiteworms/config.yaml", ".../.whiteworms/config.yaml"},
		{"/data/networks/email/edges.txt", ".../email/edges.txt"},
		{"/karate.edges", "karate.edges"},
		{"networks/karate.edges", ".../networks/karate.edges"},
		{"karate.edges", "karate.edges"},
		{"/home/user/.whiteworms/", ".../user/.whiteworms"},
	}
	for _, tt := range tests {
		if got := Redact(tt.input); got != tt.want {
			t.Errorf("Redact(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
