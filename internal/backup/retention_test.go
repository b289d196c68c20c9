package backup

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// writeArchives creates n archives dated one day apart, newest last.
func writeArchives(t *testing.T, dir string, n int, start time.Time) {
	t.Helper()
	for i := 0; i < n; i++ {
		created := start.Add(time.Duration(i) * 24 * time.Hour)
		name := fmt.Sprintf("whiteworms-runs-%s.json.gz", created.Format("20060102-150405"))
		a := &Archive{Version: FormatVersion, CreatedAt: created, Runs: []ArchivedRun{}}
		if err := Write(filepath.Join(dir, name), a); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}
}

func TestListArchives(t *testing.T) {
	dir := t.TempDir()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	writeArchives(t, dir, 3, start)
	// Ignored: wrong prefix, and a matching name with no valid header.
	os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0600)
	os.WriteFile(filepath.Join(dir, "whiteworms-runs-bogus.json.gz"), []byte("garbage"), 0600)

	archives, err := ListArchives(dir)
	if err != nil {
		t.Fatalf("ListArchives() error = %v", err)
	}
	if len(archives) != 3 {
		t.Fatalf("got %d archives, want 3", len(archives))
	}
	if !archives[0].CreatedAt.Equal(start.Add(48 * time.Hour)) {
		t.Errorf("archives not newest-first: %v", archives[0].CreatedAt)
	}
	if archives[0].Size == 0 {
		t.Error("expected non-zero size")
	}
}

func TestListArchives_MissingDir(t *testing.T) {
	archives, err := ListArchives(filepath.Join(t.TempDir(), "absent"))
	if err != nil || archives != nil {
		t.Errorf("ListArchives() = %v, %v, want nil, nil", archives, err)
	}
}

func TestCountPolicy(t *testing.T) {
	archives := []ArchiveInfo{{Path: "a"}, {Path: "b"}, {Path: "c"}}
	if got := (&CountPolicy{MaxCount: 2}).Apply(archives); len(got) != 2 || got[1].Path != "b" {
		t.Errorf("Apply() = %v", got)
	}
	if got := (&CountPolicy{MaxCount: 5}).Apply(archives); len(got) != 3 {
		t.Errorf("Apply() = %v", got)
	}
}

func TestAgePolicy(t *testing.T) {
	now := time.Date(2026, 6, 10, 0, 0, 0, 0, time.UTC)
	archives := []ArchiveInfo{
		{Path: "new", CreatedAt: now.Add(-time.Hour)},
		{Path: "old", CreatedAt: now.Add(-10 * 24 * time.Hour)},
	}
	p := &AgePolicy{MaxAge: 7 * 24 * time.Hour, now: func() time.Time { return now }}
	got := p.Apply(archives)
	if len(got) != 1 || got[0].Path != "new" {
		t.Errorf("Apply() = %v", got)
	}
}

func TestCompositePolicy(t *testing.T) {
	now := time.Date(2026, 6, 10, 0, 0, 0, 0, time.UTC)
	archives := []ArchiveInfo{
		{Path: "a", CreatedAt: now.Add(-time.Hour)},
		{Path: "b", CreatedAt: now.Add(-2 * time.Hour)},
		{Path: "c", CreatedAt: now.Add(-30 * 24 * time.Hour)},
	}
	p := &CompositePolicy{Policies: []RetentionPolicy{
		&CountPolicy{MaxCount: 1},
		&AgePolicy{MaxAge: 24 * time.Hour, now: func() time.Time { return now }},
	}}
	got := p.Apply(archives)
	if len(got) != 2 || got[0].Path != "a" || got[1].Path != "b" {
		t.Errorf("Apply() = %v", got)
	}
}

func TestApplyRetention(t *testing.T) {
	dir := t.TempDir()
	writeArchives(t, dir, 4, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC))

	deleted, err := ApplyRetention(dir, &CountPolicy{MaxCount: 1})
	if err != nil {
		t.Fatalf("ApplyRetention() error = %v", err)
	}
	if len(deleted) != 3 {
		t.Errorf("deleted %d archives, want 3", len(deleted))
	}
	remaining, _ := ListArchives(dir)
	if len(remaining) != 1 {
		t.Fatalf("%d archives remain, want 1", len(remaining))
	}
	if want := time.Date(2026, 2, 4, 0, 0, 0, 0, time.UTC); !remaining[0].CreatedAt.Equal(want) {
		t.Errorf("kept %v, want newest %v", remaining[0].CreatedAt, want)
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"720h", 720 * time.Hour, false},
		{"30d", 30 * 24 * time.Hour, false},
		{"2w", 14 * 24 * time.Hour, false},
		{"", 0, true},
		{"x", 0, true},
		{"5y", 0, true},
		{"abcd", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDuration(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseDuration(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseDuration(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
