package archive

import (
	"archive/zip"
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"go.uber.org/zap/zaptest"
)

func writeZip(t *testing.T, path string, files map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Failed to create zip file: %v", err)
	}
	defer f.Close()
	w := zip.NewWriter(f)
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		fw, err := w.Create(name)
		if err != nil {
			t.Fatalf("Failed to create %s in zip: %v", name, err)
		}
		if _, err := fw.Write([]byte(files[name])); err != nil {
			t.Fatalf("Failed to write %s: %v", name, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestWalk(t *testing.T) {
	zipPath := filepath.Join(t.TempDir(), "test.zip")
	writeZip(t, zipPath, map[string]string{
		"day1/p1.csv": "0,a",
		"day1/p2.csv": "0,b",
		"day2/p1.csv": "0,c",
		"notes.txt":   "x",
	})

	tests := []struct {
		name   string
		prefix string
		want   []string
	}{
		{"prefix", "day1/", []string{"day1/p1.csv", "day1/p2.csv"}},
		{"no match", "day3/", nil},
		{"everything", "", []string{"day1/p1.csv", "day1/p2.csv", "day2/p1.csv", "notes.txt"}},
		{"case sensitive", "DAY1/", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var visited []string
			err := Walk(zipPath, tt.prefix, func(archive string, f *zip.File) error {
				if archive != zipPath {
					t.Errorf("archive = %s, want %s", archive, zipPath)
				}
				visited = append(visited, f.Name)
				return nil
			})
			if err != nil {
				t.Fatalf("Walk() error = %v", err)
			}
			if !slices.Equal(visited, tt.want) {
				t.Errorf("visited %v, want %v", visited, tt.want)
			}
		})
	}

	t.Run("walkFn error stops", func(t *testing.T) {
		stop := errors.New("stop")
		calls := 0
		err := Walk(zipPath, "", func(string, *zip.File) error {
			calls++
			return stop
		})
		if !errors.Is(err, stop) || calls != 1 {
			t.Errorf("Walk() = %v after %d calls", err, calls)
		}
	})
}

func TestWalk_InvalidArchive(t *testing.T) {
	if err := Walk("/nonexistent/file.zip", "", func(string, *zip.File) error { return nil }); err == nil {
		t.Error("expected error for nonexistent file")
	}
	bad := filepath.Join(t.TempDir(), "bad.zip")
	if err := os.WriteFile(bad, []byte("not a zip"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := Walk(bad, "", func(string, *zip.File) error { return nil }); err == nil {
		t.Error("expected error for invalid zip")
	}
}

func TestWalk_UnsafePath(t *testing.T) {
	zipPath := filepath.Join(t.TempDir(), "slip.zip")
	writeZip(t, zipPath, map[string]string{"../evil.csv": "0,x"})
	err := Walk(zipPath, "", func(string, *zip.File) error { return nil })
	if err == nil {
		t.Error("Walk() accepted path traversal")
	}
}

func TestResolve(t *testing.T) {
	dir := t.TempDir()
	parts := filepath.Join(dir, "parts")
	if err := os.MkdirAll(parts, 0o755); err != nil {
		t.Fatal(err)
	}
	for name, data := range map[string]string{"p10.csv": "10", "p2.csv": "2", "p1.csv": "1", "readme.md": "-"} {
		if err := os.WriteFile(filepath.Join(parts, name), []byte(data), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	zipPath := filepath.Join(dir, "live.zip")
	writeZip(t, zipPath, map[string]string{"a/p10.pbf": "10", "a/p9.pbf": "9", "b/p1.pbf": "1"})

	r := NewResolver(zaptest.NewLogger(t))
	r.Accept = func(name string) bool { return !strings.HasSuffix(name, ".md") }
	ctx := context.Background()

	names := func(src []Source) []string {
		var out []string
		for _, s := range src {
			out = append(out, s.Name+"="+string(s.Data))
		}
		return out
	}

	tests := []struct {
		name string
		src  string
		want []string
	}{
		{"file", filepath.Join(parts, "p2.csv"), []string{"p2.csv=2"}},
		{"directory", parts, []string{"p1.csv=1", "p2.csv=2", "p10.csv=10"}},
		{"archive", zipPath, []string{"a/p9.pbf=9", "a/p10.pbf=10", "b/p1.pbf=1"}},
		{"path in archive", filepath.Join(zipPath, "a"), []string{"a/p9.pbf=9", "a/p10.pbf=10"}},
		{"file in archive", filepath.Join(zipPath, "b", "p1.pbf"), []string{"b/p1.pbf=1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Resolve(ctx, tt.src)
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if !slices.Equal(names(got), tt.want) {
				t.Errorf("Resolve() = %v, want %v", names(got), tt.want)
			}
		})
	}

	for _, src := range []string{filepath.Join(dir, "missing.csv"), filepath.Join(parts, "p1.csv", "inner")} {
		if _, err := r.Resolve(ctx, src); err == nil {
			t.Errorf("Resolve(%s) expected error", src)
		}
	}
}
