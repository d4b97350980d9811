package archive

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/h2non/filetype"
	"github.com/maruel/natural"
	"go.uber.org/zap"
	"golang.org/x/text/encoding"
)

// maxSourceSize limits single source file, timelines are small text files.
const maxSourceSize = 16 << 20

// Source is content of a single discovered file.
type Source struct {
	// Name is path relative to the argument it was found under, or base
	// name when argument pointed to the file itself.
	Name string
	Data []byte
}

// Resolver finds source files for command line arguments.
type Resolver struct {
	// Accept filters discovered files by name, nil accepts everything.
	Accept func(name string) bool
	// NameEncoding is used to decode non UTF-8 file names in archives.
	NameEncoding encoding.Encoding

	log *zap.Logger
}

// NewResolver creates resolver.
func NewResolver(log *zap.Logger) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{log: log.Named("archive")}
}

// Resolve returns all accepted files for src, which could be a file, a
// directory or "path/archive.zip/path/in/archive". Files found under
// directories and archives are returned in natural name order.
func (r *Resolver) Resolve(ctx context.Context, src string) ([]Source, error) {
	var head, tail string
	for head = filepath.Clean(src); len(head) != 0; head, tail = filepath.Split(head) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		head = strings.TrimSuffix(head, string(filepath.Separator))
		if len(head) == 0 {
			break
		}

		fi, err := os.Stat(head)
		if err != nil {
			// does not exist, probably path in archive
			continue
		}

		if fi.IsDir() {
			if len(tail) != 0 {
				return nil, fmt.Errorf("source was not found (%s) => (%s)", head, strings.TrimPrefix(src, head))
			}
			return r.fromDir(ctx, head)
		}
		if !fi.Mode().IsRegular() {
			return nil, fmt.Errorf("unexpected path mode for %s", head)
		}

		zipped, err := isZip(head)
		if err != nil {
			return nil, fmt.Errorf("unable to check archive type: %w", err)
		}
		if zipped {
			inner := strings.TrimPrefix(strings.TrimPrefix(filepath.Clean(src), head), string(filepath.Separator))
			return r.fromArchive(ctx, head, filepath.ToSlash(inner))
		}
		if len(tail) != 0 {
			return nil, fmt.Errorf("source was not found (%s)", src)
		}
		data, err := readLimited(head)
		if err != nil {
			return nil, err
		}
		return []Source{{Name: filepath.Base(head), Data: data}}, nil
	}
	return nil, fmt.Errorf("source was not found (%s)", src)
}

func (r *Resolver) accept(name string) bool {
	return r.Accept == nil || r.Accept(name)
}

func (r *Resolver) fromDir(ctx context.Context, dir string) ([]Source, error) {
	var out []Source
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err != nil {
			r.log.Warn("Skipping path", zap.String("path", path), zap.Error(err))
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		name := strings.TrimPrefix(strings.TrimPrefix(path, dir), string(filepath.Separator))
		if !r.accept(name) {
			r.log.Debug("Skipping file", zap.String("file", path))
			return nil
		}
		data, err := readLimited(path)
		if err != nil {
			return err
		}
		out = append(out, Source{Name: name, Data: data})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortSources(out)
	return out, nil
}

func (r *Resolver) fromArchive(ctx context.Context, path, prefix string) ([]Source, error) {
	var out []Source
	err := Walk(path, prefix, func(archive string, f *zip.File) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		name := f.Name
		if r.NameEncoding != nil && f.NonUTF8 {
			if n, err := r.NameEncoding.NewDecoder().String(name); err == nil {
				name = n
			} else {
				r.log.Warn("Unable to convert archive name", zap.String("path", name), zap.Error(err))
			}
		}
		if !r.accept(name) {
			r.log.Debug("Skipping file in archive", zap.String("archive", archive), zap.String("file", name))
			return nil
		}
		if f.UncompressedSize64 > maxSourceSize {
			return fmt.Errorf("%s: file %s is too big", archive, name)
		}
		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("%s: unable to open %s: %w", archive, name, err)
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		if err != nil {
			return fmt.Errorf("%s: unable to read %s: %w", archive, name, err)
		}
		out = append(out, Source{Name: name, Data: data})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortSources(out)
	return out, nil
}

func sortSources(out []Source) {
	slices.SortStableFunc(out, func(a, b Source) int {
		switch {
		case natural.Less(a.Name, b.Name):
			return -1
		case natural.Less(b.Name, a.Name):
			return 1
		}
		return 0
	})
}

func isZip(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	head := make([]byte, 262)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return false, err
	}
	return filetype.Is(head[:n], "zip"), nil
}

func readLimited(path string) ([]byte, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if fi.Size() > maxSourceSize {
		return nil, fmt.Errorf("file %s is too big", path)
	}
	return os.ReadFile(path)
}
