package upload

import (
	"archive/tar"
	"bufio"
	"bytes"
	"compress/bzip2"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// Item is one object to upload.
type Item struct {
	Key  string
	Path string // local path, or member name inside an archive
	Size int64

	archive  string // set for members of an uncompressed tar
	offset   int64
	content  []byte // set for members of a compressed tar
	attempts int
}

// Content returns the item's bytes.
func (it *Item) Content() ([]byte, error) {
	switch {
	case it.content != nil:
		return it.content, nil
	case it.archive != "":
		f, err := os.Open(it.archive)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		buf := make([]byte, it.Size)
		if n, err := f.ReadAt(buf, it.offset); n < len(buf) {
			return nil, fmt.Errorf("reading %s from %s: %w", it.Path, it.archive, err)
		}
		return buf, nil
	default:
		return os.ReadFile(it.Path)
	}
}

// Walker emits an Item for every file found under source.
type Walker func(ctx context.Context, source, prefix string, emit func(*Item) error) error

// WalkerFor returns the walker named by mode.
func WalkerFor(mode string) (Walker, error) {
	switch mode {
	case "", "filesystem":
		return WalkFilesystem, nil
	case "tar":
		return WalkTar, nil
	}
	return nil, fmt.Errorf("unknown walk mode %q (want filesystem or tar)", mode)
}

// KeyFor joins prefix and a local path into an object key.
func KeyFor(prefix, p string) string {
	key := path.Clean(path.Join(prefix, filepath.ToSlash(p)))
	return strings.TrimPrefix(key, "/")
}

// WalkFilesystem emits every regular file under source, or source itself
// when it is a file.
func WalkFilesystem(ctx context.Context, source, prefix string, emit func(*Item) error) error {
	info, err := os.Stat(source)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return emit(&Item{Key: KeyFor(prefix, source), Path: source, Size: info.Size()})
	}

	return filepath.WalkDir(source, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		// Stat follows symlinks.
		fi, err := os.Stat(p)
		if err != nil || !fi.Mode().IsRegular() {
			return nil
		}
		return emit(&Item{Key: KeyFor(prefix, p), Path: p, Size: fi.Size()})
	})
}

// WalkTar emits the regular files of a tar archive. Members of an
// uncompressed archive are read back by offset when uploaded; members of
// gzip or bzip2 archives are held in memory.
func WalkTar(ctx context.Context, source, prefix string, emit func(*Item) error) error {
	f, err := os.Open(source)
	if err != nil {
		return err
	}
	defer f.Close()

	br := bufio.NewReader(f)
	magic, _ := br.Peek(3)
	var r io.Reader
	compressed := true
	switch {
	case bytes.HasPrefix(magic, []byte{0x1f, 0x8b}):
		zr, err := gzip.NewReader(br)
		if err != nil {
			return fmt.Errorf("opening %s: %w", source, err)
		}
		defer zr.Close()
		r = zr
	case bytes.HasPrefix(magic, []byte("BZh")):
		r = bzip2.NewReader(br)
	default:
		// Unbuffered so the count below is the exact data offset.
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return err
		}
		r = f
		compressed = false
	}

	cr := &countingReader{r: r}
	tr := tar.NewReader(cr)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading %s: %w", source, err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}

		it := &Item{Key: KeyFor(prefix, hdr.Name), Path: hdr.Name, Size: hdr.Size}
		if compressed {
			it.content, err = io.ReadAll(tr)
			if err != nil {
				return fmt.Errorf("reading %s from %s: %w", hdr.Name, source, err)
			}
			if it.content == nil {
				it.content = []byte{}
			}
		} else {
			it.archive = source
			it.offset = cr.n
		}
		if err := emit(it); err != nil {
			return err
		}
	}
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// Relative wraps a filesystem walker so keys are built from paths
// relative to each source instead of the source path itself.
func Relative(w Walker) Walker {
	return func(ctx context.Context, source, prefix string, emit func(*Item) error) error {
		return w(ctx, source, prefix, func(it *Item) error {
			rel, err := filepath.Rel(source, it.Path)
			if err != nil {
				return err
			}
			if rel == "." {
				rel = filepath.Base(it.Path)
			}
			it.Key = KeyFor(prefix, rel)
			return emit(it)
		})
	}
}
