// Package scratch owns the directory where per-request cookie files and
// reupload temp files live. Nothing in it survives a request; Sweep removes
// leftovers from crashed runs.
package scratch

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Dir is a scratch directory rooted at a fixed path.
type Dir struct {
	root string
}

// New creates root (mode 0700) when missing and returns a Dir over it.
func New(root string) (*Dir, error) {
	if root == "" {
		return nil, fmt.Errorf("scratch dir is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o700); err != nil {
		return nil, err
	}
	return &Dir{root: abs}, nil
}

// Root returns the absolute directory path.
func (d *Dir) Root() string { return d.root }

// WriteFile creates a new file named name holding data. It fails if the name
// is already taken so two requests can never end up sharing one file.
func (d *Dir) WriteFile(name string, data []byte, perm os.FileMode) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("invalid scratch name %q", name)
	}

	dst := filepath.Join(d.root, name)
	f, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return "", err
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		_ = os.Remove(dst)
		return "", err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(dst)
		return "", err
	}
	return dst, nil
}

// CreateTemp opens a new uniquely named file for a streaming download.
func (d *Dir) CreateTemp(pattern string) (*os.File, error) {
	return os.CreateTemp(d.root, pattern)
}

// Open returns a scratch file with its detected content type and size.
func (d *Dir) Open(path string) (rc io.ReadCloser, contentType string, size int64, err error) {
	if !d.contains(path) {
		return nil, "", 0, fmt.Errorf("path %q is outside scratch dir", path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, "", 0, err
	}

	if st, statErr := f.Stat(); statErr == nil {
		size = st.Size()
	}

	// Prefer extension-based type. If empty, sniff first bytes.
	contentType = mime.TypeByExtension(filepath.Ext(path))
	if contentType == "" {
		buf := make([]byte, 512)
		n, _ := f.Read(buf)
		_, _ = f.Seek(0, io.SeekStart)
		contentType = http.DetectContentType(buf[:n])
	}

	return f, contentType, size, nil
}

// Remove deletes a scratch file. Missing files are not an error.
func (d *Dir) Remove(path string) error {
	if !d.contains(path) {
		return fmt.Errorf("path %q is outside scratch dir", path)
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// List returns the names of the files currently in the directory.
func (d *Dir) List() ([]string, error) {
	entries, err := os.ReadDir(d.root)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// Sweep removes regular files last modified before now-olderThan and returns
// how many were removed. A zero olderThan removes everything.
func (d *Dir) Sweep(ctx context.Context, olderThan time.Duration) (int, error) {
	entries, err := os.ReadDir(d.root)
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-olderThan)
	removed := 0
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if olderThan > 0 && info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(d.root, e.Name())); err == nil {
			removed++
		}
	}
	return removed, nil
}

func (d *Dir) contains(path string) bool {
	rel, err := filepath.Rel(d.root, filepath.Clean(path))
	return err == nil && rel != "." && !strings.HasPrefix(rel, "..")
}
