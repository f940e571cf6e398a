// Package storage keeps uploaded files outside the database.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/garnizeh/apptrack/internal/apperr"
)

// AllowedExtensions are the document types accepted as attachments.
var AllowedExtensions = []string{".pdf", ".doc", ".docx", ".odt", ".txt"}

// DefaultMaxUpload is the attachment size limit when none is configured.
const DefaultMaxUpload int64 = 10 << 20

// Store is an object store addressed by slash separated keys.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader) (int64, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	URL(key string) string
}

// ValidateUpload checks the file name extension and size.
func ValidateUpload(name string, size, maxSize int64) error {
	if maxSize <= 0 {
		maxSize = DefaultMaxUpload
	}
	ve := &apperr.ValidationError{}
	ext := strings.ToLower(filepath.Ext(name))
	allowed := false
	for _, a := range AllowedExtensions {
		if ext == a {
			allowed = true
			break
		}
	}
	if !allowed {
		ve.Add("file", fmt.Sprintf("file type %q is not allowed; use one of %s", ext, strings.Join(AllowedExtensions, ", ")))
	}
	if size == 0 {
		ve.Add("file", "file is empty")
	}
	if size > maxSize {
		ve.Add("file", fmt.Sprintf("file exceeds the %d MB limit", maxSize>>20))
	}
	return ve.OrNil()
}

// NewKey returns attachments/YYYY/MM/DD/<uuid><ext> for a file uploaded at t.
func NewKey(t time.Time, name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	return path.Join("attachments", t.UTC().Format("2006/01/02"), uuid.NewString()+ext)
}

// DetectContentType sniffs the MIME type from the file content.
func DetectContentType(content []byte) string {
	return mimetype.Detect(content).String()
}

// Local stores objects under a directory on disk.
type Local struct {
	root    string
	baseURL string
}

func NewLocal(root, baseURL string) (*Local, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &Local{root: root, baseURL: strings.TrimSuffix(baseURL, "/")}, nil
}

func (l *Local) path(key string) (string, error) {
	p := filepath.FromSlash(key)
	if key == "" || !filepath.IsLocal(p) {
		return "", fmt.Errorf("invalid storage key %q", key)
	}
	return filepath.Join(l.root, p), nil
}

// Put writes r to key through a temporary file so readers never see a
// partial object.
func (l *Local) Put(ctx context.Context, key string, r io.Reader) (int64, error) {
	p, err := l.path(key)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
		return 0, fmt.Errorf("create key dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(p), ".upload-*")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, &ctxReader{ctx: ctx, r: r})
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return 0, fmt.Errorf("write object: %w", err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return 0, fmt.Errorf("commit object: %w", err)
	}
	return n, nil
}

func (l *Local) Open(_ context.Context, key string) (io.ReadCloser, error) {
	p, err := l.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("object %s: %w", key, apperr.ErrNotFound)
		}
		return nil, err
	}
	return f, nil
}

// Delete removes key. Missing objects are not an error.
func (l *Local) Delete(_ context.Context, key string) error {
	p, err := l.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (l *Local) URL(key string) string {
	return l.baseURL + "/" + key
}

// ctxReader stops a copy once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
