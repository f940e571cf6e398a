package storage_test

import (
	"context"
	"errors"
	"io"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/garnizeh/apptrack/internal/apperr"
	"github.com/garnizeh/apptrack/internal/storage"
)

func TestValidateUpload(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		size    int64
		wantErr bool
	}{
		{"pdf ok", "cv.PDF", 1024, false},
		{"docx ok", "letter.docx", 1, false},
		{"exe rejected", "setup.exe", 10, true},
		{"no extension", "README", 10, true},
		{"empty", "cv.pdf", 0, true},
		{"too large", "cv.pdf", storage.DefaultMaxUpload + 1, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := storage.ValidateUpload(tc.file, tc.size, 0)
			if (err != nil) != tc.wantErr {
				t.Fatalf("ValidateUpload(%q, %d) = %v, wantErr %v", tc.file, tc.size, err, tc.wantErr)
			}
			if err != nil && !apperr.IsValidation(err) {
				t.Fatalf("expected a validation error, got %T", err)
			}
		})
	}
}

func TestNewKey(t *testing.T) {
	key := storage.NewKey(time.Date(2025, 3, 7, 23, 0, 0, 0, time.UTC), "My CV.PDF")
	if !regexp.MustCompile(`^attachments/2025/03/07/[0-9a-f-]{36}\.pdf$`).MatchString(key) {
		t.Fatalf("unexpected key %q", key)
	}
}

func TestDetectContentType(t *testing.T) {
	if got := storage.DetectContentType([]byte("%PDF-1.7\n...")); got != "application/pdf" {
		t.Fatalf("pdf detected as %q", got)
	}
	if got := storage.DetectContentType([]byte("plain words")); !strings.HasPrefix(got, "text/plain") {
		t.Fatalf("text detected as %q", got)
	}
}

func TestLocalStore(t *testing.T) {
	ctx := context.Background()
	st, err := storage.NewLocal(t.TempDir(), "/media/")
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}

	key := "attachments/2025/01/02/file.txt"
	n, err := st.Put(ctx, key, strings.NewReader("hello"))
	if err != nil || n != 5 {
		t.Fatalf("Put: n=%d err=%v", n, err)
	}

	rc, err := st.Open(ctx, key)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	b, _ := io.ReadAll(rc)
	rc.Close()
	if string(b) != "hello" {
		t.Fatalf("read %q", b)
	}

	if got := st.URL(key); got != "/media/"+key {
		t.Fatalf("URL = %q", got)
	}

	if err := st.Delete(ctx, key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := st.Delete(ctx, key); err != nil {
		t.Fatalf("second Delete should be a no-op: %v", err)
	}
	if _, err := st.Open(ctx, key); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if _, err := st.Put(ctx, "../escape.txt", strings.NewReader("x")); err == nil {
		t.Fatalf("expected traversal key to be rejected")
	}
}
