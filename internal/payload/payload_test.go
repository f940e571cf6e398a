package payload_test

import (
	"context"
	"errors"
	"testing"
	"testing/fstest"

	"github.com/garnizeh/apptrack/internal/apperr"
	"github.com/garnizeh/apptrack/internal/payload"
)

var testFS = fstest.MapFS{
	"schemas/note.json": {Data: []byte(`{
  "type": "object",
  "required": ["title"],
  "properties": {
    "title": {"type": "string", "minLength": 1},
    "count": {"type": "integer", "minimum": 0}
  }
}`)},
}

type note struct {
	Title string `json:"title"`
	Count int    `json:"count"`
}

func TestDecode(t *testing.T) {
	ctx := context.Background()
	schemas := payload.NewSchemas(testFS, "schemas", "note")

	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"missing required", `{"count":1}`, "title"},
		{"below minimum", `{"title":"x","count":-1}`, "count"},
		{"wrong type", `{"title":5}`, "title"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var n note
			err := schemas.Decode(ctx, "note", []byte(tc.body), &n)
			var ve *apperr.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if _, ok := ve.Fields[tc.field]; !ok {
				t.Fatalf("expected error on %q, got %v", tc.field, ve.Fields)
			}
		})
	}

	var n note
	if err := schemas.Decode(ctx, "note", []byte(`{"title":"ok","count":2}`), &n); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if n.Title != "ok" || n.Count != 2 {
		t.Fatalf("decoded %+v", n)
	}
	if err := schemas.Validate(ctx, "note", []byte(`[`)); !errors.Is(err, apperr.ErrBadRequest) {
		t.Fatalf("expected bad request for invalid json, got %v", err)
	}
	if err := schemas.Validate(ctx, "other", []byte(`{}`)); err == nil {
		t.Fatalf("expected error for unknown schema")
	}
}

func TestMissingSchemaFile(t *testing.T) {
	schemas := payload.NewSchemas(testFS, "schemas", "note", "absent")
	if err := schemas.Validate(context.Background(), "note", []byte(`{"title":"x"}`)); err == nil {
		t.Fatalf("expected load error for absent schema")
	}
}

func TestHasKey(t *testing.T) {
	if !payload.HasKey([]byte(`{"status":null}`), "status") {
		t.Fatalf("explicit null should count as set")
	}
	if payload.HasKey([]byte(`{"note":"x"}`), "status") || payload.HasKey([]byte(`[1]`), "status") {
		t.Fatalf("unexpected key")
	}
}
