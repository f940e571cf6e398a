// Package payload validates JSON request bodies against embedded JSON
// schemas and reports failures as field errors.
package payload

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"path"
	"strings"
	"sync"

	"github.com/qri-io/jsonschema"

	"github.com/garnizeh/apptrack/internal/apperr"
)

// Schemas is a named set of schemas read from dir/<name>.json on first use.
type Schemas struct {
	fsys  fs.FS
	dir   string
	names []string

	once    sync.Once
	schemas map[string]*jsonschema.Schema
	err     error
}

func NewSchemas(fsys fs.FS, dir string, names ...string) *Schemas {
	return &Schemas{fsys: fsys, dir: dir, names: names}
}

func (s *Schemas) load() error {
	s.once.Do(func() {
		s.schemas = make(map[string]*jsonschema.Schema, len(s.names))
		for _, name := range s.names {
			b, err := fs.ReadFile(s.fsys, path.Join(s.dir, name+".json"))
			if err != nil {
				s.err = fmt.Errorf("read schema %s: %w", name, err)
				return
			}
			rs := &jsonschema.Schema{}
			if err := json.Unmarshal(b, rs); err != nil {
				s.err = fmt.Errorf("compile schema %s: %w", name, err)
				return
			}
			s.schemas[name] = rs
		}
	})
	return s.err
}

// Validate checks body against the named schema and reports every failing
// property as a field error.
func (s *Schemas) Validate(ctx context.Context, name string, body []byte) error {
	if err := s.load(); err != nil {
		return err
	}
	rs, ok := s.schemas[name]
	if !ok {
		return fmt.Errorf("unknown schema %q", name)
	}
	if !json.Valid(body) {
		return apperr.BadRequest("request body is not valid JSON")
	}
	keyErrs, err := rs.ValidateBytes(ctx, body)
	if err != nil {
		return apperr.BadRequest(err.Error())
	}
	if len(keyErrs) == 0 {
		return nil
	}
	ve := &apperr.ValidationError{}
	for _, ke := range keyErrs {
		field := strings.TrimPrefix(ke.PropertyPath, "/")
		if i := strings.Index(field, "/"); i >= 0 {
			field = field[:i]
		}
		msg := ke.Message
		if field == "" {
			field = apperr.NonField
			// required failures are reported on the object itself
			if name, ok := requiredField(msg); ok {
				field, msg = name, "This field is required."
			}
		}
		ve.Add(field, msg)
	}
	return ve
}

func requiredField(msg string) (string, bool) {
	rest, ok := strings.CutPrefix(msg, `"`)
	if !ok {
		return "", false
	}
	name, tail, ok := strings.Cut(rest, `"`)
	if !ok || !strings.Contains(tail, "required") {
		return "", false
	}
	return name, true
}

// Decode validates body against the named schema, then unmarshals it into v.
func (s *Schemas) Decode(ctx context.Context, name string, body []byte, v any) error {
	if err := s.Validate(ctx, name, body); err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		// typed values such as dates can pass the schema and still fail here
		return apperr.NewValidation(apperr.NonField, err.Error())
	}
	return nil
}

// HasKey reports whether the top level object in body sets key.
func HasKey(body []byte, key string) bool {
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(body, &keys); err != nil {
		return false
	}
	_, ok := keys[key]
	return ok
}
