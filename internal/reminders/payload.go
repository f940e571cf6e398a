package reminders

import (
	"context"
	"embed"

	"github.com/garnizeh/apptrack/internal/apperr"
	"github.com/garnizeh/apptrack/internal/payload"
)

//go:embed schemas/*.json
var schemaFS embed.FS

var schemas = payload.NewSchemas(schemaFS, "schemas", "create", "update")

func DecodeCreate(ctx context.Context, body []byte) (CreateInput, error) {
	var in CreateInput
	return in, schemas.Decode(ctx, "create", body, &in)
}

// DecodeUpdate rejects a channel change; a reminder on another channel is a
// new reminder.
func DecodeUpdate(ctx context.Context, body []byte) (UpdateInput, error) {
	var in UpdateInput
	if err := schemas.Decode(ctx, "update", body, &in); err != nil {
		return in, err
	}
	if payload.HasKey(body, "channel") {
		return UpdateInput{}, apperr.NewValidation("channel", "The channel of a reminder cannot be changed.")
	}
	return in, nil
}
