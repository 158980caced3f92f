package postgresengine

import (
	"context"
	_ "embed"
	"errors"

	"github.com/AntonStoeckl/library-circulation-go/circulation"
)

//go:embed schema.sql
var schemaSQL string

// Schema returns the DDL the engine expects. It is idempotent.
func Schema() string {
	return schemaSQL
}

// ApplySchema creates the tables and indexes if they do not exist yet.
func (e *Engine) ApplySchema(ctx context.Context) error {
	observer, ctx := e.observe(ctx, operationApplySchema, nil)

	if _, err := e.exec(ctx, e.db, actionApplySchema, schemaSQL); err != nil {
		return observer.fail(errors.Join(circulation.ErrApplyingSchemaFailed, err))
	}

	observer.succeed(nil)

	return nil
}
