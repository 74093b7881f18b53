package migrations

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

//go:embed 0001_create_quizzes.sql
var quizMirrorUp string

const quizMirrorDown = `
DROP INDEX IF EXISTS quizzes_category_idx;
DROP TABLE IF EXISTS quizzes;
`

// Migrations holds the schema of the Postgres quiz mirror.
var Migrations = migrate.NewMigrations()

func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			return inTx(ctx, db, "create quiz mirror", quizMirrorUp)
		},
		func(ctx context.Context, db *bun.DB) error {
			return inTx(ctx, db, "drop quiz mirror", quizMirrorDown)
		},
	)
}

func inTx(ctx context.Context, db *bun.DB, step, stmt string) error {
	err := db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.ExecContext(ctx, stmt)
		return err
	})
	if err != nil {
		return fmt.Errorf("%s: %w", step, err)
	}
	return nil
}
