// Package migrate brings the node's schema up to date before anything
// touches the pool. Migrations ship embedded so a deployment is a
// single binary.
package migrate

import (
	"context"
	"database/sql"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/dfrnproto/dfrnd/migrations"
)

// Up applies every pending migration. It opens its own short-lived
// database/sql connection; the pgx pool the repositories use comes up
// afterwards.
func Up(ctx context.Context, dsn string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}

	return goose.UpContext(ctx, db, ".")
}
