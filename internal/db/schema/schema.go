package schema

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	_ "github.com/lib/pq" // postgres driver
	"github.com/pressly/goose/v3"

	"github.com/intergov/notary/internal/log"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// Migrate runs migrations on the databaseURL
func Migrate(ctx context.Context, databaseURL string) error {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return fmt.Errorf("error open connection with database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error(ctx, "closing database", "err", err)
		}
	}()

	goose.SetBaseFS(embedMigrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("error setting dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("error trying to run migrations: %w", err)
	}

	return nil
}
