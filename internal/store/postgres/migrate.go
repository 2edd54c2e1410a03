package postgres

import (
	"context"
	"embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"terminalsim/pkg/database"
	"terminalsim/pkg/logger"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migrate applies every pending migration to the containers table, the
// persistent backend's own schema footprint, via the same goose-over-a-
// pgxpool Migrator the rest of the service's database layer uses.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	migrator := database.NewMigrator(pool, migrationFiles, "migrations")
	if err := migrator.Up(ctx); err != nil {
		return fmt.Errorf("failed to run container store migrations: %w", err)
	}

	logger.Info("container store migrations applied")
	return nil
}
