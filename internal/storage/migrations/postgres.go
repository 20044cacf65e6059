package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"strings"

	"pumpportal-archiver/internal/storage/postgres"
)

// RunPostgresMigrations applies every embedded postgres/*.sql file in order.
// A file may hold several statements: pgx runs an argument-less Exec over the
// simple protocol, which accepts multi-statement strings.
func RunPostgresMigrations(ctx context.Context, pool *postgres.Pool) error {
	files, err := sqlFiles(postgresFS, "postgres")
	if err != nil {
		return err
	}

	for _, file := range files {
		data, err := fs.ReadFile(postgresFS, file)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", file, err)
		}
		if strings.TrimSpace(string(data)) == "" {
			continue
		}
		if _, err := pool.Exec(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", file, err)
		}
	}

	return nil
}
