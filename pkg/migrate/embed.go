package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var embedded embed.FS

// EmbeddedDir is the directory name inside the compiled-in migration FS.
const EmbeddedDir = "migrations"

// RunEmbedded runs a goose command against the migrations compiled into the binary,
// so deployed services do not depend on the source tree being present.
func RunEmbedded(ctx context.Context, db *sql.DB, command string, args ...string) error {
	goose.SetBaseFS(embedded)
	defer goose.SetBaseFS(nil)
	if err := Run(ctx, db, EmbeddedDir, command, args...); err != nil {
		return fmt.Errorf("embedded migrations: %w", err)
	}
	return nil
}

// EmbeddedFiles lists the compiled-in migration file names.
func EmbeddedFiles() ([]string, error) {
	entries, err := embedded.ReadDir(EmbeddedDir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// EmbeddedToVersion is MigrateToVersion over the compiled-in migrations.
func EmbeddedToVersion(ctx context.Context, db *sql.DB, targetVersion string) error {
	goose.SetBaseFS(embedded)
	defer goose.SetBaseFS(nil)
	return MigrateToVersion(ctx, db, EmbeddedDir, targetVersion)
}
