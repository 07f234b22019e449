package startup

import (
	"context"
	"fmt"
	"io/fs"
	"sort"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/petchat/internal/logger"
	"github.com/petchat/migrations"
)

// RunMigrations применяет встроенные SQL-миграции по порядку имён. Миграции идемпотентны
// (CREATE ... IF NOT EXISTS), поэтому их можно прогонять при каждом старте.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	files, err := fs.Glob(migrations.Files, "*.sql")
	if err != nil {
		return fmt.Errorf("list migrations: %w", err)
	}
	sort.Strings(files)
	for _, f := range files {
		data, err := fs.ReadFile(migrations.Files, f)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", f, err)
		}
		if _, err := pool.Exec(ctx, string(data)); err != nil {
			return fmt.Errorf("run migration %s: %w", f, err)
		}
	}
	logger.Infof("migrations applied: %d", len(files))
	return nil
}
