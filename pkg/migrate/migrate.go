package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/cribnosh/cribnosh-backend/pkg/logger"
	"github.com/pressly/goose/v3"
)

const (
	DefaultDir  = "pkg/migrate/migrations"
	embeddedDir = "migrations"
)

//go:embed migrations/*.sql
var embedded embed.FS

// Embedded exposes the migrations compiled into the binary.
func Embedded() embed.FS {
	return embedded
}

// Source returns the migrations rooted at dir on disk, or the embedded set
// when dir is empty.
func Source(dir string) (fs.FS, error) {
	if strings.TrimSpace(dir) == "" {
		return fs.Sub(embedded, embeddedDir)
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("migrations dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("migrations dir %q is not a directory", dir)
	}
	return os.DirFS(dir), nil
}

// ParseVersion reads a YYYYMMDDHHMMSS migration version.
func ParseVersion(raw string) (int64, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS)", raw)
	}
	return v, nil
}

// Runner applies one migration source to a postgres database.
type Runner struct {
	provider *goose.Provider
	logg     *logger.Logger
}

func NewRunner(db *sql.DB, fsys fs.FS, logg *logger.Logger) (*Runner, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, db, fsys)
	if err != nil {
		return nil, fmt.Errorf("goose provider: %w", err)
	}
	return &Runner{provider: provider, logg: logg}, nil
}

// Up applies every pending migration and returns how many ran.
func (r *Runner) Up(ctx context.Context) (int, error) {
	results, err := r.provider.Up(ctx)
	r.report(ctx, results...)
	if err != nil {
		return len(results), fmt.Errorf("goose up: %w", err)
	}
	return len(results), nil
}

// Down rolls back the most recent migration.
func (r *Runner) Down(ctx context.Context) error {
	result, err := r.provider.Down(ctx)
	if result != nil {
		r.report(ctx, result)
	}
	if err != nil {
		return fmt.Errorf("goose down: %w", err)
	}
	return nil
}

// To migrates up or down until the database sits at target.
func (r *Runner) To(ctx context.Context, target int64) error {
	current, err := r.provider.GetDBVersion(ctx)
	if err != nil {
		return fmt.Errorf("get db version: %w", err)
	}

	var results []*goose.MigrationResult
	switch {
	case current == target:
		return nil
	case current < target:
		results, err = r.provider.UpTo(ctx, target)
	default:
		results, err = r.provider.DownTo(ctx, target)
	}
	r.report(ctx, results...)
	if err != nil {
		return fmt.Errorf("goose migrate %d -> %d: %w", current, target, err)
	}
	return nil
}

func (r *Runner) Status(ctx context.Context) ([]*goose.MigrationStatus, error) {
	return r.provider.Status(ctx)
}

func (r *Runner) Close() error {
	return r.provider.Close()
}

func (r *Runner) report(ctx context.Context, results ...*goose.MigrationResult) {
	if r.logg == nil {
		return
	}
	for _, res := range results {
		if res == nil || res.Source == nil {
			continue
		}
		fields := map[string]any{
			"version":     res.Source.Version,
			"file":        res.Source.Path,
			"direction":   res.Direction,
			"duration_ms": res.Duration.Milliseconds(),
		}
		if res.Error != nil {
			r.logg.Error(r.logg.WithFields(ctx, fields), "migration failed", res.Error)
			continue
		}
		r.logg.Info(r.logg.WithFields(ctx, fields), "migration applied")
	}
}
