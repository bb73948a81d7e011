package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/cribnosh/cribnosh-backend/pkg/config"
	"github.com/cribnosh/cribnosh-backend/pkg/db"
	"github.com/cribnosh/cribnosh-backend/pkg/logger"
	"github.com/cribnosh/cribnosh-backend/pkg/migrate"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "migrate"})
	_ = godotenv.Load()

	cmd := flag.String("cmd", "up", "migration command: up|down|status|version|create|validate")
	dir := flag.String("dir", migrate.DefaultDir, "goose migrations directory")
	embedded := flag.Bool("embedded", false, "use the migrations compiled into the binary instead of -dir")
	name := flag.String("name", "", "migration name (for create)")
	version := flag.String("version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version")
	flag.Parse()

	// create and validate only touch the filesystem.
	switch *cmd {
	case "create":
		if *name == "" {
			fail("missing -name for create")
		}
		path, err := migrate.CreateSQLMigration(*dir, *name)
		if err != nil {
			fail("failed to create migration: %v", err)
		}
		fmt.Println("created migration:", path)
		return
	case "validate":
		if err := migrate.ValidateDir(*dir); err != nil {
			fail("migration validation failed: %v", err)
		}
		fmt.Println("migration validation passed")
		return
	}

	cfg, err := config.Load()
	requireResource(context.Background(), logg, "config", err)

	logg = logger.ForApp("migrate", cfg.App)
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"cmd":      *cmd,
		"dir":      *dir,
		"embedded": *embedded,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer dbClient.Close()

	sqlDB, err := dbClient.SQL()
	requireResource(ctx, logg, "sql database", err)

	sourceDir := *dir
	if *embedded {
		sourceDir = ""
	}
	source, err := migrate.Source(sourceDir)
	requireResource(ctx, logg, "migrations source", err)

	runner, err := migrate.NewRunner(sqlDB, source, logg)
	requireResource(ctx, logg, "migration runner", err)
	defer runner.Close()

	logg.Info(ctx, "migrate ready")
	if err := runCommand(ctx, runner, *cmd, *version); err != nil {
		logg.Error(ctx, "migration failed", err)
		os.Exit(1)
	}
	logg.Info(ctx, "migration complete")
}

func runCommand(ctx context.Context, runner *migrate.Runner, cmd, version string) error {
	switch cmd {
	case "up":
		_, err := runner.Up(ctx)
		return err
	case "down":
		return runner.Down(ctx)
	case "status":
		statuses, err := runner.Status(ctx)
		if err != nil {
			return err
		}
		for _, st := range statuses {
			applied := "-"
			if !st.AppliedAt.IsZero() {
				applied = st.AppliedAt.UTC().Format(time.RFC3339)
			}
			fmt.Printf("%-14d  %-8s  %-20s  %s\n", st.Source.Version, st.State, applied, st.Source.Path)
		}
		return nil
	case "version":
		if version == "" {
			return fmt.Errorf("missing -version for version command")
		}
		target, err := migrate.ParseVersion(version)
		if err != nil {
			return err
		}
		return runner.To(ctx, target)
	default:
		return fmt.Errorf("unknown -cmd value: %s", cmd)
	}
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
