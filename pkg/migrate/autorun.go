package migrate

import (
	"context"
	"fmt"

	"github.com/cribnosh/cribnosh-backend/pkg/config"
	"github.com/cribnosh/cribnosh-backend/pkg/db"
	"github.com/cribnosh/cribnosh-backend/pkg/logger"
)

// MaybeRunDev brings a dev postgres database up to date with the embedded
// migrations when auto-migrate is on. Any other environment or driver is left
// alone.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	switch {
	case !cfg.App.IsDev(), !cfg.FeatureFlags.AutoMigrate:
		return nil
	case client.Dialect() != db.DriverPostgres:
		logg.Info(ctx, "auto-migrate skipped for "+client.Dialect())
		return nil
	}

	sqlDB, err := client.SQL()
	if err != nil {
		return err
	}
	source, err := Source("")
	if err != nil {
		return err
	}
	runner, err := NewRunner(sqlDB, source, logg)
	if err != nil {
		return err
	}
	defer runner.Close()

	applied, err := runner.Up(ctx)
	if err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	logg.Info(logg.WithField(ctx, "applied", applied), "auto-migrate complete")
	return nil
}
