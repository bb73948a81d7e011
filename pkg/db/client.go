package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/cribnosh/cribnosh-backend/pkg/config"
	"github.com/cribnosh/cribnosh-backend/pkg/logger"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Client owns the process-wide gorm pool.
type Client struct {
	conn *gorm.DB
}

// New opens the configured driver, applies pool limits and verifies the
// connection before returning.
func New(ctx context.Context, cfg config.DBConfig, logg *logger.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("database DSN is required")
	}
	driver := driverName(cfg)
	dialector, err := dialectorFor(driver, cfg.DSN)
	if err != nil {
		return nil, err
	}

	conn, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 newQueryLogger(logg, cfg.SlowQueryThreshold),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	c := &Client{conn: conn}

	sqlDB, err := c.SQL()
	if err != nil {
		return nil, err
	}
	limitPool(sqlDB, cfg)
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}

	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"driver":         driver,
			"max_open_conns": cfg.MaxOpenConns,
		}), "database connection established")
	}
	return c, nil
}

// NewFromGorm wraps an open connection.
func NewFromGorm(conn *gorm.DB) *Client {
	return &Client{conn: conn}
}

func driverName(cfg config.DBConfig) string {
	if name := strings.ToLower(strings.TrimSpace(cfg.Driver)); name != "" {
		return name
	}
	return DriverPostgres
}

func dialectorFor(driver, dsn string) (gorm.Dialector, error) {
	switch driver {
	case DriverPostgres:
		return postgres.New(postgres.Config{DSN: dsn, PreferSimpleProtocol: true}), nil
	case DriverSQLite:
		return sqlite.Open(dsn), nil
	}
	return nil, fmt.Errorf("unsupported db driver %q", driver)
}

func limitPool(sqlDB *sql.DB, cfg config.DBConfig) {
	if n := cfg.MaxOpenConns; n > 0 {
		sqlDB.SetMaxOpenConns(n)
	}
	if n := cfg.MaxIdleConns; n > 0 {
		sqlDB.SetMaxIdleConns(n)
	}
	if d := cfg.ConnMaxLifetime; d > 0 {
		sqlDB.SetConnMaxLifetime(d)
	}
	if d := cfg.ConnMaxIdleTime; d > 0 {
		sqlDB.SetConnMaxIdleTime(d)
	}
}

func (c *Client) DB() *gorm.DB {
	return c.conn
}

// SQL returns the database/sql pool; goose runs on it.
func (c *Client) SQL() (*sql.DB, error) {
	sqlDB, err := c.conn.DB()
	if err != nil {
		return nil, fmt.Errorf("sql handle: %w", err)
	}
	return sqlDB, nil
}

// Dialect is the gorm dialector name, "postgres" or "sqlite".
func (c *Client) Dialect() string {
	return c.conn.Dialector.Name()
}

func (c *Client) Ping(ctx context.Context) error {
	sqlDB, err := c.SQL()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (c *Client) Close() error {
	sqlDB, err := c.SQL()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// WithTx runs fn in one transaction. A returned error or a panic rolls back;
// the panic is re-raised after rollback.
func (c *Client) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return c.conn.WithContext(ctx).Transaction(fn)
}
