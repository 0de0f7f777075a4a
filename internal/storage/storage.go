// Package storage opens the PostgreSQL connections shared by the SQL and ORM
// backed stores and keeps the schema current.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/pitabwire/digiurban/internal/config"
)

// DB bundles the pgx pool and a gorm handle running on the same pool.
type DB struct {
	Pool *pgxpool.Pool
	Gorm *gorm.DB

	sqlDB  *sql.DB
	logger *zap.Logger
}

// Open connects to the database named by the DSN environment variable in cfg.
func Open(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (*DB, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	dsn := os.Getenv(cfg.DSNEnv)
	if dsn == "" {
		return nil, fmt.Errorf("storage: %s environment variable not set", cfg.DSNEnv)
	}

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: parse DSN: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		poolCfg.MinConns = int32(cfg.MaxIdleConns)
	}
	poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("storage: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("storage: ping: %w", err)
	}

	sqlDB := stdlib.OpenDBFromPool(pool)
	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger:  newGormLogger(logger, cfg.LogQueries),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		_ = sqlDB.Close()
		pool.Close()
		return nil, fmt.Errorf("storage: open gorm: %w", err)
	}

	logger.Info("database connected",
		zap.Int32("max_conns", poolCfg.MaxConns),
		zap.Bool("log_queries", cfg.LogQueries),
	)
	return &DB{Pool: pool, Gorm: gdb, sqlDB: sqlDB, logger: logger}, nil
}

// HealthCheck pings the pool.
func (d *DB) HealthCheck(ctx context.Context) error {
	return d.Pool.Ping(ctx)
}

// Close releases the gorm handle and the pool.
func (d *DB) Close() {
	if err := d.sqlDB.Close(); err != nil {
		d.logger.Warn("closing gorm connection failed", zap.Error(err))
	}
	d.Pool.Close()
}

// zapWriter routes gorm's log lines to zap.
type zapWriter struct {
	logger *zap.SugaredLogger
}

func (w zapWriter) Printf(format string, args ...any) {
	w.logger.Infof(format, args...)
}

func newGormLogger(logger *zap.Logger, logQueries bool) gormlogger.Interface {
	level := gormlogger.Warn
	if logQueries {
		level = gormlogger.Info
	}
	return gormlogger.New(zapWriter{logger: logger.Named("gorm").Sugar()}, gormlogger.Config{
		SlowThreshold:             500 * time.Millisecond,
		LogLevel:                  level,
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	})
}
