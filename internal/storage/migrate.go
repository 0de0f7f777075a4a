package storage

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/pitabwire/digiurban/model"
)

//go:embed migrations/*.up.sql
var migrationFiles embed.FS

// ormModels are the tables owned by the gorm-backed stores.
var ormModels = []any{
	&model.ProtocolDocument{},
	&model.Interaction{},
	&model.Pending{},
	&model.Solicitacao{},
	&model.Viagem{},
	&model.Medicamento{},
	&model.Estoque{},
	&model.Dispensacao{},
	&model.CustomDataTable{},
	&model.CustomDataRecord{},
}

// Migrate applies pending SQL migrations and then auto-migrates the ORM
// tables.
func (d *DB) Migrate(ctx context.Context) error {
	applied, err := d.applySQL(ctx)
	if err != nil {
		return err
	}
	if err := d.Gorm.WithContext(ctx).AutoMigrate(ormModels...); err != nil {
		return fmt.Errorf("storage: auto-migrate: %w", err)
	}
	d.logger.Info("database schema up to date",
		zap.Int("sql_migrations_applied", applied),
		zap.Int("orm_tables", len(ormModels)),
	)
	return nil
}

func migrationNames() ([]string, error) {
	names, err := fs.Glob(migrationFiles, "migrations/*.up.sql")
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

func (d *DB) applySQL(ctx context.Context) (int, error) {
	if _, err := d.Pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`); err != nil {
		return 0, fmt.Errorf("storage: ensure schema_migrations: %w", err)
	}

	names, err := migrationNames()
	if err != nil {
		return 0, fmt.Errorf("storage: list migrations: %w", err)
	}

	applied := 0
	for _, name := range names {
		version := strings.TrimPrefix(name, "migrations/")

		var exists bool
		if err := d.Pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE version = $1)`, version,
		).Scan(&exists); err != nil {
			return applied, fmt.Errorf("storage: check migration %s: %w", version, err)
		}
		if exists {
			continue
		}

		contents, err := migrationFiles.ReadFile(name)
		if err != nil {
			return applied, fmt.Errorf("storage: read migration %s: %w", version, err)
		}
		err = pgx.BeginFunc(ctx, d.Pool, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, string(contents)); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, version)
			return err
		})
		if err != nil {
			return applied, fmt.Errorf("storage: apply migration %s: %w", version, err)
		}
		applied++
		d.logger.Info("migration applied", zap.String("version", version))
	}
	return applied, nil
}
