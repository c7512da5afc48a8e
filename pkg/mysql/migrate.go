package mysql

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"

	"github.com/pressly/goose/v3"
	"gorm.io/gorm"

	"github.com/dmitrymomot/saasbilling/pkg/logger"
)

// Migrate applies pending goose migrations from the root of fsys.
func Migrate(ctx context.Context, db *gorm.DB, fsys fs.FS, cfg Config, log *slog.Logger) error {
	sqlDB, err := db.DB()
	if err != nil {
		return errors.Join(ErrFailedToApplyMigrations, err)
	}

	goose.SetBaseFS(fsys)
	goose.SetLogger(logger.Goose(log))
	if cfg.MigrationsTable != "" {
		goose.SetTableName(cfg.MigrationsTable)
	}
	if err := goose.SetDialect("mysql"); err != nil {
		return errors.Join(ErrFailedToApplyMigrations, err)
	}
	if err := goose.UpContext(ctx, sqlDB, "."); err != nil {
		return errors.Join(ErrFailedToApplyMigrations, err)
	}
	return nil
}
