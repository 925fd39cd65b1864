// Package repository persists papers and download tasks in a sqlite
// database shared between the orchestrator's write path and the dashboard's
// read path.
package repository

import (
	"fmt"
	"log/slog"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/veranemoloko/paper-harvester/internal/domain"
)

// Open opens (creating if needed) the sqlite database and migrates the
// schema. WAL mode lets dashboard reads proceed while a batch is writing.
func Open(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Exec("PRAGMA journal_mode = WAL").Error; err != nil {
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if err := db.Exec("PRAGMA busy_timeout = 5000").Error; err != nil {
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if err := db.AutoMigrate(&domain.Paper{}, &domain.Task{}); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	slog.Info("database initialized", "path", path)
	return db, nil
}
