package main

import (
	"embed"
	"errors"
	"fmt"
	"log"

	"spendtrack/models"
	"spendtrack/pkg/config"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// openDB connects to postgres and brings the schema up to date when
// DB_AUTO_MIGRATE is on.
func openDB(cfg *config.Config) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if !cfg.AutoMigrate {
		return db, nil
	}
	if err := runMigrations(cfg.DatabaseDSN); err != nil {
		// key=value DSNs are accepted by gorm but not by migrate
		log.Printf("migration warning: %v; falling back to AutoMigrate", err)
		autoMigrate(db)
	}
	return db, nil
}

// runMigrations applies the embedded SQL migrations. databaseURL must be a
// postgres:// URL.
func runMigrations(databaseURL string) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("migration source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, databaseURL)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer m.Close()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// autoMigrate migrates models one at a time so one failure does not block the rest.
func autoMigrate(db *gorm.DB) {
	for _, m := range []any{&models.User{}, &models.Product{}, &models.Order{}} {
		if err := db.AutoMigrate(m); err != nil {
			log.Printf("migration warning (%T): %v", m, err)
		}
	}
}
