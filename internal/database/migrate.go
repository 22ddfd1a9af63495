// Package database はデータベース接続とマイグレーション管理を提供する。
package database

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationsFS embed.FS

// MigrationURL はdsnをgolang-migrateが解釈できるURLに変換する。
func MigrationURL(driver Driver, dsn string) (string, error) {
	switch driver {
	case DriverPostgres:
		return dsn, nil
	case DriverSQLite:
		return "sqlite://" + dsn, nil
	default:
		return "", fmt.Errorf("driver %q does not support migrations", driver)
	}
}

// migrationSource はドライバごとのマイグレーションファイル群を返す。
func migrationSource(driver Driver) (fs.FS, error) {
	return fs.Sub(migrationsFS, "migrations/"+string(driver))
}

// NewMigrator はマイグレーション実行用のmigrateインスタンスを生成する。
func NewMigrator(driver Driver, dsn string) (*migrate.Migrate, error) {
	url, err := MigrationURL(driver, dsn)
	if err != nil {
		return nil, err
	}

	sub, err := migrationSource(driver)
	if err != nil {
		return nil, fmt.Errorf("failed to open migration files: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, url)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}

	return m, nil
}

// RunMigrations はすべてのマイグレーションを適用する。
// すでに最新の場合はエラーなしで返る。memoryドライバでは何もしない。
func RunMigrations(driver Driver, dsn string) error {
	if driver == DriverMemory {
		return nil
	}

	m, err := NewMigrator(driver, dsn)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}
