package storage

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SchemaVersion is the migration state of a database file.
type SchemaVersion struct {
	Version uint
	Dirty   bool
}

// migrateLogger forwards migrate's progress lines to slog at debug.
type migrateLogger struct{}

func (migrateLogger) Printf(format string, v ...any) {
	slog.Debug(strings.TrimSpace(fmt.Sprintf(format, v...)), "component", "migrate")
}

func (migrateLogger) Verbose() bool { return false }

// withMigrator opens a dedicated connection to dbPath and hands fn a
// migrator over the embedded scripts. The sqlite driver closes the
// connection when the migrator is closed, so it is never shared with the
// repository pool.
func withMigrator(dbPath string, fn func(*migrate.Migrate) error) error {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return fmt.Errorf("open migration database: %w", err)
	}

	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		db.Close()
		return fmt.Errorf("create sqlite driver: %w", err)
	}

	scripts, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		driver.Close()
		return fmt.Errorf("open embedded migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", scripts, "sqlite", driver)
	if err != nil {
		driver.Close()
		return fmt.Errorf("create migrator: %w", err)
	}
	m.Log = migrateLogger{}

	runErr := fn(m)
	srcErr, dbErr := m.Close()
	return errors.Join(runErr, srcErr, dbErr)
}

// RunMigrations brings the schema at dbPath up to date and returns the
// resulting version. A database left dirty by an interrupted run is an
// error; it needs manual repair before the service can start.
func RunMigrations(dbPath string) (SchemaVersion, error) {
	var sv SchemaVersion
	err := withMigrator(dbPath, func(m *migrate.Migrate) error {
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("run migrations: %w", err)
		}
		v, dirty, err := m.Version()
		if err != nil {
			return fmt.Errorf("read schema version: %w", err)
		}
		sv = SchemaVersion{Version: v, Dirty: dirty}
		return nil
	})
	return sv, err
}

// CurrentVersion reports the schema version without migrating. A database
// that has never been migrated reports version 0.
func CurrentVersion(dbPath string) (SchemaVersion, error) {
	var sv SchemaVersion
	err := withMigrator(dbPath, func(m *migrate.Migrate) error {
		v, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read schema version: %w", err)
		}
		sv = SchemaVersion{Version: v, Dirty: dirty}
		return nil
	})
	return sv, err
}
