package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations
var embedMigrations embed.FS

func isPostgres(driver string) bool {
	return driver == "postgres" || driver == "pgx" || driver == "postgrespool"
}

func configureGoose(driver string) error {
	goose.SetBaseFS(embedMigrations)
	goose.SetTableName("schema_migrations")

	if driver == "sqlite" || driver == "sqlite3" {
		return goose.SetDialect("sqlite3")
	}
	if isPostgres(driver) {
		return goose.SetDialect("postgres")
	}
	return fmt.Errorf("unsupported driver for goose: %s", driver)
}

func migrationDir(driver string) string {
	if isPostgres(driver) {
		return "migrations/postgres"
	}
	return "migrations/sqlite"
}

// openDB maps storage driver names to database/sql drivers: pgx for
// postgres, modernc's "sqlite" for sqlite.
func openDB(driver, dsn string) (*sql.DB, error) {
	if dsn == "" {
		dsn = "movein.db"
	}
	name := "sqlite"
	if isPostgres(driver) {
		name = "pgx"
	}
	return sql.Open(name, dsn)
}

func withDB(driver, dsn string, fn func(db *sql.DB, dir string) error) error {
	if driver == "" {
		driver = "sqlite"
	}
	if err := configureGoose(driver); err != nil {
		return err
	}
	db, err := openDB(driver, dsn)
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(db, migrationDir(driver))
}

// Up applies all pending migrations.
func Up(ctx context.Context, driver, dsn string) error {
	return withDB(driver, dsn, func(db *sql.DB, dir string) error {
		return goose.UpContext(ctx, db, dir)
	})
}

// Down rolls back the latest migration.
func Down(ctx context.Context, driver, dsn string) error {
	return withDB(driver, dsn, func(db *sql.DB, dir string) error {
		return goose.DownContext(ctx, db, dir)
	})
}

// Status prints the applied state of every migration.
func Status(ctx context.Context, driver, dsn string) error {
	return withDB(driver, dsn, func(db *sql.DB, dir string) error {
		return goose.StatusContext(ctx, db, dir)
	})
}

// Version returns the current schema version.
func Version(ctx context.Context, driver, dsn string) (int64, error) {
	var v int64
	err := withDB(driver, dsn, func(db *sql.DB, dir string) error {
		var err error
		v, err = goose.GetDBVersionContext(ctx, db)
		return err
	})
	return v, err
}
