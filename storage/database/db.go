// Package database opens, creates and migrates the postgres database.
package database

import (
	"context"
	"database/sql"
	"net/url"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/trezcool/goose"

	"github.com/masomo/feeledger/core"
	appfs "github.com/masomo/feeledger/fs"
)

const (
	maxPingAttempts = 30
	setupTimeout    = time.Minute
)

// dataSourceName builds the postgres URL of `dbName`, as the admin user when `admin` is set
// and one is configured. Sessions run in UTC: day boundaries are computed by the app.
func dataSourceName(dbName string, admin bool, conf *core.Config) string {
	usr := url.UserPassword(conf.Database.User, conf.Database.Password)
	if admin && conf.Database.AdminUser != "" {
		usr = url.UserPassword(conf.Database.AdminUser, conf.Database.AdminPassword)
	}

	sslMode := "require"
	if conf.Database.DisableTLS {
		sslMode = "disable"
	}
	q := make(url.Values)
	q.Set("sslmode", sslMode)
	q.Set("timezone", "utc")

	u := url.URL{
		Scheme:   conf.Database.Engine,
		User:     usr,
		Host:     conf.Database.Address(),
		Path:     dbName,
		RawQuery: q.Encode(),
	}
	return u.String()
}

func open(ctx context.Context, dbName string, admin bool, conf *core.Config) (*sqlx.DB, error) {
	db, err := sqlx.Open(conf.Database.Engine, dataSourceName(dbName, admin, conf))
	if err != nil {
		return nil, errors.Wrap(err, "opening database")
	}
	if err = ping(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Open connects to the application database and waits for it to be ready.
func Open(conf *core.Config) (*sqlx.DB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), setupTimeout)
	defer cancel()
	return open(ctx, conf.Database.Name, false, conf)
}

// ping waits for the database to be ready. Waits 100ms longer between each attempt.
func ping(ctx context.Context, db *sqlx.DB) error {
	var err error
	for attempt := 1; attempt <= maxPingAttempts; attempt++ {
		if err = db.PingContext(ctx); err == nil {
			return nil
		}
		select {
		case <-time.After(time.Duration(attempt) * 100 * time.Millisecond):
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "DB ping")
		}
	}
	return errors.Wrap(err, "DB ping timeout")
}

func exists(ctx context.Context, db *sqlx.DB, q string, arg string) (bool, error) {
	var found bool
	if err := db.GetContext(ctx, &found, `SELECT EXISTS (`+q+`)`, arg); err != nil {
		return false, err
	}
	return found, nil
}

// createAppUser creates the application role, allowed to create its database.
func createAppUser(ctx context.Context, db *sqlx.DB, conf *core.Config) error {
	if conf.Database.User == "" {
		return nil
	}
	found, err := exists(ctx, db, `SELECT 1 FROM pg_roles WHERE rolname = $1`, conf.Database.User)
	if err != nil {
		return errors.Wrap(err, "checking app user")
	}
	if found {
		return nil
	}
	q := `CREATE USER ` + pq.QuoteIdentifier(conf.Database.User) +
		` CREATEDB ENCRYPTED PASSWORD ` + pq.QuoteLiteral(conf.Database.Password)
	if _, err = db.ExecContext(ctx, q); err != nil {
		return errors.Wrap(err, "creating app user")
	}
	return nil
}

func createDB(ctx context.Context, db *sqlx.DB, conf *core.Config) error {
	found, err := exists(ctx, db, `SELECT 1 FROM pg_database WHERE datname = $1`, conf.Database.Name)
	if err != nil {
		return errors.Wrap(err, "checking DB")
	}
	if found {
		return nil
	}
	if _, err = db.ExecContext(ctx, `CREATE DATABASE `+pq.QuoteIdentifier(conf.Database.Name)); err != nil {
		return errors.Wrap(err, "creating database")
	}
	return nil
}

// CreateIfNotExist creates the app user (as admin), then the app database (as the app user).
func CreateIfNotExist(conf *core.Config) error {
	ctx, cancel := context.WithTimeout(context.Background(), setupTimeout)
	defer cancel()

	adminDB, err := open(ctx, "postgres", true, conf)
	if err != nil {
		return err
	}
	defer func() { _ = adminDB.Close() }()
	if err = createAppUser(ctx, adminDB, conf); err != nil {
		return err
	}

	appDB, err := open(ctx, "postgres", false, conf)
	if err != nil {
		return err
	}
	defer func() { _ = appDB.Close() }()
	return createDB(ctx, appDB, conf)
}

// Migrate applies every pending migration.
func Migrate(db *sql.DB) error {
	if err := goose.RunFS("up", db, appfs.FS, appfs.MigrationsDir); err != nil {
		return errors.Wrap(err, "migrating database")
	}
	return nil
}
