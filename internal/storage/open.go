// Package storage implements the persistence collaborators of the auth
// core on GORM: the marketplace user table and the refresh token table.
package storage

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	sqliteDialector "github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	// ErrUnsupportedDialect indicates no GORM dialector matches the URL
	// scheme.
	ErrUnsupportedDialect = errors.New("storage.unsupported_dialect")

	errEmptyDatabaseURL = errors.New("storage.empty_database_url")
	errNoScheme         = errors.New("storage.url_missing_scheme")
	errSQLiteEmptyPath  = errors.New("storage.sqlite.empty_path")
)

// Open connects to the database named by a postgres:// or sqlite:// URL
// and migrates the schema. The returned label names the driver in use.
func Open(databaseURL string) (*gorm.DB, string, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, "", fmt.Errorf("storage.open: %w", errEmptyDatabaseURL)
	}
	dialector, driverLabel, err := resolveDialector(databaseURL)
	if err != nil {
		return nil, "", err
	}
	gormDB, openErr := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		// Driver unique-violations must surface as gorm.ErrDuplicatedKey
		// so the stores can map them to ErrConflict.
		TranslateError: true,
	})
	if openErr != nil {
		return nil, "", fmt.Errorf("storage.open.%s: %w", driverLabel, openErr)
	}
	if migrateErr := gormDB.AutoMigrate(&userRecord{}, &refreshTokenRecord{}); migrateErr != nil {
		return nil, "", fmt.Errorf("storage.migrate.%s: %w", driverLabel, migrateErr)
	}
	return gormDB, driverLabel, nil
}

func resolveDialector(databaseURL string) (gorm.Dialector, string, error) {
	parsed, err := url.Parse(databaseURL)
	if err != nil {
		return nil, "", fmt.Errorf("storage.parse_url: %w", err)
	}
	scheme := strings.ToLower(parsed.Scheme)
	switch scheme {
	case "":
		return nil, "", fmt.Errorf("storage.dialect: %w", errNoScheme)
	case "postgres", "postgresql":
		return postgres.Open(databaseURL), "postgres", nil
	case "sqlite", "sqlite3":
		dsn, dsnErr := sqlitePath(parsed)
		if dsnErr != nil {
			return nil, "", fmt.Errorf("storage.sqlite: %w", dsnErr)
		}
		return sqliteDialector.Open(dsn), "sqlite", nil
	}
	return nil, "", fmt.Errorf("storage.dialect.%s: %w", scheme, ErrUnsupportedDialect)
}

// sqlitePath turns a sqlite URL into the driver DSN. Both the host form
// (sqlite://marketd.db) and the opaque form used by in-memory databases
// (sqlite:file:name?mode=memory&cache=shared) are accepted.
func sqlitePath(parsed *url.URL) (string, error) {
	dsn := parsed.Opaque
	if dsn == "" {
		dsn = parsed.Host + parsed.Path
	}
	if dsn == "" {
		return "", errSQLiteEmptyPath
	}
	if parsed.RawQuery != "" {
		dsn += "?" + parsed.RawQuery
	}
	return dsn, nil
}
