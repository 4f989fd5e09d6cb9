package database

import (
	"errors"
	"fmt"
	"log/slog"
)

var ErrUnsupportedDatabase = errors.New("unsupported database driver")

func NewDatabase(databaseType, connectionString string) (database DatabaseService, err error) {
	switch databaseType {
	case "sqlite":
		database, err = NewSQLiteDatabase(connectionString)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDatabase, databaseType)
	}

	// Ensure the schema exists so the report job works on a fresh file too
	slog.Debug("initializing database schema (ensuring tables exist)", "type", databaseType)
	if _, err = database.CreateDatabase(); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("failed to create database: %w", err)
	}

	return database, nil
}
