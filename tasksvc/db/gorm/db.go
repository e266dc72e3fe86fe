package gorm

import (
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	stdgorm "gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open connects to postgres when databaseURL is a postgres URL and falls back to
// a sqlite file otherwise. The snapshot table is migrated before returning.
func Open(databaseURL, sqlitePath string) (*stdgorm.DB, error) {
	var dialector stdgorm.Dialector
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		dialector = postgres.Open(databaseURL)
	case databaseURL != "":
		dialector = sqlite.Open(databaseURL)
	default:
		dialector = sqlite.Open(sqlitePath)
	}

	db, err := stdgorm.Open(dialector, &stdgorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, err
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}
