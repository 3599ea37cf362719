// Package sqlite is the single-file store used for local runs and tests.
package sqlite

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"example.com/tracker/internal/domain"
	"example.com/tracker/internal/persistence"
)

var dialect = persistence.Dialect{
	Quote:       func(ident string) string { return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"` },
	Placeholder: func(int) string { return "?" },
}

// Store implements domain.Store on SQLite through gorm. It has no outbox;
// session uniqueness relies on the services' in-process lock.
type Store struct {
	db *gorm.DB
}

var _ domain.Store = (*Store)(nil)

// Open connects to the database at dsn and migrates it. An empty dsn falls
// back to tracker.db.
func Open(dsn string) (*Store, error) {
	path := strings.TrimSpace(dsn)
	if path == "" {
		path = "tracker.db"
	}
	if err := ensureParentDir(path); err != nil {
		return nil, err
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// One writer at a time; shared-cache memory databases otherwise report table locks.
	sqlDB.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// DB exposes the underlying handle for seeding and inspection.
func (s *Store) DB() *gorm.DB { return s.db }

// Close releases the connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&workoutRow{},
		&cardioRow{},
		&sportRow{},
		&stretchingRow{},
		&exerciseRow{},
		&setRow{},
		&mealRow{},
		&ingredientRow{},
		&plannedMealRow{},
		&cookingRow{},
		&cookedMealRow{},
		&noteRow{},
		&expenseRow{},
		&eventRow{},
	); err != nil {
		return err
	}
	return db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS calendar_events_source_key
		ON calendar_events (user_id, source, source_id) WHERE source IS NOT NULL`).Error
}

func ensureParentDir(path string) error {
	if strings.HasPrefix(path, "file:") || path == ":memory:" {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func isDuplicate(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}

func strPtr(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	utc := t.UTC()
	return &utc
}
