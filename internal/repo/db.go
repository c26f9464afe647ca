// Package repo is the GORM persistence layer: conversations, messages,
// handover records, feedback, idempotency keys and rate counters. Functions
// take the *gorm.DB explicitly so services can pass a transaction instead.
package repo

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/tbourn/support-router/internal/domain"
)

// Values accepted by DB_DRIVER.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Every pooled SQLite connection gets these through the DSN. Immediate
// transactions take the write lock on BEGIN so two writers never deadlock
// upgrading a shared lock.
var sqlitePragmas = strings.Join([]string{
	"_pragma=busy_timeout(5000)",
	"_pragma=journal_mode(WAL)",
	"_pragma=synchronous(NORMAL)",
	"_pragma=foreign_keys(1)",
	"_txlock=immediate",
}, "&")

type poolLimits struct {
	open, idle      int
	idleTTL, maxAge time.Duration
}

var (
	sqlitePool   = poolLimits{open: 10, idle: 10, idleTTL: 5 * time.Minute, maxAge: 30 * time.Minute}
	postgresPool = poolLimits{open: 25, idle: 10, idleTTL: 5 * time.Minute, maxAge: 30 * time.Minute}
)

// SQLiteDSN adds the connection pragmas to a path or file: URI.
func SQLiteDSN(path string) string {
	if strings.Contains(path, "?") {
		return path + "&" + sqlitePragmas
	}
	return path + "?" + sqlitePragmas
}

// OpenDB opens driver ("sqlite" with path, "postgres" with url) and installs
// the query tracing plugin.
func OpenDB(driver, path, url string) (*gorm.DB, error) {
	var (
		db  *gorm.DB
		err error
	)
	switch d := strings.ToLower(strings.TrimSpace(driver)); d {
	case "", DriverSQLite:
		db, err = OpenSQLite(path)
	case DriverPostgres:
		db, err = OpenPostgres(url)
	default:
		return nil, fmt.Errorf("repo: unsupported driver %q", d)
	}
	if err != nil {
		return nil, err
	}
	if err := db.Use(tracing.NewPlugin()); err != nil {
		return nil, fmt.Errorf("repo: tracing plugin: %w", err)
	}
	return db, nil
}

// OpenSQLite opens or creates the database file. The parent directory must
// already exist.
func OpenSQLite(path string) (*gorm.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if _, err := os.Stat(dir); err != nil {
			return nil, fmt.Errorf("repo: sqlite dir: %w", err)
		}
	}
	return open(sqlite.Open(SQLiteDSN(path)), sqlitePool)
}

// OpenPostgres connects with a libpq keyword DSN or a postgres:// URL.
func OpenPostgres(dsn string) (*gorm.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("repo: postgres requires DATABASE_URL")
	}
	return open(postgres.Open(dsn), postgresPool)
}

func open(dialector gorm.Dialector, limits poolLimits) (*gorm.DB, error) {
	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(limits.open)
	sqlDB.SetMaxIdleConns(limits.idle)
	sqlDB.SetConnMaxIdleTime(limits.idleTTL)
	sqlDB.SetConnMaxLifetime(limits.maxAge)
	return db, nil
}

// Models lists every persisted type in migration order.
func Models() []any {
	return []any{
		&domain.Conversation{},
		&domain.Message{},
		&domain.HandoverRecord{},
		&domain.Feedback{},
		&domain.Idempotency{},
		&domain.RateCounter{},
	}
}

// AutoMigrate creates or updates the schema.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}
