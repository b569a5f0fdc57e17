/*
Package sqlstore provides the database/sql implementation of ledger.TxStore.

PURPOSE:
  One store for both supported databases:
    sqlite3:  single-file or ":memory:" database (development, tests)
    postgres: server deployments

  Queries are written once with "?" placeholders and rebound to "$n" for
  postgres. Money is stored as decimal TEXT, timestamps as fixed-width
  RFC3339 UTC TEXT with nanoseconds, so both engines compare and order
  them the same way.

TENANCY:
  Every row carries teacher_id and every query filters on it. A row of
  another teacher is reported as NotFound.

MIGRATION:
  Schema is migrated on New() by golang-migrate from the embedded
  migrations/ directory.

CONCURRENCY:
  WithTx is serialized per teacher: an in-process mutex, plus
  pg_advisory_xact_lock on postgres so several API replicas agree.
  SQLite runs with a single connection, WAL and a busy timeout.

USAGE:
  store, err := sqlstore.New(ctx, sqlstore.Config{Driver: "sqlite3", DSN: "./data/lessons.db"})
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - ledger/store.go: Interface definitions
  - ledger/store/memory.go: In-memory implementation for testing
*/
package sqlstore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/lib/pq"
	sqlite "github.com/mattn/go-sqlite3"
	"github.com/warp/lesson-ledger/ledger"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

type Config struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Store implements ledger.TxStore and auth.UserStore.
type Store struct {
	*queries
	db     *sql.DB
	driver string

	mu    sync.Mutex
	locks map[ledger.TeacherID]*sync.Mutex
}

// New opens the database and applies pending migrations.
// Use DSN ":memory:" with the sqlite3 driver for an in-memory database.
func New(ctx context.Context, cfg Config) (*Store, error) {
	switch cfg.Driver {
	case "", DriverSQLite:
		cfg.Driver = DriverSQLite
	case DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := sql.Open(cfg.Driver, dataSource(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	configurePool(db, cfg)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := runMigrations(db, cfg); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Store{
		queries: &queries{db: db, postgres: cfg.Driver == DriverPostgres},
		db:      db,
		driver:  cfg.Driver,
		locks:   make(map[ledger.TeacherID]*sync.Mutex),
	}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func dataSource(cfg Config) string {
	if cfg.Driver != DriverSQLite {
		return cfg.DSN
	}
	sep := "?"
	if strings.Contains(cfg.DSN, "?") {
		sep = "&"
	}
	return cfg.DSN + sep + "_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000"
}

func configurePool(db *sql.DB, cfg Config) {
	if cfg.Driver == DriverSQLite {
		// One connection: ":memory:" databases are per connection and
		// SQLite has a single writer anyway.
		db.SetMaxOpenConns(1)
		return
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
}

// runMigrations applies migrations/*.sql. For SQLite the store's own handle
// is used (an in-memory database is invisible to other handles) and the
// migrator is not closed, since closing it would close the handle. Postgres
// migrates through a short-lived handle of its own.
func runMigrations(db *sql.DB, cfg Config) error {
	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	var (
		driver database.Driver
		own    *sql.DB
	)
	switch cfg.Driver {
	case DriverSQLite:
		driver, err = sqlite3.WithInstance(db, &sqlite3.Config{})
	case DriverPostgres:
		own, err = openMigrationDB(cfg.DSN)
		if err == nil {
			driver, err = postgres.WithInstance(own, &postgres.Config{})
		}
	}
	if err != nil {
		closeHandle(own)
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, cfg.Driver, driver)
	if err != nil {
		closeHandle(own)
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	if own != nil {
		// Closes the driver and with it the handle.
		defer func() { _, _ = m.Close() }()
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

// openMigrationDB opens the postgres handle used only for migrating.
var openMigrationDB = func(dsn string) (*sql.DB, error) {
	return sql.Open(DriverPostgres, dsn)
}

func closeHandle(db *sql.DB) {
	if db != nil {
		_ = db.Close()
	}
}

// =============================================================================
// TRANSACTIONAL STORE (ledger.TxStore interface)
// =============================================================================

func (s *Store) teacherLock(teacher ledger.TeacherID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[teacher]
	if !ok {
		l = &sync.Mutex{}
		s.locks[teacher] = l
	}
	return l
}

// WithTx executes fn within a database transaction serialized per teacher.
func (s *Store) WithTx(ctx context.Context, teacher ledger.TeacherID, fn func(ledger.Store) error) error {
	lock := s.teacherLock(teacher)
	lock.Lock()
	defer lock.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if s.driver == DriverPostgres {
		if _, err := sqlTx.ExecContext(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", string(teacher)); err != nil {
			return fmt.Errorf("failed to lock teacher: %w", err)
		}
	}

	if err := fn(&queries{db: sqlTx, postgres: s.queries.postgres}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// CreateLessons inserts the batch in its own transaction when called outside WithTx.
func (s *Store) CreateLessons(ctx context.Context, teacher ledger.TeacherID, lessons []ledger.Lesson) error {
	return s.WithTx(ctx, teacher, func(tx ledger.Store) error {
		return tx.CreateLessons(ctx, teacher, lessons)
	})
}

var (
	_ ledger.TxStore             = (*Store)(nil)
	_ ledger.UpcomingLessonStore = (*Store)(nil)
)

// =============================================================================
// HELPERS
// =============================================================================

// rebind turns "?" placeholders into "$1", "$2", ... for postgres.
func rebind(postgres bool, query string) string {
	if !postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// timeLayout keeps every digit of the fraction so string order is time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid stored time %q: %w", s, err)
	}
	return t, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite.ErrConstraintPrimaryKey
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
