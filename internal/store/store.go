package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"

	"github.com/bit2swaz/salesflood/internal/sales"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"

	DefaultTable = "vendas"
)

var (
	ErrUnsupportedDriver = errors.New("unsupported driver")
	ErrInvalidTable      = errors.New("invalid table name")
	ErrClosed            = errors.New("session is closed")
)

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

type Config struct {
	Driver string
	DSN    string
	Table  string
}

// SQLiteDSN builds the DSN used for local sqlite files.
func SQLiteDSN(path string) string {
	return fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", path)
}

func (c Config) validate() error {
	switch c.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedDriver, c.Driver)
	}
	if !tableName.MatchString(c.Table) {
		return fmt.Errorf("%w: %q", ErrInvalidTable, c.Table)
	}
	return nil
}

// Session is a single dedicated datastore connection. It is replaced
// wholesale on failure rather than repaired.
type Session struct {
	cfg       Config
	db        *sql.DB
	conn      *sql.Conn
	insertSQL string
}

// Open dials the datastore and pins one connection for the session.
func Open(ctx context.Context, cfg Config) (*Session, error) {
	if cfg.Table == "" {
		cfg.Table = DefaultTable
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	conn, err := db.Conn(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Session{
		cfg:       cfg,
		db:        db,
		conn:      conn,
		insertSQL: insertStatement(cfg.Driver, cfg.Table),
	}, nil
}

func insertStatement(driver, table string) string {
	placeholders := "$1, $2, $3, $4, $5"
	if driver == DriverSQLite {
		placeholders = "?, ?, ?, ?, ?"
	}
	return fmt.Sprintf(
		"INSERT INTO %s (produto, categoria, preco_unitario, quantidade, data_venda) VALUES (%s)",
		table, placeholders)
}

func (s *Session) Close() error {
	if s.db == nil {
		return nil
	}

	var connErr error
	if s.conn != nil {
		connErr = s.conn.Close()
		s.conn = nil
	}
	dbErr := s.db.Close()
	s.db = nil

	return errors.Join(connErr, dbErr)
}

func (s *Session) Ping(ctx context.Context) error {
	if s.conn == nil {
		return ErrClosed
	}
	return s.conn.PingContext(ctx)
}

// Insert writes rec as one row in its own transaction and commits it.
func (s *Session) Insert(ctx context.Context, rec sales.Record) error {
	if s.conn == nil {
		return ErrClosed
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	_, err = tx.ExecContext(ctx, s.insertSQL,
		rec.Product, rec.Category, rec.UnitPrice, rec.Quantity, rec.SoldAt)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("insert failed: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit failed: %w", err)
	}
	return nil
}

// EnsureSchema creates the sales table if it does not exist. Production
// tables are owned by migrations; this is for local sqlite runs.
func (s *Session) EnsureSchema(ctx context.Context) error {
	if s.conn == nil {
		return ErrClosed
	}

	id := "id SERIAL PRIMARY KEY"
	if s.cfg.Driver == DriverSQLite {
		id = "id INTEGER PRIMARY KEY AUTOINCREMENT"
	}

	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
  %s,
  produto TEXT NOT NULL,
  categoria TEXT NOT NULL,
  preco_unitario INTEGER NOT NULL,
  quantidade INTEGER NOT NULL,
  data_venda TIMESTAMP NOT NULL
)`, s.cfg.Table, id)

	if _, err := s.conn.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create table %s: %w", s.cfg.Table, err)
	}
	return nil
}

func (s *Session) Count(ctx context.Context) (int64, error) {
	if s.conn == nil {
		return 0, ErrClosed
	}

	var n int64
	err := s.conn.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", s.cfg.Table)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count failed: %w", err)
	}
	return n, nil
}
