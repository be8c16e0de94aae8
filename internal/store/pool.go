// Package store holds the process-wide SQL connection pool used by the sql
// tool. The pool is created on first use and shared by every invocation.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"wpmcp/internal/model"
)

const (
	DriverPostgres = "pgx"
	DriverSQLite   = "sqlite"

	DefaultMaxOpenConns   = 5
	DefaultIdleTimeout    = 30 * time.Second
	DefaultAcquireTimeout = 5 * time.Second
)

// Config describes where the pool connects. DSN wins over the discrete
// Postgres settings when both are present.
type Config struct {
	Driver   string
	DSN      string
	Host     string
	Port     int
	Name     string
	User     string
	Password string

	MaxOpenConns   int
	IdleTimeout    time.Duration
	AcquireTimeout time.Duration
}

// QueryResult mirrors what the sql tool reports back.
type QueryResult struct {
	RowCount int64            `json:"rowCount"`
	Columns  []string         `json:"columns"`
	Rows     []map[string]any `json:"rows"`
}

// Pool is a lazily opened, bounded *sql.DB. Callers beyond the connection
// bound queue until AcquireTimeout.
type Pool struct {
	cfg Config

	mu sync.Mutex
	db *sql.DB
}

func NewPool(cfg Config) *Pool {
	if cfg.Driver == "" {
		cfg.Driver = DriverPostgres
	}
	if cfg.MaxOpenConns <= 0 {
		cfg.MaxOpenConns = DefaultMaxOpenConns
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.AcquireTimeout <= 0 {
		cfg.AcquireTimeout = DefaultAcquireTimeout
	}
	return &Pool{cfg: cfg}
}

// Configured reports whether DB would open without a ConfigurationMissing
// error.
func (p *Pool) Configured() bool {
	_, err := p.cfg.dataSource()
	return err == nil
}

// DB returns the shared handle, opening it on first use. The lock is never
// held across a query.
func (p *Pool) DB(ctx context.Context) (*sql.DB, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.db != nil {
		return p.db, nil
	}

	dsn, err := p.cfg.dataSource()
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(p.cfg.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s pool: %w", p.cfg.Driver, err)
	}
	db.SetMaxOpenConns(p.cfg.MaxOpenConns)
	db.SetMaxIdleConns(p.cfg.MaxOpenConns)
	db.SetConnMaxIdleTime(p.cfg.IdleTimeout)

	if p.cfg.Driver == DriverSQLite {
		if _, err := db.ExecContext(ctx, `PRAGMA busy_timeout=5000;`); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("configure sqlite: %w", err)
		}
	}

	p.db = db
	return db, nil
}

// Query runs statement with positional args. Row-returning statements are
// read in full; anything else reports rows affected.
func (p *Pool) Query(ctx context.Context, statement string, args []any) (QueryResult, error) {
	db, err := p.DB(ctx)
	if err != nil {
		return QueryResult{}, err
	}

	acquireCtx, cancel := context.WithTimeout(ctx, p.cfg.AcquireTimeout)
	conn, err := db.Conn(acquireCtx)
	cancel()
	if err != nil {
		return QueryResult{}, fmt.Errorf("acquire database connection: %w", err)
	}
	defer func() {
		_ = conn.Close()
	}()

	if !ReturnsRows(statement) {
		res, err := conn.ExecContext(ctx, statement, args...)
		if err != nil {
			return QueryResult{}, err
		}
		affected, _ := res.RowsAffected()
		return QueryResult{RowCount: affected, Columns: []string{}, Rows: []map[string]any{}}, nil
	}

	rows, err := conn.QueryContext(ctx, statement, args...)
	if err != nil {
		return QueryResult{}, err
	}
	defer func() {
		_ = rows.Close()
	}()

	columns, err := rows.Columns()
	if err != nil {
		return QueryResult{}, err
	}
	out := QueryResult{Columns: columns, Rows: []map[string]any{}}
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return QueryResult{}, err
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = normalizeValue(values[i])
		}
		out.Rows = append(out.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return QueryResult{}, err
	}
	out.RowCount = int64(len(out.Rows))
	return out, nil
}

// Ping checks connectivity, opening the pool if needed.
func (p *Pool) Ping(ctx context.Context) error {
	db, err := p.DB(ctx)
	if err != nil {
		return err
	}
	return db.PingContext(ctx)
}

func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.db == nil {
		return nil
	}
	err := p.db.Close()
	p.db = nil
	return err
}

// IsReadOnly reports whether statement starts with SELECT, the only
// statement kind the sql tool permits without write access.
func IsReadOnly(statement string) bool {
	return leadingKeyword(statement) == "SELECT"
}

// ReturnsRows reports whether statement is read with QueryContext.
func ReturnsRows(statement string) bool {
	switch leadingKeyword(statement) {
	case "SELECT", "WITH", "SHOW", "EXPLAIN", "VALUES", "TABLE", "PRAGMA":
		return true
	}
	return strings.Contains(strings.ToUpper(statement), "RETURNING")
}

func leadingKeyword(statement string) string {
	s := strings.TrimSpace(statement)
	for strings.HasPrefix(s, "(") {
		s = strings.TrimSpace(s[1:])
	}
	end := strings.IndexFunc(s, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z')
	})
	if end >= 0 {
		s = s[:end]
	}
	return strings.ToUpper(s)
}

func normalizeValue(v any) any {
	switch val := v.(type) {
	case []byte:
		return string(val)
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	default:
		return val
	}
}

func (c Config) dataSource() (string, error) {
	if dsn := strings.TrimSpace(c.DSN); dsn != "" {
		return dsn, nil
	}
	switch c.Driver {
	case DriverSQLite:
		return "", &model.ConfigurationMissingError{Component: "SQL", Settings: []string{"DATABASE_URL"}}
	case DriverPostgres:
		var missing []string
		for _, s := range []struct{ name, value string }{
			{"DB_HOST", c.Host},
			{"DB_NAME", c.Name},
			{"DB_USER", c.User},
			{"DB_PASSWORD", c.Password},
		} {
			if strings.TrimSpace(s.value) == "" {
				missing = append(missing, s.name)
			}
		}
		if len(missing) > 0 {
			return "", &model.ConfigurationMissingError{Component: "SQL", Settings: missing}
		}
		port := c.Port
		if port <= 0 {
			port = 5432
		}
		u := url.URL{
			Scheme:   "postgres",
			User:     url.UserPassword(c.User, c.Password),
			Host:     net.JoinHostPort(c.Host, strconv.Itoa(port)),
			Path:     "/" + c.Name,
			RawQuery: "connect_timeout=5",
		}
		return u.String(), nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", c.Driver)
	}
}
