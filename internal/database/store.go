package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var (
	// ErrDuplicate is returned when a write violates a uniqueness constraint.
	ErrDuplicate = errors.New("duplicate")
	// ErrStateConflict is returned when a state transition finds the row in a state it cannot leave.
	ErrStateConflict = errors.New("state conflict")
)

type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

// rebind rewrites ? placeholders to $n for PostgreSQL. Queries never contain
// literal question marks.
func (d dialect) rebind(query string) string {
	if d != dialectPostgres || !strings.Contains(query, "?") {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// handle runs dialect-rebound statements on a pool or a transaction.
type handle struct {
	q queryer
	d dialect
}

func (h handle) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	res, err := h.q.ExecContext(ctx, h.d.rebind(query), args...)
	return res, normalizeErr(err)
}

func (h handle) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return h.q.QueryContext(ctx, h.d.rebind(query), args...)
}

func (h handle) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return h.q.QueryRowContext(ctx, h.d.rebind(query), args...)
}

// insert runs an INSERT ... RETURNING id statement.
func (h handle) insert(ctx context.Context, query string, args ...any) (int64, error) {
	var id int64
	if err := h.queryRow(ctx, query+" RETURNING id", args...).Scan(&id); err != nil {
		return 0, normalizeErr(err)
	}
	return id, nil
}

// execOne runs a statement that must touch exactly one row; zero rows yields sql.ErrNoRows.
func (h handle) execOne(ctx context.Context, query string, args ...any) error {
	res, err := h.exec(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (h handle) exists(ctx context.Context, query string, args ...any) (bool, error) {
	var one int
	err := h.queryRow(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// sqlStore is the SQL core shared by the SQLite and PostgreSQL backends.
type sqlStore struct {
	db      *sql.DB
	dialect dialect
}

func (s *sqlStore) h() handle { return handle{q: s.db, d: s.dialect} }

func (s *sqlStore) Close() error { return s.db.Close() }

func (s *sqlStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *sqlStore) DBStats() sql.DBStats { return s.db.Stats() }

// withTx runs fn in a transaction, retrying on lock contention and serialization
// failures. fn must be safe to run more than once.
func (s *sqlStore) withTx(ctx context.Context, fn func(h handle) error) error {
	const maxAttempts = 8
	for attempt := 0; ; attempt++ {
		err := s.runTx(ctx, fn)
		if err == nil {
			return nil
		}
		if !isRetryableErr(err) || attempt >= maxAttempts-1 {
			return normalizeErr(err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt+1) * 5 * time.Millisecond):
		}
	}
}

func (s *sqlStore) runTx(ctx context.Context, fn func(h handle) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(handle{q: tx, d: s.dialect}); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// normalizeErr maps driver uniqueness violations onto ErrDuplicate.
func normalizeErr(err error) error {
	if err == nil || errors.Is(err, ErrDuplicate) {
		return err
	}
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	}
	return err
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		code := se.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	var pe *pgconn.PgError
	if errors.As(err, &pe) {
		return pe.Code == "23505"
	}
	return false
}

func isRetryableErr(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		primary := se.Code() & 0xff
		return primary == sqlite3.SQLITE_BUSY || primary == sqlite3.SQLITE_LOCKED
	}
	var pe *pgconn.PgError
	if errors.As(err, &pe) {
		return pe.Code == "40001" || pe.Code == "40P01"
	}
	return isSQLiteBusyErr(err)
}

func isSQLiteBusyErr(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "SQLITE_BUSY") || strings.Contains(s, "database is locked")
}

func pageBounds(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func now() time.Time { return time.Now().UTC() }

// encodeList stores a string list as a JSON array column.
func encodeList(v []string) string {
	if len(v) == 0 {
		return "[]"
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "[]"
	}
	return string(b)
}

// listColumn scans a JSON array column into a string slice.
type listColumn struct{ dst *[]string }

func (l listColumn) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*l.dst = []string{}
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("list column: unsupported type %T", src)
	}
	out := []string{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			return fmt.Errorf("list column: %w", err)
		}
	}
	*l.dst = out
	return nil
}

func collectRows[T any](rows *sql.Rows, scan func(*sql.Rows, *T) error) ([]T, error) {
	defer rows.Close()
	var out []T
	for rows.Next() {
		var v T
		if err := scan(rows, &v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
