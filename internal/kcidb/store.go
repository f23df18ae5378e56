package kcidb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"

	_ "github.com/lib/pq"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// ErrNoDateRange is returned when a query has neither start nor end date.
var ErrNoDateRange = errors.New("at least one of date-from and date-until must be specified")

// Result is a failed build or test with a log.
type Result struct {
	ID     string
	LogURL string
}

// Store reads results and issues from a KCIDB database.
type Store struct {
	db *sql.DB
}

// Open connects to the database. driver is "postgres" or "sqlite3".
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return &Store{db: db}, nil
}

// NewStore wraps an open database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// WithPassword adds password to a PostgreSQL connection string, either in
// URL or in key/value form.
func WithPassword(dsn, password string) string {
	if password == "" {
		return dsn
	}
	if u, err := url.Parse(dsn); err == nil && (u.Scheme == "postgres" || u.Scheme == "postgresql") {
		user := ""
		if u.User != nil {
			user = u.User.Username()
		}
		u.User = url.UserPassword(user, password)
		return u.String()
	}
	escaped := strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(password)
	return strings.TrimSpace(dsn + " password='" + escaped + "'")
}

// resultsQuery appends the date filter and ordering to the object type
// query.
func resultsQuery(ot ObjectType, dateFrom, dateUntil string) (string, []any, error) {
	query := ot.Query
	params := append([]any{}, ot.Params...)
	next := func(v any) string {
		params = append(params, v)
		return fmt.Sprintf("$%d", len(params))
	}
	switch {
	case dateFrom != "" && dateUntil != "":
		query += " AND start_time BETWEEN " + next(dateFrom) + " AND " + next(dateUntil)
	case dateFrom != "":
		query += " AND start_time >= " + next(dateFrom)
	case dateUntil != "":
		query += " AND start_time <= " + next(dateUntil)
	default:
		return "", nil, ErrNoDateRange
	}
	return query + " ORDER BY start_time", params, nil
}

// Results returns the results of type ot started in the date range, oldest
// first.
func (s *Store) Results(ctx context.Context, ot ObjectType, dateFrom, dateUntil string) ([]Result, error) {
	query, params, err := resultsQuery(ot, dateFrom, dateUntil)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s results: %w", ot.Name, err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ID, &r.LogURL); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read results: %w", err)
	}
	return results, nil
}

// IssueVersions returns the version of every known issue, by issue id.
func (s *Store) IssueVersions(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, version FROM issues")
	if err != nil {
		return nil, fmt.Errorf("failed to query issues: %w", err)
	}
	defer rows.Close()

	versions := make(map[string]int)
	for rows.Next() {
		var (
			id      string
			version int
		)
		if err := rows.Scan(&id, &version); err != nil {
			return nil, fmt.Errorf("failed to scan issue: %w", err)
		}
		versions[id] = version
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read issues: %w", err)
	}
	return versions, nil
}
