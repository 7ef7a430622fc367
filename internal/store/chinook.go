package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/tunedesk/tunedesk/internal/observability"
	"github.com/tunedesk/tunedesk/internal/tracing"
)

// Store wraps the Chinook SQLite database. It exposes the raw query
// surface the sub-agent tools use plus the typed identity lookups.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

// Config holds store configuration
type Config struct {
	// Path to the SQLite file. Empty opens an in-memory database.
	Path string

	// SchemaFile is an optional SQL script executed when the database
	// has no Customer table yet.
	SchemaFile string

	Logger zerolog.Logger
}

// Open opens (and if needed bootstraps) the Chinook database.
func Open(cfg Config) (*Store, error) {
	observability.EnsureRegistered()

	dsn := cfg.Path
	if dsn == "" {
		// Shared cache keeps the in-memory database alive across the
		// pool's connections.
		dsn = "file::memory:?cache=shared"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.Path == "" {
		// A second connection to an in-memory database would otherwise
		// see an empty schema.
		db.SetMaxOpenConns(1)
	} else {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	s := &Store{
		db:     db,
		logger: cfg.Logger,
	}

	populated, err := s.hasCustomerTable()
	if err != nil {
		db.Close()
		return nil, err
	}

	if !populated && cfg.SchemaFile != "" {
		script, err := os.ReadFile(cfg.SchemaFile)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to read schema file: %w", err)
		}
		if err := s.Bootstrap(string(script)); err != nil {
			db.Close()
			return nil, err
		}
		s.logger.Info().Str("schema", cfg.SchemaFile).Msg("Store bootstrapped")
	}

	s.logger.Info().Str("path", cfg.Path).Msg("Store opened")

	return s, nil
}

// Bootstrap executes a SQL script against the store.
func (s *Store) Bootstrap(script string) error {
	if _, err := s.db.Exec(script); err != nil {
		return fmt.Errorf("failed to execute schema script: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) hasCustomerTable() (bool, error) {
	var name string
	err := s.db.QueryRow(
		"SELECT name FROM sqlite_master WHERE type='table' AND name='Customer'",
	).Scan(&name)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to inspect schema: %w", err)
	}
	return true, nil
}

// Run executes a read query and renders the row set as text. With
// includeColumns each row is rendered as a column-keyed record,
// otherwise as a bare tuple. An empty result renders as "".
func (s *Store) Run(ctx context.Context, query string, includeColumns bool, args ...interface{}) (string, error) {
	ctx, span := tracing.StartSpan(
		ctx,
		"tunedesk.store",
		"store.run",
	)
	defer span.End()
	start := time.Now()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		observability.RecordStoreQuery(time.Since(start), false)
		span.RecordError(err)
		return "", fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		observability.RecordStoreQuery(time.Since(start), false)
		return "", fmt.Errorf("failed to read columns: %w", err)
	}

	var rendered []string
	for rows.Next() {
		values := make([]interface{}, len(columns))
		scanTargets := make([]interface{}, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			observability.RecordStoreQuery(time.Since(start), false)
			return "", fmt.Errorf("failed to scan row: %w", err)
		}
		rendered = append(rendered, renderRow(columns, values, includeColumns))
	}
	if err := rows.Err(); err != nil {
		observability.RecordStoreQuery(time.Since(start), false)
		return "", fmt.Errorf("row iteration failed: %w", err)
	}

	observability.RecordStoreQuery(time.Since(start), true)
	span.SetAttributes(attribute.Int("rows", len(rendered)))

	if len(rendered) == 0 {
		return "", nil
	}
	return "[" + strings.Join(rendered, ", ") + "]", nil
}

// LookupCustomerIDByEmail resolves a customer ID by email. Returns 0
// when no customer matches.
func (s *Store) LookupCustomerIDByEmail(ctx context.Context, email string) (int, error) {
	return s.lookupCustomerID(ctx, "SELECT CustomerId FROM Customer WHERE Email = ?", email)
}

// LookupCustomerIDByPhone resolves a customer ID by phone number.
// Returns 0 when no customer matches.
func (s *Store) LookupCustomerIDByPhone(ctx context.Context, phone string) (int, error) {
	return s.lookupCustomerID(ctx, "SELECT CustomerId FROM Customer WHERE Phone = ?", phone)
}

// QueryIDs runs a single-column query and returns the values as
// integers. Used for id-list subqueries that feed a second query.
func (s *Store) QueryIDs(ctx context.Context, query string, args ...interface{}) ([]int64, error) {
	start := time.Now()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		observability.RecordStoreQuery(time.Since(start), false)
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			observability.RecordStoreQuery(time.Since(start), false)
			return nil, fmt.Errorf("failed to scan id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		observability.RecordStoreQuery(time.Since(start), false)
		return nil, fmt.Errorf("row iteration failed: %w", err)
	}

	observability.RecordStoreQuery(time.Since(start), true)
	return ids, nil
}

func (s *Store) lookupCustomerID(ctx context.Context, query, arg string) (int, error) {
	start := time.Now()

	var id int
	err := s.db.QueryRowContext(ctx, query, arg).Scan(&id)
	if err == sql.ErrNoRows {
		observability.RecordStoreQuery(time.Since(start), true)
		return 0, nil
	}
	if err != nil {
		observability.RecordStoreQuery(time.Since(start), false)
		return 0, fmt.Errorf("customer lookup failed: %w", err)
	}

	observability.RecordStoreQuery(time.Since(start), true)
	return id, nil
}

// renderRow renders one row the way the model prompts expect: a
// column-keyed record like {'Title': 'Achtung Baby', 'ArtistName': 'U2'}
// or a bare tuple like ('Achtung Baby', 'U2').
func renderRow(columns []string, values []interface{}, includeColumns bool) string {
	parts := make([]string, len(values))
	for i, v := range values {
		if includeColumns {
			parts[i] = "'" + columns[i] + "': " + renderValue(v)
		} else {
			parts[i] = renderValue(v)
		}
	}
	if includeColumns {
		return "{" + strings.Join(parts, ", ") + "}"
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

func renderValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return "None"
	case []byte:
		return "'" + strings.ReplaceAll(string(val), "'", "\\'") + "'"
	case string:
		return "'" + strings.ReplaceAll(val, "'", "\\'") + "'"
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case bool:
		if val {
			return "True"
		}
		return "False"
	case time.Time:
		return "'" + val.Format("2006-01-02 15:04:05") + "'"
	default:
		return fmt.Sprintf("%v", val)
	}
}
