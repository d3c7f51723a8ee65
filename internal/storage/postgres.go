package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/xaenox/engagebot/internal/models"
)

//go:embed migrations.sql
var migrations embed.FS

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// PostgresStore keeps the ledger in the ledger_entries table. Rows are only
// ever inserted.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(ctx context.Context, config DatabaseConfig) (*PostgresStore, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.DBName, config.SSLMode)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	// Test the connection
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("error connecting to the database: %w", err)
	}

	store := NewPostgresStoreWithDB(db)
	if err := store.initializeSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("error initializing database schema: %w", err)
	}
	return store, nil
}

// NewPostgresStoreWithDB wraps an open handle without running migrations.
func NewPostgresStoreWithDB(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) initializeSchema(ctx context.Context) error {
	migrationSQL, err := migrations.ReadFile("migrations.sql")
	if err != nil {
		return fmt.Errorf("error reading migrations file: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, string(migrationSQL)); err != nil {
		return fmt.Errorf("error executing migrations: %w", err)
	}
	return nil
}

func (s *PostgresStore) Append(ctx context.Context, entry models.LedgerEntry) error {
	meta := entry.Metadata
	if meta == nil {
		meta = map[string]string{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("error encoding ledger metadata: %w", err)
	}

	query := `INSERT INTO ledger_entries (action_key, recorded_at, metadata) VALUES ($1, $2, $3)`
	if _, err := s.db.ExecContext(ctx, query, entry.Key, entry.Timestamp.UTC(), string(metaJSON)); err != nil {
		return fmt.Errorf("error inserting ledger entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) Load(ctx context.Context, since time.Time) ([]RawEntry, error) {
	query := `SELECT action_key, recorded_at, metadata FROM ledger_entries WHERE recorded_at >= $1 ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("error querying ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []RawEntry
	for rows.Next() {
		var (
			key        string
			recordedAt time.Time
			metaJSON   []byte
		)
		if err := rows.Scan(&key, &recordedAt, &metaJSON); err != nil {
			return nil, fmt.Errorf("error scanning ledger entry: %w", err)
		}
		e := RawEntry{Key: key, Timestamp: FormatTimestamp(recordedAt)}
		if len(metaJSON) > 0 {
			if err := json.Unmarshal(metaJSON, &e.Metadata); err != nil {
				return nil, fmt.Errorf("error decoding metadata of %s: %w", key, err)
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ledger entries: %w", err)
	}
	return entries, nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
