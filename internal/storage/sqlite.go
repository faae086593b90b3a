package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/chikai/internal/models"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if err := ensureDir(dbPath); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS events (
		id TEXT PRIMARY KEY,
		title TEXT,
		venue TEXT,
		description TEXT,
		category TEXT,
		starts_at TIMESTAMP,
		metadata TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_events_created_at ON events(created_at);

	CREATE TABLE IF NOT EXISTS event_vectors (
		id TEXT PRIMARY KEY,
		dimensions INTEGER NOT NULL,
		vector BLOB NOT NULL,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (id) REFERENCES events(id) ON DELETE CASCADE
	);
	`
	_, err := db.Exec(schema)
	return err
}

// UpsertEvent inserts an event or replaces the stored fields of an existing one.
// CreatedAt is preserved on update.
func (s *SQLiteStorage) UpsertEvent(ctx context.Context, event *models.Event) error {
	metadataJSON, err := json.Marshal(event.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	now := time.Now()
	if event.CreatedAt.IsZero() {
		event.CreatedAt = now
	}
	event.UpdatedAt = now

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO events (id, title, venue, description, category, starts_at, metadata, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   title = excluded.title,
		   venue = excluded.venue,
		   description = excluded.description,
		   category = excluded.category,
		   starts_at = excluded.starts_at,
		   metadata = excluded.metadata,
		   updated_at = excluded.updated_at`,
		event.ID, event.Title, event.Venue, event.Description, event.Category,
		nullTime(event.StartsAt), string(metadataJSON), event.CreatedAt, event.UpdatedAt,
	)
	return err
}

// GetEvent returns an event by ID, or an error wrapping ErrNotFound.
func (s *SQLiteStorage) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, venue, description, category, starts_at, metadata, created_at, updated_at
		 FROM events WHERE id = ?`, id,
	)
	event, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("event %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return event, nil
}

// DeleteEvent removes an event and its vector.
func (s *SQLiteStorage) DeleteEvent(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("event %s: %w", id, ErrNotFound)
	}
	return nil
}

// ListEvents returns events with offset and limit, newest first.
func (s *SQLiteStorage) ListEvents(ctx context.Context, offset, limit int) ([]*models.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, venue, description, category, starts_at, metadata, created_at, updated_at
		 FROM events ORDER BY created_at DESC, id LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*models.Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// FindEvent looks up an event by title, venue, and start time, or returns an
// error wrapping ErrNotFound.
func (s *SQLiteStorage) FindEvent(ctx context.Context, title, venue string, startsAt *time.Time) (*models.Event, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, venue, description, category, starts_at, metadata, created_at, updated_at
		 FROM events WHERE title = ? AND COALESCE(venue, '') = ? AND starts_at IS ?
		 ORDER BY created_at, id LIMIT 1`,
		title, venue, nullTime(startsAt),
	)
	event, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("event %q: %w", title, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return event, nil
}

// PutVector stores the vector for an existing event, replacing any previous one.
func (s *SQLiteStorage) PutVector(ctx context.Context, id string, vec []float32) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO event_vectors (id, dimensions, vector, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET dimensions = excluded.dimensions, vector = excluded.vector, updated_at = excluded.updated_at`,
		id, len(vec), encodeVector(vec), time.Now(),
	)
	return err
}

// GetVector returns the stored vector for id, or an error wrapping ErrNotFound.
func (s *SQLiteStorage) GetVector(ctx context.Context, id string) ([]float32, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx, `SELECT vector FROM event_vectors WHERE id = ?`, id).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("vector %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return decodeVector(blob)
}

// ListVectors streams every stored vector ordered by id.
func (s *SQLiteStorage) ListVectors(ctx context.Context, fn func(id string, vec []float32) error) error {
	rows, err := s.db.QueryContext(ctx, `SELECT id, vector FROM event_vectors ORDER BY id`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return err
		}
		vec, err := decodeVector(blob)
		if err != nil {
			return fmt.Errorf("vector %s: %w", id, err)
		}
		if err := fn(id, vec); err != nil {
			return err
		}
	}
	return rows.Err()
}

// CountEvents returns the total number of events.
func (s *SQLiteStorage) CountEvents(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&count)
	return count, err
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(row scanner) (*models.Event, error) {
	var event models.Event
	var venue, description, category, metadataJSON sql.NullString
	var startsAt sql.NullTime
	if err := row.Scan(&event.ID, &event.Title, &venue, &description, &category,
		&startsAt, &metadataJSON, &event.CreatedAt, &event.UpdatedAt); err != nil {
		return nil, err
	}
	event.Venue = venue.String
	event.Description = description.String
	event.Category = category.String
	if startsAt.Valid {
		t := startsAt.Time
		event.StartsAt = &t
	}
	if metadataJSON.Valid && metadataJSON.String != "" && metadataJSON.String != "null" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &event.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	return &event, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
