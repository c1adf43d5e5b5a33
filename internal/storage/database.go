package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/conorfennell/prepdeck/internal/domain"
	_ "modernc.org/sqlite" // Registers the sqlite driver
)

// ErrNoRows is returned by writes that expected to touch an existing entry.
var ErrNoRows = errors.New("no matching row")

// DB represents a wrapper around the SQL database connection.
type DB struct {
	conn *sql.DB
}

// Open creates a new database connection and ensures the schema is up to date.
func Open(ctx context.Context, dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps pragmas and :memory: databases consistent.
	conn.SetMaxOpenConns(1)

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db := New(conn)
	if err := db.Migrate(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

// New wraps an existing connection without touching the schema.
func New(conn *sql.DB) *DB {
	return &DB{conn: conn}
}

// Migrate applies pragmas and creates the tables if they don't exist.
func (db *DB) Migrate(ctx context.Context) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.conn.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("failed to apply %s: %w", p, err)
		}
	}
	if _, err := db.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// LoadAll returns every entry with its review state, in insertion order.
func (db *DB) LoadAll(ctx context.Context) ([]domain.Record, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT e.id, e.category, e.prompt, e.answer, e.difficulty, e.source, e.created_at,
		       r.last_reviewed, r.next_due, r.interval_days, r.streak, r.ease, r.reviews
		FROM entries e
		JOIN review_states r ON r.entry_id = e.id
		ORDER BY e.seq
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to load entries: %w", err)
	}
	defer rows.Close()

	var records []domain.Record
	index := make(map[string]int)
	for rows.Next() {
		var (
			rec                domain.Record
			created, last, due string
		)
		if err := rows.Scan(
			&rec.Entry.ID,
			&rec.Entry.Category,
			&rec.Entry.Prompt,
			&rec.Entry.Answer,
			&rec.Entry.Difficulty,
			&rec.Entry.Source,
			&created,
			&last,
			&due,
			&rec.Review.Interval,
			&rec.Review.Streak,
			&rec.Review.Ease,
			&rec.Review.Reviews,
		); err != nil {
			return nil, fmt.Errorf("failed to scan entry row: %w", err)
		}
		if rec.Entry.CreatedAt, err = parseTime(created); err != nil {
			return nil, fmt.Errorf("entry %s created_at: %w", rec.Entry.ID, err)
		}
		if rec.Review.LastReviewed, err = parseTime(last); err != nil {
			return nil, fmt.Errorf("entry %s last_reviewed: %w", rec.Entry.ID, err)
		}
		if rec.Review.NextDue, err = parseTime(due); err != nil {
			return nil, fmt.Errorf("entry %s next_due: %w", rec.Entry.ID, err)
		}
		index[rec.Entry.ID] = len(records)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate entries: %w", err)
	}

	if err := db.loadTags(ctx, records, index); err != nil {
		return nil, err
	}
	return records, nil
}

func (db *DB) loadTags(ctx context.Context, records []domain.Record, index map[string]int) error {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT entry_id, tag FROM entry_tags ORDER BY entry_id, position
	`)
	if err != nil {
		return fmt.Errorf("failed to load tags: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, tag string
		if err := rows.Scan(&id, &tag); err != nil {
			return fmt.Errorf("failed to scan tag row: %w", err)
		}
		i, ok := index[id]
		if !ok {
			continue
		}
		records[i].Entry.Tags = append(records[i].Entry.Tags, tag)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate tags: %w", err)
	}
	return nil
}

// Insert stores a new entry together with its review state.
func (db *DB) Insert(ctx context.Context, rec domain.Record) error {
	return db.inTx(ctx, func(tx *sql.Tx) error {
		e := rec.Entry
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO entries (id, category, prompt, answer, difficulty, source, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, e.ID, e.Category, e.Prompt, e.Answer, e.Difficulty, e.Source, formatTime(e.CreatedAt)); err != nil {
			return fmt.Errorf("failed to insert entry %s: %w", e.ID, err)
		}
		if err := insertTags(ctx, tx, e.ID, e.Tags); err != nil {
			return err
		}
		rs := rec.Review
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO review_states (entry_id, last_reviewed, next_due, interval_days, streak, ease, reviews)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, e.ID, formatTime(rs.LastReviewed), formatTime(rs.NextDue), rs.Interval, rs.Streak, rs.Ease, rs.Reviews); err != nil {
			return fmt.Errorf("failed to insert review state for %s: %w", e.ID, err)
		}
		return nil
	})
}

// UpdateEntry replaces the content of an existing entry. The review state is
// left alone.
func (db *DB) UpdateEntry(ctx context.Context, e domain.Entry) error {
	return db.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE entries
			SET category = ?, prompt = ?, answer = ?, difficulty = ?, source = ?
			WHERE id = ?
		`, e.Category, e.Prompt, e.Answer, e.Difficulty, e.Source, e.ID)
		if err != nil {
			return fmt.Errorf("failed to update entry %s: %w", e.ID, err)
		}
		if err := expectOneRow(res, e.ID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM entry_tags WHERE entry_id = ?`, e.ID); err != nil {
			return fmt.Errorf("failed to clear tags for %s: %w", e.ID, err)
		}
		return insertTags(ctx, tx, e.ID, e.Tags)
	})
}

// SaveReviewState overwrites the review state of an existing entry.
func (db *DB) SaveReviewState(ctx context.Context, id string, rs domain.ReviewState) error {
	res, err := db.conn.ExecContext(ctx, `
		UPDATE review_states
		SET last_reviewed = ?, next_due = ?, interval_days = ?, streak = ?, ease = ?, reviews = ?
		WHERE entry_id = ?
	`, formatTime(rs.LastReviewed), formatTime(rs.NextDue), rs.Interval, rs.Streak, rs.Ease, rs.Reviews, id)
	if err != nil {
		return fmt.Errorf("failed to update review state for %s: %w", id, err)
	}
	return expectOneRow(res, id)
}

// Delete removes an entry, its tags and its review state.
func (db *DB) Delete(ctx context.Context, id string) error {
	return db.inTx(ctx, func(tx *sql.Tx) error {
		for _, stmt := range []string{
			`DELETE FROM review_states WHERE entry_id = ?`,
			`DELETE FROM entry_tags WHERE entry_id = ?`,
		} {
			if _, err := tx.ExecContext(ctx, stmt, id); err != nil {
				return fmt.Errorf("failed to delete entry %s: %w", id, err)
			}
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM entries WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("failed to delete entry %s: %w", id, err)
		}
		return expectOneRow(res, id)
	})
}

func (db *DB) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func insertTags(ctx context.Context, tx *sql.Tx, id string, tags []string) error {
	for i, tag := range tags {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO entry_tags (entry_id, position, tag) VALUES (?, ?, ?)
		`, id, i, tag); err != nil {
			return fmt.Errorf("failed to insert tag %q for %s: %w", tag, id, err)
		}
	}
	return nil
}

func expectOneRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows for %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("entry %s: %w", id, ErrNoRows)
	}
	return nil
}

// Times are stored as RFC 3339 text in UTC; the zero time is stored as
// an empty string.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}
