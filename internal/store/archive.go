// ABOUTME: SQLite transcript archive using modernc.org/sqlite.
// ABOUTME: Persists every envelope an agent hears or sends, with automatic schema creation.

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/2389/conclave/internal/wire"
)

// Archive persists the conversation an agent witnesses. Rows are keyed by
// ULID so insertion order survives in the primary key.
type Archive struct {
	db     *sql.DB
	logger *slog.Logger
}

// Entry is one archived envelope plus when this agent received it.
type Entry struct {
	ID         string
	Envelope   wire.Envelope
	ReceivedAt time.Time
}

// NewArchive opens (or creates) the transcript database at the given path.
// Parent directories are created if needed. Several agents on one host may
// share a path, so the database runs in WAL mode with a busy timeout.
func NewArchive(path string, logger *slog.Logger) (*Archive, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating archive directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	a := &Archive{
		db:     db,
		logger: logger.With("component", "archive"),
	}

	if err := a.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	a.logger.Info("transcript archive ready", "path", path)
	return a, nil
}

// createSchema creates the messages table if it doesn't exist.
func (a *Archive) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			message_id TEXT NOT NULL,
			sender TEXT NOT NULL,
			kind INTEGER NOT NULL,
			content TEXT NOT NULL,
			turn_seq INTEGER,
			created_at INTEGER NOT NULL,
			received_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_messages_received
			ON messages(received_at);

		CREATE INDEX IF NOT EXISTS idx_messages_sender
			ON messages(sender);
	`

	if _, err := a.db.Exec(schema); err != nil {
		return err
	}
	return nil
}

// Close closes the underlying database.
func (a *Archive) Close() error {
	return a.db.Close()
}

// Append records one envelope. Timestamps are stored as unix milliseconds,
// matching the envelope's own wire precision.
func (a *Archive) Append(ctx context.Context, env wire.Envelope, receivedAt time.Time) error {
	query := `
		INSERT INTO messages (id, message_id, sender, kind, content, turn_seq, created_at, received_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := a.db.ExecContext(ctx, query,
		ulid.Make().String(),
		env.ID.String(),
		env.SenderID,
		int(env.Kind),
		env.Content,
		nullTurnSeq(env),
		env.CreatedAt.UnixMilli(),
		receivedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}

	a.logger.Debug("archived message", "message_id", env.ID, "sender", env.SenderID, "kind", env.Kind.String())
	return nil
}

// nullTurnSeq returns nil for untagged envelopes so the column stays NULL.
func nullTurnSeq(env wire.Envelope) any {
	if !env.HasTurn {
		return nil
	}
	return int64(env.TurnSeq)
}

// Recent retrieves the most recent `limit` entries in chronological order
// (oldest first). If limit is 0 or negative, all entries are returned.
func (a *Archive) Recent(ctx context.Context, limit int) ([]Entry, error) {
	var query string
	var args []any

	if limit > 0 {
		// Grab the newest N, then flip them back into chronological order.
		query = `
			SELECT id, message_id, sender, kind, content, turn_seq, created_at, received_at
			FROM (
				SELECT id, message_id, sender, kind, content, turn_seq, created_at, received_at
				FROM messages
				ORDER BY received_at DESC, id DESC
				LIMIT ?
			)
			ORDER BY received_at ASC, id ASC
		`
		args = []any{limit}
	} else {
		query = `
			SELECT id, message_id, sender, kind, content, turn_seq, created_at, received_at
			FROM messages
			ORDER BY received_at ASC, id ASC
		`
	}

	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var messageID string
		var kind int
		var turnSeq sql.NullInt64
		var createdMillis, receivedMillis int64

		if err := rows.Scan(&e.ID, &messageID, &e.Envelope.SenderID, &kind,
			&e.Envelope.Content, &turnSeq, &createdMillis, &receivedMillis); err != nil {
			return nil, fmt.Errorf("scanning message row: %w", err)
		}

		e.Envelope.Version = wire.Version
		e.Envelope.Kind = wire.Kind(kind)
		e.Envelope.ID, err = uuid.Parse(messageID)
		if err != nil {
			return nil, fmt.Errorf("parsing message id %q: %w", messageID, err)
		}
		if turnSeq.Valid {
			e.Envelope.TurnSeq = uint32(turnSeq.Int64)
			e.Envelope.HasTurn = true
		}
		e.Envelope.CreatedAt = time.UnixMilli(createdMillis).UTC()
		e.ReceivedAt = time.UnixMilli(receivedMillis).UTC()

		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating message rows: %w", err)
	}

	return entries, nil
}

// Participants returns the distinct senders in the archive, sorted.
func (a *Archive) Participants(ctx context.Context) ([]string, error) {
	rows, err := a.db.QueryContext(ctx, `SELECT DISTINCT sender FROM messages ORDER BY sender ASC`)
	if err != nil {
		return nil, fmt.Errorf("querying participants: %w", err)
	}
	defer rows.Close()

	var senders []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("scanning participant row: %w", err)
		}
		senders = append(senders, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating participant rows: %w", err)
	}

	return senders, nil
}

// Count returns the number of archived entries.
func (a *Archive) Count(ctx context.Context) (int, error) {
	var n int
	if err := a.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting messages: %w", err)
	}
	return n, nil
}
