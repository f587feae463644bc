// Package history keeps conversation turns in a SQLite database that lives in
// process memory. All sessions share one database; each session sees only its
// own rows, and nothing survives the process.
package history

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/glebarez/go-sqlite"

	"github.com/comigor/writer-chat/internal/chat"
	"github.com/comigor/writer-chat/internal/logger"
)

const schema = `CREATE TABLE IF NOT EXISTS turns (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL,
    role TEXT NOT NULL,
    content TEXT NOT NULL,
    diagnostic INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS turns_session ON turns (session_id, id);`

// DB is the shared in-memory turn database.
type DB struct {
	db *sql.DB
}

// Open creates the in-memory database and its schema.
func Open() (*DB, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}
	// Every connection to :memory: is a separate database; keep exactly one.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	logger.L.Info("sqlite history DB initialized")
	return &DB{db: db}, nil
}

// Close releases the database; all turns are gone afterwards.
func (d *DB) Close() error {
	return d.db.Close()
}

// Conversation returns the chat.Store view of one session's turns.
func (d *DB) Conversation(sessionID string) *Conversation {
	return &Conversation{db: d.db, sessionID: sessionID}
}

// Conversation is a chat.Store backed by the rows of one session.
type Conversation struct {
	db        *sql.DB
	sessionID string
}

var _ chat.Store = (*Conversation)(nil)

// Append stores a turn after the session's existing turns.
func (c *Conversation) Append(turn chat.Turn) error {
	if err := turn.Validate(); err != nil {
		return err
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now()
	}
	_, err := c.db.Exec(`INSERT INTO turns (session_id, role, content, diagnostic, created_at) VALUES (?,?,?,?,?);`,
		c.sessionID, string(turn.Role), turn.Content, turn.Diagnostic, turn.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("storing turn: %w", err)
	}
	return nil
}

// All returns the session's turns in chronological order.
func (c *Conversation) All() ([]chat.Turn, error) {
	rows, err := c.db.Query(`SELECT role, content, diagnostic, created_at FROM turns WHERE session_id = ? ORDER BY id ASC;`, c.sessionID)
	if err != nil {
		return nil, fmt.Errorf("listing turns: %w", err)
	}
	defer rows.Close()

	out := []chat.Turn{}
	for rows.Next() {
		var (
			t       chat.Turn
			role    string
			created int64
		)
		if err := rows.Scan(&role, &t.Content, &t.Diagnostic, &created); err != nil {
			return nil, fmt.Errorf("scanning turn: %w", err)
		}
		t.Role = chat.Role(role)
		t.CreatedAt = time.Unix(0, created).UTC()
		out = append(out, t)
	}
	return out, rows.Err()
}

// IsEmpty reports whether the session has no turns yet.
func (c *Conversation) IsEmpty() (bool, error) {
	var one int
	err := c.db.QueryRow(`SELECT 1 FROM turns WHERE session_id = ? LIMIT 1;`, c.sessionID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking turns: %w", err)
	}
	return false, nil
}

// Drop deletes the session's turns. Called when the session ends.
func (c *Conversation) Drop() error {
	if _, err := c.db.Exec(`DELETE FROM turns WHERE session_id = ?;`, c.sessionID); err != nil {
		return fmt.Errorf("dropping session %s: %w", c.sessionID, err)
	}
	return nil
}
