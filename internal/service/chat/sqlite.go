package chat

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/zhouzirui/pdf-chat/backend/internal/model/chat"
)

// SQLiteStore implements Store on a SQLite database so transcripts survive restarts.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (and migrates) the database at dsn.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Every connection to ":memory:" is a separate database.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			message_id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			FOREIGN KEY (session_id) REFERENCES sessions(session_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, seq)`,
	}
	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateSession inserts a session seeded with the system prompt.
func (s *SQLiteStore) CreateSession(ctx context.Context, sessionID string) (chat.Session, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return chat.Session{}, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO sessions (session_id, created_at, updated_at) VALUES (?, ?, ?) ON CONFLICT(session_id) DO NOTHING`,
		sessionID, now, now)
	if err != nil {
		return chat.Session{}, fmt.Errorf("insert session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return chat.Session{}, ErrSessionExists
	}

	seed := seedMessage(sessionID, now)
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO messages (message_id, session_id, seq, role, content, created_at) VALUES (?, ?, 0, ?, ?, ?)`,
		seed.ID, seed.SessionID, string(seed.Role), seed.Content, seed.CreatedAt); err != nil {
		return chat.Session{}, fmt.Errorf("insert seed message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return chat.Session{}, err
	}
	return chat.Session{ID: sessionID, CreatedAt: now, UpdatedAt: now}, nil
}

// GetSession retrieves a session by identifier.
func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (chat.Session, error) {
	var session chat.Session
	err := s.db.QueryRowContext(ctx,
		`SELECT session_id, created_at, updated_at FROM sessions WHERE session_id = ?`, sessionID,
	).Scan(&session.ID, &session.CreatedAt, &session.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return chat.Session{}, ErrSessionNotFound
	}
	if err != nil {
		return chat.Session{}, fmt.Errorf("get session: %w", err)
	}
	return session, nil
}

// Append adds a message after the last one of its session.
func (s *SQLiteStore) Append(ctx context.Context, message chat.Message) (chat.Message, error) {
	if message.SessionID == "" {
		return chat.Message{}, ErrSessionRequired
	}
	if !message.Role.Valid() {
		return chat.Message{}, ErrInvalidRole
	}

	message.ID = uuid.NewString()
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return chat.Message{}, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE sessions SET updated_at = ? WHERE session_id = ?`, message.CreatedAt, message.SessionID)
	if err != nil {
		return chat.Message{}, fmt.Errorf("touch session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return chat.Message{}, ErrSessionNotFound
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO messages (message_id, session_id, seq, role, content, created_at)
		 VALUES (?, ?, (SELECT COALESCE(MAX(seq), -1) + 1 FROM messages WHERE session_id = ?), ?, ?, ?)`,
		message.ID, message.SessionID, message.SessionID, string(message.Role), message.Content, message.CreatedAt); err != nil {
		return chat.Message{}, fmt.Errorf("insert message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return chat.Message{}, err
	}
	return message, nil
}

// LoadTranscript returns the messages of a session in append order.
func (s *SQLiteStore) LoadTranscript(ctx context.Context, sessionID string) ([]chat.Message, error) {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT message_id, session_id, role, content, created_at FROM messages WHERE session_id = ? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load transcript: %w", err)
	}
	defer rows.Close()

	messages := make([]chat.Message, 0, 16)
	for rows.Next() {
		var (
			msg  chat.Message
			role string
		)
		if err := rows.Scan(&msg.ID, &msg.SessionID, &role, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, err
		}
		msg.Role = chat.Role(role)
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// Rebind moves a transcript under a new session id, merging when the target exists.
func (s *SQLiteStore) Rebind(ctx context.Context, oldID, newID string) error {
	if oldID == newID {
		return nil
	}
	if newID == "" {
		return ErrSessionRequired
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM sessions WHERE session_id = ?`, oldID).Scan(&exists); err != nil {
		return err
	}
	if exists == 0 {
		return ErrSessionNotFound
	}

	var target int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM sessions WHERE session_id = ?`, newID).Scan(&target); err != nil {
		return err
	}

	if target == 0 {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO sessions (session_id, created_at, updated_at) SELECT ?, created_at, updated_at FROM sessions WHERE session_id = ?`,
			newID, oldID); err != nil {
			return fmt.Errorf("rename session: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE messages SET session_id = ? WHERE session_id = ?`, newID, oldID); err != nil {
			return fmt.Errorf("move transcript: %w", err)
		}
	} else {
		var offset int
		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(seq), 0) + 1 FROM messages WHERE session_id = ?`, newID).Scan(&offset); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE session_id = ? AND role = ?`, oldID, string(chat.RoleSystem)); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE messages SET session_id = ?, seq = seq + ? WHERE session_id = ?`, newID, offset, oldID); err != nil {
			return fmt.Errorf("merge transcript: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE sessions SET updated_at = ? WHERE session_id = ?`, time.Now().UTC(), newID); err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = ?`, oldID); err != nil {
		return err
	}
	return tx.Commit()
}

// Reset drops a session and its transcript.
func (s *SQLiteStore) Reset(ctx context.Context, sessionID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("reset transcript: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("reset session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSessionNotFound
	}
	return tx.Commit()
}
