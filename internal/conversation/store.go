// Package conversation persists chat threads and their messages in the
// application database.
package conversation

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/starford/dossier/internal/apperr"
	"github.com/starford/dossier/internal/models"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS conversations (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL DEFAULT '',
	mode       TEXT NOT NULL DEFAULT 'classic',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS messages (
	conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
	id              INTEGER NOT NULL,
	position        INTEGER NOT NULL,
	sender          TEXT NOT NULL DEFAULT '',
	text            TEXT,
	type            TEXT,
	file_name       TEXT,
	file_url        TEXT,
	sources         TEXT,
	is_loading      INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (conversation_id, id)
);

CREATE INDEX IF NOT EXISTS idx_messages_position ON messages(conversation_id, position);
`

// DefaultMode is assigned to conversations created without one.
const DefaultMode = "classic"

// Store is the SQLite-backed conversation store.
type Store struct {
	db *sql.DB
}

// New applies the schema to db and returns a Store.
func New(ctx context.Context, db *sql.DB) (*Store, error) {
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return nil, fmt.Errorf("conversation: apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// List returns every conversation with its messages, newest first.
func (s *Store) List(ctx context.Context) ([]models.Conversation, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, mode FROM conversations ORDER BY rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("conversation: list: %w", err)
	}
	var out []models.Conversation
	for rows.Next() {
		var c models.Conversation
		if err := rows.Scan(&c.ID, &c.Name, &c.Mode); err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		msgs, err := s.messages(ctx, s.db, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Messages = msgs
	}
	return out, nil
}

// Get returns one conversation or apperr.ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (models.Conversation, error) {
	var c models.Conversation
	err := s.db.QueryRowContext(ctx, `SELECT id, name, mode FROM conversations WHERE id = ?`, id).
		Scan(&c.ID, &c.Name, &c.Mode)
	if errors.Is(err, sql.ErrNoRows) {
		return c, fmt.Errorf("conversation %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return c, fmt.Errorf("conversation: get %s: %w", id, err)
	}
	c.Messages, err = s.messages(ctx, s.db, id)
	return c, err
}

// Create inserts c. An empty id is replaced by a random UUID and an empty
// mode by DefaultMode. An existing id returns apperr.ErrAlreadyExists.
func (s *Store) Create(ctx context.Context, c models.Conversation) (models.Conversation, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Mode == "" {
		c.Mode = DefaultMode
	}
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO conversations (id, name, mode) VALUES (?, ?, ?)`,
			c.ID, c.Name, c.Mode); err != nil {
			if isConstraint(err) {
				return fmt.Errorf("conversation %s: %w", c.ID, apperr.ErrAlreadyExists)
			}
			return err
		}
		return insertMessages(ctx, tx, c.ID, c.Messages)
	})
	if err != nil {
		return models.Conversation{}, err
	}
	if c.Messages == nil {
		c.Messages = []models.Message{}
	}
	return c, nil
}

// Replace overwrites the conversation id with c, messages included.
func (s *Store) Replace(ctx context.Context, id string, c models.Conversation) (models.Conversation, error) {
	c.ID = id
	if c.Mode == "" {
		c.Mode = DefaultMode
	}
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE conversations SET name = ?, mode = ? WHERE id = ?`, c.Name, c.Mode, id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("conversation %s: %w", id, apperr.ErrNotFound)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id = ?`, id); err != nil {
			return err
		}
		return insertMessages(ctx, tx, id, c.Messages)
	})
	if err != nil {
		return models.Conversation{}, err
	}
	return c, nil
}

// Delete removes a conversation and its messages.
func (s *Store) Delete(ctx context.Context, id string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id = ?`, id); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("conversation %s: %w", id, apperr.ErrNotFound)
		}
		return nil
	})
}

// UpsertResult reports what UpsertMessage did.
type UpsertResult struct {
	Status    string `json:"status"`
	MessageID int64  `json:"message_id"`
}

// UpsertMessage applies u to the conversation: Delete removes the message,
// an existing id is patched field by field (nil fields untouched), and an
// unknown id is appended as a new message.
func (s *Store) UpsertMessage(ctx context.Context, conversationID string, u models.MessageUpdate) (UpsertResult, error) {
	res := UpsertResult{Status: "updated_or_added", MessageID: u.ID}
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := exists(ctx, tx, conversationID); err != nil {
			return err
		}
		if u.Delete {
			res.Status = "deleted"
			_, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id = ? AND id = ?`, conversationID, u.ID)
			return err
		}

		msgs, err := s.messages(ctx, tx, conversationID)
		if err != nil {
			return err
		}
		for _, m := range msgs {
			if m.ID == u.ID {
				return updateMessage(ctx, tx, conversationID, patch(m, u))
			}
		}
		m := patch(models.Message{ID: u.ID}, u)
		return insertMessage(ctx, tx, conversationID, m, len(msgs))
	})
	return res, err
}

// SetSources replaces the sources of one message.
func (s *Store) SetSources(ctx context.Context, conversationID string, messageID int64, sources []models.Source) error {
	data, err := json.Marshal(sources)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE messages SET sources = ? WHERE conversation_id = ? AND id = ?`,
		string(data), conversationID, messageID)
	if err != nil {
		return fmt.Errorf("conversation: set sources: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("message %d: %w", messageID, apperr.ErrNotFound)
	}
	return nil
}

// PendingBotMessage returns the id of the most recent bot message still
// loading, or apperr.ErrNotFound.
func (s *Store) PendingBotMessage(ctx context.Context, conversationID string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		SELECT id FROM messages
		WHERE conversation_id = ? AND sender = 'bot' AND is_loading = 1
		ORDER BY position DESC LIMIT 1`, conversationID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, apperr.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("conversation: pending message: %w", err)
	}
	return id, nil
}

// LastAttachedFile returns the last path segment of the most recent
// message's file URL, or apperr.ErrNotFound.
func (s *Store) LastAttachedFile(ctx context.Context, conversationID string) (string, error) {
	var url string
	err := s.db.QueryRowContext(ctx, `
		SELECT file_url FROM messages
		WHERE conversation_id = ? AND file_url IS NOT NULL AND file_url != ''
		ORDER BY position DESC LIMIT 1`, conversationID).Scan(&url)
	if errors.Is(err, sql.ErrNoRows) {
		return "", apperr.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("conversation: attached file: %w", err)
	}
	return url[strings.LastIndex(url, "/")+1:], nil
}

func patch(m models.Message, u models.MessageUpdate) models.Message {
	if u.Sender != nil {
		m.Sender = *u.Sender
	}
	if u.Text != nil {
		m.Text = u.Text
	}
	if u.Type != nil {
		m.Type = u.Type
	}
	if u.FileName != nil {
		m.FileName = u.FileName
	}
	if u.FileURL != nil {
		m.FileURL = u.FileURL
	}
	if u.Sources != nil {
		m.Sources = u.Sources
	}
	if u.IsLoading != nil {
		m.IsLoading = *u.IsLoading
	}
	return m
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *Store) messages(ctx context.Context, q queryer, conversationID string) ([]models.Message, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, sender, text, type, file_name, file_url, sources, is_loading
		FROM messages WHERE conversation_id = ? ORDER BY position`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("conversation: messages: %w", err)
	}
	defer rows.Close()

	out := []models.Message{}
	for rows.Next() {
		var (
			m       models.Message
			sources sql.NullString
		)
		if err := rows.Scan(&m.ID, &m.Sender, &m.Text, &m.Type, &m.FileName, &m.FileURL, &sources, &m.IsLoading); err != nil {
			return nil, err
		}
		if sources.Valid && sources.String != "" {
			if err := json.Unmarshal([]byte(sources.String), &m.Sources); err != nil {
				return nil, fmt.Errorf("conversation: decode sources of %d: %w", m.ID, err)
			}
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func insertMessages(ctx context.Context, tx *sql.Tx, conversationID string, msgs []models.Message) error {
	for i, m := range msgs {
		if err := insertMessage(ctx, tx, conversationID, m, i); err != nil {
			return err
		}
	}
	return nil
}

func insertMessage(ctx context.Context, tx *sql.Tx, conversationID string, m models.Message, position int) error {
	sources, err := encodeSources(m.Sources)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO messages (conversation_id, id, position, sender, text, type, file_name, file_url, sources, is_loading)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		conversationID, m.ID, position, m.Sender, m.Text, m.Type, m.FileName, m.FileURL, sources, m.IsLoading)
	if err != nil {
		if isConstraint(err) {
			return fmt.Errorf("message %d: %w", m.ID, apperr.ErrAlreadyExists)
		}
		return fmt.Errorf("conversation: insert message %d: %w", m.ID, err)
	}
	return nil
}

func updateMessage(ctx context.Context, tx *sql.Tx, conversationID string, m models.Message) error {
	sources, err := encodeSources(m.Sources)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE messages SET sender = ?, text = ?, type = ?, file_name = ?, file_url = ?, sources = ?, is_loading = ?
		WHERE conversation_id = ? AND id = ?`,
		m.Sender, m.Text, m.Type, m.FileName, m.FileURL, sources, m.IsLoading, conversationID, m.ID)
	if err != nil {
		return fmt.Errorf("conversation: update message %d: %w", m.ID, err)
	}
	return nil
}

func encodeSources(sources []models.Source) (sql.NullString, error) {
	if sources == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(sources)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func exists(ctx context.Context, tx *sql.Tx, id string) error {
	var one int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM conversations WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("conversation %s: %w", id, apperr.ErrNotFound)
	}
	return err
}

func isConstraint(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("conversation: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}
