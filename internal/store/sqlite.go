package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/telegate/telegate/internal/telegram"
)

// SQLite implements Gateway on a local SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (or creates) the database and runs migrations.
func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Serialized writes; SQLite handles one writer at a time anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	s := &SQLite{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return s, nil
}

func (s *SQLite) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS entities (
			kind TEXT NOT NULL,
			id INTEGER NOT NULL,
			username TEXT NOT NULL DEFAULT '',
			phone TEXT NOT NULL DEFAULT '',
			credential_enc TEXT NOT NULL,
			session_enc TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'inactive',
			last_seen DATETIME,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (kind, id)
		)`,
		`CREATE TABLE IF NOT EXISTS chats (
			row_id INTEGER PRIMARY KEY AUTOINCREMENT,
			entity_kind TEXT NOT NULL,
			entity_id INTEGER NOT NULL,
			chat_id INTEGER NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			kind TEXT NOT NULL DEFAULT '',
			last_message_at DATETIME,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (entity_kind, entity_id, chat_id)
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			row_id INTEGER PRIMARY KEY AUTOINCREMENT,
			chat_row_id INTEGER NOT NULL REFERENCES chats(row_id) ON DELETE CASCADE,
			message_id INTEGER NOT NULL,
			from_id INTEGER NOT NULL DEFAULT 0,
			direction TEXT NOT NULL,
			text TEXT NOT NULL DEFAULT '',
			media_type TEXT NOT NULL DEFAULT '',
			media_ref TEXT NOT NULL DEFAULT '',
			reply_to_id INTEGER NOT NULL DEFAULT 0,
			forwarded_from INTEGER NOT NULL DEFAULT 0,
			payload TEXT NOT NULL DEFAULT '{}',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (chat_row_id, message_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_chat ON messages(chat_row_id, created_at)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// CreateEntity stores a new entity row.
func (s *SQLite) CreateEntity(ctx context.Context, e *Entity) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO entities (kind, id, username, phone, credential_enc, session_enc, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Ref.Kind, e.Ref.ID, e.Username, e.Phone, e.CredentialEnc, e.SessionEnc, e.Status, now)
	if err != nil {
		return fmt.Errorf("create entity %s: %w", e.Ref, err)
	}
	e.CreatedAt = now
	return nil
}

// GetEntity returns an entity row, or nil when it does not exist.
func (s *SQLite) GetEntity(ctx context.Context, ref telegram.EntityRef) (*Entity, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT kind, id, username, phone, credential_enc, session_enc, status, last_seen, created_at
		 FROM entities WHERE kind = ? AND id = ?`, ref.Kind, ref.ID)
	return scanEntity(row)
}

// ListEntities returns all stored entities.
func (s *SQLite) ListEntities(ctx context.Context) ([]Entity, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT kind, id, username, phone, credential_enc, session_enc, status, last_seen, created_at
		 FROM entities ORDER BY kind, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// UpdateEntityStatus persists the lifecycle status mirror and bumps
// last_seen when the entity goes active.
func (s *SQLite) UpdateEntityStatus(ctx context.Context, ref telegram.EntityRef, status string) error {
	var err error
	if status == "active" {
		_, err = s.db.ExecContext(ctx,
			`UPDATE entities SET status = ?, last_seen = ? WHERE kind = ? AND id = ?`,
			status, time.Now().UTC(), ref.Kind, ref.ID)
	} else {
		_, err = s.db.ExecContext(ctx,
			`UPDATE entities SET status = ? WHERE kind = ? AND id = ?`,
			status, ref.Kind, ref.ID)
	}
	return err
}

// UpdateEntitySession replaces the stored encrypted session string.
func (s *SQLite) UpdateEntitySession(ctx context.Context, ref telegram.EntityRef, sessionEnc string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE entities SET session_enc = ? WHERE kind = ? AND id = ?`,
		sessionEnc, ref.Kind, ref.ID)
	return err
}

// UpsertChat gets or creates the chat row for (entity, chatID). The
// title hint fills the row only on creation; an existing title wins.
func (s *SQLite) UpsertChat(ctx context.Context, entity telegram.EntityRef, chatID int64, title, kind string) (*Chat, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chats (entity_kind, entity_id, chat_id, title, kind, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (entity_kind, entity_id, chat_id) DO NOTHING`,
		entity.Kind, entity.ID, chatID, title, kind, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("upsert chat %d for %s: %w", chatID, entity, err)
	}
	return s.getChat(ctx, entity, chatID)
}

func (s *SQLite) getChat(ctx context.Context, entity telegram.EntityRef, chatID int64) (*Chat, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT row_id, entity_kind, entity_id, chat_id, title, kind, last_message_at, created_at
		 FROM chats WHERE entity_kind = ? AND entity_id = ? AND chat_id = ?`,
		entity.Kind, entity.ID, chatID)

	var (
		c      Chat
		kind   string
		lastAt sql.NullTime
	)
	err := row.Scan(&c.RowID, &kind, &c.Entity.ID, &c.ChatID, &c.Title, &c.Kind, &lastAt, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.Entity.Kind = telegram.EntityKind(kind)
	if lastAt.Valid {
		c.LastMessageAt = lastAt.Time
	}
	return &c, nil
}

// UpsertMessage inserts a message once. A second call with the same
// (chat, message id) key is a successful no-op returning the existing
// row with wasCreated=false. The insert and the chat timestamp bump
// commit in one transaction.
func (s *SQLite) UpsertMessage(ctx context.Context, chatRowID int64, info telegram.MessageInfo) (*Message, bool, error) {
	payload, err := json.Marshal(orEmpty(info.Payload))
	if err != nil {
		return nil, false, fmt.Errorf("marshal payload: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx,
		`INSERT INTO messages (chat_row_id, message_id, from_id, direction, text,
			media_type, media_ref, reply_to_id, forwarded_from, payload, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (chat_row_id, message_id) DO NOTHING`,
		chatRowID, info.ProviderID, info.FromID, info.Direction, info.Text,
		info.MediaType, info.MediaRef, info.ReplyToID, info.ForwardedFrom, string(payload), now)
	if err != nil {
		return nil, false, fmt.Errorf("upsert message %d: %w", info.ProviderID, err)
	}

	inserted, err := res.RowsAffected()
	if err != nil {
		return nil, false, err
	}
	if inserted > 0 {
		if _, err := tx.ExecContext(ctx,
			`UPDATE chats SET last_message_at = ? WHERE row_id = ?`, now, chatRowID); err != nil {
			return nil, false, err
		}
	}

	msg, err := getMessageTx(ctx, tx, chatRowID, info.ProviderID)
	if err != nil {
		return nil, false, err
	}
	if err := tx.Commit(); err != nil {
		return nil, false, err
	}
	return msg, inserted > 0, nil
}

// MarkEdited updates text and payload flags of an existing message. The
// bool reports whether the row was found; a missing row is not an error.
func (s *SQLite) MarkEdited(ctx context.Context, chatRowID int64, info telegram.MessageInfo) (*Message, bool, error) {
	msg, err := s.getMessage(ctx, chatRowID, info.ProviderID)
	if err != nil || msg == nil {
		return nil, false, err
	}

	msg.Text = info.Text
	msg.Payload["edited"] = true
	if v, ok := info.Payload["edit_date"]; ok {
		msg.Payload["edit_date"] = v
	}
	if err := s.savePayload(ctx, msg, `text = ?`, info.Text); err != nil {
		return nil, false, err
	}
	return msg, true, nil
}

// MarkDeleted flags a message as deleted wherever it exists under the
// entity; the provider's deletion events do not carry the chat.
func (s *SQLite) MarkDeleted(ctx context.Context, entity telegram.EntityRef, messageID int64) (*Message, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT m.row_id, m.chat_row_id, m.message_id, m.from_id, m.direction, m.text,
			m.media_type, m.media_ref, m.reply_to_id, m.forwarded_from, m.payload, m.created_at
		 FROM messages m JOIN chats c ON c.row_id = m.chat_row_id
		 WHERE c.entity_kind = ? AND c.entity_id = ? AND m.message_id = ?`,
		entity.Kind, entity.ID, messageID)

	msg, err := scanMessage(row)
	if err != nil || msg == nil {
		return nil, false, err
	}

	msg.Payload["deleted"] = true
	if err := s.savePayload(ctx, msg, `text = text`); err != nil {
		return nil, false, err
	}
	return msg, true, nil
}

// GetMessages returns a chat's messages in insertion order.
func (s *SQLite) GetMessages(ctx context.Context, chatRowID int64, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT row_id, chat_row_id, message_id, from_id, direction, text,
			media_type, media_ref, reply_to_id, forwarded_from, payload, created_at
		 FROM messages WHERE chat_row_id = ? ORDER BY row_id LIMIT ?`, chatRowID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

// CountMessages returns the number of rows stored for a chat.
func (s *SQLite) CountMessages(ctx context.Context, chatRowID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE chat_row_id = ?`, chatRowID).Scan(&n)
	return n, err
}

// --- internal ---

func (s *SQLite) getMessage(ctx context.Context, chatRowID, messageID int64) (*Message, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT row_id, chat_row_id, message_id, from_id, direction, text,
			media_type, media_ref, reply_to_id, forwarded_from, payload, created_at
		 FROM messages WHERE chat_row_id = ? AND message_id = ?`, chatRowID, messageID)
	return scanMessage(row)
}

func (s *SQLite) savePayload(ctx context.Context, msg *Message, textClause string, args ...any) error {
	payload, err := json.Marshal(msg.Payload)
	if err != nil {
		return err
	}
	args = append(args, string(payload), msg.RowID)
	_, err = s.db.ExecContext(ctx,
		`UPDATE messages SET `+textClause+`, payload = ? WHERE row_id = ?`, args...)
	return err
}

type scannable interface {
	Scan(dest ...any) error
}

func scanEntity(row scannable) (*Entity, error) {
	var (
		e        Entity
		kind     string
		lastSeen sql.NullTime
	)
	err := row.Scan(&kind, &e.Ref.ID, &e.Username, &e.Phone, &e.CredentialEnc,
		&e.SessionEnc, &e.Status, &lastSeen, &e.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	e.Ref.Kind = telegram.EntityKind(kind)
	if lastSeen.Valid {
		e.LastSeen = lastSeen.Time
	}
	return &e, nil
}

func scanMessage(row scannable) (*Message, error) {
	var (
		m         Message
		direction string
		mediaType string
		payload   string
	)
	err := row.Scan(&m.RowID, &m.ChatRowID, &m.MessageID, &m.FromID, &direction, &m.Text,
		&mediaType, &m.MediaRef, &m.ReplyToID, &m.ForwardedFrom, &payload, &m.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	m.Direction = telegram.Direction(direction)
	m.MediaType = telegram.MediaType(mediaType)
	m.Payload = map[string]any{}
	if payload != "" {
		if err := json.Unmarshal([]byte(payload), &m.Payload); err != nil {
			m.Payload = map[string]any{}
		}
	}
	return &m, nil
}

func getMessageTx(ctx context.Context, tx *sql.Tx, chatRowID, messageID int64) (*Message, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT row_id, chat_row_id, message_id, from_id, direction, text,
			media_type, media_ref, reply_to_id, forwarded_from, payload, created_at
		 FROM messages WHERE chat_row_id = ? AND message_id = ?`, chatRowID, messageID)
	return scanMessage(row)
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
