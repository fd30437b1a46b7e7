package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/nextlevelbuilder/goswarm/internal/store"
)

// SaveMessage inserts or replaces a message row.
func (d *DB) SaveMessage(ctx context.Context, msg store.Message) error {
	if msg.ID == "" {
		msg.ID = store.GenNewID()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	_, err := d.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO messages (id, sender, recipient, type, content, conversation_id, context, response_to, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.Sender, msg.Recipient, string(msg.Type), msg.Content,
		msg.ConversationID, marshalJSON(msg.Context), nullable(msg.ResponseTo),
		msg.Timestamp.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("save message: %w", err)
	}
	return nil
}

// GetMessage fetches one message by id.
func (d *DB) GetMessage(ctx context.Context, id string) (store.Message, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT id, sender, recipient, type, content, conversation_id, context, response_to, created_at
		 FROM messages WHERE id = ?`, id)
	msg, err := d.scanMessage(row)
	if err == sql.ErrNoRows {
		return store.Message{}, store.ErrNotFound
	}
	if err != nil {
		return store.Message{}, fmt.Errorf("get message: %w", err)
	}
	return msg, nil
}

// GetConversation returns a conversation's messages ascending by time.
func (d *DB) GetConversation(ctx context.Context, conversationID string) ([]store.Message, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, sender, recipient, type, content, conversation_id, context, response_to, created_at
		 FROM messages WHERE conversation_id = ? ORDER BY created_at, id`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	defer rows.Close()
	return d.scanMessages(rows)
}

// SearchMessages does substring search over content with optional sender and
// type filters.
func (d *DB) SearchMessages(ctx context.Context, query string, filter store.MessageFilter) ([]store.Message, error) {
	q := `SELECT id, sender, recipient, type, content, conversation_id, context, response_to, created_at
		 FROM messages WHERE content LIKE ? ESCAPE '\'`
	args := []any{"%" + escapeLike(query) + "%"}
	if filter.Sender != "" {
		q += ` AND sender = ?`
		args = append(args, filter.Sender)
	}
	if filter.Type != "" {
		q += ` AND type = ?`
		args = append(args, string(filter.Type))
	}
	q += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		q += ` LIMIT ?`
		args = append(args, filter.Limit)
	}
	rows, err := d.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("search messages: %w", err)
	}
	defer rows.Close()
	return d.scanMessages(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (d *DB) scanMessage(row rowScanner) (store.Message, error) {
	var m store.Message
	var typ string
	var contextJSON, responseTo sql.NullString
	var createdAt int64
	if err := row.Scan(&m.ID, &m.Sender, &m.Recipient, &typ, &m.Content,
		&m.ConversationID, &contextJSON, &responseTo, &createdAt); err != nil {
		return store.Message{}, err
	}
	m.Type = store.MessageType(typ)
	m.Timestamp = time.UnixMilli(createdAt)
	if responseTo.Valid {
		m.ResponseTo = responseTo.String
	}
	d.decodeJSON(contextJSON, &m.Context, "messages", m.ID)
	return m, nil
}

func (d *DB) scanMessages(rows *sql.Rows) ([]store.Message, error) {
	var msgs []store.Message
	for rows.Next() {
		m, err := d.scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// escapeLike escapes LIKE wildcards so user queries stay literal substrings.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	return strings.ReplaceAll(s, `_`, `\_`)
}
