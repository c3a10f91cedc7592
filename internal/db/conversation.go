package db

import (
	"context"
	"fmt"

	"github.com/Joseda-hg/taskflow/internal/model"
)

// AppendMessage adds one turn to the owner's conversation log.
func (s *Store) AppendMessage(ctx context.Context, owner int64, role model.Role, content string, kind model.MessageKind, meta model.MessageMeta) (model.ConversationMessage, error) {
	if kind == "" {
		kind = model.KindText
	}
	encoded, err := model.EncodeMeta(meta)
	if err != nil {
		return model.ConversationMessage{}, err
	}

	now := s.now().UTC()
	res, err := s.q.ExecContext(ctx, `INSERT INTO conversation_messages (owner_id, role, content, message_type, meta, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`, owner, string(role), content, string(kind), encoded, now)
	if err != nil {
		return model.ConversationMessage{}, fmt.Errorf("append %s message: %w", role, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return model.ConversationMessage{}, fmt.Errorf("append message id: %w", err)
	}

	decoded, err := model.DecodeMeta(encoded)
	if err != nil {
		return model.ConversationMessage{}, err
	}

	return model.ConversationMessage{
		ID:        id,
		OwnerID:   owner,
		Role:      role,
		Content:   content,
		Kind:      kind,
		Meta:      decoded,
		CreatedAt: now,
	}, nil
}

// RecentMessages returns the newest limit messages in chronological order.
// Messages with the same timestamp keep insertion order.
func (s *Store) RecentMessages(ctx context.Context, owner int64, limit int) ([]model.ConversationMessage, error) {
	query := `SELECT id, owner_id, role, content, message_type, meta, created_at FROM conversation_messages
		WHERE owner_id = ? ORDER BY created_at DESC, id DESC`
	args := []any{owner}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	messages := []model.ConversationMessage{}
	for rows.Next() {
		var (
			msg        model.ConversationMessage
			role, kind string
			meta       string
		)
		if err := rows.Scan(&msg.ID, &msg.OwnerID, &role, &msg.Content, &kind, &meta, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.Role = model.Role(role)
		msg.Kind = model.MessageKind(kind)
		msg.CreatedAt = msg.CreatedAt.UTC()
		if msg.Meta, err = model.DecodeMeta(meta); err != nil {
			// A damaged blob must not hide the rest of the history.
			msg.Meta = model.MessageMeta{Kind: model.MetaUnknown}
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}
