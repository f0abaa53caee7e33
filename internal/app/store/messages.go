package store

import (
	"context"
	"fmt"
	"math"

	"marketchat/internal/app/envelope"
	"marketchat/internal/pkg/errs"
)

// SaveMessage inserts msg and returns it with its id.
func (s *Store) SaveMessage(ctx context.Context, msg envelope.ChatMessage) (envelope.ChatMessage, error) {
	err := s.db.QueryRow(ctx, `
		INSERT INTO chat_messages (room_id, sender_id, content, message_type, sent_at, is_read)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		msg.RoomID, msg.SenderID, msg.Content, string(msg.MessageType), msg.SentAt, msg.IsRead,
	).Scan(&msg.ID)
	if err != nil {
		return envelope.ChatMessage{}, fmt.Errorf("insert message: %w", err)
	}
	return msg, nil
}

// HistoryPage is one page of a room's messages, newest first.
type HistoryPage struct {
	Messages []envelope.ChatMessage `json:"messages"`
	Page     int                    `json:"page"`
	Size     int                    `json:"size"`
	Total    int                    `json:"total"`
	HasMore  bool                   `json:"hasMore"`
}

// History returns page (zero-based) of roomID's messages, newest first.
func (s *Store) History(ctx context.Context, roomID int64, page, size int) (HistoryPage, error) {
	out := HistoryPage{Page: page, Size: size, Messages: []envelope.ChatMessage{}}

	offset, ok := historyOffset(page, size)
	if err := s.db.QueryRow(ctx, `SELECT count(*) FROM chat_messages WHERE room_id = $1`, roomID).Scan(&out.Total); err != nil {
		return HistoryPage{}, errs.Wrap(errs.ErrPersistenceFailed, fmt.Errorf("count messages: %w", err))
	}
	if !ok || offset >= int64(out.Total) {
		return out, nil
	}

	rows, err := s.db.Query(ctx, `
		SELECT m.id, m.room_id, m.sender_id, u.email, u.nickname, m.content, m.message_type, m.sent_at, m.is_read
		FROM chat_messages m JOIN users u ON u.id = m.sender_id
		WHERE m.room_id = $1
		ORDER BY m.sent_at DESC, m.id DESC
		LIMIT $2 OFFSET $3`, roomID, size, offset)
	if err != nil {
		return HistoryPage{}, errs.Wrap(errs.ErrPersistenceFailed, fmt.Errorf("select messages: %w", err))
	}
	defer rows.Close()

	for rows.Next() {
		var m envelope.ChatMessage
		var messageType string
		if err := rows.Scan(&m.ID, &m.RoomID, &m.SenderID, &m.SenderEmail, &m.SenderName, &m.Content, &messageType, &m.SentAt, &m.IsRead); err != nil {
			return HistoryPage{}, errs.Wrap(errs.ErrPersistenceFailed, err)
		}
		m.MessageType = envelope.MessageType(messageType)
		out.Messages = append(out.Messages, m)
	}
	if err := rows.Err(); err != nil {
		return HistoryPage{}, errs.Wrap(errs.ErrPersistenceFailed, err)
	}

	out.HasMore = offset+int64(len(out.Messages)) < int64(out.Total)
	return out, nil
}

// historyOffset returns page*size, or false when the page lies beyond any
// representable offset.
func historyOffset(page, size int) (int64, bool) {
	if page < 0 || size <= 0 {
		return 0, false
	}
	if int64(page) > math.MaxInt64/int64(size) {
		return 0, false
	}
	return int64(page) * int64(size), true
}

// MarkRead marks every message in roomID not sent by readerID as read.
func (s *Store) MarkRead(ctx context.Context, roomID, readerID int64) (int64, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE chat_messages SET is_read = TRUE
		WHERE room_id = $1 AND sender_id <> $2 AND NOT is_read`, roomID, readerID)
	if err != nil {
		return 0, errs.Wrap(errs.ErrPersistenceFailed, fmt.Errorf("mark read: %w", err))
	}
	return tag.RowsAffected(), nil
}
