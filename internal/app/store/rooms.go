package store

import (
	"context"
	"fmt"
	"time"

	"marketchat/internal/app/db"
	"marketchat/internal/app/delivery"
	"marketchat/internal/pkg/errs"
)

// Room is a chat room between marketplace users.
type Room struct {
	ID              int64      `json:"id"`
	Name            string     `json:"name"`
	CreatedBy       int64      `json:"createdBy"`
	LastMessage     *string    `json:"lastMessage,omitempty"`
	LastMessageTime *time.Time `json:"lastMessageTime,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
}

// RoomSummary is a room as listed for one participant.
type RoomSummary struct {
	Room
	UnreadCount int               `json:"unreadCount"`
	Members     []delivery.Member `json:"members"`
}

// CreateRoom creates a room whose active members are the creator plus memberIDs.
func (s *Store) CreateRoom(ctx context.Context, name string, creatorID int64, memberIDs []int64) (Room, error) {
	var room Room

	err := s.inTx(ctx, func(tx *Store) error {
		err := tx.db.QueryRow(ctx, `
			INSERT INTO chat_rooms (name, created_by) VALUES ($1, $2)
			RETURNING id, name, created_by, last_message, last_message_time, created_at`,
			name, creatorID,
		).Scan(&room.ID, &room.Name, &room.CreatedBy, &room.LastMessage, &room.LastMessageTime, &room.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert room: %w", err)
		}

		members := append([]int64{creatorID}, memberIDs...)
		_, err = tx.db.Exec(ctx, `
			INSERT INTO chat_room_members (room_id, user_id)
			SELECT $1, u.id FROM users u
			WHERE u.id = ANY($2) AND u.status = 'ACTIVE'
			ON CONFLICT DO NOTHING`, room.ID, members)
		if err != nil {
			if db.IsForeignKeyViolation(err) {
				return errs.NewError(errs.ErrUserNotFound)
			}
			return fmt.Errorf("insert members: %w", err)
		}
		return nil
	})
	if err != nil {
		if errs.IsCode(err, errs.ErrUserNotFound) {
			return Room{}, err
		}
		return Room{}, errs.Wrap(errs.ErrPersistenceFailed, err)
	}
	return room, nil
}

// ListRooms returns the rooms userID actively participates in, most recent activity first.
func (s *Store) ListRooms(ctx context.Context, userID int64) ([]RoomSummary, error) {
	rows, err := s.db.Query(ctx, `
		SELECT r.id, r.name, r.created_by, r.last_message, r.last_message_time, r.created_at,
		       (SELECT count(*) FROM chat_messages m
		        WHERE m.room_id = r.id AND m.sender_id <> $1 AND NOT m.is_read) AS unread
		FROM chat_rooms r
		JOIN chat_room_members me ON me.room_id = r.id AND me.user_id = $1 AND me.active
		ORDER BY COALESCE(r.last_message_time, r.created_at) DESC, r.id DESC`, userID)
	if err != nil {
		return nil, errs.Wrap(errs.ErrPersistenceFailed, fmt.Errorf("list rooms: %w", err))
	}
	defer rows.Close()

	var out []RoomSummary
	for rows.Next() {
		var rs RoomSummary
		if err := rows.Scan(&rs.ID, &rs.Name, &rs.CreatedBy, &rs.LastMessage, &rs.LastMessageTime, &rs.CreatedAt, &rs.UnreadCount); err != nil {
			return nil, errs.Wrap(errs.ErrPersistenceFailed, err)
		}
		out = append(out, rs)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.ErrPersistenceFailed, err)
	}

	for i := range out {
		members, err := s.ActiveMembers(ctx, out[i].ID)
		if err != nil {
			return nil, errs.Wrap(errs.ErrPersistenceFailed, err)
		}
		out[i].Members = members
	}
	return out, nil
}

// IsActiveParticipant reports whether userID is an active member of roomID.
func (s *Store) IsActiveParticipant(ctx context.Context, roomID, userID int64) (bool, error) {
	var ok bool
	err := s.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM chat_room_members
			WHERE room_id = $1 AND user_id = $2 AND active
		)`, roomID, userID).Scan(&ok)
	return ok, err
}

// UpdateLastMessage records the room's last-message summary. Older timestamps never
// overwrite newer ones.
func (s *Store) UpdateLastMessage(ctx context.Context, roomID int64, content string, at time.Time) error {
	_, err := s.db.Exec(ctx, `
		UPDATE chat_rooms SET last_message = $2, last_message_time = $3
		WHERE id = $1 AND (last_message_time IS NULL OR last_message_time <= $3)`,
		roomID, content, at)
	return err
}

// ActiveMembers lists the active participants of roomID.
func (s *Store) ActiveMembers(ctx context.Context, roomID int64) ([]delivery.Member, error) {
	rows, err := s.db.Query(ctx, `
		SELECT u.id, u.email, u.nickname
		FROM chat_room_members m JOIN users u ON u.id = m.user_id
		WHERE m.room_id = $1 AND m.active
		ORDER BY m.joined_at, u.id`, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []delivery.Member
	for rows.Next() {
		var m delivery.Member
		if err := rows.Scan(&m.UserID, &m.Email, &m.Nickname); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}
