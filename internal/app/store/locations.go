package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"marketchat/internal/app/db"
	"marketchat/internal/app/envelope"
	"marketchat/internal/pkg/errs"
)

// SaveLocation inserts ping and returns it with its id.
func (s *Store) SaveLocation(ctx context.Context, ping envelope.LocationPing) (envelope.LocationPing, error) {
	err := s.db.QueryRow(ctx, `
		INSERT INTO user_locations (room_id, user_id, latitude, longitude, address, recorded_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6)
		RETURNING id`,
		ping.RoomID, ping.UserID, ping.Latitude, ping.Longitude, ping.Address, ping.RecordedAt,
	).Scan(&ping.ID)
	if err != nil {
		return envelope.LocationPing{}, fmt.Errorf("insert location: %w", err)
	}
	return ping, nil
}

const locationColumns = `l.id, l.room_id, l.user_id, u.email, l.latitude, l.longitude, COALESCE(l.address, ''), l.recorded_at`

func scanLocation(row pgx.Row) (envelope.LocationPing, error) {
	var p envelope.LocationPing
	err := row.Scan(&p.ID, &p.RoomID, &p.UserID, &p.UserEmail, &p.Latitude, &p.Longitude, &p.Address, &p.RecordedAt)
	return p, err
}

// RecentLocations returns the latest ping of every user in roomID.
func (s *Store) RecentLocations(ctx context.Context, roomID int64) ([]envelope.LocationPing, error) {
	rows, err := s.db.Query(ctx, `
		SELECT DISTINCT ON (l.user_id) `+locationColumns+`
		FROM user_locations l JOIN users u ON u.id = l.user_id
		WHERE l.room_id = $1
		ORDER BY l.user_id, l.recorded_at DESC, l.id DESC`, roomID)
	if err != nil {
		return nil, errs.Wrap(errs.ErrPersistenceFailed, fmt.Errorf("select locations: %w", err))
	}
	defer rows.Close()

	out := []envelope.LocationPing{}
	for rows.Next() {
		p, err := scanLocation(rows)
		if err != nil {
			return nil, errs.Wrap(errs.ErrPersistenceFailed, err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.ErrPersistenceFailed, err)
	}
	return out, nil
}

// LastLocation returns userID's latest ping in roomID.
func (s *Store) LastLocation(ctx context.Context, roomID, userID int64) (envelope.LocationPing, error) {
	p, err := scanLocation(s.db.QueryRow(ctx, `
		SELECT `+locationColumns+`
		FROM user_locations l JOIN users u ON u.id = l.user_id
		WHERE l.room_id = $1 AND l.user_id = $2
		ORDER BY l.recorded_at DESC, l.id DESC
		LIMIT 1`, roomID, userID))
	if err != nil {
		if db.IsNoRows(err) {
			return envelope.LocationPing{}, errs.NewError(errs.ErrLocationNotFound)
		}
		return envelope.LocationPing{}, errs.Wrap(errs.ErrPersistenceFailed, err)
	}
	return p, nil
}
