package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/dkeye/tileworld/internal/core"
	"github.com/dkeye/tileworld/internal/domain"
)

type presenceRow struct {
	UserID       string         `db:"user_id"`
	DisplayName  string         `db:"display_name"`
	MapID        string         `db:"map_id"`
	Row          int            `db:"pos_row"`
	Col          int            `db:"pos_col"`
	Direction    string         `db:"direction"`
	IsOnline     bool           `db:"is_online"`
	ConnectionID sql.NullString `db:"connection_id"`
	LastUpdate   time.Time      `db:"last_update"`
}

func (r presenceRow) toDomain() domain.Presence {
	return domain.Presence{
		UserID:       domain.UserID(r.UserID),
		DisplayName:  r.DisplayName,
		MapID:        domain.MapID(r.MapID),
		Position:     domain.GridPosition{Row: r.Row, Col: r.Col},
		Direction:    domain.Direction(r.Direction),
		Online:       r.IsOnline,
		ConnectionID: r.ConnectionID.String,
		LastUpdate:   r.LastUpdate,
	}
}

const presenceColumns = `user_id, display_name, map_id, pos_row, pos_col, direction, is_online, connection_id, last_update`

func (s *Store) FindPresence(ctx context.Context, userID domain.UserID) (*domain.Presence, error) {
	var row presenceRow
	q := `SELECT ` + presenceColumns + ` FROM player_presence WHERE user_id=$1`
	if err := s.db.GetContext(ctx, &row, q, userID); err != nil {
		return nil, translate(err)
	}
	p := row.toDomain()
	return &p, nil
}

func (s *Store) ListOnline(ctx context.Context, mapID domain.MapID) ([]domain.Presence, error) {
	var rows []presenceRow
	q := `SELECT ` + presenceColumns + ` FROM player_presence WHERE map_id=$1 AND is_online ORDER BY user_id`
	if err := s.db.SelectContext(ctx, &rows, q, mapID); err != nil {
		return nil, translate(err)
	}
	out := make([]domain.Presence, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (s *Store) CreatePresence(ctx context.Context, p *domain.Presence) error {
	q := `INSERT INTO player_presence (user_id, display_name, map_id, pos_row, pos_col, direction, is_online, connection_id, last_update)
		  VALUES (:user_id, :display_name, :map_id, :pos_row, :pos_col, :direction, false, NULL, NOW())`
	params := map[string]any{
		"user_id":      p.UserID,
		"display_name": p.DisplayName,
		"map_id":       p.MapID,
		"pos_row":      p.Position.Row,
		"pos_col":      p.Position.Col,
		"direction":    p.Direction,
	}
	_, err := s.db.NamedExecContext(ctx, q, params)
	return translate(err)
}

func (s *Store) SetOnline(ctx context.Context, userID domain.UserID, connID core.ConnectionID) (*domain.Presence, error) {
	q := `UPDATE player_presence SET is_online=true, connection_id=$2, last_update=NOW()
		  WHERE user_id=$1 RETURNING ` + presenceColumns
	return s.updateReturning(ctx, q, userID, connID)
}

func (s *Store) SetOffline(ctx context.Context, userID domain.UserID, connID core.ConnectionID) (*domain.Presence, bool, error) {
	q := `UPDATE player_presence SET is_online=false, connection_id=NULL, last_update=NOW()
		  WHERE user_id=$1 AND connection_id=$2 RETURNING ` + presenceColumns
	p, err := s.updateReturning(ctx, q, userID, connID)
	if err == nil {
		return p, true, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, false, err
	}
	// either the user is unknown or another connection owns the record
	p, err = s.FindPresence(ctx, userID)
	return p, false, err
}

func (s *Store) UpdatePosition(
	ctx context.Context,
	userID domain.UserID,
	mapID domain.MapID,
	pos domain.GridPosition,
	dir domain.Direction,
) (*domain.Presence, error) {
	q := `UPDATE player_presence SET map_id=$2, pos_row=$3, pos_col=$4, direction=$5, last_update=NOW()
		  WHERE user_id=$1 RETURNING ` + presenceColumns
	return s.updateReturning(ctx, q, userID, mapID, pos.Row, pos.Col, dir)
}

func (s *Store) ResetOnline(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE player_presence SET is_online=false, connection_id=NULL, last_update=NOW()
		WHERE is_online OR connection_id IS NOT NULL`)
	if err != nil {
		return 0, translate(err)
	}
	n, err := res.RowsAffected()
	return n, translate(err)
}

func (s *Store) RelocateAll(ctx context.Context, from domain.MapID, to domain.Spawn) (int64, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE player_presence SET map_id=$2, pos_row=$3, pos_col=$4, direction=$5, last_update=NOW()
		WHERE map_id=$1`, from, to.MapID, to.Position.Row, to.Position.Col, domain.DirIdle)
	if err != nil {
		return 0, translate(err)
	}
	n, err := res.RowsAffected()
	return n, translate(err)
}

func (s *Store) updateReturning(ctx context.Context, q string, args ...any) (*domain.Presence, error) {
	var row presenceRow
	if err := s.db.QueryRowxContext(ctx, q, args...).StructScan(&row); err != nil {
		return nil, translate(err)
	}
	p := row.toDomain()
	return &p, nil
}
