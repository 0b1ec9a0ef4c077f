package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dkeye/tileworld/internal/domain"
)

type mapRow struct {
	ID             string          `db:"id"`
	Name           string          `db:"name"`
	Slug           string          `db:"slug"`
	Width          int             `db:"width"`
	Height         int             `db:"height"`
	Tiles          json.RawMessage `db:"tiles"`
	IsPublished    bool            `db:"is_published"`
	IsDefaultSpawn bool            `db:"is_default_spawn"`
	CreatedBy      sql.NullString  `db:"created_by"`
	CreatedAt      time.Time       `db:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at"`
}

func (r mapRow) toDomain() (domain.Map, error) {
	m := domain.Map{
		ID:             domain.MapID(r.ID),
		Name:           r.Name,
		Slug:           r.Slug,
		Width:          r.Width,
		Height:         r.Height,
		IsPublished:    r.IsPublished,
		IsDefaultSpawn: r.IsDefaultSpawn,
		CreatedBy:      domain.UserID(r.CreatedBy.String),
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
	if err := json.Unmarshal(r.Tiles, &m.Tiles); err != nil {
		return domain.Map{}, fmt.Errorf("decode tiles of map %s: %w", r.ID, err)
	}
	return m, nil
}

const mapColumns = `id, name, slug, width, height, tiles, is_published, is_default_spawn, created_by, created_at, updated_at`

func (s *Store) getMap(ctx context.Context, q string, args ...any) (*domain.Map, error) {
	var row mapRow
	if err := s.db.GetContext(ctx, &row, q, args...); err != nil {
		return nil, translate(err)
	}
	m, err := row.toDomain()
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *Store) FindMap(ctx context.Context, id domain.MapID) (*domain.Map, error) {
	return s.getMap(ctx, `SELECT `+mapColumns+` FROM maps WHERE id=$1`, id)
}

func (s *Store) FindDefaultSpawn(ctx context.Context) (*domain.Map, error) {
	return s.getMap(ctx, `SELECT `+mapColumns+` FROM maps WHERE is_default_spawn LIMIT 1`)
}

func (s *Store) ListMaps(ctx context.Context, publishedOnly bool) ([]domain.Map, error) {
	q := `SELECT ` + mapColumns + ` FROM maps`
	if publishedOnly {
		q += ` WHERE is_published`
	}
	q += ` ORDER BY created_at DESC`
	var rows []mapRow
	if err := s.db.SelectContext(ctx, &rows, q); err != nil {
		return nil, translate(err)
	}
	out := make([]domain.Map, 0, len(rows))
	for _, r := range rows {
		m, err := r.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func (s *Store) CreateMap(ctx context.Context, m *domain.Map) error {
	tiles, err := json.Marshal(m.Tiles)
	if err != nil {
		return fmt.Errorf("encode tiles: %w", err)
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return translate(err)
	}
	defer tx.Rollback()

	if m.IsDefaultSpawn {
		if _, err := tx.ExecContext(ctx, `UPDATE maps SET is_default_spawn=false WHERE is_default_spawn`); err != nil {
			return translate(err)
		}
	}
	q := `INSERT INTO maps (id, name, slug, width, height, tiles, is_published, is_default_spawn, created_by)
		  VALUES (:id, :name, :slug, :width, :height, :tiles, :is_published, :is_default_spawn, :created_by)
		  RETURNING created_at, updated_at`
	params := map[string]any{
		"id":               m.ID,
		"name":             m.Name,
		"slug":             m.Slug,
		"width":            m.Width,
		"height":           m.Height,
		"tiles":            tiles,
		"is_published":     m.IsPublished,
		"is_default_spawn": m.IsDefaultSpawn,
		"created_by":       sql.NullString{String: string(m.CreatedBy), Valid: m.CreatedBy != ""},
	}
	rows, err := tx.NamedQuery(q, params)
	if err != nil {
		return translate(err)
	}
	if rows.Next() {
		if err := rows.Scan(&m.CreatedAt, &m.UpdatedAt); err != nil {
			rows.Close()
			return translate(err)
		}
	}
	rows.Close()
	return translate(tx.Commit())
}

func (s *Store) SetPublished(ctx context.Context, id domain.MapID, published bool) (*domain.Map, error) {
	return s.getMap(ctx, `UPDATE maps SET is_published=$2, updated_at=NOW() WHERE id=$1 RETURNING `+mapColumns, id, published)
}

func (s *Store) SetDefaultSpawn(ctx context.Context, id domain.MapID) (*domain.Map, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, translate(err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `UPDATE maps SET is_default_spawn=false, updated_at=NOW() WHERE is_default_spawn AND id<>$1`, id); err != nil {
		return nil, translate(err)
	}
	var row mapRow
	q := `UPDATE maps SET is_default_spawn=true, updated_at=NOW() WHERE id=$1 RETURNING ` + mapColumns
	if err := tx.GetContext(ctx, &row, q, id); err != nil {
		return nil, translate(err)
	}
	if err := tx.Commit(); err != nil {
		return nil, translate(err)
	}
	m, err := row.toDomain()
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *Store) UpdateMap(ctx context.Context, m *domain.Map) (*domain.Map, error) {
	tiles, err := json.Marshal(m.Tiles)
	if err != nil {
		return nil, fmt.Errorf("encode tiles: %w", err)
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, translate(err)
	}
	defer tx.Rollback()

	if m.IsDefaultSpawn {
		if _, err := tx.ExecContext(ctx, `UPDATE maps SET is_default_spawn=false, updated_at=NOW() WHERE is_default_spawn AND id<>$1`, m.ID); err != nil {
			return nil, translate(err)
		}
	}
	var row mapRow
	q := `UPDATE maps SET name=$2, slug=$3, width=$4, height=$5, tiles=$6, is_published=$7, is_default_spawn=$8, updated_at=NOW()
		  WHERE id=$1 RETURNING ` + mapColumns
	if err := tx.GetContext(ctx, &row, q, m.ID, m.Name, m.Slug, m.Width, m.Height, tiles, m.IsPublished, m.IsDefaultSpawn); err != nil {
		return nil, translate(err)
	}
	if err := tx.Commit(); err != nil {
		return nil, translate(err)
	}
	out, err := row.toDomain()
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Store) DeleteMap(ctx context.Context, id domain.MapID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM maps WHERE id=$1`, id)
	if err != nil {
		return translate(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return translate(err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}
