// Package mysql implements core.Store on MySQL through gorm.
package mysql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/dkeye/tileworld/internal/core"
	"github.com/dkeye/tileworld/internal/domain"
)

type Config struct {
	User     string
	Password string
	Host     string
	Database string
	Debug    bool
}

type Store struct {
	db *gorm.DB
}

var _ core.Store = (*Store)(nil)

func Open(cfg Config) (*Store, error) {
	if cfg.User == "" || cfg.Host == "" || cfg.Database == "" {
		return nil, fmt.Errorf("missing connection info")
	}
	dsn := fmt.Sprintf("%s:%s@tcp(%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		cfg.User, cfg.Password, cfg.Host, cfg.Database)
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, err
	}
	if cfg.Debug {
		db.Logger = db.Logger.LogMode(logger.Info)
	} else {
		db.Logger = db.Logger.LogMode(logger.Silent)
	}
	return &Store{db: db}, nil
}

// NewWithDB wraps an already opened gorm handle.
func NewWithDB(db *gorm.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, m := range []any{&userModel{}, &mapModel{}, &presenceModel{}} {
		if err := s.db.WithContext(ctx).AutoMigrate(m); err != nil {
			return fmt.Errorf("automigrate %T: %w", m, err)
		}
	}
	return nil
}

type userModel struct {
	ID           string `gorm:"primaryKey;size:64"`
	Username     string `gorm:"size:64;uniqueIndex"`
	Email        string `gorm:"size:255;uniqueIndex"`
	PasswordHash string `gorm:"size:255"`
	IsDeveloper  bool
	CreatedAt    time.Time
	LastLogin    *time.Time
}

func (userModel) TableName() string { return "users" }

func (m userModel) toDomain() *domain.User {
	u := &domain.User{
		ID:           domain.UserID(m.ID),
		Username:     m.Username,
		Email:        m.Email,
		PasswordHash: m.PasswordHash,
		IsDeveloper:  m.IsDeveloper,
		CreatedAt:    m.CreatedAt,
	}
	if m.LastLogin != nil {
		u.LastLogin = *m.LastLogin
	}
	return u
}

type mapModel struct {
	ID             string          `gorm:"primaryKey;size:64"`
	Name           string          `gorm:"size:100"`
	Slug           string          `gorm:"size:100"`
	Width          int
	Height         int
	Tiles          [][]domain.Tile `gorm:"serializer:json;type:json"`
	IsPublished    bool            `gorm:"index"`
	IsDefaultSpawn bool            `gorm:"index"`
	CreatedBy      string          `gorm:"size:64"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (mapModel) TableName() string { return "maps" }

func (m mapModel) toDomain() *domain.Map {
	return &domain.Map{
		ID:             domain.MapID(m.ID),
		Name:           m.Name,
		Slug:           m.Slug,
		Width:          m.Width,
		Height:         m.Height,
		Tiles:          m.Tiles,
		IsPublished:    m.IsPublished,
		IsDefaultSpawn: m.IsDefaultSpawn,
		CreatedBy:      domain.UserID(m.CreatedBy),
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

type presenceModel struct {
	UserID       string `gorm:"primaryKey;size:64"`
	DisplayName  string `gorm:"size:64"`
	MapID        string `gorm:"size:64;index:idx_presence_room"`
	PosRow       int
	PosCol       int
	Direction    string `gorm:"size:8"`
	IsOnline     bool   `gorm:"index:idx_presence_room"`
	ConnectionID string `gorm:"size:64;index"`
	LastUpdate   time.Time
}

func (presenceModel) TableName() string { return "player_presence" }

func (m presenceModel) toDomain() domain.Presence {
	return domain.Presence{
		UserID:       domain.UserID(m.UserID),
		DisplayName:  m.DisplayName,
		MapID:        domain.MapID(m.MapID),
		Position:     domain.GridPosition{Row: m.PosRow, Col: m.PosCol},
		Direction:    domain.Direction(m.Direction),
		Online:       m.IsOnline,
		ConnectionID: m.ConnectionID,
		LastUpdate:   m.LastUpdate,
	}
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return domain.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return domain.ErrConflict
	default:
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
}

func (s *Store) FindPresence(ctx context.Context, userID domain.UserID) (*domain.Presence, error) {
	var m presenceModel
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&m).Error; err != nil {
		return nil, translate(err)
	}
	p := m.toDomain()
	return &p, nil
}

func (s *Store) ListOnline(ctx context.Context, mapID domain.MapID) ([]domain.Presence, error) {
	var rows []presenceModel
	err := s.db.WithContext(ctx).
		Where("map_id = ? AND is_online = ?", mapID, true).
		Order("user_id").
		Find(&rows).Error
	if err != nil {
		return nil, translate(err)
	}
	out := make([]domain.Presence, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (s *Store) CreatePresence(ctx context.Context, p *domain.Presence) error {
	m := presenceModel{
		UserID:      string(p.UserID),
		DisplayName: p.DisplayName,
		MapID:       string(p.MapID),
		PosRow:      p.Position.Row,
		PosCol:      p.Position.Col,
		Direction:   string(p.Direction),
		LastUpdate:  time.Now().UTC(),
	}
	return translate(s.db.WithContext(ctx).Create(&m).Error)
}

func (s *Store) SetOnline(ctx context.Context, userID domain.UserID, connID core.ConnectionID) (*domain.Presence, error) {
	return s.updatePresence(ctx, userID, map[string]any{
		"is_online":     true,
		"connection_id": string(connID),
	})
}

func (s *Store) SetOffline(ctx context.Context, userID domain.UserID, connID core.ConnectionID) (*domain.Presence, bool, error) {
	var (
		out     *domain.Presence
		changed bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&presenceModel{}).
			Where("user_id = ? AND connection_id = ?", userID, string(connID)).
			Updates(map[string]any{"is_online": false, "connection_id": "", "last_update": time.Now().UTC()})
		if res.Error != nil {
			return res.Error
		}
		changed = res.RowsAffected > 0
		var m presenceModel
		if err := tx.Where("user_id = ?", userID).First(&m).Error; err != nil {
			return err
		}
		p := m.toDomain()
		out = &p
		return nil
	})
	if err != nil {
		return nil, false, translate(err)
	}
	return out, changed, nil
}

func (s *Store) UpdatePosition(
	ctx context.Context,
	userID domain.UserID,
	mapID domain.MapID,
	pos domain.GridPosition,
	dir domain.Direction,
) (*domain.Presence, error) {
	return s.updatePresence(ctx, userID, map[string]any{
		"map_id":    string(mapID),
		"pos_row":   pos.Row,
		"pos_col":   pos.Col,
		"direction": string(dir),
	})
}

func (s *Store) ResetOnline(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).Model(&presenceModel{}).
		Where("is_online = ? OR connection_id <> ?", true, "").
		Updates(map[string]any{"is_online": false, "connection_id": "", "last_update": time.Now().UTC()})
	return res.RowsAffected, translate(res.Error)
}

func (s *Store) RelocateAll(ctx context.Context, from domain.MapID, to domain.Spawn) (int64, error) {
	res := s.db.WithContext(ctx).Model(&presenceModel{}).
		Where("map_id = ?", string(from)).
		Updates(map[string]any{
			"map_id":      string(to.MapID),
			"pos_row":     to.Position.Row,
			"pos_col":     to.Position.Col,
			"direction":   string(domain.DirIdle),
			"last_update": time.Now().UTC(),
		})
	return res.RowsAffected, translate(res.Error)
}

func (s *Store) updatePresence(ctx context.Context, userID domain.UserID, fields map[string]any) (*domain.Presence, error) {
	fields["last_update"] = time.Now().UTC()
	var out domain.Presence
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m presenceModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("user_id = ?", userID).First(&m).Error; err != nil {
			return err
		}
		if err := tx.Model(&m).Updates(fields).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", userID).First(&m).Error; err != nil {
			return err
		}
		out = m.toDomain()
		return nil
	})
	if err != nil {
		return nil, translate(err)
	}
	return &out, nil
}

func (s *Store) FindMap(ctx context.Context, id domain.MapID) (*domain.Map, error) {
	var m mapModel
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, translate(err)
	}
	return m.toDomain(), nil
}

func (s *Store) FindDefaultSpawn(ctx context.Context) (*domain.Map, error) {
	var m mapModel
	if err := s.db.WithContext(ctx).Where("is_default_spawn = ?", true).First(&m).Error; err != nil {
		return nil, translate(err)
	}
	return m.toDomain(), nil
}

func (s *Store) ListMaps(ctx context.Context, publishedOnly bool) ([]domain.Map, error) {
	q := s.db.WithContext(ctx).Order("created_at DESC")
	if publishedOnly {
		q = q.Where("is_published = ?", true)
	}
	var rows []mapModel
	if err := q.Find(&rows).Error; err != nil {
		return nil, translate(err)
	}
	out := make([]domain.Map, 0, len(rows))
	for _, r := range rows {
		out = append(out, *r.toDomain())
	}
	return out, nil
}

func (s *Store) CreateMap(ctx context.Context, dm *domain.Map) error {
	m := mapModel{
		ID:             string(dm.ID),
		Name:           dm.Name,
		Slug:           dm.Slug,
		Width:          dm.Width,
		Height:         dm.Height,
		Tiles:          dm.Tiles,
		IsPublished:    dm.IsPublished,
		IsDefaultSpawn: dm.IsDefaultSpawn,
		CreatedBy:      string(dm.CreatedBy),
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if m.IsDefaultSpawn {
			if err := tx.Model(&mapModel{}).Where("is_default_spawn = ?", true).Update("is_default_spawn", false).Error; err != nil {
				return err
			}
		}
		return tx.Create(&m).Error
	})
	if err != nil {
		return translate(err)
	}
	dm.CreatedAt, dm.UpdatedAt = m.CreatedAt, m.UpdatedAt
	return nil
}

func (s *Store) SetPublished(ctx context.Context, id domain.MapID, published bool) (*domain.Map, error) {
	res := s.db.WithContext(ctx).Model(&mapModel{}).Where("id = ?", id).Update("is_published", published)
	if res.Error != nil {
		return nil, translate(res.Error)
	}
	return s.FindMap(ctx, id)
}

func (s *Store) SetDefaultSpawn(ctx context.Context, id domain.MapID) (*domain.Map, error) {
	var out *domain.Map
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m mapModel
		if err := tx.Where("id = ?", id).First(&m).Error; err != nil {
			return err
		}
		if err := tx.Model(&mapModel{}).Where("is_default_spawn = ? AND id <> ?", true, id).Update("is_default_spawn", false).Error; err != nil {
			return err
		}
		if err := tx.Model(&m).Update("is_default_spawn", true).Error; err != nil {
			return err
		}
		out = m.toDomain()
		return nil
	})
	if err != nil {
		return nil, translate(err)
	}
	return out, nil
}

func (s *Store) UpdateMap(ctx context.Context, dm *domain.Map) (*domain.Map, error) {
	var out *domain.Map
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m mapModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", dm.ID).First(&m).Error; err != nil {
			return err
		}
		if dm.IsDefaultSpawn {
			if err := tx.Model(&mapModel{}).Where("is_default_spawn = ? AND id <> ?", true, dm.ID).Update("is_default_spawn", false).Error; err != nil {
				return err
			}
		}
		m.Name = dm.Name
		m.Slug = dm.Slug
		m.Width = dm.Width
		m.Height = dm.Height
		m.Tiles = dm.Tiles
		m.IsPublished = dm.IsPublished
		m.IsDefaultSpawn = dm.IsDefaultSpawn
		if err := tx.Save(&m).Error; err != nil {
			return err
		}
		out = m.toDomain()
		return nil
	})
	if err != nil {
		return nil, translate(err)
	}
	return out, nil
}

func (s *Store) DeleteMap(ctx context.Context, id domain.MapID) error {
	res := s.db.WithContext(ctx).Where("id = ?", string(id)).Delete(&mapModel{})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Store) FindUser(ctx context.Context, id domain.UserID) (*domain.User, error) {
	var m userModel
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, translate(err)
	}
	return m.toDomain(), nil
}

func (s *Store) FindUserByLogin(ctx context.Context, login string) (*domain.User, error) {
	var m userModel
	err := s.db.WithContext(ctx).Where("username = ? OR LOWER(email) = LOWER(?)", login, login).First(&m).Error
	if err != nil {
		return nil, translate(err)
	}
	return m.toDomain(), nil
}

func (s *Store) CreateUser(ctx context.Context, u *domain.User) error {
	m := userModel{
		ID:           string(u.ID),
		Username:     u.Username,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		IsDeveloper:  u.IsDeveloper,
	}
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return translate(err)
	}
	u.CreatedAt = m.CreatedAt
	return nil
}

func (s *Store) TouchLogin(ctx context.Context, id domain.UserID) error {
	res := s.db.WithContext(ctx).Model(&userModel{}).Where("id = ?", id).Update("last_login", time.Now().UTC())
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
