package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/dkeye/tileworld/internal/domain"
)

type userRow struct {
	ID           string       `db:"id"`
	Username     string       `db:"username"`
	Email        string       `db:"email"`
	PasswordHash string       `db:"password_hash"`
	IsDeveloper  bool         `db:"is_developer"`
	CreatedAt    time.Time    `db:"created_at"`
	LastLogin    sql.NullTime `db:"last_login"`
}

func (r userRow) toDomain() *domain.User {
	return &domain.User{
		ID:           domain.UserID(r.ID),
		Username:     r.Username,
		Email:        r.Email,
		PasswordHash: r.PasswordHash,
		IsDeveloper:  r.IsDeveloper,
		CreatedAt:    r.CreatedAt,
		LastLogin:    r.LastLogin.Time,
	}
}

const userColumns = `id, username, email, password_hash, is_developer, created_at, last_login`

func (s *Store) FindUser(ctx context.Context, id domain.UserID) (*domain.User, error) {
	var row userRow
	if err := s.db.GetContext(ctx, &row, `SELECT `+userColumns+` FROM users WHERE id=$1`, id); err != nil {
		return nil, translate(err)
	}
	return row.toDomain(), nil
}

func (s *Store) FindUserByLogin(ctx context.Context, login string) (*domain.User, error) {
	var row userRow
	q := `SELECT ` + userColumns + ` FROM users WHERE username=$1 OR lower(email)=lower($1) LIMIT 1`
	if err := s.db.GetContext(ctx, &row, q, login); err != nil {
		return nil, translate(err)
	}
	return row.toDomain(), nil
}

func (s *Store) CreateUser(ctx context.Context, u *domain.User) error {
	q := `INSERT INTO users (id, username, email, password_hash, is_developer)
		  VALUES (:id, :username, :email, :password_hash, :is_developer)`
	params := map[string]any{
		"id":            u.ID,
		"username":      u.Username,
		"email":         u.Email,
		"password_hash": u.PasswordHash,
		"is_developer":  u.IsDeveloper,
	}
	_, err := s.db.NamedExecContext(ctx, q, params)
	return translate(err)
}

func (s *Store) TouchLogin(ctx context.Context, id domain.UserID) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET last_login=NOW() WHERE id=$1`, id)
	if err != nil {
		return translate(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}
