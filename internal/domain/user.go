// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	MinUsernameLen = 3
	MaxUsernameLen = 36
)

var (
	ErrUsernameTooLong  = errors.New("username too long")
	ErrUsernameTooShort = errors.New("username too short")
	ErrUsernameEmpty    = errors.New("username empty")
	ErrEmailInvalid     = errors.New("email invalid")
)

type UserID string

type User struct {
	ID           UserID    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	IsDeveloper  bool      `json:"isDeveloper"`
	CreatedAt    time.Time `json:"createdAt"`
	LastLogin    time.Time `json:"lastLogin,omitzero"`
}

// Identity is what a live connection knows about its owner.
type Identity struct {
	UserID      UserID `json:"userId"`
	DisplayName string `json:"displayName"`
}

// NewUser is a tiny helper to avoid ad-hoc struct literals in adapters.
func NewUser(username, email string) (*User, error) {
	if err := validateUsername(username); err != nil {
		return nil, err
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if !strings.Contains(email, "@") {
		return nil, ErrEmailInvalid
	}
	id := UserID(uuid.NewString())
	return &User{ID: id, Username: username, Email: email, CreatedAt: time.Now().UTC()}, nil
}

func (u *User) SetUsername(username string) error {
	if err := validateUsername(username); err != nil {
		return err
	}
	u.Username = username
	return nil
}

func (u *User) Identity() Identity {
	return Identity{UserID: u.ID, DisplayName: u.Username}
}

func validateUsername(username string) error {
	switch {
	case len(username) == 0:
		return ErrUsernameEmpty
	case len(username) < MinUsernameLen:
		return ErrUsernameTooShort
	case len(username) > MaxUsernameLen:
		return ErrUsernameTooLong
	}
	return nil
}
