package postgres

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"

	"github.com/dkeye/tileworld/internal/domain"
)

func TestTranslate(t *testing.T) {
	cases := []struct {
		name string
		in   error
		want error
	}{
		{"no rows", sql.ErrNoRows, domain.ErrNotFound},
		{"wrapped no rows", fmt.Errorf("get: %w", sql.ErrNoRows), domain.ErrNotFound},
		{"unique violation", &pq.Error{Code: "23505", Constraint: "users_username_key"}, domain.ErrConflict},
		{"other", errors.New("connection refused"), domain.ErrStoreUnavailable},
	}
	for _, tc := range cases {
		if got := translate(tc.in); !errors.Is(got, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
	if translate(nil) != nil {
		t.Fatalf("expected nil to stay nil")
	}
}
