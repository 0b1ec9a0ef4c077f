package mysql

import (
	"errors"
	"testing"

	"gorm.io/gorm"

	"github.com/dkeye/tileworld/internal/domain"
)

func TestTranslate(t *testing.T) {
	if got := translate(gorm.ErrRecordNotFound); !errors.Is(got, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", got)
	}
	if got := translate(gorm.ErrDuplicatedKey); !errors.Is(got, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", got)
	}
	if got := translate(errors.New("broken pipe")); !errors.Is(got, domain.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", got)
	}
}

func TestOpenRequiresConnectionInfo(t *testing.T) {
	if _, err := Open(Config{User: "u", Database: "d"}); err == nil {
		t.Fatalf("expected missing host to fail")
	}
}

func TestModelConversion(t *testing.T) {
	m := presenceModel{UserID: "alice", MapID: "D", PosRow: 2, PosCol: 3, Direction: "left", IsOnline: true, ConnectionID: "c1"}
	p := m.toDomain()
	if p.Position != (domain.GridPosition{Row: 2, Col: 3}) || p.Direction != domain.DirLeft || p.ConnectionID != "c1" {
		t.Fatalf("unexpected presence %+v", p)
	}
}
