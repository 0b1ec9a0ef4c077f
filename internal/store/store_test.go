package store

import (
	"context"
	"testing"

	"github.com/dkeye/tileworld/internal/config"
	"github.com/dkeye/tileworld/internal/store/memory"
)

func TestOpenMemory(t *testing.T) {
	s, err := Open(config.StoreConfig{Driver: "memory"})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, ok := s.(*memory.Store); !ok {
		t.Fatalf("expected memory store, got %T", s)
	}
	if err := Migrate(context.Background(), s); err != nil {
		t.Fatalf("expected memory migrate to be a no-op, got %v", err)
	}
}

func TestOpenRejectsBadConfig(t *testing.T) {
	cases := map[string]config.StoreConfig{
		"unknown driver":  {Driver: "mongo"},
		"postgres no dsn": {Driver: "postgres"},
		"mysql no host":   {Driver: "mysql", Mysql: config.MysqlConfig{User: "u", Database: "d"}},
	}
	for name, cfg := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Open(cfg); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}
