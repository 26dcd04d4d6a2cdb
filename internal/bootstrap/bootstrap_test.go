package bootstrap

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"conference/internal/config"
	"conference/internal/docstore"
)

func TestOpenMemory(t *testing.T) {
	b, err := Open(context.Background(), config.App{StoreBackend: "memory", QueueBackend: "memory"}, zerolog.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer b.Close()
	if _, ok := b.Docs.(*docstore.Memory); !ok {
		t.Fatalf("docs = %T", b.Docs)
	}
	if !b.InProcess() || b.Redis != nil {
		t.Fatal("memory queue must dispatch in process without redis")
	}
}

func TestOpenSQLiteMigrates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf.db")
	b, err := Open(context.Background(), config.App{StoreBackend: "sqlite", SQLitePath: path}, zerolog.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer b.Close()

	ctx := context.Background()
	if err := b.Docs.Put(ctx, "conferences", "c1", map[string]string{"id": "c1", "name": "ICX"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if !b.Health["db"](ctx) {
		t.Fatal("sqlite should report healthy")
	}
}

func TestOpenRejectsUnknownBackends(t *testing.T) {
	if _, err := Open(context.Background(), config.App{StoreBackend: "cassandra"}, zerolog.Nop()); err == nil {
		t.Fatal("expected unknown store error")
	}
	if _, err := Open(context.Background(), config.App{StoreBackend: "memory", QueueBackend: "kafka"}, zerolog.Nop()); err == nil {
		t.Fatal("expected unknown queue error")
	}
	if !NeedsRedis(config.App{RateLimitBackend: "redis"}) || NeedsRedis(config.App{}) {
		t.Fatal("NeedsRedis mismatch")
	}
}
