package docstore

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

type sampleDoc struct {
	ID     string   `json:"id"`
	Owner  string   `json:"owner"`
	Status string   `json:"status"`
	Amount float64  `json:"amount"`
	Tags   []string `json:"tags,omitempty"`
}

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	coll := Path("conferences", "c1", "paper_submissions")

	var missing sampleDoc
	if err := s.Get(ctx, coll, "nope", &missing); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get missing: want ErrNotFound, got %v", err)
	}

	docs := []sampleDoc{
		{ID: "b", Owner: "u1", Status: "pending", Amount: 10.5},
		{ID: "a", Owner: "u1", Status: "accepted", Amount: 376, Tags: []string{"ml"}},
		{ID: "c", Owner: "u2", Status: "pending"},
	}
	for _, d := range docs {
		if err := s.Put(ctx, coll, d.ID, d); err != nil {
			t.Fatalf("Put %s: %v", d.ID, err)
		}
	}

	var got sampleDoc
	if err := s.Get(ctx, coll, "a", &got); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Amount != 376 || len(got.Tags) != 1 {
		t.Fatalf("unexpected doc %+v", got)
	}

	var all []sampleDoc
	if err := s.Find(ctx, coll, nil, &all); err != nil {
		t.Fatalf("Find all: %v", err)
	}
	if len(all) != 3 || all[0].ID != "a" || all[2].ID != "c" {
		t.Fatalf("Find all order/len wrong: %+v", all)
	}

	var mine []sampleDoc
	if err := s.Find(ctx, coll, Filter{"owner": "u1", "status": "pending"}, &mine); err != nil {
		t.Fatalf("Find filtered: %v", err)
	}
	if len(mine) != 1 || mine[0].ID != "b" {
		t.Fatalf("filtered result wrong: %+v", mine)
	}

	got.Status = "rejected"
	if err := s.Put(ctx, coll, "a", got); err != nil {
		t.Fatalf("Put replace: %v", err)
	}
	var replaced sampleDoc
	_ = s.Get(ctx, coll, "a", &replaced)
	if replaced.Status != "rejected" {
		t.Fatalf("replace not applied: %+v", replaced)
	}

	var other []sampleDoc
	if err := s.Find(ctx, "registrations", nil, &other); err != nil || len(other) != 0 {
		t.Fatalf("empty collection: %v %+v", err, other)
	}

	if err := s.Delete(ctx, coll, "c"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete(ctx, coll, "c"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Delete twice: want ErrNotFound, got %v", err)
	}
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemory())
}

func TestSQLiteStore(t *testing.T) {
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "docs.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	s := NewSQL(db, SQLite)
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	exerciseStore(t, s)
}

func TestFindRejectsUnsafeField(t *testing.T) {
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "docs.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	s := NewSQL(db, SQLite)
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	var out []sampleDoc
	if err := s.Find(context.Background(), "x", Filter{"a' OR 1=1 --": "v"}, &out); err == nil {
		t.Fatal("expected error for unsafe field name")
	}
}

func TestPutRejectsNonObject(t *testing.T) {
	if err := NewMemory().Put(context.Background(), "x", "1", []int{1}); err == nil {
		t.Fatal("expected error for array document")
	}
}
