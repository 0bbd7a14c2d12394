package store

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func openMemory(t *testing.T) *Store {
	t.Helper()
	s, err := Open("", zerolog.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndGet(t *testing.T) {
	s := openMemory(t)
	rec := &Record{
		RunID:     "a1",
		CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Status:    "ok",
		Params:    map[string]any{"k": 2, "mode": "leveled"},
		Nodes:     5,
		Edges:     4,
		Seeds:     []SeedEntry{{Node: 0, AvgDistance: 2.5, Influence: 0.2}},
	}
	if err := s.Save(rec); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := s.Get("a1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Nodes != 5 || len(got.Seeds) != 1 || got.Seeds[0].AvgDistance != 2.5 {
		t.Errorf("record = %+v", got)
	}
	if !got.CreatedAt.Equal(rec.CreatedAt) {
		t.Errorf("created at %v, want %v", got.CreatedAt, rec.CreatedAt)
	}
	if got.Params["mode"] != "leveled" {
		t.Errorf("params = %v", got.Params)
	}
}

func TestGetMissing(t *testing.T) {
	s := openMemory(t)
	if _, err := s.Get("nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.Delete("nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on delete, got %v", err)
	}
}

func TestListNewestFirst(t *testing.T) {
	s := openMemory(t)
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"b", "c", "a"} {
		rec := &Record{RunID: id, CreatedAt: base.Add(time.Duration(i) * time.Hour)}
		if err := s.Save(rec); err != nil {
			t.Fatalf("Save %s: %v", id, err)
		}
	}

	all, err := s.List(0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	var ids []string
	for _, r := range all {
		ids = append(ids, r.RunID)
	}
	if len(ids) != 3 || ids[0] != "a" || ids[1] != "c" || ids[2] != "b" {
		t.Errorf("order = %v, want [a c b]", ids)
	}

	two, err := s.List(2)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(two) != 2 {
		t.Errorf("limit 2 returned %d", len(two))
	}
}

func TestDelete(t *testing.T) {
	s := openMemory(t)
	if err := s.Save(&Record{RunID: "x"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete("x"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get("x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("record still present: %v", err)
	}
}

func TestSaveRequiresID(t *testing.T) {
	s := openMemory(t)
	if err := s.Save(&Record{}); err == nil {
		t.Fatal("expected error for empty run id")
	}
}
