package store

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"stele-slicer/internal/labeler"
)

func setupTestDB(t *testing.T) *SQLite {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	if err := InitDB(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewSQLite(db)
}

func TestCheckpointMatchesHashAndDigest(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	if err := s.MarkDone(ctx, Checkpoint{Stele: "zhang", Page: 1, PageHash: "h1", ParamsDigest: "d1", Records: 20}); err != nil {
		t.Fatalf("mark: %v", err)
	}
	tests := []struct {
		hash, digest string
		want         bool
	}{
		{"h1", "d1", true},
		{"h2", "d1", false},
		{"h1", "d2", false},
	}
	for _, tt := range tests {
		got, err := s.Done(ctx, "zhang", 1, tt.hash, tt.digest)
		if err != nil {
			t.Fatal(err)
		}
		if got != tt.want {
			t.Fatalf("Done(%s,%s) = %v, want %v", tt.hash, tt.digest, got, tt.want)
		}
	}

	// replacing the checkpoint invalidates the old hash
	if err := s.MarkDone(ctx, Checkpoint{Stele: "zhang", Page: 1, PageHash: "h2", ParamsDigest: "d1"}); err != nil {
		t.Fatal(err)
	}
	if ok, _ := s.Done(ctx, "zhang", 1, "h1", "d1"); ok {
		t.Fatal("stale checkpoint still matches")
	}
	if err := s.Reset(ctx, "zhang"); err != nil {
		t.Fatal(err)
	}
	if ok, _ := s.Done(ctx, "zhang", 1, "h2", "d1"); ok {
		t.Fatal("checkpoint survived reset")
	}
}

func TestSQLiteLabelCache(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	if _, ok, err := s.Get(ctx, "k"); ok || err != nil {
		t.Fatalf("miss = %v %v", ok, err)
	}
	want := &labeler.Result{BestTrad: "書", BestSimp: "书", Confidence: 0.8,
		Candidates: []labeler.Candidate{{Trad: "晝", Simp: "昼", Score: 0.1}}}
	if err := s.Put(ctx, "k", want); err != nil {
		t.Fatal(err)
	}
	got, ok, err := s.Get(ctx, "k")
	if err != nil || !ok {
		t.Fatalf("hit = %v %v", ok, err)
	}
	if got.BestTrad != "書" || len(got.Candidates) != 1 || got.Candidates[0].Simp != "昼" {
		t.Fatalf("got %+v", got)
	}
}

func TestCachedRecognizerUsesSQLite(t *testing.T) {
	s := setupTestDB(t)
	inner := &labeler.Static{ByHint: map[string]*labeler.Result{"天": {BestTrad: "天", BestSimp: "天", Confidence: 1}}}
	c := labeler.NewCached(inner, s, nil)
	req := labeler.Request{Image: []byte{1, 2, 3}, Hint: "天"}
	for i := 0; i < 3; i++ {
		r, err := c.Recognize(context.Background(), req)
		if err != nil || r.BestTrad != "天" {
			t.Fatalf("recognize: %+v %v", r, err)
		}
	}
	if inner.Calls() != 1 {
		t.Fatalf("inner called %d times, want 1", inner.Calls())
	}
}

func TestTieredFillsLocal(t *testing.T) {
	ctx := context.Background()
	local := labeler.NewMemoryCache()
	shared := setupTestDB(t)
	if err := shared.Put(ctx, "k", &labeler.Result{BestTrad: "人"}); err != nil {
		t.Fatal(err)
	}
	tc := Tiered{Local: local, Shared: shared}
	r, ok, err := tc.Get(ctx, "k")
	if err != nil || !ok || r.BestTrad != "人" {
		t.Fatalf("tiered get: %+v %v %v", r, ok, err)
	}
	if _, ok, _ := local.Get(ctx, "k"); !ok {
		t.Fatal("local cache not filled")
	}
}
