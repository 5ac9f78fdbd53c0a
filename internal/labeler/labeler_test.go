package labeler

import (
	"context"
	"errors"
	"testing"
	"time"
)

type flaky struct {
	failures int
	calls    int
}

func (f *flaky) Recognize(ctx context.Context, req Request) (*Result, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, errors.New("temporary")
	}
	return &Result{BestTrad: "龍", BestSimp: "龙", Confidence: 0.8}, nil
}

func (f *flaky) Version() string { return "flaky/1" }

func TestCachedRetriesThenCaches(t *testing.T) {
	inner := &flaky{failures: 2}
	c := NewCached(inner, nil, nil)
	c.Retry = RetryPolicy{Attempts: 3, InitialDelay: time.Millisecond}

	req := Request{Image: []byte("png-bytes")}
	r, err := c.Recognize(context.Background(), req)
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	if r.BestTrad != "龍" || inner.calls != 3 {
		t.Fatalf("result %+v after %d calls", r, inner.calls)
	}
	if _, err := c.Recognize(context.Background(), req); err != nil {
		t.Fatalf("cached Recognize: %v", err)
	}
	if inner.calls != 3 {
		t.Fatalf("cache miss: %d calls", inner.calls)
	}
}

func TestCachedGivesUp(t *testing.T) {
	inner := &flaky{failures: 10}
	c := NewCached(inner, nil, nil)
	c.Retry = RetryPolicy{Attempts: 2, InitialDelay: time.Millisecond}
	if _, err := c.Recognize(context.Background(), Request{Image: []byte("x")}); err == nil {
		t.Fatalf("expected error")
	}
	if inner.calls != 2 {
		t.Fatalf("calls = %d, want 2", inner.calls)
	}
}

func TestRetryStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := RetryWithBackoff(ctx, RetryPolicy{Attempts: 5, InitialDelay: time.Hour}, func(context.Context) (int, error) {
		return 0, errors.New("never")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
}

func TestKeyDependsOnVersion(t *testing.T) {
	img := []byte("same image")
	if Key(img, "a") == Key(img, "b") {
		t.Fatalf("keys collide across versions")
	}
	if Key(img, "a") != Key(img, "a") {
		t.Fatalf("key not deterministic")
	}
}

func TestStaticLookup(t *testing.T) {
	img := []byte("crop")
	s := &Static{
		ByImage: map[string]*Result{ImageHash(img): {BestTrad: "天"}},
		ByHint:  map[string]*Result{"地": {BestTrad: "地"}},
	}
	r, _ := s.Recognize(context.Background(), Request{Image: img})
	if r.BestTrad != "天" {
		t.Fatalf("by image = %+v", r)
	}
	r, _ = s.Recognize(context.Background(), Request{Image: []byte("other"), Hint: "地"})
	if r.BestTrad != "地" {
		t.Fatalf("by hint = %+v", r)
	}
	if s.Calls() != 2 {
		t.Fatalf("calls = %d", s.Calls())
	}
}

func TestResultAllIncludesBest(t *testing.T) {
	r := &Result{BestTrad: "龍", BestSimp: "龙", Confidence: 0.7, Candidates: []Candidate{{Trad: "襲", Simp: "袭", Score: 0.2}}}
	all := r.All()
	if len(all) != 2 || all[0].Trad != "龍" {
		t.Fatalf("All = %+v", all)
	}
	if (*Result)(nil).All() != nil {
		t.Fatalf("nil result should have no candidates")
	}
}
