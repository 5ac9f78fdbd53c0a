// Package labeler defines the optional character-recognition side channel.
//
// A Recognizer proposes labels for one character crop. The pipeline never
// depends on one being available: a failed or missing recognizer yields no
// candidates and the aligner falls back to unverified positional labels.
package labeler

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// ErrUnavailable is returned by recognizers that cannot run at all.
var ErrUnavailable = errors.New("labeler unavailable")

// Request is one character crop to label.
type Request struct {
	Image []byte // PNG bytes of the normalized crop
	Hint  string // expected transcript character, if known
}

// Candidate is one proposed reading.
type Candidate struct {
	Trad  string  `json:"trad"`
	Simp  string  `json:"simp"`
	Score float64 `json:"score"`
}

// Result is the collaborator response contract.
type Result struct {
	BestTrad   string      `json:"best_trad"`
	BestSimp   string      `json:"best_simp"`
	Confidence float64     `json:"confidence"`
	Candidates []Candidate `json:"candidates"`
	Notes      string      `json:"notes,omitempty"`
}

// All returns the candidate list with the best reading included.
func (r *Result) All() []Candidate {
	if r == nil {
		return nil
	}
	out := append([]Candidate(nil), r.Candidates...)
	if r.BestTrad == "" && r.BestSimp == "" {
		return out
	}
	for _, c := range out {
		if c.Trad == r.BestTrad && c.Simp == r.BestSimp {
			return out
		}
	}
	return append([]Candidate{{Trad: r.BestTrad, Simp: r.BestSimp, Score: r.Confidence}}, out...)
}

// Recognizer labels single character crops.
type Recognizer interface {
	Recognize(ctx context.Context, req Request) (*Result, error)
	// Version identifies the model and prompt; it is part of the cache key.
	Version() string
}

// Key is the cache key for an image under a recognizer version.
func Key(image []byte, version string) string {
	img := sha256.Sum256(image)
	ver := sha256.Sum256([]byte(version))
	return hex.EncodeToString(img[:]) + ":" + hex.EncodeToString(ver[:8])
}

// Static is a deterministic in-memory recognizer for tests and offline runs.
// Results are looked up by the sha256 of the image, then by hint.
type Static struct {
	ByImage map[string]*Result
	ByHint  map[string]*Result
	Err     error
	ID      string

	calls atomic.Int64
}

// ImageHash is the lookup key Static uses for ByImage.
func ImageHash(image []byte) string {
	sum := sha256.Sum256(image)
	return hex.EncodeToString(sum[:])
}

func (s *Static) Recognize(ctx context.Context, req Request) (*Result, error) {
	s.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.Err != nil {
		return nil, s.Err
	}
	if r, ok := s.ByImage[ImageHash(req.Image)]; ok {
		return r, nil
	}
	if r, ok := s.ByHint[req.Hint]; ok {
		return r, nil
	}
	return &Result{}, nil
}

func (s *Static) Version() string {
	if s.ID == "" {
		return "static"
	}
	return s.ID
}

// Calls returns how many times Recognize ran.
func (s *Static) Calls() int64 {
	return s.calls.Load()
}

// Cache stores recognizer results by Key.
type Cache interface {
	Get(ctx context.Context, key string) (*Result, bool, error)
	Put(ctx context.Context, key string, r *Result) error
}

// MemoryCache is a process-local Cache.
type MemoryCache struct {
	mu sync.RWMutex
	m  map[string]*Result
}

// NewMemoryCache returns an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{m: make(map[string]*Result)}
}

func (c *MemoryCache) Get(_ context.Context, key string) (*Result, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.m[key]
	return r, ok, nil
}

func (c *MemoryCache) Put(_ context.Context, key string, r *Result) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[key] = r
	return nil
}

// Disabled is the recognizer used when no channel is configured.
type Disabled struct{}

func (Disabled) Recognize(context.Context, Request) (*Result, error) {
	return nil, ErrUnavailable
}

func (Disabled) Version() string { return "disabled" }

// IsDisabled reports whether r is the Disabled recognizer or nil.
func IsDisabled(r Recognizer) bool {
	if r == nil {
		return true
	}
	_, ok := r.(Disabled)
	return ok
}

// Describe formats a result for debug logs.
func Describe(r *Result) string {
	if r == nil {
		return "<none>"
	}
	return fmt.Sprintf("%s/%s (%.2f, %d candidates)", r.BestTrad, r.BestSimp, r.Confidence, len(r.Candidates))
}
