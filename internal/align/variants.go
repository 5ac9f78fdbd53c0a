package align

import (
	"bufio"
	_ "embed"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/text/unicode/norm"
)

//go:embed variants.tsv
var builtinVariants string

// Variants decides script-variant equivalence between characters:
// compatibility ideographs fold through NFKC, and traditional/simplified
// pairs fold to the simplified form. It is safe for concurrent use.
type Variants struct {
	mu     sync.RWMutex
	toSimp map[string]string
	toTrad map[string]string
}

// NewVariants returns a table loaded with the built-in pairs.
func NewVariants() *Variants {
	v := &Variants{toSimp: map[string]string{}, toTrad: map[string]string{}}
	// the embedded table is well formed
	_ = v.Load(strings.NewReader(builtinVariants))
	return v
}

// LoadFile adds pairs from a user TSV file (trad<TAB>simp per line).
func (v *Variants) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open variants file: %w", err)
	}
	defer f.Close()
	return v.Load(f)
}

// Load reads trad<TAB>simp lines. Blank lines and # comments are skipped.
func (v *Variants) Load(r io.Reader) error {
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.Fields(text)
		if len(fields) != 2 {
			return fmt.Errorf("variants line %d: want 2 fields, got %d", line, len(fields))
		}
		v.Add(fields[0], fields[1])
	}
	return sc.Err()
}

// Add records a traditional/simplified pair. Identical pairs are ignored.
func (v *Variants) Add(trad, simp string) {
	trad, simp = fold(trad), fold(simp)
	if trad == "" || simp == "" || trad == simp {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.toSimp[trad]; !ok {
		v.toSimp[trad] = simp
	}
	if _, ok := v.toTrad[simp]; !ok {
		v.toTrad[simp] = trad
	}
}

func fold(s string) string {
	return norm.NFKC.String(strings.TrimSpace(s))
}

// Simplified returns the simplified form of s, or s itself.
func (v *Variants) Simplified(s string) string {
	s = fold(s)
	v.mu.RLock()
	defer v.mu.RUnlock()
	if t, ok := v.toSimp[s]; ok {
		return t
	}
	return s
}

// Traditional returns the traditional form of s, or s itself.
func (v *Variants) Traditional(s string) string {
	s = fold(s)
	v.mu.RLock()
	defer v.mu.RUnlock()
	if _, ok := v.toSimp[s]; ok {
		return s
	}
	if t, ok := v.toTrad[s]; ok {
		return t
	}
	return s
}

// Equivalent reports whether a and b are the same character up to variants.
func (v *Variants) Equivalent(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return v.Simplified(a) == v.Simplified(b)
}
