// Package qa scores output crops, derives review flags and ranks the review
// queue.
package qa

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Flag is one review finding. The set is closed: unknown names fail to decode.
type Flag string

const (
	FlagClipped    Flag = "clipped"
	FlagOffCenter  Flag = "off_center"
	FlagMultiGlyph Flag = "multi_glyph"
	FlagMissing    Flag = "missing"
	FlagRegression Flag = "regression_case"
	FlagUnverified Flag = "unverified"
	FlagOverride   Flag = "override"
)

// AllFlags lists every flag in canonical order.
var AllFlags = []Flag{
	FlagMissing,
	FlagClipped,
	FlagMultiGlyph,
	FlagOffCenter,
	FlagRegression,
	FlagUnverified,
	FlagOverride,
}

var severity = map[Flag]float64{
	FlagMissing:    5,
	FlagClipped:    4,
	FlagMultiGlyph: 3,
	FlagRegression: 3,
	FlagOffCenter:  2,
	FlagUnverified: 1,
	FlagOverride:   0,
}

// Severity is the review-queue weight of a flag.
func (f Flag) Severity() float64 {
	return severity[f]
}

// Quality reports whether the flag describes the crop itself, as opposed to
// its labelling or provenance.
func (f Flag) Quality() bool {
	switch f {
	case FlagClipped, FlagOffCenter, FlagMultiGlyph, FlagMissing:
		return true
	}
	return false
}

// ParseFlag validates a flag name.
func ParseFlag(s string) (Flag, error) {
	for _, f := range AllFlags {
		if string(f) == s {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown QA flag %q", s)
}

func (f *Flag) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	v, err := ParseFlag(s)
	if err != nil {
		return err
	}
	*f = v
	return nil
}

// Flags is a set of flags kept in canonical order.
type Flags []Flag

// Has reports whether f is in the set.
func (fs Flags) Has(f Flag) bool {
	for _, x := range fs {
		if x == f {
			return true
		}
	}
	return false
}

// With returns the set with f added.
func (fs Flags) With(f Flag) Flags {
	if fs.Has(f) {
		return fs
	}
	out := append(append(Flags(nil), fs...), f)
	out.sort()
	return out
}

func (fs Flags) sort() {
	rank := make(map[Flag]int, len(AllFlags))
	for i, f := range AllFlags {
		rank[f] = i
	}
	sort.SliceStable(fs, func(i, j int) bool { return rank[fs[i]] < rank[fs[j]] })
}

// Severity sums the flag severities.
func (fs Flags) Severity() float64 {
	var s float64
	for _, f := range fs {
		s += f.Severity()
	}
	return s
}

// Quality reports whether any flag is a crop-quality flag.
func (fs Flags) Quality() bool {
	for _, f := range fs {
		if f.Quality() {
			return true
		}
	}
	return false
}

// MarshalJSON writes an empty set as [] rather than null.
func (fs Flags) MarshalJSON() ([]byte, error) {
	if fs == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]Flag(fs))
}
