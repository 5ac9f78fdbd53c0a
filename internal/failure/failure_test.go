package failure

import (
	"errors"
	"fmt"
	"os"
	"testing"
)

func TestFatalCodes(t *testing.T) {
	fatal := map[Code]bool{
		LayoutDetectionFailure:   false,
		SplitConstraintViolation: false,
		CropRefinementExhausted:  false,
		AlignmentConflict:        false,
		OverrideApplyError:       false,
		PageIO:                   true,
		MalformedInput:           true,
	}
	for code, want := range fatal {
		if got := code.Fatal(); got != want {
			t.Fatalf("%s.Fatal() = %v, want %v", code, got, want)
		}
	}
}

func TestErrorWrapping(t *testing.T) {
	err := fmt.Errorf("page 3: %w", NewPageIOError("p3.png", os.ErrNotExist))
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected wrapped ErrNotExist")
	}
	if !IsCode(err, PageIO) {
		t.Fatalf("expected PAGE_IO code")
	}
	if IsCode(err, MalformedInput) {
		t.Fatalf("unexpected MALFORMED_INPUT match")
	}
}

func TestConflictAt(t *testing.T) {
	c := NewConflict(AlignmentConflict, "p1.png", "anchor dropped")
	if c.Lane != -1 || c.Position != -1 {
		t.Fatalf("new conflict should be unplaced: %+v", c)
	}
	placed := c.At(2, 5)
	if placed.Lane != 2 || placed.Position != 5 || c.Lane != -1 {
		t.Fatalf("At should return a placed copy: %+v / %+v", placed, c)
	}
}
