package claude

import (
	"context"
	"errors"
	"testing"

	"stele-slicer/internal/labeler"
)

func TestParseFencedReply(t *testing.T) {
	reply := "```json\n{\"best_trad\":\"龍\",\"best_simp\":\"龙\",\"confidence\":1.4," +
		"\"candidates\":[{\"trad\":\"龍\",\"simp\":\"龙\",\"score\":0.9},{\"trad\":\"襲\",\"simp\":\"袭\",\"score\":-1}]}\n```"
	r, err := Parse(reply)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if r.BestTrad != "龍" || r.BestSimp != "龙" {
		t.Fatalf("best = %s/%s", r.BestTrad, r.BestSimp)
	}
	if r.Confidence != 1 || r.Candidates[1].Score != 0 {
		t.Fatalf("scores not clamped: %+v", r)
	}
}

func TestParseRejectsProse(t *testing.T) {
	if _, err := Parse("I cannot read this character."); err == nil {
		t.Fatalf("expected error")
	}
}

func TestMissingKeyIsUnavailable(t *testing.T) {
	l := New("", "")
	if _, err := l.Recognize(context.Background(), labeler.Request{Image: []byte{1}}); !errors.Is(err, labeler.ErrUnavailable) {
		t.Fatalf("err = %v", err)
	}
	if l.Version() == New("", "other-model").Version() {
		t.Fatalf("version must depend on the model")
	}
}
