// Package tesseract proposes character labels with Tesseract OCR.
package tesseract

import (
	"context"
	"fmt"
	"image"
	"sort"
	"strings"
	"sync"

	"github.com/otiai10/gosseract/v2"
	"gocv.io/x/gocv"

	"stele-slicer/internal/labeler"
)

// DefaultLanguages are the traineddata sets tried together.
var DefaultLanguages = []string{"chi_tra", "chi_sim"}

// Engine is a labeler.Recognizer backed by a single Tesseract client.
// Tesseract clients are not safe for concurrent use; calls are serialized.
type Engine struct {
	mu        sync.Mutex
	client    *gosseract.Client
	languages []string
}

// NewEngine creates an engine for the given languages.
func NewEngine(languages ...string) (*Engine, error) {
	if len(languages) == 0 {
		languages = DefaultLanguages
	}
	client := gosseract.NewClient()
	if err := client.SetLanguage(languages...); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to set OCR language: %w", err)
	}
	// steles are not dictionary text
	_ = client.SetVariable("load_system_dawg", "false")
	_ = client.SetVariable("load_freq_dawg", "false")

	if err := client.SetPageSegMode(gosseract.PSM_SINGLE_CHAR); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to set PSM: %w", err)
	}
	return &Engine{client: client, languages: languages}, nil
}

// Close releases OCR resources.
func (e *Engine) Close() error {
	if e.client != nil {
		return e.client.Close()
	}
	return nil
}

// Version identifies the engine configuration for caching.
func (e *Engine) Version() string {
	return "tesseract/" + gosseract.Version() + "/" + strings.Join(e.languages, "+") + "/psm10"
}

// Recognize runs single-character OCR on a normalized crop.
func (e *Engine) Recognize(ctx context.Context, req labeler.Request) (*labeler.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	buf, err := preprocess(req.Image)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.client.SetImageFromBytes(buf); err != nil {
		return nil, fmt.Errorf("failed to set image: %w", err)
	}
	boxes, err := e.client.GetBoundingBoxes(gosseract.RIL_SYMBOL)
	if err != nil {
		return nil, fmt.Errorf("OCR failed: %w", err)
	}
	return fromSymbols(boxes), nil
}

// fromSymbols turns symbol boxes into candidates, best first.
func fromSymbols(boxes []gosseract.BoundingBox) *labeler.Result {
	seen := map[string]bool{}
	var cands []labeler.Candidate
	for _, b := range boxes {
		w := strings.TrimSpace(b.Word)
		if w == "" || seen[w] {
			continue
		}
		seen[w] = true
		cands = append(cands, labeler.Candidate{Trad: w, Simp: w, Score: b.Confidence / 100})
	}
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].Score > cands[j].Score })

	res := &labeler.Result{Candidates: cands}
	if len(cands) > 0 {
		res.BestTrad, res.BestSimp, res.Confidence = cands[0].Trad, cands[0].Simp, cands[0].Score
	}
	return res
}

// preprocess upscales small crops and binarizes with Otsu, keeping dark
// text on a light ground.
func preprocess(png []byte) ([]byte, error) {
	src, err := gocv.IMDecode(png, gocv.IMReadGrayScale)
	if err != nil {
		return nil, fmt.Errorf("failed to decode crop: %w", err)
	}
	defer src.Close()
	if src.Empty() {
		return nil, fmt.Errorf("empty image")
	}

	scaled := gocv.NewMat()
	defer scaled.Close()
	if minDim := min(src.Rows(), src.Cols()); minDim < 150 {
		scale := 150.0 / float64(minDim)
		gocv.Resize(src, &scaled, image.Point{}, scale, scale, gocv.InterpolationCubic)
	} else {
		src.CopyTo(&scaled)
	}

	binary := gocv.NewMat()
	defer binary.Close()
	gocv.Threshold(scaled, &binary, 0, 255, gocv.ThresholdBinary|gocv.ThresholdOtsu)

	// mostly dark means the polarity flipped somewhere upstream
	if white := gocv.CountNonZero(binary); float64(white) < 0.5*float64(binary.Rows()*binary.Cols()) {
		gocv.BitwiseNot(binary, &binary)
	}

	out, err := gocv.IMEncode(gocv.PNGFileExt, binary)
	if err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	defer out.Close()
	return append([]byte(nil), out.GetBytes()...), nil
}
