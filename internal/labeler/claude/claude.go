// Package claude proposes character labels with an Anthropic vision model.
package claude

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"stele-slicer/internal/labeler"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "claude-sonnet-4-5"

const prompt = `This image is one character cropped from a Chinese stele rubbing.
Identify the character. Reply with JSON only, no prose:
{"best_trad": "...", "best_simp": "...", "confidence": 0.0,
 "candidates": [{"trad": "...", "simp": "...", "score": 0.0}], "notes": "..."}
Give up to five candidates, scores in [0,1], best first.`

// Labeler is a labeler.Recognizer backed by the Messages API.
type Labeler struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	apiKey    string
}

// New creates a Labeler. An empty apiKey yields labeler.ErrUnavailable on
// every call.
func New(apiKey, model string, opts ...option.RequestOption) *Labeler {
	if model == "" {
		model = DefaultModel
	}
	options := append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &Labeler{
		client:    anthropic.NewClient(options...),
		model:     model,
		maxTokens: 512,
		apiKey:    apiKey,
	}
}

// Version ties cached answers to the model and prompt.
func (l *Labeler) Version() string {
	sum := sha256.Sum256([]byte(prompt))
	return "anthropic/" + l.model + "/" + hex.EncodeToString(sum[:6])
}

// Recognize sends the crop and parses the JSON reply.
func (l *Labeler) Recognize(ctx context.Context, req labeler.Request) (*labeler.Result, error) {
	if l.apiKey == "" {
		return nil, labeler.ErrUnavailable
	}
	blocks := []anthropic.ContentBlockParamUnion{
		anthropic.NewImageBlockBase64("image/png", base64.StdEncoding.EncodeToString(req.Image)),
		anthropic.NewTextBlock(prompt),
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(l.model),
		MaxTokens: l.maxTokens,
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(blocks...)},
	}

	msg, err := l.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic request failed: %w", err)
	}
	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return Parse(text.String())
}

// Parse extracts the result object from a model reply, tolerating code
// fences or prose around it.
func Parse(reply string) (*labeler.Result, error) {
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start < 0 || end < start {
		return nil, errors.New("no JSON object in reply")
	}
	var r labeler.Result
	if err := json.Unmarshal([]byte(reply[start:end+1]), &r); err != nil {
		return nil, fmt.Errorf("failed to parse reply: %w", err)
	}
	r.Confidence = clamp01(r.Confidence)
	for i := range r.Candidates {
		r.Candidates[i].Score = clamp01(r.Candidates[i].Score)
	}
	return &r, nil
}

func clamp01(v float64) float64 {
	return min(1, max(0, v))
}
