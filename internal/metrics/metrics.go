// Package metrics estimates page count, reading time and difficulty for a
// book. Estimates are decorative; callers fall back to a local heuristic
// when none is available.
package metrics

import (
	"context"
	"math"
	"strings"

	"github.com/pkg/errors"
	"github.com/segmentio/encoding/json"
)

// PDFDifficulty labels metrics synthesized from a PDF page count.
const PDFDifficulty = "PDF Original"

// Metrics is an estimate for one loaded book.
type Metrics struct {
	EstimatedPages     int    `json:"estimatedPages"`
	ReadingTimeMinutes int    `json:"readingTimeMinutes"`
	Difficulty         string `json:"difficulty"`
}

// Estimator produces metrics for text. A nil result with a nil error means
// the service had no answer.
type Estimator interface {
	Estimate(ctx context.Context, text string, length int) (*Metrics, error)
}

// Nop never answers. It is used when the service is disabled.
type Nop struct{}

func (Nop) Estimate(context.Context, string, int) (*Metrics, error) {
	return nil, nil
}

// ForPDF synthesizes metrics from a page count without calling any service.
func ForPDF(pageCount int) Metrics {
	return Metrics{
		EstimatedPages:     pageCount,
		ReadingTimeMinutes: int(math.Ceil(float64(pageCount) * 1.5)),
		Difficulty:         PDFDifficulty,
	}
}

// Parse reads a metrics object from a model reply. Replies wrapped in a
// markdown code fence are accepted. An empty or null reply is not an error.
func Parse(raw string) (*Metrics, error) {
	raw = stripFence(strings.TrimSpace(raw))
	if raw == "" || raw == "null" {
		return nil, nil
	}

	var reply struct {
		EstimatedPages     float64 `json:"estimatedPages"`
		ReadingTimeMinutes float64 `json:"readingTimeMinutes"`
		Difficulty         string  `json:"difficulty"`
	}
	if err := json.Unmarshal([]byte(raw), &reply); err != nil {
		return nil, errors.Wrap(err, "malformed metrics reply")
	}
	if reply.EstimatedPages <= 0 || reply.ReadingTimeMinutes <= 0 {
		return nil, nil
	}
	return &Metrics{
		EstimatedPages:     int(math.Round(reply.EstimatedPages)),
		ReadingTimeMinutes: int(math.Ceil(reply.ReadingTimeMinutes)),
		Difficulty:         strings.TrimSpace(reply.Difficulty),
	}, nil
}

func stripFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
