package asr

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"
)

// Drop reasons reported by Gate.Admit. They double as status labels on
// the intake metrics.
const (
	DropEmpty         = "empty"
	DropLowConfidence = "low_confidence"
	DropGarbled       = "garbled"
	DropThrottled     = "throttled"
)

// Gate decides which ASR utterances reach the pipeline. It drops empty
// text, results below the recognizer's own confidence threshold, text
// that fails the charset check, and utterances arriving faster than the
// throttle interval.
type Gate struct {
	minConfidence float64
	throttle      time.Duration
	charset       *regexp.Regexp // nil accepts any text

	now func() time.Time

	mu       sync.Mutex
	lastTalk time.Time
}

// NewGate compiles the charset pattern and returns a ready gate. An
// empty pattern disables the charset check.
func NewGate(minConfidence float64, throttle time.Duration, charset string) (*Gate, error) {
	g := &Gate{
		minConfidence: minConfidence,
		throttle:      throttle,
		now:           time.Now,
	}
	if charset != "" {
		re, err := regexp.Compile(charset)
		if err != nil {
			return nil, fmt.Errorf("charset pattern: %w", err)
		}
		g.charset = re
	}
	return g, nil
}

// Admit reports whether the utterance may enter the pipeline, and the
// drop reason when it may not. Garbled text still advances the throttle
// clock: a burst of ASR garbage keeps the robot quiet rather than
// letting the next fragment straight through.
func (g *Gate) Admit(u Utterance) (bool, string) {
	text := strings.TrimSpace(u.Text)
	if text == "" {
		return false, DropEmpty
	}
	if u.Confidence < g.minConfidence {
		return false, DropLowConfidence
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if g.charset != nil && !g.charset.MatchString(text) {
		g.lastTalk = now
		return false, DropGarbled
	}
	if now.Sub(g.lastTalk) < g.throttle {
		return false, DropThrottled
	}
	g.lastTalk = now
	return true, ""
}
