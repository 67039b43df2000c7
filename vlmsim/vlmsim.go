// Package vlmsim is a deterministic stand-in for the remote vision
// language model service. It reproduces the real inferencer's decision
// rules: explicit movement and gesture commands in the utterance win,
// otherwise the person's emotion picks an emotion-flavored reply. The
// engine is pure rule evaluation, so tests and local development get
// stable replies without GPUs or network access.
//
// The engine serves over all three transports through NewHandler (HTTP),
// NATSResponder, and MQTTResponder.
package vlmsim

import (
	"context"
	"hash/fnv"
	"log/slog"
	"strings"
	"time"

	"github.com/c360/robobridge/convo"
	"github.com/c360/robobridge/metric"
	"github.com/c360/robobridge/wire"
)

// ModelPath identifies the rule engine in health replies, standing in for
// the real inferencer's model weights path.
const ModelPath = "vlmsim://rules-v1"

// replyConfidence is reported on every reply. The rules are deterministic,
// so the value is fixed at the level the real model reports for a clean
// detection.
const replyConfidence = 0.90

// historyTurns bounds the engine's conversation context, matching the
// real inferencer's context window.
const historyTurns = 10

// pseudoEmotions are the person emotions the pseudo analysis can assign
// to an image. "neutral" falls through to the greeting reply.
var pseudoEmotions = [...]string{"happy", "sad", "angry", "surprise", "neutral"}

// Engine evaluates inference requests against the rule table. Safe for
// concurrent use; the conversation manager carries its own lock and the
// rest of the engine is read-only after New.
type Engine struct {
	convo   *convo.Manager
	emotion string // forced person emotion, "" derives one from the image
	logger  *slog.Logger
	metrics *metric.Metrics
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger for engine decisions.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger.With("component", "vlmsim")
	}
}

// WithEmotion pins the person emotion instead of deriving it from the
// image, so tests can steer the engine into a specific reply branch.
func WithEmotion(emotion string) Option {
	return func(e *Engine) {
		e.emotion = emotion
	}
}

// WithConversation shares an existing conversation manager instead of the
// engine's own.
func WithConversation(m *convo.Manager) Option {
	return func(e *Engine) {
		if m != nil {
			e.convo = m
		}
	}
}

// WithMetricsRegistry enables processing metrics on the given registry.
func WithMetricsRegistry(registry *metric.MetricsRegistry) Option {
	return func(e *Engine) {
		if registry != nil {
			e.metrics = registry.CoreMetrics()
		}
	}
}

// New builds a rule engine with its own conversation context.
func New(opts ...Option) *Engine {
	e := &Engine{
		convo:  convo.New(historyTurns),
		logger: slog.Default().With("component", "vlmsim"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Conversation returns the engine's conversation manager. Callers can
// seed scene or robot state on it before inference.
func (e *Engine) Conversation() *convo.Manager {
	return e.convo
}

// Infer evaluates one request and always produces a reply: rule
// evaluation has no failure modes beyond a cancelled context. The
// exchange is recorded in the conversation context the way the real
// inferencer records turns.
func (e *Engine) Infer(ctx context.Context, req wire.Request) wire.Response {
	if err := ctx.Err(); err != nil {
		return wire.ErrorResponse(req.ID, "inference cancelled")
	}
	start := time.Now()

	e.convo.AddUser(req.Text)

	person := e.emotion
	if person == "" && req.HasImage() {
		person = pseudoEmotion(req.Image)
	}

	reply, directive, robotEmotion := decide(req.Text, person)
	e.convo.AddAssistant(reply)

	resp := wire.Response{
		ID:         req.ID,
		Status:     wire.StatusSuccess,
		Text:       reply,
		Action:     &directive,
		Emotion:    robotEmotion,
		Confidence: replyConfidence,
	}
	if person != "" {
		resp.Metadata = map[string]string{"person_emotion": person}
	}

	if e.metrics != nil {
		e.metrics.RecordMessageProcessed("vlmsim", "inference", "success")
		e.metrics.RecordProcessingDuration("vlmsim", "infer", time.Since(start))
	}
	e.logger.Debug("inference decided",
		"id", req.ID,
		"action", directive.Name,
		"kind", directive.Kind,
		"emotion", robotEmotion)

	return resp
}

// decide maps the person's emotion and the utterance to a reply. An
// emotion-flavored default is computed first; an explicit command in the
// text then overrides the reply and action while keeping the
// emotion-derived tone.
func decide(text, personEmotion string) (reply string, d wire.Directive, robotEmotion string) {
	emotion := strings.ToLower(personEmotion)

	switch {
	case strings.Contains(emotion, "happy"):
		reply = "You look happy today."
		d = wire.Directive{Kind: wire.KindGesture, Name: "wave"}
		robotEmotion = "happy"
	case strings.Contains(emotion, "sad"):
		reply = "You seem a bit sad. I'm here if you need support."
		d = wire.Directive{Kind: wire.KindGesture, Name: "nod"}
		robotEmotion = "concerned"
	case strings.Contains(emotion, "angry"), strings.Contains(emotion, "mad"):
		reply = "I notice some signs of anger. Please take your time."
		d = wire.Directive{Kind: wire.KindGesture, Name: "bow"}
		robotEmotion = "apologetic"
	case strings.Contains(emotion, "surprise"):
		reply = "You appear surprised."
		d = wire.Directive{Kind: wire.KindGesture, Name: "thumbs_up"}
		robotEmotion = "neutral"
	default:
		reply = "Hello. It's good to see you."
		d = wire.Directive{Kind: wire.KindGesture, Name: "wave"}
		robotEmotion = "friendly"
	}

	// Command matches are ordered; "back" before "left"/"right" keeps
	// phrases like "step back left" moving backward.
	u := strings.ToLower(text)
	switch {
	case strings.Contains(u, "forward"):
		return "Moving forward.", wire.Directive{Kind: wire.KindMovement, Name: "forward"}, robotEmotion
	case strings.Contains(u, "back"):
		return "Moving backward.", wire.Directive{Kind: wire.KindMovement, Name: "backward"}, robotEmotion
	case strings.Contains(u, "left"):
		return "Turning left.", wire.Directive{Kind: wire.KindMovement, Name: "turn_left"}, robotEmotion
	case strings.Contains(u, "right"):
		return "Turning right.", wire.Directive{Kind: wire.KindMovement, Name: "turn_right"}, robotEmotion
	case strings.Contains(u, "stop"), strings.Contains(u, "halt"):
		return "Stopping now.", wire.Directive{Kind: wire.KindSystem, Name: "stop"}, robotEmotion
	case strings.Contains(u, "wave"):
		return "Waving now.", wire.Directive{Kind: wire.KindGesture, Name: "wave"}, robotEmotion
	case strings.Contains(u, "nod"):
		return "Nodding.", wire.Directive{Kind: wire.KindGesture, Name: "nod"}, robotEmotion
	}

	return reply, d, robotEmotion
}

// pseudoEmotion stands in for visual emotion analysis: a hash of the
// image bytes picks the emotion, so the same frame always reads the same
// way.
func pseudoEmotion(image []byte) string {
	h := fnv.New32a()
	_, _ = h.Write(image)
	return pseudoEmotions[h.Sum32()%uint32(len(pseudoEmotions))]
}
