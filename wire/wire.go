// Package wire defines the request/response data model and the JSON
// envelopes that cross the transport boundary between the robot and the
// remote inferencer.
package wire

import (
	"time"

	"github.com/google/uuid"
)

// Status is the outcome of a remote inference request.
type Status string

const (
	// StatusSuccess marks a response whose fields are safe to dispatch.
	StatusSuccess Status = "success"
	// StatusError marks a response carrying an error message instead of
	// speech/action content.
	StatusError Status = "error"
)

// Kind categorizes an action directive. The four well-known kinds map to
// the robot's built-in actuator groups; any other non-empty string routes
// through handlers registered for that custom kind.
type Kind string

const (
	KindGesture  Kind = "gesture"
	KindMovement Kind = "movement"
	KindSystem   Kind = "system"
	KindCustom   Kind = "custom"
)

// Builtin reports whether k is one of the well-known kinds.
func (k Kind) Builtin() bool {
	switch k {
	case KindGesture, KindMovement, KindSystem, KindCustom:
		return true
	}
	return false
}

// Directive is one action the robot should perform. Immutable once
// produced from a response.
type Directive struct {
	Kind   Kind           `json:"type"`
	Name   string         `json:"name"`
	Params map[string]any `json:"params,omitempty"`
}

// Request is one outbound inference request. Once sent, Text and Image
// are immutable; ID is unique among all in-flight requests.
type Request struct {
	ID        string
	Text      string
	Image     []byte // JPEG blob, nil for text-only requests
	CreatedAt time.Time
}

// NewRequest builds a request with a fresh UUID and creation timestamp.
// A nil image produces a text-only request.
func NewRequest(text string, image []byte) Request {
	return Request{
		ID:        uuid.NewString(),
		Text:      text,
		Image:     image,
		CreatedAt: time.Now(),
	}
}

// HasImage reports whether the request carries an image blob.
func (r Request) HasImage() bool {
	return len(r.Image) > 0
}

// Response is one decoded inference reply.
type Response struct {
	// ID matches the originating request on async transports. Sync
	// transports may leave it empty; the call frame is the correlation.
	ID         string
	Status     Status
	Text       string
	Action     *Directive  // primary action, nil when none
	Actions    []Directive // additional sequence steps, in order
	Emotion    string
	Confidence float64
	Err        string // error message when Status == StatusError
	Metadata   map[string]string
}

// IsSuccess reports whether the response took the success path.
func (r Response) IsSuccess() bool {
	return r.Status == StatusSuccess
}

// Directives returns the primary action followed by any additional
// sequence steps, preserving order. Nil when the response carries no
// actions at all.
func (r Response) Directives() []Directive {
	if r.Action == nil && len(r.Actions) == 0 {
		return nil
	}
	out := make([]Directive, 0, 1+len(r.Actions))
	if r.Action != nil {
		out = append(out, *r.Action)
	}
	out = append(out, r.Actions...)
	return out
}

// ErrorResponse builds an error-status response carrying msg.
func ErrorResponse(id, msg string) Response {
	return Response{
		ID:     id,
		Status: StatusError,
		Err:    msg,
	}
}
