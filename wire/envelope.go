package wire

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/c360/robobridge/errors"
)

// requestEnvelope is the flat JSON form of a Request. The image crosses
// the wire as base64 text with its decoded byte length declared in
// image_size; text-only envelopes omit both fields.
type requestEnvelope struct {
	Text      string  `json:"text"`
	ImageData string  `json:"image_data,omitempty"`
	ImageSize int     `json:"image_size,omitempty"`
	ID        string  `json:"id"`
	Timestamp float64 `json:"timestamp"`
}

// responseEnvelope is the flat JSON form of a Response.
type responseEnvelope struct {
	Status     string            `json:"status"`
	Text       string            `json:"text,omitempty"`
	Action     string            `json:"action,omitempty"`
	ActionType string            `json:"action_type,omitempty"`
	Actions    []Directive       `json:"actions,omitempty"`
	Emotion    string            `json:"emotion,omitempty"`
	Confidence float64           `json:"confidence,omitempty"`
	ID         string            `json:"id,omitempty"`
	Message    string            `json:"message,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// EncodeRequest serializes a request into its wire envelope.
func EncodeRequest(req Request) ([]byte, error) {
	if req.ID == "" {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: request has no id", errors.ErrProtocol),
			"Envelope", "EncodeRequest", "validate request")
	}

	env := requestEnvelope{
		Text:      req.Text,
		ID:        req.ID,
		Timestamp: float64(req.CreatedAt.UnixMicro()) / 1e6,
	}
	if req.HasImage() {
		env.ImageData = base64.StdEncoding.EncodeToString(req.Image)
		env.ImageSize = len(req.Image)
	}

	data, err := json.Marshal(env)
	if err != nil {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrProtocol, err),
			"Envelope", "EncodeRequest", "marshal envelope")
	}
	return data, nil
}

// DecodeRequest parses a wire envelope back into a Request. Envelopes
// whose declared image size does not match the decoded byte length are
// rejected.
func DecodeRequest(data []byte) (Request, error) {
	var env requestEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Request{}, errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrProtocol, err),
			"Envelope", "DecodeRequest", "unmarshal envelope")
	}

	req := Request{
		ID:        env.ID,
		Text:      env.Text,
		CreatedAt: time.UnixMicro(int64(env.Timestamp * 1e6)),
	}

	if env.ImageData != "" {
		blob, err := base64.StdEncoding.DecodeString(env.ImageData)
		if err != nil {
			return Request{}, errors.WrapInvalid(fmt.Errorf("%w: image_data is not valid base64: %v",
				errors.ErrProtocol, err), "Envelope", "DecodeRequest", "decode image")
		}
		if env.ImageSize != len(blob) {
			return Request{}, errors.WrapInvalid(fmt.Errorf("%w: declared image_size %d, decoded %d bytes",
				errors.ErrProtocol, env.ImageSize, len(blob)), "Envelope", "DecodeRequest", "verify image size")
		}
		req.Image = blob
	} else if env.ImageSize != 0 {
		return Request{}, errors.WrapInvalid(fmt.Errorf("%w: declared image_size %d with no image_data",
			errors.ErrProtocol, env.ImageSize), "Envelope", "DecodeRequest", "verify image size")
	}

	return req, nil
}

// EncodeResponse serializes a response into its wire envelope.
func EncodeResponse(resp Response) ([]byte, error) {
	if resp.Status != StatusSuccess && resp.Status != StatusError {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: status %q", errors.ErrProtocol, resp.Status),
			"Envelope", "EncodeResponse", "validate status")
	}

	env := responseEnvelope{
		Status:     string(resp.Status),
		Text:       resp.Text,
		Actions:    resp.Actions,
		Emotion:    resp.Emotion,
		Confidence: resp.Confidence,
		ID:         resp.ID,
		Message:    resp.Err,
		Metadata:   resp.Metadata,
	}
	if resp.Action != nil {
		env.Action = resp.Action.Name
		env.ActionType = string(resp.Action.Kind)
	}

	data, err := json.Marshal(env)
	if err != nil {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrProtocol, err),
			"Envelope", "EncodeResponse", "marshal envelope")
	}
	return data, nil
}

// DecodeResponse parses a wire envelope back into a Response. The primary
// action's kind defaults to gesture when action_type is absent, matching
// the remote inferencer's convention.
func DecodeResponse(data []byte) (Response, error) {
	var env responseEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Response{}, errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrProtocol, err),
			"Envelope", "DecodeResponse", "unmarshal envelope")
	}

	status := Status(env.Status)
	if status != StatusSuccess && status != StatusError {
		return Response{}, errors.WrapInvalid(fmt.Errorf("%w: status %q", errors.ErrProtocol, env.Status),
			"Envelope", "DecodeResponse", "validate status")
	}

	resp := Response{
		ID:         env.ID,
		Status:     status,
		Text:       env.Text,
		Actions:    env.Actions,
		Emotion:    env.Emotion,
		Confidence: env.Confidence,
		Err:        env.Message,
		Metadata:   env.Metadata,
	}

	if env.Action != "" {
		kind := Kind(env.ActionType)
		if kind == "" {
			kind = KindGesture
		}
		resp.Action = &Directive{Kind: kind, Name: env.Action}
	}

	return resp, nil
}
