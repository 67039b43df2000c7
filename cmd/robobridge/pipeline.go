package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/c360/robobridge/action"
	"github.com/c360/robobridge/bridge"
	"github.com/c360/robobridge/codec"
	"github.com/c360/robobridge/component"
	"github.com/c360/robobridge/dispatch"
	"github.com/c360/robobridge/errors"
	"github.com/c360/robobridge/health"
	"github.com/c360/robobridge/input/asr"
	"github.com/c360/robobridge/metric"
	"github.com/c360/robobridge/natsclient"
	"github.com/c360/robobridge/wire"
)

// speech is the payload published for the robot's TTS engine.
type speech struct {
	Text    string `json:"text"`
	Emotion string `json:"emotion,omitempty"`
}

// natsSpeaker publishes reply text on the speak subject. The robot's
// audio stack subscribes there and owns the synthesis.
type natsSpeaker struct {
	client  *natsclient.Client
	subject string
	logger  *slog.Logger
}

func newNATSSpeaker(client *natsclient.Client, subject string, logger *slog.Logger) *natsSpeaker {
	return &natsSpeaker{
		client:  client,
		subject: subject,
		logger:  logger.With("component", "speaker"),
	}
}

// Say publishes one utterance for synthesis.
func (s *natsSpeaker) Say(ctx context.Context, text, voiceHint string) error {
	payload, err := json.Marshal(speech{Text: text, Emotion: voiceHint})
	if err != nil {
		return fmt.Errorf("%w: %v", errors.ErrSpeechFailed, err)
	}
	if err := s.client.Publish(ctx, s.subject, payload); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrSpeechFailed, err)
	}

	s.logger.Debug("reply published for synthesis",
		"subject", s.subject, "text_len", len(text), "emotion", voiceHint)
	return nil
}

// registerActuators wires every directive kind to a NATS publication on
// actionSubject.<kind>. The robot's motion stack subscribes per kind
// and owns the hardware; the daemon never blocks on a motor.
func registerActuators(seq *action.Sequencer, client *natsclient.Client, actionSubject string) error {
	kinds := []wire.Kind{wire.KindGesture, wire.KindMovement, wire.KindSystem, wire.KindCustom}
	for _, kind := range kinds {
		kind := kind
		subject := fmt.Sprintf("%s.%s", actionSubject, kind)
		actuator := action.ActuatorFunc(func(ctx context.Context, name string, params map[string]any) error {
			payload, err := json.Marshal(wire.Directive{Kind: kind, Name: name, Params: params})
			if err != nil {
				return fmt.Errorf("encode directive: %w", err)
			}
			return client.Publish(ctx, subject, payload)
		})
		if err := seq.RegisterActuator(kind, actuator); err != nil {
			return fmt.Errorf("register %s actuator: %w", kind, err)
		}
	}
	return nil
}

// buildDispatcher routes replies: speech to the speaker, directives to
// the sequencer, error replies to the log.
func buildDispatcher(speaker bridge.Speaker, seq *action.Sequencer, registry *metric.MetricsRegistry, logger *slog.Logger) *dispatch.Dispatcher {
	d := dispatch.New(
		dispatch.WithLogger(logger),
		dispatch.WithMetricsRegistry(registry),
		dispatch.WithSequencer(seq),
	)

	d.OnSpeech(func(ctx context.Context, text string, resp wire.Response) error {
		return speaker.Say(ctx, text, resp.Emotion)
	})
	d.OnError(func(_ context.Context, resp wire.Response) error {
		logger.Warn("inferencer returned error reply", "id", resp.ID, "error", resp.Err)
		return nil
	})
	d.OnMetadata(func(_ context.Context, metadata map[string]string, resp wire.Response) error {
		logger.Debug("reply metadata", "id", resp.ID, "metadata", metadata)
		return nil
	})

	return d
}

// newPipeline returns the per-utterance handler: optional frame
// capture, one ask, dispatch of whatever came back. A failed capture
// degrades the ask to text-only rather than losing the utterance.
func newPipeline(br *bridge.Bridge, dispatcher *dispatch.Dispatcher, cam bridge.Camera, convLog *component.Logger, logger *slog.Logger) asr.Handler {
	logger = logger.With("component", "pipeline")
	return func(ctx context.Context, u asr.Utterance) error {
		var frame *codec.Frame
		if cam != nil {
			f, err := cam.Capture(ctx)
			if err != nil {
				logger.Debug("capture failed, asking text-only", "error", err)
			} else {
				frame = &f
			}
		}

		resp, err := br.Ask(ctx, u.Text, frame)
		if err != nil {
			convLog.ErrorContext(ctx, fmt.Sprintf("no reply for %q", u.Text), err)
			return err
		}

		report := dispatcher.Dispatch(ctx, resp)
		if !report.OK() {
			logger.Warn("dispatch finished with failures",
				"id", resp.ID,
				"handler_errors", len(report.HandlerErrs),
				"actions", len(report.Actions))
		}

		convLog.InfoContext(ctx, fmt.Sprintf("heard %q, replied %q", u.Text, resp.Text))
		return nil
	}
}

// superviseHealth feeds the monitor from component health and the NATS
// connection until ctx ends. The ops endpoint aggregates what lands
// here.
func superviseHealth(ctx context.Context, monitor *health.Monitor, comps []component.LifecycleComponent, client *natsclient.Client, interval time.Duration) {
	update := func() {
		for _, c := range comps {
			meta := c.Meta()
			monitor.Update(meta.Name, health.FromComponentHealth(meta.Name, c.Health()))
		}
		if client.IsHealthy() {
			monitor.UpdateHealthy("nats", "connected")
		} else {
			monitor.UpdateUnhealthy("nats", "connection down")
		}
	}

	update()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			update()
		}
	}
}
