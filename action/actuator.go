package action

import (
	"context"
	"log/slog"

	"github.com/c360/robobridge/wire"
)

// Actuator performs named actions for one directive kind against robot
// hardware or a stand-in.
type Actuator interface {
	Perform(ctx context.Context, name string, params map[string]any) error
}

// ActuatorFunc adapts a plain function to the Actuator interface.
type ActuatorFunc func(ctx context.Context, name string, params map[string]any) error

// Perform calls f.
func (f ActuatorFunc) Perform(ctx context.Context, name string, params map[string]any) error {
	return f(ctx, name, params)
}

// LoggingActuator records performs without driving hardware. It is the
// default wiring for kinds whose hardware integration is not plugged in,
// and stands in for real actuators in tests and demos.
type LoggingActuator struct {
	kind   wire.Kind
	logger *slog.Logger
}

// NewLoggingActuator creates a log-only actuator for kind.
func NewLoggingActuator(kind wire.Kind, logger *slog.Logger) *LoggingActuator {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingActuator{
		kind:   kind,
		logger: logger.With("component", "actuator", "kind", string(kind)),
	}
}

// Perform logs the action, with its vocabulary description when one is
// registered, and reports success.
func (a *LoggingActuator) Perform(_ context.Context, name string, params map[string]any) error {
	attrs := []any{"name", name}
	if meta, ok := Lookup(a.kind, name); ok && meta.Description != "" {
		attrs = append(attrs, "description", meta.Description)
	}
	if len(params) > 0 {
		attrs = append(attrs, "params", params)
	}
	a.logger.Info("performing action", attrs...)
	return nil
}
