// Package component provides the lifecycle and health contracts shared by
// every managed part of the bridge pipeline, plus a structured logger that
// mirrors component logs onto NATS.
//
// # Overview
//
// The bridge supervisor manages a small, fixed set of components: the
// transport adapter, the request correlator, the response dispatcher, the
// action sequencer, the conversation manager, and the operational HTTP
// server. All of them expose the same two surfaces:
//
//   - Component: identity (Meta) and current health (Health)
//   - LifecycleComponent: Initialize / Start(ctx) / Stop(timeout)
//
// Initialize performs setup that cannot fail at runtime (allocations,
// validation). Start receives a context owned by the supervisor and begins
// background work. Stop is bounded by a timeout so a wedged component
// cannot stall shutdown of the rest of the pipeline.
//
// # Managed Lifecycle
//
// The supervisor keeps a ManagedComponent per component so it can start
// them in dependency order and stop them in reverse:
//
//	ctx, cancel := context.WithCancel(parentCtx)
//	mc := &component.ManagedComponent{
//		Component:  transport,
//		State:      component.StateInitialized,
//		Context:    ctx,
//		Cancel:     cancel,
//		StartOrder: 1,
//	}
//	if lc, ok := component.AsLifecycleComponent(mc.Component); ok {
//		if err := lc.Start(mc.Context); err != nil {
//			mc.State = component.StateFailed
//			mc.LastError = err
//		}
//	}
//
// Components never store the context they are started with; they receive
// it as a parameter and derive from it.
//
// # Component Logging
//
// Logger wraps a slog.Logger and, when a NATS connection is present,
// publishes each entry to logs.{robot_id}.{component} so the operator
// console can tail bridge logs next to the robot's own telemetry:
//
//	cl := component.NewLogger("correlator", "thor", nc, slogger)
//	cl.Info("pending table drained")
//	cl.Error("resolve failed", err)
//
// Publishing is best effort. A nil connection disables it, and publish
// failures fall back to local logging only.
package component
