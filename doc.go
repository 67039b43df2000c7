// Package robobridge connects an embodied robot to a remote vision
// language model service: it encodes what the robot hears and sees into
// inference requests, carries them over a pluggable transport, and turns
// each reply into speech and a sequence of physical actions.
//
// # Architecture
//
// The robot-side agent is a pipeline from perception to actuation:
//
//	┌──────────┐   ┌──────────┐   ┌────────────────────────────┐
//	│   ASR    │   │  Camera  │   │      Remote Inferencer     │
//	│ (NATS)   │   │  (NATS)  │   │  (or vlmsim stand-in)      │
//	└────┬─────┘   └────┬─────┘   └─────────────▲──────────────┘
//	     │ utterance    │ frame                 │ transport
//	     ▼              ▼                       │
//	┌──────────┐   ┌──────────┐   ┌─────────────┴──────────────┐
//	│   Gate   ├──►│ Pipeline ├──►│          Bridge            │
//	│ (filter) │   │ (worker  │   │  codec + convo + fallback  │
//	└──────────┘   │  pool)   │   └─────────────┬──────────────┘
//	               └──────────┘                 │ response
//	                                            ▼
//	               ┌──────────┐   ┌────────────────────────────┐
//	               │  Robot   │◄──┤         Dispatcher         │
//	               │ (speech, │   │  speech / actions / meta   │
//	               │  motion) │   └────────────────────────────┘
//	               └──────────┘
//
// Utterances arriving over NATS pass an admission gate (confidence,
// charset, throttle), get paired with the freshest camera frame, and are
// sent to the inferencer through the bridge. The reply's speech goes to
// the TTS subject, its action directives run through the sequencer onto
// per-kind actuator subjects, and every failure on the remote side
// degrades to a spoken fallback phrase rather than a silent robot.
//
// # Transports
//
// The transport boundary is one interface with three variants, chosen by
// configuration:
//
//   - transport/httprpc: synchronous HTTP POST /infer. The call frame is
//     the correlation; no request IDs needed.
//   - transport/natsps: asynchronous NATS publish/subscribe. Requests and
//     responses travel on separate subjects; the correlator matches them
//     by ID.
//   - transport/mqttps: asynchronous MQTT publish/subscribe, same
//     correlation model over an MQTT broker.
//
// Async variants share the correlator package: a mutex-guarded table of
// in-flight requests with per-ID buffered slots, deadline timers, and
// orphan accounting for replies that arrive after their caller gave up.
//
// # Packages
//
// Core data plane:
//   - wire: request/response model, action directives, JSON envelopes
//   - codec: JPEG encode/decode with bounded downscaling
//   - correlator: in-flight request table for async transports
//   - transport: adapter interface, registry, and the three variants
//   - dispatch: routes a response to speech, action, and metadata handlers
//   - action: validates and sequences directives onto actuators
//   - bridge: ties codec, transport, conversation, and fallback together
//   - convo: bounded conversation history and scene/robot state
//
// Robot-side inputs:
//   - input/asr: NATS utterance intake with admission gate and worker pool
//   - input/camera: latest-frame cache fed by the camera subject
//
// Simulated inferencer:
//   - vlmsim: deterministic rule engine served over all three transports
//
// Infrastructure:
//   - natsclient: NATS connection management with circuit breaker
//   - config: YAML configuration with env overrides and validation
//   - component: lifecycle contract and NATS-published component logs
//   - health: component health statuses, monitor, ops HTTP endpoint
//   - metric: prometheus registry and bridge metrics
//   - errors: classified errors (transient/invalid/fatal) and sentinels
//
// Utilities:
//   - pkg/worker: generic bounded worker pool
//   - pkg/retry: backoff for transport connect paths
//   - pkg/security, pkg/tlsutil: TLS and auth configuration
//
// # Usage
//
// Asking the inferencer from your own code takes a transport, a codec,
// and a bridge:
//
//	tr, _ := httprpc.New(rawConfig, transport.Dependencies{Logger: logger})
//	enc, _ := codec.New()
//	br, _ := bridge.New(tr, enc,
//	    bridge.WithFallbackText("Sorry, I didn't catch that."),
//	)
//
//	resp, err := br.Ask(ctx, "what do you see?", &frame)
//	if err == nil {
//	    fmt.Println(resp.Text)
//	}
//
// A nil frame sends a text-only request; an encode failure degrades to
// text-only rather than failing the ask.
//
// # Binaries
//
// The agent daemon and the simulator live under cmd/:
//
//	# robot-side agent with defaults (NATS on localhost, HTTP inferencer)
//	./bin/robobridge
//
//	# agent against a config file
//	./bin/robobridge -config configs/robot.yaml
//
//	# simulated inferencer on all three transports
//	./bin/vlmsim -nats-url nats://localhost:4222 -mqtt-broker tcp://localhost:1883
//
// # Design Principles
//
// Degrade, never block:
//   - A lost inferencer produces a spoken fallback, not a frozen robot
//   - Capture failures fall back to text-only asks
//   - Dispatch failures are contained per handler, actions per step
//
// Bounded everything:
//   - Worker pool caps pipeline concurrency and queue depth
//   - Conversation history trims to a fixed turn count
//   - Image payloads are downscaled before they cross the wire
//
// Testability:
//   - Explicit dependencies, no globals
//   - vlmsim gives deterministic end-to-end replies without a GPU
//   - Integration tests run against testcontainers NATS and an embedded
//     MQTT broker
package robobridge
