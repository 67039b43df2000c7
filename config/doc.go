// Package config provides configuration for the robobridge agent.
//
// Configuration is resolved in three layers with last-wins semantics:
// built-in defaults (DefaultConfig), an optional YAML file, and
// ROBOBRIDGE_* environment variables. The result is validated before use.
//
// # Loading
//
//	cfg, err := config.Load("robobridge.yaml")
//	if err != nil {
//		log.Fatal(err)
//	}
//
// An empty path skips the file layer and loads defaults plus environment
// overrides only, which is enough for a local agent talking to a local
// inferencer.
//
// # File Format
//
// The file is YAML, one section per concern:
//
//	robot:
//	  id: g1
//	transport:
//	  name: httprpc
//	  httprpc:
//	    base_url: http://thor.local:5000
//	    timeout: 30
//	agent:
//	  utterance_subject: robot.audio.utterance
//	  gate:
//	    min_confidence: 0.3
//	    throttle: 1.2s
//
// Environment references in the file are expanded before parsing, so
// credentials can stay out of it:
//
//	transport:
//	  mqttps:
//	    password: ${MQTT_PASSWORD}
//
// Transport option sections (httprpc, natsps, mqttps) are opaque to this
// package. TransportConfig.Options re-encodes the selected section as
// JSON for the transport registry, and the adapter factory validates it.
//
// # Environment Variable Overrides
//
// Deployment-varying settings can be overridden directly:
//
//	export ROBOBRIDGE_NATS_URL="nats://robot-lan:4222"
//	export ROBOBRIDGE_TRANSPORT="natsps"
//	export ROBOBRIDGE_LOG_LEVEL="debug"
//
// # Safety
//
// Config files are capped at 1MB, must be regular files with a .yaml or
// .yml extension, and environment values are checked for null bytes and
// runaway length before use.
package config
