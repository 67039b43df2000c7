// Package component defines the lifecycle and health contracts shared by
// every managed part of the bridge pipeline.
package component

import (
	"time"
)

// Component is the minimal surface the bridge supervisor needs from a
// managed part of the pipeline: identity plus current health.
type Component interface {
	// Meta returns basic component information
	Meta() Metadata

	// Health returns current health status
	Health() HealthStatus
}

// Metadata describes what a component is
type Metadata struct {
	Name        string `json:"name"`
	Type        string `json:"type"` // "transport", "correlator", "dispatcher", "sequencer", "input", "server"
	Description string `json:"description"`
	Version     string `json:"version"`
}

// HealthStatus describes the current health state of a component
type HealthStatus struct {
	Healthy    bool          `json:"healthy"`
	LastCheck  time.Time     `json:"last_check"`
	ErrorCount int           `json:"error_count"`
	LastError  string        `json:"last_error,omitempty"`
	Uptime     time.Duration `json:"uptime"`
}
