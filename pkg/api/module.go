// Package api defines the core interfaces shared by actor modules.
package api

import (
	"context"

	"github.com/flightlink/copter-actor/pkg/healthcheck"
)

// Module is a named unit registered with the hub that exposes callable methods
// and emits events.
type Module interface {
	// Name returns the module name used in hub topics
	Name() string

	// Methods lists the remotely callable method names
	Methods() []string

	// Events lists the event names the module may emit
	Events() []string

	// Call invokes method with positional arguments
	Call(ctx context.Context, method string, args []interface{}) (interface{}, error)
}

// Lifecycle manages component lifecycle states.
type Lifecycle interface {
	// Start initializes and starts the component
	Start(ctx context.Context) error

	// Stop gracefully shuts down the component
	Stop(ctx context.Context) error

	// IsRunning returns true if the component is currently running
	IsRunning() bool
}

// Actor is a hub-attached Module with a lifecycle and a health report.
type Actor interface {
	Module
	Lifecycle

	// HealthCheck returns the health status of the actor
	HealthCheck(ctx context.Context) *healthcheck.Result
}
