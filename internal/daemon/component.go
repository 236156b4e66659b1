package daemon

import (
	"context"
)

// HealthStatus is the daemon lifecycle state.
type HealthStatus string

const (
	StatusStarting HealthStatus = "starting"
	StatusRunning  HealthStatus = "running"
	StatusStopping HealthStatus = "stopping"
	StatusStopped  HealthStatus = "stopped"
)

// ComponentHealth is one component's answer to a health probe. Error is set
// when Healthy is false.
type ComponentHealth struct {
	Name    string
	Healthy bool
	Error   error
}

// Component is a unit of the serving process. Init runs in dependency order,
// Start follows the same order once every Init succeeded, and Stop runs in
// reverse for the components that were initialized.
type Component interface {
	Name() string
	// Dependencies names components that must be initialized first.
	Dependencies() []string
	Init(ctx context.Context) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Health(ctx context.Context) (*ComponentHealth, error)
}
