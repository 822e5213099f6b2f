package health

import "context"

// Checker probes one dependency.
type Checker interface {
	HealthCheck(ctx context.Context) error
}

// Pinger checks the optional cache store.
type Pinger interface {
	Ping(ctx context.Context) error
}
