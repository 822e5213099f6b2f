// Package health aggregates dependency checks for the health endpoint and the check command.
package health

import (
	"context"
	"sort"
)

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates an optional component failed.
	Degraded Status = "degraded"
	// Unhealthy indicates the search engine is down; no question can be answered.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Component names reported in Checks.
const (
	ComponentSearch = "search"
	ComponentModel  = "model"
	ComponentCache  = "cache"
)

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
	Errors map[string]string
}

// Components returns check names in stable order.
func (r Report) Components() []string {
	names := make([]string, 0, len(r.Checks))
	for name := range r.Checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Service coordinates health checks.
type Service struct {
	search Checker
	model  Checker
	cache  Pinger
}

// New creates a Service. model and cache can be nil.
func New(search Checker, model Checker, cache Pinger) *Service {
	return &Service{search: search, model: model, cache: cache}
}

// Check runs health checks against all components.
func (s *Service) Check(ctx context.Context) Report {
	r := Report{Status: Healthy, Checks: map[string]CheckResult{}, Errors: map[string]string{}}

	record := func(name string, err error) {
		if err != nil {
			r.Checks[name] = CheckError
			r.Errors[name] = err.Error()
			return
		}
		r.Checks[name] = CheckOK
	}

	record(ComponentSearch, s.search.HealthCheck(ctx))
	if s.model != nil {
		record(ComponentModel, s.model.HealthCheck(ctx))
	}
	if s.cache != nil {
		record(ComponentCache, s.cache.Ping(ctx))
	}

	for name, v := range r.Checks {
		if v != CheckError {
			continue
		}
		if name == ComponentSearch {
			r.Status = Unhealthy
			break
		}
		r.Status = Degraded
	}
	return r
}
