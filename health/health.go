// Package health aggregates liveness of the agent's subsystems behind one
// HTTP endpoint: the NATS connection, the stream sessions, and anything else
// that registers a check.
package health

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// States in severity order.
const (
	StateHealthy   = "healthy"
	StateDegraded  = "degraded"
	StateUnhealthy = "unhealthy"
)

// Status is the health of one component or of the whole agent.
type Status struct {
	Component   string    `json:"component"`
	State       string    `json:"state"`
	Message     string    `json:"message,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	SubStatuses []Status  `json:"sub_statuses,omitempty"`
}

// Healthy builds a healthy status.
func Healthy(component, message string) Status {
	return Status{Component: component, State: StateHealthy, Message: message, Timestamp: time.Now()}
}

// Degraded builds a degraded status: functioning, but impaired.
func Degraded(component, message string) Status {
	return Status{Component: component, State: StateDegraded, Message: message, Timestamp: time.Now()}
}

// Unhealthy builds an unhealthy status.
func Unhealthy(component, message string) Status {
	return Status{Component: component, State: StateUnhealthy, Message: message, Timestamp: time.Now()}
}

// Aggregate folds component statuses into a system verdict: any unhealthy
// sub-status makes the system unhealthy, any degraded one degrades it.
func Aggregate(system string, subs []Status) Status {
	out := Healthy(system, "")
	out.SubStatuses = subs
	for _, s := range subs {
		switch s.State {
		case StateUnhealthy:
			out.State = StateUnhealthy
			out.Message = s.Component + " unhealthy"
			return out
		case StateDegraded:
			out.State = StateDegraded
			out.Message = s.Component + " degraded"
		}
	}
	return out
}

// Check probes one component's current health.
type Check func() Status

// Monitor runs registered checks on demand.
type Monitor struct {
	system string

	mu     sync.RWMutex
	names  []string
	checks map[string]Check
}

// NewMonitor creates a monitor reporting under the given system name.
func NewMonitor(system string) *Monitor {
	return &Monitor{system: system, checks: make(map[string]Check)}
}

// Register adds or replaces a named check. Registration order is reporting
// order.
func (m *Monitor) Register(name string, check Check) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.checks[name]; !ok {
		m.names = append(m.names, name)
	}
	m.checks[name] = check
}

// Snapshot runs every check and aggregates the results.
func (m *Monitor) Snapshot() Status {
	m.mu.RLock()
	names := make([]string, len(m.names))
	copy(names, m.names)
	checks := make(map[string]Check, len(m.checks))
	for k, v := range m.checks {
		checks[k] = v
	}
	m.mu.RUnlock()

	subs := make([]Status, 0, len(names))
	for _, name := range names {
		s := checks[name]()
		s.Component = name
		subs = append(subs, s)
	}
	return Aggregate(m.system, subs)
}

// Handler serves the aggregated health as JSON: 200 for healthy or degraded,
// 503 for unhealthy.
func (m *Monitor) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		status := m.Snapshot()
		w.Header().Set("Content-Type", "application/json")
		if status.State == StateUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(status)
	})
}
