// Package gwstate holds the gateway daemon's shared, in-process global
// state: the realized configuration, the mutexes that serialize reconciler
// passes against each other and against firewall save/restore, and the
// broadcast hubs that fan traffic and event samples out to the
// control-plane session.
package gwstate

import (
	"sync"

	"fractalnet.io/gatewayd/internal/broadcast"
	"fractalnet.io/gatewayd/internal/domain"
)

// State is the gateway daemon's single shared handle, constructed once at
// startup and passed by reference to the reconciler, watchdog, and
// control-plane session.
type State struct {
	// applyMu serializes apply/apply-partial passes against each other, so
	// two concurrent manager requests can never interleave their per-network
	// pipelines.
	applyMu sync.Mutex

	// firewallMu additionally serializes FirewallSave/FirewallRestore pairs
	// against any other firewall read-modify-write, since osprim.Interface
	// requires its caller to do so.
	firewallMu sync.Mutex

	mu       sync.RWMutex
	realized domain.GatewayConfig

	Traffic *broadcast.Hub[domain.TrafficInfo]
	Events  *broadcast.Hub[domain.Event]
}

// New constructs an empty State with no realized networks.
func New() *State {
	return &State{
		realized: domain.GatewayConfig{},
		Traffic:  broadcast.NewHub[domain.TrafficInfo](),
		Events:   broadcast.NewHub[domain.Event](),
	}
}

// Realized returns a snapshot of the current realized configuration. The
// returned map is a shallow copy; callers must not rely on it reflecting
// subsequent changes.
func (s *State) Realized() domain.GatewayConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(domain.GatewayConfig, len(s.realized))
	for port, ns := range s.realized {
		out[port] = ns
	}
	return out
}

// SetRealized replaces the realized configuration wholesale, called after a
// successful apply.
func (s *State) SetRealized(cfg domain.GatewayConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.realized = cfg
}

// LockApply acquires the apply mutex and returns the unlock function. Hold
// it for the full duration of an apply or apply-partial pass.
func (s *State) LockApply() func() {
	s.applyMu.Lock()
	return s.applyMu.Unlock
}

// LockFirewall acquires the firewall mutex and returns the unlock function.
// Hold it for the full duration of a FirewallSave/compare/FirewallRestore
// sequence for one namespace.
func (s *State) LockFirewall() func() {
	s.firewallMu.Lock()
	return s.firewallMu.Unlock
}
