// Package registry implements the AUTOMAT service registry: a TTL-expiring
// map of live PLATER backends, refreshed by periodic heartbeats and read as
// a point-in-time-consistent snapshot by the reverse proxy and spec
// aggregator.
package registry

import (
	"fmt"
	"sync"
	"time"
)

// Status labels, matched verbatim against the reference registry so any
// downstream consumer keeping exact string comparisons keeps working.
const (
	StatusAlive   = "alive"
	StatusWarning = "warn "
	StatusOffline = "off line"
)

// Heartbeat identifies one registered backend: its reachable host:port and
// the tag it serves under.
type Heartbeat struct {
	Host string
	Port string
	Tag  string
}

// String renders the heartbeat's dial address.
func (h Heartbeat) String() string {
	return fmt.Sprintf("%s:%s", h.Host, h.Port)
}

// Entry is one row of a registry snapshot.
type Entry struct {
	URL    string `json:"url"`
	Status string `json:"status,omitempty"`
}

// Registry tracks the last-seen time of every registered heartbeat and
// computes liveness status against configurable TTL thresholds.
type Registry struct {
	mu      sync.Mutex
	entries map[Heartbeat]time.Time

	age              time.Duration
	warnThreshold    time.Duration
	offlineThreshold time.Duration
	deleteThreshold  time.Duration
}

// New constructs a Registry. age is the expected heartbeat interval;
// warnThreshold/offlineThreshold/deleteThreshold are compared against
// (time since last heartbeat - age) to classify each entry.
func New(age, warnThreshold, offlineThreshold, deleteThreshold time.Duration) *Registry {
	return &Registry{
		entries:          map[Heartbeat]time.Time{},
		age:              age,
		warnThreshold:    warnThreshold,
		offlineThreshold: offlineThreshold,
		deleteThreshold:  deleteThreshold,
	}
}

// Refresh records hb as seen now and returns the resulting registry
// snapshot.
func (r *Registry) Refresh(hb Heartbeat) map[string]Entry {
	r.mu.Lock()
	r.entries[hb] = time.Now()
	r.mu.Unlock()
	return r.GetRegistry()
}

// GetRegistry computes a point-in-time-consistent snapshot of every
// registered backend's liveness status. Entries whose ttl has crossed the
// delete threshold are left out of the returned snapshot and removed from
// the underlying table once the snapshot is built.
func (r *Registry) GetRegistry() map[string]Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	response := make(map[string]Entry, len(r.entries))
	var toDelete []Heartbeat
	now := time.Now()

	for hb, lastSeen := range r.entries {
		entry := Entry{URL: hb.String()}
		ttl := now.Sub(lastSeen) - r.age

		switch {
		case ttl > r.deleteThreshold:
			toDelete = append(toDelete, hb)
			continue
		case ttl > r.offlineThreshold:
			entry.Status = StatusOffline
		case ttl > r.warnThreshold:
			entry.Status = StatusWarning
		default:
			entry.Status = StatusAlive
		}

		response[hb.Tag] = entry
	}

	for _, hb := range toDelete {
		delete(r.entries, hb)
	}

	return response
}

// GetHostByTag returns the dial address registered under tag, or "" if no
// backend is currently registered under it.
func (r *Registry) GetHostByTag(tag string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	for hb := range r.entries {
		if hb.Tag == tag {
			return hb.String()
		}
	}
	return ""
}
