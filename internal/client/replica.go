package client

import (
	"sync"
	"time"
)

// ReplicaConfig describes one runner replica.
type ReplicaConfig struct {
	Name   string `json:"name"`
	URL    string `json:"url"`
	Weight int    `json:"weight"`
}

// replica tracks the selection state of one runner replica. Consecutive
// failures take it out of rotation until the recovery timeout elapses.
type replica struct {
	name   string
	url    string
	weight int

	mu            sync.Mutex
	failures      int
	lastFailureAt time.Time
}

func newReplica(cfg ReplicaConfig) *replica {
	weight := cfg.Weight
	if weight <= 0 {
		weight = 1
	}
	return &replica{
		name:   cfg.Name,
		url:    cfg.URL,
		weight: weight,
	}
}

// Name returns the replica name
func (r *replica) Name() string { return r.name }

// URL returns the replica base URL
func (r *replica) URL() string { return r.url }

// Weight returns the replica selection weight
func (r *replica) Weight() int { return r.weight }

// Available reports whether the replica may be selected: it has not hit
// the failure threshold, or the recovery timeout has passed since its
// last failure.
func (r *replica) Available(threshold int, recovery time.Duration) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failures < threshold {
		return true
	}
	return time.Since(r.lastFailureAt) >= recovery
}

// RecordFailure counts a failed call against the replica
func (r *replica) RecordFailure() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures++
	r.lastFailureAt = time.Now()
}

// RecordSuccess puts the replica back into full rotation
func (r *replica) RecordSuccess() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = 0
}
