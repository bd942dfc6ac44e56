// Package stability gates downstream classification until an agent's
// terminal output has stopped changing.
package stability

import (
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

// DefaultThreshold is the number of consecutive identical captures required
// before content counts as stable.
const DefaultThreshold = 3

// State is the per-agent fingerprint history.
type State struct {
	Fingerprint uint64
	StableCount int
	LastCheck   time.Time
}

// Detector tracks content fingerprints per agent. State is keyed by agent id
// and never shared, so many agents can be checked within one polling tick.
// Safe for concurrent use.
type Detector struct {
	mu        sync.Mutex
	states    map[string]*State
	threshold int
	now       func() time.Time
}

// NewDetector creates a detector. A threshold below 1 falls back to
// DefaultThreshold.
func NewDetector(threshold int) *Detector {
	if threshold < 1 {
		threshold = DefaultThreshold
	}
	return &Detector{
		states:    make(map[string]*State),
		threshold: threshold,
		now:       time.Now,
	}
}

// Threshold returns the configured stable-count threshold.
func (d *Detector) Threshold() int {
	return d.threshold
}

// IsStable records content for agentID and reports whether the same content
// has now been seen at least Threshold times in a row. Changed content resets
// the count to 1.
func (d *Detector) IsStable(agentID, content string) bool {
	fp := xxhash.Sum64String(content)

	d.mu.Lock()
	defer d.mu.Unlock()

	st, ok := d.states[agentID]
	if !ok {
		st = &State{}
		d.states[agentID] = st
	}

	if ok && st.Fingerprint == fp {
		st.StableCount++
	} else {
		st.Fingerprint = fp
		st.StableCount = 1
	}
	st.LastCheck = d.now()

	return st.StableCount >= d.threshold
}

// Clear discards the state for agentID. Unknown ids are a no-op.
func (d *Detector) Clear(agentID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.states, agentID)
}

// Snapshot returns a copy of the state for agentID.
func (d *Detector) Snapshot(agentID string) (State, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	st, ok := d.states[agentID]
	if !ok {
		return State{}, false
	}
	return *st, true
}

// Len returns the number of tracked agents.
func (d *Detector) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.states)
}
