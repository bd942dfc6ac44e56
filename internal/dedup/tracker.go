package dedup

import (
	"context"
	"sync"
	"time"
)

// Tracker remembers the last key observed per agent and scope. Scope lets one
// tracker hold independent histories, e.g. "content" keys from Key and
// "semantic" fingerprints from the extractor.
type Tracker interface {
	// Observe records key for (agentID, scope) and reports whether it repeats
	// the previously recorded key for that pair.
	Observe(ctx context.Context, agentID, scope, key string) (repeat bool, err error)

	// Forget drops every scope recorded for agentID.
	Forget(ctx context.Context, agentID string) error
}

type trackerEntry struct {
	key    string
	seenAt time.Time
}

// MemoryTracker is an in-process Tracker. Safe for concurrent use.
type MemoryTracker struct {
	mu sync.Mutex

	entries map[string]map[string]trackerEntry // agentID -> scope -> entry

	// renotifyAfter makes an unchanged key count as new once it is older than
	// this. Zero means a key repeats until it changes.
	renotifyAfter time.Duration

	now func() time.Time
}

// NewMemoryTracker creates an empty tracker.
func NewMemoryTracker(renotifyAfter time.Duration) *MemoryTracker {
	return &MemoryTracker{
		entries:       make(map[string]map[string]trackerEntry),
		renotifyAfter: renotifyAfter,
		now:           time.Now,
	}
}

// Observe implements Tracker.
func (t *MemoryTracker) Observe(_ context.Context, agentID, scope, key string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	scopes, ok := t.entries[agentID]
	if !ok {
		scopes = make(map[string]trackerEntry)
		t.entries[agentID] = scopes
	}

	prev, seen := scopes[scope]
	if seen && prev.key == key {
		if t.renotifyAfter > 0 && now.Sub(prev.seenAt) >= t.renotifyAfter {
			scopes[scope] = trackerEntry{key: key, seenAt: now}
			return false, nil
		}
		return true, nil
	}

	scopes[scope] = trackerEntry{key: key, seenAt: now}
	return false, nil
}

// Forget implements Tracker.
func (t *MemoryTracker) Forget(_ context.Context, agentID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, agentID)
	return nil
}
