// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package tracker

import (
	"sort"
	"sync"
	"time"

	"github.com/relabs-tech/aoa_locator/internal/aoa"
)

// TrackedTag is the latest accepted position of one tag.
type TrackedTag struct {
	TagID     string       `json:"tag"`
	Position  aoa.Position `json:"position"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// Tracker keeps the latest position per tag. Entries are overwritten in
// place; no history is kept.
type Tracker struct {
	mu   sync.RWMutex
	tags map[string]TrackedTag
}

func New() *Tracker {
	return &Tracker{tags: make(map[string]TrackedTag)}
}

// Update records p as the current position of tagID.
func (t *Tracker) Update(tagID string, p aoa.Position, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tags[tagID] = TrackedTag{TagID: tagID, Position: p, UpdatedAt: at}
}

// Get returns the tag entry if present.
func (t *Tracker) Get(tagID string) (TrackedTag, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	tt, ok := t.tags[tagID]
	return tt, ok
}

// Snapshot returns a copy of all entries keyed by tag id.
func (t *Tracker) Snapshot() map[string]TrackedTag {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[string]TrackedTag, len(t.tags))
	for id, tt := range t.tags {
		out[id] = tt
	}
	return out
}

// IDs returns the tracked tag ids in lexical order.
func (t *Tracker) IDs() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	ids := make([]string, 0, len(t.tags))
	for id := range t.tags {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Idle returns the ids of tags not updated since cutoff.
func (t *Tracker) Idle(cutoff time.Time) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var ids []string
	for id, tt := range t.tags {
		if tt.UpdatedAt.Before(cutoff) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func (t *Tracker) Forget(tagID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.tags, tagID)
}

func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.tags)
}
