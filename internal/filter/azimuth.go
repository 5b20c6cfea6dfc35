// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package filter gates per-tag azimuth readings, dropping sudden jumps
// before they reach the position solver.
package filter

import (
	"math"
	"sync"
)

// DefaultMaxAzimuthJump is the tolerated azimuth change between
// consecutive accepted readings, in degrees.
const DefaultMaxAzimuthJump = 30.0

// Phase is the per-tag filter state.
type Phase int

const (
	// Unseen: no reading has been recorded for the tag.
	Unseen Phase = iota
	// Pending: the tag has a reference azimuth but has not yet shown a
	// stable step.
	Pending
	// Stable: jumps beyond the threshold are dropped.
	Stable
)

func (p Phase) String() string {
	switch p {
	case Unseen:
		return "unseen"
	case Pending:
		return "pending"
	case Stable:
		return "stable"
	default:
		return "unknown"
	}
}

// State is a tag's filter state.
type State struct {
	LastAzimuthDeg float64
	Ready          bool
}

// Phase returns Pending or Stable for a recorded state.
func (s State) Phase() Phase {
	if s.Ready {
		return Stable
	}
	return Pending
}

// Decision is the outcome of one Check call.
type Decision struct {
	Accepted bool
	// Delta is the cyclic difference to the reference azimuth; 0 on first sight.
	Delta float64
	// Created is true when this reading created the tag's state.
	Created bool
	// From and To are the tag phases before and after the reading.
	From, To Phase
}

// AngleDiff returns the magnitude of the shortest angular difference
// between a1 and a2 in degrees, in [0, 180].
func AngleDiff(a1, a2 float64) float64 {
	d := math.Mod(a2-a1+180, 360)
	if d < 0 {
		d += 360
	}
	return math.Abs(d - 180)
}

// AzimuthFilter holds one State per tag. It is safe for concurrent use.
type AzimuthFilter struct {
	mu      sync.Mutex
	maxJump float64
	states  map[string]*State
}

// NewAzimuthFilter returns a filter with the given jump threshold.
// A non-positive threshold selects DefaultMaxAzimuthJump.
func NewAzimuthFilter(maxJump float64) *AzimuthFilter {
	if maxJump <= 0 {
		maxJump = DefaultMaxAzimuthJump
	}
	return &AzimuthFilter{
		maxJump: maxJump,
		states:  make(map[string]*State),
	}
}

// MaxJump returns the configured threshold.
func (f *AzimuthFilter) MaxJump() float64 { return f.maxJump }

// getOrInsert returns the tag state, creating it from azimuth on first sight.
func (f *AzimuthFilter) getOrInsert(tagID string, azimuth float64) (*State, bool) {
	if s, ok := f.states[tagID]; ok {
		return s, false
	}
	s := &State{LastAzimuthDeg: azimuth}
	f.states[tagID] = s
	return s, true
}

// Check decides whether azimuth is usable for tagID and updates the tag state.
//
// The first reading is always accepted and leaves the tag Pending. A Pending
// tag becomes Stable on a step at or below the threshold; a Stable tag drops
// steps strictly above it. Rejected readings never touch the state.
func (f *AzimuthFilter) Check(tagID string, azimuth float64) Decision {
	f.mu.Lock()
	defer f.mu.Unlock()

	s, created := f.getOrInsert(tagID, azimuth)
	if created {
		return Decision{Accepted: true, Created: true, From: Unseen, To: Pending}
	}

	delta := AngleDiff(s.LastAzimuthDeg, azimuth)
	from := s.Phase()

	if !s.Ready {
		if delta <= f.maxJump {
			s.Ready = true
			s.LastAzimuthDeg = azimuth
			return Decision{Accepted: true, Delta: delta, From: from, To: Stable}
		}
		return Decision{Delta: delta, From: from, To: from}
	}

	if delta > f.maxJump {
		return Decision{Delta: delta, From: from, To: from}
	}
	s.LastAzimuthDeg = azimuth
	return Decision{Accepted: true, Delta: delta, From: from, To: from}
}

// State returns a copy of the tag state, or false if the tag is unseen.
func (f *AzimuthFilter) State(tagID string) (State, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	s, ok := f.states[tagID]
	if !ok {
		return State{}, false
	}
	return *s, true
}

// Phase returns the tag phase; Unseen for unknown tags.
func (f *AzimuthFilter) Phase(tagID string) Phase {
	s, ok := f.State(tagID)
	if !ok {
		return Unseen
	}
	return s.Phase()
}

// Forget drops the tag state so its next reading is treated as the first.
func (f *AzimuthFilter) Forget(tagID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.states, tagID)
}

// Len returns the number of tags with state.
func (f *AzimuthFilter) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.states)
}
