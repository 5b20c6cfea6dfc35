// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package locator turns a stream of per-tag AoA readings into the latest
// position of each tag: every reading is gated by the azimuth filter,
// solved against the base station and recorded in the tracker.
package locator

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/relabs-tech/aoa_locator/internal/aoa"
	"github.com/relabs-tech/aoa_locator/internal/filter"
	"github.com/relabs-tech/aoa_locator/internal/tracker"
)

// DefaultMaxTags bounds the number of tags held in memory.
const DefaultMaxTags = 1024

// Outcome classifies what happened to one reading.
type Outcome int

const (
	Accepted Outcome = iota
	Malformed
	JumpRejected
	FlatDirection
)

func (o Outcome) String() string {
	switch o {
	case Accepted:
		return "accepted"
	case Malformed:
		return "malformed"
	case JumpRejected:
		return "jump_rejected"
	case FlatDirection:
		return "flat_direction"
	default:
		return "unknown"
	}
}

// Result is the outcome of processing one reading. Position is only set
// when Outcome is Accepted.
type Result struct {
	TagID    string
	Outcome  Outcome
	Reading  aoa.Reading
	Decision filter.Decision
	Position aoa.Position
	// Err carries the cause for Malformed and FlatDirection.
	Err error
	// Evicted lists tags dropped to make room for a new one.
	Evicted []string
}

// Config configures a Locator.
type Config struct {
	Base aoa.BaseStation
	// MaxAzimuthJump <= 0 selects filter.DefaultMaxAzimuthJump.
	MaxAzimuthJump float64
	// MaxTags <= 0 selects DefaultMaxTags.
	MaxTags int
	// IdleTimeout is used by Prune; 0 disables idle eviction.
	IdleTimeout time.Duration
}

// Locator owns all per-tag state. Readings are processed one at a time.
type Locator struct {
	mu       sync.Mutex
	cfg      Config
	solver   *aoa.Solver
	filter   *filter.AzimuthFilter
	tracker  *tracker.Tracker
	lastSeen map[string]time.Time
}

// New returns a Locator for cfg.
func New(cfg Config) *Locator {
	if cfg.MaxTags <= 0 {
		cfg.MaxTags = DefaultMaxTags
	}
	f := filter.NewAzimuthFilter(cfg.MaxAzimuthJump)
	cfg.MaxAzimuthJump = f.MaxJump()

	return &Locator{
		cfg:      cfg,
		solver:   aoa.NewSolver(cfg.Base),
		filter:   f,
		tracker:  tracker.New(),
		lastSeen: make(map[string]time.Time),
	}
}

// Config returns the effective configuration.
func (l *Locator) Config() Config { return l.cfg }

// Tracker exposes the latest positions for readers.
func (l *Locator) Tracker() *tracker.Tracker { return l.tracker }

// Filter exposes the per-tag filter state for inspection.
func (l *Locator) Filter() *filter.AzimuthFilter { return l.filter }

// HandleMessage parses an angle payload received on topic and processes it.
// The tag id is the last segment of the topic.
func (l *Locator) HandleMessage(topic string, payload []byte, now time.Time) Result {
	tagID := aoa.TagIDFromTopic(topic)
	r, err := aoa.ParseReading(payload)
	if err != nil {
		return Result{TagID: tagID, Outcome: Malformed, Err: err}
	}
	return l.Process(tagID, r, now)
}

// Process runs one reading through filter, solver and tracker.
func (l *Locator) Process(tagID string, r aoa.Reading, now time.Time) Result {
	res := Result{TagID: tagID, Reading: r}

	if tagID == "" {
		res.Outcome = Malformed
		res.Err = fmt.Errorf("%w: empty tag id", aoa.ErrMalformedReading)
		return res
	}
	if err := r.Validate(); err != nil {
		res.Outcome = Malformed
		res.Err = err
		return res
	}
	r.AzimuthDeg = aoa.NormalizeAzimuth(r.AzimuthDeg)
	res.Reading = r

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, known := l.lastSeen[tagID]; !known {
		res.Evicted = l.makeRoom()
	}
	l.lastSeen[tagID] = now

	res.Decision = l.filter.Check(tagID, r.AzimuthDeg)
	if !res.Decision.Accepted {
		res.Outcome = JumpRejected
		return res
	}

	p, err := l.solver.Solve(r.AzimuthDeg, r.ElevationDeg)
	if err != nil {
		if errors.Is(err, aoa.ErrFlatDirection) {
			res.Outcome = FlatDirection
		} else {
			res.Outcome = Malformed
		}
		res.Err = err
		return res
	}

	l.tracker.Update(tagID, p, now)
	res.Outcome = Accepted
	res.Position = p
	return res
}

// makeRoom evicts least recently seen tags until a new one fits.
// Caller holds l.mu.
func (l *Locator) makeRoom() []string {
	var evicted []string
	for len(l.lastSeen) >= l.cfg.MaxTags {
		oldestID := ""
		var oldest time.Time
		for id, seen := range l.lastSeen {
			if oldestID == "" || seen.Before(oldest) || (seen.Equal(oldest) && id < oldestID) {
				oldestID, oldest = id, seen
			}
		}
		l.evict(oldestID)
		evicted = append(evicted, oldestID)
	}
	return evicted
}

func (l *Locator) evict(tagID string) {
	delete(l.lastSeen, tagID)
	l.filter.Forget(tagID)
	l.tracker.Forget(tagID)
}

// Prune evicts tags with no reading within IdleTimeout of now and returns
// their ids.
func (l *Locator) Prune(now time.Time) []string {
	if l.cfg.IdleTimeout <= 0 {
		return nil
	}
	cutoff := now.Add(-l.cfg.IdleTimeout)

	l.mu.Lock()
	defer l.mu.Unlock()

	var evicted []string
	for id, seen := range l.lastSeen {
		if seen.Before(cutoff) {
			evicted = append(evicted, id)
		}
	}
	sort.Strings(evicted)
	for _, id := range evicted {
		l.evict(id)
	}
	return evicted
}

// Len returns the number of tags currently held.
func (l *Locator) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.lastSeen)
}

// Snapshot returns the latest accepted position of every tag.
func (l *Locator) Snapshot() map[string]tracker.TrackedTag {
	return l.tracker.Snapshot()
}
