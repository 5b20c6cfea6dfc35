// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package filter

import (
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAngleDiff(t *testing.T) {
	tests := []struct {
		a1, a2, want float64
	}{
		{179, -179, 2},
		{-179, 179, 2},
		{0, 0, 0},
		{10, 15, 5},
		{15, 200, 175},
		{15, 20, 5},
		{0, 180, 180},
		{0, -180, 180},
		{350, 10, 20},
		{-90, 90, 180},
		{0, 30, 30},
		{720, 0, 0},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%v_%v", tt.a1, tt.a2), func(t *testing.T) {
			assert.InDelta(t, tt.want, AngleDiff(tt.a1, tt.a2), 1e-9)
		})
	}
}

func TestAngleDiffProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 10000; i++ {
		a1 := rng.Float64()*1440 - 720
		a2 := rng.Float64()*1440 - 720

		d := AngleDiff(a1, a2)
		require.GreaterOrEqual(t, d, 0.0)
		require.LessOrEqual(t, d, 180.0)
		require.InDelta(t, d, AngleDiff(a2, a1), 1e-9, "symmetry a1=%v a2=%v", a1, a2)
		require.Equal(t, 0.0, AngleDiff(a1, a1))
	}
}

func TestFirstReadingAccepted(t *testing.T) {
	f := NewAzimuthFilter(0)
	require.Equal(t, DefaultMaxAzimuthJump, f.MaxJump())
	assert.Equal(t, Unseen, f.Phase("A"))

	d := f.Check("A", 123)
	assert.Equal(t, Decision{Accepted: true, Created: true, From: Unseen, To: Pending}, d)
	assert.Equal(t, Pending, f.Phase("A"))

	s, ok := f.State("A")
	require.True(t, ok)
	assert.Equal(t, State{LastAzimuthDeg: 123}, s)
}

func TestPendingThreshold(t *testing.T) {
	t.Run("exactly max becomes stable", func(t *testing.T) {
		f := NewAzimuthFilter(30)
		f.Check("A", 0)
		d := f.Check("A", 30)
		assert.True(t, d.Accepted)
		assert.Equal(t, Pending, d.From)
		assert.Equal(t, Stable, d.To)
		s, _ := f.State("A")
		assert.Equal(t, State{LastAzimuthDeg: 30, Ready: true}, s)
	})

	t.Run("exactly max across the wrap becomes stable", func(t *testing.T) {
		f := NewAzimuthFilter(30)
		f.Check("A", 170)
		d := f.Check("A", -160)
		assert.True(t, d.Accepted)
		assert.Equal(t, Stable, d.To)
		assert.InDelta(t, 30.0, d.Delta, 1e-9)
	})

	t.Run("above max stays pending without mutation", func(t *testing.T) {
		f := NewAzimuthFilter(30)
		f.Check("A", 0)
		d := f.Check("A", 30.001)
		assert.False(t, d.Accepted)
		assert.Equal(t, Pending, d.To)
		s, _ := f.State("A")
		assert.Equal(t, State{LastAzimuthDeg: 0}, s)
	})

	t.Run("pending keeps first reference across rejections", func(t *testing.T) {
		f := NewAzimuthFilter(30)
		f.Check("A", 0)
		assert.False(t, f.Check("A", 90).Accepted)
		assert.False(t, f.Check("A", 95).Accepted)
		assert.True(t, f.Check("A", -10).Accepted)
		s, _ := f.State("A")
		assert.Equal(t, State{LastAzimuthDeg: -10, Ready: true}, s)
	})
}

func TestStableThreshold(t *testing.T) {
	stableAt := func(az float64) *AzimuthFilter {
		f := NewAzimuthFilter(30)
		f.Check("A", az)
		f.Check("A", az)
		require.Equal(t, Stable, f.Phase("A"))
		return f
	}

	t.Run("exactly max accepted", func(t *testing.T) {
		f := stableAt(0)
		d := f.Check("A", 30)
		assert.True(t, d.Accepted)
		assert.Equal(t, 30.0, d.Delta)
		s, _ := f.State("A")
		assert.Equal(t, State{LastAzimuthDeg: 30, Ready: true}, s)
	})

	t.Run("above max rejected without mutation", func(t *testing.T) {
		f := stableAt(0)
		d := f.Check("A", 30.001)
		assert.False(t, d.Accepted)
		assert.Equal(t, Stable, d.To)
		s, _ := f.State("A")
		assert.Equal(t, State{LastAzimuthDeg: 0, Ready: true}, s)
	})

	t.Run("wraparound is a small step", func(t *testing.T) {
		f := stableAt(179)
		assert.True(t, f.Check("A", -179).Accepted)
		assert.True(t, f.Check("A", -170).Accepted)
	})
}

func TestScenarioRejectsOnlyTheJump(t *testing.T) {
	f := NewAzimuthFilter(DefaultMaxAzimuthJump)
	var accepted []bool
	for _, az := range []float64{10, 15, 200, 20} {
		accepted = append(accepted, f.Check("A", az).Accepted)
	}
	assert.Equal(t, []bool{true, true, false, true}, accepted)
	s, _ := f.State("A")
	assert.Equal(t, State{LastAzimuthDeg: 20, Ready: true}, s)
}

func TestTagsAreIndependent(t *testing.T) {
	f := NewAzimuthFilter(30)
	f.Check("A", 0)
	f.Check("A", 5)
	f.Check("B", 170)

	assert.Equal(t, Stable, f.Phase("A"))
	assert.Equal(t, Pending, f.Phase("B"))
	assert.True(t, f.Check("B", 175).Accepted)
	assert.False(t, f.Check("A", 175).Accepted)
	assert.Equal(t, 2, f.Len())

	f.Forget("A")
	assert.Equal(t, 1, f.Len())
	assert.Equal(t, Unseen, f.Phase("A"))
	assert.True(t, f.Check("A", 175).Created)
}

func TestConcurrentCheck(t *testing.T) {
	f := NewAzimuthFilter(30)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(tag string) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				f.Check(tag, float64(j%20))
			}
		}(fmt.Sprintf("tag-%d", i))
	}
	wg.Wait()
	assert.Equal(t, 8, f.Len())
	for i := 0; i < 8; i++ {
		assert.Equal(t, Stable, f.Phase(fmt.Sprintf("tag-%d", i)))
	}
}

func TestPhaseString(t *testing.T) {
	assert.Equal(t, "unseen", Unseen.String())
	assert.Equal(t, "pending", Pending.String())
	assert.Equal(t, "stable", Stable.String())
	assert.Equal(t, "unknown", Phase(9).String())
}
