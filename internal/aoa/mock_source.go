// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package aoa

import (
	"math"
	"time"

	"github.com/relabs-tech/aoa_locator/internal/geometry"
)

// Source is anything that can provide readings over time.
type Source interface {
	Next() (Reading, error)
}

type mockSource struct {
	base   BaseStation
	start  time.Time
	phase  float64
	count  int
	glitch int
}

// NewMockSource creates a source that walks a tag around a circle on the
// tag plane in front of base and reports the angles the anchor would see.
// Every glitchEvery-th reading has its azimuth flipped by 180° to exercise
// the jump filter; 0 disables glitches.
func NewMockSource(base BaseStation, phase float64, glitchEvery int) Source {
	return &mockSource{base: base, start: time.Now(), phase: phase, glitch: glitchEvery}
}

func (m *mockSource) Next() (Reading, error) {
	elapsed := time.Since(m.start).Seconds()
	m.count++

	// Circle of radius 2m centred 3m out along -X (the default mounting
	// looks that way).
	angle := 0.3*elapsed + m.phase
	target := geometry.Vec3{
		X: m.base.Position.X - 3 + 2*math.Cos(angle),
		Y: m.base.Position.Y + 2*math.Sin(angle),
		Z: m.base.TagHeight,
	}

	az, el := AnglesTo(m.base, target)
	if m.glitch > 0 && m.count%m.glitch == 0 {
		az = NormalizeAzimuth(az + 180)
	}

	return Reading{
		AzimuthDeg:     az,
		ElevationDeg:   el,
		AzimuthStdev:   1.5,
		ElevationStdev: 1.5,
	}, nil
}

// AnglesTo returns the azimuth and elevation, in the anchor frame, of the
// direction from base to target. It is the inverse of Solve.
func AnglesTo(base BaseStation, target geometry.Vec3) (azimuthDeg, elevationDeg float64) {
	world := target.Sub(base.Position)
	local := geometry.RotateBy(base.Orientation.Matrix().T(), world)

	n := local.Norm()
	if n == 0 {
		return 0, 0
	}
	azimuthDeg = math.Atan2(local.Y, local.X) * 180.0 / math.Pi
	elevationDeg = math.Asin(local.Z/n) * 180.0 / math.Pi
	return azimuthDeg, elevationDeg
}
