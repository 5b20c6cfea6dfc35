// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package aoa

import (
	"errors"
	"math"

	"github.com/relabs-tech/aoa_locator/internal/geometry"
	"gonum.org/v1/gonum/mat"
)

// FlatEpsilon is the smallest |z| of the world-frame direction that can still
// be intersected with the tag plane.
const FlatEpsilon = 1e-6

// ErrFlatDirection means the rotated ray runs parallel to the tag plane.
// It is an expected geometric outcome, not a data problem.
var ErrFlatDirection = errors.New("direction too flat to intersect tag plane")

// BaseStation is the fixed anchor configuration. It is never mutated after startup.
type BaseStation struct {
	Position    geometry.Vec3        `json:"position"`
	Orientation geometry.Orientation `json:"orientation"`
	TagHeight   float64              `json:"tag_height"`
}

// Position is a solved tag location.
type Position struct {
	Point              geometry.Vec3 `json:"point"`
	HorizontalDistance float64       `json:"horizontal_distance"`
}

func vec(x, y, z float64) geometry.Vec3 { return geometry.Vec3{X: x, Y: y, Z: z} }

// Direction converts azimuth/elevation into a unit vector in the anchor frame.
// Elevation is measured from the anchor's horizontal plane.
func Direction(azimuthDeg, elevationDeg float64) geometry.Vec3 {
	az := azimuthDeg * math.Pi / 180.0
	el := elevationDeg * math.Pi / 180.0
	return geometry.Vec3{
		X: math.Cos(el) * math.Cos(az),
		Y: math.Cos(el) * math.Sin(az),
		Z: math.Sin(el),
	}
}

// Solve intersects the AoA ray from the base station with the plane z = TagHeight.
func Solve(azimuthDeg, elevationDeg float64, base BaseStation) (Position, error) {
	return solveWith(base.Orientation.Matrix(), azimuthDeg, elevationDeg, base)
}

func solveWith(rot mat.Matrix, azimuthDeg, elevationDeg float64, base BaseStation) (Position, error) {
	world := geometry.RotateBy(rot, Direction(azimuthDeg, elevationDeg))

	heightDiff := base.TagHeight - base.Position.Z
	if math.Abs(world.Z) < FlatEpsilon {
		return Position{}, ErrFlatDirection
	}

	scale := heightDiff / world.Z
	tag := base.Position.Add(world.Scale(scale))

	return Position{
		Point:              tag,
		HorizontalDistance: tag.Sub(base.Position).NormXY(),
	}, nil
}

// Solver caches the rotation matrix of one base station.
type Solver struct {
	base BaseStation
	rot  *mat.Dense
}

// NewSolver returns a Solver for base.
func NewSolver(base BaseStation) *Solver {
	return &Solver{base: base, rot: base.Orientation.Matrix()}
}

// Base returns the configured base station.
func (s *Solver) Base() BaseStation { return s.base }

// Solve is Solve(azimuthDeg, elevationDeg, s.Base()) without rebuilding the matrix.
func (s *Solver) Solve(azimuthDeg, elevationDeg float64) (Position, error) {
	return solveWith(s.rot, azimuthDeg, elevationDeg, s.base)
}
