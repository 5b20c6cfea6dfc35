// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package geometry

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Orientation holds the mounting angles of an anchor in degrees,
// applied as rotations about X, then Y, then Z.
type Orientation struct {
	XDeg float64 `json:"x_deg"`
	YDeg float64 `json:"y_deg"`
	ZDeg float64 `json:"z_deg"`
}

// RotationMatrix returns Rz·Ry·Rx for the given angles.
//
// The composition order is fixed. Deployed anchors have their orientation
// constants measured against this convention, so changing it moves every
// computed position.
func RotationMatrix(xDeg, yDeg, zDeg float64) *mat.Dense {
	xRad, yRad, zRad := deg2rad(xDeg), deg2rad(yDeg), deg2rad(zDeg)

	rx := mat.NewDense(3, 3, []float64{
		1, 0, 0,
		0, math.Cos(xRad), -math.Sin(xRad),
		0, math.Sin(xRad), math.Cos(xRad),
	})
	ry := mat.NewDense(3, 3, []float64{
		math.Cos(yRad), 0, math.Sin(yRad),
		0, 1, 0,
		-math.Sin(yRad), 0, math.Cos(yRad),
	})
	rz := mat.NewDense(3, 3, []float64{
		math.Cos(zRad), -math.Sin(zRad), 0,
		math.Sin(zRad), math.Cos(zRad), 0,
		0, 0, 1,
	})

	var zy, zyx mat.Dense
	zy.Mul(rz, ry)
	zyx.Mul(&zy, rx)
	return &zyx
}

// Rotate applies Rz·Ry·Rx to v.
func Rotate(v Vec3, xDeg, yDeg, zDeg float64) Vec3 {
	return RotateBy(RotationMatrix(xDeg, yDeg, zDeg), v)
}

// RotateBy applies a precomputed 3x3 rotation matrix to v.
func RotateBy(r mat.Matrix, v Vec3) Vec3 {
	var out mat.VecDense
	out.MulVec(r, mat.NewVecDense(3, []float64{v.X, v.Y, v.Z}))
	return Vec3{X: out.AtVec(0), Y: out.AtVec(1), Z: out.AtVec(2)}
}

// Matrix returns the rotation matrix for o.
func (o Orientation) Matrix() *mat.Dense {
	return RotationMatrix(o.XDeg, o.YDeg, o.ZDeg)
}
