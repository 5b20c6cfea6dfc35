// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package aoa

import "time"

// Report is an accepted tag position as published on the bus.
type Report struct {
	Tag                string  `json:"tag"`
	X                  float64 `json:"x"` // meters, world frame
	Y                  float64 `json:"y"`
	Z                  float64 `json:"z"`
	HorizontalDistance float64 `json:"horizontal_distance"` // from the base station, X/Y only
	AzimuthDeg         float64 `json:"azimuth"`             // reading the position was solved from
	ElevationDeg       float64 `json:"elevation"`
	Time               string  `json:"time"` // RFC3339Nano
}

// NewReport builds the published form of an accepted position.
func NewReport(tagID string, r Reading, p Position, at time.Time) Report {
	return Report{
		Tag:                tagID,
		X:                  p.Point.X,
		Y:                  p.Point.Y,
		Z:                  p.Point.Z,
		HorizontalDistance: p.HorizontalDistance,
		AzimuthDeg:         r.AzimuthDeg,
		ElevationDeg:       r.ElevationDeg,
		Time:               at.UTC().Format(time.RFC3339Nano),
	}
}

// Position returns the solved position carried by the report.
func (r Report) Position() Position {
	return Position{
		Point:              vec(r.X, r.Y, r.Z),
		HorizontalDistance: r.HorizontalDistance,
	}
}

// Timestamp parses Time, returning the zero time if it is unset or invalid.
func (r Report) Timestamp() time.Time {
	t, err := time.Parse(time.RFC3339Nano, r.Time)
	if err != nil {
		return time.Time{}
	}
	return t
}
