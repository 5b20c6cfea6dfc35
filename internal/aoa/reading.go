// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package aoa

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrMalformedReading is returned when a payload lacks a usable azimuth or elevation.
var ErrMalformedReading = errors.New("malformed AoA reading")

// Reading is one angle-of-arrival measurement for a tag, as seen by the anchor.
type Reading struct {
	AzimuthDeg     float64 `json:"azimuth"`
	ElevationDeg   float64 `json:"elevation"`
	AzimuthStdev   float64 `json:"azimuth_stdev"`
	ElevationStdev float64 `json:"elevation_stdev"`
}

// wireReading uses pointers so missing angles can be told apart from zero.
type wireReading struct {
	Azimuth        *float64 `json:"azimuth"`
	Elevation      *float64 `json:"elevation"`
	AzimuthStdev   *float64 `json:"azimuth_stdev"`
	ElevationStdev *float64 `json:"elevation_stdev"`
}

// ParseReading decodes an angle payload. Stdev fields are optional and
// default to 0. The azimuth is normalized into (-180, 180].
func ParseReading(payload []byte) (Reading, error) {
	var w wireReading
	if err := json.Unmarshal(payload, &w); err != nil {
		return Reading{}, fmt.Errorf("%w: %v", ErrMalformedReading, err)
	}
	if w.Azimuth == nil {
		return Reading{}, fmt.Errorf("%w: missing azimuth", ErrMalformedReading)
	}
	if w.Elevation == nil {
		return Reading{}, fmt.Errorf("%w: missing elevation", ErrMalformedReading)
	}

	r := Reading{
		AzimuthDeg:   *w.Azimuth,
		ElevationDeg: *w.Elevation,
	}
	if w.AzimuthStdev != nil {
		r.AzimuthStdev = *w.AzimuthStdev
	}
	if w.ElevationStdev != nil {
		r.ElevationStdev = *w.ElevationStdev
	}
	if err := r.Validate(); err != nil {
		return Reading{}, err
	}
	r.AzimuthDeg = NormalizeAzimuth(r.AzimuthDeg)
	return r, nil
}

// Validate reports ErrMalformedReading for non-finite angles.
func (r Reading) Validate() error {
	if math.IsNaN(r.AzimuthDeg) || math.IsInf(r.AzimuthDeg, 0) {
		return fmt.Errorf("%w: azimuth %v", ErrMalformedReading, r.AzimuthDeg)
	}
	if math.IsNaN(r.ElevationDeg) || math.IsInf(r.ElevationDeg, 0) {
		return fmt.Errorf("%w: elevation %v", ErrMalformedReading, r.ElevationDeg)
	}
	return nil
}

// NormalizeAzimuth maps any angle into (-180, 180].
func NormalizeAzimuth(deg float64) float64 {
	a := math.Mod(deg, 360)
	if a <= -180 {
		a += 360
	} else if a > 180 {
		a -= 360
	}
	return a
}

// TagIDFromTopic returns the last path segment of an MQTT topic,
// e.g. "silabs/aoa/angle/ble-pd-0CAE5F9301A8/ble-pd-1C34F16339B6" -> "ble-pd-1C34F16339B6".
func TagIDFromTopic(topic string) string {
	if i := strings.LastIndexByte(topic, '/'); i >= 0 {
		return topic[i+1:]
	}
	return topic
}
