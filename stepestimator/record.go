/*
battery-steps - Tracks how long each battery level step takes.
Copyright (C) 2026, The Cacophony Project

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/

package stepestimator

import (
	"fmt"
	"time"
)

const (
	// MaxStepDuration is the largest step duration, in milliseconds, that fits
	// in the 40 bit duration field of a packed record.
	MaxStepDuration uint64 = 0x000000ffffffffff

	stepLevelShift        = 40
	stepInitialModeShift  = 48
	stepModifiedModeShift = 56
)

// StepRecord is the duration of a single one percent battery level step along
// with the operating mode the device was in while it happened.
//
// Packed layout (uint64):
//
//	bits  0-39  duration in milliseconds (saturating)
//	bits 40-47  battery level at the end of the step
//	bits 48-55  mode at the start of the step
//	bits 56-63  mode bits that changed during the step
type StepRecord struct {
	DurationMs   uint64
	Level        uint8
	InitialMode  Mode
	ModifiedMode Mode
}

// Duration returns the step duration as a time.Duration.
func (r StepRecord) Duration() time.Duration {
	return time.Duration(r.DurationMs) * time.Millisecond
}

// Pack encodes the record into its 64 bit form. Durations above
// MaxStepDuration are saturated.
func (r StepRecord) Pack() uint64 {
	return saturateDuration(r.DurationMs) |
		uint64(r.Level)<<stepLevelShift |
		uint64(r.InitialMode)<<stepInitialModeShift |
		uint64(r.ModifiedMode)<<stepModifiedModeShift
}

// UnpackStepRecord decodes a record produced by Pack.
func UnpackStepRecord(v uint64) StepRecord {
	return StepRecord{
		DurationMs:   v & MaxStepDuration,
		Level:        uint8(v >> stepLevelShift),
		InitialMode:  Mode(v >> stepInitialModeShift),
		ModifiedMode: Mode(v >> stepModifiedModeShift),
	}
}

func (r StepRecord) String() string {
	return fmt.Sprintf("level %d, %s, mode %s, modified 0x%02x",
		r.Level, r.Duration(), r.InitialMode, uint8(r.ModifiedMode))
}

func saturateDuration(ms uint64) uint64 {
	if ms > MaxStepDuration {
		return MaxStepDuration
	}
	return ms
}
