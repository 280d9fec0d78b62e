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

// Package stepestimator estimates time until the battery is empty or full
// from how long recent one percent level steps took.
package stepestimator

import (
	"math"
	"sync"
	"time"

	"github.com/TheCacophonyProject/go-utils/logging"
)

// Unknown is returned by the estimate queries when no estimate is available.
const Unknown time.Duration = -1

const (
	// noStepTime marks that no step boundary has been seen since the last
	// baseline, so the next crossing can't be timed.
	noStepTime time.Duration = -1

	resetHighLevel              = 90
	resetLowPreviousLevel       = 20
	resetJumpLevel              = 80
	resetHighDischargeSinceFull = 200
)

// Transition describes a change in charging direction.
type Transition int

const (
	NoTransition Transition = iota
	Unplugged
	PluggedIn
)

func (t Transition) String() string {
	switch t {
	case Unplugged:
		return "unplugged"
	case PluggedIn:
		return "plugged-in"
	}
	return "none"
}

// Update summarises the effect of a single observation.
type Update struct {
	Transition     Transition
	PreviousStatus ChargeStatus
	// HistoryReset is set when unplugging reset the discharge baseline.
	// DiscardedSteps is how many discharge records were dropped.
	HistoryReset   bool
	DiscardedSteps int
	DischargeSteps int
	ChargeSteps    int
}

// Estimator tracks step durations while charging and discharging.
// It is safe for concurrent use.
type Estimator struct {
	mu  sync.Mutex
	log *logging.Logger

	onBattery    bool
	currentLevel int
	status       ChargeStatus

	dischargeCurrentLevel          int
	dischargeUnplugLevel           int
	highDischargeAmountSinceCharge int

	lastDischargeStepLevel int
	minDischargeStepLevel  int
	lastDischargeStepTime  time.Duration

	lastChargeStepLevel int
	maxChargeStepLevel  int
	lastChargeStepTime  time.Duration

	mode modeTracker

	discharge StepHistory
	charge    StepHistory
}

// New returns an estimator with empty histories. If log is nil an info level
// logger is used.
func New(log *logging.Logger) *Estimator {
	if log == nil {
		log = logging.NewLogger("info")
	}
	e := &Estimator{
		log:  log,
		mode: modeTracker{log: log},
	}
	e.initDischarge()
	return e
}

func (e *Estimator) initDischarge() {
	e.highDischargeAmountSinceCharge = 0
	e.lastDischargeStepTime = noStepTime
	e.discharge.Clear()
	e.lastChargeStepTime = noStepTime
	e.charge.Clear()
}

// Observe records a battery observation. Levels outside 0..100 are clamped.
func (e *Estimator) Observe(o Observation) Update {
	e.mu.Lock()
	defer e.mu.Unlock()

	o.Level = clampLevel(o.Level)

	e.mode.noteScreenState(o.Screen)
	e.mode.notePowerSave(o.PowerSave)

	onBattery := o.OnBattery()
	oldStatus := e.status
	e.status = o.Status
	e.currentLevel = o.Level

	update := Update{PreviousStatus: oldStatus}
	if onBattery != e.onBattery {
		if onBattery {
			update.Transition = Unplugged
			discharged := e.discharge.Len()
			update.HistoryReset = e.setOnBattery(oldStatus, o.Level)
			if update.HistoryReset {
				update.DiscardedSteps = discharged
			}
		} else {
			update.Transition = PluggedIn
			e.setPluggedIn(o.Level)
		}
		return update
	}

	now := o.ElapsedRealtime
	template := StepRecord{
		Level:        uint8(o.Level),
		InitialMode:  e.mode.init,
		ModifiedMode: e.mode.mod,
	}
	if onBattery {
		e.dischargeCurrentLevel = o.Level
		if o.Level != e.lastDischargeStepLevel && o.Level < e.minDischargeStepLevel {
			if e.lastDischargeStepTime != noStepTime {
				update.DischargeSteps = e.lastDischargeStepLevel - o.Level
				e.discharge.addLevelSteps(update.DischargeSteps, now-e.lastDischargeStepTime, template)
			}
			e.lastDischargeStepLevel = o.Level
			e.minDischargeStepLevel = o.Level
			e.lastDischargeStepTime = now
			e.mode.startStep()
		}
	} else {
		if o.Level != e.lastChargeStepLevel && o.Level > e.maxChargeStepLevel {
			if e.lastChargeStepTime != noStepTime {
				update.ChargeSteps = o.Level - e.lastChargeStepLevel
				e.charge.addLevelSteps(update.ChargeSteps, now-e.lastChargeStepTime, template)
			}
			e.lastChargeStepLevel = o.Level
			e.maxChargeStepLevel = o.Level
			e.lastChargeStepTime = now
			e.mode.startStep()
		}
	}
	return update
}

// setOnBattery handles unplugging. It returns true if the discharge history
// was discarded.
func (e *Estimator) setOnBattery(oldStatus ChargeStatus, level int) bool {
	reset := oldStatus == StatusFull ||
		level >= resetHighLevel ||
		(e.dischargeCurrentLevel < resetLowPreviousLevel && level >= resetJumpLevel) ||
		e.highDischargeAmountLocked() >= resetHighDischargeSinceFull
	if reset {
		e.log.Debugf("Resetting discharge history, previous status %s, level %d", oldStatus, level)
		e.initDischarge()
	}
	e.onBattery = true
	e.mode.startStep()
	e.dischargeCurrentLevel = level
	e.dischargeUnplugLevel = level
	e.lastDischargeStepLevel = level
	e.minDischargeStepLevel = level
	e.lastDischargeStepTime = noStepTime
	return reset
}

func (e *Estimator) setPluggedIn(level int) {
	if level < e.dischargeUnplugLevel {
		e.highDischargeAmountSinceCharge += e.dischargeUnplugLevel - level
	}
	e.onBattery = false
	e.dischargeCurrentLevel = level
	e.charge.Clear()
	e.lastChargeStepLevel = level
	e.maxChargeStepLevel = level
	e.lastChargeStepTime = noStepTime
	e.mode.startStep()
}

// TimeRemainingOnBattery estimates the time until the battery is empty. It
// returns Unknown while charging or before any discharge steps are recorded.
func (e *Estimator) TimeRemainingOnBattery() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.onBattery {
		return Unknown
	}
	return estimate(e.discharge.averageDurationMs(), e.currentLevel)
}

// TimeRemainingToFull estimates the time until the battery is full. It
// returns Unknown while on battery or before any charge steps are recorded.
func (e *Estimator) TimeRemainingToFull() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.onBattery {
		return Unknown
	}
	return estimate(e.charge.averageDurationMs(), 100-e.currentLevel)
}

func estimate(msPerLevel int64, levels int) time.Duration {
	if msPerLevel <= 0 {
		return Unknown
	}
	if levels <= 0 {
		return 0
	}
	if msPerLevel > math.MaxInt64/int64(time.Millisecond)/int64(levels) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(msPerLevel*int64(levels)) * time.Millisecond
}

// HighDischargeAmountSinceCharge returns how many percent the battery has
// dropped over all unplugged periods since the discharge history was last
// reset, including the current one.
func (e *Estimator) HighDischargeAmountSinceCharge() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.highDischargeAmountLocked()
}

func (e *Estimator) highDischargeAmountLocked() int {
	val := e.highDischargeAmountSinceCharge
	if e.onBattery && e.dischargeCurrentLevel < e.dischargeUnplugLevel {
		val += e.dischargeUnplugLevel - e.dischargeCurrentLevel
	}
	return val
}

// OnBattery reports whether the last observation was on battery.
func (e *Estimator) OnBattery() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.onBattery
}

// History returns a copy of the records for the given direction, newest first.
func (e *Estimator) History(d Direction) []StepRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	if d == Charge {
		return e.charge.Records()
	}
	return e.discharge.Records()
}
