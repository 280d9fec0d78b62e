package stepestimator

import (
	"strings"

	"github.com/TheCacophonyProject/go-utils/logging"
)

// Mode holds the operating mode bits attached to each step record.
type Mode uint8

const (
	// ModeScreenState holds the screen state minus one.
	ModeScreenState Mode = 0x03
	// ModePowerSave is set while power save mode is on.
	ModePowerSave Mode = 0x04
)

func (m Mode) String() string {
	parts := []string{"screen=" + ScreenState(m&ModeScreenState+1).String()}
	if m&ModePowerSave != 0 {
		parts = append(parts, "power-save")
	}
	return strings.Join(parts, ",")
}

// modeTracker follows the screen and power save inputs and keeps the mode at
// the start of the current step along with which bits changed since then.
type modeTracker struct {
	cur  Mode
	init Mode
	mod  Mode

	screen    ScreenState
	powerSave bool

	log *logging.Logger
}

// noteModeChange writes bits into the masked field of the current mode,
// marking the field as modified if it differs from what was there.
func (t *modeTracker) noteModeChange(mask, bits Mode) {
	if t.cur&mask == bits {
		return
	}
	t.mod |= (t.cur & mask) ^ bits
	t.cur = (t.cur &^ mask) | bits
}

func (t *modeTracker) noteScreenState(state ScreenState) {
	if t.screen == state {
		return
	}
	t.screen = state
	if state == ScreenUnknown {
		return
	}
	stepState := int(state) - 1
	if stepState < 0 || stepState >= 4 {
		t.log.Warnf("Unexpected screen state: %d", state)
		return
	}
	t.noteModeChange(ModeScreenState, Mode(stepState))
}

func (t *modeTracker) notePowerSave(enabled bool) {
	if t.powerSave == enabled {
		return
	}
	t.powerSave = enabled
	bits := Mode(0)
	if enabled {
		bits = ModePowerSave
	}
	t.noteModeChange(ModePowerSave, bits)
}

// startStep begins a new step in the current mode.
func (t *modeTracker) startStep() {
	t.init = t.cur
	t.mod = 0
}
