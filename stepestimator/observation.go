package stepestimator

import (
	"fmt"
	"time"
)

// ChargeStatus is the charge status code reported with a battery observation.
type ChargeStatus int

const (
	StatusUnknown     ChargeStatus = 1
	StatusCharging    ChargeStatus = 2
	StatusDischarging ChargeStatus = 3
	StatusNotCharging ChargeStatus = 4
	StatusFull        ChargeStatus = 5
)

func (s ChargeStatus) String() string {
	switch s {
	case StatusUnknown:
		return "unknown"
	case StatusCharging:
		return "charging"
	case StatusDischarging:
		return "discharging"
	case StatusNotCharging:
		return "not-charging"
	case StatusFull:
		return "full"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// PlugType is the power source the battery is connected to.
type PlugType int

const (
	PlugNone     PlugType = 0
	PlugAC       PlugType = 1
	PlugUSB      PlugType = 2
	PlugWireless PlugType = 4
)

func (p PlugType) String() string {
	switch p {
	case PlugNone:
		return "none"
	case PlugAC:
		return "ac"
	case PlugUSB:
		return "usb"
	case PlugWireless:
		return "wireless"
	}
	return fmt.Sprintf("plug(%d)", int(p))
}

// ScreenState is the display state at the time of an observation.
type ScreenState int

const (
	ScreenUnknown     ScreenState = 0
	ScreenOff         ScreenState = 1
	ScreenOn          ScreenState = 2
	ScreenDoze        ScreenState = 3
	ScreenDozeSuspend ScreenState = 4
	ScreenVR          ScreenState = 5
	ScreenOnSuspend   ScreenState = 6
)

var screenStateNames = map[ScreenState]string{
	ScreenUnknown:     "unknown",
	ScreenOff:         "off",
	ScreenOn:          "on",
	ScreenDoze:        "doze",
	ScreenDozeSuspend: "doze-suspend",
	ScreenVR:          "vr",
	ScreenOnSuspend:   "on-suspend",
}

func (s ScreenState) String() string {
	if name, ok := screenStateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("screen(%d)", int(s))
}

// ParseScreenState converts a name such as "off" or "doze" to a ScreenState.
func ParseScreenState(name string) (ScreenState, error) {
	for state, n := range screenStateNames {
		if n == name {
			return state, nil
		}
	}
	return ScreenUnknown, fmt.Errorf("unknown screen state %q", name)
}

// Observation is a single battery state report. The screen state and power
// save flag are captured at the same moment as the level and plug state.
type Observation struct {
	Status    ChargeStatus
	Plug      PlugType
	Level     int
	Screen    ScreenState
	PowerSave bool

	// Uptime is time since boot, not counting suspend.
	Uptime time.Duration
	// ElapsedRealtime is time since boot including suspend. Step durations
	// are measured on this clock.
	ElapsedRealtime time.Duration
}

// OnBattery reports whether the observation was taken while discharging.
func (o Observation) OnBattery() bool {
	return o.Plug == PlugNone
}

func clampLevel(level int) int {
	if level < 0 {
		return 0
	}
	if level > 100 {
		return 100
	}
	return level
}
