// This section is for listening to battery broadcasts over DBus.

package steps

import (
	"fmt"
	"math"

	"github.com/TheCacophonyProject/battery-steps/bootclock"
	"github.com/TheCacophonyProject/battery-steps/stepestimator"
	"github.com/godbus/dbus"
)

const batterySignalName = "org.cacophony.attiny.Battery"

// addBatterySignals listens for battery signals from the ATtiny service and
// sends an observation for each one.
func addBatterySignals(observations chan<- stepestimator.Observation, screen stepestimator.ScreenState, powerSave bool) error {
	conn, err := dbus.SystemBus()
	if err != nil {
		return fmt.Errorf("failed to connect to system bus: %w", err)
	}

	rule := "type='signal',interface='org.cacophony.attiny'"
	call := conn.BusObject().Call("org.freedesktop.DBus.AddMatch", 0, rule)
	if call.Err != nil {
		return fmt.Errorf("failed to add match rule: %w", call.Err)
	}

	c := make(chan *dbus.Signal, 10)
	conn.Signal(c)

	reader := &batterySignalReader{screen: screen, powerSave: powerSave}
	log.Infof("Listening for D-Bus signals: %s", batterySignalName)
	go func() {
		for signal := range c {
			if signal.Name != batterySignalName {
				continue
			}
			o, err := reader.observation(signal.Body)
			if err != nil {
				log.Errorf("Unexpected battery signal %v: %v", signal.Body, err)
				continue
			}
			o.Uptime, o.ElapsedRealtime, err = bootclock.Now()
			if err != nil {
				log.Error("Failed to read clock:", err)
				continue
			}
			log.Debugf("Battery signal: %+v", o)
			observations <- o
		}
	}()
	return nil
}

// chargeHysteresis is how many levels the battery has to rise above its
// lowest point before it is taken to be charging, or fall below its highest
// point before it is taken to be discharging again.
const chargeHysteresis = 2

// chargeInference guesses the plug state for battery signals that only carry
// the level, so a recharge still looks like one to the estimator.
type chargeInference struct {
	started  bool
	charging bool
	// Lowest level while discharging, highest while charging.
	extreme int
}

func (c *chargeInference) infer(o *stepestimator.Observation) {
	if !c.started {
		c.started = true
		c.extreme = o.Level
	}
	if c.charging {
		if o.Level > c.extreme {
			c.extreme = o.Level
		} else if o.Level <= c.extreme-chargeHysteresis {
			log.Debugf("Battery level fell from %d%% to %d%%, taking it as discharging", c.extreme, o.Level)
			c.charging = false
			c.extreme = o.Level
		}
	} else {
		if o.Level < c.extreme {
			c.extreme = o.Level
		} else if o.Level >= c.extreme+chargeHysteresis {
			log.Debugf("Battery level rose from %d%% to %d%%, taking it as charging", c.extreme, o.Level)
			c.charging = true
			c.extreme = o.Level
		}
	}

	if !c.charging {
		o.Status = stepestimator.StatusDischarging
		o.Plug = stepestimator.PlugNone
		return
	}
	o.Plug = stepestimator.PlugAC
	o.Status = stepestimator.StatusCharging
	if o.Level >= 100 {
		o.Status = stepestimator.StatusFull
	}
}

// batterySignalReader converts battery signal bodies into observations. It
// is not safe for concurrent use.
type batterySignalReader struct {
	// Battery signals don't carry these.
	screen    stepestimator.ScreenState
	powerSave bool

	charge chargeInference
}

// observation converts a battery signal body. The body is [voltage, percent]
// or [voltage, percent, status, plug]. Without the status and plug they are
// inferred from how the level moves.
func (r *batterySignalReader) observation(body []interface{}) (stepestimator.Observation, error) {
	if len(body) != 2 && len(body) != 4 {
		return stepestimator.Observation{}, fmt.Errorf("expected 2 or 4 values, got %d", len(body))
	}
	percent, ok := body[1].(float64)
	if !ok {
		return stepestimator.Observation{}, fmt.Errorf("percent is %T, not float64", body[1])
	}
	if math.IsNaN(percent) || math.IsInf(percent, 0) {
		return stepestimator.Observation{}, fmt.Errorf("percent is %v", percent)
	}
	o := stepestimator.Observation{
		Level:     levelFromPercent(percent),
		Screen:    r.screen,
		PowerSave: r.powerSave,
	}
	if len(body) == 2 {
		r.charge.infer(&o)
		return o, nil
	}
	status, ok := body[2].(int32)
	if !ok {
		return stepestimator.Observation{}, fmt.Errorf("status is %T, not int32", body[2])
	}
	plug, ok := body[3].(int32)
	if !ok {
		return stepestimator.Observation{}, fmt.Errorf("plug is %T, not int32", body[3])
	}
	o.Status = stepestimator.ChargeStatus(status)
	o.Plug = stepestimator.PlugType(plug)
	return o, nil
}

func levelFromPercent(percent float64) int {
	level := int(math.Round(percent))
	if level < 0 {
		return 0
	}
	if level > 100 {
		return 100
	}
	return level
}
