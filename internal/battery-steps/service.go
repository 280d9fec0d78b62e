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

package steps

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/TheCacophonyProject/battery-steps/bootclock"
	"github.com/TheCacophonyProject/battery-steps/stepestimator"
	"github.com/godbus/dbus"
	"github.com/godbus/dbus/introspect"
)

const (
	dbusName = "org.cacophony.BatterySteps"
	dbusPath = "/org/cacophony/BatterySteps"
)

type service struct {
	estimator *stepestimator.Estimator

	mu     sync.Mutex
	warner depletionWarner

	// Reported along with battery signals, which don't carry them.
	screen    stepestimator.ScreenState
	powerSave bool
}

func newService(e *stepestimator.Estimator, conf *Config) *service {
	return &service{
		estimator: e,
		warner: depletionWarner{
			enabled:   conf.EnableDepletionEstimate,
			threshold: conf.DepletionWarning(),
		},
		screen: stepestimator.ScreenOff,
	}
}

func startService(s *service) error {
	log.Info("Starting battery steps service")
	conn, err := dbus.SystemBus()
	if err != nil {
		return err
	}
	reply, err := conn.RequestName(dbusName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return err
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return errors.New("name already taken")
	}

	conn.Export(s, dbusPath, dbusName)
	conn.Export(genIntrospectable(s), dbusPath, "org.freedesktop.DBus.Introspectable")
	return nil
}

// observe feeds an observation to the estimator and reports any events it
// causes.
func (s *service) observe(o stepestimator.Observation) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u := s.estimator.Observe(o)
	switch u.Transition {
	case stepestimator.Unplugged:
		log.Infof("Unplugged at %d%%", o.Level)
	case stepestimator.PluggedIn:
		log.Infof("Plugged in (%s) at %d%%, discharged %d%% since last full charge",
			o.Plug, o.Level, s.estimator.HighDischargeAmountSinceCharge())
	}
	if u.DiscardedSteps > 0 {
		log.Infof("Discharge step history reset, dropped %d steps", u.DiscardedSteps)
		reportEvent(historyResetEvent(o, u))
	}
	if u.DischargeSteps > 0 || u.ChargeSteps > 0 {
		log.Debugf("Level %d%%, %d discharge steps, %d charge steps, remaining %s, to full %s",
			o.Level, u.DischargeSteps, u.ChargeSteps,
			durationStr(s.estimator.TimeRemainingOnBattery()),
			durationStr(s.estimator.TimeRemainingToFull()))
	}

	remaining := s.estimator.TimeRemainingOnBattery()
	if s.warner.check(s.estimator.OnBattery(), remaining) {
		log.Infof("Battery estimated to be depleted in %s", durationStr(remaining))
		reportEvent(depletionEvent(o, remaining))
	}
}

// Observe is called over D-Bus by anything that knows the full battery
// state, including the plug type.
func (s *service) Observe(status, plug, level, screen int32, powerSave bool) *dbus.Error {
	if level < 0 || level > 100 {
		return dbusErr(fmt.Errorf("invalid battery level %d", level))
	}
	uptime, elapsed, err := bootclock.Now()
	if err != nil {
		return dbusErr(err)
	}
	s.observe(stepestimator.Observation{
		Status:          stepestimator.ChargeStatus(status),
		Plug:            stepestimator.PlugType(plug),
		Level:           int(level),
		Screen:          stepestimator.ScreenState(screen),
		PowerSave:       powerSave,
		Uptime:          uptime,
		ElapsedRealtime: elapsed,
	})
	return nil
}

// TimeRemainingOnBattery returns the estimated milliseconds until the battery
// is empty, or -1 if unknown.
func (s *service) TimeRemainingOnBattery() (int64, *dbus.Error) {
	return durationToMs(s.estimator.TimeRemainingOnBattery()), nil
}

// TimeRemainingToFull returns the estimated milliseconds until the battery is
// full, or -1 if unknown.
func (s *service) TimeRemainingToFull() (int64, *dbus.Error) {
	return durationToMs(s.estimator.TimeRemainingToFull()), nil
}

func (s *service) HighDischargeAmountSinceCharge() (int32, *dbus.Error) {
	return int32(s.estimator.HighDischargeAmountSinceCharge()), nil
}

// HistoryFrame returns the encoded step history. 0 for discharge, 1 for charge.
func (s *service) HistoryFrame(direction int32) ([]byte, *dbus.Error) {
	d := stepestimator.Direction(direction)
	if d != stepestimator.Discharge && d != stepestimator.Charge {
		return nil, dbusErr(fmt.Errorf("invalid direction %d", direction))
	}
	return stepestimator.EncodeHistory(d, s.estimator.History(d)), nil
}

func durationToMs(d time.Duration) int64 {
	if d == stepestimator.Unknown {
		return -1
	}
	return d.Milliseconds()
}

func durationStr(d time.Duration) string {
	if d == stepestimator.Unknown {
		return "unknown"
	}
	return d.Truncate(time.Second).String()
}

func genIntrospectable(v interface{}) introspect.Introspectable {
	node := &introspect.Node{
		Interfaces: []introspect.Interface{{
			Name:    dbusName,
			Methods: introspect.Methods(v),
		}},
	}
	return introspect.NewIntrospectable(node)
}

func dbusErr(err error) *dbus.Error {
	if err == nil {
		return nil
	}
	return &dbus.Error{
		Name: dbusName + "." + getCallerName(),
		Body: []interface{}{err.Error()},
	}
}

func getCallerName() string {
	fpcs := make([]uintptr, 1)
	n := runtime.Callers(3, fpcs)
	if n == 0 {
		return ""
	}
	caller := runtime.FuncForPC(fpcs[0] - 1)
	if caller == nil {
		return ""
	}
	funcNames := strings.Split(caller.Name(), ".")
	return funcNames[len(funcNames)-1]
}
