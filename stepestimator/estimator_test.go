package stepestimator

import (
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/TheCacophonyProject/go-utils/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEstimator() *Estimator {
	return New(logging.NewLogger("error"))
}

func onBattery(level int, at time.Duration) Observation {
	return Observation{
		Status:          StatusDischarging,
		Plug:            PlugNone,
		Level:           level,
		Screen:          ScreenOff,
		Uptime:          at,
		ElapsedRealtime: at,
	}
}

func pluggedIn(level int, at time.Duration) Observation {
	return Observation{
		Status:          StatusCharging,
		Plug:            PlugAC,
		Level:           level,
		Screen:          ScreenOff,
		Uptime:          at,
		ElapsedRealtime: at,
	}
}

func TestDischargeCrossingAfterBaseline(t *testing.T) {
	e := newTestEstimator()

	u := e.Observe(onBattery(100, 0))
	assert.Equal(t, Unplugged, u.Transition)

	// Last step level is 100 with a known step time.
	e.lastDischargeStepTime = 0

	u = e.Observe(onBattery(95, 5*time.Second))
	assert.Equal(t, 5, u.DischargeSteps)

	history := e.History(Discharge)
	require.Len(t, history, 5)
	for _, r := range history {
		assert.Equal(t, uint64(1000), r.DurationMs)
		assert.Equal(t, uint8(95), r.Level)
	}
}

func TestFirstCrossingAfterUnplugIsNotTimed(t *testing.T) {
	e := newTestEstimator()
	e.Observe(onBattery(100, 0))

	u := e.Observe(onBattery(99, time.Second))
	assert.Equal(t, 0, u.DischargeSteps)
	assert.Empty(t, e.History(Discharge))
	assert.Equal(t, Unknown, e.TimeRemainingOnBattery())

	u = e.Observe(onBattery(94, 6*time.Second))
	assert.Equal(t, 5, u.DischargeSteps)
	require.Len(t, e.History(Discharge), 5)
	assert.Equal(t, 94*time.Second, e.TimeRemainingOnBattery())
}

func TestLevelRisingOnBatteryIsIgnored(t *testing.T) {
	e := newTestEstimator()
	e.Observe(onBattery(80, 0))
	e.Observe(onBattery(79, time.Second))
	e.Observe(onBattery(78, 2*time.Second))
	require.Len(t, e.History(Discharge), 1)

	// Noisy reading back up, then down to the same minimum again.
	e.Observe(onBattery(79, 3*time.Second))
	e.Observe(onBattery(78, 4*time.Second))
	assert.Len(t, e.History(Discharge), 1)

	e.Observe(onBattery(77, 10*time.Second))
	history := e.History(Discharge)
	require.Len(t, history, 2)
	assert.Equal(t, uint64(8000), history[0].DurationMs)
}

func TestOutOfRangeLevelsAreClamped(t *testing.T) {
	e := newTestEstimator()
	e.Observe(onBattery(10, 0))
	e.Observe(onBattery(5, time.Minute))

	u := e.Observe(onBattery(-5, 2*time.Minute))
	assert.Equal(t, 5, u.DischargeSteps)
	records := e.History(Discharge)
	require.Len(t, records, 5)
	for _, r := range records {
		assert.Equal(t, uint8(0), r.Level)
		assert.Equal(t, uint64(12000), r.DurationMs)
	}
	assert.Equal(t, time.Duration(0), e.TimeRemainingOnBattery())

	e.Observe(pluggedIn(95, 3*time.Minute))
	e.Observe(pluggedIn(96, 4*time.Minute))
	u = e.Observe(pluggedIn(150, 8*time.Minute))
	assert.Equal(t, 4, u.ChargeSteps)
	records = e.History(Charge)
	require.Len(t, records, 4)
	assert.Equal(t, uint8(100), records[0].Level)
	assert.Equal(t, time.Duration(0), e.TimeRemainingToFull())
}

func TestTimeRemainingOnBatteryWithoutHistory(t *testing.T) {
	e := newTestEstimator()
	e.Observe(onBattery(70, 0))
	assert.True(t, e.OnBattery())
	assert.Equal(t, 0, len(e.History(Discharge)))
	assert.Equal(t, Unknown, e.TimeRemainingOnBattery())
}

func TestTimeRemainingToFull(t *testing.T) {
	e := newTestEstimator()
	e.Observe(pluggedIn(50, 0))
	e.Observe(pluggedIn(51, time.Minute))
	u := e.Observe(pluggedIn(53, 3*time.Minute))
	assert.Equal(t, 2, u.ChargeSteps)

	assert.False(t, e.OnBattery())
	assert.Equal(t, 47*time.Minute, e.TimeRemainingToFull())
	assert.Equal(t, Unknown, e.TimeRemainingOnBattery())
}

func TestEstimatesRespectDirection(t *testing.T) {
	e := newTestEstimator()
	e.Observe(onBattery(60, 0))
	e.Observe(onBattery(59, time.Minute))
	e.Observe(onBattery(58, 2*time.Minute))
	assert.Equal(t, 58*time.Minute, e.TimeRemainingOnBattery())
	assert.Equal(t, Unknown, e.TimeRemainingToFull())

	e.Observe(pluggedIn(58, 3*time.Minute))
	assert.Equal(t, Unknown, e.TimeRemainingOnBattery(), "discharge history is kept but not used while charging")
	assert.Equal(t, Unknown, e.TimeRemainingToFull(), "charge history was cleared when plugged in")
	assert.Len(t, e.History(Discharge), 1)
}

func TestPlugInAccumulatesDischarge(t *testing.T) {
	e := newTestEstimator()
	e.Observe(onBattery(50, 0))
	e.Observe(onBattery(45, time.Hour))
	assert.Equal(t, 5, e.HighDischargeAmountSinceCharge(), "live drop while on battery")

	u := e.Observe(pluggedIn(45, 2*time.Hour))
	assert.Equal(t, PluggedIn, u.Transition)
	assert.Equal(t, 5, e.HighDischargeAmountSinceCharge())
	assert.Equal(t, 5, e.highDischargeAmountSinceCharge)

	// Next unplug, the live drop is added on top of the accumulated amount.
	e.Observe(onBattery(60, 3*time.Hour))
	e.Observe(onBattery(52, 4*time.Hour))
	assert.Equal(t, 13, e.HighDischargeAmountSinceCharge())
}

func TestUnplugResetPolicy(t *testing.T) {
	// prepare leaves the estimator plugged in at level with discharge history
	// recorded from 70 down to 60 and the last plugged status given.
	prepare := func(t *testing.T, level int, status ChargeStatus) *Estimator {
		e := newTestEstimator()
		e.Observe(onBattery(70, 0))
		e.Observe(onBattery(69, time.Minute))
		e.Observe(onBattery(60, 10*time.Minute))
		require.Len(t, e.History(Discharge), 9)
		e.Observe(pluggedIn(60, 11*time.Minute))
		o := pluggedIn(level, 12*time.Minute)
		o.Status = status
		e.Observe(o)
		return e
	}

	tests := []struct {
		name      string
		level     int
		status    ChargeStatus
		unplugAt  int
		expectCut bool
	}{
		{"previously full", 60, StatusFull, 60, true},
		{"unplugged at 90", 90, StatusCharging, 90, true},
		{"unplugged at 89", 89, StatusCharging, 89, false},
		{"ordinary top up", 75, StatusCharging, 75, false},
		{"not charging", 60, StatusNotCharging, 60, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e := prepare(t, tc.level, tc.status)
			u := e.Observe(onBattery(tc.unplugAt, time.Hour))
			assert.Equal(t, Unplugged, u.Transition)
			assert.Equal(t, tc.expectCut, u.HistoryReset)
			assert.Equal(t, tc.status, u.PreviousStatus)
			if tc.expectCut {
				assert.Equal(t, 9, u.DiscardedSteps)
				assert.Empty(t, e.History(Discharge))
				assert.Equal(t, 0, e.HighDischargeAmountSinceCharge())
			} else {
				assert.Equal(t, 0, u.DiscardedSteps)
				assert.Len(t, e.History(Discharge), 9)
				assert.Equal(t, 10, e.HighDischargeAmountSinceCharge())
			}
		})
	}
}

func TestUnplugResetOnImplausibleJump(t *testing.T) {
	e := newTestEstimator()
	e.Observe(onBattery(50, 0))
	e.Observe(onBattery(49, time.Minute))
	e.Observe(onBattery(15, time.Hour))
	require.NotEmpty(t, e.History(Discharge))

	e.Observe(pluggedIn(15, 2*time.Hour))
	e.Observe(pluggedIn(85, 3*time.Hour))
	u := e.Observe(onBattery(85, 4*time.Hour))
	assert.True(t, u.HistoryReset)
	assert.Empty(t, e.History(Discharge))
}

func TestUnplugWithoutJumpKeepsHistory(t *testing.T) {
	e := newTestEstimator()
	e.Observe(onBattery(50, 0))
	e.Observe(onBattery(49, time.Minute))
	e.Observe(onBattery(15, time.Hour))
	count := len(e.History(Discharge))

	e.Observe(pluggedIn(15, 2*time.Hour))
	e.Observe(pluggedIn(70, 3*time.Hour))
	u := e.Observe(onBattery(70, 4*time.Hour))
	assert.False(t, u.HistoryReset)
	assert.Len(t, e.History(Discharge), count)
}

func TestUnplugResetAfterLargeCumulativeDischarge(t *testing.T) {
	e := newTestEstimator()
	at := time.Duration(0)
	next := func() time.Duration {
		at += time.Minute
		return at
	}

	for cycle := 1; cycle <= 5; cycle++ {
		u := e.Observe(onBattery(80, next()))
		switch {
		case cycle == 1:
			// Coming from the zero level start state looks like a jump.
			assert.True(t, u.HistoryReset)
		case cycle < 5:
			assert.False(t, u.HistoryReset, "cycle %d", cycle)
		default:
			assert.True(t, u.HistoryReset, "cycle %d", cycle)
			assert.Equal(t, 0, e.HighDischargeAmountSinceCharge())
			return
		}
		e.Observe(onBattery(79, next()))
		e.Observe(onBattery(20, next()))
		e.Observe(pluggedIn(20, next()))
		assert.Equal(t, 60*cycle, e.HighDischargeAmountSinceCharge())
		e.Observe(pluggedIn(80, next()))
	}
}

func TestStepRecordsCarryModeBits(t *testing.T) {
	e := newTestEstimator()
	o := onBattery(80, 0)
	o.Screen = ScreenOn
	e.Observe(o)

	o = onBattery(79, time.Second)
	o.Screen = ScreenOn
	e.Observe(o)

	o = onBattery(79, 2*time.Second)
	o.Screen = ScreenOn
	o.PowerSave = true
	e.Observe(o)

	o = onBattery(78, 3*time.Second)
	o.Screen = ScreenOn
	o.PowerSave = true
	e.Observe(o)

	history := e.History(Discharge)
	require.Len(t, history, 1)
	assert.Equal(t, StepRecord{
		DurationMs:   2000,
		Level:        78,
		InitialMode:  0x01,
		ModifiedMode: ModePowerSave,
	}, history[0])

	o = onBattery(77, 4*time.Second)
	o.Screen = ScreenOn
	o.PowerSave = true
	e.Observe(o)
	history = e.History(Discharge)
	require.Len(t, history, 2)
	assert.Equal(t, Mode(0x05), history[0].InitialMode)
	assert.Equal(t, Mode(0), history[0].ModifiedMode)
}

func TestHistoriesStayBounded(t *testing.T) {
	e := newTestEstimator()
	rng := rand.New(rand.NewSource(1))
	at := time.Duration(0)
	level := 100
	for i := 0; i < 20000; i++ {
		at += time.Duration(rng.Int63n(int64(10 * time.Hour)))
		if i == 10000 {
			// Longer than a step record can hold.
			at += time.Duration(1<<41) * time.Millisecond
		}
		level += rng.Intn(11) - 5
		if level < 0 {
			level = 0
		}
		if level > 100 {
			level = 100
		}
		o := onBattery(level, at)
		if rng.Intn(20) == 0 {
			o = pluggedIn(level, at)
		}
		if rng.Intn(10) == 0 {
			o.Status = StatusFull
		}
		e.Observe(o)

		for _, d := range []Direction{Discharge, Charge} {
			history := e.History(d)
			require.LessOrEqual(t, len(history), MaxLevelSteps)
			for _, r := range history {
				require.LessOrEqual(t, r.DurationMs, MaxStepDuration)
			}
		}
		if e.OnBattery() {
			require.Equal(t, Unknown, e.TimeRemainingToFull())
		} else {
			require.Equal(t, Unknown, e.TimeRemainingOnBattery())
		}
	}
}

func TestConcurrentObserveAndQuery(t *testing.T) {
	e := newTestEstimator()
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				at := time.Duration(w*1000+i) * time.Second
				e.Observe(onBattery(100-i%100, at))
			}
		}(w)
	}
	for r := 0; r < 2; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				e.TimeRemainingOnBattery()
				e.TimeRemainingToFull()
				e.HighDischargeAmountSinceCharge()
				assert.LessOrEqual(t, len(e.History(Discharge)), MaxLevelSteps)
			}
		}()
	}
	wg.Wait()
}

func TestEstimateSaturates(t *testing.T) {
	assert.Equal(t, Unknown, estimate(0, 50))
	assert.Equal(t, Unknown, estimate(-1, 50))
	assert.Equal(t, time.Duration(0), estimate(1000, 0))
	assert.Equal(t, 50*time.Second, estimate(1000, 50))
	assert.Equal(t, time.Duration(1<<63-1), estimate(int64(MaxStepDuration), 100))
}
