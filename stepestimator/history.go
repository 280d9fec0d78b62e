package stepestimator

import "time"

// MaxLevelSteps is the number of step records kept in each history.
const MaxLevelSteps = 200

// Direction selects the discharge or charge history.
type Direction int

const (
	Discharge Direction = iota
	Charge
)

func (d Direction) String() string {
	if d == Charge {
		return "charge"
	}
	return "discharge"
}

// StepHistory holds the most recent step records, newest first.
type StepHistory struct {
	steps [MaxLevelSteps]uint64
	count int
}

// Len returns the number of valid records.
func (h *StepHistory) Len() int {
	return h.count
}

// Clear drops all records.
func (h *StepHistory) Clear() {
	h.count = 0
}

// At returns the record at index i, where 0 is the most recent.
func (h *StepHistory) At(i int) StepRecord {
	return UnpackStepRecord(h.steps[i])
}

// Records returns a copy of the valid records, newest first.
func (h *StepHistory) Records() []StepRecord {
	records := make([]StepRecord, h.count)
	for i := range records {
		records[i] = h.At(i)
	}
	return records
}

func (h *StepHistory) push(packed uint64) {
	copy(h.steps[1:], h.steps[:len(h.steps)-1])
	h.steps[0] = packed
	if h.count < len(h.steps) {
		h.count++
	}
}

// addLevelSteps spreads elapsed over numSteps records. Each step takes the
// remaining time divided by the steps left, so integer truncation is carried
// forward rather than lost. Every record shares the level and mode bits of
// template.
func (h *StepHistory) addLevelSteps(numSteps int, elapsed time.Duration, template StepRecord) {
	if numSteps <= 0 {
		return
	}
	remaining := elapsed.Milliseconds()
	if remaining < 0 {
		remaining = 0
	}
	for i := 0; i < numSteps; i++ {
		share := remaining / int64(numSteps-i)
		remaining -= share
		r := template
		r.DurationMs = saturateDuration(uint64(share))
		h.push(r.Pack())
	}
}

// averageDurationMs returns the mean step duration, or -1 if empty.
func (h *StepHistory) averageDurationMs() int64 {
	if h.count <= 0 {
		return -1
	}
	var total uint64
	for i := 0; i < h.count; i++ {
		total += h.steps[i] & MaxStepDuration
	}
	return int64(total / uint64(h.count))
}
