package steps

import (
	"time"

	"github.com/TheCacophonyProject/battery-steps/stepestimator"
	"github.com/TheCacophonyProject/event-reporter/v3/eventclient"
)

const (
	depletionWarningEventType = "batteryDepletionWarning"
	historyResetEventType     = "batteryStepHistoryReset"
)

var addEvent = eventclient.AddEvent

// depletionWarner decides when to warn about the battery running out. It
// warns once when the estimate drops below the threshold and re-arms when the
// estimate recovers or the battery is charged.
type depletionWarner struct {
	enabled   bool
	threshold time.Duration
	warned    bool
}

func (w *depletionWarner) check(onBattery bool, remaining time.Duration) bool {
	if !onBattery {
		w.warned = false
		return false
	}
	if remaining == stepestimator.Unknown {
		return false
	}
	if remaining >= w.threshold {
		w.warned = false
		return false
	}
	if w.warned || !w.enabled {
		return false
	}
	w.warned = true
	return true
}

func depletionEvent(o stepestimator.Observation, remaining time.Duration) eventclient.Event {
	return eventclient.Event{
		Timestamp: time.Now(),
		Type:      depletionWarningEventType,
		Details: map[string]interface{}{
			"hoursRemaining": remaining.Hours(),
			"level":          o.Level,
		},
	}
}

func historyResetEvent(o stepestimator.Observation, u stepestimator.Update) eventclient.Event {
	return eventclient.Event{
		Timestamp: time.Now(),
		Type:      historyResetEventType,
		Details: map[string]interface{}{
			"level":          o.Level,
			"previousStatus": u.PreviousStatus.String(),
			"droppedSteps":   u.DiscardedSteps,
		},
	}
}

func reportEvent(event eventclient.Event) {
	log.Println("Reporting", event.Type)
	if err := addEvent(event); err != nil {
		log.Errorf("Failed to report %s event: %v", event.Type, err)
	}
}
