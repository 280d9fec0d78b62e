package replay

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/TheCacophonyProject/battery-steps/stepestimator"
)

const csvHeader = "elapsed_ms"

// readObservations parses rows of elapsed_ms,status,plug,level,screen,power_save.
// The screen state can be a number or a name such as "off".
func readObservations(r io.Reader) ([]stepestimator.Observation, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.Comment = '#'
	reader.FieldsPerRecord = 6

	var observations []stepestimator.Observation
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV record: %w", err)
		}
		if strings.TrimSpace(record[0]) == csvHeader {
			continue
		}

		line, _ := reader.FieldPos(0)
		o, err := parseObservation(record)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		observations = append(observations, o)
	}
	return observations, nil
}

func parseObservation(record []string) (stepestimator.Observation, error) {
	var fields [4]int64
	names := [4]string{"elapsed_ms", "status", "plug", "level"}
	for i := range fields {
		v, err := strconv.ParseInt(strings.TrimSpace(record[i]), 10, 64)
		if err != nil {
			return stepestimator.Observation{}, fmt.Errorf("failed to parse %s: %w", names[i], err)
		}
		fields[i] = v
	}
	if fields[3] < 0 || fields[3] > 100 {
		return stepestimator.Observation{}, fmt.Errorf("level %d is out of range", fields[3])
	}

	screen, err := parseScreen(strings.TrimSpace(record[4]))
	if err != nil {
		return stepestimator.Observation{}, err
	}
	powerSave, err := strconv.ParseBool(strings.TrimSpace(record[5]))
	if err != nil {
		return stepestimator.Observation{}, fmt.Errorf("failed to parse power_save: %w", err)
	}

	elapsed := time.Duration(fields[0]) * time.Millisecond
	return stepestimator.Observation{
		Status:          stepestimator.ChargeStatus(fields[1]),
		Plug:            stepestimator.PlugType(fields[2]),
		Level:           int(fields[3]),
		Screen:          screen,
		PowerSave:       powerSave,
		Uptime:          elapsed,
		ElapsedRealtime: elapsed,
	}, nil
}

func parseScreen(s string) (stepestimator.ScreenState, error) {
	if n, err := strconv.Atoi(s); err == nil {
		return stepestimator.ScreenState(n), nil
	}
	return stepestimator.ParseScreenState(s)
}
