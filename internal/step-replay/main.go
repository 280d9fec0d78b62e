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
along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

package replay

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/TheCacophonyProject/battery-steps/stepestimator"
	"github.com/TheCacophonyProject/go-utils/logging"
	arg "github.com/alexflint/go-arg"
)

var (
	version = "No version provided"
	log     = logging.NewLogger("info")
)

type Args struct {
	CSV  string `arg:"--csv,required" help:"CSV file of observations: elapsed_ms,status,plug,level,screen,power_save"`
	Dump string `arg:"--dump" help:"write the final discharge and charge histories to this file"`
	logging.LogArgs
}

type InspectArgs struct {
	File string `arg:"positional,required" help:"history dump file to decode"`
	logging.LogArgs
}

func parseArgs(input []string, dest interface{}) error {
	parser, err := arg.NewParser(arg.Config{}, dest)
	if err != nil {
		return err
	}
	err = parser.Parse(input)
	if errors.Is(err, arg.ErrHelp) {
		parser.WriteHelp(os.Stdout)
		os.Exit(0)
	}
	if errors.Is(err, arg.ErrVersion) {
		fmt.Println(version)
		os.Exit(0)
	}
	return err
}

// Run replays a CSV of observations through an estimator, printing the
// estimates after each one.
func Run(inputArgs []string, ver string) error {
	version = ver
	var args Args
	if err := parseArgs(inputArgs, &args); err != nil {
		return fmt.Errorf("failed to parse args: %v", err)
	}
	log = logging.NewLogger(args.LogLevel)

	file, err := os.Open(args.CSV)
	if err != nil {
		return err
	}
	defer file.Close()
	observations, err := readObservations(file)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", args.CSV, err)
	}
	log.Debugf("Replaying %d observations", len(observations))

	e := replay(observations, os.Stdout)

	if args.Dump != "" {
		if err := writeDump(args.Dump, e); err != nil {
			return err
		}
		log.Info("Wrote step histories to ", args.Dump)
	}
	return nil
}

// RunInspect prints the records in a history dump file.
func RunInspect(inputArgs []string, ver string) error {
	version = ver
	var args InspectArgs
	if err := parseArgs(inputArgs, &args); err != nil {
		return fmt.Errorf("failed to parse args: %v", err)
	}
	log = logging.NewLogger(args.LogLevel)

	data, err := os.ReadFile(args.File)
	if err != nil {
		return err
	}
	return inspect(data, os.Stdout)
}

func replay(observations []stepestimator.Observation, w io.Writer) *stepestimator.Estimator {
	e := stepestimator.New(log)
	for _, o := range observations {
		u := e.Observe(o)
		if u.Transition != stepestimator.NoTransition {
			fmt.Fprintf(w, "%s: %s at %d%%\n", formatElapsed(o.ElapsedRealtime), u.Transition, o.Level)
		}
		if u.DiscardedSteps > 0 {
			fmt.Fprintf(w, "%s: discharge history reset, dropped %d steps\n", formatElapsed(o.ElapsedRealtime), u.DiscardedSteps)
		}
		direction := stepestimator.Charge
		if o.OnBattery() {
			direction = stepestimator.Discharge
		}
		fmt.Fprintf(w, "%s: level %d%%, %s, remaining %s, to full %s\n",
			formatElapsed(o.ElapsedRealtime), o.Level, direction,
			formatEstimate(e.TimeRemainingOnBattery()),
			formatEstimate(e.TimeRemainingToFull()))
	}
	fmt.Fprintf(w, "discharge steps: %d, charge steps: %d, discharged since charge: %d%%\n",
		len(e.History(stepestimator.Discharge)),
		len(e.History(stepestimator.Charge)),
		e.HighDischargeAmountSinceCharge())
	return e
}

func writeDump(path string, e *stepestimator.Estimator) error {
	data := stepestimator.EncodeHistory(stepestimator.Discharge, e.History(stepestimator.Discharge))
	data = append(data, stepestimator.EncodeHistory(stepestimator.Charge, e.History(stepestimator.Charge))...)
	return os.WriteFile(path, data, 0644)
}

func inspect(data []byte, w io.Writer) error {
	for len(data) > 0 {
		d, records, n, err := stepestimator.DecodeHistory(data)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s history, %d steps\n", d, len(records))
		for i, r := range records {
			fmt.Fprintf(w, "%4d  0x%016X  %s\n", i, r.Pack(), r)
		}
		data = data[n:]
	}
	return nil
}

func formatElapsed(d time.Duration) string {
	return d.Truncate(time.Second).String()
}

func formatEstimate(d time.Duration) string {
	if d == stepestimator.Unknown {
		return "unknown"
	}
	return d.Truncate(time.Second).String()
}
