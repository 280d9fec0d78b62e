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
	"os"

	"github.com/TheCacophonyProject/battery-steps/stepestimator"
	goconfig "github.com/TheCacophonyProject/go-config"
	"github.com/TheCacophonyProject/go-utils/logging"
	arg "github.com/alexflint/go-arg"
)

var (
	version = "<not set>"
	log     = logging.NewLogger("info")
)

type Args struct {
	Screen    string `arg:"--screen" help:"screen state to report with battery signals (unknown, off, on, doze, doze-suspend)"`
	PowerSave bool   `arg:"--power-save" help:"report power save mode as on with battery signals"`
	goconfig.ConfigArgs
	logging.LogArgs
}

var defaultArgs = Args{
	Screen: "off",
}

func procArgs(input []string) (Args, error) {
	args := defaultArgs

	parser, err := arg.NewParser(arg.Config{}, &args)
	if err != nil {
		return Args{}, err
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
	return args, err
}

func Run(inputArgs []string, ver string) error {
	version = ver
	args, err := procArgs(inputArgs)
	if err != nil {
		return fmt.Errorf("failed to parse args: %v", err)
	}
	log = logging.NewLogger(args.LogLevel)

	log.Printf("Running version: %s", version)

	screen, err := stepestimator.ParseScreenState(args.Screen)
	if err != nil {
		return err
	}

	conf, err := ParseConfig(args.ConfigDir)
	if err != nil {
		return err
	}
	go func() {
		if err := checkConfigChanges(conf, args.ConfigDir); err != nil {
			log.Error("Failed to watch config file:", err)
		}
	}()

	if conf.EnableDepletionEstimate {
		log.Infof("Depletion warnings below %s remaining", conf.DepletionWarning())
	} else {
		log.Info("Depletion estimate disabled, no depletion events will be reported.")
	}

	s := newService(stepestimator.New(log), conf)
	s.screen = screen
	s.powerSave = args.PowerSave
	if err := startService(s); err != nil {
		return err
	}

	observations := make(chan stepestimator.Observation, 10)
	if err := addBatterySignals(observations, s.screen, s.powerSave); err != nil {
		return err
	}
	for o := range observations {
		s.observe(o)
	}
	return nil
}
