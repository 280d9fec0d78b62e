package main

import (
	"fmt"
	"os"

	steps "github.com/TheCacophonyProject/battery-steps/internal/battery-steps"
	replay "github.com/TheCacophonyProject/battery-steps/internal/step-replay"
	"github.com/TheCacophonyProject/go-utils/logging"
)

var log *logging.Logger

func main() {
	err := runMain()
	if err != nil {
		log.Fatal(err)
	}
}

var version = "<not set>"

func runMain() error {
	log = logging.NewLogger("info")
	if len(os.Args) < 2 {
		log.Info("Usage: battery-steps <service|replay|inspect> [args]")
		return fmt.Errorf("no subcommand given")
	}

	subcommand := os.Args[1]
	args := os.Args[2:]

	var err error
	switch subcommand {
	case "service":
		err = steps.Run(args, version)
	case "replay":
		err = replay.Run(args, version)
	case "inspect":
		err = replay.RunInspect(args, version)
	default:
		err = fmt.Errorf("unknown subcommand: %s", subcommand)
	}

	return err
}
