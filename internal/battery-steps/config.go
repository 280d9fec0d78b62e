package steps

import (
	"os"
	"path/filepath"
	"time"

	goconfig "github.com/TheCacophonyProject/go-config"
	"github.com/google/go-cmp/cmp"
	"github.com/rjeczalik/notify"
)

// Config holds the parts of the battery config the service acts on.
type Config struct {
	EnableDepletionEstimate bool
	DepletionWarningHours   float32
}

func ParseConfig(configDir string) (*Config, error) {
	conf, err := goconfig.New(configDir)
	if err != nil {
		return nil, err
	}

	battery := goconfig.DefaultBattery()
	if err := conf.Unmarshal(goconfig.BatteryKey, &battery); err != nil {
		return nil, err
	}

	return &Config{
		EnableDepletionEstimate: battery.EnableDepletionEstimate,
		DepletionWarningHours:   battery.DepletionWarningHours,
	}, nil
}

// DepletionWarning is the remaining time on battery below which a warning
// event is reported.
func (c *Config) DepletionWarning() time.Duration {
	return time.Duration(float64(c.DepletionWarningHours) * float64(time.Hour))
}

// checkConfigChanges exits when the battery config changes so systemd
// restarts the service with the new config.
func checkConfigChanges(conf *Config, configDir string) error {
	configFilePath := filepath.Join(configDir, goconfig.ConfigFileName)
	fsEvents := make(chan notify.EventInfo, 1)
	if err := notify.Watch(configFilePath, fsEvents, notify.InCloseWrite, notify.InMovedTo); err != nil {
		return err
	}
	defer notify.Stop(fsEvents)

	for {
		<-fsEvents
		newConfig, err := ParseConfig(configDir)
		if err != nil {
			log.Error("error reloading config:", err)
			continue
		}
		diff := cmp.Diff(conf, newConfig)
		if diff != "" {
			log.Debug("Config diff:", diff)
			log.Info("Config changed. Exiting to allow systemctl to restart service.")
			os.Exit(0)
		}
		log.Debug("No relevant changes detected in config file.")
	}
}
