package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// LoadTestConfiguration layers the "test" section of the loaded config file
// over the defaults and validates the result.
func LoadTestConfiguration(v *viper.Viper) (TestConfiguration, error) {
	cfg := DefaultTestConfiguration()
	if sub := v.Sub("test"); sub != nil {
		if err := sub.Unmarshal(&cfg); err != nil {
			return TestConfiguration{}, fmt.Errorf("unmarshal test config: %w", err)
		}
	}
	return NewTestConfiguration(cfg)
}

// LoadHardwareConfig layers the "hardware" section over the factory wiring
// defaults and validates the result.
func LoadHardwareConfig(v *viper.Viper) (HardwareConfig, error) {
	cfg := DefaultHardwareConfig()
	if sub := v.Sub("hardware"); sub != nil {
		if err := sub.Unmarshal(&cfg); err != nil {
			return HardwareConfig{}, fmt.Errorf("unmarshal hardware config: %w", err)
		}
	}
	return NewHardwareConfig(cfg)
}

// MESSettings configures the optional MES notifier.
type MESSettings struct {
	Enabled       bool   `mapstructure:"enabled"`
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	TimeoutSec    int    `mapstructure:"timeout_sec"`
	RetryAttempts int    `mapstructure:"retry_attempts"`
	RetryDelaySec int    `mapstructure:"retry_delay_sec"`
}

// LoadMESSettings reads the "mes" section; the notifier defaults to disabled.
func LoadMESSettings(v *viper.Viper) (MESSettings, error) {
	s := MESSettings{TimeoutSec: 5, RetryAttempts: 3, RetryDelaySec: 1}
	if sub := v.Sub("mes"); sub != nil {
		if err := sub.Unmarshal(&s); err != nil {
			return MESSettings{}, fmt.Errorf("unmarshal mes settings: %w", err)
		}
	}
	return s, nil
}
