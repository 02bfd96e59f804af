package config

import "eol_station/internal/apperr"

// Contact types for safety sensor wiring.
const (
	ContactTypeA = "A" // normally open
	ContactTypeB = "B" // normally closed
)

// DigitalPin describes one digital-input sensor channel.
type DigitalPin struct {
	Name        string `mapstructure:"name"`
	Pin         int    `mapstructure:"pin"`
	ContactType string `mapstructure:"contact_type"` // "A" or "B"
	EdgeType    string `mapstructure:"edge_type"`    // "rising", "falling", "both"
}

func (p DigitalPin) validate(field string) error {
	if p.Pin < 0 {
		return apperr.Validation(field+".pin", p.Pin, "pin number cannot be negative")
	}
	if p.ContactType != ContactTypeA && p.ContactType != ContactTypeB {
		return apperr.Validation(field+".contact_type", p.ContactType, "contact type must be A or B")
	}
	switch p.EdgeType {
	case "rising", "falling", "both":
	default:
		return apperr.Validation(field+".edge_type", p.EdgeType, "edge type must be rising, falling or both")
	}
	return nil
}

// RobotChannels maps the positioner axis.
type RobotChannels struct {
	AxisID int `mapstructure:"axis_id"`
}

// DigitalChannels maps every digital output/input the core drives: brake
// release, the three lamp channels, beeper and the three safety sensors.
type DigitalChannels struct {
	BrakeRelease int `mapstructure:"brake_release"`
	LampRed      int `mapstructure:"lamp_red"`
	LampYellow   int `mapstructure:"lamp_yellow"`
	LampGreen    int `mapstructure:"lamp_green"`
	Beep         int `mapstructure:"beep"`

	DoorSensor  DigitalPin `mapstructure:"door_sensor"`
	ClampSensor DigitalPin `mapstructure:"clamp_sensor"`
	ChainSensor DigitalPin `mapstructure:"chain_sensor"`
}

// HardwareConfig is the static channel/axis map of the station. Loaded once
// via viper and read-only for the run.
type HardwareConfig struct {
	Robot     RobotChannels   `mapstructure:"robot"`
	DigitalIO DigitalChannels `mapstructure:"digital_io"`
}

// DefaultHardwareConfig mirrors the factory wiring of the station.
func DefaultHardwareConfig() HardwareConfig {
	return HardwareConfig{
		Robot: RobotChannels{AxisID: 0},
		DigitalIO: DigitalChannels{
			BrakeRelease: 0,
			LampRed:      4,
			LampYellow:   5,
			LampGreen:    6,
			Beep:         7,
			DoorSensor:   DigitalPin{Name: "door", Pin: 8, ContactType: ContactTypeB, EdgeType: "both"},
			ClampSensor:  DigitalPin{Name: "clamp", Pin: 9, ContactType: ContactTypeA, EdgeType: "both"},
			ChainSensor:  DigitalPin{Name: "chain", Pin: 10, ContactType: ContactTypeA, EdgeType: "both"},
		},
	}
}

// NewHardwareConfig validates cfg and returns it.
func NewHardwareConfig(cfg HardwareConfig) (HardwareConfig, error) {
	if cfg.Robot.AxisID < 0 {
		return HardwareConfig{}, apperr.Validation("robot.axis_id", cfg.Robot.AxisID, "axis id cannot be negative")
	}
	for _, ch := range []struct {
		name string
		pin  int
	}{
		{"digital_io.brake_release", cfg.DigitalIO.BrakeRelease},
		{"digital_io.lamp_red", cfg.DigitalIO.LampRed},
		{"digital_io.lamp_yellow", cfg.DigitalIO.LampYellow},
		{"digital_io.lamp_green", cfg.DigitalIO.LampGreen},
		{"digital_io.beep", cfg.DigitalIO.Beep},
	} {
		if ch.pin < 0 {
			return HardwareConfig{}, apperr.Validation(ch.name, ch.pin, "pin number cannot be negative")
		}
	}
	if err := cfg.DigitalIO.DoorSensor.validate("digital_io.door_sensor"); err != nil {
		return HardwareConfig{}, err
	}
	if err := cfg.DigitalIO.ClampSensor.validate("digital_io.clamp_sensor"); err != nil {
		return HardwareConfig{}, err
	}
	if err := cfg.DigitalIO.ChainSensor.validate("digital_io.chain_sensor"); err != nil {
		return HardwareConfig{}, err
	}
	return cfg, nil
}
