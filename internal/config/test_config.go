package config

import (
	"time"

	"eol_station/internal/apperr"
)

// TestConfiguration holds every parameter of one force-test run. Instances are
// validated at construction and treated as immutable; WithOverrides returns a
// new validated copy and never mutates the receiver.
type TestConfiguration struct {
	// Power setpoints and safety maxima.
	Voltage      float64 `mapstructure:"voltage"`       // V
	Current      float64 `mapstructure:"current"`       // A
	UpperCurrent float64 `mapstructure:"upper_current"` // A, sent as the supply current limit
	MaxVoltage   float64 `mapstructure:"max_voltage"`   // V, must exceed Voltage
	MaxCurrent   float64 `mapstructure:"max_current"`   // A, must exceed Current

	// Thermal setpoints.
	UpperTemperature      float64 `mapstructure:"upper_temperature"`      // °C, MCU guard limit
	MaxTemperature        float64 `mapstructure:"max_temperature"`        // °C, must exceed UpperTemperature
	ActivationTemperature float64 `mapstructure:"activation_temperature"` // °C, standby heating target
	StandbyTemperature    float64 `mapstructure:"standby_temperature"`    // °C, standby cooling target
	FanSpeed              int     `mapstructure:"fan_speed"`              // 0..10

	// Motion setpoints (positions in µm).
	InitialPosition   float64 `mapstructure:"initial_position"`
	OperatingPosition float64 `mapstructure:"operating_position"`
	MaxStroke         float64 `mapstructure:"max_stroke"`
	Velocity          float64 `mapstructure:"velocity"`
	Acceleration      float64 `mapstructure:"acceleration"`
	Deceleration      float64 `mapstructure:"deceleration"`

	// Test matrix.
	TemperatureList []float64 `mapstructure:"temperature_list"` // non-empty, all positive
	StrokePositions []float64 `mapstructure:"stroke_positions"` // non-empty, all non-negative
	RepeatCount     int       `mapstructure:"repeat_count"`     // >= 1

	// Verification.
	TemperatureTolerance float64 `mapstructure:"temperature_tolerance"` // °C

	// Timing.
	BootTimeout               time.Duration `mapstructure:"boot_timeout"`
	PowerCommandStabilization time.Duration `mapstructure:"power_command_stabilization"`
	PowerOnStabilization      time.Duration `mapstructure:"power_on_stabilization"`
	MCUCommandStabilization   time.Duration `mapstructure:"mcu_command_stabilization"`
	MCUBootStabilization      time.Duration `mapstructure:"mcu_boot_stabilization"`
	RobotMoveStabilization    time.Duration `mapstructure:"robot_move_stabilization"`
	RobotStandbyStabilization time.Duration `mapstructure:"robot_standby_stabilization"`
}

// DefaultTestConfiguration returns the stock station parameters. The result is
// valid; callers layer config-file or API overrides on top via WithOverrides.
func DefaultTestConfiguration() TestConfiguration {
	return TestConfiguration{
		Voltage:      18.0,
		Current:      20.0,
		UpperCurrent: 25.0,
		MaxVoltage:   30.0,
		MaxCurrent:   30.0,

		UpperTemperature:      80.0,
		MaxTemperature:        100.0,
		ActivationTemperature: 60.0,
		StandbyTemperature:    38.0,
		FanSpeed:              10,

		InitialPosition:   10.0,
		OperatingPosition: 240.0,
		MaxStroke:         240.0,
		Velocity:          100.0,
		Acceleration:      100.0,
		Deceleration:      100.0,

		TemperatureList: []float64{38, 40, 42, 44, 46, 48, 50, 52, 54, 56, 58, 60},
		StrokePositions: []float64{10, 60, 100, 140, 180, 220, 240},
		RepeatCount:     1,

		TemperatureTolerance: 1.0,

		BootTimeout:               60 * time.Second,
		PowerCommandStabilization: 500 * time.Millisecond,
		PowerOnStabilization:      2 * time.Second,
		MCUCommandStabilization:   100 * time.Millisecond,
		MCUBootStabilization:      2 * time.Second,
		RobotMoveStabilization:    100 * time.Millisecond,
		RobotStandbyStabilization: 1 * time.Second,
	}
}

// NewTestConfiguration validates cfg and returns it. The zero value is not
// valid; start from DefaultTestConfiguration or a loaded file.
func NewTestConfiguration(cfg TestConfiguration) (TestConfiguration, error) {
	if err := cfg.validate(); err != nil {
		return TestConfiguration{}, err
	}
	return cfg, nil
}

// TestOverrides carries optional per-run parameter replacements. Nil fields
// keep the base value.
type TestOverrides struct {
	Voltage              *float64  `json:"voltage,omitempty"`
	Current              *float64  `json:"current,omitempty"`
	TemperatureList      []float64 `json:"temperature_list,omitempty"`
	StrokePositions      []float64 `json:"stroke_positions,omitempty"`
	RepeatCount          *int      `json:"repeat_count,omitempty"`
	TemperatureTolerance *float64  `json:"temperature_tolerance,omitempty"`
}

// WithOverrides produces a new validated configuration; the receiver is left
// untouched even when validation fails.
func (c TestConfiguration) WithOverrides(o TestOverrides) (TestConfiguration, error) {
	out := c
	out.TemperatureList = append([]float64(nil), c.TemperatureList...)
	out.StrokePositions = append([]float64(nil), c.StrokePositions...)

	if o.Voltage != nil {
		out.Voltage = *o.Voltage
	}
	if o.Current != nil {
		out.Current = *o.Current
	}
	if len(o.TemperatureList) > 0 {
		out.TemperatureList = append([]float64(nil), o.TemperatureList...)
	}
	if len(o.StrokePositions) > 0 {
		out.StrokePositions = append([]float64(nil), o.StrokePositions...)
	}
	if o.RepeatCount != nil {
		out.RepeatCount = *o.RepeatCount
	}
	if o.TemperatureTolerance != nil {
		out.TemperatureTolerance = *o.TemperatureTolerance
	}
	return NewTestConfiguration(out)
}

func (c TestConfiguration) validate() error {
	if c.Voltage <= 0 {
		return apperr.Validation("voltage", c.Voltage, "voltage must be positive")
	}
	if c.Current <= 0 {
		return apperr.Validation("current", c.Current, "current must be positive")
	}
	if c.UpperCurrent <= 0 {
		return apperr.Validation("upper_current", c.UpperCurrent, "upper current must be positive")
	}
	if c.MaxVoltage <= c.Voltage {
		return apperr.Validation("max_voltage", c.MaxVoltage, "max voltage must exceed operating voltage")
	}
	if c.MaxCurrent <= c.Current {
		return apperr.Validation("max_current", c.MaxCurrent, "max current must exceed operating current")
	}
	if c.UpperTemperature <= 0 {
		return apperr.Validation("upper_temperature", c.UpperTemperature, "upper temperature must be positive")
	}
	if c.MaxTemperature <= c.UpperTemperature {
		return apperr.Validation("max_temperature", c.MaxTemperature, "max temperature must exceed upper temperature")
	}
	if c.ActivationTemperature <= 0 {
		return apperr.Validation("activation_temperature", c.ActivationTemperature, "activation temperature must be positive")
	}
	if c.StandbyTemperature <= 0 {
		return apperr.Validation("standby_temperature", c.StandbyTemperature, "standby temperature must be positive")
	}
	if c.FanSpeed < 0 || c.FanSpeed > 10 {
		return apperr.Validation("fan_speed", c.FanSpeed, "fan speed must be between 0 and 10")
	}
	if len(c.TemperatureList) == 0 {
		return apperr.Validation("temperature_list", c.TemperatureList, "temperature list cannot be empty")
	}
	for _, t := range c.TemperatureList {
		if t <= 0 {
			return apperr.Validation("temperature_list", t, "all temperatures must be positive")
		}
	}
	if len(c.StrokePositions) == 0 {
		return apperr.Validation("stroke_positions", c.StrokePositions, "stroke positions list cannot be empty")
	}
	for _, p := range c.StrokePositions {
		if p < 0 {
			return apperr.Validation("stroke_positions", p, "all stroke positions must be non-negative")
		}
	}
	if c.RepeatCount < 1 {
		return apperr.Validation("repeat_count", c.RepeatCount, "repeat count must be at least 1")
	}
	if c.TemperatureTolerance <= 0 {
		return apperr.Validation("temperature_tolerance", c.TemperatureTolerance, "temperature tolerance must be positive")
	}
	if c.InitialPosition < 0 {
		return apperr.Validation("initial_position", c.InitialPosition, "initial position cannot be negative")
	}
	if c.MaxStroke <= 0 {
		return apperr.Validation("max_stroke", c.MaxStroke, "max stroke must be positive")
	}
	if c.Velocity <= 0 {
		return apperr.Validation("velocity", c.Velocity, "velocity must be positive")
	}
	if c.Acceleration <= 0 {
		return apperr.Validation("acceleration", c.Acceleration, "acceleration must be positive")
	}
	if c.Deceleration <= 0 {
		return apperr.Validation("deceleration", c.Deceleration, "deceleration must be positive")
	}
	if c.BootTimeout <= 0 {
		return apperr.Validation("boot_timeout", c.BootTimeout, "boot timeout must be positive")
	}
	for _, d := range []struct {
		name  string
		value time.Duration
	}{
		{"power_command_stabilization", c.PowerCommandStabilization},
		{"power_on_stabilization", c.PowerOnStabilization},
		{"mcu_command_stabilization", c.MCUCommandStabilization},
		{"mcu_boot_stabilization", c.MCUBootStabilization},
		{"robot_move_stabilization", c.RobotMoveStabilization},
		{"robot_standby_stabilization", c.RobotStandbyStabilization},
	} {
		if d.value <= 0 {
			return apperr.Validation(d.name, d.value, d.name+" must be positive")
		}
	}
	return nil
}
