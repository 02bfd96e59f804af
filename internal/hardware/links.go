package hardware

import "context"

// Link is the lifecycle every hardware device shares. Concrete drivers
// (serial/TCP codecs) live outside this module; the core consumes these
// interfaces only.
type Link interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	IsConnected() bool
}

// Robot is the motion controller for the positioner axis.
type Robot interface {
	Link
	EnableServo(ctx context.Context, axisID int) error
	HomeAxis(ctx context.Context, axisID int) error
	MoveAbsolute(ctx context.Context, axisID int, position, velocity, acceleration, deceleration float64) error
}

// MCU test modes.
const (
	TestModeNormal = 0
	TestMode1      = 1
)

// MCU drives the heater/cooler subsystem.
type MCU interface {
	Link
	WaitBootComplete(ctx context.Context) error
	SetTestMode(ctx context.Context, mode int) error
	SetUpperTemperature(ctx context.Context, temp float64) error
	SetFanSpeed(ctx context.Context, speed int) error
	SetOperatingTemperature(ctx context.Context, temp float64) error
	StartStandbyHeating(ctx context.Context, operatingTemp, standbyTemp float64) error
	StartStandbyCooling(ctx context.Context) error
	GetTemperature(ctx context.Context) (float64, error)
}

// Power is the programmable supply.
type Power interface {
	Link
	SetVoltage(ctx context.Context, voltage float64) error
	SetCurrent(ctx context.Context, current float64) error
	SetCurrentLimit(ctx context.Context, limit float64) error
	EnableOutput(ctx context.Context) error
	DisableOutput(ctx context.Context) error
}

// LoadCell reads force off the DUT.
type LoadCell interface {
	Link
	ReadPeakForce(ctx context.Context) (float64, error)
}

// DigitalIO owns the discrete channels: safety sensors, lamps, beeper, brake.
type DigitalIO interface {
	Link
	WriteOutput(ctx context.Context, channel int, on bool) error
	ReadInput(ctx context.Context, channel int) (bool, error)
	ResetAllOutputs(ctx context.Context) error
}

// Simulated marks a link implementation as a simulation. The facade skips the
// temperature verification retry loop for simulated MCUs; the bypass is
// explicit so tests can cover both paths.
type Simulated interface {
	Simulated() bool
}

// IsSimulated reports whether a link declares itself simulated.
func IsSimulated(link Link) bool {
	s, ok := link.(Simulated)
	return ok && s.Simulated()
}
