package models

// SystemStatus drives the tower lamp pattern. Transitions are only ever made
// through the industrial system manager; terminal pass/fail states persist
// until the next test start and "cleared" states require an explicit clear.
type SystemStatus string

const (
	SystemIdle       SystemStatus = "SYSTEM_IDLE"
	SystemRunning    SystemStatus = "SYSTEM_RUNNING"
	TestPass         SystemStatus = "TEST_PASS"
	TestFail         SystemStatus = "TEST_FAIL"
	SystemError      SystemStatus = "SYSTEM_ERROR"
	TestErrorCleared SystemStatus = "TEST_ERROR_CLEARED"
	EmergencyStop    SystemStatus = "EMERGENCY_STOP"
	EmergencyCleared SystemStatus = "EMERGENCY_CLEARED"
	SafetyViolation  SystemStatus = "SAFETY_VIOLATION"
	SafetyCleared    SystemStatus = "SAFETY_CLEARED"
)

// LampState is the pattern applied to a single lamp channel.
type LampState string

const (
	LampOff       LampState = "off"
	LampOn        LampState = "on"
	LampBlinkSlow LampState = "blink_slow" // 2 s period: 1 s on / 1 s off
)

// BeepMode is the beeper pattern for a system status.
type BeepMode string

const (
	BeepOff        BeepMode = "off"
	BeepPulse      BeepMode = "pulse" // on for 1 s, then off
	BeepContinuous BeepMode = "continuous"
)
