package models

// SafetyViolationType identifies which safety condition failed.
type SafetyViolationType string

const (
	ViolationDoorOpen        SafetyViolationType = "DOOR_OPEN"
	ViolationClampNotEngaged SafetyViolationType = "CLAMP_NOT_ENGAGED"
	ViolationChainNotReady   SafetyViolationType = "CHAIN_NOT_READY"
	ViolationMultipleSensors SafetyViolationType = "MULTIPLE_SENSORS"
	ViolationEmergencyStop   SafetyViolationType = "EMERGENCY_STOP_ACTIVE"
)

// SafetyAlertLevel is the severity of a safety alert.
type SafetyAlertLevel string

const (
	AlertWarning   SafetyAlertLevel = "warning"
	AlertCritical  SafetyAlertLevel = "critical"
	AlertEmergency SafetyAlertLevel = "emergency"
)

// SafetyAlert describes one detected safety violation. Alerts are created
// fresh per violation and are never persisted.
type SafetyAlert struct {
	ViolationType   SafetyViolationType `json:"violation_type"`
	Level           SafetyAlertLevel    `json:"level"`
	Title           string              `json:"title"`
	Message         string              `json:"message"`
	LocalTitle      string              `json:"local_title,omitempty"`
	LocalMessage    string              `json:"local_message,omitempty"`
	AffectedSensors []string            `json:"affected_sensors"`
}
