package models

// RobotState tracks the positioner between motion commands. Owned and mutated
// only by the hardware facade around its own motion calls.
type RobotState string

const (
	RobotUnknown             RobotState = "UNKNOWN"
	RobotHome                RobotState = "HOME"
	RobotMoving              RobotState = "MOVING"
	RobotInitialPosition     RobotState = "INITIAL_POSITION"
	RobotMeasurementPosition RobotState = "MEASUREMENT_POSITION"
	RobotMaxStroke           RobotState = "MAX_STROKE"
)
