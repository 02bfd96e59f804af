package industrial

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"eol_station/internal/config"
	"eol_station/internal/logger"
	"eol_station/internal/models"
)

// AlertSink receives operator-facing alert text. Implementations must not
// block; panics are contained by the evaluator.
type AlertSink func(title, message string, level models.SafetyAlertLevel)

// alertTemplate carries the bilingual text for one violation class.
type alertTemplate struct {
	level        models.SafetyAlertLevel
	title        string
	message      string
	localTitle   string
	localMessage string
}

var alertTemplates = map[models.SafetyViolationType]alertTemplate{
	models.ViolationDoorOpen: {
		level:        models.AlertCritical,
		title:        "Door Open",
		message:      "The safety door is open. Close the door before starting a test.",
		localTitle:   "도어 열림",
		localMessage: "안전 도어가 열려 있습니다. 시험 시작 전에 도어를 닫아 주세요.",
	},
	models.ViolationClampNotEngaged: {
		level:        models.AlertCritical,
		title:        "Clamp Not Engaged",
		message:      "The fixture clamp is not engaged. Engage the clamp before starting a test.",
		localTitle:   "클램프 미체결",
		localMessage: "지그 클램프가 체결되지 않았습니다. 시험 시작 전에 클램프를 체결해 주세요.",
	},
	models.ViolationChainNotReady: {
		level:        models.AlertCritical,
		title:        "Safety Chain Not Ready",
		message:      "The safety chain circuit is not ready. Check interlocks along the chain.",
		localTitle:   "안전 체인 미준비",
		localMessage: "안전 체인 회로가 준비되지 않았습니다. 체인 인터록을 확인해 주세요.",
	},
	models.ViolationMultipleSensors: {
		level:        models.AlertCritical,
		title:        "Multiple Safety Violations",
		message:      "More than one safety condition is violated: %s.",
		localTitle:   "다중 안전 위반",
		localMessage: "두 개 이상의 안전 조건이 위반되었습니다: %s.",
	},
	models.ViolationEmergencyStop: {
		level:        models.AlertEmergency,
		title:        "Emergency Stop",
		message:      "The emergency stop has been triggered. All motion and outputs are halted.",
		localTitle:   "비상 정지",
		localMessage: "비상 정지가 작동했습니다. 모든 동작과 출력이 정지되었습니다.",
	},
}

// SafetyEvaluator classifies raw sensor readings into safety alerts and fans
// the alerts out to the log, the operator sink and the tower lamp.
type SafetyEvaluator struct {
	lamp *TowerLamp
	sink AlertSink
	log  *logger.Logger
	pins config.DigitalChannels
}

func NewSafetyEvaluator(lamp *TowerLamp, sink AlertSink, pins config.DigitalChannels, log *logger.Logger) *SafetyEvaluator {
	return &SafetyEvaluator{lamp: lamp, sink: sink, pins: pins, log: log}
}

// sensorSafe resolves the raw electrical level of one pin to its logical
// "safe" state honoring the contact type: an A (normally open) contact reads
// true when safe, a B (normally closed) contact reads false when safe.
func sensorSafe(pin config.DigitalPin, raw bool) bool {
	if pin.ContactType == config.ContactTypeB {
		return !raw
	}
	return raw
}

// CheckSensors classifies the current raw input levels. It returns nil when
// every monitored condition is safe, otherwise the alert describing the
// violation. Two or more simultaneous violations collapse into a single
// multiple-sensors alert listing the affected sensors.
func (e *SafetyEvaluator) CheckSensors(raw map[int]bool) *models.SafetyAlert {
	type check struct {
		pin       config.DigitalPin
		violation models.SafetyViolationType
	}
	checks := []check{
		{e.pins.DoorSensor, models.ViolationDoorOpen},
		{e.pins.ClampSensor, models.ViolationClampNotEngaged},
		{e.pins.ChainSensor, models.ViolationChainNotReady},
	}

	var violated []check
	for _, c := range checks {
		if !sensorSafe(c.pin, raw[c.pin.Pin]) {
			violated = append(violated, c)
		}
	}

	switch len(violated) {
	case 0:
		return nil
	case 1:
		alert := e.buildAlert(violated[0].violation, []string{violated[0].pin.Name})
		return &alert
	default:
		names := make([]string, 0, len(violated))
		for _, c := range violated {
			names = append(names, c.pin.Name)
		}
		sort.Strings(names)
		alert := e.buildAlert(models.ViolationMultipleSensors, names)
		return &alert
	}
}

// EmergencyAlert builds the alert used when the hardware emergency stop fires.
func (e *SafetyEvaluator) EmergencyAlert() models.SafetyAlert {
	return e.buildAlert(models.ViolationEmergencyStop, nil)
}

func (e *SafetyEvaluator) buildAlert(v models.SafetyViolationType, sensors []string) models.SafetyAlert {
	tpl := alertTemplates[v]
	msg, localMsg := tpl.message, tpl.localMessage
	if v == models.ViolationMultipleSensors {
		joined := strings.Join(sensors, ", ")
		msg = fmt.Sprintf(tpl.message, joined)
		localMsg = fmt.Sprintf(tpl.localMessage, joined)
	}
	return models.SafetyAlert{
		ViolationType:   v,
		Level:           tpl.level,
		Title:           tpl.title,
		Message:         msg,
		LocalTitle:      tpl.localTitle,
		LocalMessage:    localMsg,
		AffectedSensors: sensors,
	}
}

// TriggerAlert fans the alert out: structured log entry, operator sink, then
// the tower lamp pattern matching the alert level. Every leg swallows its own
// failure so one broken consumer never hides the alert from the others.
func (e *SafetyEvaluator) TriggerAlert(ctx context.Context, alert models.SafetyAlert) {
	e.log.Warnw("safety_alert",
		"violation", alert.ViolationType,
		"level", alert.Level,
		"title", alert.Title,
		"sensors", alert.AffectedSensors,
	)

	if e.sink != nil {
		func() {
			defer func() {
				if r := recover(); r != nil {
					e.log.Errorw("safety_alert_sink_panic", "recovered", r)
				}
			}()
			e.sink(alert.Title, alert.Message, alert.Level)
		}()
	}

	if e.lamp != nil {
		status := statusForAlertLevel(alert.Level)
		if err := e.lamp.SetSystemStatus(ctx, status); err != nil {
			e.log.Errorw("safety_alert_lamp_failed", "status", status, "err", err)
		}
	}
}

// TriggerEmergencyStopAlert raises the emergency alert through the full
// fan-out path.
func (e *SafetyEvaluator) TriggerEmergencyStopAlert(ctx context.Context) {
	e.TriggerAlert(ctx, e.EmergencyAlert())
}

// statusForAlertLevel maps an alert level to the lamp pattern it drives.
func statusForAlertLevel(level models.SafetyAlertLevel) models.SystemStatus {
	switch level {
	case models.AlertEmergency:
		return models.EmergencyStop
	case models.AlertCritical:
		return models.SystemError
	default:
		return models.SafetyViolation
	}
}
