package industrial

import (
	"context"
	"sync"

	"eol_station/internal/apperr"
	"eol_station/internal/config"
	"eol_station/internal/hardware"
	"eol_station/internal/logger"
	"eol_station/internal/models"
)

// StatusObserver is notified after every accepted status transition.
// Observers run synchronously but isolated: a panicking observer is logged
// and never prevents the remaining observers from running.
type StatusObserver func(status models.SystemStatus)

// SystemManager owns the station-wide status, the tower lamp and the safety
// evaluation loop. Construction is cheap; Init performs the hardware-touching
// setup exactly once, and every public operation calls it first.
type SystemManager struct {
	dio   hardware.DigitalIO
	hwCfg config.HardwareConfig
	sink  AlertSink
	log   *logger.Logger

	initOnce sync.Once
	initErr  error

	lamp      *TowerLamp
	evaluator *SafetyEvaluator

	mu            sync.Mutex
	status        models.SystemStatus
	lastViolation models.SafetyViolationType
	lastAlert     *models.SafetyAlert
	observers     []StatusObserver
}

func NewSystemManager(dio hardware.DigitalIO, hwCfg config.HardwareConfig, sink AlertSink, log *logger.Logger) *SystemManager {
	return &SystemManager{
		dio:    dio,
		hwCfg:  hwCfg,
		sink:   sink,
		log:    log,
		status: models.SystemIdle,
	}
}

// Init connects the digital IO module and starts the lamp actor. It is safe
// to call from any goroutine; only the first call does work, later calls
// return the recorded outcome.
func (m *SystemManager) Init(ctx context.Context) error {
	m.initOnce.Do(func() {
		if !m.dio.IsConnected() {
			if err := m.dio.Connect(ctx); err != nil {
				m.initErr = apperr.Connection("digital io connect failed", err, nil)
				return
			}
		}
		if err := m.dio.ResetAllOutputs(ctx); err != nil {
			m.initErr = apperr.Operation("initial output reset failed", err, nil)
			return
		}
		m.lamp = NewTowerLamp(m.dio, m.hwCfg.DigitalIO, m.log)
		m.lamp.Start()
		m.evaluator = NewSafetyEvaluator(m.lamp, m.sink, m.hwCfg.DigitalIO, m.log)
		m.log.Infow("system_manager_initialized")
	})
	return m.initErr
}

// InitializeSystem brings the station into the idle state: runs Init and
// applies the idle lamp pattern.
func (m *SystemManager) InitializeSystem(ctx context.Context) error {
	if err := m.Init(ctx); err != nil {
		return err
	}
	return m.SetSystemStatus(ctx, models.SystemIdle)
}

// CurrentStatus returns the last accepted system status.
func (m *SystemManager) CurrentStatus() models.SystemStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// LastAlert returns the most recent safety alert, or nil when the station is
// safe or the last violation has been cleared.
func (m *SystemManager) LastAlert() *models.SafetyAlert {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lastAlert == nil {
		return nil
	}
	alert := *m.lastAlert
	return &alert
}

// RegisterStatusObserver adds a callback invoked on every status transition.
func (m *SystemManager) RegisterStatusObserver(obs StatusObserver) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, obs)
}

// SetSystemStatus records the new status, drives the tower lamp and notifies
// the observers. Lamp failures are logged but do not block the transition.
func (m *SystemManager) SetSystemStatus(ctx context.Context, status models.SystemStatus) error {
	if err := m.Init(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	m.status = status
	observers := make([]StatusObserver, len(m.observers))
	copy(observers, m.observers)
	m.mu.Unlock()

	m.log.Infow("system_status", "status", status)
	if err := m.lamp.SetSystemStatus(ctx, status); err != nil {
		m.log.Errorw("lamp_status_failed", "status", status, "err", err)
	}

	for _, obs := range observers {
		m.notify(obs, status)
	}
	return nil
}

func (m *SystemManager) notify(obs StatusObserver, status models.SystemStatus) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Errorw("status_observer_panic", "status", status, "recovered", r)
		}
	}()
	obs(status)
}

// CheckSafetyConditions samples the safety sensors and classifies the result.
// It returns true when every condition is safe. Repeated detections of the
// same violation type do not re-raise the alert; a changed violation type
// does. A violation latches the status matching its alert level; returning to
// a safe state reverts only SAFETY_VIOLATION to SYSTEM_IDLE — latched error
// and emergency states need an explicit clear.
func (m *SystemManager) CheckSafetyConditions(ctx context.Context) (bool, error) {
	if err := m.Init(ctx); err != nil {
		return false, err
	}

	raw, err := m.readSensors(ctx)
	if err != nil {
		return false, err
	}

	alert := m.evaluator.CheckSensors(raw)
	if alert == nil {
		m.mu.Lock()
		hadViolation := m.lastViolation != ""
		m.lastViolation = ""
		m.lastAlert = nil
		current := m.status
		m.mu.Unlock()
		if hadViolation && current == models.SafetyViolation {
			if err := m.SetSystemStatus(ctx, models.SystemIdle); err != nil {
				return true, err
			}
		}
		return true, nil
	}

	m.mu.Lock()
	repeat := alert.ViolationType == m.lastViolation
	m.lastViolation = alert.ViolationType
	m.lastAlert = alert
	m.mu.Unlock()

	if repeat {
		return false, nil
	}

	m.evaluator.TriggerAlert(ctx, *alert)
	// Latch the status matching the alert level so the lamp pattern driven by
	// the alert fan-out survives: CRITICAL latches SYSTEM_ERROR, EMERGENCY
	// latches EMERGENCY_STOP, warnings latch SAFETY_VIOLATION.
	if err := m.SetSystemStatus(ctx, statusForAlertLevel(alert.Level)); err != nil {
		return false, err
	}
	return false, nil
}

func (m *SystemManager) readSensors(ctx context.Context) (map[int]bool, error) {
	pins := []config.DigitalPin{
		m.hwCfg.DigitalIO.DoorSensor,
		m.hwCfg.DigitalIO.ClampSensor,
		m.hwCfg.DigitalIO.ChainSensor,
	}
	raw := make(map[int]bool, len(pins))
	for _, p := range pins {
		level, err := m.dio.ReadInput(ctx, p.Pin)
		if err != nil {
			return nil, apperr.Operation("safety sensor read failed", err,
				map[string]any{"sensor": p.Name, "pin": p.Pin})
		}
		raw[p.Pin] = level
	}
	return raw, nil
}

// HandleTestStartRequest gates a test run on the safety sensors. When safe it
// moves the station to SYSTEM_RUNNING and returns true; otherwise the alert
// path has already fired and it returns false.
func (m *SystemManager) HandleTestStartRequest(ctx context.Context) (bool, error) {
	safe, err := m.CheckSafetyConditions(ctx)
	if err != nil {
		return false, err
	}
	if !safe {
		m.log.Warnw("test_start_rejected", "reason", "safety violation")
		return false, nil
	}
	return true, m.SetSystemStatus(ctx, models.SystemRunning)
}

// HandleEmergencyStop raises the emergency alert and latches the station in
// EMERGENCY_STOP until ClearError is called.
func (m *SystemManager) HandleEmergencyStop(ctx context.Context) error {
	if err := m.Init(ctx); err != nil {
		return err
	}
	alert := m.evaluator.EmergencyAlert()
	m.mu.Lock()
	m.lastViolation = alert.ViolationType
	m.lastAlert = &alert
	m.mu.Unlock()

	m.evaluator.TriggerAlert(ctx, alert)
	return m.SetSystemStatus(ctx, models.EmergencyStop)
}

// HandleTestCompletion reports the run outcome through the lamp: a run error
// latches SYSTEM_ERROR, otherwise the pass/fail verdict is shown. No state
// returns to idle automatically; the operator starts the next test explicitly.
func (m *SystemManager) HandleTestCompletion(ctx context.Context, passed bool, runErr error) error {
	status := models.TestFail
	switch {
	case runErr != nil:
		m.log.Errorw("test_run_failed", "err", runErr)
		status = models.SystemError
	case passed:
		status = models.TestPass
	}
	return m.SetSystemStatus(ctx, status)
}

// ClearError acknowledges the current fault state. Each latched state has a
// distinct cleared successor; calling it in any other state is a logged no-op.
func (m *SystemManager) ClearError(ctx context.Context) error {
	if err := m.Init(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	current := m.status
	m.mu.Unlock()

	var next models.SystemStatus
	switch current {
	case models.SystemError:
		next = models.TestErrorCleared
	case models.EmergencyStop:
		next = models.EmergencyCleared
	case models.SafetyViolation:
		next = models.SafetyCleared
	case models.TestFail:
		next = models.SystemIdle
	default:
		m.log.Infow("clear_error_noop", "status", current)
		return nil
	}

	m.mu.Lock()
	m.lastViolation = ""
	m.lastAlert = nil
	m.mu.Unlock()

	return m.SetSystemStatus(ctx, next)
}

// ShutdownSystem turns the tower dark and releases the digital IO module.
// Every step is best effort; failures are logged and the remaining steps
// still run.
func (m *SystemManager) ShutdownSystem(ctx context.Context) {
	if m.lamp != nil {
		if err := m.lamp.AllOff(ctx); err != nil {
			m.log.Errorw("shutdown_lamp_off_failed", "err", err)
		}
		m.lamp.Close()
	}
	if m.dio.IsConnected() {
		if err := m.dio.ResetAllOutputs(ctx); err != nil {
			m.log.Errorw("shutdown_reset_outputs_failed", "err", err)
		}
		if err := m.dio.Disconnect(ctx); err != nil {
			m.log.Errorw("shutdown_dio_disconnect_failed", "err", err)
		}
	}
	m.log.Infow("system_manager_shutdown")
}
