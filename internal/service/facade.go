package service

import (
	"context"
	"math"
	"sync"
	"time"

	"eol_station/internal/apperr"
	"eol_station/internal/config"
	"eol_station/internal/hardware"
	"eol_station/internal/logger"
	"eol_station/internal/models"
	"eol_station/internal/repository"
)

// Temperature verification policy: one initial read plus ten retries at a
// fixed 1 s spacing. Simulated MCUs skip the loop after a short settle delay.
const (
	verifyAttempts      = 11
	verifyRetryDelay    = time.Second
	simulatedVerifyWait = 100 * time.Millisecond
	interRepeatDelay    = time.Second
)

// FacadeLinks bundles the five hardware links the facade drives.
type FacadeLinks struct {
	Robot     hardware.Robot
	MCU       hardware.MCU
	Power     hardware.Power
	LoadCell  hardware.LoadCell
	DigitalIO hardware.DigitalIO
}

// HardwareFacade sequences every hardware operation of a run. Sequencing
// methods (Initialize, SetupTest, StandbySequence, RunForceTestMatrix,
// Teardown) must not run concurrently with each other; ConnectAll and
// Shutdown fan out per-link calls internally but serialize against the
// sequences through normal call order. GetStatus and RobotState are safe to
// call from other goroutines at any time.
type HardwareFacade struct {
	links    FacadeLinks
	repo     repository.MeasurementRepo // optional, nil disables persistence
	progress ProgressSink               // optional
	log      *logger.Logger

	mu         sync.Mutex
	robotState models.RobotState
	robotHomed bool

	// Injected for tests; production uses real timing.
	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

func NewHardwareFacade(links FacadeLinks, repo repository.MeasurementRepo, progress ProgressSink, log *logger.Logger) *HardwareFacade {
	return &HardwareFacade{
		links:      links,
		repo:       repo,
		progress:   progress,
		log:        log,
		robotState: models.RobotUnknown,
		sleep:      sleepCtx,
		now:        time.Now,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// namedLink pairs a link with its stable name for status maps and errors.
type namedLink struct {
	name string
	link hardware.Link
}

func (f *HardwareFacade) namedLinks() []namedLink {
	return []namedLink{
		{"robot", f.links.Robot},
		{"mcu", f.links.MCU},
		{"power", f.links.Power},
		{"load_cell", f.links.LoadCell},
		{"digital_io", f.links.DigitalIO},
	}
}

// wrap turns a sequence failure into a connection-class error. A caller
// cancellation is passed through untouched so it keeps propagating even
// across cleanup paths.
func (f *HardwareFacade) wrap(ctx context.Context, err error, msg string, fields map[string]any) error {
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return apperr.Connection(msg, err, fields)
}

// ConnectAll connects every link that is not already connected, concurrently,
// and waits for all of them. On any failure it returns a connection error
// naming the links that failed; links that connected successfully stay
// connected.
func (f *HardwareFacade) ConnectAll(ctx context.Context) error {
	var wg sync.WaitGroup
	var mu sync.Mutex
	var failed []string

	for _, nl := range f.namedLinks() {
		if nl.link.IsConnected() {
			continue
		}
		wg.Add(1)
		go func(nl namedLink) {
			defer wg.Done()
			if err := nl.link.Connect(ctx); err != nil {
				f.log.Errorw("link_connect_failed", "link", nl.name, "err", err)
				mu.Lock()
				failed = append(failed, nl.name)
				mu.Unlock()
			}
		}(nl)
	}
	wg.Wait()

	if len(failed) > 0 {
		return apperr.Connection("failed to connect hardware links", nil, map[string]any{"links": failed})
	}
	f.log.Infow("hardware_connected")
	return nil
}

// GetStatus returns a connection snapshot per link name.
func (f *HardwareFacade) GetStatus() map[string]bool {
	out := make(map[string]bool, 5)
	for _, nl := range f.namedLinks() {
		out[nl.name] = nl.link.IsConnected()
	}
	return out
}

// Shutdown disables the power output and disconnects every connected link
// concurrently. Cleanup failures are logged, never returned; only a caller
// cancellation propagates.
func (f *HardwareFacade) Shutdown(ctx context.Context) error {
	if f.links.Power.IsConnected() {
		if err := f.links.Power.DisableOutput(ctx); err != nil {
			f.log.Errorw("shutdown_power_disable_failed", "err", err)
		}
	}

	var wg sync.WaitGroup
	for _, nl := range f.namedLinks() {
		if !nl.link.IsConnected() {
			continue
		}
		wg.Add(1)
		go func(nl namedLink) {
			defer wg.Done()
			if err := nl.link.Disconnect(ctx); err != nil {
				f.log.Errorw("link_disconnect_failed", "link", nl.name, "err", err)
			}
		}(nl)
	}
	wg.Wait()
	f.log.Infow("hardware_disconnected")
	return ctx.Err()
}

// RobotState returns the last tracked robot position class.
func (f *HardwareFacade) RobotState() models.RobotState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.robotState
}

// ResetRobotHoming clears the homed-once flag so the next Initialize homes
// the axis again. Called by error handlers after a failed run.
func (f *HardwareFacade) ResetRobotHoming() {
	f.mu.Lock()
	f.robotHomed = false
	f.robotState = models.RobotUnknown
	f.mu.Unlock()
}

// moveRobot issues one absolute move and tracks the resulting state.
func (f *HardwareFacade) moveRobot(ctx context.Context, cfg config.TestConfiguration, hw config.HardwareConfig, position float64) error {
	f.mu.Lock()
	f.robotState = models.RobotMoving
	f.mu.Unlock()

	err := f.links.Robot.MoveAbsolute(ctx, hw.Robot.AxisID, position, cfg.Velocity, cfg.Acceleration, cfg.Deceleration)

	f.mu.Lock()
	switch {
	case err != nil:
		f.robotState = models.RobotUnknown
	case position == cfg.InitialPosition:
		f.robotState = models.RobotInitialPosition
	case position == cfg.MaxStroke:
		f.robotState = models.RobotMaxStroke
	default:
		f.robotState = models.RobotMeasurementPosition
	}
	f.mu.Unlock()
	return err
}

// Initialize runs the strict bring-up sequence: brake release, power setup,
// servo enable, one-time homing, move to initial position. Each command is
// followed by its stabilization delay.
func (f *HardwareFacade) Initialize(ctx context.Context, cfg config.TestConfiguration, hw config.HardwareConfig) error {
	fields := map[string]any{"voltage": cfg.Voltage, "current": cfg.Current}

	steps := []struct {
		name  string
		delay time.Duration
		run   func() error
	}{
		{"brake_release", cfg.PowerCommandStabilization, func() error {
			return f.links.DigitalIO.WriteOutput(ctx, hw.DigitalIO.BrakeRelease, true)
		}},
		{"power_output_off", cfg.PowerCommandStabilization, func() error {
			return f.links.Power.DisableOutput(ctx)
		}},
		{"set_voltage", cfg.PowerCommandStabilization, func() error {
			return f.links.Power.SetVoltage(ctx, cfg.Voltage)
		}},
		{"set_current", cfg.PowerCommandStabilization, func() error {
			return f.links.Power.SetCurrent(ctx, cfg.Current)
		}},
		{"set_current_limit", cfg.PowerCommandStabilization, func() error {
			return f.links.Power.SetCurrentLimit(ctx, cfg.UpperCurrent)
		}},
		{"enable_servo", cfg.RobotMoveStabilization, func() error {
			return f.links.Robot.EnableServo(ctx, hw.Robot.AxisID)
		}},
	}
	for _, step := range steps {
		if err := step.run(); err != nil {
			return f.wrap(ctx, err, "initialize failed at "+step.name, fields)
		}
		if err := f.sleep(ctx, step.delay); err != nil {
			return err
		}
	}

	f.mu.Lock()
	homed := f.robotHomed
	f.mu.Unlock()
	if !homed {
		if err := f.links.Robot.HomeAxis(ctx, hw.Robot.AxisID); err != nil {
			return f.wrap(ctx, err, "initialize failed at home_axis", fields)
		}
		if err := f.sleep(ctx, cfg.RobotMoveStabilization); err != nil {
			return err
		}
		f.mu.Lock()
		f.robotHomed = true
		f.robotState = models.RobotHome
		f.mu.Unlock()
	} else {
		f.log.Debugw("robot_homing_skipped", "reason", "already homed")
	}

	if err := f.moveRobot(ctx, cfg, hw, cfg.InitialPosition); err != nil {
		return f.wrap(ctx, err, "initialize failed at move_initial", fields)
	}
	if err := f.sleep(ctx, cfg.RobotMoveStabilization); err != nil {
		return err
	}
	f.log.Infow("hardware_initialized")
	return nil
}

// SetupTest powers the DUT, waits for the MCU boot signal bounded by the
// configured timeout, enters test mode and runs the standby sequence.
func (f *HardwareFacade) SetupTest(ctx context.Context, cfg config.TestConfiguration, hw config.HardwareConfig) error {
	fields := map[string]any{"boot_timeout": cfg.BootTimeout.String()}

	if err := f.links.Power.EnableOutput(ctx); err != nil {
		return f.wrap(ctx, err, "setup failed at power_output_on", fields)
	}
	if err := f.sleep(ctx, cfg.PowerOnStabilization); err != nil {
		return err
	}

	// No interactive surface on the station; the prompt is log-only.
	f.log.Infow("operator_prompt", "message", "turn on the DUT power switch")

	bootCtx, cancel := context.WithTimeout(ctx, cfg.BootTimeout)
	err := f.links.MCU.WaitBootComplete(bootCtx)
	cancel()
	if err != nil {
		return f.wrap(ctx, err, "setup failed waiting for MCU boot", fields)
	}
	if err := f.sleep(ctx, cfg.MCUBootStabilization); err != nil {
		return err
	}

	if err := f.links.MCU.SetTestMode(ctx, hardware.TestMode1); err != nil {
		return f.wrap(ctx, err, "setup failed at set_test_mode", fields)
	}
	if err := f.sleep(ctx, cfg.MCUCommandStabilization); err != nil {
		return err
	}

	return f.StandbySequence(ctx, cfg, hw)
}

// StandbySequence heats the DUT to the activation temperature, exercises the
// robot through the operating position and cools back down to standby.
func (f *HardwareFacade) StandbySequence(ctx context.Context, cfg config.TestConfiguration, hw config.HardwareConfig) error {
	fields := map[string]any{
		"operating_temp": cfg.ActivationTemperature,
		"standby_temp":   cfg.StandbyTemperature,
	}

	if err := f.links.MCU.SetUpperTemperature(ctx, cfg.UpperTemperature); err != nil {
		return f.wrap(ctx, err, "standby failed at set_upper_temperature", fields)
	}
	if err := f.sleep(ctx, cfg.MCUCommandStabilization); err != nil {
		return err
	}
	if err := f.links.MCU.SetFanSpeed(ctx, cfg.FanSpeed); err != nil {
		return f.wrap(ctx, err, "standby failed at set_fan_speed", fields)
	}
	if err := f.sleep(ctx, cfg.MCUCommandStabilization); err != nil {
		return err
	}

	if err := f.links.MCU.StartStandbyHeating(ctx, cfg.ActivationTemperature, cfg.StandbyTemperature); err != nil {
		return f.wrap(ctx, err, "standby failed at start_heating", fields)
	}
	if err := f.VerifyTemperature(ctx, cfg.ActivationTemperature, cfg.TemperatureTolerance); err != nil {
		return err
	}

	if err := f.moveRobot(ctx, cfg, hw, cfg.OperatingPosition); err != nil {
		return f.wrap(ctx, err, "standby failed at move_operating", fields)
	}
	if err := f.sleep(ctx, cfg.RobotMoveStabilization); err != nil {
		return err
	}
	if err := f.sleep(ctx, cfg.RobotStandbyStabilization); err != nil {
		return err
	}
	if err := f.moveRobot(ctx, cfg, hw, cfg.InitialPosition); err != nil {
		return f.wrap(ctx, err, "standby failed at move_initial", fields)
	}
	if err := f.sleep(ctx, cfg.RobotMoveStabilization); err != nil {
		return err
	}

	if err := f.links.MCU.StartStandbyCooling(ctx); err != nil {
		return f.wrap(ctx, err, "standby failed at start_cooling", fields)
	}
	if err := f.sleep(ctx, cfg.MCUCommandStabilization); err != nil {
		return err
	}
	if err := f.VerifyTemperature(ctx, cfg.StandbyTemperature, cfg.TemperatureTolerance); err != nil {
		return err
	}
	f.log.Infow("standby_sequence_complete")
	return nil
}

// VerifyTemperature reads the MCU temperature until it falls within tolerance
// of expected: one initial read plus up to ten retries, 1 s apart. The first
// in-tolerance read succeeds immediately. Exhausting every attempt yields an
// operation error carrying actual/expected/diff/tolerance. A simulated MCU
// short-circuits after a fixed small settle delay.
func (f *HardwareFacade) VerifyTemperature(ctx context.Context, expected, tolerance float64) error {
	if hardware.IsSimulated(f.links.MCU) {
		f.log.Debugw("temperature_verify_bypassed", "reason", "simulated mcu", "expected", expected)
		return f.sleep(ctx, simulatedVerifyWait)
	}

	var actual float64
	var readErr error
	for attempt := 1; attempt <= verifyAttempts; attempt++ {
		actual, readErr = f.links.MCU.GetTemperature(ctx)
		if readErr == nil {
			diff := math.Abs(actual - expected)
			if diff <= tolerance {
				f.log.Debugw("temperature_verified", "actual", actual, "expected", expected, "attempt", attempt)
				return nil
			}
			f.log.Warnw("temperature_out_of_tolerance",
				"actual", actual, "expected", expected, "diff", diff, "attempt", attempt)
		} else {
			f.log.Warnw("temperature_read_failed", "err", readErr, "attempt", attempt)
		}
		if attempt < verifyAttempts {
			if err := f.sleep(ctx, verifyRetryDelay); err != nil {
				return err
			}
		}
	}

	if readErr != nil {
		return f.wrap(ctx, readErr, "temperature verification failed: device unreadable",
			map[string]any{"expected": expected, "tolerance": tolerance})
	}
	return apperr.Operation("temperature verification failed", nil, map[string]any{
		"actual":    actual,
		"expected":  expected,
		"diff":      math.Abs(actual - expected),
		"tolerance": tolerance,
	})
}

// RunForceTestMatrix walks the configured repeat x temperature x position
// matrix, reading peak force at every cell. Each repeat's measurements are
// persisted (failures logged only) and summarized as a CycleResult; one
// progress update per temperature goes to the GUI sink. When repeatCount > 1
// the returned aggregate carries the per-cell arithmetic mean.
func (f *HardwareFacade) RunForceTestMatrix(ctx context.Context, cfg config.TestConfiguration, hw config.HardwareConfig, dut models.DUTInfo) (*models.TestMeasurements, []models.CycleResult, error) {
	aggregate := models.NewTestMeasurements(cfg.TemperatureList, cfg.StrokePositions)
	cycles := make([]models.CycleResult, 0, cfg.RepeatCount)

	for cycle := 1; cycle <= cfg.RepeatCount; cycle++ {
		cycleStart := f.now()
		cycleM := models.NewTestMeasurements(cfg.TemperatureList, cfg.StrokePositions)

		for _, temp := range cfg.TemperatureList {
			fields := map[string]any{"cycle": cycle, "temperature": temp}

			heatStart := f.now()
			if err := f.links.MCU.SetOperatingTemperature(ctx, temp); err != nil {
				return nil, cycles, f.wrap(ctx, err, "matrix failed at set_operating_temperature", fields)
			}
			if err := f.sleep(ctx, cfg.MCUCommandStabilization); err != nil {
				return nil, cycles, err
			}
			// The heating window covers the set command and its stabilization
			// only; the verification retries are not part of the measurement.
			heating := f.now().Sub(heatStart)
			if err := f.VerifyTemperature(ctx, temp, cfg.TemperatureTolerance); err != nil {
				return nil, cycles, err
			}

			for _, pos := range cfg.StrokePositions {
				if err := f.moveRobot(ctx, cfg, hw, pos); err != nil {
					return nil, cycles, f.wrap(ctx, err, "matrix failed at move_position", fields)
				}
				if err := f.sleep(ctx, cfg.RobotMoveStabilization); err != nil {
					return nil, cycles, err
				}
				force, err := f.links.LoadCell.ReadPeakForce(ctx)
				if err != nil {
					return nil, cycles, f.wrap(ctx, err, "matrix failed at read_peak_force", fields)
				}
				aggregate.Add(temp, pos, force)
				cycleM.Add(temp, pos, force)
			}

			if f.RobotState() != models.RobotInitialPosition {
				if err := f.moveRobot(ctx, cfg, hw, cfg.InitialPosition); err != nil {
					return nil, cycles, f.wrap(ctx, err, "matrix failed at return_initial", fields)
				}
				if err := f.sleep(ctx, cfg.RobotMoveStabilization); err != nil {
					return nil, cycles, err
				}
			}

			coolStart := f.now()
			if err := f.links.MCU.StartStandbyCooling(ctx); err != nil {
				return nil, cycles, f.wrap(ctx, err, "matrix failed at start_cooling", fields)
			}
			if err := f.sleep(ctx, cfg.MCUCommandStabilization); err != nil {
				return nil, cycles, err
			}
			cooling := f.now().Sub(coolStart)
			if err := f.VerifyTemperature(ctx, cfg.StandbyTemperature, cfg.TemperatureTolerance); err != nil {
				return nil, cycles, err
			}

			timing := models.TemperatureTiming{
				Cycle:       cycle,
				Temperature: temp,
				HeatingTime: heating,
				CoolingTime: cooling,
			}
			aggregate.AddTiming(timing)
			cycleM.AddTiming(timing)
		}

		if f.repo != nil {
			if err := f.repo.SaveCycleMeasurements(ctx, cycleM, cycle, cfg.RepeatCount, dut.SerialNumber); err != nil {
				f.log.Errorw("cycle_save_failed", "cycle", cycle, "serial", dut.SerialNumber, "err", err)
			}
		}

		cycles = append(cycles, models.CycleResult{
			CycleNumber:       cycle,
			TotalCycles:       cfg.RepeatCount,
			Passed:            true,
			Measurements:      cycleM,
			ExecutionDuration: f.now().Sub(cycleStart),
			CompletedAt:       f.now(),
		})

		f.pushCycleProgress(cycle, cfg, cycleM)

		if cycle < cfg.RepeatCount {
			if err := f.sleep(ctx, interRepeatDelay); err != nil {
				return nil, cycles, err
			}
		}
	}

	if cfg.RepeatCount > 1 {
		aggregate.CollapseToMean()
	}
	return aggregate, cycles, nil
}

// pushCycleProgress sends one update per temperature of the finished cycle.
// Sink panics are contained; a broken GUI must not abort the run.
func (f *HardwareFacade) pushCycleProgress(cycle int, cfg config.TestConfiguration, cycleM *models.TestMeasurements) {
	if f.progress == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			f.log.Errorw("progress_sink_panic", "cycle", cycle, "recovered", r)
		}
	}()

	for _, timing := range cycleM.Timings {
		f.progress.AddCycleResult(
			cycle,
			cfg.RepeatCount,
			timing.Temperature,
			cfg.MaxStroke,
			cycleM.AverageForce(timing.Temperature),
			timing.HeatingTime,
			timing.CoolingTime,
			"OK",
		)
	}
}

// Teardown returns the robot to its initial position and kills the power
// output. Failures are logged, never propagated; only a caller cancellation
// passes through.
func (f *HardwareFacade) Teardown(ctx context.Context, cfg config.TestConfiguration, hw config.HardwareConfig) error {
	if f.RobotState() != models.RobotInitialPosition {
		if err := f.moveRobot(ctx, cfg, hw, cfg.InitialPosition); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			f.log.Errorw("teardown_move_initial_failed", "err", err)
		}
	}
	if err := f.links.Power.DisableOutput(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		f.log.Errorw("teardown_power_disable_failed", "err", err)
	}
	f.log.Infow("teardown_complete")
	return nil
}
