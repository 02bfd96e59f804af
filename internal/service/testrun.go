package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"eol_station/internal/config"
	"eol_station/internal/logger"
	"eol_station/internal/models"

	"github.com/google/uuid"
)

// ErrSafetyRejected is returned when the safety gate refuses a run start.
var ErrSafetyRejected = errors.New("test start rejected: safety conditions not satisfied")

// TestRunRequest starts one run: which DUT, and optional parameter overrides
// layered on the station's base configuration.
type TestRunRequest struct {
	DUT       models.DUTInfo       `json:"dut"`
	Overrides config.TestOverrides `json:"overrides"`
}

// TestRunReport is the outcome of one completed run.
type TestRunReport struct {
	RunID        string                   `json:"run_id"`
	Passed       bool                     `json:"passed"`
	Measurements *models.TestMeasurements `json:"measurements"`
	Cycles       []models.CycleResult     `json:"cycles"`
	StartedAt    time.Time                `json:"started_at"`
	FinishedAt   time.Time                `json:"finished_at"`
}

// TestRunService executes a run end to end: safety gate, hardware bring-up,
// force matrix, teardown, completion reporting, event log and MES notices.
type TestRunService struct {
	facade   Orchestration
	manager  SystemControl
	events   EventLog
	notifier RunNotifier // optional
	baseCfg  config.TestConfiguration
	hwCfg    config.HardwareConfig
	log      *logger.Logger
}

func NewTestRunService(facade Orchestration, manager SystemControl, events EventLog, notifier RunNotifier, baseCfg config.TestConfiguration, hwCfg config.HardwareConfig, log *logger.Logger) *TestRunService {
	return &TestRunService{
		facade:   facade,
		manager:  manager,
		events:   events,
		notifier: notifier,
		baseCfg:  baseCfg,
		hwCfg:    hwCfg,
		log:      log,
	}
}

var _ TestRunner = (*TestRunService)(nil)

// Run performs one complete test run. The safety gate decides whether the run
// may start at all; once started, any sequence failure aborts the run, runs
// teardown, latches SYSTEM_ERROR and resets the robot homing flag.
func (s *TestRunService) Run(ctx context.Context, req TestRunRequest) (*TestRunReport, error) {
	cfg, err := s.baseCfg.WithOverrides(req.Overrides)
	if err != nil {
		return nil, err
	}

	ok, err := s.manager.HandleTestStartRequest(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrSafetyRejected
	}

	runID := uuid.NewString()
	startedAt := time.Now().UTC()
	s.appendEvent(ctx, "RUN_START", fmt.Sprintf("test run started for %s", req.DUT.SerialNumber),
		map[string]any{"run_id": runID, "serial_number": req.DUT.SerialNumber})
	s.notifyStart(ctx, req.DUT.SerialNumber)

	measurements, cycles, runErr := s.execute(ctx, cfg, req.DUT)

	if err := s.facade.Teardown(ctx, cfg, s.hwCfg); err != nil {
		// Only cancellation escapes teardown.
		return nil, err
	}

	passed := runErr == nil
	if !passed {
		s.facade.ResetRobotHoming()
	}
	if err := s.manager.HandleTestCompletion(ctx, passed, runErr); err != nil {
		s.log.Errorw("completion_status_failed", "err", err)
	}
	s.appendEvent(ctx, "RUN_COMPLETE",
		fmt.Sprintf("test run finished for %s (passed=%t)", req.DUT.SerialNumber, passed),
		map[string]any{"run_id": runID, "serial_number": req.DUT.SerialNumber, "passed": passed})
	s.notifyComplete(ctx, req.DUT.SerialNumber, passed)

	if runErr != nil {
		return nil, runErr
	}
	return &TestRunReport{
		RunID:        runID,
		Passed:       true,
		Measurements: measurements,
		Cycles:       cycles,
		StartedAt:    startedAt,
		FinishedAt:   time.Now().UTC(),
	}, nil
}

func (s *TestRunService) execute(ctx context.Context, cfg config.TestConfiguration, dut models.DUTInfo) (*models.TestMeasurements, []models.CycleResult, error) {
	if err := s.facade.ConnectAll(ctx); err != nil {
		return nil, nil, err
	}
	if err := s.facade.Initialize(ctx, cfg, s.hwCfg); err != nil {
		return nil, nil, err
	}
	if err := s.facade.SetupTest(ctx, cfg, s.hwCfg); err != nil {
		return nil, nil, err
	}
	return s.facade.RunForceTestMatrix(ctx, cfg, s.hwCfg, dut)
}

func (s *TestRunService) appendEvent(ctx context.Context, typ, description string, meta any) {
	if s.events == nil {
		return
	}
	if err := s.events.Append(ctx, models.StationEvent{Type: typ, Description: description, Metadata: meta}); err != nil {
		s.log.Errorw("event_append_failed", "type", typ, "err", err)
	}
}

func (s *TestRunService) notifyStart(ctx context.Context, serial string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.NotifyStart(ctx, serial); err != nil {
		s.log.Errorw("mes_notify_start_failed", "serial", serial, "err", err)
	}
}

func (s *TestRunService) notifyComplete(ctx context.Context, serial string, passed bool) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.NotifyComplete(ctx, serial, passed); err != nil {
		s.log.Errorw("mes_notify_complete_failed", "serial", serial, "err", err)
	}
}
