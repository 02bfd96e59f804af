package service

import (
	"context"
	"errors"
	"testing"

	"eol_station/internal/apperr"
	"eol_station/internal/config"
	"eol_station/internal/hardware"
	"eol_station/internal/industrial"
	"eol_station/internal/logger"
	"eol_station/internal/models"
)

// stubOrchestration scripts the hardware sequences so runner tests exercise
// only the run lifecycle.
type stubOrchestration struct {
	connectErr error
	initErr    error
	setupErr   error
	matrixErr  error
	tearErr    error

	connects   int
	inits      int
	setups     int
	matrixes   int
	teardowns  int
	homeResets int
}

func (o *stubOrchestration) ConnectAll(_ context.Context) error { o.connects++; return o.connectErr }
func (o *stubOrchestration) GetStatus() map[string]bool         { return nil }
func (o *stubOrchestration) Initialize(_ context.Context, _ config.TestConfiguration, _ config.HardwareConfig) error {
	o.inits++
	return o.initErr
}
func (o *stubOrchestration) SetupTest(_ context.Context, _ config.TestConfiguration, _ config.HardwareConfig) error {
	o.setups++
	return o.setupErr
}
func (o *stubOrchestration) StandbySequence(_ context.Context, _ config.TestConfiguration, _ config.HardwareConfig) error {
	return nil
}
func (o *stubOrchestration) VerifyTemperature(_ context.Context, _, _ float64) error { return nil }
func (o *stubOrchestration) RunForceTestMatrix(_ context.Context, cfg config.TestConfiguration, _ config.HardwareConfig, _ models.DUTInfo) (*models.TestMeasurements, []models.CycleResult, error) {
	o.matrixes++
	if o.matrixErr != nil {
		return nil, nil, o.matrixErr
	}
	m := models.NewTestMeasurements(cfg.TemperatureList, cfg.StrokePositions)
	cycles := []models.CycleResult{{CycleNumber: 1, TotalCycles: cfg.RepeatCount, Passed: true, Measurements: m}}
	return m, cycles, nil
}
func (o *stubOrchestration) Teardown(_ context.Context, _ config.TestConfiguration, _ config.HardwareConfig) error {
	o.teardowns++
	return o.tearErr
}
func (o *stubOrchestration) Shutdown(_ context.Context) error { return nil }
func (o *stubOrchestration) RobotState() models.RobotState    { return models.RobotInitialPosition }
func (o *stubOrchestration) ResetRobotHoming()                { o.homeResets++ }

type recordingEvents struct {
	types []string
}

func (e *recordingEvents) Append(_ context.Context, ev models.StationEvent) error {
	e.types = append(e.types, ev.Type)
	return nil
}

func (e *recordingEvents) List(_ context.Context, _ LogFilter) ([]models.StationEvent, error) {
	return nil, nil
}

type recordingNotifier struct {
	starts    []string
	completes []bool
}

func (n *recordingNotifier) NotifyStart(_ context.Context, serial string) error {
	n.starts = append(n.starts, serial)
	return nil
}

func (n *recordingNotifier) NotifyComplete(_ context.Context, _ string, passed bool) error {
	n.completes = append(n.completes, passed)
	return nil
}

type runFixture struct {
	runner   *TestRunService
	orch     *stubOrchestration
	manager  *industrial.SystemManager
	dio      *hardware.SimDigitalIO
	channels config.DigitalChannels
	events   *recordingEvents
	notifier *recordingNotifier
}

func newRunFixture(t *testing.T) *runFixture {
	t.Helper()
	dio := hardware.NewSimDigitalIO()
	hwCfg := config.DefaultHardwareConfig()
	ch := hwCfg.DigitalIO
	dio.SetInput(ch.DoorSensor.Pin, false)
	dio.SetInput(ch.ClampSensor.Pin, true)
	dio.SetInput(ch.ChainSensor.Pin, true)

	manager := industrial.NewSystemManager(dio, hwCfg, nil, logger.Get(logger.ErrorLevel))
	t.Cleanup(func() { manager.ShutdownSystem(context.Background()) })

	orch := &stubOrchestration{}
	events := &recordingEvents{}
	notifier := &recordingNotifier{}
	runner := NewTestRunService(orch, manager, events, notifier,
		config.DefaultTestConfiguration(), hwCfg, logger.Get(logger.ErrorLevel))

	return &runFixture{
		runner:   runner,
		orch:     orch,
		manager:  manager,
		dio:      dio,
		channels: ch,
		events:   events,
		notifier: notifier,
	}
}

func TestRun_SuccessLifecycle(t *testing.T) {
	t.Parallel()
	fx := newRunFixture(t)

	report, err := fx.runner.Run(context.Background(), TestRunRequest{
		DUT: models.DUTInfo{SerialNumber: "SN-100"},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !report.Passed || len(report.Cycles) != 1 || report.Measurements == nil {
		t.Errorf("unexpected report: %+v", report)
	}
	if report.FinishedAt.Before(report.StartedAt) {
		t.Error("finished before started")
	}

	if fx.orch.connects != 1 || fx.orch.inits != 1 || fx.orch.setups != 1 || fx.orch.matrixes != 1 || fx.orch.teardowns != 1 {
		t.Errorf("sequence counts: %+v", fx.orch)
	}
	if fx.orch.homeResets != 0 {
		t.Error("a passing run must not reset robot homing")
	}
	if got := fx.manager.CurrentStatus(); got != models.TestPass {
		t.Errorf("status = %s, want %s", got, models.TestPass)
	}

	want := []string{"RUN_START", "RUN_COMPLETE"}
	if len(fx.events.types) != 2 || fx.events.types[0] != want[0] || fx.events.types[1] != want[1] {
		t.Errorf("events = %v, want %v", fx.events.types, want)
	}
	if len(fx.notifier.starts) != 1 || fx.notifier.starts[0] != "SN-100" {
		t.Errorf("start notices = %v", fx.notifier.starts)
	}
	if len(fx.notifier.completes) != 1 || !fx.notifier.completes[0] {
		t.Errorf("complete notices = %v", fx.notifier.completes)
	}
}

func TestRun_SafetyGateRejects(t *testing.T) {
	t.Parallel()
	fx := newRunFixture(t)
	fx.dio.SetInput(fx.channels.DoorSensor.Pin, true) // door open

	_, err := fx.runner.Run(context.Background(), TestRunRequest{
		DUT: models.DUTInfo{SerialNumber: "SN-101"},
	})
	if !errors.Is(err, ErrSafetyRejected) {
		t.Fatalf("err = %v, want ErrSafetyRejected", err)
	}
	if fx.orch.connects != 0 || fx.orch.teardowns != 0 {
		t.Error("a rejected run must not touch the hardware sequences")
	}
	if len(fx.events.types) != 0 {
		t.Errorf("rejected run logged events: %v", fx.events.types)
	}
	if len(fx.notifier.starts) != 0 {
		t.Error("rejected run must not notify MES")
	}
}

func TestRun_InvalidOverridesRejectedBeforeSafetyGate(t *testing.T) {
	t.Parallel()
	fx := newRunFixture(t)

	bad := 0
	_, err := fx.runner.Run(context.Background(), TestRunRequest{
		DUT:       models.DUTInfo{SerialNumber: "SN-102"},
		Overrides: config.TestOverrides{RepeatCount: &bad},
	})
	if apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("err = %v, want validation kind", err)
	}
	if apperr.Field(err) != "repeat_count" {
		t.Errorf("field = %q, want repeat_count", apperr.Field(err))
	}
	if fx.orch.connects != 0 {
		t.Error("invalid overrides must fail before any hardware work")
	}
}

func TestRun_SequenceFailureLatchesErrorAndResetsHoming(t *testing.T) {
	t.Parallel()
	fx := newRunFixture(t)
	boom := apperr.Connection("matrix failed at read_peak_force", errors.New("serial timeout"), nil)
	fx.orch.matrixErr = boom

	_, err := fx.runner.Run(context.Background(), TestRunRequest{
		DUT: models.DUTInfo{SerialNumber: "SN-103"},
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want the sequence failure", err)
	}

	if fx.orch.teardowns != 1 {
		t.Error("teardown must run after a sequence failure")
	}
	if fx.orch.homeResets != 1 {
		t.Error("a failed run must reset robot homing")
	}
	if got := fx.manager.CurrentStatus(); got != models.SystemError {
		t.Errorf("status = %s, want %s", got, models.SystemError)
	}
	if len(fx.notifier.completes) != 1 || fx.notifier.completes[0] {
		t.Errorf("complete notices = %v, want one failed notice", fx.notifier.completes)
	}
	if len(fx.events.types) != 2 || fx.events.types[1] != "RUN_COMPLETE" {
		t.Errorf("events = %v", fx.events.types)
	}
}

func TestRun_ConnectFailureSkipsLaterSequences(t *testing.T) {
	t.Parallel()
	fx := newRunFixture(t)
	fx.orch.connectErr = apperr.Connection("failed to connect hardware links", nil, nil)

	_, err := fx.runner.Run(context.Background(), TestRunRequest{
		DUT: models.DUTInfo{SerialNumber: "SN-104"},
	})
	if apperr.KindOf(err) != apperr.KindConnection {
		t.Fatalf("err = %v, want connection kind", err)
	}
	if fx.orch.inits != 0 || fx.orch.setups != 0 || fx.orch.matrixes != 0 {
		t.Error("later sequences must not run after a connect failure")
	}
	if fx.orch.teardowns != 1 {
		t.Error("teardown runs even when bring-up failed")
	}
}

func TestRun_TeardownCancellationEscapes(t *testing.T) {
	t.Parallel()
	fx := newRunFixture(t)
	fx.orch.tearErr = context.Canceled

	_, err := fx.runner.Run(context.Background(), TestRunRequest{
		DUT: models.DUTInfo{SerialNumber: "SN-105"},
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	// The run never reached completion reporting.
	if len(fx.events.types) != 1 || fx.events.types[0] != "RUN_START" {
		t.Errorf("events = %v, want only RUN_START", fx.events.types)
	}
	if len(fx.notifier.completes) != 0 {
		t.Error("cancelled run must not send a completion notice")
	}
}

func TestRun_OptionalCollaboratorsMayBeNil(t *testing.T) {
	t.Parallel()
	fx := newRunFixture(t)
	runner := NewTestRunService(fx.orch, fx.manager, nil, nil,
		config.DefaultTestConfiguration(), config.DefaultHardwareConfig(), logger.Get(logger.ErrorLevel))

	report, err := runner.Run(context.Background(), TestRunRequest{
		DUT: models.DUTInfo{SerialNumber: "SN-106"},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !report.Passed {
		t.Error("run must pass without event log and notifier wired")
	}
}
