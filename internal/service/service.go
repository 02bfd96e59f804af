package service

import (
	"context"
	"time"

	"eol_station/internal/config"
	"eol_station/internal/industrial"
	"eol_station/internal/logger"
	"eol_station/internal/models"
	"eol_station/internal/repository"
)

type Authorization interface {
	SignUp(username, password string) (int, error)
	GenerateToken(username, password string) (string, error)
	ParseToken(accessToken string) (int, error)
}

// Orchestration drives the hardware sequences of a test run. One production
// implementation exists (HardwareFacade); handlers and the test runner depend
// on this interface only.
type Orchestration interface {
	ConnectAll(ctx context.Context) error
	GetStatus() map[string]bool
	Initialize(ctx context.Context, cfg config.TestConfiguration, hw config.HardwareConfig) error
	SetupTest(ctx context.Context, cfg config.TestConfiguration, hw config.HardwareConfig) error
	StandbySequence(ctx context.Context, cfg config.TestConfiguration, hw config.HardwareConfig) error
	VerifyTemperature(ctx context.Context, expected, tolerance float64) error
	RunForceTestMatrix(ctx context.Context, cfg config.TestConfiguration, hw config.HardwareConfig, dut models.DUTInfo) (*models.TestMeasurements, []models.CycleResult, error)
	Teardown(ctx context.Context, cfg config.TestConfiguration, hw config.HardwareConfig) error
	Shutdown(ctx context.Context) error
	RobotState() models.RobotState
	ResetRobotHoming()
}

// TestRunner executes one complete run end to end: safety gate, hardware
// bring-up, matrix, teardown, completion reporting.
type TestRunner interface {
	Run(ctx context.Context, req TestRunRequest) (*TestRunReport, error)
}

// SystemControl is the manager surface consumed by the run lifecycle and the
// API layer: station status, safety checks and operator interventions.
type SystemControl interface {
	InitializeSystem(ctx context.Context) error
	CurrentStatus() models.SystemStatus
	LastAlert() *models.SafetyAlert
	CheckSafetyConditions(ctx context.Context) (bool, error)
	HandleTestStartRequest(ctx context.Context) (bool, error)
	HandleEmergencyStop(ctx context.Context) error
	HandleTestCompletion(ctx context.Context, passed bool, runErr error) error
	ClearError(ctx context.Context) error
	ShutdownSystem(ctx context.Context)
}

var _ SystemControl = (*industrial.SystemManager)(nil)

// CycleStore reads persisted per-cycle measurements.
type CycleStore interface {
	ListCycles(ctx context.Context, serialNumber string, limit int) ([]models.CycleRecord, error)
}

// EventLog exposes the append-only station log with filtering access.
type EventLog interface {
	Append(ctx context.Context, e models.StationEvent) error
	List(ctx context.Context, f LogFilter) ([]models.StationEvent, error)
}

// LogFilter narrows an event-log query.
type LogFilter struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
	Type string    `json:"type"`
}

// ProgressSink receives one update per temperature per cycle. Implementations
// must be fast; slow consumers should buffer internally.
type ProgressSink interface {
	AddCycleResult(cycle, totalCycles int, temperature, stroke, force float64, heatingTime, coolingTime time.Duration, status string)
}

// RunNotifier pushes run lifecycle notifications to the factory MES. Failures
// are logged by callers and never abort a run.
type RunNotifier interface {
	NotifyStart(ctx context.Context, serialNumber string) error
	NotifyComplete(ctx context.Context, serialNumber string, passed bool) error
}

//
// Root Service aggregates all sub-services.
//

type Service struct {
	Orchestration
	TestRunner
	EventLog
	Authorization
	System SystemControl
	Cycles CycleStore
}

// Deps carries everything NewService needs to wire the sub-services.
type Deps struct {
	Links    FacadeLinks
	Repos    *repository.Repository
	Manager  *industrial.SystemManager
	Progress ProgressSink // optional
	Notifier RunNotifier  // optional
	TestCfg  config.TestConfiguration
	HWCfg    config.HardwareConfig
	Log      *logger.Logger
}

func NewService(d Deps) *Service {
	facade := NewHardwareFacade(d.Links, d.Repos.Measurements, d.Progress, d.Log)
	events := NewEventLogService(d.Repos.Events)
	return &Service{
		Orchestration: facade,
		TestRunner:    NewTestRunService(facade, d.Manager, events, d.Notifier, d.TestCfg, d.HWCfg, d.Log),
		EventLog:      events,
		Authorization: NewAuthService(d.Repos.Auth),
		System:        d.Manager,
		Cycles:        d.Repos.Measurements,
	}
}
