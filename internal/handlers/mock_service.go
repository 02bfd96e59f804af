package handlers

import (
	"context"
	"net/http"
	"time"

	"eol_station/internal/config"
	"eol_station/internal/models"
	"eol_station/internal/service"

	"github.com/gin-gonic/gin"
)

// ---- Service Mocks ----

type mockAuth struct {
	signUpID      int
	signUpErr     error
	genTokenToken string
	genTokenErr   error
	parseID       int
	parseErr      error

	lastSignUpUsername string
	lastSignUpPassword string
	lastGenUsername    string
	lastGenPassword    string
	lastParseToken     string
}

func (m *mockAuth) SignUp(username, password string) (int, error) {
	m.lastSignUpUsername = username
	m.lastSignUpPassword = password
	return m.signUpID, m.signUpErr
}
func (m *mockAuth) GenerateToken(username, password string) (string, error) {
	m.lastGenUsername = username
	m.lastGenPassword = password
	return m.genTokenToken, m.genTokenErr
}
func (m *mockAuth) ParseToken(token string) (int, error) {
	m.lastParseToken = token
	return m.parseID, m.parseErr
}

type mockRunner struct {
	report  *service.TestRunReport
	err     error
	lastReq service.TestRunRequest
	calls   int
}

func (m *mockRunner) Run(_ context.Context, req service.TestRunRequest) (*service.TestRunReport, error) {
	m.calls++
	m.lastReq = req
	return m.report, m.err
}

type mockSystem struct {
	status models.SystemStatus
	alert  *models.SafetyAlert
	safe   bool

	safetyErr    error
	emergencyErr error
	clearErr     error

	emergencyCalls int
	clearCalls     int
}

func (m *mockSystem) InitializeSystem(_ context.Context) error { return nil }
func (m *mockSystem) CurrentStatus() models.SystemStatus       { return m.status }
func (m *mockSystem) LastAlert() *models.SafetyAlert           { return m.alert }
func (m *mockSystem) CheckSafetyConditions(_ context.Context) (bool, error) {
	return m.safe, m.safetyErr
}
func (m *mockSystem) HandleTestStartRequest(_ context.Context) (bool, error) {
	return m.safe, m.safetyErr
}
func (m *mockSystem) HandleEmergencyStop(_ context.Context) error {
	m.emergencyCalls++
	return m.emergencyErr
}
func (m *mockSystem) HandleTestCompletion(_ context.Context, _ bool, _ error) error { return nil }
func (m *mockSystem) ClearError(_ context.Context) error {
	m.clearCalls++
	return m.clearErr
}
func (m *mockSystem) ShutdownSystem(_ context.Context) {}

// mockOrchestration serves only the read-side status calls the API uses.
type mockOrchestration struct {
	links      map[string]bool
	robotState models.RobotState
}

func (m *mockOrchestration) ConnectAll(_ context.Context) error { return nil }
func (m *mockOrchestration) GetStatus() map[string]bool         { return m.links }
func (m *mockOrchestration) Initialize(_ context.Context, _ config.TestConfiguration, _ config.HardwareConfig) error {
	return nil
}
func (m *mockOrchestration) SetupTest(_ context.Context, _ config.TestConfiguration, _ config.HardwareConfig) error {
	return nil
}
func (m *mockOrchestration) StandbySequence(_ context.Context, _ config.TestConfiguration, _ config.HardwareConfig) error {
	return nil
}
func (m *mockOrchestration) VerifyTemperature(_ context.Context, _, _ float64) error { return nil }
func (m *mockOrchestration) RunForceTestMatrix(_ context.Context, _ config.TestConfiguration, _ config.HardwareConfig, _ models.DUTInfo) (*models.TestMeasurements, []models.CycleResult, error) {
	return nil, nil, nil
}
func (m *mockOrchestration) Teardown(_ context.Context, _ config.TestConfiguration, _ config.HardwareConfig) error {
	return nil
}
func (m *mockOrchestration) Shutdown(_ context.Context) error { return nil }
func (m *mockOrchestration) RobotState() models.RobotState    { return m.robotState }
func (m *mockOrchestration) ResetRobotHoming()                {}

type mockEventLog struct {
	resp     []models.StationEvent
	err      error
	lastFrom time.Time
	lastTo   time.Time
	lastType string
}

func (m *mockEventLog) Append(_ context.Context, _ models.StationEvent) error { return nil }

func (m *mockEventLog) List(_ context.Context, f service.LogFilter) ([]models.StationEvent, error) {
	m.lastFrom = f.From
	m.lastTo = f.To
	m.lastType = f.Type
	return m.resp, m.err
}

type mockCycles struct {
	resp       []models.CycleRecord
	err        error
	lastSerial string
	lastLimit  int
}

func (m *mockCycles) ListCycles(_ context.Context, serialNumber string, limit int) ([]models.CycleRecord, error) {
	m.lastSerial = serialNumber
	m.lastLimit = limit
	return m.resp, m.err
}

// ---- Shared Test Helpers ----

func newTestRouter(s *service.Service) *gin.Engine {
	h := NewHandler(s, nil)
	gin.SetMode(gin.TestMode)
	return h.InitRoutes()
}

// newStationService builds a Service with sane mock defaults for station routes.
func newStationService() (*service.Service, *mockSystem, *mockOrchestration, *mockRunner) {
	sys := &mockSystem{status: models.SystemIdle, safe: true}
	orch := &mockOrchestration{
		links:      map[string]bool{"robot": true, "mcu": true, "power": true, "load_cell": true, "digital_io": true},
		robotState: models.RobotInitialPosition,
	}
	runner := &mockRunner{report: &service.TestRunReport{Passed: true}}
	s := &service.Service{
		Orchestration: orch,
		TestRunner:    runner,
		Authorization: &mockAuth{parseID: 1},
		System:        sys,
		Cycles:        &mockCycles{},
	}
	return s, sys, orch, runner
}

func authHeader(token string) http.Header {
	h := http.Header{}
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	return h
}
