package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"eol_station/internal/apperr"
	"eol_station/internal/models"
	"eol_station/internal/service"

	"github.com/gin-gonic/gin"
)

// Common response/status constants to avoid magic strings and typos.
const (
	statusOK      = "ok"
	statusStopped = "emergency_stopped"
	statusCleared = "cleared"

	errRunFailed     = "test run failed"
	errEmergencyStop = "failed to execute emergency stop"
	errClearError    = "failed to clear error state"
	errSafetyCheck   = "failed to read safety sensors"
	errListCycles    = "failed to load cycles"

	defaultCycleLimit = 50
	maxCycleLimit     = 500
)

// Centralized error logging and response.
func (h *Handler) logAndJSONError(c *gin.Context, httpCode int, userMsg, logKey string, err error, kv ...interface{}) {
	if h.log != nil && err != nil {
		fields := append([]interface{}{"err", err}, kv...)
		h.log.Errorw(logKey, fields...)
	}
	c.JSON(httpCode, gin.H{"error": userMsg})
}

// stationStatus is the composite snapshot served by GET /status and /ws.
type stationStatus struct {
	SystemStatus models.SystemStatus `json:"system_status"`
	RobotState   models.RobotState   `json:"robot_state"`
	Links        map[string]bool     `json:"links"`
	LastAlert    *models.SafetyAlert `json:"last_alert,omitempty"`
}

func (h *Handler) stationState() stationStatus {
	return stationStatus{
		SystemStatus: h.services.System.CurrentStatus(),
		RobotState:   h.services.RobotState(),
		Links:        h.services.GetStatus(),
		LastAlert:    h.services.System.LastAlert(),
	}
}

// StartRunRequest is an exported model for Swagger docs of the run payload.
type StartRunRequest struct {
	// DUT identification: serial number is mandatory.
	DUT models.DUTInfo `json:"dut"`
	// Optional per-run parameter overrides layered over the base configuration.
	Overrides struct {
		Voltage              *float64  `json:"voltage,omitempty" example:"18"`
		Current              *float64  `json:"current,omitempty" example:"20"`
		TemperatureList      []float64 `json:"temperature_list,omitempty"`
		StrokePositions      []float64 `json:"stroke_positions,omitempty"`
		RepeatCount          *int      `json:"repeat_count,omitempty" example:"3"`
		TemperatureTolerance *float64  `json:"temperature_tolerance,omitempty" example:"1.0"`
	} `json:"overrides"`
}

// @Summary      Health check
// @Tags         system
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /health [get]
func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": statusOK,
	})
}

// @Summary      Start a test run
// @Description  Runs the full force-test sequence for one DUT. Rejected with 409 when safety conditions are not satisfied.
// @Tags         station
// @Accept       json
// @Produce      json
// @Param        body  body   StartRunRequest  true  "Run payload"
// @Success      200   {object}  map[string]interface{}  "report"
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Failure      409   {object}  map[string]string
// @Failure      500   {object}  map[string]string
// @Router       /api/v1/station/runs [post]
// @Security     BearerAuth
func (h *Handler) startRun(c *gin.Context) {
	var req service.TestRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body: " + err.Error()})
		return
	}
	if req.DUT.SerialNumber == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "dut.serial_number is required"})
		return
	}

	report, err := h.services.Run(c.Request.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrSafetyRejected):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case apperr.KindOf(err) == apperr.KindValidation:
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "field": apperr.Field(err)})
		default:
			h.logAndJSONError(c, http.StatusInternalServerError, errRunFailed, "run_failed", err,
				"serial", req.DUT.SerialNumber)
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"report": report})
}

// @Summary      Emergency stop
// @Description  Latches EMERGENCY_STOP: red lamp plus continuous beep until cleared.
// @Tags         station
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "status, state"
// @Failure      401  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/station/emergency-stop [post]
// @Security     BearerAuth
func (h *Handler) emergencyStop(c *gin.Context) {
	if err := h.services.System.HandleEmergencyStop(c.Request.Context()); err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, errEmergencyStop, "emergency_stop_failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": statusStopped, "state": h.stationState()})
}

// @Summary      Clear error state
// @Description  Acknowledges the latched error/emergency/violation state.
// @Tags         station
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "status, state"
// @Failure      401  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/station/clear-error [post]
// @Security     BearerAuth
func (h *Handler) clearError(c *gin.Context) {
	if err := h.services.System.ClearError(c.Request.Context()); err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, errClearError, "clear_error_failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": statusCleared, "state": h.stationState()})
}

// @Summary      Station status
// @Description  System status, robot state, per-link connection snapshot and the last safety alert.
// @Tags         station
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      401  {object}  map[string]string
// @Router       /api/v1/station/status [get]
// @Security     BearerAuth
func (h *Handler) getStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.stationState())
}

// @Summary      Safety check
// @Description  Reads the safety sensors and reports whether a run may start.
// @Tags         station
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "safe, last_alert"
// @Failure      401  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/station/safety [get]
// @Security     BearerAuth
func (h *Handler) getSafety(c *gin.Context) {
	safe, err := h.services.System.CheckSafetyConditions(c.Request.Context())
	if err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, errSafetyCheck, "safety_check_failed", err)
		return
	}
	resp := gin.H{"safe": safe}
	if alert := h.services.System.LastAlert(); alert != nil {
		resp["last_alert"] = alert
	}
	c.JSON(http.StatusOK, resp)
}

// @Summary      List persisted cycles
// @Tags         station
// @Produce      json
// @Param        serial  query  string  false  "Filter by DUT serial number"
// @Param        limit   query  int     false  "Max rows (default 50, max 500)"
// @Success      200  {object}  map[string]interface{}  "count, cycles"
// @Failure      401  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/station/cycles [get]
// @Security     BearerAuth
func (h *Handler) listCycles(c *gin.Context) {
	limit := defaultCycleLimit
	if qs := c.Query("limit"); qs != "" {
		if v, err := strconv.Atoi(qs); err == nil && v > 0 && v <= maxCycleLimit {
			limit = v
		}
	}

	cycles, err := h.services.Cycles.ListCycles(c.Request.Context(), c.Query("serial"), limit)
	if err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, errListCycles, "cycles_list_failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count":  len(cycles),
		"cycles": cycles,
	})
}
