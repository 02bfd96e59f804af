package repository

import (
	"context"
	"database/sql"
	"time"

	"eol_station/internal/models"
)

type Authorization interface {
	Create(username, hash string) (int, error)
	GetByUsername(username string) (*models.Operator, error)
}

// MeasurementRepo persists one cycle of the force-test matrix per row. Saves
// are fire-and-forget from the run's point of view: a failed save is logged
// by the caller and never aborts the run.
type MeasurementRepo interface {
	SaveCycleMeasurements(ctx context.Context, m *models.TestMeasurements, cycleNumber, totalCycles int, serialNumber string) error
	ListCycles(ctx context.Context, serialNumber string, limit int) ([]models.CycleRecord, error)
}

// EventRepo is the append-only station log.
type EventRepo interface {
	Append(ctx context.Context, e models.StationEvent) error
	List(ctx context.Context, from, to time.Time, typ string) ([]models.StationEvent, error)
}

type Repository struct {
	Measurements MeasurementRepo
	Events       EventRepo
	Auth         Authorization
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{
		Measurements: NewMeasurementSQLite(db),
		Events:       NewEventSQLite(db),
		Auth:         NewOperatorRepository(db),
	}
}
