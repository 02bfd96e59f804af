package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"eol_station/internal/models"
)

type MeasurementSQLite struct {
	db *sql.DB
}

func NewMeasurementSQLite(db *sql.DB) *MeasurementSQLite { return &MeasurementSQLite{db: db} }

var _ MeasurementRepo = (*MeasurementSQLite)(nil)

const (
	insertCycleSQL = `
		INSERT INTO measurement_cycles (serial_number, cycle_number, total_cycles, saved_at, payload)
		VALUES (?, ?, ?, ?, ?)
	`
	selectCyclesSQL = `
		SELECT id, serial_number, cycle_number, total_cycles, saved_at, payload
		FROM measurement_cycles
		WHERE serial_number = ?
		ORDER BY saved_at DESC, id DESC
		LIMIT ?
	`
)

// SaveCycleMeasurements stores one cycle's matrix as a JSON payload row.
func (r *MeasurementSQLite) SaveCycleMeasurements(ctx context.Context, m *models.TestMeasurements, cycleNumber, totalCycles int, serialNumber string) error {
	payload, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal measurements for %q cycle %d: %w", serialNumber, cycleNumber, err)
	}
	_, err = r.db.ExecContext(ctx, insertCycleSQL,
		serialNumber,
		cycleNumber,
		totalCycles,
		time.Now().UTC().Format("2006-01-02 15:04:05"),
		string(payload),
	)
	if err != nil {
		return fmt.Errorf("insert measurements for %q cycle %d: %w", serialNumber, cycleNumber, err)
	}
	return nil
}

// ListCycles returns the most recent stored cycles for a serial number,
// newest first. limit <= 0 defaults to 50.
func (r *MeasurementSQLite) ListCycles(ctx context.Context, serialNumber string, limit int) ([]models.CycleRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, selectCyclesSQL, serialNumber, limit)
	if err != nil {
		return nil, fmt.Errorf("select measurements for %q: %w", serialNumber, err)
	}
	defer rows.Close()

	out := make([]models.CycleRecord, 0, limit)
	for rows.Next() {
		var rec models.CycleRecord
		var savedAt string
		var payload string
		if err := rows.Scan(&rec.ID, &rec.SerialNumber, &rec.CycleNumber, &rec.TotalCycles, &savedAt, &payload); err != nil {
			return nil, fmt.Errorf("scan measurement row: %w", err)
		}
		if ts, err := time.Parse("2006-01-02 15:04:05", savedAt); err == nil {
			rec.SavedAt = ts.UTC()
		}
		var m models.TestMeasurements
		if err := json.Unmarshal([]byte(payload), &m); err != nil {
			return nil, fmt.Errorf("unmarshal measurement payload id=%d: %w", rec.ID, err)
		}
		rec.Measurements = &m
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
