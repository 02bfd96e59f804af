package models

import (
	"encoding/json"
	"time"
)

// TemperatureTiming records wall-clock heating/cooling durations measured
// around the MCU commands for one temperature step of one cycle.
type TemperatureTiming struct {
	Cycle       int           `json:"cycle"`
	Temperature float64       `json:"temperature"`
	HeatingTime time.Duration `json:"heating_time"`
	CoolingTime time.Duration `json:"cooling_time"`
}

// TestMeasurements is the temperature -> position -> force matrix built
// incrementally during a run. Each cell holds one force per repeat; after a
// multi-repeat run the aggregate is collapsed so each cell carries its mean.
// Temperatures and Positions keep the configured list order; the maps carry
// the values.
type TestMeasurements struct {
	Temperatures []float64
	Positions    []float64
	Forces       map[float64]map[float64][]float64 // Newton
	Timings      []TemperatureTiming
}

// NewTestMeasurements prepares an empty matrix for the given ordered axes.
func NewTestMeasurements(temperatures, positions []float64) *TestMeasurements {
	m := &TestMeasurements{
		Temperatures: append([]float64(nil), temperatures...),
		Positions:    append([]float64(nil), positions...),
		Forces:       make(map[float64]map[float64][]float64, len(temperatures)),
	}
	for _, t := range temperatures {
		m.Forces[t] = make(map[float64][]float64, len(positions))
	}
	return m
}

// Add appends one force reading to a cell.
func (m *TestMeasurements) Add(temperature, position, force float64) {
	row, ok := m.Forces[temperature]
	if !ok {
		row = make(map[float64][]float64)
		m.Forces[temperature] = row
	}
	row[position] = append(row[position], force)
}

// AddTiming appends one per-temperature timing record.
func (m *TestMeasurements) AddTiming(t TemperatureTiming) {
	m.Timings = append(m.Timings, t)
}

// Cell returns the forces recorded for one (temperature, position) cell.
func (m *TestMeasurements) Cell(temperature, position float64) []float64 {
	return m.Forces[temperature][position]
}

// Mean returns the arithmetic mean of one cell and whether it has readings.
func (m *TestMeasurements) Mean(temperature, position float64) (float64, bool) {
	forces := m.Forces[temperature][position]
	if len(forces) == 0 {
		return 0, false
	}
	sum := 0.0
	for _, f := range forces {
		sum += f
	}
	return sum / float64(len(forces)), true
}

// Count returns the total number of raw force readings.
func (m *TestMeasurements) Count() int {
	n := 0
	for _, row := range m.Forces {
		for _, forces := range row {
			n += len(forces)
		}
	}
	return n
}

// Cells returns the number of populated (temperature, position) cells.
func (m *TestMeasurements) Cells() int {
	n := 0
	for _, row := range m.Forces {
		for _, forces := range row {
			if len(forces) > 0 {
				n++
			}
		}
	}
	return n
}

// AverageForce returns the mean force over every reading of one temperature
// row, or 0 for an empty row.
func (m *TestMeasurements) AverageForce(temperature float64) float64 {
	sum, n := 0.0, 0
	for _, forces := range m.Forces[temperature] {
		for _, f := range forces {
			sum += f
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// measurementsJSON is the wire/storage shape: JSON cannot key objects by
// float, so the force matrix serializes as a grid indexed by the ordered
// temperature and position lists.
type measurementsJSON struct {
	Temperatures []float64           `json:"temperatures"`
	Positions    []float64           `json:"positions"`
	Forces       [][][]float64       `json:"forces"` // [tempIdx][posIdx][reading]
	Timings      []TemperatureTiming `json:"timings,omitempty"`
}

func (m *TestMeasurements) MarshalJSON() ([]byte, error) {
	out := measurementsJSON{
		Temperatures: m.Temperatures,
		Positions:    m.Positions,
		Timings:      m.Timings,
		Forces:       make([][][]float64, len(m.Temperatures)),
	}
	for i, t := range m.Temperatures {
		out.Forces[i] = make([][]float64, len(m.Positions))
		for j, p := range m.Positions {
			out.Forces[i][j] = m.Forces[t][p]
		}
	}
	return json.Marshal(out)
}

func (m *TestMeasurements) UnmarshalJSON(data []byte) error {
	var in measurementsJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	rebuilt := NewTestMeasurements(in.Temperatures, in.Positions)
	rebuilt.Timings = in.Timings
	for i, t := range in.Temperatures {
		if i >= len(in.Forces) {
			break
		}
		for j, p := range in.Positions {
			if j >= len(in.Forces[i]) {
				continue
			}
			if forces := in.Forces[i][j]; len(forces) > 0 {
				rebuilt.Forces[t][p] = append([]float64(nil), forces...)
			}
		}
	}
	*m = *rebuilt
	return nil
}

// CollapseToMean replaces every cell's force list with its single-element
// arithmetic mean. Used to finalize the run aggregate after multiple repeats.
func (m *TestMeasurements) CollapseToMean() {
	for temp, row := range m.Forces {
		for pos := range row {
			if mean, ok := m.Mean(temp, pos); ok {
				row[pos] = []float64{mean}
			}
		}
	}
}
