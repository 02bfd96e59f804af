package hardware

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"
)

// Thermal model constants for the simulated MCU.
const (
	simAmbientC       = 25.0 // °C
	simRampUpPerSec   = 3.0  // °C per second toward a hotter target
	simRampDownPerSec = 5.0  // °C per second toward a cooler target
)

var errNotConnected = errors.New("link not connected")

// simLink implements the shared connect/disconnect lifecycle for the
// simulated device set.
type simLink struct {
	mu        sync.Mutex
	connected bool
}

func (l *simLink) Connect(_ context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.connected = true
	return nil
}

func (l *simLink) Disconnect(_ context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.connected = false
	return nil
}

func (l *simLink) IsConnected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.connected
}

func (l *simLink) ensureConnected() error {
	if !l.IsConnected() {
		return errNotConnected
	}
	return nil
}

func (l *simLink) Simulated() bool { return true }

// SimRobot is the simulated positioner. It tracks the last commanded
// position; motion completes instantly.
type SimRobot struct {
	simLink
	mu       sync.Mutex
	position float64
	homed    bool
	servoOn  bool
}

func NewSimRobot() *SimRobot { return &SimRobot{} }

func (r *SimRobot) EnableServo(_ context.Context, _ int) error {
	if err := r.ensureConnected(); err != nil {
		return err
	}
	r.mu.Lock()
	r.servoOn = true
	r.mu.Unlock()
	return nil
}

func (r *SimRobot) HomeAxis(_ context.Context, _ int) error {
	if err := r.ensureConnected(); err != nil {
		return err
	}
	r.mu.Lock()
	r.homed = true
	r.position = 0
	r.mu.Unlock()
	return nil
}

func (r *SimRobot) MoveAbsolute(_ context.Context, _ int, position, _, _, _ float64) error {
	if err := r.ensureConnected(); err != nil {
		return err
	}
	r.mu.Lock()
	r.position = position
	r.mu.Unlock()
	return nil
}

// Position returns the last commanded position.
func (r *SimRobot) Position() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.position
}

// SimMCU is the simulated heater/cooler. Temperature converges toward the
// active target using the first-order ramp model, evaluated lazily from the
// time of the last target change.
type SimMCU struct {
	simLink
	mu          sync.Mutex
	baseTemp    float64
	target      float64
	standbyTemp float64
	since       time.Time
	testMode    int
	fanSpeed    int
	upperTemp   float64
}

func NewSimMCU() *SimMCU {
	return &SimMCU{baseTemp: simAmbientC, target: simAmbientC, since: time.Now()}
}

func (m *SimMCU) WaitBootComplete(ctx context.Context) error {
	if err := m.ensureConnected(); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(10 * time.Millisecond):
		return nil
	}
}

func (m *SimMCU) SetTestMode(_ context.Context, mode int) error {
	if err := m.ensureConnected(); err != nil {
		return err
	}
	m.mu.Lock()
	m.testMode = mode
	m.mu.Unlock()
	return nil
}

func (m *SimMCU) SetUpperTemperature(_ context.Context, temp float64) error {
	if err := m.ensureConnected(); err != nil {
		return err
	}
	m.mu.Lock()
	m.upperTemp = temp
	m.mu.Unlock()
	return nil
}

func (m *SimMCU) SetFanSpeed(_ context.Context, speed int) error {
	if err := m.ensureConnected(); err != nil {
		return err
	}
	m.mu.Lock()
	m.fanSpeed = speed
	m.mu.Unlock()
	return nil
}

func (m *SimMCU) SetOperatingTemperature(_ context.Context, temp float64) error {
	if err := m.ensureConnected(); err != nil {
		return err
	}
	m.retarget(temp)
	return nil
}

func (m *SimMCU) StartStandbyHeating(_ context.Context, operatingTemp, standbyTemp float64) error {
	if err := m.ensureConnected(); err != nil {
		return err
	}
	m.mu.Lock()
	m.standbyTemp = standbyTemp
	m.mu.Unlock()
	m.retarget(operatingTemp)
	return nil
}

func (m *SimMCU) StartStandbyCooling(_ context.Context) error {
	if err := m.ensureConnected(); err != nil {
		return err
	}
	m.mu.Lock()
	standby := m.standbyTemp
	m.mu.Unlock()
	if standby == 0 {
		standby = simAmbientC
	}
	m.retarget(standby)
	return nil
}

func (m *SimMCU) GetTemperature(_ context.Context) (float64, error) {
	if err := m.ensureConnected(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentLocked(time.Now()), nil
}

// retarget freezes the current temperature as the new ramp origin and starts
// converging toward temp.
func (m *SimMCU) retarget(temp float64) {
	now := time.Now()
	m.mu.Lock()
	m.baseTemp = m.currentLocked(now)
	m.target = temp
	m.since = now
	m.mu.Unlock()
}

func (m *SimMCU) currentLocked(now time.Time) float64 {
	elapsed := now.Sub(m.since).Seconds()
	diff := m.target - m.baseTemp
	if diff == 0 {
		return m.target
	}
	rate := simRampUpPerSec
	if diff < 0 {
		rate = simRampDownPerSec
	}
	step := rate * elapsed
	if step >= math.Abs(diff) {
		return m.target
	}
	if diff > 0 {
		return m.baseTemp + step
	}
	return m.baseTemp - step
}

// SimPower is the simulated programmable supply.
type SimPower struct {
	simLink
	mu           sync.Mutex
	voltage      float64
	current      float64
	currentLimit float64
	outputOn     bool
}

func NewSimPower() *SimPower { return &SimPower{} }

func (p *SimPower) SetVoltage(_ context.Context, v float64) error {
	if err := p.ensureConnected(); err != nil {
		return err
	}
	p.mu.Lock()
	p.voltage = v
	p.mu.Unlock()
	return nil
}

func (p *SimPower) SetCurrent(_ context.Context, c float64) error {
	if err := p.ensureConnected(); err != nil {
		return err
	}
	p.mu.Lock()
	p.current = c
	p.mu.Unlock()
	return nil
}

func (p *SimPower) SetCurrentLimit(_ context.Context, limit float64) error {
	if err := p.ensureConnected(); err != nil {
		return err
	}
	p.mu.Lock()
	p.currentLimit = limit
	p.mu.Unlock()
	return nil
}

func (p *SimPower) EnableOutput(_ context.Context) error {
	if err := p.ensureConnected(); err != nil {
		return err
	}
	p.mu.Lock()
	p.outputOn = true
	p.mu.Unlock()
	return nil
}

func (p *SimPower) DisableOutput(_ context.Context) error {
	if err := p.ensureConnected(); err != nil {
		return err
	}
	p.mu.Lock()
	p.outputOn = false
	p.mu.Unlock()
	return nil
}

// OutputOn reports whether the simulated output is enabled.
func (p *SimPower) OutputOn() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.outputOn
}

// SimLoadCell is the simulated load cell. ForceFn, when set, computes the
// reading; the default returns a fixed nominal force.
type SimLoadCell struct {
	simLink
	ForceFn func() float64
}

func NewSimLoadCell() *SimLoadCell { return &SimLoadCell{} }

func (l *SimLoadCell) ReadPeakForce(_ context.Context) (float64, error) {
	if err := l.ensureConnected(); err != nil {
		return 0, err
	}
	if l.ForceFn != nil {
		return l.ForceFn(), nil
	}
	return 25.0, nil
}

// SimDigitalIO is the simulated discrete I/O bank. Inputs are settable so
// safety scenarios can be staged from tests or a bench harness.
type SimDigitalIO struct {
	simLink
	mu      sync.Mutex
	outputs map[int]bool
	inputs  map[int]bool
}

func NewSimDigitalIO() *SimDigitalIO {
	return &SimDigitalIO{
		outputs: make(map[int]bool),
		inputs:  make(map[int]bool),
	}
}

func (d *SimDigitalIO) WriteOutput(_ context.Context, channel int, on bool) error {
	if err := d.ensureConnected(); err != nil {
		return err
	}
	d.mu.Lock()
	d.outputs[channel] = on
	d.mu.Unlock()
	return nil
}

func (d *SimDigitalIO) ReadInput(_ context.Context, channel int) (bool, error) {
	if err := d.ensureConnected(); err != nil {
		return false, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.inputs[channel], nil
}

func (d *SimDigitalIO) ResetAllOutputs(_ context.Context) error {
	if err := d.ensureConnected(); err != nil {
		return err
	}
	d.mu.Lock()
	for ch := range d.outputs {
		d.outputs[ch] = false
	}
	d.mu.Unlock()
	return nil
}

// SetInput stages a raw input level.
func (d *SimDigitalIO) SetInput(channel int, on bool) {
	d.mu.Lock()
	d.inputs[channel] = on
	d.mu.Unlock()
}

// Output returns the last written output level.
func (d *SimDigitalIO) Output(channel int) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.outputs[channel]
}
