package industrial

import (
	"context"
	"time"

	"eol_station/internal/config"
	"eol_station/internal/hardware"
	"eol_station/internal/logger"
	"eol_station/internal/models"
)

// Blink and beep timing. Blink-slow is a 2 s period: 1 s on, 1 s off.
const (
	defaultBlinkInterval = 1 * time.Second
	defaultBeepPulse     = 1 * time.Second
)

// lampPattern is the per-channel output assignment for one system status.
type lampPattern struct {
	red    models.LampState
	yellow models.LampState
	green  models.LampState
	beep   models.BeepMode
}

// statusPatterns is the full output table. Green stays on in every state that
// does not blink it; no transition ever turns green off.
var statusPatterns = map[models.SystemStatus]lampPattern{
	models.SystemIdle:       {models.LampOff, models.LampOff, models.LampOn, models.BeepOff},
	models.SystemRunning:    {models.LampOff, models.LampOff, models.LampOn, models.BeepOff},
	models.TestPass:         {models.LampOff, models.LampOff, models.LampBlinkSlow, models.BeepPulse},
	models.TestFail:         {models.LampOff, models.LampBlinkSlow, models.LampOn, models.BeepPulse},
	models.SystemError:      {models.LampBlinkSlow, models.LampOff, models.LampOn, models.BeepOff},
	models.TestErrorCleared: {models.LampOn, models.LampOff, models.LampOn, models.BeepOff},
	models.EmergencyStop:    {models.LampBlinkSlow, models.LampOff, models.LampOn, models.BeepContinuous},
	models.EmergencyCleared: {models.LampOn, models.LampOff, models.LampOn, models.BeepOff},
	models.SafetyViolation:  {models.LampOff, models.LampBlinkSlow, models.LampOn, models.BeepOff},
	models.SafetyCleared:    {models.LampOff, models.LampOn, models.LampOn, models.BeepOff},
}

type lampCommand struct {
	status models.SystemStatus
	allOff bool
	ack    chan error
}

// TowerLamp drives the three-color lamp and beeper. All channel state is
// owned by a dedicated actor goroutine; callers hand patterns over a channel,
// so a blink keeps running after the requesting call has returned. Static
// writes are confirmed through the command ack before SetSystemStatus returns.
type TowerLamp struct {
	dio      hardware.DigitalIO
	channels config.DigitalChannels
	log      *logger.Logger

	blinkInterval time.Duration
	beepPulse     time.Duration

	cmds chan lampCommand
	stop chan struct{}
	done chan struct{}
}

// NewTowerLamp builds the controller; call Start before use and Close on
// shutdown.
func NewTowerLamp(dio hardware.DigitalIO, channels config.DigitalChannels, log *logger.Logger) *TowerLamp {
	return &TowerLamp{
		dio:           dio,
		channels:      channels,
		log:           log,
		blinkInterval: defaultBlinkInterval,
		beepPulse:     defaultBeepPulse,
		cmds:          make(chan lampCommand),
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
}

// Start launches the lamp actor.
func (t *TowerLamp) Start() {
	go t.run()
}

// Close stops the actor. Lamp levels are left as-is; callers wanting a dark
// tower call AllOff first.
func (t *TowerLamp) Close() {
	select {
	case <-t.done:
		return
	default:
	}
	close(t.stop)
	<-t.done
}

// SetSystemStatus applies the output pattern for status. It blocks until the
// actor has confirmed the static channel writes; blink timers keep running in
// the actor afterwards.
func (t *TowerLamp) SetSystemStatus(ctx context.Context, status models.SystemStatus) error {
	return t.submit(ctx, lampCommand{status: status})
}

// AllOff is the explicit shutdown pattern: every lamp and the beeper off.
// This is the only transition allowed to turn the green lamp off.
func (t *TowerLamp) AllOff(ctx context.Context) error {
	return t.submit(ctx, lampCommand{allOff: true})
}

func (t *TowerLamp) submit(ctx context.Context, cmd lampCommand) error {
	cmd.ack = make(chan error, 1)
	select {
	case t.cmds <- cmd:
	case <-t.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-cmd.ack:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run is the actor loop. It exclusively owns the blink set, the beep timer
// and the last-applied channel levels.
func (t *TowerLamp) run() {
	defer close(t.done)

	blinks := make(map[int]bool) // pin -> current level
	var ticker *time.Ticker
	var tickC <-chan time.Time
	var beepTimer *time.Timer
	var beepC <-chan time.Time

	stopTicker := func() {
		if ticker != nil {
			ticker.Stop()
			ticker = nil
			tickC = nil
		}
	}
	stopBeepTimer := func() {
		if beepTimer != nil {
			beepTimer.Stop()
			beepTimer = nil
			beepC = nil
		}
	}

	// cancelBlinks restores every blinking channel to its resting level:
	// green back to on, red/yellow back to off.
	cancelBlinks := func() {
		for pin := range blinks {
			t.write(pin, pin == t.channels.LampGreen)
			delete(blinks, pin)
		}
		stopTicker()
	}

	apply := func(cmd lampCommand) error {
		cancelBlinks()
		stopBeepTimer()

		if cmd.allOff {
			var first error
			for _, pin := range []int{t.channels.LampRed, t.channels.LampYellow, t.channels.LampGreen, t.channels.Beep} {
				if err := t.write(pin, false); err != nil && first == nil {
					first = err
				}
			}
			return first
		}

		p, ok := statusPatterns[cmd.status]
		if !ok {
			t.log.Warnw("lamp_unknown_status", "status", cmd.status)
			return nil
		}

		var first error
		set := func(pin int, state models.LampState) {
			switch state {
			case models.LampOn, models.LampOff:
				if err := t.write(pin, state == models.LampOn); err != nil && first == nil {
					first = err
				}
			case models.LampBlinkSlow:
				// Blink starts in the on phase.
				if err := t.write(pin, true); err != nil && first == nil {
					first = err
				}
				blinks[pin] = true
			}
		}
		set(t.channels.LampRed, p.red)
		set(t.channels.LampYellow, p.yellow)
		set(t.channels.LampGreen, p.green)

		switch p.beep {
		case models.BeepOff:
			if err := t.write(t.channels.Beep, false); err != nil && first == nil {
				first = err
			}
		case models.BeepContinuous:
			if err := t.write(t.channels.Beep, true); err != nil && first == nil {
				first = err
			}
		case models.BeepPulse:
			if err := t.write(t.channels.Beep, true); err != nil && first == nil {
				first = err
			}
			beepTimer = time.NewTimer(t.beepPulse)
			beepC = beepTimer.C
		}

		if len(blinks) > 0 && ticker == nil {
			ticker = time.NewTicker(t.blinkInterval)
			tickC = ticker.C
		}
		return first
	}

	for {
		select {
		case cmd := <-t.cmds:
			cmd.ack <- apply(cmd)
		case <-tickC:
			for pin, level := range blinks {
				blinks[pin] = !level
				t.write(pin, !level)
			}
		case <-beepC:
			t.write(t.channels.Beep, false)
			stopBeepTimer()
		case <-t.stop:
			stopTicker()
			stopBeepTimer()
			return
		}
	}
}

// write sets one output channel; failures are logged and never propagate
// beyond the returned error (lamp trouble must not take the station down).
func (t *TowerLamp) write(pin int, on bool) error {
	if !t.dio.IsConnected() {
		t.log.Warnw("lamp_write_skipped", "pin", pin, "reason", "digital io not connected")
		return nil
	}
	if err := t.dio.WriteOutput(context.Background(), pin, on); err != nil {
		t.log.Errorw("lamp_write_failed", "pin", pin, "on", on, "err", err)
		return err
	}
	return nil
}
