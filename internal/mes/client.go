// Package mes pushes run lifecycle notifications to the factory MES over a
// length-prefixed JSON TCP exchange: 4-byte big-endian length header, UTF-8
// JSON payload, one JSON ACK per message. Every notification uses a fresh
// connection. Failures never block a test run; the caller logs and moves on.
package mes

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"eol_station/internal/config"
	"eol_station/internal/logger"
)

const maxFrameSize = 1 << 20 // 1 MiB, matches the MES client limit

// message is the wire payload for both notification types.
type message struct {
	MessageType  string `json:"message_type"` // START | COMPLETE
	SerialNumber string `json:"serial_number"`
	Result       string `json:"result,omitempty"` // PASS | FAIL, COMPLETE only
	Timestamp    string `json:"timestamp,omitempty"`
}

// ack is the MES response to every message.
type ack struct {
	Status    string `json:"status"` // OK | ERROR
	Message   string `json:"message,omitempty"`
	ErrorCode string `json:"error_code,omitempty"`
}

// Client implements service.RunNotifier. A disabled client accepts every
// notification as a no-op so callers never need to special-case config.
type Client struct {
	settings config.MESSettings
	log      *logger.Logger

	// Injected for tests; production uses a real dialer and real delays.
	dial  func(ctx context.Context, addr string) (net.Conn, error)
	sleep func(ctx context.Context, d time.Duration) error
}

func NewClient(settings config.MESSettings, log *logger.Logger) *Client {
	d := &net.Dialer{}
	return &Client{
		settings: settings,
		log:      log,
		dial: func(ctx context.Context, addr string) (net.Conn, error) {
			return d.DialContext(ctx, "tcp", addr)
		},
		sleep: func(ctx context.Context, d time.Duration) error {
			t := time.NewTimer(d)
			defer t.Stop()
			select {
			case <-t.C:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	}
}

// NotifyStart reports the beginning of a run for the given serial number.
func (c *Client) NotifyStart(ctx context.Context, serialNumber string) error {
	return c.send(ctx, message{
		MessageType:  "START",
		SerialNumber: serialNumber,
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
	})
}

// NotifyComplete reports the outcome of a finished run.
func (c *Client) NotifyComplete(ctx context.Context, serialNumber string, passed bool) error {
	result := "FAIL"
	if passed {
		result = "PASS"
	}
	return c.send(ctx, message{
		MessageType:  "COMPLETE",
		SerialNumber: serialNumber,
		Result:       result,
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
	})
}

// send opens a fresh connection with bounded retries, writes one frame and
// waits for the ACK. The connection is always closed before returning.
func (c *Client) send(ctx context.Context, msg message) error {
	if !c.settings.Enabled {
		c.log.Debugw("mes_disabled", "type", msg.MessageType, "serial", msg.SerialNumber)
		return nil
	}

	conn, err := c.connect(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	timeout := time.Duration(c.settings.TimeoutSec) * time.Second
	if timeout > 0 {
		if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
			return fmt.Errorf("mes set deadline: %w", err)
		}
	}

	if err := writeFrame(conn, msg); err != nil {
		return fmt.Errorf("mes send %s: %w", msg.MessageType, err)
	}
	resp, err := readAck(conn)
	if err != nil {
		return fmt.Errorf("mes ack %s: %w", msg.MessageType, err)
	}
	if resp.Status != "OK" {
		return fmt.Errorf("mes rejected %s: %s (%s)", msg.MessageType, resp.Message, resp.ErrorCode)
	}
	c.log.Infow("mes_acknowledged", "type", msg.MessageType, "serial", msg.SerialNumber)
	return nil
}

// connect dials the MES endpoint, retrying up to the configured attempt count
// with a fixed delay between attempts.
func (c *Client) connect(ctx context.Context) (net.Conn, error) {
	addr := fmt.Sprintf("%s:%d", c.settings.Host, c.settings.Port)
	attempts := c.settings.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}
	delay := time.Duration(c.settings.RetryDelaySec) * time.Second

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		conn, err := c.dial(ctx, addr)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		c.log.Warnw("mes_connect_failed", "addr", addr, "attempt", attempt, "attempts", attempts, "err", err)
		if attempt < attempts {
			if err := c.sleep(ctx, delay); err != nil {
				return nil, err
			}
		}
	}
	return nil, fmt.Errorf("mes connect %s: %w", addr, lastErr)
}

func writeFrame(w io.Writer, msg message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	_, err = w.Write(payload)
	return err
}

func readAck(r io.Reader) (ack, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return ack{}, err
	}
	size := binary.BigEndian.Uint32(header[:])
	if size == 0 || size > maxFrameSize {
		return ack{}, errors.New("invalid ack frame size")
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return ack{}, err
	}
	var a ack
	if err := json.Unmarshal(payload, &a); err != nil {
		return ack{}, err
	}
	return a, nil
}
