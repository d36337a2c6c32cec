// Package serial owns the bus: it is the only writer to the serial device
// and enforces the half-duplex discipline of one in-flight exchange.
package serial

import (
	"context"
	"io"
	"sync"
	"time"

	"mqtt-cerebro-bridge/pkg/config"
	"mqtt-cerebro-bridge/pkg/errors"
	"mqtt-cerebro-bridge/pkg/logger"
	"mqtt-cerebro-bridge/pkg/metrics"
	"mqtt-cerebro-bridge/pkg/protocol"
)

// Reopen backoff bounds after a link loss
const (
	reopenBackoffMin = 1 * time.Second
	reopenBackoffMax = 8 * time.Second
)

// Observer receives well-formed frames that satisfy no pending exchange,
// typically wall-switch presses seen on the bus
type Observer func(frame protocol.Frame)

// pendingRequest is the correlation record for the single in-flight exchange
type pendingRequest struct {
	address byte
	accept  []byte
}

func (p *pendingRequest) matches(f protocol.Frame) bool {
	if f.Address != p.address {
		return false
	}
	for _, cmd := range p.accept {
		if f.Command == cmd {
			return true
		}
	}
	return false
}

// Transceiver owns the serial port exclusively. A reader goroutine scans the
// byte stream with the resynchronizing decoder; Exchange serializes
// request/response pairs under a mutex the way a half-duplex bus requires.
type Transceiver struct {
	cfg     *config.SerialConfig
	open    Opener
	metrics metrics.MetricsCollector

	exchangeMutex sync.Mutex // Synchronize command/response pairs
	responseChan  chan protocol.Frame

	pendingMu sync.Mutex
	pending   *pendingRequest

	portMu sync.Mutex
	port   Port

	observer Observer

	droppedSeen int // scanner bytes discarded so far, reader goroutine only

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewTransceiver creates a transceiver for the configured device. A nil
// opener uses the real serial port.
func NewTransceiver(cfg *config.SerialConfig, open Opener, mc metrics.MetricsCollector) *Transceiver {
	if open == nil {
		open = OpenPort
	}
	if mc == nil {
		mc = metrics.NewNullMetrics()
	}
	return &Transceiver{
		cfg:          cfg,
		open:         open,
		metrics:      mc,
		responseChan: make(chan protocol.Frame, 10),
		stopCh:       make(chan struct{}),
	}
}

// SetObserver installs the unsolicited-frame observer. Must be called
// before Start.
func (t *Transceiver) SetObserver(o Observer) {
	t.observer = o
}

// Start opens the device and launches the reader loop. The first open must
// succeed; a device that cannot be opened at startup is a configuration
// problem, not a transient one.
func (t *Transceiver) Start() error {
	port, err := t.open(t.cfg)
	if err != nil {
		return errors.NewConfigError("open serial port", err, "serial.port")
	}
	t.portMu.Lock()
	t.port = port
	t.portMu.Unlock()

	logger.LogInfo("Serial port %s open at %d baud", t.cfg.Port, t.cfg.Baudrate)

	t.wg.Add(1)
	go t.readLoop()
	return nil
}

// Stop terminates the reader loop and closes the device
func (t *Transceiver) Stop() {
	close(t.stopCh)
	t.closePort()
	t.wg.Wait()
	logger.LogInfo("Serial transceiver stopped")
}

func (t *Transceiver) closePort() {
	t.portMu.Lock()
	if t.port != nil {
		if err := t.port.Close(); err != nil {
			logger.LogWarn("Closing serial port: %v", err)
		}
		t.port = nil
	}
	t.portMu.Unlock()
}

func (t *Transceiver) currentPort() Port {
	t.portMu.Lock()
	defer t.portMu.Unlock()
	return t.port
}

// readLoop scans the port forever, reopening with capped backoff after a
// link loss. Shutdown closes the port, which unblocks the pending Read.
func (t *Transceiver) readLoop() {
	defer t.wg.Done()

	var scanner protocol.Scanner
	buf := make([]byte, 4*protocol.FrameLength)
	backoff := reopenBackoffMin

	for {
		select {
		case <-t.stopCh:
			return
		default:
		}

		port := t.currentPort()
		if port == nil {
			if !t.reopen(&backoff) {
				return
			}
			continue
		}

		n, err := port.Read(buf)
		if n > 0 {
			backoff = reopenBackoffMin
			scanner.Push(buf[:n])
			t.dispatchFrames(&scanner)
		}
		if err != nil {
			if err == io.EOF {
				// Read timeout on an idle line
				continue
			}
			select {
			case <-t.stopCh:
				return
			default:
			}
			logger.LogWarn("Serial read failed: %v", err)
			t.closePort()
		}
	}
}

// reopen waits out the backoff and tries to open the device again. Returns
// false when shutdown interrupts the wait.
func (t *Transceiver) reopen(backoff *time.Duration) bool {
	select {
	case <-t.stopCh:
		return false
	case <-time.After(*backoff):
	}

	port, err := t.open(t.cfg)
	if err != nil {
		logger.LogWarn("Reopening %s failed, retrying in %v: %v", t.cfg.Port, *backoff, err)
		*backoff *= 2
		if *backoff > reopenBackoffMax {
			*backoff = reopenBackoffMax
		}
		return true
	}

	t.portMu.Lock()
	t.port = port
	t.portMu.Unlock()
	*backoff = reopenBackoffMin
	logger.LogInfo("Serial port %s reopened", t.cfg.Port)
	return true
}

// dispatchFrames drains the scanner, routing each frame to the pending
// exchange or to the unsolicited observer
func (t *Transceiver) dispatchFrames(scanner *protocol.Scanner) {
	defer func() {
		if d := scanner.Dropped(); d > t.droppedSeen {
			t.metrics.IncrementFrameErrors()
			logger.LogDebug("Discarded %d noise bytes while resynchronizing", d-t.droppedSeen)
			t.droppedSeen = d
		}
	}()

	for {
		frame, ok := scanner.Next()
		if !ok {
			return
		}

		t.pendingMu.Lock()
		pending := t.pending
		t.pendingMu.Unlock()

		if pending != nil && pending.matches(frame) {
			select {
			case t.responseChan <- frame:
			default:
				logger.LogWarn("Response channel full, dropping frame %s", frame)
			}
			continue
		}

		logger.LogDebug("Unsolicited frame on bus: %s", frame)
		if t.observer != nil {
			t.observer(frame)
		}
	}
}

// Exchange writes one command frame and waits for a response from the same
// address carrying one of the accepted command bytes. One exchange is in
// flight at any instant; callers from the scheduler, MQTT handlers and the
// facade all serialize here.
func (t *Transceiver) Exchange(ctx context.Context, address, command byte, data []byte, accept []byte, timeout time.Duration) (protocol.Frame, error) {
	t.exchangeMutex.Lock()
	defer t.exchangeMutex.Unlock()

	wire, err := protocol.Encode(address, command, data)
	if err != nil {
		return protocol.Frame{}, err
	}

	// Clear any stale response left over from a previous timed-out exchange
	select {
	case stale := <-t.responseChan:
		logger.LogWarn("Cleared stale response before new exchange: %s", stale)
	default:
	}

	t.pendingMu.Lock()
	t.pending = &pendingRequest{address: address, accept: accept}
	t.pendingMu.Unlock()
	defer func() {
		t.pendingMu.Lock()
		t.pending = nil
		t.pendingMu.Unlock()
	}()

	port := t.currentPort()
	if port == nil {
		return protocol.Frame{}, errors.NewTimeoutError(address, command, 0)
	}
	start := time.Now()
	if _, err := port.Write(wire); err != nil {
		logger.LogWarn("Serial write failed: %v", err)
		t.closePort()
		return protocol.Frame{}, errors.NewTimeoutError(address, command, 0)
	}
	logger.LogTrace("TX addr=%d cmd=0x%02X data=% X", address, command, data)

	select {
	case frame := <-t.responseChan:
		t.metrics.IncrementExchanges()
		t.metrics.ObserveExchangeDuration(time.Since(start))
		logger.LogTrace("RX %s", frame)
		return frame, nil

	case <-time.After(timeout):
		t.metrics.IncrementTimeouts()
		return protocol.Frame{}, errors.NewTimeoutError(address, command, timeout)

	case <-ctx.Done():
		return protocol.Frame{}, ctx.Err()

	case <-t.stopCh:
		return protocol.Frame{}, errors.NewTimeoutError(address, command, timeout)
	}
}
