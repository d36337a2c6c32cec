package serial

import (
	"io"
	"time"

	tarm "github.com/tarm/serial"

	"mqtt-cerebro-bridge/pkg/config"
)

// Port is the minimal surface the transceiver needs from a serial device.
// Tests substitute an in-memory implementation.
type Port interface {
	io.ReadWriteCloser
}

// Opener opens (or reopens) the configured serial device
type Opener func(cfg *config.SerialConfig) (Port, error)

// OpenPort opens the real device described by the serial configuration.
// The read timeout keeps the reader loop responsive to shutdown.
func OpenPort(cfg *config.SerialConfig) (Port, error) {
	c := &tarm.Config{
		Name:        cfg.Port,
		Baud:        cfg.Baudrate,
		Size:        byte(cfg.ByteSize),
		ReadTimeout: time.Duration(cfg.TimeoutMs) * time.Millisecond,
	}

	switch cfg.Parity {
	case "E":
		c.Parity = tarm.ParityEven
	case "O":
		c.Parity = tarm.ParityOdd
	default:
		c.Parity = tarm.ParityNone
	}

	if cfg.StopBits == 2 {
		c.StopBits = tarm.Stop2
	} else {
		c.StopBits = tarm.Stop1
	}

	return tarm.OpenPort(c)
}
