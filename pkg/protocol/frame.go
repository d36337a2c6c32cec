// Package protocol implements the fixed-length serial frame codec used by
// the Cerebro bus: 14 bytes, start marker, address, command, 10 data bytes,
// end marker, no checksum.
package protocol

import (
	"fmt"

	"mqtt-cerebro-bridge/pkg/errors"
)

// Wire framing constants
const (
	StartByte   = 0x49 // 'I'
	EndByte     = 0x46 // 'F'
	FrameLength = 14
	DataLength  = 10

	AddressMin = 1
	AddressMax = 254
)

// Frame is one decoded bus frame
type Frame struct {
	Address byte
	Command byte
	Data    [DataLength]byte
}

// Bytes returns the 14-byte wire representation of the frame
func (f Frame) Bytes() []byte {
	buf := make([]byte, FrameLength)
	buf[0] = StartByte
	buf[1] = f.Address
	buf[2] = f.Command
	copy(buf[3:3+DataLength], f.Data[:])
	buf[FrameLength-1] = EndByte
	return buf
}

// String renders the frame for trace logging
func (f Frame) String() string {
	return fmt.Sprintf("addr=%d cmd=0x%02X data=% X", f.Address, f.Command, f.Data)
}

// Encode builds a wire frame. Data shorter than 10 bytes is right-padded
// with zeros; longer payloads and out-of-range addresses are encoder misuse.
func Encode(address, command byte, data []byte) ([]byte, error) {
	if len(data) > DataLength {
		return nil, errors.NewPayloadError("encode frame payload", len(data))
	}
	if address < AddressMin || address > AddressMax {
		return nil, errors.NewPayloadError("encode frame address", int(address))
	}

	f := Frame{Address: address, Command: command}
	copy(f.Data[:], data)
	return f.Bytes(), nil
}

// Decode reads one frame from the start of buf. It returns the frame and the
// number of bytes consumed. On a malformed window it consumes exactly one
// byte so callers can resynchronize; on a short window it consumes nothing.
func Decode(buf []byte) (Frame, int, error) {
	if len(buf) < FrameLength {
		return Frame{}, 0, errors.NewFrameTooShort(len(buf))
	}
	if buf[0] != StartByte || buf[FrameLength-1] != EndByte {
		return Frame{}, 1, errors.NewFrameMalformed(len(buf))
	}
	addr := buf[1]
	if addr < AddressMin || addr > AddressMax {
		return Frame{}, 1, errors.NewFrameMalformed(len(buf))
	}

	f := Frame{Address: addr, Command: buf[2]}
	copy(f.Data[:], buf[3:3+DataLength])
	return f, FrameLength, nil
}

// Scanner extracts frames from an unaligned byte stream, skipping noise
// between frames. It never blocks and never panics on garbage input.
type Scanner struct {
	buf     []byte
	dropped int
}

// Push appends freshly read bytes to the scan buffer
func (s *Scanner) Push(p []byte) {
	s.buf = append(s.buf, p...)
}

// Next returns the next complete frame, or false if the buffer holds no
// complete frame yet. Malformed windows are discarded one byte at a time.
func (s *Scanner) Next() (Frame, bool) {
	for {
		f, n, err := Decode(s.buf)
		if err == nil {
			s.buf = s.buf[n:]
			return f, true
		}
		if errors.IsFrameTooShort(err) {
			// Compact so the buffer does not grow unbounded on a noisy line
			if len(s.buf) > 0 && cap(s.buf) > 4*FrameLength {
				s.buf = append(make([]byte, 0, FrameLength), s.buf...)
			}
			return Frame{}, false
		}
		s.dropped += n
		s.buf = s.buf[n:]
	}
}

// Pending returns the number of buffered bytes not yet consumed
func (s *Scanner) Pending() int {
	return len(s.buf)
}

// Dropped returns the total number of bytes discarded while resynchronizing
func (s *Scanner) Dropped() int {
	return s.dropped
}
