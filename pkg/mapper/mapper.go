// Package mapper translates between logical board actions and raw bus
// frames. It is stateless: encoding yields the command byte, payload and
// accepted response set for one exchange; decoding turns a response payload
// into named attribute values.
package mapper

import (
	"fmt"
	"math"
	"strconv"

	"mqtt-cerebro-bridge/pkg/config"
	"mqtt-cerebro-bridge/pkg/errors"
	"mqtt-cerebro-bridge/pkg/protocol"
)

// Attribute value vocabulary on the state topics
const (
	ValueOn      = "ON"
	ValueOff     = "OFF"
	ValueOpen    = "OPEN"
	ValueClosed  = "CLOSED"
	SeasonWinter = "WINTER"
	SeasonSummer = "SUMMER"
)

// Request is one encoded bus exchange: the command byte, its payload and
// the response command bytes that satisfy it
type Request struct {
	Command byte
	Data    []byte
	Accept  []byte
}

// Poll builds the extended status poll exchange
func Poll() Request {
	return Request{
		Command: protocol.CmdPoll,
		Accept:  []byte{protocol.CmdPoll, protocol.CmdPollReply},
	}
}

// LightChannel builds the relay switch exchange for one channel of a lights
// board. The channel must be in the board's configured range.
func LightChannel(board config.Board, channel int, on bool) (Request, error) {
	if !channelConfigured(board, channel) {
		return Request{}, fmt.Errorf("board '%s' does not drive channel %d", board.ID, channel)
	}
	cmd, err := protocol.LightCommand(channel)
	if err != nil {
		return Request{}, err
	}
	relay := byte(protocol.DataRelayOff)
	if on {
		relay = protocol.DataRelayOn
	}
	return Request{Command: cmd, Data: []byte{relay}, Accept: []byte{cmd}}, nil
}

// Shutter builds the open/close exchange for a shutters board
func Shutter(board config.Board, open bool) Request {
	direction := byte(protocol.DataShutterClose)
	if open {
		direction = protocol.DataShutterOpen
	}
	return Request{
		Command: protocol.CmdShutter,
		Data:    []byte{byte(board.PrimaryChannel()), direction},
		Accept:  []byte{protocol.CmdShutter},
	}
}

// DimmerLevel builds the level set exchange; level is always the 0-255 wire
// domain
func DimmerLevel(level byte) Request {
	return Request{
		Command: protocol.CmdDimmer,
		Data:    []byte{protocol.DataDimmerTag, level},
		Accept:  []byte{protocol.CmdDimmer},
	}
}

// Setpoint builds the thermostat target exchange. The wire splits the value
// into integer degrees and tenths.
func Setpoint(value float64) (Request, error) {
	if value < 0 || value > 255 {
		return Request{}, fmt.Errorf("setpoint %.1f out of range", value)
	}
	integer := byte(value)
	tenths := byte(math.Round((value - float64(integer)) * 10))
	if tenths == 10 { // rounding carried over
		integer++
		tenths = 0
	}
	return Request{
		Command: protocol.CmdSetpoint,
		Data:    []byte{integer, tenths},
		Accept:  []byte{protocol.CmdSetpoint},
	}, nil
}

// Season builds the winter/summer mode exchange
func Season(season byte) Request {
	return Request{
		Command: protocol.CmdSeason,
		Data:    []byte{season},
		Accept:  []byte{protocol.CmdSeason},
	}
}

// BrightnessLevel maps an MQTT brightness payload onto the 0-255 wire
// domain. With percentScale, values up to 100 are percentages (50 maps to
// 128); larger values and the raw policy clamp to 0-255.
func BrightnessLevel(value int, percentScale bool) byte {
	if value < 0 {
		return 0
	}
	if percentScale && value <= 100 {
		return byte(math.Round(float64(value) * 255.0 / 100.0))
	}
	if value > 255 {
		return 255
	}
	return byte(value)
}

// DecodePollStatus interprets an extended poll response for one board. The
// result maps attribute names to publishable values. Shape mismatches are
// DecodeErrors, never silent defaults.
func DecodePollStatus(board config.Board, frame protocol.Frame) (map[string]string, error) {
	if !protocol.IsPollReply(frame.Command) {
		return nil, errors.NewDecodeError(frame.Address, string(board.Type),
			fmt.Sprintf("unexpected response tag 0x%02X", frame.Command))
	}
	st := protocol.ParseStatus(frame.Data)

	switch board.Type {
	case config.BoardLights:
		attrs := make(map[string]string)
		for _, ch := range board.Channels() {
			attrs[channelAttr(ch)] = onOff(st.OutputOn(ch))
		}
		return attrs, nil

	case config.BoardShutters:
		return map[string]string{
			"state": openClosed(st.OutputOn(board.PrimaryChannel())),
		}, nil

	case config.BoardDimmer:
		return map[string]string{
			"state":      onOff(st.DimmerLevel > 0),
			"brightness": strconv.Itoa(int(st.DimmerLevel)),
		}, nil

	case config.BoardThermostat:
		if st.TempSign != 0x00 && st.TempSign != protocol.DataTempNegative {
			return nil, errors.NewDecodeError(frame.Address, string(board.Type),
				fmt.Sprintf("temperature sign byte 0x%02X not recognized", st.TempSign))
		}
		season, err := seasonName(st.Season)
		if err != nil {
			return nil, errors.NewDecodeError(frame.Address, string(board.Type), err.Error())
		}
		return map[string]string{
			"temperature": formatDecimal(st.Temperature),
			"setpoint":    formatDecimal(st.Setpoint),
			"season":      season,
		}, nil
	}

	return nil, errors.NewDecodeError(frame.Address, string(board.Type), "unknown board type")
}

// PollDiagnostics builds the lenient raw view of a poll response published
// on the polling/raw topic. Unlike DecodePollStatus it never fails.
func PollDiagnostics(frame protocol.Frame) map[string]interface{} {
	st := protocol.ParseStatus(frame.Data)
	return map[string]interface{}{
		"address":      int(frame.Address),
		"command":      fmt.Sprintf("0x%02X", frame.Command),
		"device_tag":   fmt.Sprintf("0x%02X", st.DeviceTag),
		"outputs":      fmt.Sprintf("%08b", st.Outputs),
		"inputs":       fmt.Sprintf("%08b", st.Inputs),
		"dimmer_level": int(st.DimmerLevel),
		"temperature":  st.Temperature,
		"setpoint":     st.Setpoint,
		"season":       int(st.Season),
	}
}

// DecodeEcho interprets a command echo (or an unsolicited wall-switch
// frame) into the attributes it confirms for the board. A frame that says
// nothing about this board yields nil.
func DecodeEcho(board config.Board, frame protocol.Frame) map[string]string {
	if ch, ok := protocol.LightChannel(frame.Command); ok {
		if board.Type != config.BoardLights || !channelConfigured(board, ch) {
			return nil
		}
		switch frame.Data[0] {
		case protocol.DataRelayOn:
			return map[string]string{channelAttr(ch): ValueOn}
		case protocol.DataRelayOff:
			return map[string]string{channelAttr(ch): ValueOff}
		}
		return nil
	}

	switch frame.Command {
	case protocol.CmdShutter:
		if board.Type != config.BoardShutters || int(frame.Data[0]) != board.PrimaryChannel() {
			return nil
		}
		switch frame.Data[1] {
		case protocol.DataShutterOpen:
			return map[string]string{"state": ValueOpen}
		case protocol.DataShutterClose:
			return map[string]string{"state": ValueClosed}
		}

	case protocol.CmdDimmer:
		if board.Type != config.BoardDimmer || frame.Data[0] != protocol.DataDimmerTag {
			return nil
		}
		level := frame.Data[1]
		return map[string]string{
			"state":      onOff(level > 0),
			"brightness": strconv.Itoa(int(level)),
		}

	case protocol.CmdSetpoint:
		if board.Type != config.BoardThermostat {
			return nil
		}
		value := float64(frame.Data[0]) + float64(frame.Data[1])/10.0
		return map[string]string{"setpoint": formatDecimal(value)}

	case protocol.CmdSeason:
		if board.Type != config.BoardThermostat {
			return nil
		}
		if season, err := seasonName(frame.Data[0]); err == nil {
			return map[string]string{"season": season}
		}
	}
	return nil
}

// ParseSeason maps an MQTT payload onto the wire season value
func ParseSeason(payload string) (byte, error) {
	switch payload {
	case SeasonWinter, "winter", "0":
		return protocol.SeasonWinter, nil
	case SeasonSummer, "summer", "1":
		return protocol.SeasonSummer, nil
	}
	return 0, fmt.Errorf("season '%s' not recognized", payload)
}

func channelConfigured(board config.Board, channel int) bool {
	for _, ch := range board.Channels() {
		if ch == channel {
			return true
		}
	}
	return false
}

func channelAttr(channel int) string {
	return fmt.Sprintf("channel_%d", channel)
}

func onOff(on bool) string {
	if on {
		return ValueOn
	}
	return ValueOff
}

func openClosed(open bool) string {
	if open {
		return ValueOpen
	}
	return ValueClosed
}

func seasonName(b byte) (string, error) {
	switch b {
	case protocol.SeasonWinter:
		return SeasonWinter, nil
	case protocol.SeasonSummer:
		return SeasonSummer, nil
	}
	return "", fmt.Errorf("season byte %d not recognized", b)
}

func formatDecimal(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64)
}
