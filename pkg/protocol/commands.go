package protocol

import "fmt"

// Command bytes understood by the boards
const (
	CmdPoll      = 0x40 // extended status poll
	CmdPollReply = 0x50 // alternate tag some boards answer polls with

	CmdLightLowBase  = 0x51 // channels 1..4: 0x51 + (n-1)
	CmdLightHighBase = 0x65 // channels 5..8: 0x65 + (n-5)

	CmdShutter  = 0x5C
	CmdDimmer   = 0x5B
	CmdSetpoint = 0x5A
	CmdSeason   = 0x6B
)

// Data bytes carried in command payloads
const (
	DataRelayOn  = 0x41 // 'A'
	DataRelayOff = 0x53 // 'S'

	DataShutterOpen  = 0x55 // 'U'
	DataShutterClose = 0x44 // 'D'

	DataDimmerTag = 0x53 // fixed first payload byte of a dimmer set

	DataTempNegative = 0x2D // '-' sign byte in poll status temperature
)

// Season values on the wire and in poll status byte 9
const (
	SeasonWinter = 0
	SeasonSummer = 1
)

// MaxLightChannels is the number of relay channels a lights board can carry
const MaxLightChannels = 8

// LightCommand returns the command byte that switches relay channel n.
// The command byte selects the channel; the relay state travels in data[0].
func LightCommand(channel int) (byte, error) {
	switch {
	case channel >= 1 && channel <= 4:
		return CmdLightLowBase + byte(channel-1), nil
	case channel >= 5 && channel <= MaxLightChannels:
		return CmdLightHighBase + byte(channel-5), nil
	default:
		return 0, fmt.Errorf("light channel %d out of range 1-%d", channel, MaxLightChannels)
	}
}

// LightChannel is the inverse of LightCommand. ok is false when cmd is not a
// light channel command.
func LightChannel(cmd byte) (int, bool) {
	switch {
	case cmd >= CmdLightLowBase && cmd < CmdLightLowBase+4:
		return int(cmd-CmdLightLowBase) + 1, true
	case cmd >= CmdLightHighBase && cmd < CmdLightHighBase+4:
		return int(cmd-CmdLightHighBase) + 5, true
	default:
		return 0, false
	}
}

// IsPollReply reports whether cmd is an accepted response tag for a poll
func IsPollReply(cmd byte) bool {
	return cmd == CmdPoll || cmd == CmdPollReply
}
