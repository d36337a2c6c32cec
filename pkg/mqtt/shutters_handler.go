package mqtt

import (
	"strings"

	"mqtt-cerebro-bridge/pkg/config"
	"mqtt-cerebro-bridge/pkg/mapper"
)

// handleShutters routes shutter board commands: a single set topic taking a
// direction. The boards cannot stop mid-travel, so STOP is rejected rather
// than silently mapped.
func (b *Bridge) handleShutters(board config.Board, sub []string, topic, payload string) {
	if len(sub) != 1 {
		return
	}

	var open bool
	switch strings.ToUpper(payload) {
	case "OPEN", "UP", "ON", "1":
		open = true
	case "CLOSE", "DOWN", "OFF", "0":
		open = false
	case "STOP":
		b.rejectCommand(board, "shutter_stop", topic, payload, "stop is not supported by the shutter boards")
		return
	default:
		b.rejectCommand(board, "shutter_set", topic, payload, "payload must be OPEN or CLOSE")
		return
	}

	action := "shutter_close"
	if open {
		action = "shutter_open"
	}
	b.execute(board, mapper.Shutter(board, open), action)
}
