package mqtt

import (
	"fmt"
	"strconv"

	"mqtt-cerebro-bridge/pkg/config"
	"mqtt-cerebro-bridge/pkg/mapper"
)

// handleLights routes lights board commands:
//
//	ch/<n>/set  ON|OFF for one relay channel
//	set         ON|OFF for the primary channel (simple switch setups)
func (b *Bridge) handleLights(board config.Board, sub []string, topic, payload string) {
	var channel int
	switch {
	case len(sub) == 3 && sub[0] == "ch":
		n, err := strconv.Atoi(sub[1])
		if err != nil {
			b.rejectCommand(board, "ch_set", topic, payload, fmt.Sprintf("channel '%s' is not a number", sub[1]))
			return
		}
		channel = n
	case len(sub) == 1:
		channel = board.PrimaryChannel()
	default:
		return
	}

	on, ok := parseOnOff(payload)
	action := lightAction(channel, on)
	if !ok {
		b.rejectCommand(board, action, topic, payload, "payload must be ON or OFF")
		return
	}

	req, err := mapper.LightChannel(board, channel, on)
	if err != nil {
		b.rejectCommand(board, action, topic, payload, err.Error())
		return
	}
	b.execute(board, req, action)
}

func lightAction(channel int, on bool) string {
	if on {
		return fmt.Sprintf("ch%d_on", channel)
	}
	return fmt.Sprintf("ch%d_off", channel)
}
