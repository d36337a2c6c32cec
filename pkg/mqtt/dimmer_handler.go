package mqtt

import (
	"strconv"

	"mqtt-cerebro-bridge/pkg/config"
	"mqtt-cerebro-bridge/pkg/mapper"
)

// handleDimmer routes dimmer board commands:
//
//	set             ON restores the last nonzero level, OFF drops to zero
//	brightness/set  numeric level, scaled per the board's percent policy
func (b *Bridge) handleDimmer(board config.Board, sub []string, topic, payload string) {
	switch {
	case len(sub) == 1:
		on, ok := parseOnOff(payload)
		if !ok {
			b.rejectCommand(board, "dimmer_set", topic, payload, "payload must be ON or OFF")
			return
		}
		if on {
			b.execute(board, mapper.DimmerLevel(b.lastBrightness(board)), "dimmer_on")
		} else {
			b.execute(board, mapper.DimmerLevel(0), "dimmer_off")
		}

	case len(sub) == 2 && sub[0] == "brightness":
		value, err := strconv.Atoi(payload)
		if err != nil {
			b.rejectCommand(board, "brightness_set", topic, payload, "payload must be a number")
			return
		}
		if value < 0 {
			b.rejectCommand(board, "brightness_set", topic, payload, "brightness cannot be negative")
			return
		}
		level := mapper.BrightnessLevel(value, board.PercentScale)
		b.execute(board, mapper.DimmerLevel(level), "brightness_set")
	}
}

// lastBrightness returns the last confirmed nonzero level, defaulting to
// full brightness when the dimmer has never reported one
func (b *Bridge) lastBrightness(board config.Board) byte {
	if v, ok := b.registry.Get(board.ID, "brightness"); ok {
		if level, err := strconv.Atoi(v); err == nil && level > 0 && level <= 255 {
			return byte(level)
		}
	}
	return 255
}
