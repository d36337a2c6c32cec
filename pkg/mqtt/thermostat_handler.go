package mqtt

import (
	"strconv"
	"strings"

	"mqtt-cerebro-bridge/pkg/config"
	"mqtt-cerebro-bridge/pkg/mapper"
)

// handleThermostat routes thermostat board commands:
//
//	setpoint/set  target temperature, decimal comma tolerated
//	season/set    WINTER or SUMMER
func (b *Bridge) handleThermostat(board config.Board, sub []string, topic, payload string) {
	if len(sub) != 2 {
		return
	}

	switch sub[0] {
	case "setpoint":
		value, err := strconv.ParseFloat(strings.ReplaceAll(payload, ",", "."), 64)
		if err != nil {
			b.rejectCommand(board, "setpoint_set", topic, payload, "payload must be a temperature")
			return
		}
		req, err := mapper.Setpoint(value)
		if err != nil {
			b.rejectCommand(board, "setpoint_set", topic, payload, err.Error())
			return
		}
		b.execute(board, req, "setpoint_set")

	case "season":
		season, err := mapper.ParseSeason(payload)
		if err != nil {
			b.rejectCommand(board, "season_set", topic, payload, err.Error())
			return
		}
		b.execute(board, mapper.Season(season), "season_set")
	}
}
