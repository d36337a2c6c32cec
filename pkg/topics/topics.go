// Package topics centralizes the MQTT topic layout so the bridge, handlers
// and discovery publisher never disagree on a path.
package topics

import "fmt"

// Status returns the bridge availability topic (LWT target)
func Status(base string) string {
	return base + "/status"
}

// PollAllSet returns the full-cycle trigger topic
func PollAllSet(base string) string {
	return base + "/poll_all/set"
}

// PollSet returns the single-board poll trigger topic
func PollSet(base, slug string) string {
	return fmt.Sprintf("%s/%s/poll/set", base, slug)
}

// PollLast returns the per-board last poll outcome topic
func PollLast(base, slug string) string {
	return fmt.Sprintf("%s/%s/poll/last", base, slug)
}

// PollingRaw returns the per-board raw poll diagnostic topic
func PollingRaw(base, slug string) string {
	return fmt.Sprintf("%s/%s/polling/raw", base, slug)
}

// ActionResult returns the per-board command outcome topic
func ActionResult(base, slug string) string {
	return fmt.Sprintf("%s/%s/action/result", base, slug)
}

// ChannelSet returns a lights channel command topic
func ChannelSet(base, slug string, channel int) string {
	return fmt.Sprintf("%s/%s/ch/%d/set", base, slug, channel)
}

// ChannelState returns a lights channel state topic
func ChannelState(base, slug string, channel int) string {
	return fmt.Sprintf("%s/%s/ch/%d/state", base, slug, channel)
}

// Set returns the primary command topic (shutters, dimmer, single-channel lights)
func Set(base, slug string) string {
	return fmt.Sprintf("%s/%s/set", base, slug)
}

// State returns the primary state topic
func State(base, slug string) string {
	return fmt.Sprintf("%s/%s/state", base, slug)
}

// BrightnessSet returns the dimmer level command topic
func BrightnessSet(base, slug string) string {
	return fmt.Sprintf("%s/%s/brightness/set", base, slug)
}

// BrightnessState returns the dimmer level state topic (always 0-255)
func BrightnessState(base, slug string) string {
	return fmt.Sprintf("%s/%s/brightness/state", base, slug)
}

// SetpointSet returns the thermostat target command topic
func SetpointSet(base, slug string) string {
	return fmt.Sprintf("%s/%s/setpoint/set", base, slug)
}

// SetpointState returns the thermostat target state topic
func SetpointState(base, slug string) string {
	return fmt.Sprintf("%s/%s/setpoint/state", base, slug)
}

// TemperatureState returns the thermostat measured temperature topic
func TemperatureState(base, slug string) string {
	return fmt.Sprintf("%s/%s/temperature/state", base, slug)
}

// SeasonSet returns the thermostat season command topic
func SeasonSet(base, slug string) string {
	return fmt.Sprintf("%s/%s/season/set", base, slug)
}

// SeasonState returns the thermostat season state topic
func SeasonState(base, slug string) string {
	return fmt.Sprintf("%s/%s/season/state", base, slug)
}

// AttributeState returns the state topic for a named attribute following the
// layout above: "channel_3" maps to ch/3/state, "state" to state, everything
// else to <attr>/state.
func AttributeState(base, slug, attr string) string {
	if attr == "state" {
		return State(base, slug)
	}
	var ch int
	if n, _ := fmt.Sscanf(attr, "channel_%d", &ch); n == 1 {
		return ChannelState(base, slug, ch)
	}
	return fmt.Sprintf("%s/%s/%s/state", base, slug, attr)
}

// UniqueID returns the Home Assistant unique id for a board entity
func UniqueID(boardID, suffix string) string {
	if suffix == "" {
		return "cerebro2mqtt_" + boardID
	}
	return fmt.Sprintf("cerebro2mqtt_%s_%s", boardID, suffix)
}

// DiscoveryConfig returns an HA discovery config topic
func DiscoveryConfig(prefix, component, uniqueID string) string {
	return fmt.Sprintf("%s/%s/%s/config", prefix, component, uniqueID)
}
