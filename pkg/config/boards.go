package config

import (
	"fmt"
	"regexp"
	"strings"

	"mqtt-cerebro-bridge/pkg/errors"
)

// BoardType is the closed set of board kinds on the bus
type BoardType string

const (
	BoardLights     BoardType = "lights"
	BoardShutters   BoardType = "shutters"
	BoardDimmer     BoardType = "dimmer"
	BoardThermostat BoardType = "thermostat"
)

// Valid reports whether t names a known board type
func (t BoardType) Valid() bool {
	switch t {
	case BoardLights, BoardShutters, BoardDimmer, BoardThermostat:
		return true
	}
	return false
}

// Board represents one configured board on the bus
type Board struct {
	ID           string    `yaml:"id"`
	Name         string    `yaml:"name"`
	Type         BoardType `yaml:"type"`
	Address      int       `yaml:"address"`
	Channel      int       `yaml:"channel,omitempty"`       // shutters/dimmer/thermostat
	ChannelStart int       `yaml:"channel_start,omitempty"` // lights
	ChannelEnd   int       `yaml:"channel_end,omitempty"`   // lights
	Topic        string    `yaml:"topic,omitempty"`         // slug override
	Enabled      bool      `yaml:"enabled"`
	Publish      bool      `yaml:"publish"`       // HA discovery opt-out
	PercentScale bool      `yaml:"percent_scale"` // dimmer brightness policy
}

// boardDefaults carries the raw yaml fields so booleans can default to true
type boardDefaults struct {
	ID           string    `yaml:"id"`
	Name         string    `yaml:"name"`
	Type         BoardType `yaml:"type"`
	Address      int       `yaml:"address"`
	Channel      int       `yaml:"channel"`
	ChannelStart int       `yaml:"channel_start"`
	ChannelEnd   int       `yaml:"channel_end"`
	Topic        string    `yaml:"topic"`
	Enabled      *bool     `yaml:"enabled"`
	Publish      *bool     `yaml:"publish"`
	PercentScale *bool     `yaml:"percent_scale"`
}

// UnmarshalYAML applies the default-true booleans a plain struct cannot express
func (b *Board) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw boardDefaults
	if err := unmarshal(&raw); err != nil {
		return err
	}

	*b = Board{
		ID:           raw.ID,
		Name:         raw.Name,
		Type:         raw.Type,
		Address:      raw.Address,
		Channel:      raw.Channel,
		ChannelStart: raw.ChannelStart,
		ChannelEnd:   raw.ChannelEnd,
		Topic:        raw.Topic,
		Enabled:      raw.Enabled == nil || *raw.Enabled,
		Publish:      raw.Publish == nil || *raw.Publish,
		PercentScale: raw.PercentScale == nil || *raw.PercentScale,
	}
	return nil
}

// Validate checks a single board definition
func (b *Board) Validate() error {
	if b.ID == "" {
		return errors.NewConfigError("validate board", fmt.Errorf("id is required"), "boards.id")
	}
	if b.Name == "" {
		return errors.NewConfigError("validate board",
			fmt.Errorf("board '%s' has no name", b.ID), "boards.name")
	}
	if !b.Type.Valid() {
		return errors.NewConfigError("validate board",
			fmt.Errorf("board '%s' has unknown type '%s'", b.ID, b.Type), "boards.type")
	}
	if b.Address < 1 || b.Address > 254 {
		return errors.NewConfigError("validate board",
			fmt.Errorf("board '%s' address %d out of range 1-254", b.ID, b.Address), "boards.address")
	}

	switch b.Type {
	case BoardLights:
		start, end := b.ChannelStart, b.ChannelEnd
		if start == 0 && end == 0 && b.Channel != 0 {
			start, end = b.Channel, b.Channel
		}
		if start < 1 || end > 8 || start > end {
			return errors.NewConfigError("validate board",
				fmt.Errorf("board '%s' channel range %d-%d invalid (need 1-8)", b.ID, start, end),
				"boards.channel_start")
		}
	default:
		if b.Channel < 0 || b.Channel > 8 {
			return errors.NewConfigError("validate board",
				fmt.Errorf("board '%s' channel %d out of range", b.ID, b.Channel), "boards.channel")
		}
	}
	return nil
}

// Slug returns the MQTT topic segment for the board
func (b *Board) Slug() string {
	if b.Topic != "" {
		return Slugify(b.Topic)
	}
	return Slugify(b.Name)
}

// Channels returns the channel list a lights board drives; other types
// return their single channel
func (b *Board) Channels() []int {
	if b.Type == BoardLights {
		start, end := b.ChannelStart, b.ChannelEnd
		if start == 0 && end == 0 {
			if b.Channel != 0 {
				return []int{b.Channel}
			}
			return nil
		}
		channels := make([]int, 0, end-start+1)
		for n := start; n <= end; n++ {
			channels = append(channels, n)
		}
		return channels
	}
	return []int{b.PrimaryChannel()}
}

// PrimaryChannel returns the channel used when a command names none
func (b *Board) PrimaryChannel() int {
	if b.Type == BoardLights {
		if b.ChannelStart != 0 {
			return b.ChannelStart
		}
		if b.Channel != 0 {
			return b.Channel
		}
		return 1
	}
	if b.Channel != 0 {
		return b.Channel
	}
	return 1
}

var slugPattern = regexp.MustCompile(`[^a-zA-Z0-9]+`)

// Slugify normalizes a name into a topic-safe segment: lowercase, runs of
// non-alphanumerics collapse to single underscores
func Slugify(name string) string {
	slug := slugPattern.ReplaceAllString(name, "_")
	slug = strings.Trim(slug, "_")
	return strings.ToLower(slug)
}
