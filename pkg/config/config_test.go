package config

import (
	"testing"
)

const sampleConfig = `
serial:
  port: /dev/ttyUSB1
mqtt:
  host: 192.168.1.10
  username: ha
  password: secret
polling:
  interval_sec: 15
boards:
  - id: luci_pt
    name: Luci Piano Terra
    type: lights
    address: 11
    channel_start: 1
    channel_end: 4
  - id: tapparella
    name: "Tapparella Cucina!"
    type: shutters
    address: 23
    channel: 1
  - id: dimmer_sala
    name: Dimmer Sala
    type: dimmer
    address: 11
    channel: 1
    percent_scale: false
  - id: termo
    name: Termostato
    type: thermostat
    address: 40
    enabled: false
`

// TestLoadConfigFromString tests parsing with defaults applied
func TestLoadConfigFromString(t *testing.T) {
	cfg, err := LoadConfigFromString(sampleConfig)
	if err != nil {
		t.Fatalf("LoadConfigFromString failed: %v", err)
	}

	if cfg.Serial.Port != "/dev/ttyUSB1" {
		t.Errorf("Expected serial port /dev/ttyUSB1, got %s", cfg.Serial.Port)
	}
	if cfg.Serial.Baudrate != DefaultBaudrate {
		t.Errorf("Expected default baudrate %d, got %d", DefaultBaudrate, cfg.Serial.Baudrate)
	}
	if cfg.MQTT.BaseTopic != DefaultBaseTopic {
		t.Errorf("Expected default base topic, got %s", cfg.MQTT.BaseTopic)
	}
	if cfg.MQTT.DiscoveryPrefix != DefaultDiscoveryPrefix {
		t.Errorf("Expected default discovery prefix, got %s", cfg.MQTT.DiscoveryPrefix)
	}
	if cfg.Polling.IntervalSec != 15 {
		t.Errorf("Expected interval 15, got %d", cfg.Polling.IntervalSec)
	}
	if !cfg.Polling.AutoStartEnabled() {
		t.Error("Expected auto_start to default to true")
	}
	if cfg.Polling.ExchangeTimeoutMs != DefaultExchangeTimeout {
		t.Errorf("Expected default exchange timeout, got %d", cfg.Polling.ExchangeTimeoutMs)
	}
	if len(cfg.Boards) != 4 {
		t.Fatalf("Expected 4 boards, got %d", len(cfg.Boards))
	}
}

// TestBoardBooleanDefaults tests that enabled/publish/percent_scale default true
func TestBoardBooleanDefaults(t *testing.T) {
	cfg, err := LoadConfigFromString(sampleConfig)
	if err != nil {
		t.Fatalf("LoadConfigFromString failed: %v", err)
	}

	lights := cfg.Boards[0]
	if !lights.Enabled || !lights.Publish || !lights.PercentScale {
		t.Errorf("Expected all booleans true by default, got enabled=%v publish=%v percent_scale=%v",
			lights.Enabled, lights.Publish, lights.PercentScale)
	}

	dimmer := cfg.Boards[2]
	if dimmer.PercentScale {
		t.Error("Expected percent_scale false when set explicitly")
	}
	if !dimmer.Enabled {
		t.Error("Expected enabled true when omitted")
	}

	thermo := cfg.Boards[3]
	if thermo.Enabled {
		t.Error("Expected enabled false when set explicitly")
	}
}

// TestSlugify tests topic slug normalization
func TestSlugify(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Luci Piano Terra", "luci_piano_terra"},
		{"Tapparella Cucina!", "tapparella_cucina"},
		{"  già--ok  ", "gi_ok"},
		{"ABC123", "abc123"},
	}
	for _, tt := range tests {
		if got := Slugify(tt.in); got != tt.want {
			t.Errorf("Slugify(%q): expected %q, got %q", tt.in, tt.want, got)
		}
	}
}

// TestBoardChannels tests channel enumeration per board type
func TestBoardChannels(t *testing.T) {
	lights := Board{ID: "l", Name: "l", Type: BoardLights, Address: 1, ChannelStart: 2, ChannelEnd: 4}
	got := lights.Channels()
	if len(got) != 3 || got[0] != 2 || got[2] != 4 {
		t.Errorf("Expected channels [2 3 4], got %v", got)
	}
	if lights.PrimaryChannel() != 2 {
		t.Errorf("Expected primary channel 2, got %d", lights.PrimaryChannel())
	}

	shutter := Board{ID: "s", Name: "s", Type: BoardShutters, Address: 1, Channel: 3}
	if ch := shutter.Channels(); len(ch) != 1 || ch[0] != 3 {
		t.Errorf("Expected channels [3], got %v", ch)
	}

	thermo := Board{ID: "t", Name: "t", Type: BoardThermostat, Address: 1}
	if thermo.PrimaryChannel() != 1 {
		t.Errorf("Expected primary channel fallback 1, got %d", thermo.PrimaryChannel())
	}
}

// TestSnapshotIndexes tests address dedup, slug and id lookups
func TestSnapshotIndexes(t *testing.T) {
	cfg, err := LoadConfigFromString(sampleConfig)
	if err != nil {
		t.Fatalf("LoadConfigFromString failed: %v", err)
	}

	snap, err := NewBoardSnapshot(cfg.Boards)
	if err != nil {
		t.Fatalf("NewBoardSnapshot failed: %v", err)
	}

	// Address 11 hosts two boards; 40 is disabled, so only 11 and 23 poll
	addrs := snap.Addresses()
	if len(addrs) != 2 || addrs[0] != 11 || addrs[1] != 23 {
		t.Errorf("Expected addresses [11 23], got %v", addrs)
	}
	if boards := snap.ByAddress(11); len(boards) != 2 {
		t.Errorf("Expected 2 boards at address 11, got %d", len(boards))
	}
	if _, ok := snap.BySlug("luci_piano_terra"); !ok {
		t.Error("Expected slug lookup for luci_piano_terra")
	}
	if _, ok := snap.ByID("termo"); !ok {
		t.Error("Expected id lookup for termo")
	}
}

// TestSnapshotRejectsDuplicateSlug tests the uniqueness constraint
func TestSnapshotRejectsDuplicateSlug(t *testing.T) {
	boards := []Board{
		{ID: "a", Name: "Salotto", Type: BoardDimmer, Address: 1, Channel: 1, Enabled: true},
		{ID: "b", Name: "salotto!", Type: BoardShutters, Address: 2, Channel: 1, Enabled: true},
	}
	if _, err := NewBoardSnapshot(boards); err == nil {
		t.Error("Expected duplicate slug error")
	}

	boards[1].Name = "Cucina"
	boards[1].ID = "a"
	if _, err := NewBoardSnapshot(boards); err == nil {
		t.Error("Expected duplicate id error")
	}
}

// TestValidateRejectsBadBoards tests board-level validation
func TestValidateRejectsBadBoards(t *testing.T) {
	bad := []Board{
		{ID: "x", Name: "X", Type: "relay", Address: 1, Channel: 1},
		{ID: "x", Name: "X", Type: BoardLights, Address: 0, ChannelStart: 1, ChannelEnd: 1},
		{ID: "x", Name: "X", Type: BoardLights, Address: 300, ChannelStart: 1, ChannelEnd: 1},
		{ID: "x", Name: "X", Type: BoardLights, Address: 1, ChannelStart: 3, ChannelEnd: 2},
		{ID: "x", Name: "X", Type: BoardLights, Address: 1, ChannelStart: 1, ChannelEnd: 9},
		{ID: "", Name: "X", Type: BoardDimmer, Address: 1, Channel: 1},
	}
	for i, b := range bad {
		if err := b.Validate(); err == nil {
			t.Errorf("Case %d: expected validation error for %+v", i, b)
		}
	}
}

// TestValidateConfig tests top-level validation failures
func TestValidateConfig(t *testing.T) {
	if _, err := LoadConfigFromString("boards: []\n"); err == nil {
		t.Error("Expected error for missing mqtt host")
	}
	if _, err := LoadConfigFromString("mqtt:\n  host: h\nserial:\n  parity: Q\n"); err == nil {
		t.Error("Expected error for invalid parity")
	}
}
