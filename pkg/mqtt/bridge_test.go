package mqtt

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"mqtt-cerebro-bridge/pkg/config"
	"mqtt-cerebro-bridge/pkg/errors"
	"mqtt-cerebro-bridge/pkg/protocol"
	"mqtt-cerebro-bridge/pkg/state"
)

// mockBroker records every publish
type mockBroker struct {
	mu       sync.Mutex
	messages []publishedMessage
}

type publishedMessage struct {
	topic    string
	payload  string
	retained bool
}

func (m *mockBroker) Publish(topic, payload string, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, publishedMessage{topic, payload, retained})
	return nil
}

func (m *mockBroker) PublishJSON(topic string, v interface{}, retained bool) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return m.Publish(topic, string(data), retained)
}

func (m *mockBroker) find(topic string) (publishedMessage, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.messages) - 1; i >= 0; i-- {
		if m.messages[i].topic == topic {
			return m.messages[i], true
		}
	}
	return publishedMessage{}, false
}

func (m *mockBroker) count(topic string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, msg := range m.messages {
		if msg.topic == topic {
			n++
		}
	}
	return n
}

// mockExchanger scripts the bus response per command byte
type mockExchanger struct {
	mu       sync.Mutex
	silent   bool
	requests []byte // command bytes seen
}

func (m *mockExchanger) Exchange(ctx context.Context, address, command byte, data []byte, accept []byte, timeout time.Duration) (protocol.Frame, error) {
	m.mu.Lock()
	m.requests = append(m.requests, command)
	silent := m.silent
	m.mu.Unlock()

	if silent {
		return protocol.Frame{}, errors.NewTimeoutError(address, command, timeout)
	}
	f := protocol.Frame{Address: address, Command: command}
	copy(f.Data[:], data)
	return f, nil
}

// mockPoller records poll triggers
type mockPoller struct {
	mu      sync.Mutex
	allhits int
	boards  []string
}

func (m *mockPoller) TriggerPollAll(ctx context.Context) {
	m.mu.Lock()
	m.allhits++
	m.mu.Unlock()
}

func (m *mockPoller) PollBoard(ctx context.Context, boardID string) error {
	m.mu.Lock()
	m.boards = append(m.boards, boardID)
	m.mu.Unlock()
	return nil
}

func bridgeFixture(t *testing.T) (*Bridge, *mockBroker, *mockExchanger, *mockPoller) {
	t.Helper()
	snap, err := config.NewBoardSnapshot([]config.Board{
		{ID: "luci", Name: "Luci Piano Terra", Type: config.BoardLights, Address: 2,
			ChannelStart: 1, ChannelEnd: 4, Enabled: true, Publish: true},
		{ID: "tapparella", Name: "Tapparella", Type: config.BoardShutters, Address: 23,
			Channel: 1, Enabled: true, Publish: true},
		{ID: "dimmer", Name: "Dimmer Sala", Type: config.BoardDimmer, Address: 30,
			Channel: 1, Enabled: true, Publish: true, PercentScale: true},
		{ID: "termo", Name: "Termostato", Type: config.BoardThermostat, Address: 40,
			Enabled: true, Publish: true},
	})
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}

	broker := &mockBroker{}
	bus := &mockExchanger{}
	poller := &mockPoller{}
	b := NewBridge(broker, bus, poller, state.NewRegistry(),
		func() *config.BoardSnapshot { return snap }, "cerebro2mqtt", 100*time.Millisecond)
	return b, broker, bus, poller
}

// TestLightsChannelOnAcceptance tests the full command path: topic in,
// exchange with the channel command byte, echo decoded, state + result out
func TestLightsChannelOnAcceptance(t *testing.T) {
	b, broker, bus, _ := bridgeFixture(t)

	b.HandleMessage("cerebro2mqtt/luci_piano_terra/ch/1/set", "ON")

	bus.mu.Lock()
	if len(bus.requests) != 1 || bus.requests[0] != 0x51 {
		t.Errorf("Expected single exchange with command 0x51, got % X", bus.requests)
	}
	bus.mu.Unlock()

	result, ok := broker.find("cerebro2mqtt/luci_piano_terra/action/result")
	if !ok {
		t.Fatal("Expected an action result publication")
	}
	var ar ActionResult
	if err := json.Unmarshal([]byte(result.payload), &ar); err != nil {
		t.Fatalf("Action result is not JSON: %v", err)
	}
	if ar.Action != "ch1_on" || !ar.Success {
		t.Errorf("Expected ch1_on success, got %+v", ar)
	}
	if result.retained {
		t.Error("Action results must not be retained")
	}

	st, ok := broker.find("cerebro2mqtt/luci_piano_terra/ch/1/state")
	if !ok || st.payload != "ON" || !st.retained {
		t.Errorf("Expected retained ch/1/state ON, got %+v ok=%v", st, ok)
	}
}

// TestCommandTimeoutLeavesStateAlone tests the silent-bus path
func TestCommandTimeoutLeavesStateAlone(t *testing.T) {
	b, broker, bus, _ := bridgeFixture(t)
	bus.silent = true

	b.HandleMessage("cerebro2mqtt/luci_piano_terra/ch/1/set", "ON")

	result, ok := broker.find("cerebro2mqtt/luci_piano_terra/action/result")
	if !ok {
		t.Fatal("Expected an action result publication")
	}
	var ar ActionResult
	if err := json.Unmarshal([]byte(result.payload), &ar); err != nil {
		t.Fatalf("Action result is not JSON: %v", err)
	}
	if ar.Success || ar.Detail != "timeout" {
		t.Errorf("Expected success=false detail=timeout, got %+v", ar)
	}

	if _, ok := broker.find("cerebro2mqtt/luci_piano_terra/ch/1/state"); ok {
		t.Error("State topic must not be published on timeout")
	}
}

// TestInvalidPayloadNeverTouchesBus tests rejection before the exchange
func TestInvalidPayloadNeverTouchesBus(t *testing.T) {
	b, broker, bus, _ := bridgeFixture(t)

	b.HandleMessage("cerebro2mqtt/luci_piano_terra/ch/1/set", "MAYBE")
	b.HandleMessage("cerebro2mqtt/luci_piano_terra/ch/9/set", "ON")
	b.HandleMessage("cerebro2mqtt/termo/setpoint/set", "warm")
	b.HandleMessage("cerebro2mqtt/tapparella/set", "STOP")

	bus.mu.Lock()
	if len(bus.requests) != 0 {
		t.Errorf("Bus must stay untouched on invalid payloads, saw % X", bus.requests)
	}
	bus.mu.Unlock()

	if n := broker.count("cerebro2mqtt/luci_piano_terra/action/result"); n != 2 {
		t.Errorf("Expected 2 failure results for luci, got %d", n)
	}
}

// TestShutterAndSeasonCommands tests the remaining handler encodings
func TestShutterAndSeasonCommands(t *testing.T) {
	b, broker, bus, _ := bridgeFixture(t)

	b.HandleMessage("cerebro2mqtt/tapparella/set", "OPEN")
	st, ok := broker.find("cerebro2mqtt/tapparella/state")
	if !ok || st.payload != "OPEN" {
		t.Errorf("Expected state OPEN, got %+v ok=%v", st, ok)
	}

	b.HandleMessage("cerebro2mqtt/termo/season/set", "SUMMER")
	st, ok = broker.find("cerebro2mqtt/termo/season/state")
	if !ok || st.payload != "SUMMER" {
		t.Errorf("Expected season SUMMER, got %+v ok=%v", st, ok)
	}

	bus.mu.Lock()
	if len(bus.requests) != 2 || bus.requests[0] != protocol.CmdShutter || bus.requests[1] != protocol.CmdSeason {
		t.Errorf("Unexpected commands % X", bus.requests)
	}
	bus.mu.Unlock()
}

// TestBrightnessPercentMapping tests 50 -> 128 through the command path
func TestBrightnessPercentMapping(t *testing.T) {
	b, broker, _, _ := bridgeFixture(t)

	b.HandleMessage("cerebro2mqtt/dimmer_sala/brightness/set", "50")

	st, ok := broker.find("cerebro2mqtt/dimmer_sala/brightness/state")
	if !ok || st.payload != "128" {
		t.Errorf("Expected brightness/state 128, got %+v ok=%v", st, ok)
	}
	st, ok = broker.find("cerebro2mqtt/dimmer_sala/state")
	if !ok || st.payload != "ON" {
		t.Errorf("Expected state ON, got %+v ok=%v", st, ok)
	}
}

// TestDimmerOnRestoresLastLevel tests the ON -> last nonzero level behavior
func TestDimmerOnRestoresLastLevel(t *testing.T) {
	b, broker, _, _ := bridgeFixture(t)

	b.HandleMessage("cerebro2mqtt/dimmer_sala/brightness/set", "80") // -> 204
	b.HandleMessage("cerebro2mqtt/dimmer_sala/set", "OFF")
	if st, _ := broker.find("cerebro2mqtt/dimmer_sala/brightness/state"); st.payload != "0" {
		t.Errorf("Expected brightness 0 after OFF, got %s", st.payload)
	}

	b.HandleMessage("cerebro2mqtt/dimmer_sala/set", "ON")
	if st, _ := broker.find("cerebro2mqtt/dimmer_sala/brightness/state"); st.payload != "204" {
		t.Errorf("Expected restored brightness 204, got %s", st.payload)
	}
}

// TestPollTopicsRouteToScheduler tests the poll triggers
func TestPollTopicsRouteToScheduler(t *testing.T) {
	b, _, _, poller := bridgeFixture(t)

	b.HandleMessage("cerebro2mqtt/poll_all/set", "PRESS")
	b.HandleMessage("cerebro2mqtt/termo/poll/set", "PRESS")

	poller.mu.Lock()
	defer poller.mu.Unlock()
	if poller.allhits != 1 {
		t.Errorf("Expected 1 poll_all trigger, got %d", poller.allhits)
	}
	if len(poller.boards) != 1 || poller.boards[0] != "termo" {
		t.Errorf("Expected single poll of termo, got %v", poller.boards)
	}
}

// TestStateTopicsAreIgnored tests that our own state echo does not loop
func TestStateTopicsAreIgnored(t *testing.T) {
	b, _, bus, _ := bridgeFixture(t)

	b.HandleMessage("cerebro2mqtt/luci_piano_terra/ch/1/state", "ON")
	b.HandleMessage("cerebro2mqtt/status", "online")
	b.HandleMessage("cerebro2mqtt/luci_piano_terra/action/result", `{"action":"x"}`)

	bus.mu.Lock()
	defer bus.mu.Unlock()
	if len(bus.requests) != 0 {
		t.Errorf("Non-command topics must be ignored, saw % X", bus.requests)
	}
}

// TestUnsolicitedFrameUpdatesState tests wall-switch frames entering state
func TestUnsolicitedFrameUpdatesState(t *testing.T) {
	b, broker, _, _ := bridgeFixture(t)

	frame := protocol.Frame{Address: 2, Command: 0x53} // channel 3
	frame.Data[0] = protocol.DataRelayOn
	b.HandleBusFrame(frame)

	st, ok := broker.find("cerebro2mqtt/luci_piano_terra/ch/3/state")
	if !ok || st.payload != "ON" {
		t.Errorf("Expected ch/3/state ON from bus frame, got %+v ok=%v", st, ok)
	}
}

// TestPublishDisabledBoardStaysSilent tests that a board with publishing
// disabled still drives the bus and updates internal state, but emits
// nothing on the state, result, poll or raw topics
func TestPublishDisabledBoardStaysSilent(t *testing.T) {
	snap, err := config.NewBoardSnapshot([]config.Board{
		{ID: "luci", Name: "Luci Piano Terra", Type: config.BoardLights, Address: 2,
			ChannelStart: 1, ChannelEnd: 4, Enabled: true, Publish: false},
	})
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}

	broker := &mockBroker{}
	bus := &mockExchanger{}
	registry := state.NewRegistry()
	b := NewBridge(broker, bus, &mockPoller{}, registry,
		func() *config.BoardSnapshot { return snap }, "cerebro2mqtt", 100*time.Millisecond)
	board, _ := snap.ByID("luci")

	b.HandleMessage("cerebro2mqtt/luci_piano_terra/ch/1/set", "ON")

	// The command still reaches the bus and the echo still enters the registry
	bus.mu.Lock()
	if len(bus.requests) != 1 || bus.requests[0] != 0x51 {
		t.Errorf("Expected the exchange to run, got % X", bus.requests)
	}
	bus.mu.Unlock()
	if v, ok := registry.Get("luci", "channel_1"); !ok || v != "ON" {
		t.Errorf("Expected registry channel_1 ON, got %q ok=%v", v, ok)
	}

	// Unsolicited frames and poll reporting stay off MQTT too
	frame := protocol.Frame{Address: 2, Command: 0x53}
	frame.Data[0] = protocol.DataRelayOn
	b.HandleBusFrame(frame)
	b.PublishPollResult(board, true)
	b.PublishRaw(board, map[string]interface{}{"address": 2})

	broker.mu.Lock()
	defer broker.mu.Unlock()
	if len(broker.messages) != 0 {
		t.Errorf("Expected no publications for a publish-disabled board, got %v", broker.messages)
	}
}

// TestPollResultPublication tests the retained poll/last document
func TestPollResultPublication(t *testing.T) {
	b, broker, _, _ := bridgeFixture(t)
	board, _ := b.snapshot().ByID("luci")

	b.PublishPollResult(board, false)
	msg, ok := broker.find("cerebro2mqtt/luci_piano_terra/poll/last")
	if !ok || !msg.retained {
		t.Fatalf("Expected retained poll/last, got %+v ok=%v", msg, ok)
	}
	if !strings.Contains(msg.payload, `"success":false`) {
		t.Errorf("Expected success false, got %s", msg.payload)
	}
}
