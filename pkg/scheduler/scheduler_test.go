package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"mqtt-cerebro-bridge/pkg/config"
	"mqtt-cerebro-bridge/pkg/errors"
	"mqtt-cerebro-bridge/pkg/protocol"
)

// mockBus implements BusExchanger with per-address behavior
type mockBus struct {
	mu        sync.Mutex
	exchanges []byte        // polled addresses in order
	silent    map[byte]bool // addresses that never answer
	status    map[byte][protocol.DataLength]byte
	delay     time.Duration
	active    int
	maxActive int
}

func newMockBus() *mockBus {
	return &mockBus{
		silent: make(map[byte]bool),
		status: make(map[byte][protocol.DataLength]byte),
	}
}

func (m *mockBus) Exchange(ctx context.Context, address, command byte, data []byte, accept []byte, timeout time.Duration) (protocol.Frame, error) {
	m.mu.Lock()
	m.exchanges = append(m.exchanges, address)
	m.active++
	if m.active > m.maxActive {
		m.maxActive = m.active
	}
	silent := m.silent[address]
	payload := m.status[address]
	delay := m.delay
	m.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	m.mu.Lock()
	m.active--
	m.mu.Unlock()

	if silent {
		return protocol.Frame{}, errors.NewTimeoutError(address, command, timeout)
	}
	return protocol.Frame{Address: address, Command: protocol.CmdPoll, Data: payload}, nil
}

func (m *mockBus) polled() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]byte, len(m.exchanges))
	copy(out, m.exchanges)
	return out
}

func testSnapshot(t *testing.T) *config.BoardSnapshot {
	t.Helper()
	snap, err := config.NewBoardSnapshot([]config.Board{
		{ID: "b1", Name: "Luci 1", Type: config.BoardLights, Address: 1, ChannelStart: 1, ChannelEnd: 2, Enabled: true, Publish: true},
		{ID: "b2", Name: "Luci 2", Type: config.BoardLights, Address: 2, ChannelStart: 1, ChannelEnd: 2, Enabled: true, Publish: true},
		{ID: "b3", Name: "Termo", Type: config.BoardThermostat, Address: 3, Enabled: true, Publish: true},
	})
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	return snap
}

func pollingConfig() *config.PollingConfig {
	off := false
	return &config.PollingConfig{IntervalSec: 60, AutoStart: &off, ExchangeTimeoutMs: 50}
}

// collector gathers callback invocations for assertions
type collector struct {
	mu      sync.Mutex
	status  map[string]map[string]string
	results map[string][]bool
	cycles  int
	failed  int
}

func newCollector() *collector {
	return &collector{
		status:  make(map[string]map[string]string),
		results: make(map[string][]bool),
	}
}

func (c *collector) callbacks() Callbacks {
	return Callbacks{
		OnBoardStatus: func(b config.Board, attrs map[string]string) {
			c.mu.Lock()
			c.status[b.ID] = attrs
			c.mu.Unlock()
		},
		OnPollResult: func(b config.Board, success bool) {
			c.mu.Lock()
			c.results[b.ID] = append(c.results[b.ID], success)
			c.mu.Unlock()
		},
		OnCycleDone: func(attempted, failed int) {
			c.mu.Lock()
			c.cycles++
			c.failed = failed
			c.mu.Unlock()
		},
	}
}

// TestCycleSurvivesBoardTimeout tests that one silent board does not abort
// the cycle: boards 1 and 3 still decode, board 2 records a failure
func TestCycleSurvivesBoardTimeout(t *testing.T) {
	bus := newMockBus()
	bus.silent[2] = true
	bus.status[3] = [protocol.DataLength]byte{0, 0, 0, 0, 21, 0, 0x00, 0, 19, 0}

	snap := testSnapshot(t)
	col := newCollector()
	s := NewScheduler(bus, func() *config.BoardSnapshot { return snap }, pollingConfig(), col.callbacks())

	s.runCycle(context.Background())

	polled := bus.polled()
	if len(polled) != 3 {
		t.Fatalf("Expected 3 polls, got %v", polled)
	}

	col.mu.Lock()
	defer col.mu.Unlock()
	if _, ok := col.status["b1"]; !ok {
		t.Error("Expected decoded status for b1")
	}
	if _, ok := col.status["b3"]; !ok {
		t.Error("Expected decoded status for b3")
	}
	if _, ok := col.status["b2"]; ok {
		t.Error("Did not expect decoded status for silent b2")
	}
	if got := col.results["b2"]; len(got) != 1 || got[0] {
		t.Errorf("Expected single failure for b2, got %v", got)
	}
	if got := col.results["b1"]; len(got) != 1 || !got[0] {
		t.Errorf("Expected single success for b1, got %v", got)
	}
	if col.failed != 1 {
		t.Errorf("Expected 1 failed address in cycle report, got %d", col.failed)
	}
}

// TestTriggerWhileRunningIsIgnored tests cycle coalescing
func TestTriggerWhileRunningIsIgnored(t *testing.T) {
	bus := newMockBus()
	bus.delay = 30 * time.Millisecond

	snap := testSnapshot(t)
	col := newCollector()
	s := NewScheduler(bus, func() *config.BoardSnapshot { return snap }, pollingConfig(), col.callbacks())

	ctx := context.Background()
	s.TriggerPollAll(ctx)
	time.Sleep(10 * time.Millisecond) // first cycle is mid-flight now
	for i := 0; i < 3; i++ {
		s.TriggerPollAll(ctx)
	}
	s.wg.Wait()

	col.mu.Lock()
	cycles := col.cycles
	col.mu.Unlock()
	if cycles != 1 {
		t.Errorf("Expected 1 completed cycle, got %d", cycles)
	}
	if bus.maxActive != 1 {
		t.Errorf("Expected serialized polling, max concurrency %d", bus.maxActive)
	}
}

// TestTriggerAfterStopIsNoOp tests that a trigger racing shutdown does not
// start a cycle
func TestTriggerAfterStopIsNoOp(t *testing.T) {
	bus := newMockBus()
	snap := testSnapshot(t)
	col := newCollector()
	s := NewScheduler(bus, func() *config.BoardSnapshot { return snap }, pollingConfig(), col.callbacks())

	s.Stop()
	s.TriggerPollAll(context.Background())
	s.wg.Wait()

	if polled := bus.polled(); len(polled) != 0 {
		t.Errorf("Expected no polls after Stop, got %v", polled)
	}
}

// TestPollBoard tests the synchronous single-board poll
func TestPollBoard(t *testing.T) {
	bus := newMockBus()
	bus.status[1] = [protocol.DataLength]byte{0, 0b00000001}

	snap := testSnapshot(t)
	col := newCollector()
	s := NewScheduler(bus, func() *config.BoardSnapshot { return snap }, pollingConfig(), col.callbacks())

	if err := s.PollBoard(context.Background(), "b1"); err != nil {
		t.Fatalf("PollBoard failed: %v", err)
	}

	col.mu.Lock()
	attrs := col.status["b1"]
	col.mu.Unlock()
	if attrs["channel_1"] != "ON" || attrs["channel_2"] != "OFF" {
		t.Errorf("Unexpected attrs %v", attrs)
	}

	if err := s.PollBoard(context.Background(), "missing"); err == nil {
		t.Error("Expected error for unknown board")
	}

	bus.silent[1] = true
	if err := s.PollBoard(context.Background(), "b1"); !errors.IsTimeout(err) {
		t.Errorf("Expected timeout error, got %v", err)
	}
}
