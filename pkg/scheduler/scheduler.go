// Package scheduler drives the periodic status poll of every enabled bus
// address and fans the decoded results out to the bridge.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"mqtt-cerebro-bridge/pkg/config"
	"mqtt-cerebro-bridge/pkg/logger"
	"mqtt-cerebro-bridge/pkg/mapper"
	"mqtt-cerebro-bridge/pkg/protocol"
)

// BusExchanger is the transceiver surface the scheduler needs
type BusExchanger interface {
	Exchange(ctx context.Context, address, command byte, data []byte, accept []byte, timeout time.Duration) (protocol.Frame, error)
}

// SnapshotProvider returns the current board snapshot; captured once per cycle
type SnapshotProvider func() *config.BoardSnapshot

// Callbacks receive the outputs of a poll. All are optional.
type Callbacks struct {
	// OnBoardStatus delivers the decoded attributes of one board
	OnBoardStatus func(board config.Board, attrs map[string]string)
	// OnRaw delivers the lenient raw view of a poll response
	OnRaw func(board config.Board, raw map[string]interface{})
	// OnPollResult reports per-board poll success or failure
	OnPollResult func(board config.Board, success bool)
	// OnCycleDone reports how a full cycle went, feeding the health monitor
	OnCycleDone func(attempted, failed int)
}

// Scheduler walks the enabled addresses on a ticker and on manual triggers.
// A trigger that arrives while a cycle is running is ignored; with one
// serialized exchange at a time, queueing cycles would only build backlog.
type Scheduler struct {
	exchanger BusExchanger
	snapshot  SnapshotProvider
	callbacks Callbacks

	interval  time.Duration
	timeout   time.Duration
	autoStart bool

	running int32 // 1 while a cycle is in progress

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler over the given bus
func NewScheduler(exchanger BusExchanger, snapshot SnapshotProvider, cfg *config.PollingConfig, cb Callbacks) *Scheduler {
	return &Scheduler{
		exchanger: exchanger,
		snapshot:  snapshot,
		callbacks: cb,
		interval:  time.Duration(cfg.IntervalSec) * time.Second,
		timeout:   time.Duration(cfg.ExchangeTimeoutMs) * time.Millisecond,
		autoStart: cfg.AutoStartEnabled(),
		stopCh:    make(chan struct{}),
	}
}

// Start launches the ticker loop when auto start is enabled. Manual
// triggers work either way.
func (s *Scheduler) Start(ctx context.Context) {
	if !s.autoStart {
		logger.LogInfo("Polling auto start disabled, waiting for manual triggers")
		return
	}
	s.wg.Add(1)
	go s.loop(ctx)
}

// Stop terminates the ticker loop
func (s *Scheduler) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	logger.LogInfo("Polling every %v", s.interval)
	s.runCycle(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.runCycle(ctx)
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		}
	}
}

// TriggerPollAll starts a poll cycle unless one is already running or the
// scheduler has been stopped
func (s *Scheduler) TriggerPollAll(ctx context.Context) {
	select {
	case <-s.stopCh:
		return
	default:
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runCycle(ctx)
	}()
}

// runCycle polls every enabled address once. Failures are recorded per
// board and never abort the cycle.
func (s *Scheduler) runCycle(ctx context.Context) {
	if !atomic.CompareAndSwapInt32(&s.running, 0, 1) {
		logger.LogDebug("Poll cycle already running, trigger ignored")
		return
	}
	defer atomic.StoreInt32(&s.running, 0)

	snap := s.snapshot()
	addresses := snap.Addresses()
	if len(addresses) == 0 {
		return
	}

	start := time.Now()
	failed := 0
	for _, address := range addresses {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		default:
		}
		if !s.pollAddress(ctx, snap, address) {
			failed++
		}
	}

	logger.LogDebug("Poll cycle done: %d addresses, %d failed, %v",
		len(addresses), failed, time.Since(start))
	if s.callbacks.OnCycleDone != nil {
		s.callbacks.OnCycleDone(len(addresses), failed)
	}
}

// pollAddress exchanges one poll and decodes the response for every enabled
// board configured at the address. Returns false when the address as a
// whole failed (timeout or no decodable board).
func (s *Scheduler) pollAddress(ctx context.Context, snap *config.BoardSnapshot, address int) bool {
	boards := enabledBoards(snap, address)
	if len(boards) == 0 {
		return true
	}

	req := mapper.Poll()
	frame, err := s.exchanger.Exchange(ctx, byte(address), req.Command, req.Data, req.Accept, s.timeout)
	if err != nil {
		logger.LogWarn("Polling address %d failed: %v", address, err)
		for _, board := range boards {
			s.reportResult(board, false)
		}
		return false
	}

	raw := mapper.PollDiagnostics(frame)
	ok := false
	for _, board := range boards {
		if s.callbacks.OnRaw != nil {
			s.callbacks.OnRaw(board, raw)
		}
		attrs, err := mapper.DecodePollStatus(board, frame)
		if err != nil {
			logger.LogWarn("Decoding poll for board '%s': %v", board.ID, err)
			s.reportResult(board, false)
			continue
		}
		if s.callbacks.OnBoardStatus != nil {
			s.callbacks.OnBoardStatus(board, attrs)
		}
		s.reportResult(board, true)
		ok = true
	}
	return ok
}

// PollBoard polls the single board synchronously, outside the cycle
// coalescing (the exchange itself still serializes on the bus)
func (s *Scheduler) PollBoard(ctx context.Context, boardID string) error {
	snap := s.snapshot()
	board, ok := snap.ByID(boardID)
	if !ok {
		return fmt.Errorf("board '%s' not configured", boardID)
	}
	if !board.Enabled {
		return fmt.Errorf("board '%s' is disabled", boardID)
	}

	req := mapper.Poll()
	frame, err := s.exchanger.Exchange(ctx, byte(board.Address), req.Command, req.Data, req.Accept, s.timeout)
	if err != nil {
		s.reportResult(board, false)
		return err
	}

	if s.callbacks.OnRaw != nil {
		s.callbacks.OnRaw(board, mapper.PollDiagnostics(frame))
	}
	attrs, err := mapper.DecodePollStatus(board, frame)
	if err != nil {
		s.reportResult(board, false)
		return err
	}
	if s.callbacks.OnBoardStatus != nil {
		s.callbacks.OnBoardStatus(board, attrs)
	}
	s.reportResult(board, true)
	return nil
}

func (s *Scheduler) reportResult(board config.Board, success bool) {
	if s.callbacks.OnPollResult != nil {
		s.callbacks.OnPollResult(board, success)
	}
}

func enabledBoards(snap *config.BoardSnapshot, address int) []config.Board {
	var out []config.Board
	for _, b := range snap.ByAddress(address) {
		if b.Enabled {
			out = append(out, b)
		}
	}
	return out
}
