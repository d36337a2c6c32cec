// Package bridge assembles the transceiver, scheduler, MQTT layer and
// health tracking into one facade. External collaborators (the CLI entry
// point, or a future management UI) drive the system through Application
// and never touch the parts directly.
package bridge

import (
	"context"
	"fmt"
	nethttp "net/http"
	"sync"
	"sync/atomic"
	"time"

	"mqtt-cerebro-bridge/pkg/config"
	"mqtt-cerebro-bridge/pkg/health"
	"mqtt-cerebro-bridge/pkg/http"
	"mqtt-cerebro-bridge/pkg/logger"
	"mqtt-cerebro-bridge/pkg/metrics"
	"mqtt-cerebro-bridge/pkg/mqtt"
	"mqtt-cerebro-bridge/pkg/scheduler"
	"mqtt-cerebro-bridge/pkg/serial"
	"mqtt-cerebro-bridge/pkg/services"
	"mqtt-cerebro-bridge/pkg/state"
)

// Grace period before a failing bus flips the availability topic
const busOfflineGracePeriod = 15 * time.Second

// StateListener observes confirmed state changes
type StateListener func(board config.Board, attr, value string)

// Application is the facade over the whole bridge
type Application struct {
	cfg      *config.Config
	snapshot atomic.Pointer[config.BoardSnapshot]

	transceiver *serial.Transceiver
	publisher   *mqtt.Publisher
	router      *mqtt.Bridge
	discovery   *mqtt.DiscoveryPublisher
	sched       *scheduler.Scheduler
	registry    *state.Registry
	monitor     *health.BusHealthMonitor
	heartbeat   *services.HeartbeatService
	collector   metrics.MetricsCollector

	healthServer *nethttp.Server

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
	mu      sync.Mutex
}

// New builds the application from a loaded configuration
func New(cfg *config.Config) (*Application, error) {
	logger.Setup(&cfg.Logging)
	logger.LogStartup("Logging initialized with level: %s", cfg.Logging.Level)

	snap, err := config.NewBoardSnapshot(cfg.Boards)
	if err != nil {
		return nil, err
	}

	app := &Application{
		cfg:      cfg,
		registry: state.NewRegistry(),
		monitor:  health.NewBusHealthMonitor(busOfflineGracePeriod),
	}
	app.snapshot.Store(snap)

	if cfg.Metrics.Enabled {
		app.collector = metrics.NewPrometheusMetrics()
	} else {
		app.collector = metrics.NewNullMetrics()
	}

	app.transceiver = serial.NewTransceiver(&cfg.Serial, nil, app.collector)

	app.publisher = mqtt.NewPublisher(&cfg.MQTT, app.collector, app.onBrokerConnect)

	timeout := time.Duration(cfg.Polling.ExchangeTimeoutMs) * time.Millisecond
	app.sched = scheduler.NewScheduler(app.transceiver, app.boards, &cfg.Polling, scheduler.Callbacks{
		OnBoardStatus: func(b config.Board, attrs map[string]string) { app.router.PublishBoardState(b, attrs) },
		OnRaw:         func(b config.Board, raw map[string]interface{}) { app.router.PublishRaw(b, raw) },
		OnPollResult:  func(b config.Board, success bool) { app.router.PublishPollResult(b, success) },
		OnCycleDone:   app.onCycleDone,
	})

	app.router = mqtt.NewBridge(app.publisher, app.transceiver, app.sched,
		app.registry, app.boards, cfg.MQTT.BaseTopic, timeout)
	app.discovery = mqtt.NewDiscoveryPublisher(app.publisher, cfg.MQTT.BaseTopic, cfg.MQTT.DiscoveryPrefix)
	app.transceiver.SetObserver(app.router.HandleBusFrame)

	heartbeatInterval := time.Duration(cfg.MQTT.KeepAlive) * time.Second / 3
	app.heartbeat = services.NewHeartbeatService(app.publisher, app.monitor, heartbeatInterval)

	return app, nil
}

// boards returns the active board snapshot; every cycle and command
// captures it once through this accessor
func (app *Application) boards() *config.BoardSnapshot {
	return app.snapshot.Load()
}

// Start opens the serial device, connects to the broker and launches the
// polling loop and heartbeat. Blocks only until startup is complete.
func (app *Application) Start(ctx context.Context) error {
	app.mu.Lock()
	defer app.mu.Unlock()
	if app.started {
		return fmt.Errorf("application already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	app.cancel = cancel

	if err := app.transceiver.Start(); err != nil {
		cancel()
		return err
	}

	if err := app.publisher.Connect(runCtx); err != nil {
		app.transceiver.Stop()
		cancel()
		return err
	}

	if app.cfg.Metrics.Enabled {
		if err := app.collector.StartMetricsServer(app.cfg.Metrics.Listen); err != nil {
			logger.LogWarn("Metrics server not started: %v", err)
		}
		if app.cfg.Metrics.HealthListen != "" {
			handler := http.NewHealthHandler(app.monitor, Version)
			app.healthServer = http.StartHealthServer(app.cfg.Metrics.HealthListen, handler)
		}
	}

	app.sched.Start(runCtx)

	app.wg.Add(1)
	go func() {
		defer app.wg.Done()
		app.heartbeat.Start(runCtx)
	}()

	app.started = true
	logger.LogInfo("✅ Bridge started: %d boards, polling every %ds",
		len(app.boards().Boards()), app.cfg.Polling.IntervalSec)
	return nil
}

// Stop shuts the application down in dependency order
func (app *Application) Stop() {
	app.mu.Lock()
	defer app.mu.Unlock()
	if !app.started {
		return
	}

	logger.LogInfo("Shutting down...")
	app.cancel()
	app.sched.Stop()
	app.wg.Wait()

	if app.healthServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := app.healthServer.Shutdown(shutdownCtx); err != nil {
			logger.LogWarn("Health server shutdown: %v", err)
		}
		cancel()
	}

	app.publisher.Disconnect()
	app.transceiver.Stop()
	app.started = false
	logger.LogInfo("Bridge stopped")
}

// onBrokerConnect runs on every MQTT (re)connection: subscribe the command
// router and republish discovery, both idempotent
func (app *Application) onBrokerConnect() {
	if err := app.publisher.Subscribe(app.router.SubscriptionFilter(), app.router.HandleMessage); err != nil {
		logger.LogError("Command subscription failed: %v", err)
	}
	app.discovery.Sync(app.boards())
}

// onCycleDone feeds poll cycle outcomes into the availability tracking. A
// cycle where every address failed counts as a bus error; any success
// resets the sequence.
func (app *Application) onCycleDone(attempted, failed int) {
	if attempted == 0 {
		return
	}
	if failed == attempted {
		if app.monitor.RecordError() {
			app.monitor.MarkOffline()
			app.collector.SetBusStatus(false)
			if err := app.publisher.PublishStatus(false); err != nil {
				logger.LogWarn("Publishing offline status: %v", err)
			}
			logger.LogError("Bus marked offline after %v of consecutive failures",
				busOfflineGracePeriod)
		}
		return
	}
	if app.monitor.RecordSuccess() {
		app.collector.SetBusStatus(true)
		if err := app.publisher.PublishStatus(true); err != nil {
			logger.LogWarn("Publishing online status: %v", err)
		}
		logger.LogInfo("Bus back online")
	}
}

// ApplyBoards swaps the board list at runtime: new snapshot, discovery diff
// (including retraction of removed boards) and state cleanup. The command
// router picks up the new snapshot on the next message automatically.
func (app *Application) ApplyBoards(boards []config.Board) error {
	snap, err := config.NewBoardSnapshot(boards)
	if err != nil {
		return err
	}

	old := app.snapshot.Swap(snap)
	app.discovery.Sync(snap)

	for _, b := range old.Boards() {
		if _, still := snap.ByID(b.ID); !still {
			app.registry.Forget(b.ID)
		}
	}

	logger.LogInfo("Board list applied: %d boards, %d polled addresses",
		len(snap.Boards()), len(snap.Addresses()))
	return nil
}

// TriggerPollAll requests a full poll cycle (coalesced if one is running)
func (app *Application) TriggerPollAll() {
	app.sched.TriggerPollAll(context.Background())
}

// TriggerPollBoard polls a single board synchronously
func (app *Application) TriggerPollBoard(boardID string) error {
	return app.sched.PollBoard(context.Background(), boardID)
}

// OnStateChanged installs the confirmed-state observer. Call before Start.
func (app *Application) OnStateChanged(l StateListener) {
	app.registry.SetListener(state.ChangeListener(l))
}

// OnActionResult installs the action outcome observer. Call before Start.
func (app *Application) OnActionResult(l mqtt.ResultListener) {
	app.router.SetResultListener(l)
}
