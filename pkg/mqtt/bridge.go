package mqtt

import (
	"context"
	"strconv"
	"strings"
	"time"

	"mqtt-cerebro-bridge/pkg/config"
	"mqtt-cerebro-bridge/pkg/errors"
	"mqtt-cerebro-bridge/pkg/logger"
	"mqtt-cerebro-bridge/pkg/mapper"
	"mqtt-cerebro-bridge/pkg/protocol"
	"mqtt-cerebro-bridge/pkg/state"
	"mqtt-cerebro-bridge/pkg/topics"
)

// BrokerClient is the publishing surface the bridge needs; tests substitute
// a recording implementation
type BrokerClient interface {
	Publish(topic, payload string, retained bool) error
	PublishJSON(topic string, v interface{}, retained bool) error
}

// BusExchanger mirrors the transceiver exchange call
type BusExchanger interface {
	Exchange(ctx context.Context, address, command byte, data []byte, accept []byte, timeout time.Duration) (protocol.Frame, error)
}

// PollTrigger is the scheduler surface reachable from MQTT
type PollTrigger interface {
	TriggerPollAll(ctx context.Context)
	PollBoard(ctx context.Context, boardID string) error
}

// ActionResult is the outcome report of one command attempt
type ActionResult struct {
	Action  string `json:"action"`
	Success bool   `json:"success"`
	Detail  string `json:"detail,omitempty"`
	Ts      int64  `json:"ts"`
}

// ResultListener observes action results in addition to their publication
type ResultListener func(board config.Board, result ActionResult)

// Bridge routes inbound command topics to bus exchanges and republishes the
// confirmed state. State only advances from decoded bus frames; a command
// whose echo never arrives leaves the state topics untouched.
type Bridge struct {
	broker    BrokerClient
	exchanger BusExchanger
	poller    PollTrigger
	registry  *state.Registry
	snapshot  func() *config.BoardSnapshot

	baseTopic string
	timeout   time.Duration

	onResult ResultListener
}

// NewBridge wires the command router
func NewBridge(broker BrokerClient, exchanger BusExchanger, poller PollTrigger,
	registry *state.Registry, snapshot func() *config.BoardSnapshot,
	baseTopic string, timeout time.Duration) *Bridge {
	return &Bridge{
		broker:    broker,
		exchanger: exchanger,
		poller:    poller,
		registry:  registry,
		snapshot:  snapshot,
		baseTopic: baseTopic,
		timeout:   timeout,
	}
}

// SetResultListener installs the action result observer
func (b *Bridge) SetResultListener(l ResultListener) {
	b.onResult = l
}

// SubscriptionFilter returns the single wildcard subscription the bridge needs
func (b *Bridge) SubscriptionFilter() string {
	return b.baseTopic + "/#"
}

// HandleMessage routes one inbound message. Called from paho callback
// goroutines; everything that touches the bus funnels into the serialized
// Exchange, so no extra locking is needed here.
func (b *Bridge) HandleMessage(topic, payload string) {
	if !strings.HasPrefix(topic, b.baseTopic+"/") {
		return
	}
	route := strings.Split(strings.TrimPrefix(topic, b.baseTopic+"/"), "/")

	// Only command topics are inbound; everything else under the base topic
	// is our own state echoing back
	if route[len(route)-1] != "set" {
		return
	}
	payload = strings.TrimSpace(payload)

	if len(route) == 2 && route[0] == "poll_all" {
		logger.LogInfo("Full poll cycle requested via MQTT")
		b.poller.TriggerPollAll(context.Background())
		return
	}

	snap := b.snapshot()
	board, ok := snap.BySlug(route[0])
	if !ok {
		logger.LogDebug("Command for unknown slug '%s' ignored", route[0])
		return
	}
	if !board.Enabled {
		logger.LogDebug("Command for disabled board '%s' ignored", board.ID)
		return
	}

	sub := route[1:]
	if len(sub) == 2 && sub[0] == "poll" {
		if err := b.poller.PollBoard(context.Background(), board.ID); err != nil {
			logger.LogWarn("Manual poll of '%s' failed: %v", board.ID, err)
		}
		return
	}

	switch board.Type {
	case config.BoardLights:
		b.handleLights(board, sub, topic, payload)
	case config.BoardShutters:
		b.handleShutters(board, sub, topic, payload)
	case config.BoardDimmer:
		b.handleDimmer(board, sub, topic, payload)
	case config.BoardThermostat:
		b.handleThermostat(board, sub, topic, payload)
	}
}

// execute runs one command exchange and publishes its outcome. On success
// the echo is decoded and the confirmed attributes go out on the state
// topics; on failure nothing about the state changes.
func (b *Bridge) execute(board config.Board, req mapper.Request, action string) {
	frame, err := b.exchanger.Exchange(context.Background(), byte(board.Address),
		req.Command, req.Data, req.Accept, b.timeout)
	if err != nil {
		detail := err.Error()
		if errors.IsTimeout(err) {
			detail = "timeout"
		}
		logger.LogWarn("Action %s on '%s' failed: %v", action, board.ID, err)
		b.publishResult(board, ActionResult{Action: action, Success: false, Detail: detail, Ts: time.Now().Unix()})
		return
	}

	if attrs := mapper.DecodeEcho(board, frame); attrs != nil {
		b.PublishBoardState(board, attrs)
	}
	logger.LogInfo("Action %s on '%s' confirmed by %s", action, board.ID, frame)
	b.publishResult(board, ActionResult{Action: action, Success: true, Detail: frame.String(), Ts: time.Now().Unix()})
}

// rejectCommand reports an invalid payload without touching the bus
func (b *Bridge) rejectCommand(board config.Board, action, topic, payload, reason string) {
	err := errors.NewCommandError(topic, payload, reason)
	logger.LogWarn("%v", err)
	b.publishResult(board, ActionResult{Action: action, Success: false, Detail: reason, Ts: time.Now().Unix()})
}

func (b *Bridge) publishResult(board config.Board, result ActionResult) {
	if board.Publish {
		topic := topics.ActionResult(b.baseTopic, board.Slug())
		if err := b.broker.PublishJSON(topic, result, false); err != nil {
			logger.LogWarn("Publishing action result: %v", err)
		}
	}
	if b.onResult != nil {
		b.onResult(board, result)
	}
}

// PublishBoardState stores decoded attributes and publishes the retained
// state topics. Used for command echoes, poll results and unsolicited
// frames alike. A board with publishing disabled still updates the
// registry but emits nothing on MQTT.
func (b *Bridge) PublishBoardState(board config.Board, attrs map[string]string) {
	b.registry.Apply(board, attrs)
	if !board.Publish {
		return
	}

	slug := board.Slug()
	for attr, value := range attrs {
		if err := b.broker.Publish(topics.AttributeState(b.baseTopic, slug, attr), value, true); err != nil {
			logger.LogWarn("Publishing state %s for '%s': %v", attr, board.ID, err)
		}
	}

	// A single-channel lights board also serves the plain state topic for
	// setups that address it like a simple switch
	if board.Type == config.BoardLights {
		if channels := board.Channels(); len(channels) == 1 {
			if v, ok := attrs[channelAttrName(channels[0])]; ok {
				if err := b.broker.Publish(topics.State(b.baseTopic, slug), v, true); err != nil {
					logger.LogWarn("Publishing legacy state for '%s': %v", board.ID, err)
				}
			}
		}
	}
}

// PublishRaw publishes the lenient poll diagnostic document
func (b *Bridge) PublishRaw(board config.Board, raw map[string]interface{}) {
	if !board.Publish {
		return
	}
	if err := b.broker.PublishJSON(topics.PollingRaw(b.baseTopic, board.Slug()), raw, false); err != nil {
		logger.LogWarn("Publishing raw poll for '%s': %v", board.ID, err)
	}
}

// PublishPollResult publishes the retained per-board poll outcome
func (b *Bridge) PublishPollResult(board config.Board, success bool) {
	if !board.Publish {
		return
	}
	doc := map[string]interface{}{"success": success, "ts": time.Now().Unix()}
	if err := b.broker.PublishJSON(topics.PollLast(b.baseTopic, board.Slug()), doc, true); err != nil {
		logger.LogWarn("Publishing poll result for '%s': %v", board.ID, err)
	}
}

// HandleBusFrame processes a frame that belongs to no exchange, typically a
// wall switch operated locally. Whatever it confirms becomes state.
func (b *Bridge) HandleBusFrame(frame protocol.Frame) {
	snap := b.snapshot()
	for _, board := range snap.ByAddress(int(frame.Address)) {
		if !board.Enabled {
			continue
		}
		if attrs := mapper.DecodeEcho(board, frame); attrs != nil {
			logger.LogInfo("Bus frame updated '%s': %v", board.ID, attrs)
			b.PublishBoardState(board, attrs)
		}
	}
}

// parseOnOff maps the accepted switch payload vocabulary
func parseOnOff(payload string) (bool, bool) {
	switch strings.ToUpper(payload) {
	case "ON", "1", "TRUE":
		return true, true
	case "OFF", "0", "FALSE":
		return false, true
	}
	return false, false
}

func channelAttrName(channel int) string {
	return "channel_" + strconv.Itoa(channel)
}
