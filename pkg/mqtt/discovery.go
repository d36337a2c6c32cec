package mqtt

import (
	"fmt"
	"sync"

	"mqtt-cerebro-bridge/pkg/config"
	"mqtt-cerebro-bridge/pkg/logger"
	"mqtt-cerebro-bridge/pkg/topics"
)

// deviceInfo is the HA device registry block shared by a board's entities
type deviceInfo struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer,omitempty"`
	Model        string   `json:"model,omitempty"`
	ViaDevice    string   `json:"via_device,omitempty"`
}

// entityConfig is the superset of the HA discovery document fields the
// bridge emits; omitempty keeps each component's JSON minimal
type entityConfig struct {
	Name              string      `json:"name"`
	UniqueID          string      `json:"unique_id"`
	StateTopic        string      `json:"state_topic,omitempty"`
	CommandTopic      string      `json:"command_topic,omitempty"`
	AvailabilityTopic string      `json:"availability_topic,omitempty"`
	PayloadOn         string      `json:"payload_on,omitempty"`
	PayloadOff        string      `json:"payload_off,omitempty"`
	PayloadOpen       string      `json:"payload_open,omitempty"`
	PayloadClose      string      `json:"payload_close,omitempty"`
	StateOpen         string      `json:"state_open,omitempty"`
	StateClosed       string      `json:"state_closed,omitempty"`
	PayloadPress      string      `json:"payload_press,omitempty"`
	BrightnessCmd     string      `json:"brightness_command_topic,omitempty"`
	BrightnessState   string      `json:"brightness_state_topic,omitempty"`
	BrightnessScale   int         `json:"brightness_scale,omitempty"`
	DeviceClass       string      `json:"device_class,omitempty"`
	UnitOfMeasurement string      `json:"unit_of_measurement,omitempty"`
	Min               float64     `json:"min,omitempty"`
	Max               float64     `json:"max,omitempty"`
	Step              float64     `json:"step,omitempty"`
	Options           []string    `json:"options,omitempty"`
	EntityCategory    string      `json:"entity_category,omitempty"`
	Device            interface{} `json:"device,omitempty"`
}

const bridgeDeviceID = "cerebro2mqtt_bridge"

// DiscoveryPublisher emits retained Home Assistant discovery documents and
// retracts them when boards disappear from the configuration. The ledger of
// published config topics makes retraction exact: one empty retained
// payload per entity, exactly once.
type DiscoveryPublisher struct {
	broker BrokerClient
	base   string
	prefix string

	mu        sync.Mutex
	published map[string]map[string]bool // board ID -> config topics
	bridgeSet bool
}

// NewDiscoveryPublisher creates a discovery publisher
func NewDiscoveryPublisher(broker BrokerClient, baseTopic, discoveryPrefix string) *DiscoveryPublisher {
	return &DiscoveryPublisher{
		broker:    broker,
		base:      baseTopic,
		prefix:    discoveryPrefix,
		published: make(map[string]map[string]bool),
	}
}

// Sync publishes the discovery documents for every publishable board and
// retracts entities of boards that are gone, disabled or publish-disabled.
// Idempotent, so the MQTT reconnect handler can call it freely.
func (d *DiscoveryPublisher) Sync(snap *config.BoardSnapshot) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.bridgeSet {
		d.publishBridgeEntities()
		d.bridgeSet = true
	}

	current := make(map[string]map[string]bool)
	for _, board := range snap.Boards() {
		if !board.Enabled || !board.Publish {
			continue
		}
		current[board.ID] = d.publishBoard(board)
	}

	// Retract everything that was published before but is not anymore
	for boardID, old := range d.published {
		for topic := range old {
			if current[boardID] == nil || !current[boardID][topic] {
				if err := d.broker.Publish(topic, "", true); err != nil {
					logger.LogWarn("Retracting %s: %v", topic, err)
				} else {
					logger.LogInfo("Retracted discovery config %s", topic)
				}
			}
		}
	}
	d.published = current
}

// publishBoard emits all entities of one board and returns their config topics
func (d *DiscoveryPublisher) publishBoard(board config.Board) map[string]bool {
	emitted := make(map[string]bool)
	emit := func(component, uniqueID string, cfg entityConfig) {
		topic := topics.DiscoveryConfig(d.prefix, component, uniqueID)
		cfg.UniqueID = uniqueID
		cfg.AvailabilityTopic = topics.Status(d.base)
		cfg.Device = d.boardDevice(board)
		if err := d.broker.PublishJSON(topic, cfg, true); err != nil {
			logger.LogWarn("Publishing discovery for '%s': %v", board.ID, err)
			return
		}
		emitted[topic] = true
	}

	slug := board.Slug()
	switch board.Type {
	case config.BoardLights:
		for _, ch := range board.Channels() {
			emit("switch", topics.UniqueID(board.ID, fmt.Sprintf("ch%d", ch)), entityConfig{
				Name:         fmt.Sprintf("%s ch%d", board.Name, ch),
				StateTopic:   topics.ChannelState(d.base, slug, ch),
				CommandTopic: topics.ChannelSet(d.base, slug, ch),
				PayloadOn:    "ON",
				PayloadOff:   "OFF",
			})
		}

	case config.BoardShutters:
		emit("cover", topics.UniqueID(board.ID, ""), entityConfig{
			Name:         board.Name,
			StateTopic:   topics.State(d.base, slug),
			CommandTopic: topics.Set(d.base, slug),
			PayloadOpen:  "OPEN",
			PayloadClose: "CLOSE",
			StateOpen:    "OPEN",
			StateClosed:  "CLOSED",
			DeviceClass:  "shutter",
		})

	case config.BoardDimmer:
		emit("light", topics.UniqueID(board.ID, ""), entityConfig{
			Name:            board.Name,
			StateTopic:      topics.State(d.base, slug),
			CommandTopic:    topics.Set(d.base, slug),
			BrightnessCmd:   topics.BrightnessSet(d.base, slug),
			BrightnessState: topics.BrightnessState(d.base, slug),
			BrightnessScale: 255,
			PayloadOn:       "ON",
			PayloadOff:      "OFF",
		})

	case config.BoardThermostat:
		emit("sensor", topics.UniqueID(board.ID, "temperature"), entityConfig{
			Name:              board.Name + " temperature",
			StateTopic:        topics.TemperatureState(d.base, slug),
			DeviceClass:       "temperature",
			UnitOfMeasurement: "°C",
		})
		emit("number", topics.UniqueID(board.ID, "setpoint"), entityConfig{
			Name:              board.Name + " setpoint",
			StateTopic:        topics.SetpointState(d.base, slug),
			CommandTopic:      topics.SetpointSet(d.base, slug),
			Min:               5,
			Max:               35,
			Step:              0.5,
			UnitOfMeasurement: "°C",
		})
		emit("select", topics.UniqueID(board.ID, "season"), entityConfig{
			Name:         board.Name + " season",
			StateTopic:   topics.SeasonState(d.base, slug),
			CommandTopic: topics.SeasonSet(d.base, slug),
			Options:      []string{"WINTER", "SUMMER"},
		})
	}

	// Every board carries a manual poll button
	emit("button", topics.UniqueID(board.ID, "poll"), entityConfig{
		Name:           board.Name + " poll",
		CommandTopic:   topics.PollSet(d.base, slug),
		PayloadPress:   "PRESS",
		EntityCategory: "diagnostic",
	})

	return emitted
}

// publishBridgeEntities emits the bridge-level poll_all button under the
// bridge device. These live for the process lifetime and are never retracted.
func (d *DiscoveryPublisher) publishBridgeEntities() {
	cfg := entityConfig{
		Name:              "Poll all boards",
		UniqueID:          topics.UniqueID("poll_all", ""),
		CommandTopic:      topics.PollAllSet(d.base),
		PayloadPress:      "PRESS",
		AvailabilityTopic: topics.Status(d.base),
		EntityCategory:    "diagnostic",
		Device: deviceInfo{
			Identifiers:  []string{bridgeDeviceID},
			Name:         "cerebro2mqtt bridge",
			Manufacturer: "Cerebro",
			Model:        "serial bridge",
		},
	}
	topic := topics.DiscoveryConfig(d.prefix, "button", cfg.UniqueID)
	if err := d.broker.PublishJSON(topic, cfg, true); err != nil {
		logger.LogWarn("Publishing bridge discovery: %v", err)
	}
}

func (d *DiscoveryPublisher) boardDevice(board config.Board) deviceInfo {
	return deviceInfo{
		Identifiers:  []string{topics.UniqueID(board.ID, "")},
		Name:         board.Name,
		Manufacturer: "Cerebro",
		Model:        string(board.Type) + " board",
		ViaDevice:    bridgeDeviceID,
	}
}
