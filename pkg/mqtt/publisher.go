// Package mqtt connects the bridge to the broker: one paho client carrying
// the availability LWT, the command subscription, the state topics and the
// Home Assistant discovery documents.
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"mqtt-cerebro-bridge/pkg/config"
	"mqtt-cerebro-bridge/pkg/errors"
	"mqtt-cerebro-bridge/pkg/logger"
	"mqtt-cerebro-bridge/pkg/metrics"
	"mqtt-cerebro-bridge/pkg/topics"
)

// MessageHandler receives one inbound MQTT message
type MessageHandler func(topic, payload string)

// Publisher wraps the paho client. It owns the availability topic: the LWT
// flips it to offline on an ungraceful disconnect, the connect handler
// flips it back.
type Publisher struct {
	client    paho.Client
	cfg       *config.MQTTConfig
	metrics   metrics.MetricsCollector
	onConnect func()
}

// NewPublisher creates the broker client. onConnect runs after every
// (re)connection and is where the owner subscribes and republishes
// discovery; it may be nil.
func NewPublisher(cfg *config.MQTTConfig, mc metrics.MetricsCollector, onConnect func()) *Publisher {
	if mc == nil {
		mc = metrics.NewNullMetrics()
	}
	p := &Publisher{cfg: cfg, metrics: mc, onConnect: onConnect}

	statusTopic := topics.Status(cfg.BaseTopic)

	opts := paho.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port))
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(time.Duration(cfg.KeepAlive) * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetWill(statusTopic, "offline", 1, true)

	opts.SetOnConnectHandler(func(client paho.Client) {
		logger.LogInfo("Connected to MQTT broker %s:%d", cfg.Host, cfg.Port)
		if token := client.Publish(statusTopic, 1, true, "online"); token.Wait() && token.Error() != nil {
			logger.LogWarn("Publishing online status on connect: %v", token.Error())
		}
		if p.onConnect != nil {
			p.onConnect()
		}
	})

	opts.SetConnectionLostHandler(func(client paho.Client, err error) {
		logger.LogError("MQTT connection lost: %v", err)
	})

	p.client = paho.NewClient(opts)
	return p
}

// Connect connects to the broker, retrying until the context is cancelled
func (p *Publisher) Connect(ctx context.Context) error {
	retryDelay := time.Duration(p.cfg.RetryDelay) * time.Millisecond

	attempt := 1
	for {
		logger.LogDebug("Connecting to MQTT broker (attempt %d)...", attempt)

		if token := p.client.Connect(); token.Wait() && token.Error() != nil {
			logger.LogWarn("MQTT connection failed (attempt %d): %v", attempt, token.Error())
			select {
			case <-ctx.Done():
				return errors.NewMQTTError("connect", ctx.Err(), p.brokerAddr())
			case <-time.After(retryDelay):
				attempt++
				continue
			}
		}

		// Wait for the session to be fully established
		for i := 0; i < 50; i++ {
			if p.client.IsConnected() {
				logger.LogInfo("MQTT session established after %d attempt(s)", attempt)
				return nil
			}
			select {
			case <-ctx.Done():
				return errors.NewMQTTError("connect", ctx.Err(), p.brokerAddr())
			case <-time.After(100 * time.Millisecond):
			}
		}

		logger.LogWarn("MQTT connection establishment timeout (attempt %d)", attempt)
		select {
		case <-ctx.Done():
			return errors.NewMQTTError("connect", ctx.Err(), p.brokerAddr())
		case <-time.After(retryDelay):
			attempt++
		}
	}
}

// Disconnect publishes the offline status and closes the connection
func (p *Publisher) Disconnect() {
	if p.client.IsConnected() {
		statusTopic := topics.Status(p.cfg.BaseTopic)
		if token := p.client.Publish(statusTopic, 1, true, "offline"); token.Wait() && token.Error() != nil {
			logger.LogWarn("Publishing offline status: %v", token.Error())
		}
		p.client.Disconnect(250)
	}
	logger.LogInfo("Disconnected from MQTT broker")
}

// IsConnected reports the session state
func (p *Publisher) IsConnected() bool {
	return p.client.IsConnected()
}

// Publish sends one message
func (p *Publisher) Publish(topic, payload string, retained bool) error {
	token := p.client.Publish(topic, 0, retained, payload)
	if token.Wait() && token.Error() != nil {
		p.metrics.IncrementMQTTErrors()
		err := errors.NewMQTTError("publish", token.Error(), p.brokerAddr())
		err.Topic = topic
		return err
	}
	p.metrics.IncrementMQTTPublishes()
	logger.LogTrace("Published %s = %s (retained=%v)", topic, payload, retained)
	return nil
}

// PublishJSON marshals v and publishes it
func (p *Publisher) PublishJSON(topic string, v interface{}, retained bool) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.NewMQTTError("marshal payload", err, p.brokerAddr())
	}
	return p.Publish(topic, string(data), retained)
}

// PublishStatus publishes the availability topic
func (p *Publisher) PublishStatus(online bool) error {
	payload := "offline"
	if online {
		payload = "online"
	}
	return p.Publish(topics.Status(p.cfg.BaseTopic), payload, true)
}

// Subscribe routes every message under filter to the handler. Paho invokes
// handlers on its own goroutines; the handler is responsible for its own
// synchronization.
func (p *Publisher) Subscribe(filter string, handler MessageHandler) error {
	token := p.client.Subscribe(filter, 0, func(client paho.Client, msg paho.Message) {
		handler(msg.Topic(), string(msg.Payload()))
	})
	if token.Wait() && token.Error() != nil {
		return errors.NewMQTTError("subscribe", token.Error(), p.brokerAddr())
	}
	logger.LogInfo("Subscribed to %s", filter)
	return nil
}

func (p *Publisher) brokerAddr() string {
	return fmt.Sprintf("%s:%d", p.cfg.Host, p.cfg.Port)
}
