// Package publish forwards calibrated samples to an MQTT broker.
package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/itohio/goadc/pkg/config"
	"github.com/itohio/goadc/pkg/logging"
	"github.com/itohio/goadc/pkg/sample"
)

const (
	defaultPublishTimeout = 5 * time.Second
	disconnectQuiesceMs   = 250
)

// Message is the JSON payload published for every sample.
type Message struct {
	Timestamp  time.Time `json:"ts"`
	Unit       uint8     `json:"unit"`
	Channel    uint8     `json:"channel"`
	Raw        uint16    `json:"raw"`
	Millivolts int       `json:"mv"`
}

// Publisher publishes samples to <topic>/<unit>/<channel> and a retained
// status document to <topic>/status on every (re)connect.
type Publisher struct {
	cfg            config.MQTTConfig
	publishTimeout time.Duration

	newClient func(*mqtt.ClientOptions) mqtt.Client
	client    mqtt.Client

	mu     sync.RWMutex
	status any
}

// New creates a publisher. Connect must be called before publishing.
func New(cfg config.MQTTConfig) *Publisher {
	return &Publisher{
		cfg:            cfg,
		publishTimeout: defaultPublishTimeout,
		newClient:      mqtt.NewClient,
	}
}

// SetStatus sets the document published retained on connect.
func (p *Publisher) SetStatus(v any) {
	p.mu.Lock()
	p.status = v
	p.mu.Unlock()
}

// Connect connects to the broker, honouring ctx for the handshake.
func (p *Publisher) Connect(ctx context.Context) error {
	if p.cfg.Broker == "" {
		return errors.New("mqtt broker not configured")
	}
	if p.client == nil {
		p.client = p.newClient(p.options())
	}
	if p.client.IsConnected() {
		return nil
	}

	t := p.client.Connect()
	select {
	case <-t.Done():
		if err := t.Error(); err != nil {
			return fmt.Errorf("mqtt connect %s: %w", p.cfg.Broker, err)
		}
		return nil
	case <-ctx.Done():
		p.client.Disconnect(disconnectQuiesceMs)
		return ctx.Err()
	}
}

func (p *Publisher) options() *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions().AddBroker(p.cfg.Broker)
	opts.SetClientID(p.cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.OnConnect = func(mqtt.Client) {
		p.publishStatus()
	}
	return opts
}

func (p *Publisher) publishStatus() {
	p.mu.RLock()
	status := p.status
	p.mu.RUnlock()
	if status == nil {
		return
	}

	data, err := json.Marshal(status)
	if err != nil {
		logging.Error("Failed to marshal status", "error", err)
		return
	}
	topic := p.cfg.Topic + "/status"
	if err := p.publish(context.Background(), topic, true, data); err != nil {
		logging.Error("Failed to publish status", "topic", topic, "error", err)
		return
	}
	logging.Info("Published status", "topic", topic)
}

// IsConnected reports whether the client is connected.
func (p *Publisher) IsConnected() bool {
	return p.client != nil && p.client.IsConnected()
}

// Publish sends one sample.
func (p *Publisher) Publish(ctx context.Context, s sample.Sample) error {
	data, err := json.Marshal(Message{
		Timestamp:  s.Timestamp,
		Unit:       uint8(s.Unit),
		Channel:    s.Channel,
		Raw:        s.Raw,
		Millivolts: s.Millivolts,
	})
	if err != nil {
		return err
	}
	return p.publish(ctx, Topic(p.cfg.Topic, s), false, data)
}

// Topic returns the topic a sample is published on.
func Topic(prefix string, s sample.Sample) string {
	return fmt.Sprintf("%s/%d/%d", prefix, s.Unit, s.Channel)
}

func (p *Publisher) publish(ctx context.Context, topic string, retain bool, payload []byte) error {
	if p.client == nil {
		return errors.New("client not initialized")
	}
	qos := p.cfg.QoS
	if qos > 2 {
		qos = 0
	}
	token := p.client.Publish(topic, qos, retain, payload)
	if qos == 0 {
		return nil
	}

	select {
	case <-token.Done():
		return token.Error()
	case <-time.After(p.publishTimeout):
		return fmt.Errorf("publish timeout after %v", p.publishTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run publishes every sample from in until it closes or ctx is cancelled.
// Failed publishes are logged and skipped.
func (p *Publisher) Run(ctx context.Context, in <-chan sample.Sample) error {
	var failed uint64
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case s, ok := <-in:
			if !ok {
				return nil
			}
			if err := p.Publish(ctx, s); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				failed++
				if failed == 1 || failed%1000 == 0 {
					logging.Warn("Failed to publish sample", "failed", failed, "error", err)
				}
			}
		}
	}
}

// Close disconnects from the broker.
func (p *Publisher) Close(ctx context.Context) error {
	if p.client == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		p.client.Disconnect(disconnectQuiesceMs)
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
