// Package emitter publishes periodic analysis telemetry to an MQTT broker.
package emitter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/e7canasta/analysis-core/config"
)

// ErrNotConnected is returned by Publish before Connect succeeds or after
// the connection is lost.
var ErrNotConnected = errors.New("mqtt not connected")

// MQTTEmitter publishes telemetry snapshots to MQTT broker
type MQTTEmitter struct {
	cfg        config.MQTTConfig
	instanceID string
	Client     mqtt.Client

	mu        sync.RWMutex
	published uint64
	errors    uint64
	bytes     uint64
	connected bool
}

// NewMQTTEmitter creates a new MQTT emitter. client may be nil, in which
// case Connect builds a paho client from cfg.
func NewMQTTEmitter(instanceID string, cfg config.MQTTConfig, client mqtt.Client) *MQTTEmitter {
	return &MQTTEmitter{
		cfg:        cfg,
		instanceID: instanceID,
		Client:     client,
	}
}

// Connect establishes connection to MQTT broker
func (e *MQTTEmitter) Connect(ctx context.Context) error {
	if e.Client == nil {
		e.Client = mqtt.NewClient(e.clientOptions())
	}

	slog.Info("emitter: connecting to mqtt broker", "broker", e.cfg.Broker)

	token := e.Client.Connect()
	select {
	case <-token.Done():
	case <-time.After(5 * time.Second):
		return fmt.Errorf("mqtt connection timeout")
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connection failed: %w", err)
	}

	e.setConnected(true)
	return nil
}

func (e *MQTTEmitter) clientOptions() *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", e.cfg.Broker))
	opts.SetClientID(e.instanceID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c mqtt.Client) {
		e.setConnected(true)
		slog.Info("emitter: mqtt connection established",
			"broker", e.cfg.Broker,
			"client_id", e.instanceID)
	}

	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		e.setConnected(false)
		slog.Warn("emitter: mqtt connection lost, will auto-reconnect",
			"error", err,
			"broker", e.cfg.Broker)
	}
	return opts
}

// Publish sends one snapshot to the configured topic.
func (e *MQTTEmitter) Publish(s Snapshot) error {
	if !e.isConnected() {
		e.countError()
		return ErrNotConnected
	}

	payload, err := Encode(s)
	if err != nil {
		e.countError()
		return err
	}

	token := e.Client.Publish(e.cfg.Topic, e.cfg.QoS, false, payload)
	if !token.WaitTimeout(2 * time.Second) {
		e.countError()
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		e.countError()
		return fmt.Errorf("publish failed: %w", err)
	}

	e.mu.Lock()
	e.published++
	e.bytes += uint64(len(payload))
	e.mu.Unlock()

	slog.Debug("emitter: snapshot published",
		"topic", e.cfg.Topic,
		"qos", e.cfg.QoS,
		"size", len(payload),
	)
	return nil
}

// Run publishes collect() every interval until ctx is done. Publish errors
// are logged and counted; the loop keeps going.
func (e *MQTTEmitter) Run(ctx context.Context, collect func() Snapshot) error {
	interval := e.cfg.Interval()
	if interval <= 0 {
		interval = time.Duration(config.DefaultMQTTInterval) * time.Second
	}
	return e.runEvery(ctx, interval, collect)
}

func (e *MQTTEmitter) runEvery(ctx context.Context, interval time.Duration, collect func() Snapshot) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := e.Publish(collect()); err != nil {
				slog.Warn("emitter: publish failed", "error", err)
			}
		}
	}
}

// Disconnect closes the MQTT connection
func (e *MQTTEmitter) Disconnect() {
	if e.Client != nil && e.Client.IsConnected() {
		e.Client.Disconnect(250) // 250ms grace period
		slog.Info("emitter: mqtt disconnected")
	}
	e.setConnected(false)
}

// Stats contains emitter statistics
type Stats struct {
	Connected bool
	Published uint64
	Bytes     uint64
	Errors    uint64
}

// Stats returns emitter statistics
func (e *MQTTEmitter) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Stats{
		Connected: e.connected,
		Published: e.published,
		Bytes:     e.bytes,
		Errors:    e.errors,
	}
}

func (e *MQTTEmitter) isConnected() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.connected
}

func (e *MQTTEmitter) setConnected(v bool) {
	e.mu.Lock()
	e.connected = v
	e.mu.Unlock()
}

func (e *MQTTEmitter) countError() {
	e.mu.Lock()
	e.errors++
	e.mu.Unlock()
}
