// Package ingest bridges field lockers to the store over MQTT.
//
// Devices publish to {prefix}/{sectorId}/{lockerId}/heartbeat and
// {prefix}/{sectorId}/{lockerId}/tamper.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"droplock/internal/config"
	"droplock/internal/droplock"
)

// WriteTimeout bounds each store write triggered by a message.
const WriteTimeout = 2 * time.Second

const (
	kindHeartbeat = "heartbeat"
	kindTamper    = "tamper"
)

// Reporter records device signals. *droplock.DeviceReports satisfies it.
type Reporter interface {
	Heartbeat(sectorID, lockerID string, at time.Time) error
	Tamper(sectorID, lockerID string, flag bool, at time.Time) error
}

var _ Reporter = (*droplock.DeviceReports)(nil)

// Bridge subscribes to device topics and forwards them to a Reporter.
type Bridge struct {
	cfg     config.MQTTConfig
	client  mqtt.Client
	reports Reporter
	logger  droplock.Logger
	clock   droplock.Clock
	timeout time.Duration
}

// NewBridge prepares a client for cfg.Broker. It does not connect.
func NewBridge(cfg config.MQTTConfig, reports Reporter, logger droplock.Logger, clock droplock.Clock) *Bridge {
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = "droplock"
	}
	b := &Bridge{
		cfg:     cfg,
		reports: reports,
		logger:  logger,
		clock:   clock,
		timeout: WriteTimeout,
	}

	opts := mqtt.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	opts = opts.SetOrderMatters(false)
	opts = opts.SetAutoReconnect(true)
	if cfg.Username != "" {
		opts = opts.SetUsername(cfg.Username).SetPassword(cfg.Password)
	}
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		// Subscriptions are lost on reconnect with a clean session.
		if err := b.subscribe(c); err != nil {
			b.logger.Error("mqtt subscribe failed", "error", err)
		}
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		b.logger.Warn("mqtt connection lost", "error", err)
	})
	b.client = mqtt.NewClient(opts)
	return b
}

// Topics returns the subscription filters.
func (b *Bridge) Topics() []string {
	return []string{
		fmt.Sprintf("%s/+/+/%s", b.cfg.TopicPrefix, kindHeartbeat),
		fmt.Sprintf("%s/+/+/%s", b.cfg.TopicPrefix, kindTamper),
	}
}

// Run connects and processes messages until ctx is cancelled.
func (b *Bridge) Run(ctx context.Context) error {
	token := b.client.Connect()
	if token.Wait() && token.Error() != nil {
		return droplock.TransportError("connecting to mqtt broker", token.Error())
	}
	b.logger.Info("mqtt bridge connected", "broker", b.cfg.Broker, "client_id", b.cfg.ClientID)

	<-ctx.Done()
	b.logger.Info("mqtt bridge shutting down")
	b.client.Disconnect(250)
	return nil
}

func (b *Bridge) subscribe(c mqtt.Client) error {
	filters := make(map[string]byte)
	for _, topic := range b.Topics() {
		filters[topic] = b.cfg.QoS
	}
	token := c.SubscribeMultiple(filters, func(_ mqtt.Client, msg mqtt.Message) {
		err := b.HandleMessage(msg.Topic(), msg.Payload())
		switch {
		case err == nil:
		case IsUnknownLocker(err):
			b.logger.Info("message for unknown locker dropped", "topic", msg.Topic())
		default:
			b.logger.Warn("device message dropped", "topic", msg.Topic(), "error", err)
		}
	})
	token.Wait()
	return token.Error()
}

type heartbeatPayload struct {
	TS json.RawMessage `json:"ts"`
}

type tamperPayload struct {
	Flag *bool           `json:"flag"`
	TS   json.RawMessage `json:"ts"`
}

// HandleMessage parses one device message and records it. Messages for
// lockers that do not exist return an error wrapping ErrNotFound.
func (b *Bridge) HandleMessage(topic string, payload []byte) error {
	sectorID, lockerID, kind, err := b.parseTopic(topic)
	if err != nil {
		return err
	}

	switch kind {
	case kindHeartbeat:
		var p heartbeatPayload
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &p); err != nil {
				return fmt.Errorf("%w: heartbeat payload: %v", droplock.ErrValidation, err)
			}
		}
		at, err := b.timestamp(p.TS)
		if err != nil {
			return err
		}
		return b.withTimeout(func() error {
			return b.reports.Heartbeat(sectorID, lockerID, at)
		})

	case kindTamper:
		var p tamperPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return fmt.Errorf("%w: tamper payload: %v", droplock.ErrValidation, err)
		}
		if p.Flag == nil {
			return fmt.Errorf("%w: tamper payload missing flag", droplock.ErrValidation)
		}
		at, err := b.timestamp(p.TS)
		if err != nil {
			return err
		}
		return b.withTimeout(func() error {
			return b.reports.Tamper(sectorID, lockerID, *p.Flag, at)
		})
	}
	return fmt.Errorf("%w: unknown message kind %q", droplock.ErrValidation, kind)
}

func (b *Bridge) parseTopic(topic string) (sectorID, lockerID, kind string, err error) {
	rest, ok := strings.CutPrefix(topic, b.cfg.TopicPrefix+"/")
	if !ok {
		return "", "", "", fmt.Errorf("%w: topic %q outside prefix %q", droplock.ErrValidation, topic, b.cfg.TopicPrefix)
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" {
		return "", "", "", fmt.Errorf("%w: malformed topic %q", droplock.ErrValidation, topic)
	}
	return parts[0], parts[1], parts[2], nil
}

// timestamp accepts an RFC 3339 string or epoch milliseconds. Absent
// means now.
func (b *Bridge) timestamp(raw json.RawMessage) (time.Time, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return b.clock.Now(), nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: ts %q: %v", droplock.ErrValidation, s, err)
		}
		return t, nil
	}
	var ms int64
	if err := json.Unmarshal(raw, &ms); err != nil {
		return time.Time{}, fmt.Errorf("%w: ts must be RFC 3339 or epoch millis", droplock.ErrValidation)
	}
	return time.UnixMilli(ms), nil
}

// withTimeout runs fn and gives up waiting after b.timeout. fn keeps
// running to completion in the background; its result is discarded.
func (b *Bridge) withTimeout(fn func() error) error {
	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- fn() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return droplock.TransportError("recording device message", ctx.Err())
	}
}

// IsUnknownLocker reports whether err came from a message for a locker
// that does not exist.
func IsUnknownLocker(err error) bool {
	return errors.Is(err, droplock.ErrNotFound)
}
