package notify

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/pranavpai/Sidekick-Langraph-Agent/internal/buildinfo"
	"github.com/pranavpai/Sidekick-Langraph-Agent/internal/config"
	"github.com/pranavpai/Sidekick-Langraph-Agent/internal/events"
)

// publisher is the subset of autopaho.ConnectionManager that MQTT uses.
type publisher interface {
	Publish(ctx context.Context, p *paho.Publish) (*paho.PublishResponse, error)
}

// MQTT publishes notifications and run status to a broker. Topics are
// rooted at <topic_prefix>/<device_name>:
//
//	.../availability             online/offline, retained, with LWT
//	.../notify                   one JSON message per notification
//	.../sessions/<id>/status     latest run status per session, retained
type MQTT struct {
	cfg        config.MQTTConfig
	instanceID string
	logger     *slog.Logger

	mu  sync.Mutex
	pub publisher
	cm  *autopaho.ConnectionManager
}

// NewMQTT creates the channel but does not connect. Call [MQTT.Start].
func NewMQTT(cfg config.MQTTConfig, instanceID string, logger *slog.Logger) *MQTT {
	if logger == nil {
		logger = slog.Default()
	}
	return &MQTT{
		cfg:        cfg,
		instanceID: instanceID,
		logger:     logger.With("component", "mqtt"),
	}
}

func (m *MQTT) Name() string { return "mqtt" }

// Start connects to the broker. autopaho keeps reconnecting in the
// background, so an initial connection timeout is logged, not returned.
func (m *MQTT) Start(ctx context.Context) error {
	brokerURL, err := url.Parse(m.cfg.Broker)
	if err != nil {
		return fmt.Errorf("parse mqtt broker URL: %w", err)
	}

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:      []*url.URL{brokerURL},
		KeepAlive:       30,
		ConnectUsername: m.cfg.Username,
		ConnectPassword: []byte(m.cfg.Password),
		WillMessage: &paho.WillMessage{
			Topic:   m.availabilityTopic(),
			Payload: []byte("offline"),
			QoS:     1,
			Retain:  true,
		},
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			m.logger.Info("mqtt connected to broker", "broker", m.cfg.Broker)
			m.publishAvailability(ctx, cm, "online")
		},
		OnConnectError: func(err error) {
			m.logger.Warn("mqtt connection error", "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: "sidekick-" + m.instanceID,
		},
	}

	if brokerURL.Scheme == "mqtts" || brokerURL.Scheme == "ssl" {
		pahoCfg.TlsCfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	m.mu.Lock()
	m.cm = cm
	m.pub = cm
	m.mu.Unlock()

	connCtx, connCancel := context.WithTimeout(ctx, 10*time.Second)
	defer connCancel()
	if err := cm.AwaitConnection(connCtx); err != nil {
		m.logger.Warn("mqtt initial connection timed out, will retry in background", "error", err)
	}
	return nil
}

// Stop publishes "offline" and disconnects.
func (m *MQTT) Stop(ctx context.Context) error {
	m.mu.Lock()
	cm := m.cm
	m.cm, m.pub = nil, nil
	m.mu.Unlock()
	if cm == nil {
		return nil
	}
	m.publishAvailability(ctx, cm, "offline")
	return cm.Disconnect(ctx)
}

// AwaitConnection blocks until the broker connection is up or ctx ends.
func (m *MQTT) AwaitConnection(ctx context.Context) error {
	m.mu.Lock()
	cm := m.cm
	m.mu.Unlock()
	if cm == nil {
		return fmt.Errorf("mqtt not started")
	}
	return cm.AwaitConnection(ctx)
}

func (m *MQTT) currentPublisher() publisher {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pub
}

func (m *MQTT) baseTopic() string {
	return m.cfg.TopicPrefix + "/" + m.cfg.DeviceName
}

func (m *MQTT) availabilityTopic() string {
	return m.baseTopic() + "/availability"
}

func (m *MQTT) notifyTopic() string {
	return m.baseTopic() + "/notify"
}

func (m *MQTT) statusTopic(sessionID string) string {
	return m.baseTopic() + "/sessions/" + sessionID + "/status"
}

func (m *MQTT) publishAvailability(ctx context.Context, pub publisher, status string) {
	if _, err := pub.Publish(ctx, &paho.Publish{
		Topic:   m.availabilityTopic(),
		Payload: []byte(status),
		QoS:     1,
		Retain:  true,
	}); err != nil {
		m.logger.Warn("mqtt availability publish failed", "status", status, "error", err)
	} else {
		m.logger.Info("mqtt availability published", "status", status)
	}
}

type notifyPayload struct {
	Message
	Timestamp time.Time `json:"ts"`
	Version   string    `json:"version"`
}

// Send publishes msg to the notify topic at QoS 1.
func (m *MQTT) Send(ctx context.Context, msg Message) error {
	pub := m.currentPublisher()
	if pub == nil {
		return fmt.Errorf("mqtt not connected")
	}
	payload, err := json.Marshal(notifyPayload{Message: msg, Timestamp: time.Now().UTC(), Version: buildinfo.Version})
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	if _, err := pub.Publish(ctx, &paho.Publish{
		Topic:   m.notifyTopic(),
		Payload: payload,
		QoS:     1,
	}); err != nil {
		return fmt.Errorf("mqtt publish: %w", err)
	}
	return nil
}

// RunStatusBridge mirrors run lifecycle events from bus onto the
// per-session status topic until ctx is cancelled.
func (m *MQTT) RunStatusBridge(ctx context.Context, bus *events.Bus) {
	ch := bus.Subscribe(64, events.Filter{Source: events.SourceAgent})
	defer bus.Unsubscribe(ch)

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			m.publishStatus(ctx, e)
		}
	}
}

func (m *MQTT) publishStatus(ctx context.Context, e events.Event) {
	if e.Source != events.SourceAgent {
		return
	}
	switch e.Kind {
	case events.KindRunStart, events.KindPhase, events.KindRunComplete:
	default:
		return
	}
	sessionID, _ := e.Data["session_id"].(string)
	if sessionID == "" {
		return
	}
	pub := m.currentPublisher()
	if pub == nil {
		return
	}

	payload, err := json.Marshal(e)
	if err != nil {
		return
	}
	if _, err := pub.Publish(ctx, &paho.Publish{
		Topic:   m.statusTopic(sessionID),
		Payload: payload,
		QoS:     0,
		Retain:  true,
	}); err != nil {
		m.logger.Debug("mqtt status publish failed", "session", sessionID, "error", err)
	}
}
