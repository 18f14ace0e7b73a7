// Package announce publishes presence and conversation-turn events to an
// MQTT broker so voice satellites and dashboards can react to them.
package announce

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/ariahome/aria/internal/buildinfo"
	"github.com/ariahome/aria/internal/config"
	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"
)

// Turn is the payload published after each completed conversation turn.
type Turn struct {
	TurnID            string    `json:"turn_id"`
	Text              string    `json:"text"`
	Response          string    `json:"response"`
	ContinueListening bool      `json:"continue_listening"`
	Streamed          bool      `json:"streamed"`
	At                time.Time `json:"at"`
}

// Publisher manages the MQTT connection: availability with a last-will
// message, a periodic status heartbeat, and turn events.
type Publisher struct {
	cfg    config.MQTTConfig
	logger *slog.Logger
	cm     *autopaho.ConnectionManager
}

// New creates a Publisher but does not connect. Call [Publisher.Start]
// to begin the connection and heartbeat loop.
func New(cfg config.MQTTConfig, logger *slog.Logger) *Publisher {
	return &Publisher{
		cfg:    cfg,
		logger: logger.With("component", "announce"),
	}
}

func (p *Publisher) availabilityTopic() string {
	return p.cfg.BaseTopic + "/" + p.cfg.DeviceName + "/availability"
}

func (p *Publisher) turnTopic() string {
	return p.cfg.BaseTopic + "/" + p.cfg.DeviceName + "/turn"
}

func (p *Publisher) statusTopic() string {
	return p.cfg.BaseTopic + "/" + p.cfg.DeviceName + "/status"
}

// Start connects to the broker and runs the heartbeat loop. It blocks
// until ctx is cancelled. On every (re-)connect it publishes an "online"
// availability message; the broker publishes "offline" for us if the
// process dies.
func (p *Publisher) Start(ctx context.Context) error {
	brokerURL, err := url.Parse(p.cfg.Broker)
	if err != nil {
		return fmt.Errorf("parse mqtt broker URL: %w", err)
	}

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:      []*url.URL{brokerURL},
		KeepAlive:       30,
		ConnectUsername: p.cfg.Username,
		ConnectPassword: []byte(p.cfg.Password),
		WillMessage: &paho.WillMessage{
			Topic:   p.availabilityTopic(),
			Payload: []byte("offline"),
			QoS:     1,
			Retain:  true,
		},
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			p.logger.Info("mqtt connected", "broker", p.cfg.Broker)
			p.publishAvailability(ctx, cm, "online")
		},
		OnConnectError: func(err error) {
			p.logger.Warn("mqtt connection error", "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: "aria-" + p.cfg.DeviceName,
		},
	}
	if brokerURL.Scheme == "mqtts" || brokerURL.Scheme == "ssl" {
		pahoCfg.TlsCfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	p.cm = cm

	connCtx, connCancel := context.WithTimeout(ctx, 30*time.Second)
	defer connCancel()
	if err := cm.AwaitConnection(connCtx); err != nil {
		// autopaho keeps retrying in the background.
		p.logger.Warn("mqtt initial connection timed out, will retry", "error", err)
	}

	p.heartbeatLoop(ctx)
	return nil
}

// Stop publishes an explicit "offline" availability message and closes
// the connection.
func (p *Publisher) Stop(ctx context.Context) error {
	if p.cm == nil {
		return nil
	}
	p.publishAvailability(ctx, p.cm, "offline")
	return p.cm.Disconnect(ctx)
}

// PublishTurn announces a completed conversation turn. Failures are
// logged; turn delivery is best effort.
func (p *Publisher) PublishTurn(ctx context.Context, turn Turn) {
	if p.cm == nil {
		return
	}
	if turn.At.IsZero() {
		turn.At = time.Now().UTC()
	}
	payload, err := json.Marshal(turn)
	if err != nil {
		p.logger.Error("marshal turn event", "error", err)
		return
	}
	if _, err := p.cm.Publish(ctx, &paho.Publish{
		Topic:   p.turnTopic(),
		Payload: payload,
		QoS:     0,
	}); err != nil {
		p.logger.Debug("turn publish failed", "error", err)
	}
}

func (p *Publisher) publishAvailability(ctx context.Context, cm *autopaho.ConnectionManager, status string) {
	if _, err := cm.Publish(ctx, &paho.Publish{
		Topic:   p.availabilityTopic(),
		Payload: []byte(status),
		QoS:     1,
		Retain:  true,
	}); err != nil {
		p.logger.Warn("availability publish failed", "status", status, "error", err)
	}
}

func (p *Publisher) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	p.publishStatus(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.publishStatus(ctx)
		}
	}
}

func (p *Publisher) publishStatus(ctx context.Context) {
	if p.cm == nil {
		return
	}
	payload, err := json.Marshal(map[string]string{
		"version": buildinfo.Version,
		"uptime":  buildinfo.Uptime().Truncate(time.Second).String(),
	})
	if err != nil {
		return
	}
	if _, err := p.cm.Publish(ctx, &paho.Publish{
		Topic:   p.statusTopic(),
		Payload: payload,
		QoS:     0,
		Retain:  true,
	}); err != nil {
		p.logger.Debug("status publish failed", "error", err)
	}
}
