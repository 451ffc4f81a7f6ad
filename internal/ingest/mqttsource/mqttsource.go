// Package mqttsource subscribes to a station feed over MQTT and submits
// each message as a reading. Stations publish to stations/<id>/readings;
// the payload is the same JSON body the HTTP surface accepts.
package mqttsource

import (
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/fieldline/geostack/internal/config"
	apperrors "github.com/fieldline/geostack/internal/errors"
	"github.com/fieldline/geostack/internal/logging"
	"github.com/fieldline/geostack/internal/reading"
	"github.com/fieldline/geostack/internal/service"
)

// Subscriber bridges an MQTT station feed into the ingestion buffers.
type Subscriber struct {
	cfg    config.MQTTConfig
	svc    *service.Service
	client mqtt.Client
	log    *slog.Logger
}

// New creates a subscriber feeding the given service.
func New(cfg config.MQTTConfig, svc *service.Service) *Subscriber {
	return &Subscriber{cfg: cfg, svc: svc, log: logging.Component("mqtt")}
}

// Start connects to the broker and subscribes. Reconnects and
// re-subscription are handled by the client; Start only fails on the
// initial connect.
func (s *Subscriber) Start() error {
	opts := mqtt.NewClientOptions().
		AddBroker(s.cfg.Broker).
		SetClientID(s.cfg.ClientID).
		SetOrderMatters(false).
		SetKeepAlive(30 * time.Second).
		SetPingTimeout(10 * time.Second).
		SetAutoReconnect(true).
		SetConnectRetryInterval(5 * time.Second).
		SetCleanSession(false)

	if s.cfg.Username != "" {
		opts.SetUsername(s.cfg.Username)
		opts.SetPassword(s.cfg.Password)
	}

	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		s.log.Error("connection lost", "error", err)
	}
	opts.OnConnect = func(c mqtt.Client) {
		s.log.Info("connected, subscribing", "topic", s.cfg.Topic)
		if token := c.Subscribe(s.cfg.Topic, 1, s.onMessage); token.Wait() && token.Error() != nil {
			s.log.Error("subscribe failed", "topic", s.cfg.Topic, "error", token.Error())
		}
	}

	s.client = mqtt.NewClient(opts)
	if tk := s.client.Connect(); tk.Wait() && tk.Error() != nil {
		return tk.Error()
	}
	return nil
}

// Stop disconnects from the broker.
func (s *Subscriber) Stop() {
	if s.client != nil && s.client.IsConnected() {
		s.client.Disconnect(500)
	}
}

type payload struct {
	StationID string              `json:"station_id"`
	Timestamp time.Time           `json:"timestamp"`
	Fields    map[string]*float64 `json:"fields"`
}

// stationFromTopic extracts the station id from stations/<id>/readings.
func stationFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) < 2 {
		return ""
	}
	return parts[1]
}

func (s *Subscriber) onMessage(_ mqtt.Client, m mqtt.Message) {
	var p payload
	if err := json.Unmarshal(m.Payload(), &p); err != nil {
		s.log.Warn("malformed payload", "topic", m.Topic(), "error", err)
		return
	}

	stationID := stationFromTopic(m.Topic())
	if stationID == "" {
		stationID = p.StationID
	}
	if p.Timestamp.IsZero() {
		p.Timestamp = time.Now().UTC()
	}

	rec := reading.New(stationID, p.Timestamp, p.Fields)
	if err := s.svc.SubmitReading(rec); err != nil {
		// A full buffer is expected under burst; the station retries.
		if apperrors.IsCapacity(err) {
			s.log.Debug("reading rejected", "station", stationID, "error", err)
			return
		}
		s.log.Warn("submit failed", "station", stationID, "error", err)
	}
}
