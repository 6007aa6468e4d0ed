// Package mqttsink publishes every stored position to an MQTT broker.
package mqttsink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"satrack/internal/application/port"
	"satrack/internal/domain/model"
)

const (
	connectWait = 10 * time.Second
	publishWait = 5 * time.Second
)

// Client is the slice of the paho API the sink needs, kept narrow so tests
// can fake it.
type Client interface {
	Connect() mqtt.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// Options carry the broker connection settings.
type Options struct {
	Broker   string
	ClientID string
	Topic    string
	QoS      int
	Username string
	Password string
}

// Sink forwards positions as JSON to a single topic. Publish failures are
// returned to the caller; the collector logs and counts them without
// stopping.
type Sink struct {
	client Client
	topic  string
	qos    byte
}

var _ port.Sink = (*Sink)(nil)

// New dials the broker and returns a connected sink.
func New(opts Options) (*Sink, error) {
	o := mqtt.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(connectWait)
	if opts.Username != "" {
		o.SetUsername(opts.Username)
		o.SetPassword(opts.Password)
	}

	client := mqtt.NewClient(o)
	token := client.Connect()
	if !token.WaitTimeout(connectWait) {
		return nil, fmt.Errorf("mqtt connect to %s timed out", opts.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect to %s: %w", opts.Broker, err)
	}

	log.Info().
		Str("broker", opts.Broker).
		Str("topic", opts.Topic).
		Int("qos", opts.QoS).
		Msg("mqtt sink connected")

	return NewWithClient(client, opts.Topic, byte(opts.QoS)), nil
}

// NewWithClient wires an already connected client.
func NewWithClient(client Client, topic string, qos byte) *Sink {
	return &Sink{client: client, topic: topic, qos: qos}
}

func (s *Sink) Name() string { return "mqtt" }

func (s *Sink) Publish(ctx context.Context, p model.Position) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return err
	}

	token := s.client.Publish(s.topic, s.qos, false, payload)

	wait := publishWait
	if deadline, ok := ctx.Deadline(); ok {
		if d := time.Until(deadline); d < wait {
			wait = d
		}
	}
	if !token.WaitTimeout(wait) {
		return errors.New("mqtt publish timed out")
	}
	return token.Error()
}

func (s *Sink) Close() error {
	s.client.Disconnect(250)
	return nil
}
