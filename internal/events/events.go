// Package events publishes consignment lifecycle events to the fleet feed.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"
)

// Type names a lifecycle event.
type Type string

const (
	ConsignmentSubmitted Type = "consignment.submitted"
	ConsignmentReviewed  Type = "consignment.reviewed"
	VehiclePromoted      Type = "vehicle.promoted"
)

// Event is the JSON payload of a lifecycle event.
type Event struct {
	Type          Type      `json:"type"`
	ConsignmentID string    `json:"consignment_id"`
	Status        string    `json:"status,omitempty"`
	VehicleID     string    `json:"vehicle_id,omitempty"`
	ActorID       string    `json:"actor_id,omitempty"`
	At            time.Time `json:"at"`
}

// Topic returns the topic suffix the event is published under.
func (e Event) Topic() string {
	switch e.Type {
	case VehiclePromoted:
		return "vehicles/promoted"
	default:
		return "consignments/" + e.Status
	}
}

// Publisher delivers events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// NopPublisher discards every event.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(context.Context, Event) error { return nil }

// MQTTOptions configures an MQTTPublisher.
type MQTTOptions struct {
	BrokerURL   string
	ClientID    string
	TopicPrefix string
	QoS         byte
	Timeout     time.Duration
}

// MQTTPublisher publishes events to an MQTT broker.
type MQTTPublisher struct {
	client  mqtt.Client
	prefix  string
	qos     byte
	timeout time.Duration
	log     *logrus.Entry
}

// NewMQTTPublisher connects to the broker and returns a publisher.
func NewMQTTPublisher(opts MQTTOptions, log *logrus.Entry) (*MQTTPublisher, error) {
	if opts.BrokerURL == "" {
		return nil, errors.New("mqtt broker url is required")
	}
	if opts.ClientID == "" {
		opts.ClientID = "fleet-rental"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	log = log.WithField("component", "events")

	clientOpts := mqtt.NewClientOptions().
		AddBroker(opts.BrokerURL).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(opts.Timeout).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.WithError(err).Warn("MQTT connection lost")
		})

	client := mqtt.NewClient(clientOpts)
	token := client.Connect()
	if !token.WaitTimeout(opts.Timeout) {
		return nil, fmt.Errorf("mqtt connect to %s timed out", opts.BrokerURL)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}

	log.WithField("broker", opts.BrokerURL).Info("Connected to MQTT broker")
	return newMQTTPublisher(client, opts, log), nil
}

func newMQTTPublisher(client mqtt.Client, opts MQTTOptions, log *logrus.Entry) *MQTTPublisher {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	return &MQTTPublisher{
		client:  client,
		prefix:  strings.TrimSuffix(opts.TopicPrefix, "/"),
		qos:     opts.QoS,
		timeout: opts.Timeout,
		log:     log,
	}
}

// Publish implements Publisher.
func (p *MQTTPublisher) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	topic := event.Topic()
	if p.prefix != "" {
		topic = p.prefix + "/" + topic
	}

	token := p.client.Publish(topic, p.qos, false, payload)
	wait := p.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < wait {
			wait = remaining
		}
	}
	if !token.WaitTimeout(wait) {
		return fmt.Errorf("publish %s timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Close disconnects from the broker.
func (p *MQTTPublisher) Close() {
	p.client.Disconnect(250)
}
