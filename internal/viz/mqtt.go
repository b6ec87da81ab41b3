package viz

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
)

// Publisher pushes snapshots to an MQTT broker so display layers can watch
// a simulation without holding an HTTP connection to it.
type Publisher struct {
	client mqtt.Client
	topic  string
}

// NewPublisher connects to the broker. brokerURL is e.g. tcp://host:1883.
func NewPublisher(brokerURL, clientID, topic string) (*Publisher, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(brokerURL).
		SetClientID(clientID).
		SetConnectTimeout(5 * time.Second).
		SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("mqtt connect to %s timed out", brokerURL)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect to %s failed: %w", brokerURL, err)
	}

	log.WithFields(log.Fields{"broker": brokerURL, "topic": topic}).Info("mqtt publisher connected")
	return &Publisher{client: client, topic: topic}, nil
}

// Publish sends one snapshot as JSON at QoS 0. Ticks outrun a slow broker;
// losing frames is acceptable for a display feed.
func (p *Publisher) Publish(v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	p.client.Publish(p.topic, 0, false, payload)
	return nil
}

// Close disconnects from the broker.
func (p *Publisher) Close() {
	p.client.Disconnect(250)
}
