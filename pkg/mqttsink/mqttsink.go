// Package mqttsink forwards telemetry events to an MQTT broker as JSON, at most once.
package mqttsink

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"

	"github.com/tigerbot-team/rover/pkg/telemetry"
)

const connectTimeout = 5 * time.Second

type client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

type Publisher struct {
	client client
	topic  string
	conn   mqtt.Client

	failures int64
}

var _ telemetry.Renderer = (*Publisher)(nil)

// Dial connects to the broker.  Once connected, the client reconnects by itself; events
// rendered while the link is down are lost.
func Dial(broker, clientID, topic string) (*Publisher, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(connectTimeout).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			fmt.Println("MQTT: connection lost:", err)
		})
	c := mqtt.NewClient(opts)
	tok := c.Connect()
	if !tok.WaitTimeout(connectTimeout) {
		return nil, errors.Errorf("timed out connecting to %s", broker)
	}
	if err := tok.Error(); err != nil {
		return nil, errors.Wrapf(err, "failed to connect to %s", broker)
	}
	fmt.Println("MQTT: connected to", broker)
	p := newPublisher(c, topic)
	p.conn = c
	return p, nil
}

func newPublisher(c client, topic string) *Publisher {
	return &Publisher{client: c, topic: topic}
}

// Render publishes without waiting for the broker.
func (p *Publisher) Render(e telemetry.Event) {
	payload, err := json.Marshal(e)
	if err != nil {
		fmt.Println("MQTT: failed to encode event:", err)
		return
	}
	tok := p.client.Publish(p.topic, 0, false, payload)
	select {
	case <-tok.Done():
		if err := tok.Error(); err != nil {
			// Only report the first of a run of failures.
			if atomic.AddInt64(&p.failures, 1) == 1 {
				fmt.Println("MQTT: publish failed:", err)
			}
			return
		}
	default:
	}
	atomic.StoreInt64(&p.failures, 0)
}

func (p *Publisher) Close() {
	if p.conn != nil {
		p.conn.Disconnect(250)
	}
}
