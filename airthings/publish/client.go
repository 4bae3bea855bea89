package publish

import (
	"context"
	"encoding/json"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/alepar/waveplus-reader/airthings/output"
)

const (
	qos = byte(1)

	gatewayTelemetryTopic = "v1/gateway/telemetry"
)

// MQTT configuration for a ThingsBoard gateway device
type Config struct {
	// e.g. tcp://thingsboard.local:1883
	Broker string
	// gateway access token, sent as MQTT username
	Token    string
	ClientID string
	Timeout  time.Duration
}

type Publisher struct {
	config Config
	client mqtt.Client
}

func NewPublisher(cfg Config) *Publisher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Token)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(false)
	opts.SetConnectTimeout(cfg.Timeout)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warnf("mqtt connection lost: %s", err)
	})

	return &Publisher{
		config: cfg,
		client: mqtt.NewClient(opts),
	}
}

func (p *Publisher) Connect(ctx context.Context) error {
	token := p.client.Connect()
	if err := wait(ctx, token, p.config.Timeout); err != nil {
		return errors.Wrapf(err, "failed to connect to %s", p.config.Broker)
	}
	log.Debugf("mqtt connected to %s", p.config.Broker)
	return nil
}

// Publish sends the readings of doc as one gateway telemetry message.
func (p *Publisher) Publish(ctx context.Context, doc *output.Document) error {
	if doc.Len() == 0 {
		return nil
	}
	payload, err := GatewayTelemetry(doc)
	if err != nil {
		return err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "failed to encode telemetry")
	}

	token := p.client.Publish(gatewayTelemetryTopic, qos, false, data)
	if err := wait(ctx, token, p.config.Timeout); err != nil {
		return errors.Wrapf(err, "failed to publish to %s", gatewayTelemetryTopic)
	}
	log.Infof("published telemetry of %d device(s)", doc.Len())
	return nil
}

func (p *Publisher) Close() {
	p.client.Disconnect(250)
}

func wait(ctx context.Context, token mqtt.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-timer.C:
		return errors.New("timeout")
	case <-ctx.Done():
		return ctx.Err()
	}
}
