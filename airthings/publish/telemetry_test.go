package publish

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/eclipse/paho.mqtt.golang/packets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alepar/waveplus-reader/airthings"
	"github.com/alepar/waveplus-reader/airthings/output"
)

func sampleDocument() *output.Document {
	radon := 30
	illuminance := 12
	doc := output.NewDocument()
	doc.Set("AA:BB:CC:DD:EE:FF", airthings.Reading{
		SensorValues: airthings.SensorValues{
			Humidity:    45.5,
			Temperature: 21.3,
			Co2Level:    612,
			VocLevel:    150,
			RadonShort:  &radon,
			AtmPressure: 1008.2,
		},
		AbsoluteHumidity: 8.5,
		Illuminance:      &illuminance,
		Battery:          airthings.NewBattery(3.0),
		Timestamp:        time.Unix(1791700000, 0).UTC(),
	})
	return doc
}

func TestGatewayTelemetry(t *testing.T) {
	payload, err := GatewayTelemetry(sampleDocument())
	require.NoError(t, err)

	require.Len(t, payload["AA:BB:CC:DD:EE:FF"], 1)
	telemetry := payload["AA:BB:CC:DD:EE:FF"][0]
	assert.Equal(t, int64(1791700000000), telemetry.Timestamp)

	values := telemetry.Values
	assert.Equal(t, 45.5, values["humidity"])
	assert.Equal(t, 21.3, values["temperature"])
	assert.Equal(t, 612, values["co2"])
	assert.Equal(t, 150, values["voc"])
	assert.Equal(t, 30, values["radon_short_term_avg"])
	assert.Equal(t, 1008.2, values["atmospheric_pressure"])
	assert.Equal(t, 8.5, values["absolute_humidity"])
	assert.Equal(t, 12, values["illuminance"])
	assert.Equal(t, 80, values["battery_percent"])
	assert.NotContains(t, values, "radon_long_term_avg")
}

func TestGatewayTelemetryJSON(t *testing.T) {
	payload, err := GatewayTelemetry(sampleDocument())
	require.NoError(t, err)

	data, err := json.Marshal(payload)
	require.NoError(t, err)

	var parsed map[string][]Telemetry
	require.NoError(t, json.Unmarshal(data, &parsed))
	assert.Equal(t, 612.0, parsed["AA:BB:CC:DD:EE:FF"][0].Values["co2"])
}

func TestPublishEmptyDocumentIsNoop(t *testing.T) {
	p := NewPublisher(Config{Broker: "tcp://127.0.0.1:1", ClientID: "test"})
	assert.NoError(t, p.Publish(context.Background(), output.NewDocument()))
}

// serveBroker accepts one MQTT client, acknowledges its connection and QoS 1 publishes,
// and forwards every publish it receives.
func serveBroker(ln net.Listener, published chan<- *packets.PublishPacket) {
	conn, err := ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()

	for {
		cp, err := packets.ReadPacket(conn)
		if err != nil {
			return
		}
		switch p := cp.(type) {
		case *packets.ConnectPacket:
			ack := packets.NewControlPacket(packets.Connack).(*packets.ConnackPacket)
			if err := ack.Write(conn); err != nil {
				return
			}
		case *packets.PublishPacket:
			ack := packets.NewControlPacket(packets.Puback).(*packets.PubackPacket)
			ack.MessageID = p.MessageID
			if err := ack.Write(conn); err != nil {
				return
			}
			published <- p
		case *packets.DisconnectPacket:
			return
		}
	}
}

func TestPublish(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	published := make(chan *packets.PublishPacket, 1)
	go serveBroker(ln, published)

	p := NewPublisher(Config{
		Broker:   "tcp://" + ln.Addr().String(),
		Token:    "gateway-token",
		ClientID: "waveplus-reader-test",
		Timeout:  5 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	require.NoError(t, p.Connect(ctx))
	defer p.Close()
	require.NoError(t, p.Publish(ctx, sampleDocument()))

	select {
	case msg := <-published:
		assert.Equal(t, gatewayTelemetryTopic, msg.TopicName)
		var payload map[string][]Telemetry
		require.NoError(t, json.Unmarshal(msg.Payload, &payload))
		require.Len(t, payload["AA:BB:CC:DD:EE:FF"], 1)
		assert.Equal(t, 612.0, payload["AA:BB:CC:DD:EE:FF"][0].Values["co2"])
	case <-time.After(5 * time.Second):
		t.Fatal("broker received no telemetry")
	}
}

func TestConnectUnreachableBroker(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	p := NewPublisher(Config{Broker: "tcp://" + addr, ClientID: "waveplus-reader-test", Timeout: 2 * time.Second})
	err = p.Connect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect to tcp://"+addr)
}
