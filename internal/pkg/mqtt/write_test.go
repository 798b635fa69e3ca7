package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	paho_mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anicoll/sensor-monitor/internal/pkg/model"
)

type fakeToken struct {
	err error
}

func (t fakeToken) Wait() bool                     { return true }
func (t fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t fakeToken) Error() error                   { return t.err }
func (t fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakeClient struct {
	paho_mqtt.Client
	err      error
	messages []published
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload any) paho_mqtt.Token {
	c.messages = append(c.messages, published{topic: topic, qos: qos, retained: retained, payload: payload.([]byte)})
	return fakeToken{err: c.err}
}

func TestService_WriteReadings(t *testing.T) {
	client := &fakeClient{}
	s := New(client, "Back Garden")
	ts := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	batch := model.Readings{
		{SensorType: model.Temperature, Value: 21.5, Unit: "°C", Timestamp: ts},
		{SensorType: model.Rain, Value: 1, Unit: "", Timestamp: ts},
	}

	require.NoError(t, s.WriteReadings(context.Background(), batch))
	require.NoError(t, s.WriteReadings(context.Background(), batch))

	topics := make([]string, 0, len(client.messages))
	for _, m := range client.messages {
		topics = append(topics, m.topic)
	}
	assert.Equal(t, []string{
		"homeassistant/sensor/esp32_back_garden/temperature/config",
		"homeassistant/sensor/esp32_back_garden/temperature/state",
		"homeassistant/sensor/esp32_back_garden/rain/config",
		"homeassistant/sensor/esp32_back_garden/rain/state",
		"homeassistant/sensor/esp32_back_garden/temperature/state",
		"homeassistant/sensor/esp32_back_garden/rain/state",
	}, topics)

	config := client.messages[0]
	assert.True(t, config.retained)
	var register model.RegisterMessage
	require.NoError(t, json.Unmarshal(config.payload, &register))
	assert.Equal(t, "esp32_back_garden_temperature", register.ID)
	assert.Equal(t, "Temperature", register.Name)
	assert.Equal(t, "°C", register.UnitOfMeasurement)

	var state model.StateMessage
	require.NoError(t, json.Unmarshal(client.messages[1].payload, &state))
	assert.Equal(t, 21.5, state.Value)
	assert.Equal(t, "2024-05-01T10:00:00Z", state.Timestamp)
}

func TestService_WriteReadingsRetriesRegistrationAfterFailure(t *testing.T) {
	client := &fakeClient{err: errors.New("not connected")}
	s := New(client, "rig")
	batch := model.Readings{{SensorType: model.Ph, Value: 7}}

	assert.Error(t, s.WriteReadings(context.Background(), batch))
	client.err = nil
	client.messages = nil
	require.NoError(t, s.WriteReadings(context.Background(), batch))
	assert.Equal(t, "homeassistant/sensor/esp32_rig/ph/config", client.messages[0].topic)
}
