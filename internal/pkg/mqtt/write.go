package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/anicoll/sensor-monitor/internal/pkg/model"
)

const publishTimeout = 10 * time.Second

var errPublishTimeout = errors.New("mqtt publish timed out")

// WriteReadings mirrors a persisted batch to the broker, registering each
// sensor with Home Assistant the first time it is seen.
func (s *service) WriteReadings(ctx context.Context, readings model.Readings) error {
	for _, r := range readings {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.register(r.SensorType); err != nil {
			return err
		}
		if err := s.publishState(r); err != nil {
			return err
		}
	}
	return nil
}

func (s *service) register(t model.SensorType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.registered[t]; exists {
		return nil
	}

	payload, err := json.Marshal(s.registerMsg(t))
	if err != nil {
		return err
	}
	if err := s.publish(s.baseTopic(t)+"/config", 1, true, payload); err != nil {
		return err
	}
	s.registered[t] = struct{}{}
	s.logger.Debug("registered sensor with home assistant", zap.Stringer("sensor_type", t))
	return nil
}

func (s *service) publishState(r model.Reading) error {
	payload, err := json.Marshal(model.StateMessage{
		Value:             r.Value,
		UnitOfMeasurement: r.Unit,
		Timestamp:         r.Timestamp.Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	return s.publish(s.baseTopic(r.SensorType)+"/state", 0, false, payload)
}

func (s *service) publish(topic string, qos byte, retained bool, payload []byte) error {
	token := s.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return errPublishTimeout
	}
	return token.Error()
}

func (s *service) registerMsg(t model.SensorType) model.RegisterMessage {
	return model.RegisterMessage{
		Tilda:             s.baseTopic(t),
		Name:              t.DisplayName(),
		ID:                s.identifier + "_" + string(t),
		StateTopic:        "~/state",
		ValueTemplate:     "{{ value_json.value }}",
		UnitOfMeasurement: t.Unit(),
		Device: model.RegisterDevice{
			Name:         s.deviceName,
			Identifiers:  []string{s.identifier},
			Model:        "ESP32",
			Manufacturer: "Espressif",
		},
	}
}
