package mqtt

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	paho_mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gosimple/slug"
	"go.uber.org/zap"

	"github.com/anicoll/sensor-monitor/internal/pkg/config"
	"github.com/anicoll/sensor-monitor/internal/pkg/model"
)

type service struct {
	client     paho_mqtt.Client
	logger     *zap.Logger
	deviceName string
	identifier string

	mu         sync.Mutex
	registered map[model.SensorType]struct{}
}

func New(client paho_mqtt.Client, deviceName string) *service {
	return &service{
		client:     client,
		logger:     zap.L(),
		deviceName: deviceName,
		identifier: "esp32_" + strings.ReplaceAll(slug.Make(deviceName), "-", "_"),
		registered: map[model.SensorType]struct{}{},
	}
}

// NewClient builds a paho client for the broker in cfg.
func NewClient(cfg config.MqttConfig) paho_mqtt.Client {
	opts := paho_mqtt.NewClientOptions().
		AddBroker(cfg.Host).
		SetClientID("sensor-monitor-" + slug.Make(cfg.DeviceName)).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectTimeout(5 * time.Second)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username).SetPassword(cfg.Password)
	}
	return paho_mqtt.NewClient(opts)
}

func (s *service) Connect() error {
	token := s.client.Connect()
	res := token.WaitTimeout(time.Second * 5)
	if err := token.Error(); err != nil {
		return err
	}
	if res {
		return nil
	}
	return errors.New("unable to connect in time")
}

func (s *service) Close() error {
	s.client.Disconnect(250)
	return nil
}

func (s *service) baseTopic(t model.SensorType) string {
	return fmt.Sprintf("homeassistant/sensor/%s/%s", s.identifier, t)
}
