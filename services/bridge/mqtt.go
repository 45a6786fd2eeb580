package bridge

import (
	"context"
	"errors"
	"time"

	"github.com/denisbrodbeck/machineid"
	paho "github.com/eclipse/paho.mqtt.golang"

	"sensorcode-go/types"
)

const (
	appID          = "sensorcode"
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
)

var errTimeout = errors.New("mqtt: operation timed out")

// DialMQTT builds a paho-backed Publisher. The client id defaults to a
// hashed machine id so restarts keep the same broker session name.
func DialMQTT(cfg types.BridgeConfig) (Publisher, error) {
	opts := paho.NewClientOptions()
	opts.AddBroker(cfg.Broker).
		SetClientID(ClientID(cfg)).
		SetAutoReconnect(false).
		SetCleanSession(true).
		SetConnectTimeout(connectTimeout)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	return &mqttPublisher{client: paho.NewClient(opts)}, nil
}

// ClientID returns cfg.ClientID, or "sensorcode-<machine id prefix>".
func ClientID(cfg types.BridgeConfig) string {
	if cfg.ClientID != "" {
		return cfg.ClientID
	}
	id, err := machineid.ProtectedID(appID)
	if err != nil || len(id) < 12 {
		return appID
	}
	return appID + "-" + id[:12]
}

type mqttPublisher struct {
	client paho.Client
}

func (p *mqttPublisher) Connect(ctx context.Context) error {
	if p.client.IsConnected() {
		return nil
	}
	return wait(ctx, p.client.Connect(), connectTimeout)
}

func (p *mqttPublisher) Publish(topic string, payload []byte, retained bool) error {
	return wait(context.Background(), p.client.Publish(topic, 0, retained, payload), publishTimeout)
}

func (p *mqttPublisher) Close() { p.client.Disconnect(250) }

func wait(ctx context.Context, tok paho.Token, d time.Duration) error {
	finished := make(chan bool, 1)
	go func() { finished <- tok.WaitTimeout(d) }()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case ok := <-finished:
		if !ok {
			return errTimeout
		}
	}
	return tok.Error()
}
