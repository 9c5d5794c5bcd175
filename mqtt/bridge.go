package mqtt

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/icodeforyou/solarforecast-ml/config"
	"github.com/icodeforyou/solarforecast-ml/coordinator"
	"github.com/icodeforyou/solarforecast-ml/types"
)

const (
	publishTimeout = 5 * time.Second
	commandTimeout = 2 * time.Minute
)

type Coordinator interface {
	Data() types.Bundle
	Status() string
	Diagnostics() coordinator.Diagnostics
	TriggerForecast(ctx context.Context) error
	TriggerLearning(ctx context.Context) error
}

// Bridge presents the forecast to Home Assistant through MQTT discovery
// and turns button presses into coordinator triggers.
type Bridge struct {
	logger  *slog.Logger
	client  paho.Client
	topics  Topics
	coord   Coordinator
	version string

	mu      sync.Mutex
	pending map[string]Message // latest message per topic while offline
}

func New(cnfg config.AppConfigMqtt, coord Coordinator, version string) *Bridge {
	logger := slog.Default().With("module", "mqtt")
	installPahoLoggers(logger.With(slog.String("source", "paho")))

	b := &Bridge{
		logger:  logger,
		topics:  Topics{Prefix: cnfg.GetDiscoveryPrefix(), NodeId: cnfg.GetNodeId()},
		coord:   coord,
		version: version,
		pending: make(map[string]Message),
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cnfg.Host, cnfg.GetPort()))
	opts.SetClientID(fmt.Sprintf("%s-%s", b.topics.NodeId, uuid.NewString()))
	opts.SetUsername(cnfg.Username)
	opts.SetPassword(cnfg.Password)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetWill(b.topics.Availability(), payloadOffline, 1, true)
	opts.OnConnect = func(client paho.Client) {
		logger.Info("MQTT connected")
		b.announce(client)
	}
	opts.OnConnectionLost = func(client paho.Client, err error) {
		logger.Warn("MQTT connection lost", slog.Any("error", err))
	}

	b.client = paho.NewClient(opts)
	return b
}

// Connect does not wait for an unreachable broker, the client keeps
// retrying in the background and state published meanwhile is queued.
func (b *Bridge) Connect() error {
	b.logger.Debug("connecting MQTT client")
	token := b.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		b.logger.Warn("MQTT broker not reachable yet, retrying in background")
		return nil
	}
	return token.Error()
}

func (b *Bridge) Disconnect() {
	b.logger.Info("disconnecting MQTT client")
	if b.client.IsConnected() {
		b.send(b.client, Message{Topic: b.topics.Availability(), Payload: []byte(payloadOffline), QoS: 1, Retain: true})
	}
	b.client.Disconnect(250)
}

// announce runs on every (re)connect: discovery, command subscriptions,
// availability, and the current state including anything queued meanwhile.
func (b *Bridge) announce(client paho.Client) {
	msgs, err := DiscoveryMessages(b.topics, b.version)
	if err != nil {
		b.logger.Error("failed to build discovery messages", slog.Any("error", err))
		return
	}
	for _, msg := range msgs {
		b.send(client, msg)
	}

	filters := map[string]byte{
		b.topics.Command(ButtonForecast): 1,
		b.topics.Command(ButtonLearning): 1,
	}
	token := client.SubscribeMultiple(filters, func(_ paho.Client, msg paho.Message) {
		b.handleCommand(msg.Topic())
	})
	if token.WaitTimeout(publishTimeout) && token.Error() != nil {
		b.logger.Error("failed to subscribe to command topics", slog.Any("error", token.Error()))
	}

	b.send(client, Message{Topic: b.topics.Availability(), Payload: []byte(payloadOnline), QoS: 1, Retain: true})

	b.mu.Lock()
	queued := b.pending
	b.pending = make(map[string]Message)
	b.mu.Unlock()

	if len(queued) > 0 {
		b.logger.Debug("publishing queued messages", slog.Int("count", len(queued)))
		for _, msg := range queued {
			b.send(client, msg)
		}
		return
	}
	b.Publish(b.coord.Data())
}

// Publish is registered as coordinator listener.
func (b *Bridge) Publish(bundle types.Bundle) {
	msgs, err := StateMessages(b.topics, bundle, b.coord.Status(), b.coord.Diagnostics())
	if err != nil {
		b.logger.Error("failed to build state messages", slog.Any("error", err))
		return
	}

	for _, msg := range msgs {
		if !b.client.IsConnected() {
			b.mu.Lock()
			b.pending[msg.Topic] = msg
			b.mu.Unlock()
			continue
		}
		b.send(b.client, msg)
	}
}

func (b *Bridge) send(client paho.Client, msg Message) {
	token := client.Publish(msg.Topic, msg.QoS, msg.Retain, msg.Payload)
	if !token.WaitTimeout(publishTimeout) {
		b.logger.Warn("timeout publishing MQTT message", slog.String("topic", msg.Topic))
		return
	}
	if token.Error() != nil {
		b.logger.Error("failed to publish MQTT message", slog.String("topic", msg.Topic), slog.Any("error", token.Error()))
	}
}

// handleCommand must not block the paho callback, the trigger runs in its
// own goroutine.
func (b *Bridge) handleCommand(topic string) {
	var trigger func(context.Context) error
	switch topic {
	case b.topics.Command(ButtonForecast):
		trigger = b.coord.TriggerForecast
	case b.topics.Command(ButtonLearning):
		trigger = b.coord.TriggerLearning
	default:
		b.logger.Warn("unknown command topic", slog.String("topic", topic))
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		if err := trigger(ctx); err != nil {
			b.logger.Warn("manual trigger failed", slog.String("topic", topic), slog.Any("error", err))
		}
	}()
}
