package mqtt

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/iot-for-tillgenglighet/signage-hub/internal/pkg/hub"
	"github.com/iot-for-tillgenglighet/signage-hub/internal/pkg/infrastructure/config"
	"github.com/iot-for-tillgenglighet/signage-hub/internal/pkg/infrastructure/logging"
)

const (
	topicPrefix     = "signage/devices/"
	statusWildcard  = topicPrefix + "+/status"
	StatusOnline    = "online"
	StatusOffline   = "offline"
	StatusHeartbeat = "heartbeat"
)

//ErrPublishTimeout is returned by a sink when the broker does not acknowledge in time
var ErrPublishTimeout = errors.New("mqtt publish timed out")

//EventsTopic is where events for deviceID are published
func EventsTopic(deviceID string) string {
	return topicPrefix + deviceID + "/events"
}

//StatusTopic is where deviceID announces itself
func StatusTopic(deviceID string) string {
	return topicPrefix + deviceID + "/status"
}

type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
}

type sink struct {
	client  publisher
	topic   string
	timeout time.Duration
}

func (s *sink) Send(message []byte) error {
	token := s.client.Publish(s.topic, 1, false, message)
	if !token.WaitTimeout(s.timeout) {
		return ErrPublishTimeout
	}
	return token.Error()
}

//Close is a no-op, the broker session is shared by every device on the bridge
func (s *sink) Close() {}

//Bridge lets devices that cannot hold an event stream receive pushes over MQTT.
//A device publishing "online" to its status topic gets a connection in the
//registry whose sink publishes to the device's events topic.
type Bridge struct {
	client   paho.Client
	pub      publisher
	registry *hub.Registry
	timeout  time.Duration
	log      logging.Logger

	mu    sync.Mutex
	conns map[string]*hub.Connection
}

//NewBridge creates a bridge for the broker in cfg. Nothing is connected until Start is called.
func NewBridge(cfg config.MQTTConfig, registry *hub.Registry, log logging.Logger) *Bridge {
	b := newBridge(nil, registry, log)

	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(fmt.Sprintf("%s-%s", cfg.ClientID, uuid.New().String()[:8])).
		SetCleanSession(true).
		SetOrderMatters(true).
		SetKeepAlive(30 * time.Second).
		SetPingTimeout(10 * time.Second).
		SetAutoReconnect(true)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	opts.OnConnect = func(c paho.Client) {
		log.Infof("connected to mqtt broker %s", cfg.Broker)
		if token := c.Subscribe(statusWildcard, 1, b.onStatus); token.Wait() && token.Error() != nil {
			log.Errorf("mqtt subscribe to %s failed: %s", statusWildcard, token.Error().Error())
		}
	}
	opts.OnConnectionLost = func(c paho.Client, err error) {
		log.Warnf("mqtt connection lost: %s", err.Error())
	}

	b.client = paho.NewClient(opts)
	b.pub = b.client

	return b
}

func newBridge(pub publisher, registry *hub.Registry, log logging.Logger) *Bridge {
	return &Bridge{
		pub:      pub,
		registry: registry,
		timeout:  5 * time.Second,
		log:      log,
		conns:    map[string]*hub.Connection{},
	}
}

//Start connects to the broker, retrying with a growing backoff until it succeeds or ctx is cancelled
func (b *Bridge) Start(ctx context.Context) error {
	backoff := time.Second

	for {
		token := b.client.Connect()
		if token.Wait() && token.Error() == nil {
			return nil
		}

		b.log.Warnf("mqtt connect failed: %s; retrying in %s", token.Error(), backoff)
		select {
		case <-time.After(backoff):
			if backoff < 30*time.Second {
				backoff *= 2
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

//Stop releases every MQTT connection from the registry and disconnects from the broker
func (b *Bridge) Stop() {
	b.mu.Lock()
	for id, conn := range b.conns {
		b.registry.Release(conn)
		delete(b.conns, id)
	}
	b.mu.Unlock()

	if b.client != nil {
		b.client.Disconnect(250)
	}
}

func (b *Bridge) onStatus(_ paho.Client, msg paho.Message) {
	b.handleStatus(msg.Topic(), msg.Payload())
}

func (b *Bridge) handleStatus(topic string, payload []byte) {
	deviceID, ok := deviceFromStatusTopic(topic)
	if !ok {
		b.log.Warnf("ignoring message on unexpected topic %s", topic)
		return
	}

	switch status := strings.ToLower(strings.TrimSpace(string(payload))); status {
	case StatusOnline:
		b.online(deviceID)
	case StatusOffline:
		b.offline(deviceID)
	case StatusHeartbeat:
		b.registry.Touch(deviceID)
	default:
		b.log.Warnf("device %s sent unknown status %q", deviceID, status)
	}
}

func (b *Bridge) online(deviceID string) {
	s := &sink{client: b.pub, topic: EventsTopic(deviceID), timeout: b.timeout}
	conn := b.registry.Register(deviceID, s)

	b.mu.Lock()
	b.conns[deviceID] = conn
	b.mu.Unlock()

	devLog := b.log.WithField("deviceId", deviceID)
	devLog.Infof("device connected over mqtt")

	hello, err := hub.Encode(hub.Connected{DeviceID: deviceID}, deviceID, time.Now())
	if err == nil {
		err = s.Send(hello)
	}
	if err != nil {
		devLog.Warnf("failed to greet device: %s", err.Error())
	}
}

func (b *Bridge) offline(deviceID string) {
	b.mu.Lock()
	conn, ok := b.conns[deviceID]
	delete(b.conns, deviceID)
	b.mu.Unlock()

	if ok && b.registry.Release(conn) {
		b.log.WithField("deviceId", deviceID).Infof("device disconnected from mqtt")
	}
}

func deviceFromStatusTopic(topic string) (string, bool) {
	if !strings.HasPrefix(topic, topicPrefix) || !strings.HasSuffix(topic, "/status") {
		return "", false
	}

	id := strings.TrimSuffix(strings.TrimPrefix(topic, topicPrefix), "/status")
	if id == "" || strings.Contains(id, "/") {
		return "", false
	}

	return id, true
}
