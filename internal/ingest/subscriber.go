package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

type SubscriberConfig struct {
	Broker   string // e.g. tcp://localhost:1883
	ClientID string
	Topic    string
}

// MessageHandler processes one MQTT message.
type MessageHandler func(ctx context.Context, topic string, payload []byte) error

type Subscriber struct {
	client    mqtt.Client
	cfg       SubscriberConfig
	logger    *slog.Logger
	handler   MessageHandler
	mu        sync.RWMutex
	connected bool

	// ctx is the Run context; messages are handled under it.
	ctx context.Context

	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewSubscriber(cfg SubscriberConfig, handler MessageHandler, logger *slog.Logger) *Subscriber {
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}
	s := &Subscriber{
		cfg:     cfg,
		logger:  logger,
		handler: handler,
		ctx:     context.Background(),
		stopCh:  make(chan struct{}),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetCleanSession(true)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)

	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		s.setConnected(true)
		logger.Info("mqtt connected", "broker", cfg.Broker)
		// resubscribe after reconnects; clean sessions drop subscriptions
		if err := s.subscribe(); err != nil {
			logger.Error("mqtt subscribe failed", "topic", cfg.Topic, "error", err)
		}
	})

	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		s.setConnected(false)
		logger.Warn("mqtt connection lost", "error", err)
	})

	s.client = mqtt.NewClient(opts)
	return s
}

// Run connects, subscribes and blocks until ctx is cancelled.
func (s *Subscriber) Run(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	if err := s.Connect(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	s.Disconnect()
	return nil
}

// Connect establishes the broker connection. The subscription is made by
// the on-connect callback.
func (s *Subscriber) Connect(ctx context.Context) error {
	select {
	case <-s.stopCh:
		return fmt.Errorf("subscriber stopped")
	default:
	}

	if s.IsConnected() {
		return nil
	}

	token := s.client.Connect()

	const poll = 200 * time.Millisecond
	for {
		if token.WaitTimeout(poll) {
			if err := token.Error(); err != nil {
				return fmt.Errorf("mqtt connect: %w", err)
			}
			return nil
		}

		select {
		case <-ctx.Done():
			s.client.Disconnect(0)
			return ctx.Err()
		case <-s.stopCh:
			s.client.Disconnect(0)
			return fmt.Errorf("subscriber stopped")
		default:
		}
	}
}

func (s *Subscriber) subscribe() error {
	const qos = byte(1)

	token := s.client.Subscribe(s.cfg.Topic, qos, func(_ mqtt.Client, msg mqtt.Message) {
		s.handleMessage(msg.Topic(), msg.Payload())
	})
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("subscribe timeout for topic %s", s.cfg.Topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe to %s: %w", s.cfg.Topic, err)
	}

	s.logger.Info("subscribed to mqtt topic", "topic", s.cfg.Topic, "qos", qos)
	return nil
}

func (s *Subscriber) handleMessage(topic string, payload []byte) {
	s.logger.Debug("received mqtt message", "topic", topic, "size", len(payload))

	if s.handler == nil {
		return
	}

	s.mu.RLock()
	ctx := s.ctx
	s.mu.RUnlock()

	if err := s.handler(ctx, topic, payload); err != nil {
		s.logger.Warn("telemetry message rejected", "topic", topic, "error", err)
		return
	}
	s.logger.Debug("processed telemetry message", "topic", topic)
}

func (s *Subscriber) IsConnected() bool {
	s.mu.RLock()
	connected := s.connected
	s.mu.RUnlock()
	return connected && s.client.IsConnected()
}

// Disconnect stops the subscriber and closes the MQTT connection. It is
// safe to call more than once.
func (s *Subscriber) Disconnect() {
	s.stopOnce.Do(func() { close(s.stopCh) })

	if s.IsConnected() {
		token := s.client.Unsubscribe(s.cfg.Topic)
		token.WaitTimeout(2 * time.Second)
	}

	s.client.Disconnect(250)

	s.setConnected(false)
	s.logger.Info("mqtt subscriber disconnected")
}

func (s *Subscriber) setConnected(v bool) {
	s.mu.Lock()
	s.connected = v
	s.mu.Unlock()
}
