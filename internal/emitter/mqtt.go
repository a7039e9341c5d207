package emitter

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	framemonitor "github.com/qazerd/frame-monitor"
)

const (
	connectTimeout        = 5 * time.Second
	defaultPublishTimeout = 2 * time.Second
	defaultQueueSize      = 256
)

// Config contains the publishing settings of an MQTTEmitter.
type Config struct {
	Broker    string // host:port
	ClientID  string
	Topic     string // base topic; reports go to <topic>/reports, notices to <topic>/notices
	QoS       byte
	Encoding  string // json, msgpack
	StreamID  string
	SessionID string

	QueueSize      int           // pending messages before dropping (default: 256)
	PublishTimeout time.Duration // per-message wait (default: 2s)
}

// Stats contains emitter statistics
type Stats struct {
	Connected bool
	Published map[string]uint64 // count per topic
	Errors    uint64
	Dropped   uint64
}

// Option customizes an MQTTEmitter.
type Option func(*MQTTEmitter)

// WithClient uses an existing client instead of dialing cfg.Broker.
func WithClient(c mqtt.Client) Option {
	return func(e *MQTTEmitter) { e.client = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *MQTTEmitter) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithNow overrides the wall clock used for message timestamps.
func WithNow(now func() time.Time) Option {
	return func(e *MQTTEmitter) { e.now = now }
}

// MQTTEmitter is a framemonitor.Sink publishing detailed reports and notices
// to an MQTT broker. Heartbeats are never published.
//
// Sink calls only enqueue; a background loop started by Start publishes.
// When the queue is full the message is dropped and counted.
type MQTTEmitter struct {
	cfg    Config
	client mqtt.Client
	logger *slog.Logger
	now    func() time.Time

	queue    chan Message
	done     chan struct{}
	finished chan struct{}
	stopOnce sync.Once
	started  atomic.Bool

	mu        sync.RWMutex
	published map[string]uint64
	connected bool

	errors  atomic.Uint64
	dropped atomic.Uint64
}

var _ framemonitor.Sink = (*MQTTEmitter)(nil)

// NewMQTTEmitter creates an emitter. Connect must be called before Start.
func NewMQTTEmitter(cfg Config, opts ...Option) *MQTTEmitter {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = defaultPublishTimeout
	}
	e := &MQTTEmitter{
		cfg:       cfg,
		logger:    slog.Default(),
		now:       time.Now,
		queue:     make(chan Message, cfg.QueueSize),
		done:      make(chan struct{}),
		finished:  make(chan struct{}),
		published: make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ReportsTopic is where detailed reports are published.
func (e *MQTTEmitter) ReportsTopic() string { return e.cfg.Topic + "/reports" }

// NoticesTopic is where gap and resync notices are published.
func (e *MQTTEmitter) NoticesTopic() string { return e.cfg.Topic + "/notices" }

// Connect establishes the broker connection. With auto-reconnect enabled,
// later connection losses are handled by the client.
func (e *MQTTEmitter) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if e.client == nil {
		opts := mqtt.NewClientOptions()
		opts.AddBroker(fmt.Sprintf("tcp://%s", e.cfg.Broker))
		opts.SetClientID(e.cfg.ClientID)
		opts.SetAutoReconnect(true)
		opts.SetConnectRetry(true)
		opts.SetConnectRetryInterval(2 * time.Second)
		opts.SetMaxReconnectInterval(30 * time.Second)

		opts.OnConnect = func(mqtt.Client) {
			e.setConnected(true)
			e.logger.Info("mqtt: connection established",
				"broker", e.cfg.Broker,
				"client_id", e.cfg.ClientID,
			)
		}
		opts.OnConnectionLost = func(_ mqtt.Client, err error) {
			e.setConnected(false)
			e.logger.Warn("mqtt: connection lost, will auto-reconnect",
				"error", err,
				"broker", e.cfg.Broker,
			)
		}
		e.client = mqtt.NewClient(opts)
	}

	e.logger.Info("mqtt: connecting to broker", "broker", e.cfg.Broker)

	token := e.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return fmt.Errorf("mqtt: connection timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt: connection failed: %w", err)
	}

	e.setConnected(true)
	return nil
}

// Start launches the publish loop. It runs until ctx is cancelled or Close
// is called.
func (e *MQTTEmitter) Start(ctx context.Context) {
	if !e.started.CompareAndSwap(false, true) {
		return
	}
	go e.run(ctx)
}

func (e *MQTTEmitter) run(ctx context.Context) {
	defer close(e.finished)
	for {
		select {
		case m := <-e.queue:
			e.publish(m)
		case <-ctx.Done():
			e.drain()
			return
		case <-e.done:
			e.drain()
			return
		}
	}
}

// drain publishes what is already queued.
func (e *MQTTEmitter) drain() {
	for {
		select {
		case m := <-e.queue:
			e.publish(m)
		default:
			return
		}
	}
}

// Close stops the publish loop after flushing the queue and disconnects.
func (e *MQTTEmitter) Close() error {
	e.stopOnce.Do(func() {
		close(e.done)
		if e.started.Load() {
			<-e.finished
		}
		if e.client != nil && e.client.IsConnected() {
			e.client.Disconnect(250)
			e.logger.Info("mqtt: disconnected")
		}
		e.setConnected(false)
	})
	return nil
}

func (e *MQTTEmitter) Decision(d framemonitor.Decision) {
	if d.Kind != framemonitor.Detailed {
		return
	}
	e.enqueue(reportMessage(d))
}

func (e *MQTTEmitter) Notice(n framemonitor.Notice) {
	e.enqueue(noticeMessage(n))
}

func (e *MQTTEmitter) enqueue(m Message) {
	select {
	case <-e.done:
		e.dropped.Add(1)
		return
	default:
	}

	m.TraceID = uuid.New().String()
	m.StreamID = e.cfg.StreamID
	m.SessionID = e.cfg.SessionID
	m.TimestampMs = e.now().UnixMilli()

	select {
	case e.queue <- m:
	default:
		e.dropped.Add(1)
		e.logger.Debug("mqtt: queue full, dropping message", "kind", m.Kind)
	}
}

func (e *MQTTEmitter) topicFor(m Message) string {
	if m.Kind == KindReport {
		return e.ReportsTopic()
	}
	return e.NoticesTopic()
}

// publish sends one message and waits up to PublishTimeout.
func (e *MQTTEmitter) publish(m Message) {
	if err := e.Publish(m); err != nil {
		e.logger.Warn("mqtt: publish failed", "error", err, "kind", m.Kind)
	}
}

// Publish encodes and publishes m synchronously.
func (e *MQTTEmitter) Publish(m Message) error {
	if !e.isConnected() {
		e.errors.Add(1)
		return fmt.Errorf("mqtt: not connected")
	}

	payload, err := Encode(m, e.cfg.Encoding)
	if err != nil {
		e.errors.Add(1)
		return fmt.Errorf("mqtt: failed to encode message: %w", err)
	}

	topic := e.topicFor(m)
	token := e.client.Publish(topic, e.cfg.QoS, false, payload)
	if !token.WaitTimeout(e.cfg.PublishTimeout) {
		e.errors.Add(1)
		return fmt.Errorf("mqtt: publish timeout")
	}
	if err := token.Error(); err != nil {
		e.errors.Add(1)
		return fmt.Errorf("mqtt: publish failed: %w", err)
	}

	e.mu.Lock()
	e.published[topic]++
	e.mu.Unlock()

	e.logger.Debug("mqtt: message published",
		"topic", topic,
		"kind", m.Kind,
		"size", len(payload),
	)
	return nil
}

// Stats returns emitter statistics
func (e *MQTTEmitter) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	published := make(map[string]uint64, len(e.published))
	for k, v := range e.published {
		published[k] = v
	}
	return Stats{
		Connected: e.connected,
		Published: published,
		Errors:    e.errors.Load(),
		Dropped:   e.dropped.Load(),
	}
}

func (e *MQTTEmitter) setConnected(v bool) {
	e.mu.Lock()
	e.connected = v
	e.mu.Unlock()
}

func (e *MQTTEmitter) isConnected() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.connected
}
