// Package mq is a RabbitMQ client that reconnects on its own and publishes
// with publisher confirms. gridloss uses it to fan out alert events.
package mq

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	amqp "github.com/rabbitmq/amqp091-go"

	"procodus.dev/gridloss/pkg/metrics"
)

// Client is a RabbitMQ client bound to a single queue.
type Client struct {
	m               *sync.Mutex
	closeOnce       sync.Once
	logger          *slog.Logger
	connection      *amqp.Connection
	channel         *amqp.Channel
	done            chan struct{}
	notifyConnClose chan *amqp.Error
	notifyChanClose chan *amqp.Error
	notifyConfirm   chan amqp.Confirmation
	metrics         *metrics.MQMetrics // Optional metrics
	opts            options
	queueName       string
	isReady         bool
}

const (
	// When reconnecting to the server after connection failure.
	reconnectDelay = 5 * time.Second

	// When setting up the channel after a channel exception.
	reInitDelay = 2 * time.Second

	initialBackoff    = 100 * time.Millisecond
	maxBackoff        = 10 * time.Second
	backoffMultiplier = 2
	maxRetryAttempts  = 5
)

var (
	errNotConnected       = errors.New("not connected to a server")
	errAlreadyClosed      = errors.New("already closed: not connected to the server")
	errShutdown           = errors.New("client is shutting down")
	errMaxRetriesExceeded = errors.New("maximum retry attempts exceeded")
	errNotAcknowledged    = errors.New("publish not acknowledged by the server")
)

type options struct {
	contentType string
	durable     bool
	persistent  bool
	prefetch    int
}

// Option configures a Client.
type Option func(*options)

// WithDurableQueue declares the queue as durable so it survives a broker restart.
func WithDurableQueue() Option {
	return func(o *options) { o.durable = true }
}

// WithPersistentMessages publishes with the persistent delivery mode.
func WithPersistentMessages() Option {
	return func(o *options) { o.persistent = true }
}

// WithContentType sets the content type of published messages.
func WithContentType(contentType string) Option {
	return func(o *options) { o.contentType = contentType }
}

// WithPrefetch sets how many unacknowledged deliveries Consume allows.
func WithPrefetch(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.prefetch = n
		}
	}
}

// New creates a client for queueName and starts connecting to addr in the
// background.
func New(queueName, addr string, l *slog.Logger, opts ...Option) *Client {
	o := options{
		contentType: "application/octet-stream",
		prefetch:    1,
	}
	for _, opt := range opts {
		opt(&o)
	}

	client := &Client{
		m:         &sync.Mutex{},
		logger:    l.With(slog.String("queue", queueName)),
		queueName: queueName,
		opts:      o,
		done:      make(chan struct{}),
	}
	go client.handleReconnect(addr)
	return client
}

// SetMetrics sets the metrics collector for this client.
// This should be called before the client starts processing messages.
func (client *Client) SetMetrics(m *metrics.MQMetrics) {
	client.metrics = m
}

// QueueName returns the queue the client publishes to and consumes from.
func (client *Client) QueueName() string {
	return client.queueName
}

func (client *Client) ready() bool {
	client.m.Lock()
	defer client.m.Unlock()
	return client.isReady
}

func (client *Client) setReady(ready bool) {
	client.m.Lock()
	client.isReady = ready
	client.m.Unlock()

	if client.metrics != nil {
		if ready {
			client.metrics.ConnectionStatus.Set(1)
		} else {
			client.metrics.ConnectionStatus.Set(0)
		}
	}
}

// handleReconnect waits for a connection error on notifyConnClose and then
// keeps trying to reconnect until Close is called.
func (client *Client) handleReconnect(addr string) {
	for {
		client.setReady(false)
		client.logger.Info("attempting to connect")

		if client.metrics != nil {
			client.metrics.ReconnectAttempts.Inc()
		}

		conn, err := amqp.Dial(addr)
		if err != nil {
			client.logger.Error("failed to connect, retrying", "error", err)

			select {
			case <-client.done:
				return
			case <-time.After(reconnectDelay):
			}
			continue
		}

		client.m.Lock()
		client.connection = conn
		client.notifyConnClose = make(chan *amqp.Error, 1)
		conn.NotifyClose(client.notifyConnClose)
		client.m.Unlock()
		client.logger.Info("connected")

		if done := client.handleReInit(conn); done {
			return
		}
	}
}

// handleReInit waits for a channel error and then re-initializes the channel.
// It reports true when the client is shutting down.
func (client *Client) handleReInit(conn *amqp.Connection) bool {
	for {
		client.setReady(false)

		if err := client.init(conn); err != nil {
			client.logger.Error("failed to initialize channel, retrying", "error", err)

			select {
			case <-client.done:
				return true
			case <-client.notifyConnClose:
				client.logger.Info("connection closed, reconnecting")
				return false
			case <-time.After(reInitDelay):
			}
			continue
		}

		select {
		case <-client.done:
			return true
		case <-client.notifyConnClose:
			client.logger.Info("connection closed, reconnecting")
			return false
		case <-client.notifyChanClose:
			client.logger.Info("channel closed, re-running init")
		}
	}
}

// init opens a confirming channel and declares the queue.
func (client *Client) init(conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return err
	}

	if err := ch.Confirm(false); err != nil {
		return err
	}

	if _, err := ch.QueueDeclare(
		client.queueName,
		client.opts.durable,
		false, // Delete when unused
		false, // Exclusive
		false, // No-wait
		nil,   // Arguments
	); err != nil {
		return err
	}

	client.m.Lock()
	client.channel = ch
	client.notifyChanClose = make(chan *amqp.Error, 1)
	client.notifyConfirm = make(chan amqp.Confirmation, 1)
	ch.NotifyClose(client.notifyChanClose)
	ch.NotifyPublish(client.notifyConfirm)
	client.m.Unlock()

	client.setReady(true)
	client.logger.Info("client init done", "durable", client.opts.durable)

	return nil
}

// wait sleeps for backoff unless ctx ends or the client shuts down first.
func (client *Client) wait(ctx context.Context, backoff time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-client.done:
		return errShutdown
	case <-time.After(backoff):
		return nil
	}
}

func (client *Client) pushFailed(reason string) {
	if client.metrics != nil {
		client.metrics.PushFailures.WithLabelValues(client.queueName, reason).Inc()
	}
}

// Push publishes data and blocks until the server confirms it. While the
// client is disconnected, or the publish is rejected, it retries with
// exponential backoff up to maxRetryAttempts times.
func (client *Client) Push(ctx context.Context, data []byte) error {
	if client.metrics != nil {
		timer := prometheus.NewTimer(client.metrics.PushDuration.WithLabelValues(client.queueName))
		defer timer.ObserveDuration()
	}

	backoff := initialBackoff
	for attempt := 0; ; attempt++ {
		if attempt > maxRetryAttempts {
			client.logger.Error("maximum retry attempts exceeded", "max_attempts", maxRetryAttempts)
			client.pushFailed("max_retries_exceeded")
			return errMaxRetriesExceeded
		}

		if attempt > 0 {
			if err := client.wait(ctx, backoff); err != nil {
				client.pushFailed("canceled")
				return err
			}
			backoff = min(backoff*backoffMultiplier, maxBackoff)
		}

		if !client.ready() {
			client.logger.Info("not connected, waiting for reconnection",
				"backoff", backoff,
				"retry_count", attempt,
			)
			continue
		}

		err := client.confirmedPush(ctx, data)
		switch {
		case err == nil:
			if client.metrics != nil {
				client.metrics.MessagesPushed.WithLabelValues(client.queueName).Inc()
			}
			return nil
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			client.pushFailed("canceled")
			return err
		default:
			client.logger.Warn("push failed, retrying with backoff",
				"error", err,
				"backoff", backoff,
				"retry_count", attempt,
			)
		}
	}
}

// confirmedPush publishes once and waits for the matching confirmation.
func (client *Client) confirmedPush(ctx context.Context, data []byte) error {
	if err := client.UnsafePush(ctx, data); err != nil {
		return err
	}

	client.m.Lock()
	confirms := client.notifyConfirm
	client.m.Unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case confirm, ok := <-confirms:
		if !ok || !confirm.Ack {
			return errNotAcknowledged
		}
		client.logger.Debug("push confirmed", "delivery_tag", confirm.DeliveryTag)
		return nil
	}
}

// UnsafePush publishes without waiting for a confirmation. It fails only when
// the client is not connected or the publish itself errors.
func (client *Client) UnsafePush(ctx context.Context, data []byte) error {
	client.m.Lock()
	if !client.isReady {
		client.m.Unlock()
		return errNotConnected
	}
	ch := client.channel
	client.m.Unlock()

	msg := amqp.Publishing{
		ContentType: client.opts.contentType,
		Timestamp:   time.Now().UTC(),
		Body:        data,
	}
	if client.opts.persistent {
		msg.DeliveryMode = amqp.Persistent
	}

	return ch.PublishWithContext(
		ctx,
		"",               // Exchange
		client.queueName, // Routing key
		false,            // Mandatory
		false,            // Immediate
		msg,
	)
}

// Consume streams deliveries from the queue. Every delivery must be acked or
// nacked by the caller.
func (client *Client) Consume() (<-chan amqp.Delivery, error) {
	client.m.Lock()
	if !client.isReady {
		client.m.Unlock()
		return nil, errNotConnected
	}
	ch := client.channel
	client.m.Unlock()

	if err := ch.Qos(client.opts.prefetch, 0, false); err != nil {
		return nil, err
	}

	deliveries, err := ch.Consume(
		client.queueName,
		"",    // Consumer
		false, // Auto-Ack
		false, // Exclusive
		false, // No-local
		false, // No-Wait
		nil,   // Args
	)
	if err != nil {
		if client.metrics != nil {
			client.metrics.ConsumptionFailures.WithLabelValues(client.queueName, "consume_error").Inc()
		}
		return nil, err
	}

	return deliveries, nil
}

// Close stops reconnecting and shuts down the channel and connection.
func (client *Client) Close() error {
	client.closeOnce.Do(func() { close(client.done) })

	client.m.Lock()
	defer client.m.Unlock()

	if !client.isReady {
		return errAlreadyClosed
	}

	if err := client.channel.Close(); err != nil {
		return err
	}
	if err := client.connection.Close(); err != nil {
		return err
	}

	client.isReady = false
	if client.metrics != nil {
		client.metrics.ConnectionStatus.Set(0)
	}

	return nil
}
