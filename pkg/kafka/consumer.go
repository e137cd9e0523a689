package kafka

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"

	"EntryGate/pkg/logger"
)

// MessageHandler handles messages from a specific topic.
type MessageHandler interface {
	Topic() string
	Handle(context.Context, []byte) error
}

// Consumer reads registered topics and fans messages out to a worker pool.
// Every (topic, partition) is pinned to one worker queue, so keyed messages
// are handled and committed in offset order.
type Consumer struct {
	cfg       *ConsumerConfig
	readers   map[string]*kafka.Reader
	handlers  map[string]MessageHandler
	stopChan  chan struct{}
	wg        sync.WaitGroup
	stopOnce  sync.Once
	queues    []chan *message
	closeOnce sync.Once
	dlq       *kafka.Writer
	hook      ConsumerHook
	log       *logger.Logger
}

type message struct {
	topic string
	km    kafka.Message
}

// NewConsumer creates a new Kafka consumer.
func NewConsumer(opts ...ConsumerOption) (*Consumer, error) {
	cfg := &ConsumerConfig{
		GroupID:     "entrygate",
		WorkerCount: 1,
		BufferSize:  64,
		RetryMax:    3,
		BackoffMin:  50 * time.Millisecond,
		BackoffMax:  2 * time.Second,
		MinBytes:    1,
		MaxBytes:    10e6,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("brokers are required")
	}

	c := &Consumer{
		cfg:      cfg,
		readers:  make(map[string]*kafka.Reader),
		handlers: make(map[string]MessageHandler),
		stopChan: make(chan struct{}),
		queues:   make([]chan *message, cfg.WorkerCount),
		hook:     NoopHook{},
		log:      logger.Nop(),
	}
	for i := range c.queues {
		c.queues[i] = make(chan *message, cfg.BufferSize)
	}
	if cfg.DLQTopic != "" {
		c.dlq = &kafka.Writer{Addr: kafka.TCP(cfg.Brokers...), Balancer: &kafka.Hash{}}
	}

	initConsumerMetrics()
	return c, nil
}

func (c *Consumer) SetLogger(l *logger.Logger) {
	if l != nil {
		c.log = l.With("kafka_consumer")
	}
}

// WithConsumerHook sets a hook implementation for lifecycle events.
func (c *Consumer) WithConsumerHook(h ConsumerHook) {
	if h != nil {
		c.hook = h
	}
}

// RegisterHandler registers a message handler. Must be called before Start.
func (c *Consumer) RegisterHandler(handler MessageHandler) {
	topic := handler.Topic()
	if _, ok := c.handlers[topic]; ok {
		c.log.Warn("handler already registered", logger.String("topic", topic))
		return
	}
	c.handlers[topic] = handler
}

// Start starts the readers and workers.
func (c *Consumer) Start() error {
	if len(c.handlers) == 0 {
		return errors.New("no handlers registered")
	}
	for topic := range c.handlers {
		c.readers[topic] = kafka.NewReader(kafka.ReaderConfig{
			Brokers:  c.cfg.Brokers,
			Topic:    topic,
			GroupID:  c.cfg.GroupID,
			MinBytes: c.cfg.MinBytes,
			MaxBytes: c.cfg.MaxBytes,
		})
	}

	c.startWorkers()

	var readers sync.WaitGroup
	for topic, reader := range c.readers {
		readers.Add(1)
		go func(topic string, r *kafka.Reader) {
			defer readers.Done()
			c.consume(topic, r)
		}(topic, reader)
	}
	// Workers drain their queues; close them once every reader has returned.
	go func() {
		readers.Wait()
		c.closeQueues()
	}()

	c.log.Info("kafka consumer started",
		logger.Int("workers", c.cfg.WorkerCount),
		logger.String("group", c.cfg.GroupID))
	return nil
}

// Stop stops the consumer and waits for in-flight messages.
func (c *Consumer) Stop(ctx context.Context) error {
	var stopErr error
	c.stopOnce.Do(func() {
		close(c.stopChan)

		done := make(chan struct{})
		go func() {
			c.wg.Wait()
			close(done)
		}()
		select {
		case <-ctx.Done():
			stopErr = fmt.Errorf("timeout waiting for consumer to stop: %w", ctx.Err())
		case <-done:
		}

		for topic, reader := range c.readers {
			if err := reader.Close(); err != nil {
				c.log.Error("close reader", logger.String("topic", topic), logger.Error(err))
			}
		}
		if c.dlq != nil {
			if err := c.dlq.Close(); err != nil {
				c.log.Error("close dlq writer", logger.Error(err))
			}
		}
	})
	return stopErr
}

func (c *Consumer) consume(topic string, reader *kafka.Reader) {
	for {
		select {
		case <-c.stopChan:
			return
		default:
		}

		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		km, err := reader.FetchMessage(ctx)
		cancel()
		if err != nil {
			if !errors.Is(err, context.DeadlineExceeded) {
				c.log.Warn("fetch message", logger.String("topic", topic), logger.Error(err))
			}
			continue
		}

		if !c.dispatch(&message{topic: topic, km: km}) {
			return
		}
	}
}

// queueFor picks the worker queue owning a (topic, partition).
func (c *Consumer) queueFor(topic string, partition int) chan *message {
	h := fnv.New32a()
	h.Write([]byte(topic))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(partition)))
	return c.queues[h.Sum32()%uint32(len(c.queues))]
}

// dispatch queues msg on its partition's worker. It reports false once the
// consumer is stopping.
func (c *Consumer) dispatch(msg *message) bool {
	q := c.queueFor(msg.topic, msg.km.Partition)
	select {
	case q <- msg:
		consumerQueueDepth.WithLabelValues(msg.topic).Set(float64(len(q)))
		return true
	case <-c.stopChan:
		return false
	}
}

func (c *Consumer) startWorkers() {
	for _, q := range c.queues {
		c.wg.Add(1)
		go c.worker(q)
	}
}

func (c *Consumer) closeQueues() {
	c.closeOnce.Do(func() {
		for _, q := range c.queues {
			close(q)
		}
	})
}

func (c *Consumer) worker(q <-chan *message) {
	defer c.wg.Done()
	for msg := range q {
		c.process(msg)
	}
}

func (c *Consumer) process(msg *message) {
	handler, ok := c.handlers[msg.topic]
	if !ok {
		return
	}
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("panic in message handler",
				logger.String("topic", msg.topic), logger.Any("panic", r))
		}
		consumerHandleLatency.WithLabelValues(msg.topic).Observe(time.Since(start).Seconds())
	}()

	base := context.WithValue(context.Background(), ctxMessageKey, string(msg.km.Key))
	attempts := 0
	op := func() error {
		attempts++
		ctx, data, err := runBefore(c.hook, base, msg.km)
		if err != nil {
			return backoff.Permanent(err)
		}
		err = handler.Handle(ctx, data)
		runAfter(c.hook, ctx, msg.km, err)
		if err != nil {
			runOnError(c.hook, ctx, msg.km, err)
		}
		return err
	}

	err := backoff.Retry(op, c.retryPolicy())
	if err != nil {
		consumerFailures.WithLabelValues(msg.topic).Inc()
		c.log.Error("handle message failed",
			logger.String("topic", msg.topic),
			logger.String("key", string(msg.km.Key)),
			logger.Int("attempts", attempts),
			logger.Error(err))
		c.toDLQ(msg)
	}

	// Commit on success or once the message is parked, so poison messages
	// never loop.
	if err == nil || c.dlq != nil {
		c.commit(msg)
	}
}

func (c *Consumer) retryPolicy() backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = c.cfg.BackoffMin
	eb.MaxInterval = c.cfg.BackoffMax
	eb.MaxElapsedTime = 0
	return backoff.WithMaxRetries(eb, uint64(max(c.cfg.RetryMax, 0)))
}

func (c *Consumer) toDLQ(msg *message) {
	if c.dlq == nil {
		return
	}
	if err := c.dlq.WriteMessages(context.Background(), kafka.Message{
		Topic:   c.cfg.DLQTopic,
		Key:     msg.km.Key,
		Value:   msg.km.Value,
		Time:    time.Now(),
		Headers: []kafka.Header{{Key: "source_topic", Value: []byte(msg.topic)}},
	}); err != nil {
		c.log.Error("write dlq", logger.String("topic", c.cfg.DLQTopic), logger.Error(err))
	}
}

func (c *Consumer) commit(msg *message) {
	reader := c.readers[msg.topic]
	if reader == nil {
		return
	}
	b := backoff.WithMaxRetries(backoff.NewConstantBackOff(100*time.Millisecond), 2)
	err := backoff.Retry(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return reader.CommitMessages(ctx, msg.km)
	}, b)
	if err != nil {
		c.log.Error("commit offset", logger.String("topic", msg.topic), logger.Error(err))
	}
}

var (
	consumerQueueDepth    *prometheus.GaugeVec
	consumerHandleLatency *prometheus.HistogramVec
	consumerFailures      *prometheus.CounterVec
	consumerOnce          sync.Once
)

func initConsumerMetrics() {
	consumerOnce.Do(func() {
		consumerQueueDepth = promauto.NewGaugeVec(
			prometheus.GaugeOpts{Name: "entrygate_kafka_consumer_queue_depth", Help: "Messages waiting in consumer queue"},
			[]string{"topic"},
		)
		consumerHandleLatency = promauto.NewHistogramVec(
			prometheus.HistogramOpts{Name: "entrygate_kafka_consumer_handle_seconds", Help: "Handling time per message"},
			[]string{"topic"},
		)
		consumerFailures = promauto.NewCounterVec(
			prometheus.CounterOpts{Name: "entrygate_kafka_consumer_failures_total", Help: "Messages that exhausted retries"},
			[]string{"topic"},
		)
	})
}
