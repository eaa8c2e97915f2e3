package kafka

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"
)

// MessageHandler processes every message arriving on one topic. Handle is
// called from a worker goroutine, one call at a time per partition.
type MessageHandler interface {
	Topic() string
	Handle(context.Context, []byte) error
}

// ConsumerOption overrides one ConsumerConfig field.
type ConsumerOption func(*ConsumerConfig)

// ConsumerConfig holds consumer settings.
type ConsumerConfig struct {
	Brokers         []string
	GroupID         string
	AutoOffsetReset string

	WorkerCount int
	BufferSize  int

	RetryMax   int
	BackoffMin time.Duration
	BackoffMax time.Duration

	DLQTopic string

	MinBytes int
	MaxBytes int
}

// WithConsumerBrokers sets the broker addresses.
func WithConsumerBrokers(addrs []string) ConsumerOption {
	return func(c *ConsumerConfig) { c.Brokers = addrs }
}

// WithConsumerGroupID sets the consumer group.
func WithConsumerGroupID(id string) ConsumerOption {
	return func(c *ConsumerConfig) { c.GroupID = id }
}

// WithConsumerAutoOffsetReset selects where a new group starts reading,
// "earliest" or "latest".
func WithConsumerAutoOffsetReset(mode string) ConsumerOption {
	return func(c *ConsumerConfig) { c.AutoOffsetReset = mode }
}

// WithConsumerWorkers sets the number of handler goroutines.
func WithConsumerWorkers(n int) ConsumerOption {
	return func(c *ConsumerConfig) { c.WorkerCount = n }
}

// WithConsumerRetry configures handler retries and the backoff range.
func WithConsumerRetry(limit int, minBackoff, maxBackoff time.Duration) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.RetryMax = limit
		c.BackoffMin = minBackoff
		c.BackoffMax = maxBackoff
	}
}

// WithConsumerDLQ sets the topic failed messages are parked on.
func WithConsumerDLQ(topic string) ConsumerOption {
	return func(c *ConsumerConfig) { c.DLQTopic = topic }
}

// WithConsumerFetch bounds the per-request fetch size.
func WithConsumerFetch(minBytes, maxBytes int) ConsumerOption {
	return func(c *ConsumerConfig) { c.MinBytes, c.MaxBytes = minBytes, maxBytes }
}

// WithConsumerBufferSize sets the in-flight channel capacity.
func WithConsumerBufferSize(n int) ConsumerOption {
	return func(c *ConsumerConfig) {
		if n > 0 {
			c.BufferSize = n
		}
	}
}

func defaultConsumerConfig() *ConsumerConfig {
	return &ConsumerConfig{
		GroupID:         "sessionscope",
		AutoOffsetReset: "earliest",
		WorkerCount:     1,
		BufferSize:      10,
		RetryMax:        3,
		BackoffMin:      50 * time.Millisecond,
		BackoffMax:      2 * time.Second,
		MinBytes:        10_000,
		MaxBytes:        10_000_000,
	}
}

// Consumer reads registered topics and dispatches messages through a worker
// pool. Handling is capped at one in-flight message per topic partition so
// a commit can never leapfrog an earlier failure on the same partition.
type Consumer struct {
	cfg      *ConsumerConfig
	readers  map[string]*kafka.Reader
	handlers map[string]MessageHandler
	dlq      *kafka.Writer
	hook     ConsumerHook

	inflight chan *inbound
	stop     chan struct{}
	stopOnce sync.Once
	readerWg sync.WaitGroup
	workerWg sync.WaitGroup

	plMu      sync.Mutex
	partLocks map[string]map[int]*sync.Mutex
}

type inbound struct {
	topic string
	data  []byte
	km    kafka.Message
}

// errStopping marks a retry loop abandoned by shutdown. The message is
// neither committed nor dead-lettered, so the group redelivers it.
var errStopping = errors.New("consumer stopping")

// NewConsumer builds a consumer from the given options. Brokers are the
// only required setting.
func NewConsumer(opts ...ConsumerOption) (*Consumer, error) {
	cfg := defaultConsumerConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka consumer: at least one broker required")
	}

	c := &Consumer{
		cfg:       cfg,
		readers:   make(map[string]*kafka.Reader),
		handlers:  make(map[string]MessageHandler),
		inflight:  make(chan *inbound, cfg.BufferSize),
		stop:      make(chan struct{}),
		partLocks: make(map[string]map[int]*sync.Mutex),
		hook:      NoopHook{},
	}
	initConsumerMetrics()

	if cfg.DLQTopic != "" {
		c.dlq = &kafka.Writer{
			Addr:     kafka.TCP(cfg.Brokers...),
			Balancer: &kafka.LeastBytes{},
		}
	}
	return c, nil
}

// WithConsumerHook sets a hook implementation for lifecycle events.
func (c *Consumer) WithConsumerHook(h ConsumerHook) {
	if h != nil {
		c.hook = h
	}
}

// RegisterHandler binds a handler to its topic. Must be called before Start.
func (c *Consumer) RegisterHandler(h MessageHandler) {
	t := h.Topic()
	if _, dup := c.handlers[t]; dup {
		log.Printf("kafka consumer: handler already registered for topic %s", t)
		return
	}
	c.handlers[t] = h
}

// Start opens one reader per registered topic and launches the worker pool.
func (c *Consumer) Start() error {
	start := kafka.FirstOffset
	if c.cfg.AutoOffsetReset == "latest" {
		start = kafka.LastOffset
	}

	for topic := range c.handlers {
		c.readers[topic] = kafka.NewReader(kafka.ReaderConfig{
			Brokers:     c.cfg.Brokers,
			Topic:       topic,
			GroupID:     c.cfg.GroupID,
			MinBytes:    c.cfg.MinBytes,
			MaxBytes:    c.cfg.MaxBytes,
			StartOffset: start,
		})
		log.Printf("kafka consumer: registered topic=%s", topic)
	}

	for i := 0; i < c.cfg.WorkerCount; i++ {
		c.workerWg.Add(1)
		go c.workerLoop()
	}
	for topic, reader := range c.readers {
		c.readerWg.Add(1)
		go c.readLoop(topic, reader)
	}

	log.Printf("kafka consumer: started workers=%d topics=%d", c.cfg.WorkerCount, len(c.readers))
	return nil
}

// Stop drains the consumer: readers exit first, then the in-flight channel
// closes and the workers finish what they already picked up.
func (c *Consumer) Stop(ctx context.Context) error {
	var stopErr error
	c.stopOnce.Do(func() {
		log.Println("kafka consumer: stopping")
		close(c.stop)

		if stopErr = waitBounded(ctx, &c.readerWg); stopErr != nil {
			return
		}
		close(c.inflight)
		if stopErr = waitBounded(ctx, &c.workerWg); stopErr != nil {
			return
		}

		for t, r := range c.readers {
			if err := r.Close(); err != nil {
				log.Printf("kafka consumer: close reader %s: %v", t, err)
			}
		}
		if c.dlq != nil {
			if err := c.dlq.Close(); err != nil {
				log.Printf("kafka consumer: close dlq writer: %v", err)
			}
		}
		log.Println("kafka consumer: stopped")
	})
	return stopErr
}

func waitBounded(ctx context.Context, wg *sync.WaitGroup) error {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return fmt.Errorf("waiting for consumer goroutines: %w", ctx.Err())
	case <-done:
		return nil
	}
}

func (c *Consumer) readLoop(topic string, reader *kafka.Reader) {
	defer c.readerWg.Done()

	for {
		select {
		case <-c.stop:
			return
		default:
		}

		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		km, err := reader.ReadMessage(ctx)
		cancel()
		if err != nil {
			if !errors.Is(err, context.DeadlineExceeded) {
				log.Printf("kafka consumer: read %s: %v", topic, err)
			}
			continue
		}
		if !c.enqueue(topic, km) {
			return
		}
	}
}

// enqueue hands a message to the worker pool, yielding while the buffer is
// saturated rather than dropping. Returns false when the consumer stops.
func (c *Consumer) enqueue(topic string, km kafka.Message) bool {
	in := &inbound{topic: topic, data: km.Value, km: km}
	for {
		select {
		case c.inflight <- in:
			consumerQueueDepth.WithLabelValues(topic).Set(float64(len(c.inflight)))
			consumerQueueFullness.WithLabelValues(topic).Set(float64(len(c.inflight)) / float64(cap(c.inflight)))
			return true
		case <-c.stop:
			return false
		default:
			full := float64(len(c.inflight)) / float64(cap(c.inflight))
			consumerQueueFullness.WithLabelValues(topic).Set(full)
			if full > 0.8 {
				time.Sleep(10 * time.Millisecond)
			} else {
				runtime.Gosched()
			}
		}
	}
}

func (c *Consumer) workerLoop() {
	defer c.workerWg.Done()

	for in := range c.inflight {
		handler, ok := c.handlers[in.topic]
		if !ok {
			continue
		}
		c.handleOne(handler, in)
	}
}

func (c *Consumer) handleOne(handler MessageHandler, in *inbound) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			log.Printf("kafka consumer: panic handling %s: %v", in.topic, r)
		}
	}()

	lock := c.partitionLock(in.topic, in.km.Partition)
	lock.Lock()
	defer lock.Unlock()

	err := c.handleWithRetry(handler, in)
	if errors.Is(err, errStopping) {
		return
	}
	if err != nil {
		c.hook.OnError(context.Background(), in.topic, in.km, in.data, err)
		log.Printf("kafka consumer: giving up on %s message: %v", in.topic, err)
		c.deadLetter(in)
	}

	// Commit on success, or after dead-lettering so a poison message cannot
	// wedge the partition.
	if err == nil || c.dlq != nil {
		if reader := c.readers[in.topic]; reader != nil {
			_ = c.commitWithRetry(reader, in.km, 3)
		}
	}
	consumerHandleLatency.WithLabelValues(in.topic).Observe(time.Since(start).Seconds())
}

func (c *Consumer) handleWithRetry(handler MessageHandler, in *inbound) error {
	for attempt := 1; ; attempt++ {
		hctx, hkm, hdata, err := c.hook.BeforeHandle(context.Background(), in.topic, in.km, in.data)
		if err != nil {
			return err
		}

		err = handler.Handle(hctx, hdata)
		c.hook.AfterHandle(hctx, in.topic, hkm, hdata, err)
		if err == nil {
			return nil
		}
		if attempt > c.cfg.RetryMax {
			return err
		}
		c.hook.OnError(hctx, in.topic, hkm, hdata, err)

		select {
		case <-time.After(backoffWithJitter(c.cfg.BackoffMin, c.cfg.BackoffMax, attempt)):
		case <-c.stop:
			return errStopping
		}
	}
}

func (c *Consumer) deadLetter(in *inbound) {
	if c.dlq == nil || c.cfg.DLQTopic == "" {
		return
	}
	err := c.dlq.WriteMessages(context.Background(), kafka.Message{
		Topic:   c.cfg.DLQTopic,
		Value:   in.data,
		Time:    time.Now(),
		Headers: []kafka.Header{{Key: "source_topic", Value: []byte(in.topic)}},
	})
	if err != nil {
		log.Printf("kafka consumer: dlq write %s: %v", c.cfg.DLQTopic, err)
	}
}

// commitWithRetry commits a single offset, retrying up to attempts times.
func (c *Consumer) commitWithRetry(reader *kafka.Reader, km kafka.Message, attempts int) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err = reader.CommitMessages(ctx, km)
		cancel()
		if err == nil {
			return nil
		}
		time.Sleep(backoffWithJitter(50*time.Millisecond, 500*time.Millisecond, attempt))
	}
	log.Printf("kafka consumer: commit failed after %d attempts: %v", attempts, err)
	return err
}

func (c *Consumer) partitionLock(topic string, partition int) *sync.Mutex {
	c.plMu.Lock()
	defer c.plMu.Unlock()

	m, ok := c.partLocks[topic]
	if !ok {
		m = make(map[int]*sync.Mutex)
		c.partLocks[topic] = m
	}
	l, ok := m[partition]
	if !ok {
		l = &sync.Mutex{}
		m[partition] = l
	}
	return l
}

func backoffWithJitter(min, max time.Duration, attempt int) time.Duration {
	if min <= 0 {
		min = 50 * time.Millisecond
	}
	if max < min {
		max = min
	}
	exp := min * time.Duration(1<<uint(attempt-1))
	if exp > max {
		exp = max
	}
	// jitter up to 50%
	jitter := time.Duration(rand.Int63n(int64(exp) / 2))
	return exp - jitter
}

var (
	consumerMetricsOnce   sync.Once
	consumerQueueDepth    *prometheus.GaugeVec
	consumerQueueFullness *prometheus.GaugeVec
	consumerHandleLatency *prometheus.HistogramVec
)

func initConsumerMetrics() {
	consumerMetricsOnce.Do(func() {
		consumerQueueDepth = promauto.NewGaugeVec(
			prometheus.GaugeOpts{Name: "sessionscope_kafka_consumer_queue_depth", Help: "Messages waiting in the consumer buffer"},
			[]string{"topic"},
		)
		consumerQueueFullness = promauto.NewGaugeVec(
			prometheus.GaugeOpts{Name: "sessionscope_kafka_consumer_queue_fullness", Help: "Buffer utilization ratio (len/cap)"},
			[]string{"topic"},
		)
		consumerHandleLatency = promauto.NewHistogramVec(
			prometheus.HistogramOpts{Name: "sessionscope_kafka_consumer_handle_seconds", Help: "Handling time per message"},
			[]string{"topic"},
		)
	})
}
