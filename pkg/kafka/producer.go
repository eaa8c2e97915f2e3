package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"
)

// Producer wraps a Kafka writer. One Producer serves all topics; the topic
// is chosen per message.
type Producer struct {
	writer *kafka.Writer
	comp   string
}

// Message is one entry of a batch publish.
type Message struct {
	Key   []byte
	Value interface{}
}

func defaultProducerConfig() *ProducerConfig {
	return &ProducerConfig{
		RequiredAcks: -1,
		Compression:  "gzip",
		MaxAttempts:  3,
		BatchSize:    100,
		BatchBytes:   1 << 20,
		BatchTimeout: time.Second,
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  10 * time.Second,
	}
}

// NewProducer builds a producer from the given options. Brokers are the
// only required setting.
func NewProducer(opts ...ProducerOption) (*Producer, error) {
	cfg := defaultProducerConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka producer: at least one broker required")
	}

	initProducerMetrics()
	return &Producer{writer: buildWriter(cfg), comp: cfg.Compression}, nil
}

func buildWriter(cfg *ProducerConfig) *kafka.Writer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.LeastBytes{},
		Compression:  parseCompression(cfg.Compression),
		RequiredAcks: kafka.RequiredAcks(cfg.RequiredAcks),
		MaxAttempts:  cfg.MaxAttempts,
		BatchSize:    cfg.BatchSize,
		BatchBytes:   int64(cfg.BatchBytes),
		BatchTimeout: cfg.BatchTimeout,
		WriteTimeout: cfg.WriteTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		Async:        cfg.Async,
	}
	if cfg.HashByKey {
		w.Balancer = &kafka.Hash{}
	}
	return w
}

// encodeValue passes raw bytes and strings through and JSON-encodes
// everything else.
func encodeValue(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	}
	b, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode value: %w", err)
	}
	return b, nil
}

func wireMessage(topic string, key, value []byte) kafka.Message {
	return kafka.Message{Topic: topic, Key: key, Value: value, Time: time.Now()}
}

// Publish sends one message. With the hash balancer, all messages sharing a
// key land on the same partition.
func (p *Producer) Publish(ctx context.Context, topic string, key []byte, value interface{}) error {
	start := time.Now()
	v, err := encodeValue(value)
	if err != nil {
		return err
	}

	err = p.writer.WriteMessages(ctx, wireMessage(topic, key, v))
	observeProducerMetrics(topic, p.comp, int64(len(v)), 1, time.Since(start), err)
	return err
}

// PublishMessage sends a keyless message. It satisfies publisher interfaces
// that only carry topic and payload, such as the log collector's.
func (p *Producer) PublishMessage(ctx context.Context, topic string, payload interface{}) error {
	return p.Publish(ctx, topic, nil, payload)
}

// PublishBatch sends multiple messages to one topic in a single write.
func (p *Producer) PublishBatch(ctx context.Context, topic string, messages []Message) error {
	if len(messages) == 0 {
		return nil
	}

	start := time.Now()
	msgs := make([]kafka.Message, 0, len(messages))
	var total int64
	for _, m := range messages {
		v, err := encodeValue(m.Value)
		if err != nil {
			return err
		}
		msgs = append(msgs, wireMessage(topic, m.Key, v))
		total += int64(len(v))
	}

	err := p.writer.WriteMessages(ctx, msgs...)
	observeProducerMetrics(topic, p.comp, total, len(messages), time.Since(start), err)
	return err
}

// Close flushes and closes the underlying writer.
func (p *Producer) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

var compressionCodecs = map[string]kafka.Compression{
	"gzip":   kafka.Gzip,
	"snappy": kafka.Snappy,
	"lz4":    kafka.Lz4,
	"zstd":   kafka.Zstd,
}

func parseCompression(s string) kafka.Compression {
	if c, ok := compressionCodecs[s]; ok {
		return c
	}
	return kafka.Gzip
}

var (
	producerMetricsOnce sync.Once
	pubMessages         *prometheus.CounterVec
	pubErrors           *prometheus.CounterVec
	pubBytes            *prometheus.CounterVec
	pubLatency          *prometheus.HistogramVec
)

func initProducerMetrics() {
	producerMetricsOnce.Do(func() {
		pubMessages = promauto.NewCounterVec(
			prometheus.CounterOpts{Name: "sessionscope_kafka_producer_messages_total", Help: "Total messages published to Kafka"},
			[]string{"topic", "compression", "result"},
		)
		pubErrors = promauto.NewCounterVec(
			prometheus.CounterOpts{Name: "sessionscope_kafka_producer_errors_total", Help: "Total producer errors"},
			[]string{"topic"},
		)
		pubBytes = promauto.NewCounterVec(
			prometheus.CounterOpts{Name: "sessionscope_kafka_producer_bytes_total", Help: "Total payload bytes published"},
			[]string{"topic", "compression"},
		)
		pubLatency = promauto.NewHistogramVec(
			prometheus.HistogramOpts{Name: "sessionscope_kafka_producer_publish_seconds", Help: "Publish latency", Buckets: prometheus.DefBuckets},
			[]string{"topic"},
		)
	})
}

func observeProducerMetrics(topic, comp string, bytes int64, count int, dur time.Duration, err error) {
	if pubMessages == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
		pubErrors.WithLabelValues(topic).Inc()
	}
	pubMessages.WithLabelValues(topic, comp, result).Add(float64(count))
	pubBytes.WithLabelValues(topic, comp).Add(float64(bytes))
	pubLatency.WithLabelValues(topic).Observe(dur.Seconds())
}
