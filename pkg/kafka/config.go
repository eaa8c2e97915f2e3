package kafka

import "time"

// ProducerConfig holds the writer settings behind a Producer.
type ProducerConfig struct {
	Brokers []string

	RequiredAcks int
	Compression  string
	MaxAttempts  int

	BatchSize    int
	BatchBytes   int
	BatchTimeout time.Duration

	WriteTimeout time.Duration
	ReadTimeout  time.Duration

	Async     bool
	HashByKey bool
}

// ProducerOption overrides one ProducerConfig field.
type ProducerOption func(*ProducerConfig)

// WithBrokers sets the broker addresses.
func WithBrokers(addrs []string) ProducerOption {
	return func(c *ProducerConfig) { c.Brokers = addrs }
}

// WithCompression sets the compression codec: gzip, snappy, lz4 or zstd.
func WithCompression(codec string) ProducerOption {
	return func(c *ProducerConfig) { c.Compression = codec }
}

// WithRequiredAcks sets required acknowledgements, -1 for all replicas.
func WithRequiredAcks(acks int) ProducerOption {
	return func(c *ProducerConfig) { c.RequiredAcks = acks }
}

// WithMaxAttempts bounds the writer's internal retries.
func WithMaxAttempts(n int) ProducerOption {
	return func(c *ProducerConfig) { c.MaxAttempts = n }
}

// WithBatchSize caps messages per batch.
func WithBatchSize(n int) ProducerOption {
	return func(c *ProducerConfig) { c.BatchSize = n }
}

// WithBatchBytes caps aggregate bytes per batch.
func WithBatchBytes(n int) ProducerOption {
	return func(c *ProducerConfig) { c.BatchBytes = n }
}

// WithBatchTimeout sets how long an incomplete batch may wait before it
// is flushed anyway.
func WithBatchTimeout(d time.Duration) ProducerOption {
	return func(c *ProducerConfig) { c.BatchTimeout = d }
}

// WithTimeouts sets writer write/read timeouts.
func WithTimeouts(write, read time.Duration) ProducerOption {
	return func(c *ProducerConfig) { c.WriteTimeout, c.ReadTimeout = write, read }
}

// WithAsync toggles fire-and-forget writes. Publish errors surface only
// in metrics when async is on.
func WithAsync(enabled bool) ProducerOption {
	return func(c *ProducerConfig) { c.Async = enabled }
}

// WithHashByKey switches to the hash balancer so messages with the same
// key keep their order on one partition.
func WithHashByKey(enabled bool) ProducerOption {
	return func(c *ProducerConfig) { c.HashByKey = enabled }
}
