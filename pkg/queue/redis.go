package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"SessionScope/pkg/logger"

	"github.com/redis/go-redis/v9"
)

// Mode selects which halves of the queue an instance runs. A producer-only
// instance never registers jobs or starts workers; a consumer-only instance
// can still publish, which keeps retries local.
type Mode int

const (
	ModeProducerConsumer Mode = iota
	ModeProducerOnly
	ModeConsumerOnly
)

func (m Mode) String() string {
	switch m {
	case ModeProducerOnly:
		return "producer-only"
	case ModeConsumerOnly:
		return "consumer-only"
	default:
		return "producer-consumer"
	}
}

// queueKeys are the Redis keys one queue owns, all under a shared prefix so
// several queues can coexist in a single database.
type queueKeys struct {
	pending string // LIST: producers LPUSH, workers BRPOP
	retry   string // ZSET: failed messages scored by their redelivery time
	dead    string // LIST: messages that exhausted their retries
}

func keysFor(prefix string) queueKeys {
	return queueKeys{
		pending: prefix + ":messages",
		retry:   prefix + ":retry",
		dead:    prefix + ":dlq",
	}
}

// RedisQueue is a Redis-backed job queue. Producers push JSON-encoded
// messages onto a list; worker goroutines pop them and dispatch to the job
// registered for the message type. A failed message parks in the retry set
// until due, then moves back onto the list; once its attempts are spent it
// is dead-lettered instead.
type RedisQueue struct {
	l      *logger.Logger
	cfg    *QueueConfig
	client *redis.Client
	mode   Mode
	keys   queueKeys

	mu      sync.RWMutex
	jobs    map[string]Job
	running bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// RedisQueueOption adjusts a RedisQueue before it starts.
type RedisQueueOption func(*RedisQueue)

// WithKeyPrefix moves the queue's keys under a different prefix.
func WithKeyPrefix(prefix string) RedisQueueOption {
	return func(r *RedisQueue) { r.keys = keysFor(prefix) }
}

// NewRedisQueue creates a queue over an existing Redis client. The client is
// shared, not owned: closing the queue does not close it.
func NewRedisQueue(lgr *logger.Logger, cfg *QueueConfig, client *redis.Client, mode Mode, opts ...RedisQueueOption) *RedisQueue {
	if cfg == nil {
		cfg = &QueueConfig{}
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 10 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())

	rq := &RedisQueue{
		l:      lgr,
		cfg:    cfg,
		client: client,
		mode:   mode,
		keys:   keysFor("sessionscope:queue"),
		jobs:   make(map[string]Job),
		ctx:    ctx,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(rq)
	}
	return rq
}

// RegisterJob binds a job to its message type. Registration after Start is
// allowed but messages of an unknown type seen before it are lost to the log.
func (r *RedisQueue) RegisterJob(job Job) {
	if r.mode == ModeProducerOnly {
		r.l.Warn("job registration ignored in producer-only mode", logger.String("job", job.Name()))
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, dup := r.jobs[job.Type()]; dup {
		r.l.Warn("job already registered", logger.String("job", job.Name()))
		return
	}
	r.jobs[job.Type()] = job
	r.l.Info("job registered", logger.String("type", job.Type()), logger.String("job", job.Name()))
}

// Start pings Redis and, in consumer modes, launches the workers and the
// redelivery loop.
func (r *RedisQueue) Start() error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return errors.New("queue already running")
	}
	r.running = true
	r.mu.Unlock()

	pctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.client.Ping(pctx).Err(); err != nil {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
		return fmt.Errorf("redis ping: %w", err)
	}

	if r.mode == ModeProducerOnly {
		r.l.Info("redis publisher started", logger.String("addr", r.client.Options().Addr))
		return nil
	}

	for i := 0; i < r.cfg.Workers; i++ {
		r.wg.Add(1)
		go r.worker(i)
	}
	r.wg.Add(1)
	go r.redeliveryLoop()

	r.l.Info("redis queue started",
		logger.Int("workers", r.cfg.Workers),
		logger.String("addr", r.client.Options().Addr),
		logger.String("mode", r.mode.String()))
	return nil
}

// Stop cancels the workers and waits for them up to ctx's deadline. Messages
// already popped keep running until their job returns.
func (r *RedisQueue) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	r.mu.Unlock()

	r.l.Info("stopping redis queue")
	r.cancel()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		r.l.Warn("timeout waiting for queue workers", logger.Error(ctx.Err()))
		return fmt.Errorf("stop queue: %w", ctx.Err())
	case <-done:
		r.l.Info("redis queue stopped")
		return nil
	}
}

// Enqueue pushes a message for msgType. In consumer modes the type must have
// a registered job, so a typo fails at publish time rather than poisoning
// the list.
func (r *RedisQueue) Enqueue(ctx context.Context, msgType string, payload interface{}) error {
	r.mu.RLock()
	running := r.running
	_, known := r.jobs[msgType]
	r.mu.RUnlock()

	if !running {
		return errors.New("queue not running")
	}
	if r.mode != ModeProducerOnly && !known {
		return fmt.Errorf("no job registered for type %q", msgType)
	}
	if r.cfg.QueueSize > 0 {
		if n, err := r.client.LLen(ctx, r.keys.pending).Result(); err == nil && n >= int64(r.cfg.QueueSize) {
			return fmt.Errorf("queue full: %d pending", n)
		}
	}

	now := time.Now()
	msg := Message{
		ID:        strconv.FormatInt(now.UnixNano(), 10),
		Type:      msgType,
		Payload:   payload,
		Timestamp: now,
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	if err := r.client.LPush(ctx, r.keys.pending, raw).Err(); err != nil {
		return fmt.Errorf("push message: %w", err)
	}
	return nil
}

// PublishMessage implements QueueService.
func (r *RedisQueue) PublishMessage(ctx context.Context, msgType string, payload interface{}) error {
	return r.Enqueue(ctx, msgType, payload)
}

func (r *RedisQueue) worker(id int) {
	defer r.wg.Done()
	r.l.Info("queue worker started", logger.Int("worker_id", id))

	for {
		select {
		case <-r.ctx.Done():
			r.l.Info("queue worker stopped", logger.Int("worker_id", id))
			return
		default:
			r.consumeOne(id)
		}
	}
}

// consumeOne blocks up to a second for the next message, so worker shutdown
// is bounded by that poll interval.
func (r *RedisQueue) consumeOne(id int) {
	res, err := r.client.BRPop(r.ctx, time.Second, r.keys.pending).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return
		}
		r.l.Error("queue pop", logger.Int("worker_id", id), logger.Error(err))
		time.Sleep(time.Second)
		return
	}
	if len(res) != 2 {
		return
	}

	var msg Message
	if err := json.Unmarshal([]byte(res[1]), &msg); err != nil {
		r.l.Error("queue decode", logger.Error(err))
		return
	}
	r.dispatch(msg)
}

func (r *RedisQueue) dispatch(msg Message) {
	r.mu.RLock()
	job := r.jobs[msg.Type]
	r.mu.RUnlock()
	if job == nil {
		r.l.Error("no job for message", logger.String("type", msg.Type), logger.String("id", msg.ID))
		return
	}

	start := time.Now()
	err := job.Handle(r.ctx, normalizePayload(msg.Payload))
	if err == nil {
		return
	}
	if errors.Is(err, context.Canceled) {
		r.l.Warn("job cancelled",
			logger.String("job", job.Name()),
			logger.String("id", msg.ID),
			logger.Int64("elapsed_ms", time.Since(start).Milliseconds()))
		return
	}
	r.retryOrBury(msg, job, err)
}

// normalizePayload re-encodes a decoded JSON object as raw JSON so job
// handlers can unmarshal it into their own payload type.
func normalizePayload(p interface{}) interface{} {
	m, ok := p.(map[string]interface{})
	if !ok {
		return p
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return p
	}
	return json.RawMessage(raw)
}

func (r *RedisQueue) retryOrBury(msg Message, job Job, cause error) {
	r.l.Error("job failed",
		logger.String("job", job.Name()),
		logger.String("id", msg.ID),
		logger.Int("attempt", msg.Attempts+1),
		logger.Error(cause))

	if msg.Attempts >= r.cfg.RetryLimit {
		r.l.Error("retries exhausted, dead-lettering",
			logger.String("job", job.Name()),
			logger.String("id", msg.ID))
		r.bury(msg)
		return
	}

	msg.Attempts++
	due := time.Now().Add(r.cfg.RetryDelay)
	raw, err := json.Marshal(msg)
	if err != nil {
		r.l.Error("marshal retry", logger.Error(err))
		return
	}
	err = r.client.ZAdd(context.Background(), r.keys.retry, redis.Z{
		Score:  float64(due.Unix()),
		Member: raw,
	}).Err()
	if err != nil {
		r.l.Error("park retry", logger.Error(err))
		return
	}
	r.l.Info("retry scheduled",
		logger.String("job", job.Name()),
		logger.String("id", msg.ID),
		logger.Int("attempt", msg.Attempts),
		logger.Time("due", due))
}

func (r *RedisQueue) bury(msg Message) {
	raw, err := json.Marshal(msg)
	if err != nil {
		r.l.Error("marshal dead letter", logger.Error(err))
		return
	}
	if err := r.client.LPush(context.Background(), r.keys.dead, raw).Err(); err != nil {
		r.l.Error("push dead letter", logger.Error(err))
	}
}

// redeliverEvery is how often the retry set is scanned for due messages.
const redeliverEvery = 5 * time.Second

// redeliveryLoop moves due retry messages back onto the pending list.
func (r *RedisQueue) redeliveryLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(redeliverEvery)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.redeliverDue()
		}
	}
}

func (r *RedisQueue) redeliverDue() {
	now := strconv.FormatInt(time.Now().Unix(), 10)
	due, err := r.client.ZRangeByScore(r.ctx, r.keys.retry, &redis.ZRangeBy{
		Min: "-inf",
		Max: now,
	}).Result()
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			r.l.Error("fetch due retries", logger.Error(err))
		}
		return
	}

	for _, member := range due {
		select {
		case <-r.ctx.Done():
			return
		default:
		}

		// Remove and requeue atomically so a crash cannot duplicate it.
		pipe := r.client.TxPipeline()
		pipe.ZRem(r.ctx, r.keys.retry, member)
		pipe.LPush(r.ctx, r.keys.pending, member)
		if _, err := pipe.Exec(r.ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			r.l.Error("requeue retry", logger.Error(err))
		}
	}
}
