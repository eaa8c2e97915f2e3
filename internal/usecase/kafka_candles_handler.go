package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"SessionScope/internal/domain/models"
	domrepo "SessionScope/internal/domain/repository"
	pkgkafka "SessionScope/pkg/kafka"
)

// KafkaCandlesHandler consumes candle messages and feeds the ingestor.
type KafkaCandlesHandler struct {
	topic           string
	ingestor        *CandleIngestor
	metrics         domrepo.Metrics
	defaultInterval domrepo.Interval
}

func NewKafkaCandlesHandler(topic string, ingestor *CandleIngestor, metrics domrepo.Metrics, defaultInterval string) *KafkaCandlesHandler {
	return &KafkaCandlesHandler{
		topic:           topic,
		ingestor:        ingestor,
		metrics:         metrics,
		defaultInterval: domrepo.NormalizeInterval(defaultInterval),
	}
}

func (h *KafkaCandlesHandler) Topic() string { return h.topic }

// incoming message schema: {symbol, t, o, h, l, c, v, interval?}
func (h *KafkaCandlesHandler) Handle(ctx context.Context, b []byte) error {
	var m struct {
		Symbol   string  `json:"symbol"`
		T        int64   `json:"t"`
		O        float64 `json:"o"`
		H        float64 `json:"h"`
		L        float64 `json:"l"`
		C        float64 `json:"c"`
		V        float64 `json:"v"`
		Interval string  `json:"interval"`
	}
	if err := json.Unmarshal(b, &m); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return err
	}
	if m.Symbol == "" || m.T <= 0 {
		h.metrics.RecordError("consumer_invalid")
		return fmt.Errorf("candle message missing symbol or timestamp")
	}
	if m.T > 1e11 { // ms
		m.T = m.T / 1000
	}
	// E2E latency from bar time to now (approx)
	h.metrics.RecordLatency("ingest_e2e_seconds", time.Since(time.Unix(m.T, 0)).Seconds())

	interval := h.defaultInterval
	if m.Interval != "" {
		if !domrepo.IsValidInterval(domrepo.Interval(m.Interval)) {
			h.metrics.RecordError("consumer_interval")
			return fmt.Errorf("unsupported interval '%s'", m.Interval)
		}
		interval = domrepo.Interval(m.Interval)
	}

	return h.ingestor.Enqueue(ctx, models.Candle{
		Bucket: time.Unix(m.T, 0).UTC(),
		Symbol: m.Symbol,
		Open:   m.O,
		High:   m.H,
		Low:    m.L,
		Close:  m.C,
		Volume: m.V,
	}, interval)
}

var _ pkgkafka.MessageHandler = (*KafkaCandlesHandler)(nil)
