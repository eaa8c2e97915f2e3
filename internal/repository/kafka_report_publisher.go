package repository

import (
	"context"
	"fmt"

	"SessionScope/internal/domain/models"
	"SessionScope/internal/domain/repository"
	pkgkafka "SessionScope/pkg/kafka"
	"SessionScope/pkg/util"
)

// KafkaReportPublisher ships daily session records to a Kafka topic, one
// message per record, keyed by symbol so a partition sees a symbol's days
// in order.
type KafkaReportPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

func NewKafkaReportPublisher(producer *pkgkafka.Producer, topic string) repository.ReportPublisher {
	if topic == "" {
		topic = "session.reports"
	}
	return &KafkaReportPublisher{producer: producer, topic: topic}
}

func (p *KafkaReportPublisher) PublishReports(ctx context.Context, symbol string, records []models.DailySessionRecord) error {
	if len(records) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, len(records))
	for i, r := range records {
		msgs[i] = pkgkafka.Message{
			Key:   []byte(symbol),
			Value: reportMessage(r),
		}
	}
	if err := p.producer.PublishBatch(ctx, p.topic, msgs); err != nil {
		return fmt.Errorf("publish reports: %w", err)
	}
	return nil
}

func (p *KafkaReportPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

func reportMessage(r models.DailySessionRecord) map[string]interface{} {
	return map[string]interface{}{
		"date":    r.Date.Format(util.DateLayout),
		"session": r.SessionName,
		"symbol":  r.Symbol,
		"trend":   string(r.Trend),
		"open":    r.Open,
		"close":   r.Close,
		"high":    r.High,
		"low":     r.Low,
		"bullish": r.BullishCount,
		"bearish": r.BearishCount,
		"neutral": r.NeutralCount,
		"volume":  r.TotalVolume,
	}
}
