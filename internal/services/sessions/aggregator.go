package sessions

import (
	"SessionScope/internal/domain/models"
	"SessionScope/internal/domain/service"
)

// Aggregator collapses one day's windowed rows into OHLC, trend, direction
// counts and volume. It assumes rows arrive time-ordered, which the extractor
// guarantees.
type Aggregator struct{}

func NewAggregator() *Aggregator { return &Aggregator{} }

var _ service.SessionAggregator = (*Aggregator)(nil)

// Aggregate returns (record, true) or (zero, false) for an empty day. Date and
// session name are the caller's to stamp; the aggregator only sees rows.
func (a *Aggregator) Aggregate(dayRows models.Series) (models.DailySessionRecord, bool) {
	if len(dayRows) == 0 {
		return models.DailySessionRecord{}, false
	}
	rec := models.DailySessionRecord{
		Symbol: dayRows[0].Symbol,
		Open:   dayRows[0].Open,
		Close:  dayRows[len(dayRows)-1].Close,
		High:   dayRows[0].High,
		Low:    dayRows[0].Low,
	}
	for _, row := range dayRows {
		if row.High > rec.High {
			rec.High = row.High
		}
		if row.Low < rec.Low {
			rec.Low = row.Low
		}
		rec.TotalVolume += row.Volume
		switch {
		case row.Close > row.Open:
			rec.BullishCount++
		case row.Close < row.Open:
			rec.BearishCount++
		default:
			rec.NeutralCount++
		}
	}
	rec.Trend = classifyTrend(rec.Open, rec.Close)
	return rec, true
}

func classifyTrend(open, close float64) models.Trend {
	switch {
	case close > open:
		return models.TrendBullish
	case close < open:
		return models.TrendBearish
	default:
		return models.TrendFlat
	}
}
