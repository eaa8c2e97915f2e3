package models

// Requests for the session report HTTP endpoints. Defined in domain for
// consistency and reuse. Dates use yyyy-mm-dd.

type SessionWindowRequest struct {
	Session string `query:"session" json:"session" validate:"required"`
	Date    string `query:"date" json:"date" validate:"required,datetime=2006-01-02"`
}

type SessionExtractRequest struct {
	Symbol   string `query:"symbol" json:"symbol" validate:"required"`
	Session  string `query:"session" json:"session" validate:"required"`
	From     string `query:"from" json:"from" validate:"required,datetime=2006-01-02"`
	To       string `query:"to" json:"to" validate:"required,datetime=2006-01-02"`
	Interval string `query:"interval" json:"interval" default:"30m" validate:"oneof=1m 5m 15m 30m 60m 1h 1d"`
	Force    bool   `query:"force" json:"force"`
}

type DailyReportRequest struct {
	Symbol   string `query:"symbol" json:"symbol" validate:"required"`
	Session  string `query:"session" json:"session" validate:"required"`
	From     string `query:"from" json:"from" validate:"required,datetime=2006-01-02"`
	To       string `query:"to" json:"to" validate:"required,datetime=2006-01-02"`
	Interval string `query:"interval" json:"interval" default:"30m" validate:"oneof=1m 5m 15m 30m 60m 1h 1d"`
	Force    bool   `query:"force" json:"force"`
}

// StoredReportsRequest reads previously persisted records. Session is
// optional; empty means every session.
type StoredReportsRequest struct {
	Symbol  string `query:"symbol" json:"symbol" validate:"required"`
	Session string `query:"session" json:"session"`
	From    string `query:"from" json:"from" validate:"required,datetime=2006-01-02"`
	To      string `query:"to" json:"to" validate:"required,datetime=2006-01-02"`
}

// ReportJobRequest enqueues an async build covering several sessions at once.
type ReportJobRequest struct {
	Symbol   string   `json:"symbol" validate:"required"`
	Sessions []string `json:"sessions" validate:"required,min=1,dive,required"`
	From     string   `json:"from" validate:"required,datetime=2006-01-02"`
	To       string   `json:"to" validate:"required,datetime=2006-01-02"`
	Interval string   `json:"interval" default:"30m" validate:"oneof=1m 5m 15m 30m 60m 1h 1d"`
	Publish  bool     `json:"publish"`
}

// Wire shapes for responses. Session math stays on domain types; these only
// fix the JSON field names.

type ResolvedWindowResponse struct {
	Session    string `json:"session"`
	AnchorDate string `json:"anchor_date"`
	StartUTC   string `json:"start_utc"`
	EndUTC     string `json:"end_utc"`
	CrossesDay bool   `json:"crosses_midnight"`
}

type CandleResponse struct {
	Time   string  `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

type DailySessionRecordResponse struct {
	Date         string  `json:"date"`
	Session      string  `json:"session"`
	Symbol       string  `json:"symbol"`
	Trend        string  `json:"trend"`
	Open         float64 `json:"open"`
	Close        float64 `json:"close"`
	High         float64 `json:"high"`
	Low          float64 `json:"low"`
	BullishCount int     `json:"bullish_candle_count"`
	BearishCount int     `json:"bearish_candle_count"`
	NeutralCount int     `json:"neutral_candle_count"`
	TotalVolume  float64 `json:"total_volume"`
}

type SessionInfoResponse struct {
	Name            string `json:"name"`
	Timezone        string `json:"timezone"`
	Open            string `json:"open"`
	Close           string `json:"close"`
	CrossesMidnight bool   `json:"crosses_midnight"`
	Description     string `json:"description,omitempty"`
}
