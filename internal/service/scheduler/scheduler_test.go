package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SessionScope/internal/usecase"
	applogger "SessionScope/pkg/logger"
	"SessionScope/pkg/util"
)

type stubQueue struct {
	types    []string
	payloads []interface{}
}

func (q *stubQueue) PublishMessage(_ context.Context, msgType string, payload interface{}) error {
	q.types = append(q.types, msgType)
	q.payloads = append(q.payloads, payload)
	return nil
}

func testLogger(t *testing.T) *applogger.Logger {
	t.Helper()
	l, err := applogger.New(&applogger.Config{Level: "error", Format: "console", Output: "stdout"})
	require.NoError(t, err)
	return l
}

func TestRegisterRejectsBadSpec(t *testing.T) {
	s := New("not a cron spec", []string{"SAP.DE"}, []string{"xetra"}, "30m", &stubQueue{}, nil, testLogger(t))
	assert.Error(t, s.Register())
}

func TestRegisterAcceptsSecondsSpec(t *testing.T) {
	s := New("0 30 6 * * *", []string{"SAP.DE"}, []string{"xetra"}, "30m", &stubQueue{}, nil, testLogger(t))
	assert.NoError(t, s.Register())
}

func TestRunNowEnqueuesPreviousDayPerSymbol(t *testing.T) {
	q := &stubQueue{}
	s := New("0 30 6 * * *", []string{"SAP.DE", "BMW.DE"}, []string{"xetra", "late"}, "30m", q, nil, testLogger(t))

	s.RunNow()

	require.Len(t, q.payloads, 2)
	wantDate := util.DayFloor(time.Now().UTC()).AddDate(0, 0, -1).Format(util.DateLayout)
	for i, raw := range q.payloads {
		assert.Equal(t, usecase.ReportJobType, q.types[i])
		p, ok := raw.(usecase.ReportJobPayload)
		require.True(t, ok)
		assert.Equal(t, []string{"xetra", "late"}, p.Sessions)
		assert.Equal(t, wantDate, p.From)
		assert.Equal(t, wantDate, p.To)
		assert.Equal(t, "30m", p.Interval)
		assert.True(t, p.Publish)
	}
	assert.Equal(t, "SAP.DE", q.payloads[0].(usecase.ReportJobPayload).Symbol)
	assert.Equal(t, "BMW.DE", q.payloads[1].(usecase.ReportJobPayload).Symbol)
}
