package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordInsert(t *testing.T) {
	before := testutil.ToFloat64(RecordsInserted.WithLabelValues("Livros"))

	RecordInsert("Livros", 15980, 1700000000)

	assert.Equal(t, before+1, testutil.ToFloat64(RecordsInserted.WithLabelValues("Livros")))
	assert.Equal(t, float64(1700000000), testutil.ToFloat64(LastInsert))
}

func TestConnectAttempts(t *testing.T) {
	ok := testutil.ToFloat64(ConnectAttempts.WithLabelValues("success"))
	failed := testutil.ToFloat64(ConnectAttempts.WithLabelValues("failure"))

	IncConnectAttempt(true)
	IncConnectAttempt(false)
	IncConnectAttempt(false)

	assert.Equal(t, ok+1, testutil.ToFloat64(ConnectAttempts.WithLabelValues("success")))
	assert.Equal(t, failed+2, testutil.ToFloat64(ConnectAttempts.WithLabelValues("failure")))
}

func TestConnectedGauge(t *testing.T) {
	SetConnected(true)
	assert.Equal(t, float64(1), testutil.ToFloat64(Connected))
	SetConnected(false)
	assert.Equal(t, float64(0), testutil.ToFloat64(Connected))
}
