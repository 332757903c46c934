package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RecordsInserted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "salesflood_records_inserted_total",
			Help: "Sales rows committed to the datastore",
		},
		[]string{"category"},
	)
	InsertFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "salesflood_insert_failures_total",
		Help: "Insert or commit attempts that failed; the record is dropped",
	})
	ConnectAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "salesflood_connect_attempts_total",
			Help: "Datastore connection attempts by result",
		},
		[]string{"result"},
	)
	Reconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "salesflood_reconnects_total",
		Help: "Sessions replaced after a failed insert",
	})
	Connected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "salesflood_connected",
		Help: "1 while a datastore session is open",
	})
	LastInsert = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "salesflood_last_insert_timestamp_seconds",
		Help: "Unix time of the last committed sale",
	})
	SaleAmount = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "salesflood_sale_amount_cents",
		Help:    "Total (unit price x quantity) of committed sales in cents",
		Buckets: prometheus.ExponentialBuckets(5000, 2, 9),
	})
)

func RecordInsert(category string, amountCents int64, unixSeconds float64) {
	RecordsInserted.WithLabelValues(category).Inc()
	SaleAmount.Observe(float64(amountCents))
	LastInsert.Set(unixSeconds)
}

func IncInsertFailure() {
	InsertFailures.Inc()
}

func IncConnectAttempt(ok bool) {
	result := "failure"
	if ok {
		result = "success"
	}
	ConnectAttempts.WithLabelValues(result).Inc()
}

func IncReconnect() {
	Reconnects.Inc()
}

func SetConnected(up bool) {
	if up {
		Connected.Set(1)
		return
	}
	Connected.Set(0)
}
