package store

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	savesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "bbstore_saves_total", Help: "Total messages saved, by message type"},
		[]string{"table", "type"},
	)

	backendErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "bbstore_backend_errors_total", Help: "Total failed backend operations"},
		[]string{"table", "op"},
	)

	loadedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "bbstore_loaded_total", Help: "Total messages dispatched by load"},
		[]string{"table"},
	)

	malformedRecords = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "bbstore_malformed_records_total", Help: "Total stored records that failed to unpack"},
		[]string{"table"},
	)

	outstanding = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "bbstore_outstanding_messages", Help: "Current number of unacknowledged messages"},
		[]string{"table"},
	)
)

func init() {
	prometheus.MustRegister(savesTotal, backendErrors, loadedTotal, malformedRecords, outstanding)
}
