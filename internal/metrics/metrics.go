package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Counters exposed at /metrics.
var (
	SessionStarts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "classtrack_session_starts_total",
		Help: "Class sessions started.",
	})

	SessionStops = promauto.NewCounter(prometheus.CounterOpts{
		Name: "classtrack_session_stops_total",
		Help: "Class sessions stopped.",
	})

	CheckIns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "classtrack_checkins_total",
		Help: "Student self-check-in attempts by outcome.",
	}, []string{"outcome"})

	BulkMarks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "classtrack_bulk_marks_total",
		Help: "Attendance marks applied by the bulk-import worker.",
	})
)
