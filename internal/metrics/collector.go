// Package metrics exports skill counters for the ops endpoint.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector is safe to use as a nil pointer; every Record call is then a no-op.
type Collector struct {
	intentsTotal     *prometheus.CounterVec
	intentDuration   *prometheus.HistogramVec
	intakeTurns      prometheus.Histogram
	diagnosisTotal   *prometheus.CounterVec
	navigationTotal  *prometheus.CounterVec
	queueOpsTotal    *prometheus.CounterVec
	robotFramesTotal *prometheus.CounterVec
}

func NewCollector(namespace string, reg prometheus.Registerer) *Collector {
	f := promauto.With(reg)

	return &Collector{
		intentsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "intents_total",
				Help:      "Handled intents by outcome",
			},
			[]string{"intent", "outcome"},
		),
		intentDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "intent_duration_seconds",
				Help:      "Time spent handling one intent, including waits on the user",
				Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
			},
			[]string{"intent"},
		),
		intakeTurns: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "intake_turns",
				Help:      "Questions asked per symptom intake",
				Buckets:   prometheus.LinearBuckets(1, 1, 10),
			},
		),
		diagnosisTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "diagnosis_requests_total",
				Help:      "Skin diagnosis requests to the desktop",
			},
			[]string{"status"},
		),
		navigationTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "navigation_goals_total",
				Help:      "Navigation goals sent to the base",
			},
			[]string{"status"},
		),
		queueOpsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "queue_operations_total",
				Help:      "Patient queue operations",
			},
			[]string{"op", "status"},
		),
		robotFramesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "robot_frames_total",
				Help:      "Frames sent to the robot hub",
			},
			[]string{"to", "status"},
		),
	}
}

func (c *Collector) RecordIntent(intent, outcome string, d time.Duration) {
	if c == nil {
		return
	}
	c.intentsTotal.WithLabelValues(intent, outcome).Inc()
	c.intentDuration.WithLabelValues(intent).Observe(d.Seconds())
}

func (c *Collector) RecordIntake(turns int) {
	if c == nil {
		return
	}
	c.intakeTurns.Observe(float64(turns))
}

func (c *Collector) RecordDiagnosis(status string) {
	if c == nil {
		return
	}
	c.diagnosisTotal.WithLabelValues(status).Inc()
}

func (c *Collector) RecordNavigation(status string) {
	if c == nil {
		return
	}
	c.navigationTotal.WithLabelValues(status).Inc()
}

func (c *Collector) RecordQueue(op, status string) {
	if c == nil {
		return
	}
	c.queueOpsTotal.WithLabelValues(op, status).Inc()
}

func (c *Collector) RecordRobotFrame(to, status string) {
	if c == nil {
		return
	}
	c.robotFramesTotal.WithLabelValues(to, status).Inc()
}

// Status maps an error to the status label.
func Status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
