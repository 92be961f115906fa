// Package metrics counts payment outcomes.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder is told once per transfer how it ended.
type Recorder interface {
	RecordSuccess()
	RecordFailure()
}

// Prometheus exposes payment outcomes as counters.
type Prometheus struct {
	success prometheus.Counter
	failure prometheus.Counter
}

// NewPrometheus registers the payment counters on reg.
func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	factory := promauto.With(reg)
	return &Prometheus{
		success: factory.NewCounter(prometheus.CounterOpts{
			Name: "payrail_payments_success_total",
			Help: "Number of successful payments processed",
		}),
		failure: factory.NewCounter(prometheus.CounterOpts{
			Name: "payrail_payments_failure_total",
			Help: "Number of failed payments processed",
		}),
	}
}

func (p *Prometheus) RecordSuccess() { p.success.Inc() }
func (p *Prometheus) RecordFailure() { p.failure.Inc() }

// Nop discards everything.
type Nop struct{}

func (Nop) RecordSuccess() {}
func (Nop) RecordFailure() {}
