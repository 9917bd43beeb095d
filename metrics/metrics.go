// Package metrics counts sign-in and sign-out outcomes.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Event label values
const (
	SignInAttempted = "sign_in_attempted"
	SignInSuccess   = "sign_in_success"
	SignInFailure   = "sign_in_failure"
	SignOutSuccess  = "sign_out_success"
)

const (
	namespace  = "epr_admin"
	eventsName = "auth_events_total"
	eventLabel = "event"
)

var events = []string{SignInAttempted, SignInSuccess, SignInFailure, SignOutSuccess}

// Recorder is the metrics sink the auth routes report to.
type Recorder interface {
	SignInAttempted()
	SignInSuccess()
	SignInFailure()
	SignOutSuccess()
}

// Counters records auth events on one prometheus counter labelled by event.
type Counters struct {
	registry *prometheus.Registry
	events   *prometheus.CounterVec
}

var _ Recorder = (*Counters)(nil)

// NewCounters registers the counter on its own registry, so every instance
// starts from zero.
func NewCounters() *Counters {
	c := &Counters{
		registry: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      eventsName,
			Help:      "Sign-in and sign-out outcomes.",
		}, []string{eventLabel}),
	}
	c.registry.MustRegister(c.events)

	// Export every series from the start, including the ones still at zero
	for _, event := range events {
		c.events.WithLabelValues(event)
	}
	return c
}

func (c *Counters) SignInAttempted() { c.incr(SignInAttempted) }
func (c *Counters) SignInSuccess()   { c.incr(SignInSuccess) }
func (c *Counters) SignInFailure()   { c.incr(SignInFailure) }
func (c *Counters) SignOutSuccess()  { c.incr(SignOutSuccess) }

func (c *Counters) incr(event string) {
	c.events.WithLabelValues(event).Inc()
	log.Debug().Str("metric", event).Msg("metric incremented")
}

// Handler serves the counters in the prometheus text format.
func (c *Counters) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Snapshot returns the current totals keyed by event.
func (c *Counters) Snapshot() map[string]int64 {
	totals := make(map[string]int64, len(events))
	for _, event := range events {
		totals[event] = 0
	}

	families, err := c.registry.Gather()
	if err != nil {
		log.Warn().Err(err).Msg("failed to gather metrics")
		return totals
	}
	for _, family := range families {
		if family.GetName() != prometheus.BuildFQName(namespace, "", eventsName) {
			continue
		}
		for _, m := range family.GetMetric() {
			for _, label := range m.GetLabel() {
				if label.GetName() == eventLabel {
					totals[label.GetValue()] = int64(m.GetCounter().GetValue())
				}
			}
		}
	}
	return totals
}
