package metrics

import "github.com/prometheus/client_golang/prometheus"

// DispatchMetrics counts dispatch engine outcomes.
type DispatchMetrics struct {
	offersSent    prometheus.Counter
	offersFailed  prometheus.Counter
	accepts       prometheus.Counter
	rejects       prometheus.Counter
	timeouts      prometheus.Counter
	exhausted     prometheus.Counter
	staleSessions prometheus.Counter
}

// NewDispatchMetrics registers dispatch counters on the provided registerer.
func NewDispatchMetrics(reg prometheus.Registerer) *DispatchMetrics {
	if reg == nil {
		return &DispatchMetrics{}
	}
	m := &DispatchMetrics{
		offersSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dispatch_offers_sent_total",
			Help: "Offers successfully delivered to vendor backends.",
		}),
		offersFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dispatch_offers_failed_total",
			Help: "Offer deliveries that failed and advanced the candidate list.",
		}),
		accepts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dispatch_accepts_total",
			Help: "Offers confirmed by a vendor before expiry.",
		}),
		rejects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dispatch_rejects_total",
			Help: "Offers declined by a vendor.",
		}),
		timeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dispatch_timeouts_total",
			Help: "Offers that expired without a vendor response.",
		}),
		exhausted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dispatch_exhausted_total",
			Help: "Dispatch sessions that ran out of candidates.",
		}),
		staleSessions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dispatch_stale_sessions_total",
			Help: "Sessions discarded because the pickup reached a terminal status.",
		}),
	}
	reg.MustRegister(m.offersSent, m.offersFailed, m.accepts, m.rejects, m.timeouts, m.exhausted, m.staleSessions)
	return m
}

func (m *DispatchMetrics) IncOfferSent() {
	if m == nil || m.offersSent == nil {
		return
	}
	m.offersSent.Inc()
}

func (m *DispatchMetrics) IncOfferFailed() {
	if m == nil || m.offersFailed == nil {
		return
	}
	m.offersFailed.Inc()
}

func (m *DispatchMetrics) IncAccept() {
	if m == nil || m.accepts == nil {
		return
	}
	m.accepts.Inc()
}

func (m *DispatchMetrics) IncReject() {
	if m == nil || m.rejects == nil {
		return
	}
	m.rejects.Inc()
}

func (m *DispatchMetrics) IncTimeout() {
	if m == nil || m.timeouts == nil {
		return
	}
	m.timeouts.Inc()
}

func (m *DispatchMetrics) IncExhausted() {
	if m == nil || m.exhausted == nil {
		return
	}
	m.exhausted.Inc()
}

func (m *DispatchMetrics) IncStaleSession() {
	if m == nil || m.staleSessions == nil {
		return
	}
	m.staleSessions.Inc()
}
