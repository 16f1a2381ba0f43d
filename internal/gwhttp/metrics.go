package gwhttp

import "github.com/prometheus/client_golang/prometheus"

// metrics groups the gateway's Prometheus collectors, registered once per
// Server and exposed at /metrics, per the supplemented observability surface.
type metrics struct {
	fragmentsDecoded *prometheus.CounterVec
	trxCompleted     prometheus.Counter
	trxErrors        *prometheus.CounterVec
	taposRequests    prometheus.Counter
	dispatchOutcomes *prometheus.CounterVec
	taposFreshness   *prometheus.GaugeVec
	quarantinedHosts *prometheus.GaugeVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		fragmentsDecoded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "elpp_fragments_decoded_total",
			Help: "Uplink fragments decoded, by outcome kind.",
		}, []string{"kind"}),
		trxCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "elpp_transactions_completed_total",
			Help: "Transactions fully reassembled and handed to dispatch.",
		}),
		trxErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "elpp_decode_errors_total",
			Help: "Decode errors, by kind.",
		}, []string{"kind"}),
		taposRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "elpp_tapos_requests_total",
			Help: "Device-originated TAPOS-request fragments handled.",
		}),
		dispatchOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "elpp_dispatch_outcomes_total",
			Help: "Dispatch sweep outcomes, by HTTP status code, or error/timeout.",
		}, []string{"status"}),
		taposFreshness: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "elpp_tapos_ref_block_num",
			Help: "Most recently polled ref_block_num, by chain.",
		}, []string{"chain"}),
		quarantinedHosts: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "elpp_quarantined_hosts",
			Help: "Quarantined API-pool hosts, by chain.",
		}, []string{"chain"}),
	}
	reg.MustRegister(
		m.fragmentsDecoded, m.trxCompleted, m.trxErrors, m.taposRequests,
		m.dispatchOutcomes, m.taposFreshness, m.quarantinedHosts,
	)
	return m
}
