package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "autobuy"

// PrometheusCollector exports a Collector snapshot on every scrape
type PrometheusCollector struct {
	source *Collector

	purchases     *prometheus.Desc
	manual        *prometheus.Desc
	purchaseAvg   *prometheus.Desc
	polls         *prometheus.Desc
	pollErrors    *prometheus.Desc
	pending       *prometheus.Desc
	outcomes      *prometheus.Desc
	jobRuns       *prometheus.Desc
	jobFailures   *prometheus.Desc
	jobsSkipped   *prometheus.Desc
	uptimeSeconds *prometheus.Desc
}

var _ prometheus.Collector = (*PrometheusCollector)(nil)

// NewPrometheusCollector wraps source; a nil source uses the global collector
func NewPrometheusCollector(source *Collector) *PrometheusCollector {
	return &PrometheusCollector{
		source: OrDefault(source),
		purchases: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "purchases_total"),
			"Buy attempts by result.", []string{"result"}, nil),
		manual: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "manual_purchases_total"),
			"Buy attempts triggered manually.", nil, nil),
		purchaseAvg: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "purchase_duration_avg_seconds"),
			"Average duration of a buy attempt.", nil, nil),
		polls: prometheus.NewDesc(prometheus.BuildFQName(namespace, "tracker", "polls_total"),
			"Order status queries.", nil, nil),
		pollErrors: prometheus.NewDesc(prometheus.BuildFQName(namespace, "tracker", "poll_errors_total"),
			"Order status queries that failed.", nil, nil),
		pending: prometheus.NewDesc(prometheus.BuildFQName(namespace, "tracker", "pending_orders"),
			"Orders waiting for a terminal status.", nil, nil),
		outcomes: prometheus.NewDesc(prometheus.BuildFQName(namespace, "tracker", "order_outcomes_total"),
			"Tracked orders by terminal state.", []string{"state"}, nil),
		jobRuns: prometheus.NewDesc(prometheus.BuildFQName(namespace, "scheduler", "job_runs_total"),
			"Scheduler job runs.", []string{"job"}, nil),
		jobFailures: prometheus.NewDesc(prometheus.BuildFQName(namespace, "scheduler", "job_failures_total"),
			"Scheduler job runs that returned an error or panicked.", []string{"job"}, nil),
		jobsSkipped: prometheus.NewDesc(prometheus.BuildFQName(namespace, "scheduler", "job_skips_total"),
			"Fires skipped because the previous run was still executing.", []string{"job"}, nil),
		uptimeSeconds: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "uptime_seconds"),
			"Seconds since the collector started.", nil, nil),
	}
}

func (p *PrometheusCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		p.purchases, p.manual, p.purchaseAvg, p.polls, p.pollErrors, p.pending,
		p.outcomes, p.jobRuns, p.jobFailures, p.jobsSkipped, p.uptimeSeconds,
	} {
		ch <- d
	}
}

func (p *PrometheusCollector) Collect(ch chan<- prometheus.Metric) {
	m := p.source.GetMetrics()

	ch <- prometheus.MustNewConstMetric(p.purchases, prometheus.CounterValue, float64(m.SuccessfulPurchases), "success")
	ch <- prometheus.MustNewConstMetric(p.purchases, prometheus.CounterValue, float64(m.FailedPurchases), "failed")
	ch <- prometheus.MustNewConstMetric(p.manual, prometheus.CounterValue, float64(m.ManualPurchases))
	ch <- prometheus.MustNewConstMetric(p.purchaseAvg, prometheus.GaugeValue, m.AvgPurchaseDuration.Seconds())
	ch <- prometheus.MustNewConstMetric(p.polls, prometheus.CounterValue, float64(m.OrderPolls))
	ch <- prometheus.MustNewConstMetric(p.pollErrors, prometheus.CounterValue, float64(m.PollErrors))
	ch <- prometheus.MustNewConstMetric(p.pending, prometheus.GaugeValue, float64(m.PendingOrders))

	for state, n := range m.OrderOutcomes {
		ch <- prometheus.MustNewConstMetric(p.outcomes, prometheus.CounterValue, float64(n), state)
	}
	for job, n := range m.JobRuns {
		ch <- prometheus.MustNewConstMetric(p.jobRuns, prometheus.CounterValue, float64(n), job)
	}
	for job, n := range m.JobFailures {
		ch <- prometheus.MustNewConstMetric(p.jobFailures, prometheus.CounterValue, float64(n), job)
	}
	for job, n := range m.JobsSkipped {
		ch <- prometheus.MustNewConstMetric(p.jobsSkipped, prometheus.CounterValue, float64(n), job)
	}

	ch <- prometheus.MustNewConstMetric(p.uptimeSeconds, prometheus.GaugeValue, m.Uptime.Seconds())
}

// Register adds the collector to reg
func (p *PrometheusCollector) Register(reg prometheus.Registerer) error {
	return reg.Register(p)
}
