package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce           sync.Once
	httpDurationHistogram  *prometheus.HistogramVec
	verificationCounter    *prometheus.CounterVec
	campaignClaimCounter   *prometheus.CounterVec
	ledgerImbalanceCounter *prometheus.CounterVec
	idempotencyCounter     *prometheus.CounterVec
	payoutHandoffCounter   prometheus.Counter
	queueDepthGauge        *prometheus.GaugeVec
	workerRunCounter       *prometheus.CounterVec
)

// Init registers all Prometheus collectors.
func Init() {
	registerOnce.Do(func() {
		httpDurationHistogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"})

		verificationCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "transaction_verifications_total",
			Help: "Verification pipeline verdicts by resulting status",
		}, []string{"status"})

		campaignClaimCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "campaign_claims_total",
			Help: "Campaign reward claim outcomes",
		}, []string{"campaign_type", "outcome"})

		ledgerImbalanceCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_imbalance_total",
			Help: "Ledger integrity violations found by reconciliation",
		}, []string{"kind"})

		idempotencyCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "idempotency_events_total",
			Help: "Idempotency middleware outcomes",
		}, []string{"outcome"})

		payoutHandoffCounter = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "payout_handoffs_total",
			Help: "Withdrawals handed to the external payout queue",
		})

		queueDepthGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "queue_depth",
			Help: "Outstanding jobs per queue, pending plus in flight",
		}, []string{"queue"})

		workerRunCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_runs_total",
			Help: "Background worker run outcomes",
		}, []string{"worker", "result"})

		prometheus.MustRegister(
			httpDurationHistogram,
			verificationCounter,
			campaignClaimCounter,
			ledgerImbalanceCounter,
			idempotencyCounter,
			payoutHandoffCounter,
			queueDepthGauge,
			workerRunCounter,
		)
	})
}

func ObserveHTTP(method, path string, status int, duration time.Duration) {
	if httpDurationHistogram == nil {
		return
	}
	httpDurationHistogram.WithLabelValues(method, path, strconv.Itoa(status)).Observe(duration.Seconds())
}

func IncrementVerification(status string) {
	if verificationCounter == nil {
		return
	}
	verificationCounter.WithLabelValues(status).Inc()
}

func IncrementCampaignClaim(campaignType, outcome string) {
	if campaignClaimCounter == nil {
		return
	}
	campaignClaimCounter.WithLabelValues(campaignType, outcome).Inc()
}

func IncrementLedgerImbalance(kind string) {
	if ledgerImbalanceCounter == nil {
		return
	}
	ledgerImbalanceCounter.WithLabelValues(kind).Inc()
}

func IncrementIdempotencyEvent(outcome string) {
	if idempotencyCounter == nil {
		return
	}
	idempotencyCounter.WithLabelValues(outcome).Inc()
}

func IncrementPayoutHandoff() {
	if payoutHandoffCounter == nil {
		return
	}
	payoutHandoffCounter.Inc()
}

func SetQueueDepth(queue string, depth int64) {
	if queueDepthGauge == nil {
		return
	}
	queueDepthGauge.WithLabelValues(queue).Set(float64(depth))
}

func IncrementWorkerRun(worker, result string) {
	if workerRunCounter == nil {
		return
	}
	workerRunCounter.WithLabelValues(worker, result).Inc()
}
