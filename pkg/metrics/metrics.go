// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PaymentsApplied counts loan payments persisted.
var PaymentsApplied = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "fredwelfare",
	Subsystem: "loans",
	Name:      "payments_applied_total",
	Help:      "Total loan payments applied and stored.",
})

// PaymentsRejected counts payments refused by the payment processor, by reason.
var PaymentsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "fredwelfare",
	Subsystem: "loans",
	Name:      "payments_rejected_total",
	Help:      "Total loan payments rejected, by reason.",
}, []string{"reason"})

// InterestCollected accumulates interest applied against accrued interest.
var InterestCollected = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "fredwelfare",
	Subsystem: "loans",
	Name:      "interest_collected",
	Help:      "Interest retired by payments, in currency units.",
})

var DividendRuns = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "fredwelfare",
	Subsystem: "dividends",
	Name:      "runs_total",
	Help:      "Dividend distribution runs, by outcome.",
}, []string{"outcome"})

// DividendAllocation observes individual member allocations.
var DividendAllocation = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "fredwelfare",
	Subsystem: "dividends",
	Name:      "allocation_amount",
	Help:      "Distribution of per-member dividend allocations.",
	Buckets:   prometheus.ExponentialBuckets(10, 4, 8),
})

// RoundingDrift records |allocated - pool| for each run.
var RoundingDrift = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "fredwelfare",
	Subsystem: "dividends",
	Name:      "rounding_drift",
	Help:      "Absolute difference between the pool and the sum of rounded allocations in the last run.",
})

// OTPTokens tracks live verification tokens.
var OTPTokens = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "fredwelfare",
	Subsystem: "otp",
	Name:      "tokens",
	Help:      "Verification tokens currently held.",
})
