package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// CheckoutResolveTotal counts checkout resolutions by outcome.
	CheckoutResolveTotal *prometheus.CounterVec
	// CheckoutAmountMinor records authorised checkout totals in minor units.
	CheckoutAmountMinor prometheus.Histogram
	// PriceLookupDuration records price store latency in milliseconds.
	PriceLookupDuration *prometheus.HistogramVec
	// PaymentIntentTotal counts payment intent creation attempts.
	PaymentIntentTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		CheckoutResolveTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_resolve_total",
			Help:      "Count of checkout amount resolutions by result.",
		}, []string{"result"})
		CheckoutAmountMinor = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "checkout_amount_minor",
			Help:      "Distribution of authorised checkout totals in minor currency units.",
			Buckets:   []float64{1000, 2500, 5000, 10000, 25000, 50000, 100000, 250000},
		})
		PriceLookupDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "price_lookup_duration_ms",
			Help:      "Latency of price store lookups in milliseconds.",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		}, []string{"result"})
		PaymentIntentTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_intent_total",
			Help:      "Count of payment intent processing outcomes.",
		}, []string{"provider", "result"})

		CheckoutResolveTotal = registerOrReuse(reg, CheckoutResolveTotal)
		CheckoutAmountMinor = registerOrReuse(reg, CheckoutAmountMinor)
		PriceLookupDuration = registerOrReuse(reg, PriceLookupDuration)
		PaymentIntentTotal = registerOrReuse(reg, PaymentIntentTotal)
	})
}

// ObserveCheckout records a resolution outcome and, on success, the amount.
func ObserveCheckout(result string, amount int64) {
	if CheckoutResolveTotal != nil {
		CheckoutResolveTotal.WithLabelValues(result).Inc()
	}
	if result == "success" && CheckoutAmountMinor != nil {
		CheckoutAmountMinor.Observe(float64(amount))
	}
}

// ObservePriceLookup records price store latency.
func ObservePriceLookup(result string, millis float64) {
	if PriceLookupDuration != nil {
		PriceLookupDuration.WithLabelValues(result).Observe(millis)
	}
}

// ObservePaymentIntent counts a provider call outcome.
func ObservePaymentIntent(provider, result string) {
	if PaymentIntentTotal != nil {
		PaymentIntentTotal.WithLabelValues(provider, result).Inc()
	}
}
