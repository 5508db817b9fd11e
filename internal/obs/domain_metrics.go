package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// QuoteTotal counts price quote computations by outcome.
	QuoteTotal *prometheus.CounterVec
	// OrderPlacedTotal counts placement attempts by payment method and outcome.
	OrderPlacedTotal *prometheus.CounterVec
	// PaymentDispatchTotal counts payment method dispatch outcomes.
	PaymentDispatchTotal *prometheus.CounterVec
	// PaymentRedirectTotal counts signed gateway redirect creations.
	PaymentRedirectTotal *prometheus.CounterVec
	// PaymentCallbackTotal counts inbound gateway callback outcomes.
	PaymentCallbackTotal *prometheus.CounterVec
	// CouponRedemptionTotal counts coupon usage accounting outcomes.
	CouponRedemptionTotal *prometheus.CounterVec
	// PaymentSweepExpiredTotal counts gateway attempts expired by the sweeper.
	PaymentSweepExpiredTotal prometheus.Counter
	// SettlementLatency records callback-to-commit latency in milliseconds.
	SettlementLatency *prometheus.HistogramVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		QuoteTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quote_total",
			Help:      "Count of price quote computations by outcome.",
		}, []string{"result"})
		OrderPlacedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_placed_total",
			Help:      "Count of order placement attempts by payment method and outcome.",
		}, []string{"method", "result"})
		PaymentDispatchTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_dispatch_total",
			Help:      "Count of payment dispatch outcomes by method kind.",
		}, []string{"kind", "result"})
		PaymentRedirectTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_redirect_total",
			Help:      "Count of signed gateway redirect creations.",
		}, []string{"provider", "result"})
		PaymentCallbackTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_callback_total",
			Help:      "Count of processed gateway callbacks by outcome.",
		}, []string{"provider", "channel", "result"})
		CouponRedemptionTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "coupon_redemption_total",
			Help:      "Count of coupon usage accounting outcomes.",
		}, []string{"result"})
		PaymentSweepExpiredTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_sweep_expired_total",
			Help:      "Number of gateway payment attempts expired by the sweeper.",
		})
		SettlementLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "payment_settlement_duration_ms",
			Help:      "Latency of settlement transactions in milliseconds.",
			Buckets:   defaultLatencyBuckets,
		}, []string{"result"})

		QuoteTotal = register(reg, QuoteTotal)
		OrderPlacedTotal = register(reg, OrderPlacedTotal)
		PaymentDispatchTotal = register(reg, PaymentDispatchTotal)
		PaymentRedirectTotal = register(reg, PaymentRedirectTotal)
		PaymentCallbackTotal = register(reg, PaymentCallbackTotal)
		CouponRedemptionTotal = register(reg, CouponRedemptionTotal)
		PaymentSweepExpiredTotal = register(reg, PaymentSweepExpiredTotal)
		SettlementLatency = register(reg, SettlementLatency)
	})
}
