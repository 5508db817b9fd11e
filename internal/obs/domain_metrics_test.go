package obs_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-food/internal/obs"
)

func TestDomainMetricsRegisterOnce(t *testing.T) {
	registry := prometheus.NewRegistry()
	obs.MustRegisterDomainMetrics("food", registry)
	obs.MustRegisterDomainMetrics("food", registry)

	require.NotNil(t, obs.QuoteTotal)
	obs.QuoteTotal.WithLabelValues("success").Inc()
	require.Equal(t, float64(1), testutil.ToFloat64(obs.QuoteTotal.WithLabelValues("success")))

	obs.PaymentSweepExpiredTotal.Add(2)
	require.Equal(t, float64(2), testutil.ToFloat64(obs.PaymentSweepExpiredTotal))
}
