package backend

import (
	"time"

	"github.com/docqa/console/internal/metrics"
	"github.com/docqa/console/pkg/circuitbreaker"
	"github.com/docqa/console/pkg/config"
	"github.com/docqa/console/pkg/retry"
)

// OptionsFromConfig maps the backend config section onto client options.
// Breaker transitions are exported as the breaker state gauge.
func OptionsFromConfig(cfg config.BackendConfig) Options {
	return Options{
		BaseURL:       cfg.BaseURL,
		Timeout:       cfg.Timeout(),
		QueryTimeout:  cfg.QueryTimeout(),
		UploadTimeout: cfg.UploadTimeout(),
		Retry: retry.Config{
			MaxAttempts:    cfg.Retry.MaxAttempts,
			InitialDelay:   time.Duration(cfg.Retry.InitialDelayMs) * time.Millisecond,
			MaxDelay:       time.Duration(cfg.Retry.MaxDelayMs) * time.Millisecond,
			Multiplier:     2.0,
			JitterFraction: 0.1,
		},
		Breaker: circuitbreaker.Config{
			MaxHalfOpenRequests: 1,
			OpenTimeout:         time.Duration(cfg.Breaker.OpenTimeoutSec) * time.Second,
			FailureThreshold:    cfg.Breaker.FailureThreshold,
			SuccessThreshold:    cfg.Breaker.SuccessThreshold,
			OnStateChange: func(name string, from, to circuitbreaker.State) {
				metrics.BreakerState.WithLabelValues(name).Set(float64(to))
			},
		},
	}
}
