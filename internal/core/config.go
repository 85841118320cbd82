package core

import (
	"github.com/prometheus/client_golang/prometheus"

	"skylink/internal/config"
	"skylink/internal/logger"
	"skylink/pkg/errors"
)

// OptionsFromConfig turns the session and metrics sections into session
// options. reg receives Prometheus collectors; nil uses a private registry.
func OptionsFromConfig(cfg config.Config, reg prometheus.Registerer) ([]SessionOption, error) {
	opts := []SessionOption{
		WithLogger(logger.NewAdapter(logger.ComponentLogger("skylink.session"))),
		WithAutoReconcile(cfg.Session.AutoReconcile),
		WithDiagnosticsCapacity(cfg.Session.DiagnosticsCapacity),
		WithRunnerConcurrency(cfg.Session.RunnerConcurrency),
	}
	switch cfg.Metrics.Backend {
	case "", "expvar":
		name := ""
		if cfg.Metrics.Namespace != "" {
			name = cfg.Metrics.Namespace + "_session"
		}
		opts = append(opts, WithMetricsRecorder(newExpvarOnce(name)))
	case "prometheus":
		rec, err := NewPrometheusMetricsRecorder(cfg.Metrics.Namespace, reg)
		if err != nil {
			return nil, errors.Wrap(err, "register prometheus collectors")
		}
		opts = append(opts, WithMetricsRecorder(rec))
	case "none":
	default:
		return nil, errors.Newf("unknown metrics backend %q", cfg.Metrics.Backend)
	}
	return opts, nil
}
