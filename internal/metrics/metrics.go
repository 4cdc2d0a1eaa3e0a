package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns its own registry so several bots (or tests) can coexist in one process.
type Metrics struct {
	registry      *prometheus.Registry
	commands      *prometheus.CounterVec
	transfers     *prometheus.CounterVec
	verifications *prometheus.CounterVec
	walletUp      prometheus.Gauge
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		commands: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "tipbot",
				Name:      "commands_total",
				Help:      "Commands handled, by outcome",
			},
			[]string{"command", "outcome"},
		),
		transfers: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "tipbot",
				Name:      "transfers_total",
				Help:      "Wallet transfers issued, by kind and result",
			},
			[]string{"kind", "result"},
		),
		verifications: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "tipbot",
				Name:      "verifications_total",
				Help:      "Identity checks, by result",
			},
			[]string{"result"},
		),
		walletUp: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "tipbot",
			Name:      "wallet_up",
			Help:      "Whether the last wallet probe succeeded",
		}),
	}
}

func (m *Metrics) Command(command, outcome string) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(command, outcome).Inc()
}

func (m *Metrics) Transfer(kind string, ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.transfers.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) Verification(result string) {
	if m == nil {
		return
	}
	m.verifications.WithLabelValues(result).Inc()
}

func (m *Metrics) WalletUp(up bool) {
	if m == nil {
		return
	}
	if up {
		m.walletUp.Set(1)
	} else {
		m.walletUp.Set(0)
	}
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
