package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// PollsTotal counts poll outcomes per endpoint class.
	PollsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mazda_bridge_polls_total",
		Help: "Number of vehicle polls by endpoint class and result.",
	}, []string{"endpoint", "result"})

	// SweepsTotal counts full account sweeps, including rejected overlaps.
	SweepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mazda_bridge_sweeps_total",
		Help: "Number of poll sweeps by endpoint class and result.",
	}, []string{"endpoint", "result"})

	// CommandsTotal counts dispatched commands by kind and result.
	CommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mazda_bridge_commands_total",
		Help: "Number of dispatched remote commands by kind and result.",
	}, []string{"kind", "result"})

	// CommandChecksTotal counts command status queries by mapped state.
	CommandChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mazda_bridge_command_checks_total",
		Help: "Number of command status checks by resulting state.",
	}, []string{"state"})
)

// Handler exposes the default prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
