package metrics

import (
	"context"
	"time"

	lservices "github.com/lamassuiot/rpki-core/backend/pkg/services"
	"github.com/lamassuiot/rpki-core/core/pkg/errs"
	"github.com/lamassuiot/rpki-core/core/pkg/models"
	"github.com/lamassuiot/rpki-core/core/pkg/services"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutcomeApplied  = "applied"
	OutcomeNoEffect = "no_effect"
)

type CommandMetrics struct {
	commands *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	events   *prometheus.CounterVec
}

func NewCommandMetrics(registerer prometheus.Registerer) (*CommandMetrics, error) {
	m := &CommandMetrics{
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rpki",
			Subsystem: "ca",
			Name:      "commands_total",
			Help:      "Handled commands by type and outcome. Rejected commands carry the error kind as outcome.",
		}, []string{"command", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "rpki",
			Subsystem: "ca",
			Name:      "command_duration_seconds",
			Help:      "Time spent handling a command, lock waits included.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"command"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rpki",
			Subsystem: "ca",
			Name:      "events_total",
			Help:      "Domain events emitted by applied commands.",
		}, []string{"type"}),
	}

	for _, c := range []prometheus.Collector{m.commands, m.latency, m.events} {
		if err := registerer.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

func NewCommandInstrumentingMiddleware(m *CommandMetrics) lservices.CommandMiddleware {
	return func(next services.CommandService) services.CommandService {
		return &instrumentingMiddleware{
			metrics: m,
			next:    next,
		}
	}
}

type instrumentingMiddleware struct {
	metrics *CommandMetrics
	next    services.CommandService
}

func (mw *instrumentingMiddleware) Handle(ctx context.Context, cmd services.Command) (result *models.CommandResult, err error) {
	defer func(begin time.Time) {
		command := string(cmd.CommandType())
		mw.metrics.latency.WithLabelValues(command).Observe(time.Since(begin).Seconds())
		mw.metrics.commands.WithLabelValues(command, outcome(result, err)).Inc()

		if err == nil && result != nil {
			for _, ev := range result.Events {
				mw.metrics.events.WithLabelValues(string(ev.Type)).Inc()
			}
		}
	}(time.Now())

	return mw.next.Handle(ctx, cmd)
}

func outcome(result *models.CommandResult, err error) string {
	switch {
	case err != nil:
		return errs.KindOf(err).String()
	case result != nil && result.HasEffect:
		return OutcomeApplied
	default:
		return OutcomeNoEffect
	}
}
