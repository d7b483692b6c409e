package metrics

import (
	"github.com/hiyocord/hiyocord-nexus/common"
	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels shared by the gateway counters.
const (
	OutcomeForwarded     = "forwarded"
	OutcomeNotRegistered = "not_registered"
	OutcomePing          = "ping"
	OutcomeFailed        = "failed"
	OutcomeDenied        = "denied"
	OutcomeCompleted     = "completed"
	OutcomeDeadLettered  = "dead_lettered"
)

var (
	interactionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: common.PackageName,
		Name:      "interactions_total",
		Help:      "Discord interactions received, by routing outcome.",
	}, []string{"outcome"})

	proxyRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: common.PackageName,
		Name:      "discord_proxy_requests_total",
		Help:      "Worker calls to the Discord API proxy, by outcome.",
	}, []string{"outcome"})

	authFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: common.PackageName,
		Name:      "authentication_failures_total",
		Help:      "Rejected request signatures, by surface.",
	}, []string{"surface"})

	commandSyncTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: common.PackageName,
		Name:      "command_sync_tasks_total",
		Help:      "Discord command re-registration tasks, by final state.",
	}, []string{"outcome"})

	commandSyncQueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: common.PackageName,
		Name:      "command_sync_queue_depth",
		Help:      "Command sync tasks waiting to run.",
	})

	commandSyncDeadLetters = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: common.PackageName,
		Name:      "command_sync_dead_letters",
		Help:      "Failed command sync tasks currently retained in the dead-letter list.",
	})
)

func gatewayCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		interactionsTotal,
		proxyRequestsTotal,
		authFailuresTotal,
		commandSyncTotal,
		commandSyncQueueDepth,
		commandSyncDeadLetters,
	}
}

func RecordInteraction(outcome string) {
	interactionsTotal.WithLabelValues(outcome).Inc()
}

func RecordProxyRequest(outcome string) {
	proxyRequestsTotal.WithLabelValues(outcome).Inc()
}

func RecordAuthFailure(surface string) {
	authFailuresTotal.WithLabelValues(surface).Inc()
}

func RecordCommandSync(outcome string) {
	commandSyncTotal.WithLabelValues(outcome).Inc()
}

func SetCommandSyncQueueDepth(n int) {
	commandSyncQueueDepth.Set(float64(n))
}

func SetCommandSyncDeadLetters(n int) {
	commandSyncDeadLetters.Set(float64(n))
}
