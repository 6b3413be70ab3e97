package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for the Pidro room server.
// Declared in one package so every actor (Room Manager, Game Coordinator,
// Bot Manager, PubSub fabric) shares a single registry without import
// cycles back into the packages that own the business logic.
//
// Naming convention: namespace_subsystem_name
// - namespace: pidro (application-level grouping)
// - subsystem: room, game, bot, pubsub, circuit_breaker, rate_limit, redis, transport
// - name: specific metric (rooms_active, actions_total, etc.)

var (
	// ActiveRooms tracks the current number of rooms known to the Room Manager.
	ActiveRooms = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "pidro",
		Subsystem: "room",
		Name:      "rooms_active",
		Help:      "Current number of rooms, by status",
	}, []string{"status"})

	// RoomOccupants tracks seated player count per room.
	RoomOccupants = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "pidro",
		Subsystem: "room",
		Name:      "occupants_count",
		Help:      "Number of occupied seats in each room",
	}, []string{"room_code"})

	// RoomManagerRequests tracks every request handled by the Room Manager
	// actor, by operation and result.
	RoomManagerRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pidro",
		Subsystem: "room",
		Name:      "manager_requests_total",
		Help:      "Total Room Manager requests processed",
	}, []string{"operation", "result"})

	// DisconnectTimersActive tracks outstanding disconnect-grace timers.
	DisconnectTimersActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "pidro",
		Subsystem: "room",
		Name:      "disconnect_timers_active",
		Help:      "Current number of pending disconnect/removal grace timers",
	})

	// ActiveGames tracks the number of live Game Coordinators under the
	// Game Supervisor.
	ActiveGames = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "pidro",
		Subsystem: "game",
		Name:      "coordinators_active",
		Help:      "Current number of active Game Coordinator actors",
	})

	// GameActionsTotal tracks actions processed by Game Coordinators.
	GameActionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pidro",
		Subsystem: "game",
		Name:      "actions_total",
		Help:      "Total actions applied by Game Coordinators",
	}, []string{"kind", "result"})

	// GameStateSequence exposes the last published state_update sequence
	// number per room, useful for spotting a stalled coordinator.
	GameStateSequence = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "pidro",
		Subsystem: "game",
		Name:      "state_sequence",
		Help:      "Last state_update sequence number published on game:<code>",
	}, []string{"room_code"})

	// BotsActive tracks currently running Bot Player actors.
	BotsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "pidro",
		Subsystem: "bot",
		Name:      "players_active",
		Help:      "Current number of running Bot Player actors",
	})

	// BotActionsTotal tracks actions submitted by bots, by result.
	BotActionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pidro",
		Subsystem: "bot",
		Name:      "actions_total",
		Help:      "Total actions submitted by Bot Players",
	}, []string{"result"})

	// BotStaleTimersTotal counts pending-action timers discarded because a
	// newer state arrived before they fired.
	BotStaleTimersTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pidro",
		Subsystem: "bot",
		Name:      "stale_timers_total",
		Help:      "Total bot action timers discarded as stale on fire",
	})

	// PubsubMessagesPublished counts messages published per topic kind.
	PubsubMessagesPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pidro",
		Subsystem: "pubsub",
		Name:      "messages_published_total",
		Help:      "Total messages published, by topic kind",
	}, []string{"topic_kind"})

	// PubsubMessagesDropped counts messages dropped because a subscriber's
	// buffer was full; subscribers reconcile by re-fetching state on
	// resubscribe, so a drop is tolerable but worth watching.
	PubsubMessagesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pidro",
		Subsystem: "pubsub",
		Name:      "messages_dropped_total",
		Help:      "Total messages dropped for a slow or offline subscriber, by topic kind",
	}, []string{"topic_kind"})

	// PubsubSubscribers tracks live subscriber counts per topic kind.
	PubsubSubscribers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "pidro",
		Subsystem: "pubsub",
		Name:      "subscribers",
		Help:      "Current number of subscribers, by topic kind",
	}, []string{"topic_kind"})

	// CircuitBreakerState tracks the current state of a named circuit
	// breaker. 0: Closed (Healthy), 1: Open (Failure), 2: Half-Open (Recovering)
	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "pidro",
		Subsystem: "circuit_breaker",
		Name:      "state",
		Help:      "Current state of the circuit breaker (0: Closed, 1: Open, 2: Half-Open)",
	}, []string{"service"})

	// CircuitBreakerFailures tracks the total number of requests rejected
	// by a circuit breaker.
	CircuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pidro",
		Subsystem: "circuit_breaker",
		Name:      "failures_total",
		Help:      "Total requests rejected by the circuit breaker",
	}, []string{"service"})

	// RateLimitExceeded tracks requests rejected by the transport rate limiter.
	RateLimitExceeded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pidro",
		Subsystem: "rate_limit",
		Name:      "exceeded_total",
		Help:      "Total number of requests that exceeded the rate limit",
	}, []string{"endpoint", "reason"})

	// RateLimitRequests tracks every request checked against the rate limiter.
	RateLimitRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pidro",
		Subsystem: "rate_limit",
		Name:      "requests_total",
		Help:      "Total number of requests checked against the rate limiter",
	}, []string{"endpoint"})

	// RedisOperationsTotal tracks dev-monitor bridge Redis operations.
	RedisOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pidro",
		Subsystem: "redis",
		Name:      "operations_total",
		Help:      "Total number of Redis operations performed by the dev-monitor bridge",
	}, []string{"operation", "status"})

	// RedisOperationDuration tracks dev-monitor bridge Redis operation latency.
	RedisOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "pidro",
		Subsystem: "redis",
		Name:      "operation_duration_seconds",
		Help:      "Duration of dev-monitor bridge Redis operations",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})

	// WebSocketConnections tracks active transport-layer WS connections.
	WebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "pidro",
		Subsystem: "transport",
		Name:      "websocket_connections_active",
		Help:      "Current number of active WebSocket connections",
	})
)
