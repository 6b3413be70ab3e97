package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"

	"github.com/pidro/roomserver/internal/metrics"
)

// Envelope is the wire format a dev monitor receives over Redis. It mirrors
// the in-process Message but is self-contained JSON, since the monitor is
// an out-of-process reader with no access to Go types.
type Envelope struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Seq     uint64          `json:"seq,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// RedisBridge mirrors selected Fabric topics onto Redis channels for
// out-of-process dev/admin monitors. It is strictly a fan-out mirror, never
// a second source of truth: the server is the single-node authority, so
// nothing ever reads state back in from Redis. A publish failure here is
// logged and swallowed; a dev monitor missing an update is never allowed
// to affect gameplay.
type RedisBridge struct {
	client *redis.Client
	cb     *gobreaker.CircuitBreaker
}

// NewRedisBridge dials addr and verifies connectivity once at startup.
func NewRedisBridge(addr, password string) (*RedisBridge, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           0,
		DialTimeout:  10 * time.Second,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("dev-monitor bridge: connect to redis: %w", err)
	}

	st := gobreaker.Settings{
		Name:        "pubsub-dev-monitor",
		MaxRequests: 5,
		Interval:    time.Minute,
		Timeout:     15 * time.Second,
		OnStateChange: func(name string, from, to gobreaker.State) {
			var v float64
			switch to {
			case gobreaker.StateClosed:
				v = 0
			case gobreaker.StateOpen:
				v = 1
			case gobreaker.StateHalfOpen:
				v = 2
			}
			metrics.CircuitBreakerState.WithLabelValues(name).Set(v)
		},
	}

	slog.Info("dev-monitor bridge connected", "addr", addr)
	return &RedisBridge{client: rdb, cb: gobreaker.NewCircuitBreaker(st)}, nil
}

func channelFor(topic Topic) string {
	return "pidro:" + string(topic)
}

// Publish forwards a single message to the corresponding Redis channel.
func (b *RedisBridge) Publish(ctx context.Context, msg Message) error {
	if b == nil || b.client == nil {
		return nil
	}

	start := time.Now()
	_, err := b.cb.Execute(func() (any, error) {
		payload, err := json.Marshal(msg.Payload)
		if err != nil {
			return nil, fmt.Errorf("marshal payload: %w", err)
		}
		env := Envelope{Topic: string(msg.Topic), Event: msg.Event, Seq: msg.Seq, Payload: payload}
		data, err := json.Marshal(env)
		if err != nil {
			return nil, fmt.Errorf("marshal envelope: %w", err)
		}
		return nil, b.client.Publish(ctx, channelFor(msg.Topic), data).Err()
	})
	metrics.RedisOperationDuration.WithLabelValues("publish").Observe(time.Since(start).Seconds())

	if err != nil {
		if err == gobreaker.ErrOpenState {
			metrics.CircuitBreakerFailures.WithLabelValues("pubsub-dev-monitor").Inc()
			metrics.RedisOperationsTotal.WithLabelValues("publish", "circuit_open").Inc()
			slog.Warn("dev-monitor bridge circuit open, dropping publish", "topic", msg.Topic)
			return nil
		}
		metrics.RedisOperationsTotal.WithLabelValues("publish", "error").Inc()
		slog.Error("dev-monitor bridge publish failed", "topic", msg.Topic, "error", err)
		return err
	}

	metrics.RedisOperationsTotal.WithLabelValues("publish", "success").Inc()
	return nil
}

// Mirror subscribes to topic on fab and forwards every message to Redis
// until ctx is cancelled. Call in its own goroutine; it blocks until ctx is
// done or the subscription channel closes.
func (b *RedisBridge) Mirror(ctx context.Context, fab *Fabric, topic Topic) {
	sub := fab.Subscribe(topic)
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.C:
			if !ok {
				return
			}
			if err := b.Publish(ctx, msg); err != nil {
				slog.Error("dev-monitor mirror publish failed", "topic", topic, "error", err)
			}
		}
	}
}

// MirrorAll starts a Mirror goroutine per topic and waits for ctx
// cancellation before returning.
func (b *RedisBridge) MirrorAll(ctx context.Context, fab *Fabric, topics []Topic) {
	var wg sync.WaitGroup
	for _, topic := range topics {
		wg.Add(1)
		go func(t Topic) {
			defer wg.Done()
			b.Mirror(ctx, fab, t)
		}(topic)
	}
	wg.Wait()
}

// Ping checks Redis connectivity; used by the health package.
func (b *RedisBridge) Ping(ctx context.Context) error {
	if b == nil || b.client == nil {
		return nil
	}
	_, err := b.cb.Execute(func() (any, error) {
		return nil, b.client.Ping(ctx).Err()
	})
	if err != nil && err == gobreaker.ErrOpenState {
		metrics.CircuitBreakerFailures.WithLabelValues("pubsub-dev-monitor").Inc()
	}
	return err
}

// Close releases the underlying Redis connection.
func (b *RedisBridge) Close() error {
	if b == nil || b.client == nil {
		return nil
	}
	return b.client.Close()
}
