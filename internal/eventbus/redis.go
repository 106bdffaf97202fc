/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/friendsincode/powerdown/internal/events"
)

// Channel is the Redis pub/sub channel carrying schedule lifecycle events.
const Channel = "powerdown.events"

// RedisBus mirrors the local event bus onto Redis so several hosts can watch
// each other's schedules. Remote events are relayed into the local bus.
type RedisBus struct {
	client *redis.Client
	local  *events.Bus
	nodeID string
	logger zerolog.Logger

	outbox chan []byte

	mu          sync.Mutex
	useFallback bool
	failCount   int
	maxFails    int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// RedisConfig contains Redis connection configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// MaxFailures consecutive publish errors switch the bus to local-only.
	MaxFailures int
}

// DefaultRedisConfig returns default Redis configuration.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		MaxFailures:  5,
	}
}

// NewRedisBus connects to Redis and starts mirroring. If Redis is unreachable
// the bus runs local-only.
func NewRedisBus(cfg RedisConfig, local *events.Bus, nodeID string, logger zerolog.Logger) *RedisBus {
	logger = logger.With().Str("component", "eventbus").Logger()
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}

	ctx, cancel := context.WithCancel(context.Background())
	rb := &RedisBus{
		local:    local,
		nodeID:   nodeID,
		logger:   logger,
		outbox:   make(chan []byte, 64),
		maxFails: cfg.MaxFailures,
		ctx:      ctx,
		cancel:   cancel,
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	pingCtx, pingCancel := context.WithTimeout(ctx, cfg.DialTimeout+time.Second)
	defer pingCancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn().Err(err).Str("addr", cfg.Addr).Msg("Redis connection failed, using in-memory fallback")
		_ = client.Close()
		rb.useFallback = true
		return rb
	}

	rb.client = client
	pubsub := client.Subscribe(ctx, Channel)

	rb.wg.Add(2)
	go rb.receiveMessages(pubsub)
	go rb.publishLoop()

	logger.Info().Str("addr", cfg.Addr).Str("node_id", nodeID).Msg("Redis event bus initialized")
	return rb
}

// Local returns the in-process bus that receives both local and relayed events.
func (rb *RedisBus) Local() *events.Bus {
	return rb.local
}

// Fallback reports whether the bus is running local-only.
func (rb *RedisBus) Fallback() bool {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.useFallback
}

// Publish delivers payload locally and queues it for Redis. It never blocks;
// when the queue is full the remote copy is dropped.
func (rb *RedisBus) Publish(eventType events.EventType, payload events.Payload) {
	rb.local.Publish(eventType, payload)

	if rb.Fallback() {
		return
	}

	data, err := marshalMessage(eventType, payload, rb.nodeID)
	if err != nil {
		rb.logger.Error().Err(err).Msg("failed to marshal Redis message")
		return
	}

	select {
	case rb.outbox <- data:
	default:
		rb.logger.Warn().Str("event_type", string(eventType)).Msg("Redis outbox full, dropping event")
	}
}

func (rb *RedisBus) publishLoop() {
	defer rb.wg.Done()

	for {
		select {
		case <-rb.ctx.Done():
			return
		case data := <-rb.outbox:
			if rb.Fallback() {
				continue
			}
			ctx, cancel := context.WithTimeout(rb.ctx, 2*time.Second)
			err := rb.client.Publish(ctx, Channel, data).Err()
			cancel()
			if err != nil {
				rb.logger.Error().Err(err).Msg("failed to publish to Redis")
				rb.handleFailure()
				continue
			}
			rb.mu.Lock()
			rb.failCount = 0
			rb.mu.Unlock()
		}
	}
}

func (rb *RedisBus) receiveMessages(pubsub *redis.PubSub) {
	defer rb.wg.Done()
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-rb.ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				rb.logger.Warn().Msg("Redis channel closed")
				rb.handleFailure()
				return
			}
			rb.relay([]byte(msg.Payload))
		}
	}
}

// relay forwards a remote event into the local bus. Our own messages are
// skipped.
func (rb *RedisBus) relay(data []byte) bool {
	msg, err := unmarshalMessage(data)
	if err != nil {
		rb.logger.Error().Err(err).Msg("failed to unmarshal Redis message")
		return false
	}
	if msg.NodeID == rb.nodeID {
		return false
	}

	payload := msg.Payload
	if payload == nil {
		payload = events.Payload{}
	}
	payload["node_id"] = msg.NodeID
	rb.local.Publish(msg.EventType, payload)

	rb.logger.Debug().
		Str("event_type", string(msg.EventType)).
		Str("source_node", msg.NodeID).
		Msg("relayed remote schedule event")
	return true
}

// Close stops mirroring and closes the Redis connection.
func (rb *RedisBus) Close() error {
	rb.cancel()
	rb.wg.Wait()

	if rb.client != nil {
		if err := rb.client.Close(); err != nil {
			return fmt.Errorf("close redis client: %w", err)
		}
	}
	rb.logger.Debug().Msg("Redis event bus closed")
	return nil
}

func (rb *RedisBus) handleFailure() {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.failCount++
	if rb.failCount >= rb.maxFails && !rb.useFallback {
		rb.logger.Warn().
			Int("fail_count", rb.failCount).
			Msg("Redis failure threshold reached, switching to in-memory fallback")
		rb.useFallback = true
	}
}

type redisMessage struct {
	EventType events.EventType `json:"event_type"`
	Payload   events.Payload   `json:"payload"`
	Timestamp time.Time        `json:"timestamp"`
	NodeID    string           `json:"node_id"`
}

func marshalMessage(eventType events.EventType, payload events.Payload, nodeID string) ([]byte, error) {
	return json.Marshal(redisMessage{
		EventType: eventType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
		NodeID:    nodeID,
	})
}

func unmarshalMessage(data []byte) (*redisMessage, error) {
	var msg redisMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("unmarshal redis message: %w", err)
	}
	return &msg, nil
}

var _ events.Publisher = (*RedisBus)(nil)
