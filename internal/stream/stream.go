// Package stream mirrors engine events into Redis streams so other
// processes can follow or replay a run.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ShayCichocki/fractal/internal/engine"
)

// KeyPrefix is prepended to the run ID to form the stream key.
const KeyPrefix = "fractal:events:"

// DefaultMaxLen is the approximate cap on entries kept per stream.
const DefaultMaxLen = 10000

// publishTimeout bounds a single XADD issued from an event handler.
const publishTimeout = 2 * time.Second

// Key returns the stream key of a run.
func Key(runID string) string {
	return KeyPrefix + runID
}

// Dial connects to Redis at addr and verifies the connection.
func Dial(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", addr, err)
	}
	return client, nil
}

// Publisher appends engine events to per-run Redis streams.
type Publisher struct {
	client redis.UniversalClient
	maxLen int64
	logger *zap.Logger
}

// NewPublisher creates a Publisher. maxLen <= 0 uses DefaultMaxLen.
func NewPublisher(client redis.UniversalClient, maxLen int64, logger *zap.Logger) *Publisher {
	if maxLen <= 0 {
		maxLen = DefaultMaxLen
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{
		client: client,
		maxLen: maxLen,
		logger: logger.With(zap.String("component", "stream")),
	}
}

// Publish appends one event to the run's stream and returns the entry ID.
func (p *Publisher) Publish(ctx context.Context, runID string, e engine.Event) (string, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("marshal event: %w", err)
	}
	id, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: Key(runID),
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"type":    string(e.Type),
			"run":     strconv.Itoa(e.Run),
			"payload": string(payload),
			"ts_nano": strconv.FormatInt(e.Timestamp.UnixNano(), 10),
		},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("xadd %s: %w", Key(runID), err)
	}
	return id, nil
}

// Handler returns an event handler that publishes to the run's stream.
// Failures are logged; they never interrupt the run.
func (p *Publisher) Handler(runID string) engine.EventHandler {
	return func(e engine.Event) {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if _, err := p.Publish(ctx, runID, e); err != nil {
			p.logger.Warn("failed to publish event",
				zap.String("run_id", runID),
				zap.String("type", string(e.Type)),
				zap.Error(err),
			)
		}
	}
}

// Replay returns every event still held in the run's stream, oldest first.
func (p *Publisher) Replay(ctx context.Context, runID string) ([]engine.Event, error) {
	msgs, err := p.client.XRange(ctx, Key(runID), "-", "+").Result()
	if err != nil {
		return nil, fmt.Errorf("xrange %s: %w", Key(runID), err)
	}

	events := make([]engine.Event, 0, len(msgs))
	for _, m := range msgs {
		raw, ok := m.Values["payload"].(string)
		if !ok {
			p.logger.Debug("skipping stream entry without payload", zap.String("id", m.ID))
			continue
		}
		var e engine.Event
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, fmt.Errorf("decode entry %s: %w", m.ID, err)
		}
		events = append(events, e)
	}
	return events, nil
}

// Expire sets a time to live on the run's stream.
func (p *Publisher) Expire(ctx context.Context, runID string, ttl time.Duration) error {
	if err := p.client.Expire(ctx, Key(runID), ttl).Err(); err != nil {
		return fmt.Errorf("expire %s: %w", Key(runID), err)
	}
	return nil
}
