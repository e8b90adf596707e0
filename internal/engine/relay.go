package engine

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/Priya8975/quakewatch/internal/domain"
	"github.com/redis/go-redis/v9"
)

// Relay mirrors broadcast messages onto redis pub/sub so processes outside
// this one (a push-notification sender, say) can follow the feed without
// holding a websocket open.
type Relay struct {
	redisClient *redis.Client
	prefix      string
	timeout     time.Duration
	logger      *slog.Logger
}

func NewRelay(redisClient *redis.Client, prefix string, logger *slog.Logger) *Relay {
	if prefix == "" {
		prefix = "earthquakes"
	}
	return &Relay{
		redisClient: redisClient,
		prefix:      prefix,
		timeout:     2 * time.Second,
		logger:      logger,
	}
}

// SnapshotChannel is the channel full snapshots are published on.
func (r *Relay) SnapshotChannel() string {
	return r.prefix + ":snapshot"
}

// NewEventChannel is the channel new-earthquake notifications are published on.
func (r *Relay) NewEventChannel() string {
	return r.prefix + ":new"
}

func (r *Relay) PublishSnapshot(events []domain.Earthquake) {
	r.publish(r.SnapshotChannel(), domain.Message{Type: domain.MessageSnapshot, Data: events})
}

func (r *Relay) PublishNewEvent(event domain.Earthquake) {
	r.publish(r.NewEventChannel(), domain.Message{Type: domain.MessageNewEvent, Data: event})
}

func (r *Relay) publish(channel string, msg domain.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		r.logger.Error("failed to marshal relay message", "error", err, "channel", channel)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	receivers, err := r.redisClient.Publish(ctx, channel, data).Result()
	if err != nil {
		r.logger.Warn("relay publish failed", "error", err, "channel", channel)
		return
	}

	r.logger.Debug("relay published", "channel", channel, "receivers", receivers)
}
