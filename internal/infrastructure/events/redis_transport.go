package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/driveline/auto-auction-backend/internal/infrastructure/telemetry"
)

var transportTracer = telemetry.Tracer("infrastructure.events")

const (
	// FirehoseChannel receives every event for external collaborators
	FirehoseChannel = "auction.events"
	// listingChannelPrefix scopes per-listing channels for the price push hub
	listingChannelPrefix = "auction.listing."
)

// ListingChannel returns the pub/sub channel for one listing's events
func ListingChannel(listingID string) string {
	return listingChannelPrefix + listingID
}

// RedisTransport publishes event envelopes over Redis pub/sub: once to the
// firehose channel and once to the listing-scoped channel browsers subscribe
// to through the websocket hub.
type RedisTransport struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisTransport creates a transport over an existing Redis client
func NewRedisTransport(client *redis.Client, logger *zap.Logger) *RedisTransport {
	return &RedisTransport{
		client: client,
		logger: logger,
	}
}

// Publish implements Transport
func (t *RedisTransport) Publish(ctx context.Context, e Event) (err error) {
	ctx, span := telemetry.StartPublishSpan(ctx, transportTracer, ListingChannel(e.ListingID.String()))
	defer func() {
		telemetry.WithSpanError(span, err)
		span.End()
	}()

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if err := t.client.Publish(ctx, FirehoseChannel, data).Err(); err != nil {
		return fmt.Errorf("publish firehose: %w", err)
	}
	if err := t.client.Publish(ctx, ListingChannel(e.ListingID.String()), data).Err(); err != nil {
		return fmt.Errorf("publish listing channel: %w", err)
	}
	return nil
}

// Subscribe returns a subscription to one listing's event channel
func (t *RedisTransport) Subscribe(ctx context.Context, listingID string) *redis.PubSub {
	return t.client.Subscribe(ctx, ListingChannel(listingID))
}

// Close implements Transport. The underlying client is shared and closed by
// its owner.
func (t *RedisTransport) Close() error {
	return nil
}
