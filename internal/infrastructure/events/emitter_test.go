package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/driveline/auto-auction-backend/internal/domain/bid"
	"github.com/driveline/auto-auction-backend/internal/domain/values"
)

func setupTransport(t *testing.T) (*RedisTransport, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewRedisTransport(client, zaptest.NewLogger(t)), client
}

func TestRedisTransport_Publish(t *testing.T) {
	transport, client := setupTransport(t)
	ctx := context.Background()

	listingID := uuid.New()
	sub := client.Subscribe(ctx, ListingChannel(listingID.String()))
	t.Cleanup(func() { sub.Close() })
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	ev := NewEvent(TypeAuctionExtended, listingID, map[string]interface{}{
		"new_end_at": time.Now().UTC(),
	})
	require.NoError(t, transport.Publish(ctx, ev))

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)

	var decoded Event
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &decoded))
	assert.Equal(t, TypeAuctionExtended, decoded.Type)
	assert.Equal(t, listingID, decoded.ListingID)
}

func TestEmitter_DeliversBidPlaced(t *testing.T) {
	transport, client := setupTransport(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	listingID := uuid.New()
	sub := client.Subscribe(ctx, FirehoseChannel)
	t.Cleanup(func() { sub.Close() })
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	emitter := NewEmitter(transport, zaptest.NewLogger(t))
	emitter.Start(ctx)

	amount := values.MustNewMoney(105000, values.USD)
	b := bid.NewBid(listingID, uuid.New(), amount, bid.SourceManual, time.Now().UTC())
	emitter.PublishBidPlaced(ctx, b, amount)

	recvCtx, recvCancel := context.WithTimeout(ctx, 2*time.Second)
	defer recvCancel()
	msg, err := sub.ReceiveMessage(recvCtx)
	require.NoError(t, err)

	var decoded Event
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &decoded))
	assert.Equal(t, TypeBidPlaced, decoded.Type)
	assert.Equal(t, listingID, decoded.ListingID)
	assert.EqualValues(t, 105000, decoded.Payload["new_price"])
}

func TestEmitter_DropsWhenQueueFull(t *testing.T) {
	// Emitter without a running drain worker: the queue fills up and the
	// overflow is dropped instead of blocking the caller.
	transport, _ := setupTransport(t)
	emitter := NewEmitter(transport, zaptest.NewLogger(t))

	listingID := uuid.New()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < emitterQueueSize+10; i++ {
			emitter.PublishAuctionExtended(context.Background(), listingID, time.Now())
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("emitter blocked the publishing path")
	}
}
