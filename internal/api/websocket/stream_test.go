package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/driveline/auto-auction-backend/internal/infrastructure/events"
)

func setupStream(t *testing.T) (*events.RedisTransport, *httptest.Server) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	logger := zaptest.NewLogger(t)
	transport := events.NewRedisTransport(client, logger)

	mux := http.NewServeMux()
	mux.Handle("GET /ws/listings/{id}", NewStreamer(transport, logger))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return transport, srv
}

func wsURL(srv *httptest.Server, listingID uuid.UUID) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/listings/" + listingID.String()
}

func TestStreamer_DeliversListingEvents(t *testing.T) {
	transport, srv := setupStream(t)
	listingID := uuid.New()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, listingID), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	// Pub/sub delivery only reaches subscribers registered before the
	// publish; give the server a moment to attach.
	time.Sleep(100 * time.Millisecond)

	ev := events.NewEvent(events.TypeBidPlaced, listingID, map[string]interface{}{
		"amount": 105000,
	})
	require.NoError(t, transport.Publish(t.Context(), ev))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, frame, err := conn.ReadMessage()
	require.NoError(t, err)

	var got events.Event
	require.NoError(t, json.Unmarshal(frame, &got))
	assert.Equal(t, events.TypeBidPlaced, got.Type)
	assert.Equal(t, listingID, got.ListingID)
}

func TestStreamer_IgnoresOtherListings(t *testing.T) {
	transport, srv := setupStream(t)
	watched := uuid.New()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, watched), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	time.Sleep(100 * time.Millisecond)

	other := events.NewEvent(events.TypeBidPlaced, uuid.New(), nil)
	require.NoError(t, transport.Publish(t.Context(), other))
	wanted := events.NewEvent(events.TypeAuctionExtended, watched, nil)
	require.NoError(t, transport.Publish(t.Context(), wanted))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, frame, err := conn.ReadMessage()
	require.NoError(t, err)

	var got events.Event
	require.NoError(t, json.Unmarshal(frame, &got))
	assert.Equal(t, events.TypeAuctionExtended, got.Type)
	assert.Equal(t, watched, got.ListingID)
}

func TestStreamer_RejectsBadListingID(t *testing.T) {
	_, srv := setupStream(t)

	resp, err := http.Get(srv.URL + "/ws/listings/not-a-uuid")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
