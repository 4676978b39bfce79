package payment

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/driveline/auto-auction-backend/internal/domain/deposit"
	"github.com/driveline/auto-auction-backend/internal/domain/values"
	"github.com/driveline/auto-auction-backend/internal/infrastructure/config"
)

func testDeposit(t *testing.T) *deposit.Deposit {
	t.Helper()
	d, err := deposit.NewDeposit(uuid.New(), uuid.New(), values.MustNewMoney(50_000, "USD"))
	require.NoError(t, err)
	return d
}

func newGateway(t *testing.T, url string) *Gateway {
	t.Helper()
	return NewGateway(&config.PaymentConfig{
		BaseURL: url,
		APIKey:  "test-key",
		Timeout: 2 * time.Second,
	}, zaptest.NewLogger(t))
}

func TestGateway_AuthorizeHold(t *testing.T) {
	d := testDeposit(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/holds", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var body holdRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, d.ID.String(), body.HoldID)
		assert.Equal(t, int64(50_000), body.MinorUnits)
		assert.Equal(t, "USD", body.Currency)

		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	err := newGateway(t, srv.URL).AuthorizeHold(t.Context(), d)
	require.NoError(t, err)
}

func TestGateway_ReleaseAndCapturePaths(t *testing.T) {
	d := testDeposit(t)
	var paths []string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	g := newGateway(t, srv.URL)
	require.NoError(t, g.ReleaseHold(t.Context(), d))
	require.NoError(t, g.CaptureHold(t.Context(), d))

	assert.Equal(t, []string{
		"/v1/holds/" + d.ID.String() + "/void",
		"/v1/holds/" + d.ID.String() + "/capture",
	}, paths)
}

func TestGateway_SurfacesProviderErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"card_declined"}`, http.StatusPaymentRequired)
	}))
	defer srv.Close()

	err := newGateway(t, srv.URL).AuthorizeHold(t.Context(), testDeposit(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "402")
}
