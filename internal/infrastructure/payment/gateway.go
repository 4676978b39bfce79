package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/driveline/auto-auction-backend/internal/domain/deposit"
	"github.com/driveline/auto-auction-backend/internal/infrastructure/config"
)

// Gateway is the HTTP client for the payment provider backing deposit
// holds. Every call is keyed by the deposit ID so provider-side retries
// are idempotent.
type Gateway struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *zap.Logger
}

func NewGateway(cfg *config.PaymentConfig, logger *zap.Logger) *Gateway {
	return &Gateway{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: cfg.Timeout},
		logger:  logger,
	}
}

type holdRequest struct {
	HoldID     string `json:"hold_id"`
	UserID     string `json:"user_id"`
	MinorUnits int64  `json:"minor_units"`
	Currency   string `json:"currency"`
}

// AuthorizeHold places the refundable authorization backing a deposit.
func (g *Gateway) AuthorizeHold(ctx context.Context, d *deposit.Deposit) error {
	body := holdRequest{
		HoldID:     d.ID.String(),
		UserID:     d.UserID.String(),
		MinorUnits: d.Amount.MinorUnits(),
		Currency:   d.Amount.Currency(),
	}
	return g.post(ctx, "/v1/holds", body)
}

// ReleaseHold voids the authorization.
func (g *Gateway) ReleaseHold(ctx context.Context, d *deposit.Deposit) error {
	return g.post(ctx, fmt.Sprintf("/v1/holds/%s/void", d.ID), nil)
}

// CaptureHold settles the authorization.
func (g *Gateway) CaptureHold(ctx context.Context, d *deposit.Deposit) error {
	return g.post(ctx, fmt.Sprintf("/v1/holds/%s/capture", d.ID), nil)
}

func (g *Gateway) post(ctx context.Context, path string, body interface{}) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return fmt.Errorf("encoding payment request: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, &buf)
	if err != nil {
		return fmt.Errorf("building payment request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("payment gateway unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		g.logger.Warn("payment gateway rejected request",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
		)
		return fmt.Errorf("payment gateway returned %d: %s", resp.StatusCode, string(detail))
	}
	return nil
}
