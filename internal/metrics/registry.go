package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/driveline/auto-auction-backend/internal/domain/bid"
)

// Registry holds the auction domain metrics
type Registry struct {
	meter metric.Meter

	// Bidding
	BidAdmissionDuration metric.Float64Histogram
	BidAdmittedCounter   metric.Int64Counter
	BidRejectedCounter   metric.Int64Counter
	AdmissionRetries     metric.Int64Counter
	AuctionExtensions    metric.Int64Counter

	// Deposits
	DepositHoldCounter    metric.Int64Counter
	DepositReleaseCounter metric.Int64Counter
	DepositCaptureCounter metric.Int64Counter
	PaymentFailureCounter metric.Int64Counter

	// API
	APIRequestDuration metric.Float64Histogram
	APIRequestCounter  metric.Int64Counter
}

// NewRegistry creates a registry backed by the global meter provider
func NewRegistry(meterName string) (*Registry, error) {
	r := &Registry{meter: otel.Meter(meterName)}

	if err := r.initBiddingMetrics(); err != nil {
		return nil, err
	}
	if err := r.initDepositMetrics(); err != nil {
		return nil, err
	}
	if err := r.initAPIMetrics(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Registry) initBiddingMetrics() error {
	var err error

	r.BidAdmissionDuration, err = r.meter.Float64Histogram(
		"auction.bid.admission_duration",
		metric.WithDescription("Duration of bid admission in milliseconds"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(0.5, 1, 5, 10, 25, 50, 100, 250, 500, 1000),
	)
	if err != nil {
		return err
	}

	r.BidAdmittedCounter, err = r.meter.Int64Counter(
		"auction.bid.admitted_total",
		metric.WithDescription("Total bids admitted"),
	)
	if err != nil {
		return err
	}

	r.BidRejectedCounter, err = r.meter.Int64Counter(
		"auction.bid.rejected_total",
		metric.WithDescription("Total bids rejected, by reason"),
	)
	if err != nil {
		return err
	}

	r.AdmissionRetries, err = r.meter.Int64Counter(
		"auction.bid.admission_retries_total",
		metric.WithDescription("Total optimistic-concurrency retries during bid admission"),
	)
	if err != nil {
		return err
	}

	r.AuctionExtensions, err = r.meter.Int64Counter(
		"auction.listing.extensions_total",
		metric.WithDescription("Total anti-snipe end-time extensions"),
	)
	return err
}

func (r *Registry) initDepositMetrics() error {
	var err error

	r.DepositHoldCounter, err = r.meter.Int64Counter(
		"auction.deposit.holds_total",
		metric.WithDescription("Total deposit holds placed"),
	)
	if err != nil {
		return err
	}

	r.DepositReleaseCounter, err = r.meter.Int64Counter(
		"auction.deposit.releases_total",
		metric.WithDescription("Total deposit releases"),
	)
	if err != nil {
		return err
	}

	r.DepositCaptureCounter, err = r.meter.Int64Counter(
		"auction.deposit.captures_total",
		metric.WithDescription("Total deposit captures"),
	)
	if err != nil {
		return err
	}

	r.PaymentFailureCounter, err = r.meter.Int64Counter(
		"auction.deposit.payment_failures_total",
		metric.WithDescription("Total payment provider failures"),
	)
	return err
}

func (r *Registry) initAPIMetrics() error {
	var err error

	r.APIRequestDuration, err = r.meter.Float64Histogram(
		"auction.api.request_duration",
		metric.WithDescription("Duration of API requests in milliseconds"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000),
	)
	if err != nil {
		return err
	}

	r.APIRequestCounter, err = r.meter.Int64Counter(
		"auction.api.requests_total",
		metric.WithDescription("Total API requests, by method, path and status"),
	)
	return err
}

// RecordBidAdmitted counts an admitted bid by source
func (r *Registry) RecordBidAdmitted(ctx context.Context, b *bid.Bid) {
	r.BidAdmittedCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("source", b.Source.String()),
	))
}

// RecordBidRejected counts a rejected bid by reason
func (r *Registry) RecordBidRejected(ctx context.Context, reason string) {
	r.BidRejectedCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("reason", reason),
	))
}

// RecordAdmissionRetry counts one price-conflict retry
func (r *Registry) RecordAdmissionRetry(ctx context.Context) {
	r.AdmissionRetries.Add(ctx, 1)
}

// RecordAuctionExtended counts one anti-snipe extension
func (r *Registry) RecordAuctionExtended(ctx context.Context) {
	r.AuctionExtensions.Add(ctx, 1)
}

// RecordAdmissionDuration records how long one bid admission took
func (r *Registry) RecordAdmissionDuration(ctx context.Context, d time.Duration) {
	r.BidAdmissionDuration.Record(ctx, float64(d.Microseconds())/1000.0)
}

// RecordDepositHold counts a placed hold
func (r *Registry) RecordDepositHold(ctx context.Context) {
	r.DepositHoldCounter.Add(ctx, 1)
}

// RecordDepositRelease counts a release
func (r *Registry) RecordDepositRelease(ctx context.Context) {
	r.DepositReleaseCounter.Add(ctx, 1)
}

// RecordDepositCapture counts a capture
func (r *Registry) RecordDepositCapture(ctx context.Context) {
	r.DepositCaptureCounter.Add(ctx, 1)
}

// RecordPaymentFailure counts a provider failure by operation
func (r *Registry) RecordPaymentFailure(ctx context.Context, operation string) {
	r.PaymentFailureCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
	))
}

// RecordAPIRequest records one handled HTTP request
func (r *Registry) RecordAPIRequest(ctx context.Context, method, path string, status int, d time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("path", path),
		attribute.Int("status", status),
	)
	r.APIRequestCounter.Add(ctx, 1, attrs)
	r.APIRequestDuration.Record(ctx, float64(d.Microseconds())/1000.0, attrs)
}
