package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/driveline/auto-auction-backend/internal/domain/bid"
	"github.com/driveline/auto-auction-backend/internal/domain/deposit"
	"github.com/driveline/auto-auction-backend/internal/domain/listing"
	"github.com/driveline/auto-auction-backend/internal/domain/values"
)

// StaticDepositChecker answers the bid eligibility predicate from a fixed set
type StaticDepositChecker struct {
	mu    sync.Mutex
	holds map[[2]uuid.UUID]bool
}

// NewStaticDepositChecker creates a checker with no holds
func NewStaticDepositChecker() *StaticDepositChecker {
	return &StaticDepositChecker{holds: make(map[[2]uuid.UUID]bool)}
}

// Grant marks a (user, listing) pair as holding a deposit
func (c *StaticDepositChecker) Grant(userID, listingID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.holds[[2]uuid.UUID{userID, listingID}] = true
}

// Revoke removes the pair's hold
func (c *StaticDepositChecker) Revoke(userID, listingID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.holds, [2]uuid.UUID{userID, listingID})
}

func (c *StaticDepositChecker) HasActiveHold(ctx context.Context, userID, listingID uuid.UUID) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.holds[[2]uuid.UUID{userID, listingID}], nil
}

// PublishedBid is one captured bid_placed event
type PublishedBid struct {
	Bid      *bid.Bid
	NewPrice values.Money
}

// PublishedExtension is one captured auction_extended event
type PublishedExtension struct {
	ListingID uuid.UUID
	NewEndAt  time.Time
}

// CapturingPublisher records published events for assertions. It satisfies
// the publisher interfaces of all three services.
type CapturingPublisher struct {
	mu         sync.Mutex
	BidsPlaced []PublishedBid
	Extensions []PublishedExtension
	Finished   []*listing.Listing
	Captured   []*deposit.Deposit
}

// NewCapturingPublisher creates an empty capturing publisher
func NewCapturingPublisher() *CapturingPublisher {
	return &CapturingPublisher{}
}

func (p *CapturingPublisher) PublishBidPlaced(ctx context.Context, b *bid.Bid, newPrice values.Money) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.BidsPlaced = append(p.BidsPlaced, PublishedBid{Bid: b, NewPrice: newPrice})
}

func (p *CapturingPublisher) PublishAuctionExtended(ctx context.Context, listingID uuid.UUID, newEndAt time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Extensions = append(p.Extensions, PublishedExtension{ListingID: listingID, NewEndAt: newEndAt})
}

func (p *CapturingPublisher) PublishAuctionFinished(ctx context.Context, l *listing.Listing) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Finished = append(p.Finished, l)
}

func (p *CapturingPublisher) PublishDepositCaptured(ctx context.Context, d *deposit.Deposit) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Captured = append(p.Captured, d)
}

// BidPlacedCount returns how many bid_placed events were captured
func (p *CapturingPublisher) BidPlacedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.BidsPlaced)
}

// ExtensionCount returns how many auction_extended events were captured
func (p *CapturingPublisher) ExtensionCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Extensions)
}

// FakePaymentProvider records provider calls and fails on demand
type FakePaymentProvider struct {
	mu sync.Mutex

	AuthorizeErr error
	ReleaseErr   error
	CaptureErr   error

	Authorized []uuid.UUID
	Released   []uuid.UUID
	Captures   []uuid.UUID
}

// NewFakePaymentProvider creates a provider that succeeds on every call
func NewFakePaymentProvider() *FakePaymentProvider {
	return &FakePaymentProvider{}
}

func (f *FakePaymentProvider) AuthorizeHold(ctx context.Context, d *deposit.Deposit) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.AuthorizeErr != nil {
		return f.AuthorizeErr
	}
	f.Authorized = append(f.Authorized, d.ID)
	return nil
}

func (f *FakePaymentProvider) ReleaseHold(ctx context.Context, d *deposit.Deposit) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ReleaseErr != nil {
		return f.ReleaseErr
	}
	f.Released = append(f.Released, d.ID)
	return nil
}

func (f *FakePaymentProvider) CaptureHold(ctx context.Context, d *deposit.Deposit) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CaptureErr != nil {
		return f.CaptureErr
	}
	f.Captures = append(f.Captures, d.ID)
	return nil
}

// SetAuthorizeErr flips the authorize failure under the lock
func (f *FakePaymentProvider) SetAuthorizeErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.AuthorizeErr = err
}

// AuthorizedCount returns how many holds were authorized
func (f *FakePaymentProvider) AuthorizedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Authorized)
}

// RecordingMetrics counts metric calls for assertions. It satisfies both the
// bidding and deposit collector interfaces.
type RecordingMetrics struct {
	mu         sync.Mutex
	Admitted   int
	Rejected   map[string]int
	Retries    int
	Extensions int
	Durations  []time.Duration

	Holds           int
	Releases        int
	Captures        int
	PaymentFailures map[string]int
}

// NewRecordingMetrics creates an empty recorder
func NewRecordingMetrics() *RecordingMetrics {
	return &RecordingMetrics{
		Rejected:        make(map[string]int),
		PaymentFailures: make(map[string]int),
	}
}

func (m *RecordingMetrics) RecordBidAdmitted(ctx context.Context, b *bid.Bid) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Admitted++
}

func (m *RecordingMetrics) RecordBidRejected(ctx context.Context, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Rejected[reason]++
}

func (m *RecordingMetrics) RecordAdmissionRetry(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Retries++
}

func (m *RecordingMetrics) RecordAuctionExtended(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Extensions++
}

func (m *RecordingMetrics) RecordAdmissionDuration(ctx context.Context, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Durations = append(m.Durations, d)
}

func (m *RecordingMetrics) RecordDepositHold(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Holds++
}

func (m *RecordingMetrics) RecordDepositRelease(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Releases++
}

func (m *RecordingMetrics) RecordDepositCapture(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Captures++
}

func (m *RecordingMetrics) RecordPaymentFailure(ctx context.Context, operation string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PaymentFailures[operation]++
}

// DurationCount returns how many admission durations were recorded
func (m *RecordingMetrics) DurationCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Durations)
}

// AdmittedCount returns the admitted counter
func (m *RecordingMetrics) AdmittedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Admitted
}

// RejectedCount returns the rejection count for one reason
func (m *RecordingMetrics) RejectedCount(reason string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Rejected[reason]
}
