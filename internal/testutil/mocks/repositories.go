package mocks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/driveline/auto-auction-backend/internal/domain/bid"
	"github.com/driveline/auto-auction-backend/internal/domain/deposit"
	domainErrors "github.com/driveline/auto-auction-backend/internal/domain/errors"
	"github.com/driveline/auto-auction-backend/internal/domain/listing"
	"github.com/driveline/auto-auction-backend/internal/domain/values"
	depositsvc "github.com/driveline/auto-auction-backend/internal/service/deposit"
)

// ListingStore is an in-memory listing repository with the same conditional
// commit semantics as the PostgreSQL one. Admission only succeeds when the
// caller's previously read price still matches.
type ListingStore struct {
	mu       sync.Mutex
	listings map[uuid.UUID]*listing.Listing
	bids     *BidStore
}

// NewListingStore creates an empty store recording admitted bids in bids
func NewListingStore(bids *BidStore) *ListingStore {
	return &ListingStore{
		listings: make(map[uuid.UUID]*listing.Listing),
		bids:     bids,
	}
}

// Put seeds a listing
func (s *ListingStore) Put(l *listing.Listing) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listings[l.ID] = copyListing(l)
}

func (s *ListingStore) Create(ctx context.Context, l *listing.Listing) error {
	s.Put(l)
	return nil
}

func (s *ListingStore) GetByID(ctx context.Context, id uuid.UUID) (*listing.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.listings[id]
	if !ok {
		return nil, domainErrors.ErrListingNotFound
	}
	return copyListing(l), nil
}

func (s *ListingStore) Update(ctx context.Context, l *listing.Listing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.listings[l.ID]; !ok {
		return domainErrors.ErrListingNotFound
	}
	s.listings[l.ID] = copyListing(l)
	return nil
}

func (s *ListingStore) AdmitBid(ctx context.Context, listingID uuid.UUID, expectedPrice values.Money, newBid *bid.Bid, newEndAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.listings[listingID]
	if !ok {
		return false, domainErrors.ErrListingNotFound
	}
	if !l.CurrentPrice.Equal(expectedPrice) {
		return false, nil
	}
	if err := l.ApplyBid(newBid.Amount); err != nil {
		return false, nil
	}
	l.ExtendTo(newEndAt)

	if s.bids != nil {
		s.bids.Put(newBid)
	}
	return true, nil
}

func (s *ListingStore) FinishBuyNow(ctx context.Context, listingID, buyerID uuid.UUID, price values.Money) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.listings[listingID]
	if !ok {
		return false, domainErrors.ErrListingNotFound
	}
	if l.BuyNowPrice == nil || !l.BuyNowPrice.Equal(price) {
		return false, nil
	}
	if err := l.AcceptBuyNow(buyerID); err != nil {
		return false, nil
	}
	return true, nil
}

func (s *ListingStore) FinishExpired(ctx context.Context, id uuid.UUID, winnerID *uuid.UUID, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.listings[id]
	if !ok {
		return false, domainErrors.ErrListingNotFound
	}
	if l.EndAt.After(now) {
		return false, nil
	}
	if err := l.Finish(winnerID); err != nil {
		return false, nil
	}
	l.UpdatedAt = now
	return true, nil
}

func (s *ListingStore) ListExpiredLive(ctx context.Context, now time.Time, limit int) ([]*listing.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var expired []*listing.Listing
	for _, l := range s.listings {
		if l.Status == listing.StatusLive && !l.EndAt.After(now) {
			expired = append(expired, copyListing(l))
		}
		if limit > 0 && len(expired) == limit {
			break
		}
	}
	return expired, nil
}

func copyListing(l *listing.Listing) *listing.Listing {
	c := *l
	if l.ReservePrice != nil {
		v := *l.ReservePrice
		c.ReservePrice = &v
	}
	if l.BuyNowPrice != nil {
		v := *l.BuyNowPrice
		c.BuyNowPrice = &v
	}
	if l.WinnerID != nil {
		v := *l.WinnerID
		c.WinnerID = &v
	}
	return &c
}

// BidStore is an in-memory bid repository
type BidStore struct {
	mu   sync.Mutex
	bids map[uuid.UUID]*bid.Bid
}

// NewBidStore creates an empty bid store
func NewBidStore() *BidStore {
	return &BidStore{bids: make(map[uuid.UUID]*bid.Bid)}
}

// Put stores a bid
func (s *BidStore) Put(b *bid.Bid) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *b
	s.bids[b.ID] = &c
}

func (s *BidStore) GetByID(ctx context.Context, id uuid.UUID) (*bid.Bid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bids[id]
	if !ok {
		return nil, domainErrors.ErrBidNotFound
	}
	c := *b
	return &c, nil
}

func (s *BidStore) ListByListing(ctx context.Context, listingID uuid.UUID) ([]*bid.Bid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*bid.Bid
	for _, b := range s.bids {
		if b.ListingID == listingID {
			c := *b
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PlacedAt.Before(out[j].PlacedAt) })
	return out, nil
}

func (s *BidStore) GetHighestValid(ctx context.Context, listingID uuid.UUID) (*bid.Bid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var best *bid.Bid
	for _, b := range s.bids {
		if b.ListingID != listingID || !b.Valid {
			continue
		}
		if best == nil ||
			b.Amount.Compare(best.Amount) > 0 ||
			(b.Amount.Compare(best.Amount) == 0 && b.PlacedAt.Before(best.PlacedAt)) {
			best = b
		}
	}
	if best == nil {
		return nil, nil
	}
	c := *best
	return &c, nil
}

// Count returns the number of stored bids
func (s *BidStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.bids)
}

// MandateStore is an in-memory autobid mandate repository
type MandateStore struct {
	mu       sync.Mutex
	mandates map[uuid.UUID]*bid.AutobidMandate
}

// NewMandateStore creates an empty mandate store
func NewMandateStore() *MandateStore {
	return &MandateStore{mandates: make(map[uuid.UUID]*bid.AutobidMandate)}
}

func (s *MandateStore) Create(ctx context.Context, m *bid.AutobidMandate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.mandates {
		if existing.Active && existing.UserID == m.UserID && existing.ListingID == m.ListingID {
			return domainErrors.NewConflictError("an active autobid already exists for this listing")
		}
	}
	c := *m
	s.mandates[m.ID] = &c
	return nil
}

func (s *MandateStore) Update(ctx context.Context, m *bid.AutobidMandate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.mandates[m.ID]; !ok {
		return domainErrors.NewNotFoundError("mandate")
	}
	c := *m
	s.mandates[m.ID] = &c
	return nil
}

func (s *MandateStore) GetActiveForListing(ctx context.Context, listingID uuid.UUID) ([]*bid.AutobidMandate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*bid.AutobidMandate
	for _, m := range s.mandates {
		if m.Active && m.ListingID == listingID {
			c := *m
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MandateStore) GetActiveForUser(ctx context.Context, listingID, userID uuid.UUID) (*bid.AutobidMandate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, m := range s.mandates {
		if m.Active && m.ListingID == listingID && m.UserID == userID {
			c := *m
			return &c, nil
		}
	}
	return nil, nil
}

// DepositStore is an in-memory deposit repository enforcing the single
// active hold per (user, listing) pair.
type DepositStore struct {
	mu       sync.Mutex
	deposits map[uuid.UUID]*deposit.Deposit
}

// NewDepositStore creates an empty deposit store
func NewDepositStore() *DepositStore {
	return &DepositStore{deposits: make(map[uuid.UUID]*deposit.Deposit)}
}

func (s *DepositStore) Create(ctx context.Context, d *deposit.Deposit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.deposits {
		if existing.Status == deposit.StatusHold && existing.UserID == d.UserID && existing.ListingID == d.ListingID {
			return depositsvc.ErrDuplicateHold
		}
	}
	c := *d
	s.deposits[d.ID] = &c
	return nil
}

func (s *DepositStore) GetByID(ctx context.Context, id uuid.UUID) (*deposit.Deposit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.deposits[id]
	if !ok {
		return nil, domainErrors.ErrDepositNotFound
	}
	c := *d
	return &c, nil
}

func (s *DepositStore) GetActiveHold(ctx context.Context, userID, listingID uuid.UUID) (*deposit.Deposit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, d := range s.deposits {
		if d.Status == deposit.StatusHold && d.UserID == userID && d.ListingID == listingID {
			c := *d
			return &c, nil
		}
	}
	return nil, nil
}

func (s *DepositStore) Update(ctx context.Context, d *deposit.Deposit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.deposits[d.ID]; !ok {
		return domainErrors.ErrDepositNotFound
	}
	c := *d
	s.deposits[d.ID] = &c
	return nil
}
