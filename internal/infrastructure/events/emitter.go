package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/driveline/auto-auction-backend/internal/domain/bid"
	"github.com/driveline/auto-auction-backend/internal/domain/deposit"
	"github.com/driveline/auto-auction-backend/internal/domain/listing"
	"github.com/driveline/auto-auction-backend/internal/domain/values"
)

// Transport delivers event envelopes to an external channel
type Transport interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

const (
	emitterQueueSize = 4096
	publishTimeout   = 5 * time.Second
)

// Emitter is the fire-and-forget publication point for domain events. It
// satisfies the publisher interfaces of the bidding, deposit and listing
// services: publication never blocks the admission path, and transport
// failures are logged, not propagated.
type Emitter struct {
	transport Transport
	logger    *zap.Logger
	queue     chan Event
	done      chan struct{}
}

// NewEmitter creates an emitter draining into the given transport
func NewEmitter(transport Transport, logger *zap.Logger) *Emitter {
	return &Emitter{
		transport: transport,
		logger:    logger,
		queue:     make(chan Event, emitterQueueSize),
		done:      make(chan struct{}),
	}
}

// Start launches the drain worker; it runs until ctx is cancelled
func (e *Emitter) Start(ctx context.Context) {
	go func() {
		defer close(e.done)
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-e.queue:
				pubCtx, cancel := context.WithTimeout(context.Background(), publishTimeout)
				if err := e.transport.Publish(pubCtx, ev); err != nil {
					e.logger.Warn("event publish failed",
						zap.String("event_type", string(ev.Type)),
						zap.String("listing_id", ev.ListingID.String()),
						zap.Error(err))
				}
				cancel()
			}
		}
	}()
}

// Wait blocks until the drain worker has stopped
func (e *Emitter) Wait() {
	<-e.done
}

// emit enqueues without blocking; a full queue drops the event
func (e *Emitter) emit(ev Event) {
	select {
	case e.queue <- ev:
	default:
		e.logger.Warn("event queue full, dropping event",
			zap.String("event_type", string(ev.Type)),
			zap.String("listing_id", ev.ListingID.String()))
	}
}

// PublishBidPlaced implements bidding.EventPublisher
func (e *Emitter) PublishBidPlaced(_ context.Context, b *bid.Bid, newPrice values.Money) {
	e.emit(NewEvent(TypeBidPlaced, b.ListingID, map[string]interface{}{
		"bid_id":    b.ID.String(),
		"bidder_id": b.BidderID.String(),
		"amount":    b.Amount.MinorUnits(),
		"new_price": newPrice.MinorUnits(),
		"source":    b.Source.String(),
		"placed_at": b.PlacedAt,
	}))
}

// PublishAuctionExtended implements bidding.EventPublisher
func (e *Emitter) PublishAuctionExtended(_ context.Context, listingID uuid.UUID, newEndAt time.Time) {
	e.emit(NewEvent(TypeAuctionExtended, listingID, map[string]interface{}{
		"new_end_at": newEndAt,
	}))
}

// PublishAuctionFinished implements bidding.EventPublisher and
// listing.EventPublisher
func (e *Emitter) PublishAuctionFinished(_ context.Context, l *listing.Listing) {
	payload := map[string]interface{}{
		"final_price": l.CurrentPrice.MinorUnits(),
		"sold":        l.WinnerID != nil,
	}
	if l.WinnerID != nil {
		payload["winner_id"] = l.WinnerID.String()
	}
	e.emit(NewEvent(TypeAuctionFinished, l.ID, payload))
}

// PublishDepositCaptured implements deposit.EventPublisher
func (e *Emitter) PublishDepositCaptured(_ context.Context, d *deposit.Deposit) {
	e.emit(NewEvent(TypeDepositCaptured, d.ListingID, map[string]interface{}{
		"deposit_id": d.ID.String(),
		"user_id":    d.UserID.String(),
		"amount":     d.Amount.MinorUnits(),
	}))
}
