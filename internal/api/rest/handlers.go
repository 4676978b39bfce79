package rest

import (
	"net/http"

	"github.com/google/uuid"

	domainErrors "github.com/driveline/auto-auction-backend/internal/domain/errors"
	"github.com/driveline/auto-auction-backend/internal/infrastructure/cache"
	"github.com/driveline/auto-auction-backend/internal/service/bidding"
	"github.com/driveline/auto-auction-backend/internal/service/deposit"
	"github.com/driveline/auto-auction-backend/internal/service/listing"
)

// Services holds everything the REST handlers call into.
type Services struct {
	Bidding  bidding.Service
	Deposits deposit.Service
	Listings listing.Service
}

// Handler serves the auction API.
type Handler struct {
	services     Services
	listingCache *cache.ListingCache
}

func NewHandler(services Services, listingCache *cache.ListingCache) *Handler {
	return &Handler{services: services, listingCache: listingCache}
}

func pathID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		return uuid.Nil, domainErrors.NewValidationError("INVALID_ID", "path parameter "+name+" is not a valid UUID")
	}
	return id, nil
}

func requireUser(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, ok := userIDFrom(r.Context())
	if !ok {
		writeError(w, r, unauthorized("authentication required"))
		return uuid.Nil, false
	}
	return id, true
}

func requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	if !isAdmin(r.Context()) {
		writeError(w, r, domainErrors.NewAuthorizationError("ADMIN_ONLY",
			"this operation requires an administrator"))
		return false
	}
	return true
}

// POST /api/v1/deposits
func (h *Handler) handlePlaceHold(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req placeHoldRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	listingID, _ := uuid.Parse(req.ListingID)
	amount, err := req.Amount.toMoney()
	if err != nil {
		writeError(w, r, domainErrors.NewValidationError("INVALID_AMOUNT", err.Error()))
		return
	}

	d, err := h.services.Deposits.PlaceHold(r.Context(), &deposit.PlaceHoldRequest{
		UserID:    userID,
		ListingID: listingID,
		Amount:    amount,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

// POST /api/v1/deposits/{id}/release
//
// Only the deposit's owner may release; the ledger verifies ownership
// against committed state.
func (h *Handler) handleReleaseDeposit(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	depositID, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.services.Deposits.Release(r.Context(), depositID, userID); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

// POST /api/v1/deposits/{id}/capture
//
// Capture settles someone's money against a defaulted win; only
// back-office principals may trigger it.
func (h *Handler) handleCaptureDeposit(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireUser(w, r); !ok {
		return
	}
	if !requireAdmin(w, r) {
		return
	}
	depositID, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.services.Deposits.Capture(r.Context(), depositID); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

// POST /api/v1/bids
func (h *Handler) handlePlaceBid(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req placeBidRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	listingID, _ := uuid.Parse(req.ListingID)
	amount, err := req.Amount.toMoney()
	if err != nil {
		writeError(w, r, domainErrors.NewValidationError("INVALID_AMOUNT", err.Error()))
		return
	}

	b, err := h.services.Bidding.PlaceBid(r.Context(), &bidding.PlaceBidRequest{
		ListingID: listingID,
		BidderID:  userID,
		Amount:    amount,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.refreshListingCache(r, listingID)
	writeJSON(w, http.StatusCreated, b)
}

// POST /api/v1/listings/{id}/buy-now
func (h *Handler) handleBuyNow(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	listingID, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	l, err := h.services.Bidding.BuyNow(r.Context(), listingID, userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.listingCache.Invalidate(r.Context(), listingID)
	// The buyer is not the seller; project through the snapshot so the
	// reserve price stays private.
	writeJSON(w, http.StatusOK, cache.SnapshotFromListing(l))
}

// POST /api/v1/autobids
func (h *Handler) handleRegisterAutobid(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req registerAutobidRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	listingID, _ := uuid.Parse(req.ListingID)
	ceiling, err := req.Ceiling.toMoney()
	if err != nil {
		writeError(w, r, domainErrors.NewValidationError("INVALID_CEILING", err.Error()))
		return
	}

	m, err := h.services.Bidding.RegisterAutobid(r.Context(), &bidding.RegisterAutobidRequest{
		ListingID: listingID,
		UserID:    userID,
		Ceiling:   ceiling,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.refreshListingCache(r, listingID)
	writeJSON(w, http.StatusCreated, m)
}

// DELETE /api/v1/autobids/{listingID}
func (h *Handler) handleCancelAutobid(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	listingID, err := pathID(r, "listingID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.services.Bidding.CancelAutobid(r.Context(), listingID, userID); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

// POST /api/v1/listings
func (h *Handler) handleCreateListing(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req createListingRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	vehicleID, _ := uuid.Parse(req.VehicleID)

	draft := &listing.CreateDraftRequest{
		VehicleID: vehicleID,
		SellerID:  userID,
		StartAt:   req.StartAt,
		EndAt:     req.EndAt,
	}
	var err error
	if draft.StartPrice, err = req.StartPrice.toMoney(); err != nil {
		writeError(w, r, domainErrors.NewValidationError("INVALID_START_PRICE", err.Error()))
		return
	}
	if draft.MinBidStep, err = req.MinBidStep.toMoney(); err != nil {
		writeError(w, r, domainErrors.NewValidationError("INVALID_BID_STEP", err.Error()))
		return
	}
	if req.ReservePrice != nil {
		m, err := req.ReservePrice.toMoney()
		if err != nil {
			writeError(w, r, domainErrors.NewValidationError("INVALID_RESERVE", err.Error()))
			return
		}
		draft.ReservePrice = &m
	}
	if req.BuyNowPrice != nil {
		m, err := req.BuyNowPrice.toMoney()
		if err != nil {
			writeError(w, r, domainErrors.NewValidationError("INVALID_BUY_NOW", err.Error()))
			return
		}
		draft.BuyNowPrice = &m
	}

	l, err := h.services.Listings.CreateDraft(r.Context(), draft)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, l)
}

// GET /api/v1/listings/{id}
//
// Served cache-first: the short-TTL snapshot absorbs the read traffic a
// live auction page generates between price changes.
func (h *Handler) handleGetListing(w http.ResponseWriter, r *http.Request) {
	listingID, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	if snap, err := h.listingCache.Get(r.Context(), listingID); err == nil && snap != nil {
		writeJSON(w, http.StatusOK, snap)
		return
	}

	l, err := h.services.Listings.GetListing(r.Context(), listingID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	_ = h.listingCache.Set(r.Context(), l)
	writeJSON(w, http.StatusOK, cache.SnapshotFromListing(l))
}

// GET /api/v1/listings/{id}/bids
func (h *Handler) handleGetBids(w http.ResponseWriter, r *http.Request) {
	listingID, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	bids, err := h.services.Bidding.GetBidsForListing(r.Context(), listingID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"bids": bids, "count": len(bids)})
}

// requireSellerOrAdmin loads the listing and refuses callers who neither
// own it nor carry the admin role.
func (h *Handler) requireSellerOrAdmin(w http.ResponseWriter, r *http.Request, listingID, userID uuid.UUID) bool {
	if isAdmin(r.Context()) {
		return true
	}
	l, err := h.services.Listings.GetListing(r.Context(), listingID)
	if err != nil {
		writeError(w, r, err)
		return false
	}
	if l.SellerID != userID {
		writeError(w, r, domainErrors.NewAuthorizationError("NOT_SELLER",
			"only the listing's seller may perform this operation"))
		return false
	}
	return true
}

// POST /api/v1/listings/{id}/submit
func (h *Handler) handleSubmitListing(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	listingID, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !h.requireSellerOrAdmin(w, r, listingID, userID) {
		return
	}
	l, err := h.services.Listings.SubmitForModeration(r.Context(), listingID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

// POST /api/v1/listings/{id}/approve
//
// Approval is a moderation decision; sellers cannot approve their own
// listings.
func (h *Handler) handleApproveListing(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireUser(w, r); !ok {
		return
	}
	if !requireAdmin(w, r) {
		return
	}
	listingID, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	l, err := h.services.Listings.Approve(r.Context(), listingID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

// POST /api/v1/listings/{id}/cancel
func (h *Handler) handleCancelListing(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	listingID, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !h.requireSellerOrAdmin(w, r, listingID, userID) {
		return
	}
	if err := h.services.Listings.Cancel(r.Context(), listingID); err != nil {
		writeError(w, r, err)
		return
	}
	h.listingCache.Invalidate(r.Context(), listingID)
	writeJSON(w, http.StatusNoContent, nil)
}

// refreshListingCache re-projects the committed listing into the cache
// after a write changed its price or end time. Failures only cost a
// cache miss.
func (h *Handler) refreshListingCache(r *http.Request, listingID uuid.UUID) {
	l, err := h.services.Listings.GetListing(r.Context(), listingID)
	if err != nil {
		h.listingCache.Invalidate(r.Context(), listingID)
		return
	}
	_ = h.listingCache.Set(r.Context(), l)
}
