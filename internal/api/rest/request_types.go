package rest

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	domainErrors "github.com/driveline/auto-auction-backend/internal/domain/errors"
	"github.com/driveline/auto-auction-backend/internal/domain/values"
)

var validate = validator.New()

// moneyPayload is the wire form of a monetary amount.
type moneyPayload struct {
	MinorUnits int64  `json:"minor_units" validate:"required,gt=0"`
	Currency   string `json:"currency" validate:"required,len=3"`
}

func (p moneyPayload) toMoney() (values.Money, error) {
	return values.NewMoney(p.MinorUnits, p.Currency)
}

type placeBidRequest struct {
	ListingID string       `json:"listing_id" validate:"required,uuid"`
	Amount    moneyPayload `json:"amount" validate:"required"`
}

type placeHoldRequest struct {
	ListingID string       `json:"listing_id" validate:"required,uuid"`
	Amount    moneyPayload `json:"amount" validate:"required"`
}

type registerAutobidRequest struct {
	ListingID string       `json:"listing_id" validate:"required,uuid"`
	Ceiling   moneyPayload `json:"ceiling" validate:"required"`
}

type createListingRequest struct {
	VehicleID    string        `json:"vehicle_id" validate:"required,uuid"`
	StartPrice   moneyPayload  `json:"start_price" validate:"required"`
	MinBidStep   moneyPayload  `json:"min_bid_step" validate:"required"`
	ReservePrice *moneyPayload `json:"reserve_price,omitempty"`
	BuyNowPrice  *moneyPayload `json:"buy_now_price,omitempty"`
	StartAt      time.Time     `json:"start_at" validate:"required"`
	EndAt        time.Time     `json:"end_at" validate:"required,gtfield=StartAt"`
}

// decodeRequest decodes the JSON body into dst and runs struct
// validation. Both failure modes surface as a validation AppError so
// the client always sees a 400 with field detail.
func decodeRequest(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return domainErrors.NewValidationError("INVALID_BODY", "request body is not valid JSON").WithCause(err)
	}
	if err := validate.Struct(dst); err != nil {
		details := map[string]interface{}{}
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				details[fe.Field()] = fe.Tag()
			}
		}
		return domainErrors.NewValidationError("INVALID_REQUEST", "request failed validation").WithDetails(details)
	}
	return nil
}
