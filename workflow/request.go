package workflow

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/wavehaus/bookings_backend/models"
	"github.com/wavehaus/bookings_backend/utils"
)

const (
	defaultWindow = 30 * 24 * time.Hour
	maxWindowAge  = 365 * 24 * time.Hour

	defaultLimit = 100
	minLimit     = 1
	maxLimit     = 1000
)

var validate = validator.New()

// NormalizeRequest applies defaults and bounds to a raw reconciliation
// request. No I/O happens here; a ValidationError rejects the run before
// anything is read.
func NormalizeRequest(req models.ReconciliationRequest, now time.Time) (models.ReconciliationParams, error) {
	var params models.ReconciliationParams

	if err := validate.Struct(req); err != nil {
		return params, utils.NewValidationError("limit must be between %d and %d", minLimit, maxLimit)
	}

	params.DateTo = now
	if req.DateTo != nil {
		params.DateTo = *req.DateTo
	}
	params.DateFrom = params.DateTo.Add(-defaultWindow)
	if req.DateFrom != nil {
		params.DateFrom = *req.DateFrom
	}

	if !params.DateTo.After(params.DateFrom) {
		return params, utils.NewValidationError("date_to must be after date_from")
	}
	if params.DateFrom.Before(now.Add(-maxWindowAge)) {
		return params, utils.NewValidationError("date_from must be within the last year")
	}

	params.Limit = defaultLimit
	if req.Limit != nil {
		if *req.Limit < minLimit || *req.Limit > maxLimit {
			return params, utils.NewValidationError("limit must be between %d and %d", minLimit, maxLimit)
		}
		params.Limit = *req.Limit
	}

	if req.AutoCorrect != nil {
		params.AutoCorrect = *req.AutoCorrect
	}

	return params, nil
}
