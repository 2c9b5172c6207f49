package models

import "time"

// ReconciliationRequest is the raw request body of POST /reconcile-payments.
// All fields are optional; defaults are applied during validation.
type ReconciliationRequest struct {
	DateFrom    *time.Time `json:"date_from"`
	DateTo      *time.Time `json:"date_to"`
	Limit       *int       `json:"limit" validate:"omitempty,min=1,max=1000"`
	AutoCorrect *bool      `json:"auto_correct"`
}

// ReconciliationParams is the normalized, fully-populated form of a request.
type ReconciliationParams struct {
	DateFrom    time.Time
	DateTo      time.Time
	Limit       int
	AutoCorrect bool
}

type DiscrepancyType string

const (
	DiscrepancyTypeMissingPayment        DiscrepancyType = "missing_payment"
	DiscrepancyTypeAmountMismatch        DiscrepancyType = "amount_mismatch"
	DiscrepancyTypeStatusMismatch        DiscrepancyType = "status_mismatch"
	DiscrepancyTypeOrphanedRemotePayment DiscrepancyType = "orphaned_remote_payment"
)

type DiscrepancySeverity string

const (
	DiscrepancySeverityHigh   DiscrepancySeverity = "high"
	DiscrepancySeverityMedium DiscrepancySeverity = "medium"
	DiscrepancySeverityLow    DiscrepancySeverity = "low"
)

// Discrepancy is one typed disagreement between the local ledger and the
// processor for a payment. Immutable after detection except AutoCorrected.
type Discrepancy struct {
	Type              DiscrepancyType     `json:"type"`
	Severity          DiscrepancySeverity `json:"severity"`
	BookingId         *int                `json:"booking_id,omitempty"`
	ExternalPaymentId *string             `json:"external_payment_id,omitempty"`
	LocalPaymentId    *int                `json:"local_payment_id,omitempty"`
	Description       string              `json:"description"`
	SuggestedAction   string              `json:"suggested_action"`
	AutoCorrected     bool                `json:"auto_corrected"`

	// Correction carries the remote-derived values needed to bring the
	// local row in line. Only amount/status class discrepancies carry one;
	// it never appears in the response body.
	Correction *PaymentCorrection `json:"-"`
}

type ReconciliationSummary struct {
	TotalPaymentsChecked int   `json:"total_payments_checked"`
	DiscrepanciesFound   int   `json:"discrepancies_found"`
	AutoCorrected        int   `json:"auto_corrected"`
	ManualReviewRequired int   `json:"manual_review_required"`
	ExecutionTimeMs      int64 `json:"execution_time_ms"`
}

type DateRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

type ReconciliationMetadata struct {
	DateRange          DateRange `json:"date_range"`
	ExecutionTimestamp time.Time `json:"execution_timestamp"`
	RemoteApiCalls     int       `json:"remote_api_calls"`
	Truncated          bool      `json:"truncated"`
}

// ReconciliationReport is the full response contract. Callers always get
// either a complete report or a single structured error, never a partial
// shape; truncation only reduces coverage.
type ReconciliationReport struct {
	Summary       ReconciliationSummary  `json:"summary"`
	Discrepancies []Discrepancy          `json:"discrepancies"`
	Metadata      ReconciliationMetadata `json:"metadata"`
}
