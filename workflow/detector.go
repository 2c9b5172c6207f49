package workflow

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/wavehaus/bookings_backend/models"
	"github.com/wavehaus/bookings_backend/processor"
)

var (
	// Differences at or below one cent in major units are rounding noise,
	// not discrepancies.
	amountTolerance = decimal.New(1, -2)

	// Amount drift of a full major unit or more is ranked high.
	highSeverityAmountDiff = decimal.NewFromInt(1)
)

// mapProcessorStatus translates the processor-native status onto the local
// ledger enum. The table is fixed; unknown native statuses return ok=false
// and are left out of status comparison.
func mapProcessorStatus(status string) (models.PaymentStatus, bool) {
	switch status {
	case processor.PaymentStatusSucceeded:
		return models.PaymentStatusCompleted, true
	case processor.PaymentStatusCanceled:
		return models.PaymentStatusFailed, true
	case processor.PaymentStatusRequiresPaymentMethod,
		processor.PaymentStatusRequiresConfirmation,
		processor.PaymentStatusRequiresAction,
		processor.PaymentStatusProcessing:
		return models.PaymentStatusPending, true
	}
	return "", false
}

func minorToMajor(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}

// DetectDiscrepancies compares one local payment against the processor's
// snapshot and returns every disagreement found. Pure: no I/O, no mutation
// of inputs. remote == nil means the processor has no record for the
// payment's external id.
func DetectDiscrepancies(payment models.Payment, remote *processor.Payment) []models.Discrepancy {
	if payment.ExternalPaymentId == nil {
		return nil
	}

	if remote == nil {
		return []models.Discrepancy{{
			Type:              models.DiscrepancyTypeMissingPayment,
			Severity:          models.DiscrepancySeverityHigh,
			BookingId:         intPtr(payment.BookingId),
			ExternalPaymentId: payment.ExternalPaymentId,
			LocalPaymentId:    intPtr(payment.ID),
			Description:       fmt.Sprintf("local payment %d references %s but the processor has no record of it", payment.ID, *payment.ExternalPaymentId),
			SuggestedAction:   "verify external_payment_id and re-fetch",
		}}
	}

	var found []models.Discrepancy

	if mapped, ok := mapProcessorStatus(remote.Status); ok && mapped != payment.Status {
		status := mapped
		found = append(found, models.Discrepancy{
			Type:              models.DiscrepancyTypeStatusMismatch,
			Severity:          models.DiscrepancySeverityMedium,
			BookingId:         intPtr(payment.BookingId),
			ExternalPaymentId: payment.ExternalPaymentId,
			LocalPaymentId:    intPtr(payment.ID),
			Description:       fmt.Sprintf("local status %s, processor status %s", payment.Status, remote.Status),
			SuggestedAction:   fmt.Sprintf("update local status to %s", mapped),
			Correction:        &models.PaymentCorrection{Status: &status},
		})
	}

	remoteAmount := minorToMajor(remote.Amount)
	if diff := remoteAmount.Sub(payment.Amount).Abs(); diff.GreaterThan(amountTolerance) {
		severity := models.DiscrepancySeverityMedium
		if diff.GreaterThanOrEqual(highSeverityAmountDiff) {
			severity = models.DiscrepancySeverityHigh
		}
		amount := remoteAmount
		found = append(found, models.Discrepancy{
			Type:              models.DiscrepancyTypeAmountMismatch,
			Severity:          severity,
			BookingId:         intPtr(payment.BookingId),
			ExternalPaymentId: payment.ExternalPaymentId,
			LocalPaymentId:    intPtr(payment.ID),
			Description:       fmt.Sprintf("amount mismatch: local %s, remote %s", payment.Amount.StringFixed(2), remoteAmount.StringFixed(2)),
			SuggestedAction:   "update local amount to match remote",
			Correction:        &models.PaymentCorrection{Amount: &amount},
		})
	}

	remoteRefunded := succeededRefundTotal(remote.Refunds)
	if diff := remoteRefunded.Sub(payment.RefundedAmount).Abs(); diff.GreaterThan(amountTolerance) {
		refunded := remoteRefunded
		found = append(found, models.Discrepancy{
			Type:              models.DiscrepancyTypeAmountMismatch,
			Severity:          models.DiscrepancySeverityMedium,
			BookingId:         intPtr(payment.BookingId),
			ExternalPaymentId: payment.ExternalPaymentId,
			LocalPaymentId:    intPtr(payment.ID),
			Description:       fmt.Sprintf("refund amount mismatch: local %s, remote %s", payment.RefundedAmount.StringFixed(2), remoteRefunded.StringFixed(2)),
			SuggestedAction:   "update local refunded amount to match remote",
			Correction:        &models.PaymentCorrection{RefundedAmount: &refunded},
		})
	}

	return found
}

// succeededRefundTotal sums the refunds that actually went through,
// converted to major units. Pending and failed refund attempts are not
// money moved.
func succeededRefundTotal(refunds []processor.Refund) decimal.Decimal {
	var totalMinor int64
	for _, refund := range refunds {
		if refund.Status == processor.RefundStatusSucceeded {
			totalMinor += refund.Amount
		}
	}
	return minorToMajor(totalMinor)
}

// remoteFetchFailureDiscrepancy degrades a single payment's fetch failure
// into a high-severity discrepancy instead of aborting the run.
func remoteFetchFailureDiscrepancy(payment models.Payment, err error) models.Discrepancy {
	return models.Discrepancy{
		Type:              models.DiscrepancyTypeMissingPayment,
		Severity:          models.DiscrepancySeverityHigh,
		BookingId:         intPtr(payment.BookingId),
		ExternalPaymentId: payment.ExternalPaymentId,
		LocalPaymentId:    intPtr(payment.ID),
		Description:       fmt.Sprintf("could not fetch processor state for payment %d: %v", payment.ID, err),
		SuggestedAction:   "manual investigation: remote fetch failed",
	}
}

// orphanDiscrepancy flags a processor charge with no local ledger record.
// It represents money the system is not tracking, so it is always high
// severity and never auto-corrected.
func orphanDiscrepancy(remote processor.Payment) models.Discrepancy {
	externalId := remote.ID
	return models.Discrepancy{
		Type:              models.DiscrepancyTypeOrphanedRemotePayment,
		Severity:          models.DiscrepancySeverityHigh,
		ExternalPaymentId: &externalId,
		Description:       fmt.Sprintf("processor payment %s (%s) has no local ledger record", remote.ID, minorToMajor(remote.Amount).StringFixed(2)),
		SuggestedAction:   "manual investigation: create the missing local record or refund the charge",
	}
}

func intPtr(v int) *int {
	return &v
}
