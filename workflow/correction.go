package workflow

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/wavehaus/bookings_backend/config"
	"github.com/wavehaus/bookings_backend/models"
)

const correctionFailedNote = "; automatic correction attempted and failed"

// applyCorrections writes the safe class of discrepancies back to the local
// ledger. Corrections for one payment are merged into a single conditional
// write so the run never invalidates its own updated_at check; on success
// every merged discrepancy flips AutoCorrected together.
//
// Only amount_mismatch and status_mismatch qualify. missing_payment and
// orphaned_remote_payment imply creating or deleting a record, which this
// subsystem refuses to do unattended, and they never carry a Correction.
//
// Returns the number of discrepancies corrected. Discrepancies are mutated
// in place (AutoCorrected flag, failure note on Description).
func applyCorrections(ctx context.Context, ledger LocalLedger, logger *logrus.Logger, paymentsById map[int]models.Payment, discrepancies []models.Discrepancy) int {
	groups := map[int][]int{}
	order := []int{}
	for idx, d := range discrepancies {
		if d.Correction == nil || d.LocalPaymentId == nil {
			continue
		}
		if d.Type != models.DiscrepancyTypeAmountMismatch && d.Type != models.DiscrepancyTypeStatusMismatch {
			continue
		}
		paymentId := *d.LocalPaymentId
		if _, seen := groups[paymentId]; !seen {
			order = append(order, paymentId)
		}
		groups[paymentId] = append(groups[paymentId], idx)
	}

	corrected := 0
	for _, paymentId := range order {
		indexes := groups[paymentId]
		payment, ok := paymentsById[paymentId]
		if !ok {
			continue
		}

		var merged models.PaymentCorrection
		for _, idx := range indexes {
			merged = merged.Merge(*discrepancies[idx].Correction)
		}

		applied, err := ledger.ApplyCorrection(ctx, paymentId, payment.UpdatedAt, merged)
		if err != nil {
			config.LogError(logger, "correction.go", "applyCorrections", "conditional correction write", paymentId, err)
		}
		if err != nil || !applied {
			if err == nil {
				logger.WithFields(logrus.Fields{
					"module":     "correction.go",
					"payment_id": paymentId,
				}).Warn("correction skipped: payment row changed since it was read")
			}
			for _, idx := range indexes {
				discrepancies[idx].Description += correctionFailedNote
			}
			continue
		}

		for _, idx := range indexes {
			discrepancies[idx].AutoCorrected = true
			corrected++
		}
	}

	return corrected
}
