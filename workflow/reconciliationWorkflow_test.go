package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wavehaus/bookings_backend/config"
	"github.com/wavehaus/bookings_backend/models"
	"github.com/wavehaus/bookings_backend/processor"
	"github.com/wavehaus/bookings_backend/utils"
)

func newTestReconciler(ledger *fakeLedger, gateway *fakeGateway, audit *fakeAudit, locker *fakeLocker) *Reconciler {
	return &Reconciler{
		Ledger:           ledger,
		Gateway:          gateway,
		Audit:            audit,
		Locker:           locker,
		Logger:           config.GetLogger(),
		FetchConcurrency: 4,
		TimeBudget:       time.Minute,
	}
}

func strPtr(s string) *string { return &s }

func boolPtr(b bool) *bool { return &b }

func runFixtures() (*fakeLedger, *fakeGateway) {
	recent := time.Now().UTC().Add(-time.Hour)

	ledger := &fakeLedger{payments: []models.Payment{
		{
			ID: 1, BookingId: 11,
			ExternalPaymentId: strPtr("pi_ok"),
			Amount:            decimal.RequireFromString("350.00"),
			Status:            models.PaymentStatusCompleted,
			UpdatedAt:         recent,
		},
		{
			ID: 2, BookingId: 22,
			ExternalPaymentId: strPtr("pi_drift"),
			Amount:            decimal.RequireFromString("1000.00"),
			Status:            models.PaymentStatusCompleted,
			UpdatedAt:         recent.Add(time.Minute),
		},
		{
			ID: 3, BookingId: 33,
			// Pay-on-arrival: never reached the processor.
			Amount:    decimal.RequireFromString("120.00"),
			Status:    models.PaymentStatusPending,
			UpdatedAt: recent.Add(2 * time.Minute),
		},
	}}

	gateway := &fakeGateway{remotes: map[string]*processor.Payment{
		"pi_ok":    {ID: "pi_ok", Amount: 35000, Status: processor.PaymentStatusSucceeded},
		"pi_drift": {ID: "pi_drift", Amount: 99500, Status: processor.PaymentStatusSucceeded},
	}}

	return ledger, gateway
}

func TestRun_HappyPathReport(t *testing.T) {
	ledger, gateway := runFixtures()
	audit := &fakeAudit{}
	locker := &fakeLocker{}
	reconciler := newTestReconciler(ledger, gateway, audit, locker)

	report, err := reconciler.Run(context.Background(), models.ReconciliationRequest{})
	require.NoError(t, err)

	assert.Equal(t, 3, report.Summary.TotalPaymentsChecked)
	assert.Equal(t, 1, report.Summary.DiscrepanciesFound)
	assert.Equal(t, 0, report.Summary.AutoCorrected)
	assert.Equal(t, 1, report.Summary.ManualReviewRequired, "the 5.00 drift is high severity and uncorrected")
	assert.GreaterOrEqual(t, report.Summary.ExecutionTimeMs, int64(0))

	require.Len(t, report.Discrepancies, 1)
	assert.Equal(t, models.DiscrepancyTypeAmountMismatch, report.Discrepancies[0].Type)
	assert.False(t, report.Discrepancies[0].AutoCorrected)

	// 2 per-payment retrieves + 1 list call for orphan enumeration.
	assert.Equal(t, 3, report.Metadata.RemoteApiCalls)
	assert.False(t, report.Metadata.Truncated)
	assert.Equal(t, 1, locker.acquired)
	assert.Equal(t, 1, locker.released)
	require.Len(t, audit.entries, 1)
	assert.Equal(t, models.AuditActionPaymentReconciliation, audit.entries[0].Action)
	assert.Equal(t, models.AuditResourceTypeSystem, audit.entries[0].ResourceType)
	assert.Nil(t, audit.entries[0].UserName, "no principal in context means system-initiated")
}

func TestRun_AutoCorrectAppliesAndIsIdempotent(t *testing.T) {
	ledger, gateway := runFixtures()
	reconciler := newTestReconciler(ledger, gateway, &fakeAudit{}, &fakeLocker{})
	req := models.ReconciliationRequest{AutoCorrect: boolPtr(true)}

	first, err := reconciler.Run(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 1, first.Summary.AutoCorrected)
	assert.Equal(t, 0, first.Summary.ManualReviewRequired, "a corrected high-severity discrepancy needs no manual review")
	require.Len(t, first.Discrepancies, 1)
	assert.True(t, first.Discrepancies[0].AutoCorrected)
	require.Len(t, ledger.applied, 1)

	second, err := reconciler.Run(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 0, second.Summary.DiscrepanciesFound, "corrected payments compare equal on the next run")
	assert.Len(t, ledger.applied, 1, "no second write")
}

func TestRun_ValidationFailsBeforeAnyIO(t *testing.T) {
	ledger, gateway := runFixtures()
	locker := &fakeLocker{}
	reconciler := newTestReconciler(ledger, gateway, &fakeAudit{}, locker)

	badLimit := 5000
	_, err := reconciler.Run(context.Background(), models.ReconciliationRequest{Limit: &badLimit})

	var validationErr *utils.ValidationError
	require.True(t, errors.As(err, &validationErr))
	assert.Equal(t, 0, ledger.fetchCalls)
	assert.Equal(t, 0, locker.acquired)
}

func TestRun_LeaseConflictFailsFast(t *testing.T) {
	ledger, gateway := runFixtures()
	locker := &fakeLocker{held: true}
	reconciler := newTestReconciler(ledger, gateway, &fakeAudit{}, locker)

	_, err := reconciler.Run(context.Background(), models.ReconciliationRequest{})

	var conflictErr *utils.ConflictError
	require.True(t, errors.As(err, &conflictErr))
	assert.Equal(t, 0, ledger.fetchCalls)
}

func TestRun_LedgerFailureAbortsButStillAudits(t *testing.T) {
	ledger, gateway := runFixtures()
	ledger.fetchErr = &utils.DatabaseError{Err: assert.AnError}
	audit := &fakeAudit{}
	reconciler := newTestReconciler(ledger, gateway, audit, &fakeLocker{})

	_, err := reconciler.Run(context.Background(), models.ReconciliationRequest{})

	var databaseErr *utils.DatabaseError
	require.True(t, errors.As(err, &databaseErr))
	require.Len(t, audit.entries, 1)
	assert.Contains(t, audit.entries[0].Details, `"aborted":true`)
}

func TestRun_RemoteFetchFailureDegradesIntoDiscrepancy(t *testing.T) {
	ledger, gateway := runFixtures()
	gateway.retrieveErrs = map[string]error{"pi_ok": &utils.RemoteApiError{StatusCode: 503, Message: "processor down"}}
	reconciler := newTestReconciler(ledger, gateway, &fakeAudit{}, &fakeLocker{})

	report, err := reconciler.Run(context.Background(), models.ReconciliationRequest{})
	require.NoError(t, err)

	assert.Equal(t, 3, report.Summary.TotalPaymentsChecked, "the failed payment is still counted as checked")
	require.Len(t, report.Discrepancies, 2)
	assert.Equal(t, models.DiscrepancyTypeMissingPayment, report.Discrepancies[0].Type)
	assert.Equal(t, "manual investigation: remote fetch failed", report.Discrepancies[0].SuggestedAction)
	assert.Equal(t, 3, report.Metadata.RemoteApiCalls, "the failed retrieve still spent a call")
}

func TestRun_OrphansAppendAfterLedgerOrder(t *testing.T) {
	ledger, gateway := runFixtures()
	gateway.listed = []processor.Payment{
		{ID: "pi_ok", Amount: 35000, Status: processor.PaymentStatusSucceeded},
		{ID: "pi_untracked", Amount: 45000, Status: processor.PaymentStatusSucceeded},
	}
	reconciler := newTestReconciler(ledger, gateway, &fakeAudit{}, &fakeLocker{})

	report, err := reconciler.Run(context.Background(), models.ReconciliationRequest{AutoCorrect: boolPtr(true)})
	require.NoError(t, err)

	require.Len(t, report.Discrepancies, 2)
	assert.Equal(t, models.DiscrepancyTypeAmountMismatch, report.Discrepancies[0].Type)
	last := report.Discrepancies[len(report.Discrepancies)-1]
	assert.Equal(t, models.DiscrepancyTypeOrphanedRemotePayment, last.Type)
	require.NotNil(t, last.ExternalPaymentId)
	assert.Equal(t, "pi_untracked", *last.ExternalPaymentId)
	assert.False(t, last.AutoCorrected, "orphans are never auto-corrected")
	assert.Equal(t, 1, report.Summary.ManualReviewRequired)
}

func TestRun_OrphanEnumerationFailureReducesCoverageOnly(t *testing.T) {
	ledger, gateway := runFixtures()
	gateway.listErr = &utils.RemoteApiError{StatusCode: 500, Message: "list unavailable"}
	reconciler := newTestReconciler(ledger, gateway, &fakeAudit{}, &fakeLocker{})

	report, err := reconciler.Run(context.Background(), models.ReconciliationRequest{})
	require.NoError(t, err)

	assert.True(t, report.Metadata.Truncated)
	assert.Equal(t, 3, report.Summary.TotalPaymentsChecked)
}

func TestRun_ExpiredBudgetProducesCompleteTruncatedReport(t *testing.T) {
	ledger, gateway := runFixtures()
	reconciler := newTestReconciler(ledger, gateway, &fakeAudit{}, &fakeLocker{})
	reconciler.TimeBudget = time.Nanosecond

	report, err := reconciler.Run(context.Background(), models.ReconciliationRequest{})
	require.NoError(t, err)

	assert.True(t, report.Metadata.Truncated)
	assert.Equal(t, 0, report.Summary.TotalPaymentsChecked)
	assert.NotNil(t, report.Discrepancies, "the report shape stays complete")
	assert.Equal(t, 0, gateway.listCalls, "no budget left for orphan enumeration")
}

func TestRun_AuditCarriesPrincipalFromContext(t *testing.T) {
	ledger, gateway := runFixtures()
	audit := &fakeAudit{}
	reconciler := newTestReconciler(ledger, gateway, audit, &fakeLocker{})

	ctx := utils.SetUsernameInContext(context.Background(), "ops@wavehaus")
	_, err := reconciler.Run(ctx, models.ReconciliationRequest{})
	require.NoError(t, err)

	require.Len(t, audit.entries, 1)
	require.NotNil(t, audit.entries[0].UserName)
	assert.Equal(t, "ops@wavehaus", *audit.entries[0].UserName)
}

func TestRun_AuditWriteFailureDoesNotFailTheRun(t *testing.T) {
	ledger, gateway := runFixtures()
	audit := &fakeAudit{err: assert.AnError}
	reconciler := newTestReconciler(ledger, gateway, audit, &fakeLocker{})

	report, err := reconciler.Run(context.Background(), models.ReconciliationRequest{})

	require.NoError(t, err, "the reconciliation result outranks its own audit trail")
	require.NotNil(t, report)
}

func TestRun_ManualReviewFormulaHolds(t *testing.T) {
	ledger, gateway := runFixtures()
	gateway.listed = []processor.Payment{{ID: "pi_untracked", Amount: 45000}}
	reconciler := newTestReconciler(ledger, gateway, &fakeAudit{}, &fakeLocker{})

	report, err := reconciler.Run(context.Background(), models.ReconciliationRequest{})
	require.NoError(t, err)

	expected := 0
	for _, d := range report.Discrepancies {
		if d.Severity == models.DiscrepancySeverityHigh && !d.AutoCorrected {
			expected++
		}
	}
	assert.Equal(t, expected, report.Summary.ManualReviewRequired)
}
