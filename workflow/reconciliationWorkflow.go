package workflow

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/wavehaus/bookings_backend/config"
	"github.com/wavehaus/bookings_backend/models"
	"github.com/wavehaus/bookings_backend/utils"
)

// Reconciler runs one payment reconciliation pass: read the local ledger
// window, resolve processor state per payment under bounded concurrency,
// detect discrepancies, optionally self-heal the safe ones, audit the run
// and assemble the report.
type Reconciler struct {
	Ledger  LocalLedger
	Gateway ProcessorGateway
	Audit   AuditRecorder
	Locker  RunLocker
	Logger  *logrus.Logger

	FetchConcurrency int
	TimeBudget       time.Duration
}

func (r *Reconciler) budget() time.Duration {
	if r.TimeBudget > 0 {
		return r.TimeBudget
	}
	return config.ReconcileTimeBudget()
}

func (r *Reconciler) concurrency() int {
	if r.FetchConcurrency > 0 {
		return r.FetchConcurrency
	}
	return config.GetProcessorSettings().FetchConcurrency
}

// Run executes one reconciliation. Failures that compromise the meaning of
// the whole report (validation, lease, local ledger read) abort with a
// typed error; failures scoped to one payment degrade into discrepancies
// and the run continues.
func (r *Reconciler) Run(ctx context.Context, req models.ReconciliationRequest) (*models.ReconciliationReport, error) {
	started := time.Now().UTC()

	params, err := NormalizeRequest(req, started)
	if err != nil {
		return nil, err
	}

	locker := r.Locker
	if locker == nil {
		locker = NewRedisRunLocker(nil)
	}
	lease, err := locker.AcquireRunLease(ctx, r.budget()+15*time.Second)
	if err != nil {
		return nil, err
	}
	defer func() {
		if releaseErr := lease.Release(context.WithoutCancel(ctx)); releaseErr != nil {
			config.LogError(r.Logger, "reconciliationWorkflow.go", "Run", "releasing run lease", nil, releaseErr)
		}
	}()

	deadline := started.Add(r.budget())

	payments, err := r.Ledger.PaymentsInWindow(ctx, params.DateFrom, params.DateTo, params.Limit)
	if err != nil {
		// The abort still leaves an audit trail, with a reduced payload.
		r.recordAudit(ctx, params, started, nil, err)
		return nil, err
	}

	var apiCalls int64
	results, truncated := fetchRemoteStates(ctx, r.Gateway, payments, r.concurrency(), deadline, &apiCalls)

	checked := 0
	paymentsById := make(map[int]models.Payment, len(payments))
	knownExternalIds := make(map[string]bool, len(payments))
	var discrepancies []models.Discrepancy

	// Discrepancies keep the ledger's updated_at ascending order; orphans
	// are appended at the end.
	for _, result := range results {
		if result.skipped {
			continue
		}
		checked++
		paymentsById[result.payment.ID] = result.payment
		if result.payment.ExternalPaymentId == nil {
			continue
		}
		knownExternalIds[*result.payment.ExternalPaymentId] = true
		if result.err != nil {
			config.LogError(r.Logger, "reconciliationWorkflow.go", "Run", "per-payment remote fetch", result.payment.ID, result.err)
			discrepancies = append(discrepancies, remoteFetchFailureDiscrepancy(result.payment, result.err))
			continue
		}
		discrepancies = append(discrepancies, DetectDiscrepancies(result.payment, result.remote)...)
	}

	if !truncated && time.Now().Before(deadline) {
		remotes, listCalls, listErr := r.Gateway.ListPaymentsCreatedBetween(ctx, params.DateFrom, params.DateTo)
		atomic.AddInt64(&apiCalls, int64(listCalls))
		if listErr != nil {
			// Orphan coverage is lost but the per-payment results stand.
			config.LogError(r.Logger, "reconciliationWorkflow.go", "Run", "remote-only enumeration", nil, listErr)
			truncated = true
		} else {
			for _, remote := range remotes {
				if !knownExternalIds[remote.ID] {
					discrepancies = append(discrepancies, orphanDiscrepancy(remote))
				}
			}
		}
	} else {
		truncated = true
	}

	autoCorrected := 0
	if params.AutoCorrect {
		autoCorrected = applyCorrections(ctx, r.Ledger, r.Logger, paymentsById, discrepancies)
	}

	report := assembleReport(params, started, checked, discrepancies, autoCorrected, atomic.LoadInt64(&apiCalls), truncated)
	r.recordAudit(ctx, params, started, report, nil)
	return report, nil
}

// assembleReport computes the summary counts from the final discrepancy
// set. manual_review_required counts high-severity discrepancies that did
// not get auto-corrected.
func assembleReport(params models.ReconciliationParams, started time.Time, checked int, discrepancies []models.Discrepancy, autoCorrected int, apiCalls int64, truncated bool) *models.ReconciliationReport {
	manualReview := 0
	for _, d := range discrepancies {
		if d.Severity == models.DiscrepancySeverityHigh && !d.AutoCorrected {
			manualReview++
		}
	}

	if discrepancies == nil {
		discrepancies = []models.Discrepancy{}
	}

	return &models.ReconciliationReport{
		Summary: models.ReconciliationSummary{
			TotalPaymentsChecked: checked,
			DiscrepanciesFound:   len(discrepancies),
			AutoCorrected:        autoCorrected,
			ManualReviewRequired: manualReview,
			ExecutionTimeMs:      time.Since(started).Milliseconds(),
		},
		Discrepancies: discrepancies,
		Metadata: models.ReconciliationMetadata{
			DateRange:          models.DateRange{From: params.DateFrom, To: params.DateTo},
			ExecutionTimestamp: started,
			RemoteApiCalls:     int(apiCalls),
			Truncated:          truncated,
		},
	}
}

// auditDetails is the JSON payload persisted with each run's audit entry.
type auditDetails struct {
	DateFrom             time.Time `json:"date_from"`
	DateTo               time.Time `json:"date_to"`
	Limit                int       `json:"limit"`
	AutoCorrect          bool      `json:"auto_correct"`
	Aborted              bool      `json:"aborted"`
	AbortReason          string    `json:"abort_reason,omitempty"`
	TotalPaymentsChecked int       `json:"total_payments_checked"`
	DiscrepanciesFound   int       `json:"discrepancies_found"`
	AutoCorrected        int       `json:"auto_corrected"`
	ManualReviewRequired int       `json:"manual_review_required"`
	RemoteApiCalls       int       `json:"remote_api_calls"`
	Truncated            bool      `json:"truncated"`
}

// recordAudit appends the run's audit entry, best effort: the financial
// result is more valuable than its own audit trail, so a write failure is
// logged and swallowed. Runs aborted by a ledger failure still get an
// entry with a reduced payload noting the abort.
func (r *Reconciler) recordAudit(ctx context.Context, params models.ReconciliationParams, started time.Time, report *models.ReconciliationReport, runErr error) {
	if r.Audit == nil {
		return
	}

	details := auditDetails{
		DateFrom:    params.DateFrom,
		DateTo:      params.DateTo,
		Limit:       params.Limit,
		AutoCorrect: params.AutoCorrect,
	}
	if runErr != nil {
		details.Aborted = true
		details.AbortReason = runErr.Error()
	}
	if report != nil {
		details.TotalPaymentsChecked = report.Summary.TotalPaymentsChecked
		details.DiscrepanciesFound = report.Summary.DiscrepanciesFound
		details.AutoCorrected = report.Summary.AutoCorrected
		details.ManualReviewRequired = report.Summary.ManualReviewRequired
		details.RemoteApiCalls = report.Metadata.RemoteApiCalls
		details.Truncated = report.Metadata.Truncated
	}

	payload, err := utils.MarshalToJSON(details)
	if err != nil {
		config.LogError(r.Logger, "reconciliationWorkflow.go", "recordAudit", "marshal audit details", nil, err)
		return
	}

	entry := models.AuditLog{
		Action:       models.AuditActionPaymentReconciliation,
		ResourceType: models.AuditResourceTypeSystem,
		Details:      payload,
		PerformedAt:  started,
	}
	if username, ok := utils.GetUsernameFromContext(ctx); ok && username != "" {
		entry.UserName = &username
	}
	if correlationId, ok := utils.GetCorrelationIdFromContext(ctx); ok {
		entry.CorrelationId = correlationId
	}

	if err := r.Audit.Append(ctx, entry); err != nil {
		config.LogError(r.Logger, "reconciliationWorkflow.go", "recordAudit", "append audit entry", entry.Action, err)
	}
}
