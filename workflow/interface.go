package workflow

import (
	"context"
	"time"

	"github.com/wavehaus/bookings_backend/models"
	"github.com/wavehaus/bookings_backend/processor"
)

// The reconciler depends on these narrow contracts instead of gorm or HTTP
// directly, so run logic stays testable against in-memory fakes.

// LocalLedger reads the payment rows under audit and applies conditional
// correction writes.
type LocalLedger interface {
	PaymentsInWindow(ctx context.Context, from, to time.Time, limit int) ([]models.Payment, error)
	ApplyCorrection(ctx context.Context, paymentId int, observedUpdatedAt time.Time, fix models.PaymentCorrection) (bool, error)
}

// ProcessorGateway is the read-only view of the external payment processor.
type ProcessorGateway interface {
	RetrievePayment(ctx context.Context, externalId string) (*processor.Payment, error)
	ListPaymentsCreatedBetween(ctx context.Context, from, to time.Time) ([]processor.Payment, int, error)
}

// AuditRecorder appends one immutable entry per run.
type AuditRecorder interface {
	Append(ctx context.Context, entry models.AuditLog) error
}
