package models

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wavehaus/bookings_backend/utils"
	"gorm.io/gorm"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
)

// Payment is one local ledger row for a booking charge. It is mutated only
// by the normal booking flow and by reconciliation corrections; the
// ExternalPaymentId links it to the processor's record and is nullable for
// payments that never reached the processor (e.g. pay-on-arrival).
type Payment struct {
	ID                int             `gorm:"primary_key" json:"id"`
	BookingId         int             `gorm:"index;not null" json:"booking_id" binding:"required"`
	ExternalPaymentId *string         `gorm:"size:255;index" json:"external_payment_id"`
	Amount            decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount"`
	RefundedAmount    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"refunded_amount"`
	Status            PaymentStatus   `gorm:"size:20;not null;default:'pending'" json:"status"`
	CreatedAt         time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// PaymentCorrection is the set of remote-derived values a correction write
// applies to a payment row. Nil fields are left untouched.
type PaymentCorrection struct {
	Amount         *decimal.Decimal
	RefundedAmount *decimal.Decimal
	Status         *PaymentStatus
}

func (c PaymentCorrection) IsEmpty() bool {
	return c.Amount == nil && c.RefundedAmount == nil && c.Status == nil
}

// Merge folds another correction into this one. Later values win, which is
// safe here because all corrections for one payment derive from the same
// remote snapshot.
func (c PaymentCorrection) Merge(other PaymentCorrection) PaymentCorrection {
	if other.Amount != nil {
		c.Amount = other.Amount
	}
	if other.RefundedAmount != nil {
		c.RefundedAmount = other.RefundedAmount
	}
	if other.Status != nil {
		c.Status = other.Status
	}
	return c
}

// PaymentStore is the gorm-backed local ledger access used by the
// reconciliation workflow.
type PaymentStore struct {
	DB *gorm.DB
}

// PaymentsInWindow returns payments whose updated_at falls in [from, to),
// oldest first, capped at limit. Any store failure aborts the whole run,
// so it surfaces as a DatabaseError.
func (s *PaymentStore) PaymentsInWindow(ctx context.Context, from, to time.Time, limit int) ([]Payment, error) {
	var payments []Payment
	err := s.DB.WithContext(ctx).
		Where("updated_at >= ? AND updated_at < ?", from, to).
		Order("updated_at ASC").
		Limit(limit).
		Find(&payments).Error
	if err != nil {
		return nil, &utils.DatabaseError{Err: err}
	}
	return payments, nil
}

// ApplyCorrection issues a conditional write: the update only lands if the
// row's updated_at still matches what the run observed, so a concurrent
// legitimate booking-flow update wins and the correction is dropped.
// Returns false (no error) on that concurrency conflict.
func (s *PaymentStore) ApplyCorrection(ctx context.Context, paymentId int, observedUpdatedAt time.Time, fix PaymentCorrection) (bool, error) {
	set := map[string]interface{}{}
	if fix.Amount != nil {
		set["amount"] = *fix.Amount
	}
	if fix.RefundedAmount != nil {
		set["refunded_amount"] = *fix.RefundedAmount
	}
	if fix.Status != nil {
		set["status"] = *fix.Status
	}
	if len(set) == 0 {
		return false, nil
	}

	res := s.DB.WithContext(ctx).Model(&Payment{}).
		Where("id = ? AND updated_at = ?", paymentId, observedUpdatedAt).
		Updates(set)
	if res.Error != nil {
		return false, &utils.DatabaseError{Err: res.Error}
	}
	return res.RowsAffected == 1, nil
}
