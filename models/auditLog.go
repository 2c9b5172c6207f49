package models

import (
	"context"
	"time"

	"gorm.io/gorm"
)

const (
	AuditActionPaymentReconciliation = "payment_reconciliation"
	AuditResourceTypeSystem          = "system"
)

// AuditLog is an append-only record of privileged operations. UserName is
// nil for system-initiated runs (scheduler, CLI).
type AuditLog struct {
	ID            int       `gorm:"primary_key" json:"id"`
	Action        string    `gorm:"size:100;not null;index" json:"action"`
	ResourceType  string    `gorm:"size:100;not null" json:"resource_type"`
	UserName      *string   `gorm:"size:100" json:"user_name"`
	Details       string    `gorm:"type:text" json:"details"`
	CorrelationId string    `gorm:"size:64;index" json:"correlation_id"`
	PerformedAt   time.Time `gorm:"not null;index" json:"performed_at"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}

type AuditLogStore struct {
	DB *gorm.DB
}

func (s *AuditLogStore) Append(ctx context.Context, entry AuditLog) error {
	return s.DB.WithContext(ctx).Create(&entry).Error
}

// RecentByAction lists the newest audit entries for one action, for the
// internal ops endpoint.
func (s *AuditLogStore) RecentByAction(ctx context.Context, action string, limit int) ([]AuditLog, error) {
	var entries []AuditLog
	err := s.DB.WithContext(ctx).
		Where("action = ?", action).
		Order("performed_at DESC").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}
