package models

import (
	"time"
)

// AuditLog records operator actions on the ledger (issues, forced status
// transitions, sweeps). Actor identity is resolved upstream; the ledger only
// stores the opaque actor id it was given.
type AuditLog struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Actor     string    `gorm:"size:100;not null;index" json:"actor"`
	Action    string    `gorm:"size:50;not null" json:"action"` // ISSUE, SET_STATUS, SWEEP
	Entity    string    `gorm:"size:50;not null" json:"entity"` // DemandNote, Installment
	EntityID  uint      `json:"entity_id"`
	Details   string    `gorm:"type:text" json:"details"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName specifies the table name for AuditLog
func (AuditLog) TableName() string {
	return "audit_logs"
}

// Audit action constants
const (
	AuditActionIssue     = "ISSUE"
	AuditActionSetStatus = "SET_STATUS"
	AuditActionSweep     = "SWEEP"
)
