package model

import (
	"time"

	"gorm.io/datatypes"
)

// AuditLog records quest mutations and admin actions.
type AuditLog struct {
	ID         int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	TraceID    string         `gorm:"index:idx_audit_trace;size:36;not null" json:"trace_id"`
	AccountID  *int64         `gorm:"index:idx_audit_account" json:"account_id"`
	Username   string         `gorm:"size:32" json:"username"`
	Action     string         `gorm:"size:64;not null" json:"action"`
	QuestID    string         `gorm:"index:idx_audit_quest;size:36" json:"quest_id"`
	Request    datatypes.JSON `json:"request"`
	Error      string         `gorm:"type:text" json:"error"`
	IP         string         `gorm:"size:45" json:"ip"`
	DurationMs int            `json:"duration_ms"`
	CreatedAt  time.Time      `gorm:"index:idx_audit_created;autoCreateTime:milli" json:"created_at"`
}
