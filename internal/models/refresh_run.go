package models

import (
	"time"

	"gorm.io/datatypes"
)

const (
	RunStatusRunning   = "running"
	RunStatusSucceeded = "succeeded"
	RunStatusPartial   = "partial"
	RunStatusFailed    = "failed"
	RunStatusSkipped   = "skipped"
)

// RefreshRun is the audit record of one pipeline tick.
type RefreshRun struct {
	RunID      string         `gorm:"primaryKey;type:varchar(36);comment:run uuid"`
	Trigger    string         `gorm:"type:varchar(16);not null;comment:cron, startup or manual"`
	Status     string         `gorm:"type:varchar(16);not null;index;comment:run outcome"`
	StartedAt  time.Time      `gorm:"not null;index;comment:run start"`
	FinishedAt *time.Time     `gorm:"comment:run end"`
	DurationMS int64          `gorm:"not null;default:0;comment:run duration in ms"`
	Tokens     int            `gorm:"not null;default:0;comment:netflow tokens accepted"`
	RowCount   int            `gorm:"not null;default:0;comment:rows published"`
	LastError  *string        `gorm:"type:text;comment:first fatal or bucket error"`
	StatsJSON  datatypes.JSON `gorm:"comment:per-stage stats"`
}

func (RefreshRun) TableName() string {
	return "refresh_runs"
}
