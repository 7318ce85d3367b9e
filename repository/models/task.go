package models

import (
	"time"

	"github.com/ahmadzakiakmal/scrumchain/fingerprint"
	"gorm.io/gorm"
)

// Task statuses
const (
	TaskTodo       = "todo"
	TaskInProgress = "in_progress"
	TaskReview     = "review"
	TaskDone       = "done"
	TaskRemoved    = "removed"
)

// Task is a piece of sprint work. Tasks are soft deleted.
type Task struct {
	ID          uint64         `gorm:"column:task_id;primaryKey;autoIncrement" json:"id"`
	SprintID    uint64         `gorm:"column:sprint_id;index;not null" json:"sprint_id"`
	Sprint      *Sprint        `gorm:"foreignKey:SprintID" json:"-"`
	Title       string         `gorm:"column:title;type:varchar(200);not null" json:"title"`
	Description string         `gorm:"column:description;type:text" json:"description"`
	Estimate    int            `gorm:"column:estimate;default:0" json:"estimate"`
	Status      string         `gorm:"column:status;type:varchar(20);default:'todo'" json:"status"`
	Assignee    *string        `gorm:"column:assignee;type:varchar(64)" json:"assignee"` // Ledger address, hex
	LedgerID    *uint64        `gorm:"column:ledger_id;index" json:"ledger_id"`
	LastTxHash  *string        `gorm:"column:last_tx_hash;type:varchar(66)" json:"last_tx_hash"`
	CreatedAt   time.Time      `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"column:deleted_at;index" json:"-"`
}

func (t *Task) EntityKind() Kind   { return KindTask }
func (t *Task) EntityID() uint64   { return t.ID }
func (t *Task) LedgerRef() *uint64 { return t.LedgerID }

func (t *Task) FingerprintFields() []fingerprint.Field {
	return []fingerprint.Field{
		fingerprint.F("title", t.Title),
		fingerprint.F("description", t.Description),
		fingerprint.F("estimate", t.Estimate),
	}
}
