package models

import (
	"time"

	"github.com/ahmadzakiakmal/scrumchain/fingerprint"
)

// BacklogItem is a unit of work not yet planned into a sprint
type BacklogItem struct {
	ID          uint64    `gorm:"column:backlog_item_id;primaryKey;autoIncrement" json:"id"`
	TeamID      uint64    `gorm:"column:team_id;index;not null" json:"team_id"`
	Team        *Team     `gorm:"foreignKey:TeamID" json:"-"`
	Title       string    `gorm:"column:title;type:varchar(200);not null" json:"title"`
	Description string    `gorm:"column:description;type:text" json:"description"`
	Priority    int       `gorm:"column:priority;default:0" json:"priority"`
	Estimate    int       `gorm:"column:estimate;default:0" json:"estimate"`
	LedgerID    *uint64   `gorm:"column:ledger_id;index" json:"ledger_id"`
	LastTxHash  *string   `gorm:"column:last_tx_hash;type:varchar(66)" json:"last_tx_hash"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (b *BacklogItem) EntityKind() Kind   { return KindBacklogItem }
func (b *BacklogItem) EntityID() uint64   { return b.ID }
func (b *BacklogItem) LedgerRef() *uint64 { return b.LedgerID }

func (b *BacklogItem) FingerprintFields() []fingerprint.Field {
	return []fingerprint.Field{
		fingerprint.F("title", b.Title),
		fingerprint.F("description", b.Description),
		fingerprint.F("priority", b.Priority),
		fingerprint.F("estimate", b.Estimate),
	}
}
