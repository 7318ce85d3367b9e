package models

import (
	"time"

	"github.com/ahmadzakiakmal/scrumchain/fingerprint"
)

// Team owns sprints and backlog items
type Team struct {
	ID          uint64    `gorm:"column:team_id;primaryKey;autoIncrement" json:"id"`
	Name        string    `gorm:"column:name;type:varchar(100);not null" json:"name"`
	Description string    `gorm:"column:description;type:text" json:"description"`
	LedgerID    *uint64   `gorm:"column:ledger_id;index" json:"ledger_id"` // Null until the register transaction confirms
	LastTxHash  *string   `gorm:"column:last_tx_hash;type:varchar(66)" json:"last_tx_hash"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`

	// Relationships
	Sprints      []Sprint      `gorm:"foreignKey:TeamID" json:"-"`
	BacklogItems []BacklogItem `gorm:"foreignKey:TeamID" json:"-"`
}

func (t *Team) EntityKind() Kind   { return KindTeam }
func (t *Team) EntityID() uint64   { return t.ID }
func (t *Team) LedgerRef() *uint64 { return t.LedgerID }

func (t *Team) FingerprintFields() []fingerprint.Field {
	return []fingerprint.Field{
		fingerprint.F("name", t.Name),
		fingerprint.F("description", t.Description),
	}
}
