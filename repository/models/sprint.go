package models

import (
	"time"

	"github.com/ahmadzakiakmal/scrumchain/fingerprint"
)

// Sprint statuses
const (
	SprintPlanning  = "planning"
	SprintActive    = "active"
	SprintCompleted = "completed"
	SprintCancelled = "cancelled"
)

// Sprint is a time-boxed iteration of a team
type Sprint struct {
	ID          uint64    `gorm:"column:sprint_id;primaryKey;autoIncrement" json:"id"`
	TeamID      uint64    `gorm:"column:team_id;index;not null" json:"team_id"`
	Team        *Team     `gorm:"foreignKey:TeamID" json:"-"`
	Name        string    `gorm:"column:name;type:varchar(100);not null" json:"name"`
	Description string    `gorm:"column:description;type:text" json:"description"`
	StartDate   time.Time `gorm:"column:start_date;not null" json:"start_date"`
	EndDate     time.Time `gorm:"column:end_date;not null" json:"end_date"`
	Status      string    `gorm:"column:status;type:varchar(20);default:'planning'" json:"status"`
	LedgerID    *uint64   `gorm:"column:ledger_id;index" json:"ledger_id"`
	LastTxHash  *string   `gorm:"column:last_tx_hash;type:varchar(66)" json:"last_tx_hash"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`

	// Relationships
	Tasks []Task `gorm:"foreignKey:SprintID;constraint:OnDelete:CASCADE" json:"-"`
}

func (s *Sprint) EntityKind() Kind   { return KindSprint }
func (s *Sprint) EntityID() uint64   { return s.ID }
func (s *Sprint) LedgerRef() *uint64 { return s.LedgerID }

func (s *Sprint) FingerprintFields() []fingerprint.Field {
	return []fingerprint.Field{
		fingerprint.F("name", s.Name),
		fingerprint.F("description", s.Description),
		fingerprint.F("start_date", s.StartDate),
		fingerprint.F("end_date", s.EndDate),
	}
}
