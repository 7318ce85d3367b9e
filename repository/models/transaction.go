package models

import "time"

// Transaction record statuses
const (
	TxPending   = "pending"
	TxConfirmed = "confirmed"
	TxFailed    = "failed"
)

// Transaction types
const (
	TxTypeCreate       = "create"
	TxTypeUpdate       = "update"
	TxTypeStatusChange = "status_change"
	TxTypeAssign       = "assign"
	TxTypeRemove       = "remove"
)

// Transaction is the local record of one submitted ledger transaction.
// Rows are written pending and sealed once confirmed or failed.
type Transaction struct {
	TxHash          string  `gorm:"column:tx_hash;type:varchar(66);primaryKey" json:"tx_hash"`
	TransactionType string  `gorm:"column:transaction_type;type:varchar(20);index;not null" json:"transaction_type"`
	EntityKind      Kind    `gorm:"column:entity_kind;type:varchar(20);index:idx_tx_entity;not null" json:"entity_kind"`
	EntityID        uint64  `gorm:"column:entity_id;index:idx_tx_entity;not null" json:"entity_id"`
	Status          string  `gorm:"column:status;type:varchar(20);index;not null;default:'pending'" json:"status"`
	BlockNumber     *int64  `gorm:"column:block_number" json:"block_number"`
	GasUsed         *int64  `gorm:"column:gas_used" json:"gas_used"`
	ErrorMessage    *string `gorm:"column:error_message;type:text" json:"error_message"`
	// Identifier emitted by a confirmed create
	LedgerID *uint64 `gorm:"column:ledger_id" json:"ledger_id"`
	// Digest committed by this transaction, if any
	Fingerprint string     `gorm:"column:fingerprint;type:varchar(64)" json:"fingerprint"`
	Description string     `gorm:"column:description;type:text" json:"description"`
	Requester   string     `gorm:"column:requester;type:varchar(100)" json:"requester"`
	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime;index" json:"created_at"`
	ConfirmedAt *time.Time `gorm:"column:confirmed_at" json:"confirmed_at"`
}

// TableName keeps the ledger history apart from any application "transactions" table
func (Transaction) TableName() string {
	return "ledger_transactions"
}

// Resolved reports whether the record has left the pending state
func (t *Transaction) Resolved() bool {
	return t.Status != TxPending
}
