package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ahmadzakiakmal/scrumchain/repository/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// PendingTransaction describes a submission the ledger accepted
type PendingTransaction struct {
	TxHash      string
	Type        string
	Kind        models.Kind
	EntityID    uint64
	Fingerprint string
	Description string
	Requester   string
}

// Confirmation carries the inclusion data of a successful receipt
type Confirmation struct {
	BlockNumber int64
	GasUsed     int64
}

// TransactionFilter narrows history queries. Zero values match everything.
type TransactionFilter struct {
	Kind     models.Kind
	EntityID *uint64
	Status   string
	Type     string
	From     *time.Time
	To       *time.Time
	Page     int
	PageSize int
}

type TransactionPage struct {
	Items      []models.Transaction `json:"items"`
	Total      int64                `json:"total"`
	Page       int                  `json:"page"`
	PageSize   int                  `json:"page_size"`
	TotalPages int                  `json:"total_pages"`
}

type TransactionStats struct {
	Total     int64            `json:"total"`
	Confirmed int64            `json:"confirmed"`
	Pending   int64            `json:"pending"`
	Failed    int64            `json:"failed"`
	ByType    map[string]int64 `json:"by_type"`
}

// RecordPending inserts a new pending record. It is the only way rows are created,
// and an existing row is never overwritten.
func (r *Repository) RecordPending(ctx context.Context, p PendingTransaction) error {
	rec := models.Transaction{
		TxHash:          p.TxHash,
		TransactionType: p.Type,
		EntityKind:      p.Kind,
		EntityID:        p.EntityID,
		Status:          models.TxPending,
		Fingerprint:     p.Fingerprint,
		Description:     p.Description,
		Requester:       p.Requester,
	}
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&rec)
	if res.Error != nil {
		return newRepositoryError(res.Error)
	}
	if res.RowsAffected == 0 {
		return &RepositoryError{
			Code:    CodeDuplicateTransaction,
			Message: "Transaction already recorded",
			Detail:  p.TxHash,
			err:     ErrDuplicateTransaction,
		}
	}
	r.logger.Debug("Recorded pending transaction", "tx", p.TxHash, "type", p.Type, "kind", p.Kind, "id", p.EntityID)
	return nil
}

// MarkConfirmed seals a pending record as confirmed. A record that is already
// sealed is returned unchanged.
func (r *Repository) MarkConfirmed(ctx context.Context, txHash string, c Confirmation) (*models.Transaction, error) {
	rec, _, err := seal(r.db.WithContext(ctx), txHash, confirmedValues(c, nil))
	return rec, err
}

// MarkFailed seals a pending record as failed. A record that is already sealed
// is returned unchanged.
func (r *Repository) MarkFailed(ctx context.Context, txHash string, message string) (*models.Transaction, error) {
	rec, changed, err := seal(r.db.WithContext(ctx), txHash, map[string]any{
		"status":        models.TxFailed,
		"error_message": message,
	})
	if changed {
		r.logger.Info("Transaction failed", "tx", txHash, "reason", message)
	}
	return rec, err
}

// ConfirmCreation seals a create record with the emitted ledger id and links the
// entity in the same database transaction. The entity's ledger_id is only set
// while it is still null.
func (r *Repository) ConfirmCreation(ctx context.Context, txHash string, c Confirmation, ledgerID uint64) (*models.Transaction, error) {
	var rec *models.Transaction
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		rec, _, err = seal(tx, txHash, confirmedValues(c, &ledgerID))
		if err != nil {
			return err
		}
		if rec.Status != models.TxConfirmed || rec.LedgerID == nil {
			return nil
		}
		return tx.Unscoped().
			Model(models.NewEntity(rec.EntityKind)).
			Where(rec.EntityKind.PrimaryKey()+" = ? AND ledger_id IS NULL", rec.EntityID).
			Updates(map[string]any{
				"ledger_id":    *rec.LedgerID,
				"last_tx_hash": rec.TxHash,
			}).Error
	})
	if err != nil {
		return nil, newRepositoryError(err)
	}
	return rec, nil
}

func confirmedValues(c Confirmation, ledgerID *uint64) map[string]any {
	values := map[string]any{
		"status":       models.TxConfirmed,
		"block_number": c.BlockNumber,
		"gas_used":     c.GasUsed,
		"confirmed_at": time.Now().UTC(),
	}
	if ledgerID != nil {
		values["ledger_id"] = *ledgerID
	}
	return values
}

// seal transitions a pending record. The conditional update makes concurrent
// and repeated deliveries safe: only the first one changes the row.
func seal(db *gorm.DB, txHash string, values map[string]any) (*models.Transaction, bool, error) {
	res := db.Model(&models.Transaction{}).
		Where("tx_hash = ? AND status = ?", txHash, models.TxPending).
		Updates(values)
	if res.Error != nil {
		return nil, false, newRepositoryError(res.Error)
	}

	var rec models.Transaction
	if err := db.Where("tx_hash = ?", txHash).First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, &RepositoryError{
				Code:    CodeTransactionNotFound,
				Message: "Transaction does not exist",
				Detail:  txHash,
				err:     ErrTransactionNotFound,
			}
		}
		return nil, false, newRepositoryError(err)
	}
	return &rec, res.RowsAffected == 1, nil
}

func (r *Repository) GetTransaction(ctx context.Context, txHash string) (*models.Transaction, error) {
	var rec models.Transaction
	err := r.db.WithContext(ctx).Where("tx_hash = ?", txHash).First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &RepositoryError{
				Code:    CodeTransactionNotFound,
				Message: "Transaction does not exist",
				Detail:  txHash,
				err:     ErrTransactionNotFound,
			}
		}
		return nil, newRepositoryError(err)
	}
	return &rec, nil
}

func (f TransactionFilter) apply(db *gorm.DB) *gorm.DB {
	if f.Kind != "" {
		db = db.Where("entity_kind = ?", f.Kind)
	}
	if f.EntityID != nil {
		db = db.Where("entity_id = ?", *f.EntityID)
	}
	if f.Status != "" {
		db = db.Where("status = ?", f.Status)
	}
	if f.Type != "" {
		db = db.Where("transaction_type = ?", f.Type)
	}
	if f.From != nil {
		db = db.Where("created_at >= ?", *f.From)
	}
	if f.To != nil {
		db = db.Where("created_at <= ?", *f.To)
	}
	return db
}

// QueryTransactions returns one page of history, newest first
func (r *Repository) QueryTransactions(ctx context.Context, f TransactionFilter) (*TransactionPage, error) {
	page := max(f.Page, 1)
	size := f.PageSize
	if size <= 0 {
		size = DefaultPageSize
	}
	size = min(size, MaxPageSize)

	base := f.apply(r.db.WithContext(ctx).Model(&models.Transaction{}))

	var total int64
	if err := base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, newRepositoryError(err)
	}

	items := []models.Transaction{}
	err := base.Session(&gorm.Session{}).
		Order("created_at DESC").
		Order("tx_hash DESC").
		Offset((page - 1) * size).
		Limit(size).
		Find(&items).Error
	if err != nil {
		return nil, newRepositoryError(err)
	}

	return &TransactionPage{
		Items:      items,
		Total:      total,
		Page:       page,
		PageSize:   size,
		TotalPages: int((total + int64(size) - 1) / int64(size)),
	}, nil
}

func (r *Repository) TransactionStats(ctx context.Context, f TransactionFilter) (*TransactionStats, error) {
	type row struct {
		Label string
		N     int64
	}
	base := f.apply(r.db.WithContext(ctx).Model(&models.Transaction{}))

	var byStatus []row
	err := base.Session(&gorm.Session{}).
		Select("status AS label, COUNT(*) AS n").
		Group("status").
		Scan(&byStatus).Error
	if err != nil {
		return nil, newRepositoryError(err)
	}
	var byType []row
	err = base.Session(&gorm.Session{}).
		Select("transaction_type AS label, COUNT(*) AS n").
		Group("transaction_type").
		Scan(&byType).Error
	if err != nil {
		return nil, newRepositoryError(err)
	}

	stats := &TransactionStats{ByType: make(map[string]int64, len(byType))}
	for _, s := range byStatus {
		stats.Total += s.N
		switch s.Label {
		case models.TxConfirmed:
			stats.Confirmed = s.N
		case models.TxPending:
			stats.Pending = s.N
		case models.TxFailed:
			stats.Failed = s.N
		}
	}
	for _, t := range byType {
		stats.ByType[t.Label] = t.N
	}
	return stats, nil
}

// PendingTransactions lists unresolved records created before olderThan, oldest first
func (r *Repository) PendingTransactions(ctx context.Context, olderThan time.Time, limit int) ([]models.Transaction, error) {
	var recs []models.Transaction
	q := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", models.TxPending, olderThan).
		Order("created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&recs).Error; err != nil {
		return nil, newRepositoryError(err)
	}
	return recs, nil
}

// LatestConfirmedFingerprint returns the newest confirmed record of the entity
// that committed a fingerprint
func (r *Repository) LatestConfirmedFingerprint(ctx context.Context, kind models.Kind, id uint64) (*models.Transaction, error) {
	var rec models.Transaction
	err := r.db.WithContext(ctx).
		Where("entity_kind = ? AND entity_id = ? AND status = ? AND fingerprint <> ''", kind, id, models.TxConfirmed).
		Order("created_at DESC").
		Order("confirmed_at DESC").
		First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &RepositoryError{
				Code:    CodeTransactionNotFound,
				Message: "No confirmed fingerprint",
				Detail:  fmt.Sprintf("%s %d has no confirmed fingerprint", kind, id),
				err:     ErrTransactionNotFound,
			}
		}
		return nil, newRepositoryError(err)
	}
	return &rec, nil
}
