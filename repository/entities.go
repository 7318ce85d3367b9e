package repository

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/ahmadzakiakmal/scrumchain/repository/models"
	"gorm.io/gorm"
)

// FindEntity loads any ledgered entity by kind and local id
func (r *Repository) FindEntity(ctx context.Context, kind models.Kind, id uint64) (models.Entity, error) {
	return findEntity(r.db.WithContext(ctx), kind, id)
}

func findEntity(db *gorm.DB, kind models.Kind, id uint64) (models.Entity, error) {
	e := models.NewEntity(kind)
	if e == nil {
		return nil, &RepositoryError{
			Code:    CodeInvalidField,
			Message: "Unknown entity kind",
			Detail:  string(kind),
		}
	}
	err := db.Where(kind.PrimaryKey()+" = ?", id).First(e).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound(kind, id)
		}
		return nil, newRepositoryError(err)
	}
	return e, nil
}

// Entities is the relational store of one entity kind. E is the model pointer type.
type Entities[E models.Entity] struct {
	r    *Repository
	kind models.Kind
}

func NewEntities[E models.Entity](r *Repository) *Entities[E] {
	var zero E
	return &Entities[E]{r: r, kind: zero.EntityKind()}
}

func (s *Entities[E]) Kind() models.Kind {
	return s.kind
}

func (s *Entities[E]) Create(ctx context.Context, e E) error {
	if err := s.r.db.WithContext(ctx).Create(e).Error; err != nil {
		return newRepositoryError(err)
	}
	return nil
}

func (s *Entities[E]) Get(ctx context.Context, id uint64) (E, error) {
	e, err := s.r.FindEntity(ctx, s.kind, id)
	if err != nil {
		var zero E
		return zero, err
	}
	return e.(E), nil
}

// Update applies a partial update: only the provided columns change.
// Columns outside the kind's whitelist are rejected before any write. When
// check is set it sees the updated entity inside the transaction, and an error
// from it rolls the update back and is returned as is.
func (s *Entities[E]) Update(ctx context.Context, id uint64, fields map[string]any, check func(E) error) (E, error) {
	var zero E
	allowed := s.kind.UpdatableColumns()
	for col := range fields {
		if !slices.Contains(allowed, col) {
			return zero, &RepositoryError{
				Code:    CodeInvalidField,
				Message: "Field cannot be updated",
				Detail:  fmt.Sprintf("%s has no updatable field %q", s.kind, col),
			}
		}
	}
	return s.update(ctx, id, fields, check)
}

func (s *Entities[E]) SetStatus(ctx context.Context, id uint64, status string) (E, error) {
	return s.update(ctx, id, map[string]any{"status": status}, nil)
}

func (s *Entities[E]) SetAssignee(ctx context.Context, id uint64, assignee *string) (E, error) {
	return s.update(ctx, id, map[string]any{"assignee": assignee}, nil)
}

func (s *Entities[E]) update(ctx context.Context, id uint64, fields map[string]any, check func(E) error) (E, error) {
	var zero E
	var out models.Entity
	var rejected error
	err := s.r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		e, err := findEntity(tx, s.kind, id)
		if err != nil {
			return err
		}
		if len(fields) > 0 {
			if err := tx.Model(e).Updates(fields).Error; err != nil {
				return err
			}
		}
		if out, err = findEntity(tx, s.kind, id); err != nil {
			return err
		}
		if check != nil {
			rejected = check(out.(E))
		}
		return rejected
	})
	if rejected != nil {
		return zero, rejected
	}
	if err != nil {
		return zero, newRepositoryError(err)
	}
	return out.(E), nil
}

// Remove deletes the entity and returns it as it was before removal.
// Kinds with a deleted_at column are soft deleted with their status set to
// removed; the others are deleted outright.
func (s *Entities[E]) Remove(ctx context.Context, id uint64) (E, error) {
	var zero E
	var removed models.Entity
	err := s.r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		e, err := findEntity(tx, s.kind, id)
		if err != nil {
			return err
		}
		switch v := e.(type) {
		case *models.Sprint:
			var live int64
			if err := tx.Model(&models.Task{}).Where("sprint_id = ?", v.ID).Count(&live).Error; err != nil {
				return err
			}
			if live > 0 {
				return &RepositoryError{
					Code:    CodeConflict,
					Message: "Sprint still has tasks",
					Detail:  fmt.Sprintf("sprint %d has %d tasks that must be removed first", v.ID, live),
				}
			}
		case *models.Task:
			if err := tx.Model(v).Update("status", models.TaskRemoved).Error; err != nil {
				return err
			}
			v.Status = models.TaskRemoved
		}
		if err := tx.Delete(e).Error; err != nil {
			return err
		}
		removed = e
		return nil
	})
	if err != nil {
		return zero, newRepositoryError(err)
	}
	return removed.(E), nil
}

// SetLastTxHash points the entity at rec when no newer transaction is already
// recorded there. Receipts can be applied out of submission order, so a late
// receipt never replaces a later transaction. Soft deleted rows are included.
func (r *Repository) SetLastTxHash(ctx context.Context, rec *models.Transaction) error {
	err := r.db.WithContext(ctx).Unscoped().
		Model(models.NewEntity(rec.EntityKind)).
		Where(rec.EntityKind.PrimaryKey()+" = ?", rec.EntityID).
		Where("(last_tx_hash IS NULL OR NOT EXISTS (SELECT 1 FROM ledger_transactions lt WHERE lt.tx_hash = last_tx_hash AND lt.created_at > ?))", rec.CreatedAt).
		Update("last_tx_hash", rec.TxHash).Error
	if err != nil {
		return newRepositoryError(err)
	}
	return nil
}
