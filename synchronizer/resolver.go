package synchronizer

import (
	"context"
	"errors"
	"fmt"

	"github.com/ahmadzakiakmal/scrumchain/ledger"
	"github.com/ahmadzakiakmal/scrumchain/repository"
	"github.com/ahmadzakiakmal/scrumchain/repository/models"
	cmtlog "github.com/cometbft/cometbft/libs/log"
)

// Resolver seals pending records from receipts. Synchronizers and the sweeper
// share it so a receipt has the same effect whoever observes it.
type Resolver struct {
	repo   *repository.Repository
	logger cmtlog.Logger
}

func NewResolver(repo *repository.Repository, logger cmtlog.Logger) *Resolver {
	return &Resolver{repo: repo, logger: logger.With("module", "resolver")}
}

// Apply seals rec from receipt and returns the sealed record. A reverted
// transaction yields ErrLedgerConfirmationFailed; a confirmed create without
// its registered event yields ErrReconciliation. Other errors come from the
// record store.
func (r *Resolver) Apply(ctx context.Context, rec *models.Transaction, receipt *ledger.Receipt) (*models.Transaction, error) {
	if !receipt.Success {
		msg := fmt.Sprintf("reverted with code %d: %s", receipt.Code, receipt.Log)
		sealed, err := r.repo.MarkFailed(ctx, rec.TxHash, msg)
		if err != nil {
			return nil, err
		}
		return sealed, r.outcome(sealed)
	}

	conf := repository.Confirmation{BlockNumber: receipt.BlockNumber, GasUsed: receipt.GasUsed}
	if rec.TransactionType != models.TxTypeCreate {
		sealed, err := r.repo.MarkConfirmed(ctx, rec.TxHash, conf)
		if err != nil {
			return nil, err
		}
		if sealed.Status == models.TxConfirmed {
			if err := r.repo.SetLastTxHash(ctx, sealed); err != nil {
				return sealed, err
			}
		}
		return sealed, r.outcome(sealed)
	}

	event := ledger.RegisteredEvent(string(rec.EntityKind))
	ledgerID, ok := receipt.LedgerID(event)
	if !ok {
		sealed, err := r.repo.MarkConfirmed(ctx, rec.TxHash, conf)
		if err != nil {
			return nil, err
		}
		r.logger.Error("Confirmed create carries no ledger id", "tx", rec.TxHash, "event", event)
		return sealed, r.outcome(sealed)
	}
	sealed, err := r.repo.ConfirmCreation(ctx, rec.TxHash, conf, ledgerID)
	if err != nil {
		return nil, err
	}
	return sealed, r.outcome(sealed)
}

// outcome classifies a sealed record
func (r *Resolver) outcome(sealed *models.Transaction) error {
	kind := string(sealed.EntityKind)
	switch {
	case sealed.Status == models.TxFailed:
		confirmationsTotal.WithLabelValues(kind, outcomeFailed).Inc()
		var cause error
		if sealed.ErrorMessage != nil {
			cause = errors.New(*sealed.ErrorMessage)
		}
		return syncErr(ErrLedgerConfirmationFailed, sealed.EntityKind, sealed.TransactionType, sealed.TxHash, cause)
	case sealed.TransactionType == models.TxTypeCreate && sealed.LedgerID == nil:
		confirmationsTotal.WithLabelValues(kind, outcomeReconciliation).Inc()
		return syncErr(ErrReconciliation, sealed.EntityKind, sealed.TransactionType, sealed.TxHash,
			fmt.Errorf("receipt has no %s event", ledger.RegisteredEvent(kind)))
	default:
		confirmationsTotal.WithLabelValues(kind, outcomeConfirmed).Inc()
		return nil
	}
}
