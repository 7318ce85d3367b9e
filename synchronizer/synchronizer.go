// Package synchronizer keeps relational entities and their ledger records in
// step: every mutation is written locally, fingerprinted, submitted, tracked
// as a pending transaction and reconciled from the receipt.
package synchronizer

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ahmadzakiakmal/scrumchain/ledger"
	"github.com/ahmadzakiakmal/scrumchain/repository"
	"github.com/ahmadzakiakmal/scrumchain/repository/models"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const DefaultConfirmTimeout = 30 * time.Second

// Result is the outcome of a synchronized operation. The relational write has
// happened whenever a Result is returned; SyncErr reports what went wrong on
// the ledger side.
type Result[E models.Entity] struct {
	Entity   E
	TxHash   string
	Ledgered bool // the ledger confirmed a transaction for this operation
	SyncErr  error
}

// Integrity compares an entity's current fingerprint with the last one the
// ledger confirmed
type Integrity struct {
	Kind     models.Kind `json:"kind"`
	ID       uint64      `json:"id"`
	LedgerID uint64      `json:"ledger_id"`
	Computed string      `json:"computed"`
	Recorded string      `json:"recorded"`
	TxHash   string      `json:"tx_hash"`
	Match    bool        `json:"match"`
}

type Options struct {
	ConfirmTimeout time.Duration
	Locks          *KeyedLock // nil gives the synchronizer its own
}

// Synchronizer runs the create/update/status/assign/remove workflows for one kind
type Synchronizer[E models.Entity] struct {
	desc     Descriptor[E]
	store    *repository.Entities[E]
	repo     *repository.Repository
	client   ledger.Client
	resolver *Resolver
	locks    *KeyedLock
	timeout  time.Duration
	logger   cmtlog.Logger

	background sync.WaitGroup
}

func New[E models.Entity](desc Descriptor[E], repo *repository.Repository, client ledger.Client, opts Options, logger cmtlog.Logger) *Synchronizer[E] {
	if opts.ConfirmTimeout <= 0 {
		opts.ConfirmTimeout = DefaultConfirmTimeout
	}
	if opts.Locks == nil {
		opts.Locks = NewKeyedLock()
	}
	return &Synchronizer[E]{
		desc:     desc,
		store:    repository.NewEntities[E](repo),
		repo:     repo,
		client:   client,
		resolver: NewResolver(repo, logger),
		locks:    opts.Locks,
		timeout:  opts.ConfirmTimeout,
		logger:   logger.With("module", "synchronizer", "kind", desc.Kind),
	}
}

func (s *Synchronizer[E]) Kind() models.Kind {
	return s.desc.Kind
}

// Get reads the entity without touching the ledger
func (s *Synchronizer[E]) Get(ctx context.Context, id uint64) (E, error) {
	return s.store.Get(ctx, id)
}

func (s *Synchronizer[E]) lock(ctx context.Context, id uint64) (func(), error) {
	return s.locks.Acquire(ctx, fmt.Sprintf("%s/%d", s.desc.Kind, id))
}

func (s *Synchronizer[E]) startSpan(ctx context.Context, op string, id uint64) (context.Context, trace.Span) {
	return tracer.Start(ctx, "synchronizer."+op, trace.WithAttributes(
		attribute.String("entity.kind", string(s.desc.Kind)),
		attribute.Int64("entity.id", int64(id)),
	))
}

func endSpan[E models.Entity](span trace.Span, res *Result[E], err error) {
	if err == nil && res != nil {
		err = res.SyncErr
	}
	if res != nil && res.TxHash != "" {
		span.SetAttributes(attribute.String("ledger.tx_hash", res.TxHash))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// Create stores the entity and registers it on the ledger. The entity must
// reference an existing parent; a parent without a ledger id stops the
// workflow before submission.
func (s *Synchronizer[E]) Create(ctx context.Context, e E, requester string) (res *Result[E], err error) {
	ctx, span := s.startSpan(ctx, "Create", 0)
	defer func() { endSpan(span, res, err) }()

	if s.desc.Status != nil {
		if err := s.initialStatus(s.desc.Status(e)); err != nil {
			return nil, err
		}
	}
	if s.desc.Validate != nil {
		if err := s.desc.Validate(e); err != nil {
			return nil, err
		}
	}

	var parentLedgerID *uint64
	if s.desc.Parent != nil {
		kind, id := s.desc.Parent(e)
		parent, err := s.repo.FindEntity(ctx, kind, id)
		if err != nil {
			return nil, err
		}
		parentLedgerID = parent.LedgerRef()
	}

	if err := s.store.Create(ctx, e); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int64("entity.id", int64(e.EntityID())))

	unlock, err := s.lock(ctx, e.EntityID())
	if err != nil {
		return &Result[E]{Entity: e, SyncErr: err}, nil
	}
	defer unlock()

	res = &Result[E]{Entity: e}
	if s.desc.Parent != nil && parentLedgerID == nil {
		kind, id := s.desc.Parent(e)
		res.SyncErr = syncErr(ErrEntityNotLedgered, s.desc.Kind, models.TxTypeCreate, "",
			fmt.Errorf("parent %s %d has no ledger id", kind, id))
		return res, nil
	}
	var parentID uint64
	if parentLedgerID != nil {
		parentID = *parentLedgerID
	}

	hash := models.Fingerprint(e)
	call := s.desc.Register(e, parentID, hash)
	res.TxHash, res.SyncErr = s.commit(ctx, models.TxTypeCreate, e.EntityID(), call, hash.String(), requester)
	if res.SyncErr == nil {
		res.Ledgered = true
	}

	if res.TxHash != "" {
		if fresh, err := s.store.Get(ctx, e.EntityID()); err == nil {
			res.Entity = fresh
		}
	}
	return res, nil
}

// Update applies a partial update to a ledgered entity and commits the new
// fingerprint when the kind has a data hash method
func (s *Synchronizer[E]) Update(ctx context.Context, id uint64, fields map[string]any, requester string) (res *Result[E], err error) {
	ctx, span := s.startSpan(ctx, "Update", id)
	defer func() { endSpan(span, res, err) }()

	unlock, err := s.lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	ledgerID, err := s.ledgered(ctx, id, models.TxTypeUpdate)
	if err != nil {
		return nil, err
	}
	updated, err := s.store.Update(ctx, id, fields, s.desc.Validate)
	if err != nil {
		return nil, err
	}

	// kinds without a data hash method only change relationally
	res = &Result[E]{Entity: updated}
	if s.desc.UpdateDataHash == nil {
		return res, nil
	}

	hash := models.Fingerprint(updated)
	res.TxHash, res.SyncErr = s.commit(ctx, models.TxTypeUpdate, id, s.desc.UpdateDataHash(ledgerID, hash), hash.String(), requester)
	res.Ledgered = res.SyncErr == nil
	s.refresh(ctx, res)
	return res, nil
}

// ChangeStatus writes the new status and commits its ledger code
func (s *Synchronizer[E]) ChangeStatus(ctx context.Context, id uint64, status, requester string) (res *Result[E], err error) {
	ctx, span := s.startSpan(ctx, "ChangeStatus", id)
	defer func() { endSpan(span, res, err) }()

	if s.desc.UpdateStatus == nil {
		return nil, syncErr(ErrUnsupportedOperation, s.desc.Kind, models.TxTypeStatusChange, "", nil)
	}
	code, ok := s.desc.Statuses[status]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStatusValue, status)
	}
	if s.desc.RemovedStatus != "" && status == s.desc.RemovedStatus {
		return nil, invalid("status %q is only set by removing the %s", status, s.desc.Kind)
	}

	unlock, err := s.lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	ledgerID, err := s.ledgered(ctx, id, models.TxTypeStatusChange)
	if err != nil {
		return nil, err
	}
	updated, err := s.store.SetStatus(ctx, id, status)
	if err != nil {
		return nil, err
	}

	res = &Result[E]{Entity: updated}
	res.TxHash, res.SyncErr = s.commit(ctx, models.TxTypeStatusChange, id, s.desc.UpdateStatus(ledgerID, code), "", requester)
	res.Ledgered = res.SyncErr == nil
	s.refresh(ctx, res)
	return res, nil
}

// Assign sets the assignee, a ledger address in hex
func (s *Synchronizer[E]) Assign(ctx context.Context, id uint64, assignee, requester string) (res *Result[E], err error) {
	ctx, span := s.startSpan(ctx, "Assign", id)
	defer func() { endSpan(span, res, err) }()

	if s.desc.Assign == nil {
		return nil, syncErr(ErrUnsupportedOperation, s.desc.Kind, models.TxTypeAssign, "", nil)
	}
	if addr, err := hex.DecodeString(assignee); err != nil || len(addr) != 20 {
		return nil, invalid("assignee must be a 20 byte hex address")
	}

	unlock, err := s.lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	ledgerID, err := s.ledgered(ctx, id, models.TxTypeAssign)
	if err != nil {
		return nil, err
	}
	updated, err := s.store.SetAssignee(ctx, id, &assignee)
	if err != nil {
		return nil, err
	}

	res = &Result[E]{Entity: updated}
	res.TxHash, res.SyncErr = s.commit(ctx, models.TxTypeAssign, id, s.desc.Assign(ledgerID, assignee), "", requester)
	res.Ledgered = res.SyncErr == nil
	s.refresh(ctx, res)
	return res, nil
}

// Remove deletes the entity. The relational delete is final; when the entity
// is ledgered its removal is submitted and the receipt is resolved in the
// background.
func (s *Synchronizer[E]) Remove(ctx context.Context, id uint64, requester string) (res *Result[E], err error) {
	ctx, span := s.startSpan(ctx, "Remove", id)
	defer func() { endSpan(span, res, err) }()

	if s.desc.Remove == nil {
		return nil, syncErr(ErrUnsupportedOperation, s.desc.Kind, models.TxTypeRemove, "", nil)
	}

	unlock, err := s.lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	removed, err := s.store.Remove(ctx, id)
	if err != nil {
		return nil, err
	}
	res = &Result[E]{Entity: removed}
	ledgerID := removed.LedgerRef()
	if ledgerID == nil {
		return res, nil
	}

	txHash, err := s.submit(ctx, models.TxTypeRemove, id, s.desc.Remove(*ledgerID), "", requester)
	res.TxHash = txHash
	if err != nil {
		res.SyncErr = err
		return res, nil
	}

	s.background.Add(1)
	go func() {
		defer s.background.Done()
		bctx := context.WithoutCancel(ctx)
		if _, err := s.await(bctx, txHash); err != nil {
			s.logger.Error("Removal not confirmed", "id", id, "tx", txHash, "err", err)
		}
	}()
	return res, nil
}

// Verify recomputes the fingerprint and compares it with the latest confirmed one
func (s *Synchronizer[E]) Verify(ctx context.Context, id uint64) (*Integrity, error) {
	e, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.LedgerRef() == nil {
		return nil, syncErr(ErrEntityNotLedgered, s.desc.Kind, "verify", "", nil)
	}
	out := &Integrity{
		Kind:     s.desc.Kind,
		ID:       id,
		LedgerID: *e.LedgerRef(),
		Computed: models.Fingerprint(e).String(),
	}
	rec, err := s.repo.LatestConfirmedFingerprint(ctx, s.desc.Kind, id)
	if err != nil {
		if errors.Is(err, repository.ErrTransactionNotFound) {
			return out, nil
		}
		return nil, err
	}
	out.Recorded = rec.Fingerprint
	out.TxHash = rec.TxHash
	out.Match = out.Recorded == out.Computed
	return out, nil
}

// Close waits for background removals to resolve, or for ctx to end
func (s *Synchronizer[E]) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.background.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// initialStatus fills in the status with code 0 and rejects any other
// starting status, since the ledger registers every entity in that status
func (s *Synchronizer[E]) initialStatus(status *string) error {
	var initial string
	for name, code := range s.desc.Statuses {
		if code == 0 {
			initial = name
		}
	}
	if *status == "" {
		*status = initial
		return nil
	}
	if _, ok := s.desc.Statuses[*status]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownStatusValue, *status)
	}
	if *status != initial {
		return invalid("new %s must start in status %q, got %q", s.desc.Kind, initial, *status)
	}
	return nil
}

// ledgered loads the entity and requires a ledger id. Nothing is written when it has none.
func (s *Synchronizer[E]) ledgered(ctx context.Context, id uint64, op string) (uint64, error) {
	e, err := s.store.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	ref := e.LedgerRef()
	if ref == nil {
		return 0, syncErr(ErrEntityNotLedgered, s.desc.Kind, op, "", fmt.Errorf("%s %d", s.desc.Kind, id))
	}
	return *ref, nil
}

// commit submits call, records it and waits for the outcome
func (s *Synchronizer[E]) commit(ctx context.Context, op string, id uint64, call ledger.Call, fp, requester string) (string, error) {
	txHash, err := s.submit(ctx, op, id, call, fp, requester)
	if err != nil {
		return txHash, err
	}
	_, err = s.await(ctx, txHash)
	return txHash, err
}

// submit sends call and creates its pending record. Rejected submissions leave no record.
func (s *Synchronizer[E]) submit(ctx context.Context, op string, id uint64, call ledger.Call, fp, requester string) (string, error) {
	kind := string(s.desc.Kind)
	txHash, err := s.client.Submit(ctx, call)
	if err != nil {
		submissionsTotal.WithLabelValues(kind, op, "rejected").Inc()
		s.logger.Info("Ledger submission failed", "op", op, "id", id, "method", call.Method, "err", err)
		return "", syncErr(ErrLedgerSubmissionRejected, s.desc.Kind, op, "", err)
	}
	submissionsTotal.WithLabelValues(kind, op, "accepted").Inc()

	err = s.repo.RecordPending(ctx, repository.PendingTransaction{
		TxHash:      txHash,
		Type:        op,
		Kind:        s.desc.Kind,
		EntityID:    id,
		Fingerprint: fp,
		Description: fmt.Sprintf("%s %s %d via %s", op, kind, id, call.Method),
		Requester:   requester,
	})
	if err != nil {
		s.logger.Error("Submitted transaction could not be recorded", "tx", txHash, "err", err)
		return txHash, fmt.Errorf("recording transaction %s: %w", txHash, err)
	}
	return txHash, nil
}

// await waits for the receipt within the confirmation timeout and resolves the record.
// A timeout leaves the record pending.
func (s *Synchronizer[E]) await(ctx context.Context, txHash string) (*models.Transaction, error) {
	started := time.Now()
	actx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	receipt, err := s.client.AwaitReceipt(actx, txHash)
	if err != nil {
		confirmationsTotal.WithLabelValues(string(s.desc.Kind), outcomeUnknown).Inc()
		s.logger.Info("Confirmation outcome unknown", "tx", txHash, "err", err)
		rec, _ := s.repo.GetTransaction(ctx, txHash)
		op := ""
		if rec != nil {
			op = rec.TransactionType
		}
		return rec, syncErr(ErrConfirmationUnknown, s.desc.Kind, op, txHash, err)
	}
	confirmationDuration.WithLabelValues(string(s.desc.Kind)).Observe(time.Since(started).Seconds())

	rec, err := s.repo.GetTransaction(ctx, txHash)
	if err != nil {
		return nil, err
	}
	return s.resolver.Apply(ctx, rec, receipt)
}

// refresh reloads the entity so the result shows last_tx_hash
func (s *Synchronizer[E]) refresh(ctx context.Context, res *Result[E]) {
	if res.TxHash == "" {
		return
	}
	if fresh, err := s.store.Get(ctx, res.Entity.EntityID()); err == nil {
		res.Entity = fresh
	}
}
