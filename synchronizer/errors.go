package synchronizer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ahmadzakiakmal/scrumchain/repository/models"
)

var (
	// ErrEntityNotLedgered means the entity (or its parent) has no ledger id yet
	ErrEntityNotLedgered = errors.New("entity is not registered on the ledger")
	// ErrLedgerSubmissionRejected means the ledger refused the transaction; nothing was recorded
	ErrLedgerSubmissionRejected = errors.New("ledger submission rejected")
	// ErrLedgerConfirmationFailed means the transaction was included but reverted
	ErrLedgerConfirmationFailed = errors.New("ledger confirmation failed")
	// ErrConfirmationUnknown means no receipt arrived in time; the record stays pending
	ErrConfirmationUnknown = fmt.Errorf("%w: outcome unknown", ErrLedgerConfirmationFailed)
	// ErrReconciliation means the transaction confirmed without the expected event
	ErrReconciliation = errors.New("ledger reconciliation failed")
	// ErrUnknownStatusValue means the status has no ledger code
	ErrUnknownStatusValue = errors.New("unknown status value")
	// ErrUnsupportedOperation means the entity kind has no such ledger method
	ErrUnsupportedOperation = errors.New("operation not supported for entity kind")
	// ErrInvalidArgument means the input failed validation before any I/O
	ErrInvalidArgument = errors.New("invalid argument")
)

// SyncError ties a taxonomy error to the operation and transaction it came from.
// errors.Is matches both Kind and the underlying cause.
type SyncError struct {
	Kind   error
	Op     string
	Entity models.Kind
	TxHash string
	Err    error
}

func (e *SyncError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s: %v", e.Entity, e.Op, e.Kind)
	if e.TxHash != "" {
		fmt.Fprintf(&b, " (tx %s)", e.TxHash)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *SyncError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func syncErr(kind error, entity models.Kind, op, txHash string, cause error) *SyncError {
	return &SyncError{Kind: kind, Op: op, Entity: entity, TxHash: txHash, Err: cause}
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}
