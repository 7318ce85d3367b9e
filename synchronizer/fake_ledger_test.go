package synchronizer

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/ahmadzakiakmal/scrumchain/ledger"
	"github.com/ahmadzakiakmal/scrumchain/repository"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// fakeLedger includes every accepted call according to outcome
type fakeLedger struct {
	mu       sync.Mutex
	reject   error
	outcome  func(call ledger.Call) *ledger.Receipt // nil receipt: never included
	calls    []ledger.Call
	hashes   []string
	receipts map[string]*ledger.Receipt
	nextID   map[string]uint64
	gate     chan struct{} // when set, AwaitReceipt blocks until it is closed
	awaiting chan string
}

func newFakeLedger() *fakeLedger {
	f := &fakeLedger{
		receipts: map[string]*ledger.Receipt{},
		nextID:   map[string]uint64{},
	}
	f.outcome = f.succeed
	return f
}

// succeed confirms the call, emitting a registered event with a fresh id for register calls
func (f *fakeLedger) succeed(call ledger.Call) *ledger.Receipt {
	rec := &ledger.Receipt{Success: true, BlockNumber: int64(len(f.calls)), GasUsed: 21000}
	id := call.Args.ID
	if call.Method.Action() == ledger.ActionRegister {
		f.nextID[call.Method.Kind()]++
		id = f.nextID[call.Method.Kind()]
	}
	rec.Events = []ledger.Event{{
		Type:       call.Method.Event(),
		Attributes: map[string]string{ledger.AttrLedgerID: strconv.FormatUint(id, 10)},
	}}
	return rec
}

func (f *fakeLedger) Submit(_ context.Context, call ledger.Call) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reject != nil {
		return "", f.reject
	}
	f.calls = append(f.calls, call)
	hash := fmt.Sprintf("%064x", len(f.calls))
	f.hashes = append(f.hashes, hash)
	if rec := f.outcome(call); rec != nil {
		rec.TxHash = hash
		f.receipts[hash] = rec
	}
	return hash, nil
}

func (f *fakeLedger) Receipt(_ context.Context, txHash string) (*ledger.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.receipts[txHash]
	if !ok {
		return nil, ledger.ErrReceiptNotFound
	}
	return rec, nil
}

func (f *fakeLedger) AwaitReceipt(ctx context.Context, txHash string) (*ledger.Receipt, error) {
	f.mu.Lock()
	gate, awaiting := f.gate, f.awaiting
	f.mu.Unlock()
	if awaiting != nil {
		awaiting <- txHash
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", ledger.ErrConfirmationTimeout, ctx.Err())
		}
	}
	for {
		if rec, err := f.Receipt(ctx, txHash); err == nil {
			return rec, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", ledger.ErrConfirmationTimeout, ctx.Err())
		case <-time.After(time.Millisecond):
		}
	}
}

// include makes a never-included transaction visible
func (f *fakeLedger) include(txHash string, rec *ledger.Receipt) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec.TxHash = txHash
	f.receipts[txHash] = rec
}

func (f *fakeLedger) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeLedger) lastCall() ledger.Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

func newTestRepository(t *testing.T) *repository.Repository {
	t.Helper()
	cfg := repository.GormConfig()
	cfg.Logger = logger.Discard
	db, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), cfg)
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	repo := repository.New(db, cmtlog.NewNopLogger())
	require.NoError(t, repo.Migrate())
	return repo
}
