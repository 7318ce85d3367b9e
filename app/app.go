package app

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	abcitypes "github.com/cometbft/cometbft/abci/types"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/dgraph-io/badger/v4"
)

// Application is the scrumchain contract: an ABCI application keeping the
// registered teams, backlog items, sprints and tasks in Badger
type Application struct {
	abcitypes.BaseApplication

	badgerDB     *badger.DB
	onGoingBlock *badger.Txn
	mu           sync.Mutex
	logger       cmtlog.Logger
}

var _ abcitypes.Application = (*Application)(nil)

func NewApplication(badgerDB *badger.DB, logger cmtlog.Logger) *Application {
	return &Application{
		badgerDB: badgerDB,
		logger:   logger.With("module", "contract"),
	}
}

// Info implements the ABCI Info method
func (app *Application) Info(_ context.Context, _ *abcitypes.InfoRequest) (*abcitypes.InfoResponse, error) {
	var lastBlockHeight int64
	var lastBlockAppHash []byte

	err := app.badgerDB.View(func(txn *badger.Txn) error {
		raw, err := get(txn, keyLastBlockHeight)
		if err != nil {
			return err
		}
		lastBlockHeight = int64(bytesToUint64(raw))
		lastBlockAppHash, err = get(txn, keyLastBlockAppHash)
		return err
	})
	if err != nil {
		app.logger.Error("Error getting last block info", "err", err)
	}

	return &abcitypes.InfoResponse{
		LastBlockHeight:  lastBlockHeight,
		LastBlockAppHash: lastBlockAppHash,
	}, nil
}

// Query implements the ABCI Query method. Supported paths are
// record/<kind>/<id> and member/<team>/<address>.
func (app *Application) Query(_ context.Context, req *abcitypes.QueryRequest) (*abcitypes.QueryResponse, error) {
	parts := strings.Split(strings.Trim(req.Path, "/"), "/")
	if len(parts) != 3 {
		return &abcitypes.QueryResponse{Code: CodeInvalidArgs, Log: "unsupported query path"}, nil
	}
	id, err := strconv.ParseUint(parts[2], 10, 64)
	if parts[0] == "member" {
		id, err = strconv.ParseUint(parts[1], 10, 64)
	}
	if err != nil {
		return &abcitypes.QueryResponse{Code: CodeInvalidArgs, Log: "invalid id"}, nil
	}

	resp := abcitypes.QueryResponse{Key: []byte(req.Path)}
	dbErr := app.badgerDB.View(func(txn *badger.Txn) error {
		switch parts[0] {
		case "record":
			rec, err := loadRecord(txn, parts[1], id)
			if err != nil {
				return err
			}
			if rec == nil {
				resp.Code = CodeNotFound
				resp.Log = "record doesn't exist"
				return nil
			}
			resp.Value, err = json.Marshal(rec)
			resp.Log = "exists"
			return err
		case "member":
			ok, err := isMember(txn, id, strings.ToLower(parts[2]))
			if err != nil {
				return err
			}
			resp.Value = []byte(strconv.FormatBool(ok))
			resp.Log = "exists"
			return nil
		}
		resp.Code = CodeInvalidArgs
		resp.Log = "unsupported query path"
		return nil
	})
	if dbErr != nil {
		app.logger.Error("Error reading database, unable to execute query", "err", dbErr)
		return &abcitypes.QueryResponse{
			Code: CodeInternal,
			Log:  fmt.Sprintf("Database error: %v", dbErr),
		}, nil
	}
	return &resp, nil
}

// CheckTx rejects transactions that are malformed, badly signed or not
// authorized against committed state
func (app *Application) CheckTx(_ context.Context, check *abcitypes.CheckTxRequest) (*abcitypes.CheckTxResponse, error) {
	c, terr := decode(check.Tx)
	if terr == nil {
		_ = app.badgerDB.View(func(txn *badger.Txn) error {
			terr = validate(txn, c)
			return nil
		})
	}
	if terr != nil {
		return &abcitypes.CheckTxResponse{Code: terr.code, Log: terr.log}, nil
	}
	return &abcitypes.CheckTxResponse{Code: CodeOK, GasWanted: gasFor(c.env.Method)}, nil
}

// ProcessProposal accepts a block only if every transaction decodes and is signed
func (app *Application) ProcessProposal(_ context.Context, proposal *abcitypes.ProcessProposalRequest) (*abcitypes.ProcessProposalResponse, error) {
	for _, tx := range proposal.Txs {
		if _, terr := decode(tx); terr != nil {
			app.logger.Info("Rejecting proposal", "height", proposal.Height, "reason", terr.log)
			return &abcitypes.ProcessProposalResponse{Status: abcitypes.PROCESS_PROPOSAL_STATUS_REJECT}, nil
		}
	}
	return &abcitypes.ProcessProposalResponse{Status: abcitypes.PROCESS_PROPOSAL_STATUS_ACCEPT}, nil
}

// FinalizeBlock executes the block's transactions in order. Each transaction
// sees the writes of the ones before it.
func (app *Application) FinalizeBlock(_ context.Context, req *abcitypes.FinalizeBlockRequest) (*abcitypes.FinalizeBlockResponse, error) {
	app.mu.Lock()
	defer app.mu.Unlock()

	if app.onGoingBlock != nil {
		app.onGoingBlock.Discard()
	}
	app.onGoingBlock = app.badgerDB.NewTransaction(true)

	prevHash, err := get(app.onGoingBlock, keyLastBlockAppHash)
	if err != nil {
		return nil, fmt.Errorf("reading app hash: %w", err)
	}

	txResults := make([]*abcitypes.ExecTxResult, len(req.Txs))
	for i, tx := range req.Txs {
		txResults[i] = app.executeTx(tx, req.Height)
	}

	appHash := calculateAppHash(prevHash, txResults)
	if err := app.onGoingBlock.Set(keyLastBlockHeight, uint64ToBytes(uint64(req.Height))); err != nil {
		return nil, fmt.Errorf("storing block height: %w", err)
	}
	if err := app.onGoingBlock.Set(keyLastBlockAppHash, appHash); err != nil {
		return nil, fmt.Errorf("storing app hash: %w", err)
	}

	return &abcitypes.FinalizeBlockResponse{
		TxResults: txResults,
		AppHash:   appHash,
	}, nil
}

func (app *Application) executeTx(tx []byte, height int64) *abcitypes.ExecTxResult {
	c, terr := decode(tx)
	if terr == nil {
		terr = validate(app.onGoingBlock, c)
	}
	if terr != nil {
		app.logger.Debug("Transaction reverted", "code", terr.code, "log", terr.log)
		return &abcitypes.ExecTxResult{Code: terr.code, Log: terr.log}
	}

	gas := gasFor(c.env.Method)
	events, rec, err := execute(app.onGoingBlock, c, height)
	if err != nil {
		app.logger.Error("Error executing transaction", "method", c.env.Method, "err", err)
		return &abcitypes.ExecTxResult{Code: CodeInternal, Log: err.Error(), GasWanted: gas}
	}

	app.logger.Info("Executed", "method", c.env.Method, "kind", rec.Kind, "ledger_id", rec.ID, "height", height)
	return &abcitypes.ExecTxResult{
		Code:      CodeOK,
		Data:      recordKey(rec.Kind, rec.ID),
		Log:       string(c.env.Method),
		GasWanted: gas,
		GasUsed:   gas,
		Events:    events,
	}
}

// Commit persists the state written by the last FinalizeBlock
func (app *Application) Commit(_ context.Context, _ *abcitypes.CommitRequest) (*abcitypes.CommitResponse, error) {
	app.mu.Lock()
	defer app.mu.Unlock()

	if app.onGoingBlock == nil {
		return &abcitypes.CommitResponse{}, nil
	}
	err := app.onGoingBlock.Commit()
	app.onGoingBlock = nil
	if err != nil {
		app.logger.Error("Error committing block", "err", err)
		return nil, err
	}
	return &abcitypes.CommitResponse{}, nil
}

// calculateAppHash chains the previous app hash with every result of the block
func calculateAppHash(prev []byte, txResults []*abcitypes.ExecTxResult) []byte {
	h := sha256.New()
	h.Write(prev)
	for _, result := range txResults {
		h.Write(uint64ToBytes(uint64(result.Code)))
		h.Write(result.Data)
	}
	return h.Sum(nil)
}
