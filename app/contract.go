package app

import (
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/ahmadzakiakmal/scrumchain/fingerprint"
	"github.com/ahmadzakiakmal/scrumchain/ledger"
	abcitypes "github.com/cometbft/cometbft/abci/types"
	"github.com/dgraph-io/badger/v4"
)

// Result codes returned by CheckTx and FinalizeBlock
const (
	CodeOK uint32 = iota
	CodeEncoding
	CodeBadSignature
	CodeUnauthorized
	CodeNotFound
	CodeInvalidArgs
	CodeRemoved
	CodeDuplicateNonce
	CodeInternal
)

// Gas charged per method family
const (
	GasRegisterTeam = 60000
	GasRegister     = 55000
	GasStatus       = 25000
	GasDataHash     = 30000
	GasAssign       = 28000
	GasRemove       = 20000
)

// highest valid status code per kind
var maxStatus = map[string]uint8{
	ledger.KindSprint: 3,
	ledger.KindTask:   4,
}

type txError struct {
	code uint32
	log  string
}

func (e *txError) Error() string { return e.log }

func fail(code uint32, format string, args ...any) *txError {
	return &txError{code: code, log: fmt.Sprintf(format, args...)}
}

// call is a decoded, signature checked transaction
type call struct {
	env    *ledger.Envelope
	args   ledger.Args
	signer string
}

func gasFor(m ledger.Method) int64 {
	switch m.Action() {
	case ledger.ActionRegister:
		if m == ledger.MethodRegisterTeam {
			return GasRegisterTeam
		}
		return GasRegister
	case ledger.ActionStatus:
		return GasStatus
	case ledger.ActionDataHash:
		return GasDataHash
	case ledger.ActionAssign:
		return GasAssign
	default:
		return GasRemove
	}
}

// decode parses the envelope and checks its signature
func decode(tx []byte) (*call, *txError) {
	env, err := ledger.DecodeEnvelope(tx)
	if err != nil {
		return nil, fail(CodeEncoding, "%v", err)
	}
	if err := env.Verify(); err != nil {
		return nil, fail(CodeBadSignature, "%v", err)
	}
	args, err := env.DecodeArgs()
	if err != nil {
		return nil, fail(CodeEncoding, "%v", err)
	}
	return &call{env: env, args: args, signer: env.SignerAddress()}, nil
}

// validate checks c against state without writing
func validate(txn *badger.Txn, c *call) *txError {
	used, err := nonceUsed(txn, c.env.Nonce)
	if err != nil {
		return fail(CodeInternal, "state error: %v", err)
	}
	if used {
		return fail(CodeDuplicateNonce, "nonce %s already used", c.env.Nonce)
	}

	m := c.env.Method
	switch m.Action() {
	case ledger.ActionRegister:
		if c.args.LocalID == 0 {
			return fail(CodeInvalidArgs, "local_id is required")
		}
		if _, err := fingerprint.Parse(c.args.DataHash); err != nil {
			return fail(CodeInvalidArgs, "data_hash: %v", err)
		}
		if m.ParentKind() == "" {
			return nil
		}
		parent, terr := live(txn, m.ParentKind(), c.args.ParentID)
		if terr != nil {
			return terr
		}
		return authorize(txn, parent, c.signer)
	case ledger.ActionStatus:
		if c.args.Status == nil || *c.args.Status > maxStatus[m.Kind()] {
			return fail(CodeInvalidArgs, "invalid %s status", m.Kind())
		}
	case ledger.ActionDataHash:
		if _, err := fingerprint.Parse(c.args.DataHash); err != nil {
			return fail(CodeInvalidArgs, "data_hash: %v", err)
		}
	case ledger.ActionAssign:
		if addr, err := hex.DecodeString(c.args.Assignee); err != nil || len(addr) != 20 {
			return fail(CodeInvalidArgs, "assignee must be a 20 byte hex address")
		}
	}

	target, terr := live(txn, m.Kind(), c.args.ID)
	if terr != nil {
		return terr
	}
	return authorize(txn, target, c.signer)
}

// live loads a record that must exist and not be removed
func live(txn *badger.Txn, kind string, id uint64) (*Record, *txError) {
	rec, err := loadRecord(txn, kind, id)
	if err != nil {
		return nil, fail(CodeInternal, "state error: %v", err)
	}
	if rec == nil {
		return nil, fail(CodeNotFound, "%s %d does not exist", kind, id)
	}
	if rec.Removed {
		return nil, fail(CodeRemoved, "%s %d is removed", kind, id)
	}
	return rec, nil
}

// authorize requires the signer to be a member of the team owning rec
func authorize(txn *badger.Txn, rec *Record, signer string) *txError {
	teamID, err := teamOf(txn, rec)
	if err != nil {
		return fail(CodeInternal, "state error: %v", err)
	}
	ok, err := isMember(txn, teamID, signer)
	if err != nil {
		return fail(CodeInternal, "state error: %v", err)
	}
	if !ok {
		return fail(CodeUnauthorized, "signer is not a member of team %d", teamID)
	}
	return nil
}

func teamOf(txn *badger.Txn, rec *Record) (uint64, error) {
	switch rec.Kind {
	case ledger.KindTeam:
		return rec.ID, nil
	case ledger.KindTask:
		sprint, err := loadRecord(txn, ledger.KindSprint, rec.ParentID)
		if err != nil {
			return 0, err
		}
		if sprint == nil {
			return 0, fmt.Errorf("task %d has no sprint %d", rec.ID, rec.ParentID)
		}
		return sprint.ParentID, nil
	default:
		return rec.ParentID, nil
	}
}

// execute applies a validated call to the block's state and returns its events
func execute(txn *badger.Txn, c *call, height int64) ([]abcitypes.Event, *Record, error) {
	m := c.env.Method
	var rec *Record
	var attrs []abcitypes.EventAttribute

	if m.Action() == ledger.ActionRegister {
		id, err := nextID(txn, m.Kind())
		if err != nil {
			return nil, nil, err
		}
		rec = &Record{
			Kind:     m.Kind(),
			ID:       id,
			ParentID: c.args.ParentID,
			LocalID:  c.args.LocalID,
			DataHash: c.args.DataHash,
			Creator:  c.signer,
		}
		if m == ledger.MethodRegisterTeam {
			if err := addMember(txn, id, c.signer); err != nil {
				return nil, nil, err
			}
		}
		attrs = append(attrs,
			abcitypes.EventAttribute{Key: ledger.AttrLocalID, Value: strconv.FormatUint(rec.LocalID, 10), Index: true},
			abcitypes.EventAttribute{Key: "data_hash", Value: rec.DataHash},
		)
		if rec.ParentID != 0 {
			attrs = append(attrs, abcitypes.EventAttribute{Key: "parent_id", Value: strconv.FormatUint(rec.ParentID, 10), Index: true})
		}
	} else {
		var err error
		rec, err = loadRecord(txn, m.Kind(), c.args.ID)
		if err != nil {
			return nil, nil, err
		}
		switch m.Action() {
		case ledger.ActionStatus:
			rec.Status = *c.args.Status
			attrs = append(attrs, abcitypes.EventAttribute{Key: "status", Value: strconv.Itoa(int(rec.Status))})
		case ledger.ActionDataHash:
			rec.DataHash = c.args.DataHash
			attrs = append(attrs, abcitypes.EventAttribute{Key: "data_hash", Value: rec.DataHash})
		case ledger.ActionAssign:
			rec.Assignee = c.args.Assignee
			attrs = append(attrs, abcitypes.EventAttribute{Key: "assignee", Value: rec.Assignee, Index: true})
		case ledger.ActionRemove:
			rec.Removed = true
			if m.Kind() == ledger.KindTask {
				rec.Status = maxStatus[ledger.KindTask]
			}
		}
	}
	rec.UpdatedHeight = height

	if err := storeRecord(txn, rec); err != nil {
		return nil, nil, err
	}
	if err := txn.Set(nonceKey(c.env.Nonce), []byte{1}); err != nil {
		return nil, nil, err
	}

	attrs = append([]abcitypes.EventAttribute{
		{Key: ledger.AttrLedgerID, Value: strconv.FormatUint(rec.ID, 10), Index: true},
	}, attrs...)
	events := []abcitypes.Event{
		{Type: m.Event(), Attributes: attrs},
		{
			Type: "scrumchain_tx",
			Attributes: []abcitypes.EventAttribute{
				{Key: "method", Value: string(m), Index: true},
				{Key: "signer", Value: c.signer, Index: true},
			},
		},
	}
	return events, rec, nil
}
