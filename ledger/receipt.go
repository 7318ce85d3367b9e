package ledger

import (
	"strconv"

	abcitypes "github.com/cometbft/cometbft/abci/types"
)

// Event is a contract event with its attributes flattened
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// Receipt is the execution outcome of an included transaction
type Receipt struct {
	TxHash      string  `json:"tx_hash"`
	Success     bool    `json:"success"`
	Code        uint32  `json:"code"`
	Log         string  `json:"log"`
	BlockNumber int64   `json:"block_number"`
	GasUsed     int64   `json:"gas_used"`
	Events      []Event `json:"events"`
}

// LedgerID extracts the identifier from the first event of the given type
func (r *Receipt) LedgerID(eventType string) (uint64, bool) {
	for _, ev := range r.Events {
		if ev.Type != eventType {
			continue
		}
		raw, ok := ev.Attributes[AttrLedgerID]
		if !ok {
			return 0, false
		}
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return 0, false
		}
		return id, true
	}
	return 0, false
}

func newReceipt(txHash string, height int64, res abcitypes.ExecTxResult) *Receipt {
	events := make([]Event, 0, len(res.Events))
	for _, ev := range res.Events {
		attrs := make(map[string]string, len(ev.Attributes))
		for _, a := range ev.Attributes {
			attrs[a.Key] = a.Value
		}
		events = append(events, Event{Type: ev.Type, Attributes: attrs})
	}
	return &Receipt{
		TxHash:      txHash,
		Success:     res.Code == abcitypes.CodeTypeOK,
		Code:        res.Code,
		Log:         res.Log,
		BlockNumber: height,
		GasUsed:     res.GasUsed,
		Events:      events,
	}
}
