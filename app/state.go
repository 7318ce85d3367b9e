package app

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

// Record is the contract's view of one registered entity
type Record struct {
	Kind          string `json:"kind"`
	ID            uint64 `json:"id"`
	ParentID      uint64 `json:"parent_id,omitempty"`
	LocalID       uint64 `json:"local_id"`
	DataHash      string `json:"data_hash"`
	Status        uint8  `json:"status"`
	Assignee      string `json:"assignee,omitempty"`
	Removed       bool   `json:"removed"`
	Creator       string `json:"creator"`
	UpdatedHeight int64  `json:"updated_height"`
}

var (
	keyLastBlockHeight  = []byte("last_block_height")
	keyLastBlockAppHash = []byte("last_block_app_hash")
)

func recordKey(kind string, id uint64) []byte {
	return fmt.Appendf(nil, "rec/%s/%020d", kind, id)
}

func seqKey(kind string) []byte {
	return []byte("seq/" + kind)
}

func memberKey(teamID uint64, address string) []byte {
	return fmt.Appendf(nil, "member/%020d/%s", teamID, address)
}

func nonceKey(nonce string) []byte {
	return []byte("nonce/" + nonce)
}

// get returns the value stored at key, or nil when absent
func get(txn *badger.Txn, key []byte) ([]byte, error) {
	item, err := txn.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return item.ValueCopy(nil)
}

func loadRecord(txn *badger.Txn, kind string, id uint64) (*Record, error) {
	raw, err := get(txn, recordKey(kind, id))
	if err != nil || raw == nil {
		return nil, err
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decoding %s %d: %w", kind, id, err)
	}
	return &rec, nil
}

func storeRecord(txn *badger.Txn, rec *Record) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return txn.Set(recordKey(rec.Kind, rec.ID), raw)
}

// nextID allocates the next sequential ledger id of kind, starting at 1
func nextID(txn *badger.Txn, kind string) (uint64, error) {
	raw, err := get(txn, seqKey(kind))
	if err != nil {
		return 0, err
	}
	id := bytesToUint64(raw) + 1
	if err := txn.Set(seqKey(kind), uint64ToBytes(id)); err != nil {
		return 0, err
	}
	return id, nil
}

func isMember(txn *badger.Txn, teamID uint64, address string) (bool, error) {
	raw, err := get(txn, memberKey(teamID, address))
	return raw != nil, err
}

func addMember(txn *badger.Txn, teamID uint64, address string) error {
	return txn.Set(memberKey(teamID, address), []byte{1})
}

func nonceUsed(txn *badger.Txn, nonce string) (bool, error) {
	raw, err := get(txn, nonceKey(nonce))
	return raw != nil, err
}

// uint64ToBytes converts a uint64 to big-endian bytes
func uint64ToBytes(i uint64) []byte {
	buf := make([]byte, 8)

	buf[0] = byte(i >> 56)
	buf[1] = byte(i >> 48)
	buf[2] = byte(i >> 40)
	buf[3] = byte(i >> 32)
	buf[4] = byte(i >> 24)
	buf[5] = byte(i >> 16)
	buf[6] = byte(i >> 8)
	buf[7] = byte(i)

	return buf
}

// bytesToUint64 converts big-endian bytes to a uint64, zero for short input
func bytesToUint64(buf []byte) uint64 {
	if len(buf) < 8 {
		return 0
	}

	return uint64(buf[0])<<56 |
		uint64(buf[1])<<48 |
		uint64(buf[2])<<40 |
		uint64(buf[3])<<32 |
		uint64(buf[4])<<24 |
		uint64(buf[5])<<16 |
		uint64(buf[6])<<8 |
		uint64(buf[7])
}
