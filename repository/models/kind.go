package models

import "github.com/ahmadzakiakmal/scrumchain/fingerprint"

// Kind names an entity type that is mirrored on the ledger
type Kind string

const (
	KindTeam        Kind = "team"
	KindSprint      Kind = "sprint"
	KindTask        Kind = "task"
	KindBacklogItem Kind = "backlog_item"
)

// Kinds lists every ledgered entity kind
var Kinds = []Kind{KindTeam, KindSprint, KindTask, KindBacklogItem}

// Valid reports whether k is a known kind
func (k Kind) Valid() bool {
	switch k {
	case KindTeam, KindSprint, KindTask, KindBacklogItem:
		return true
	}
	return false
}

// Domain is the fingerprint domain prefix for the kind
func (k Kind) Domain() string {
	return "scrumchain/" + string(k) + "/v1"
}

// PrimaryKey is the primary key column of the kind's table
func (k Kind) PrimaryKey() string {
	return string(k) + "_id"
}

// UpdatableColumns is the partial update whitelist of the kind. Status,
// assignee and ledger columns have dedicated operations.
func (k Kind) UpdatableColumns() []string {
	switch k {
	case KindTeam:
		return []string{"name", "description"}
	case KindSprint:
		return []string{"name", "description", "start_date", "end_date"}
	case KindTask:
		return []string{"title", "description", "estimate"}
	case KindBacklogItem:
		return []string{"title", "description", "priority", "estimate"}
	}
	return nil
}

// Entity is implemented by every ledgered model
type Entity interface {
	EntityKind() Kind
	EntityID() uint64
	LedgerRef() *uint64
	FingerprintFields() []fingerprint.Field
}

// Fingerprint computes the content commitment of e from its current business fields
func Fingerprint(e Entity) fingerprint.Hash {
	return fingerprint.Compute(e.EntityKind().Domain(), e.FingerprintFields())
}

// NewEntity returns an empty model for the kind, or nil for unknown kinds
func NewEntity(k Kind) Entity {
	switch k {
	case KindTeam:
		return &Team{}
	case KindSprint:
		return &Sprint{}
	case KindTask:
		return &Task{}
	case KindBacklogItem:
		return &BacklogItem{}
	}
	return nil
}
