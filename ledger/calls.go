package ledger

import "github.com/ahmadzakiakmal/scrumchain/fingerprint"

// Method is a contract entry point
type Method string

const (
	MethodRegisterTeam         Method = "registerTeam"
	MethodRegisterBacklogItem  Method = "registerBacklogItem"
	MethodRegisterSprint       Method = "registerSprint"
	MethodUpdateSprintStatus   Method = "updateSprintStatus"
	MethodUpdateSprintDataHash Method = "updateSprintDataHash"
	MethodRemoveSprint         Method = "removeSprint"
	MethodRegisterTask         Method = "registerTask"
	MethodUpdateTaskStatus     Method = "updateTaskStatus"
	MethodUpdateTaskDataHash   Method = "updateTaskDataHash"
	MethodAssignTask           Method = "assignTask"
	MethodRemoveTask           Method = "removeTask"
)

// Record kinds as the contract names them
const (
	KindTeam        = "team"
	KindBacklogItem = "backlog_item"
	KindSprint      = "sprint"
	KindTask        = "task"
)

// Event types and attributes emitted by the contract
const (
	EventTeamRegistered        = KindTeam + "_" + string(ActionRegister)
	EventBacklogItemRegistered = KindBacklogItem + "_" + string(ActionRegister)
	EventSprintRegistered      = KindSprint + "_" + string(ActionRegister)
	EventTaskRegistered        = KindTask + "_" + string(ActionRegister)

	AttrLedgerID = "ledger_id"
	AttrLocalID  = "local_id"
)

// RegisteredEvent is the event a successful register call of kind emits
func RegisteredEvent(kind string) string {
	return kind + "_" + string(ActionRegister)
}

// Action classifies what a method does to its target record
type Action string

const (
	ActionRegister Action = "registered"
	ActionStatus   Action = "status_updated"
	ActionDataHash Action = "data_hash_updated"
	ActionAssign   Action = "assigned"
	ActionRemove   Action = "removed"
)

type methodInfo struct {
	kind       string
	parentKind string
	action     Action
}

var methods = map[Method]methodInfo{
	MethodRegisterTeam:         {kind: KindTeam, action: ActionRegister},
	MethodRegisterBacklogItem:  {kind: KindBacklogItem, parentKind: KindTeam, action: ActionRegister},
	MethodRegisterSprint:       {kind: KindSprint, parentKind: KindTeam, action: ActionRegister},
	MethodUpdateSprintStatus:   {kind: KindSprint, action: ActionStatus},
	MethodUpdateSprintDataHash: {kind: KindSprint, action: ActionDataHash},
	MethodRemoveSprint:         {kind: KindSprint, action: ActionRemove},
	MethodRegisterTask:         {kind: KindTask, parentKind: KindSprint, action: ActionRegister},
	MethodUpdateTaskStatus:     {kind: KindTask, action: ActionStatus},
	MethodUpdateTaskDataHash:   {kind: KindTask, action: ActionDataHash},
	MethodAssignTask:           {kind: KindTask, action: ActionAssign},
	MethodRemoveTask:           {kind: KindTask, action: ActionRemove},
}

func (m Method) Valid() bool {
	_, ok := methods[m]
	return ok
}

// Kind is the record kind the method targets
func (m Method) Kind() string { return methods[m].kind }

// ParentKind is the kind of the record a register call attaches to, empty for teams
func (m Method) ParentKind() string { return methods[m].parentKind }

func (m Method) Action() Action { return methods[m].action }

// Event is the event type emitted on success, e.g. sprint_status_updated.
// Register methods emit RegisteredEvent of their kind.
func (m Method) Event() string {
	info := methods[m]
	return info.kind + "_" + string(info.action)
}

// Args is the argument object of every method. Unused members are omitted.
type Args struct {
	ID       uint64 `json:"id,omitempty"`
	ParentID uint64 `json:"parent_id,omitempty"`
	LocalID  uint64 `json:"local_id,omitempty"`
	DataHash string `json:"data_hash,omitempty"`
	Status   *uint8 `json:"status,omitempty"`
	Assignee string `json:"assignee,omitempty"`
}

// Call is one contract invocation
type Call struct {
	Method Method
	Args   Args
}

func RegisterTeam(localID uint64, hash fingerprint.Hash) Call {
	return Call{Method: MethodRegisterTeam, Args: Args{LocalID: localID, DataHash: hash.String()}}
}

func RegisterBacklogItem(teamLedgerID, localID uint64, hash fingerprint.Hash) Call {
	return Call{Method: MethodRegisterBacklogItem, Args: Args{ParentID: teamLedgerID, LocalID: localID, DataHash: hash.String()}}
}

func RegisterSprint(teamLedgerID, localID uint64, hash fingerprint.Hash) Call {
	return Call{Method: MethodRegisterSprint, Args: Args{ParentID: teamLedgerID, LocalID: localID, DataHash: hash.String()}}
}

func UpdateSprintStatus(sprintLedgerID uint64, code uint8) Call {
	return Call{Method: MethodUpdateSprintStatus, Args: Args{ID: sprintLedgerID, Status: &code}}
}

func UpdateSprintDataHash(sprintLedgerID uint64, hash fingerprint.Hash) Call {
	return Call{Method: MethodUpdateSprintDataHash, Args: Args{ID: sprintLedgerID, DataHash: hash.String()}}
}

func RemoveSprint(sprintLedgerID uint64) Call {
	return Call{Method: MethodRemoveSprint, Args: Args{ID: sprintLedgerID}}
}

func RegisterTask(sprintLedgerID, localID uint64, hash fingerprint.Hash) Call {
	return Call{Method: MethodRegisterTask, Args: Args{ParentID: sprintLedgerID, LocalID: localID, DataHash: hash.String()}}
}

func UpdateTaskStatus(taskLedgerID uint64, code uint8) Call {
	return Call{Method: MethodUpdateTaskStatus, Args: Args{ID: taskLedgerID, Status: &code}}
}

func UpdateTaskDataHash(taskLedgerID uint64, hash fingerprint.Hash) Call {
	return Call{Method: MethodUpdateTaskDataHash, Args: Args{ID: taskLedgerID, DataHash: hash.String()}}
}

// AssignTask assigns the task to a ledger address (hex)
func AssignTask(taskLedgerID uint64, assignee string) Call {
	return Call{Method: MethodAssignTask, Args: Args{ID: taskLedgerID, Assignee: assignee}}
}

func RemoveTask(taskLedgerID uint64) Call {
	return Call{Method: MethodRemoveTask, Args: Args{ID: taskLedgerID}}
}
