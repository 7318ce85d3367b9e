package synchronizer

import (
	"strings"

	"github.com/ahmadzakiakmal/scrumchain/fingerprint"
	"github.com/ahmadzakiakmal/scrumchain/ledger"
	"github.com/ahmadzakiakmal/scrumchain/repository/models"
)

// Descriptor captures everything kind specific about synchronizing E.
// Nil call builders mean the ledger has no such method for the kind.
type Descriptor[E models.Entity] struct {
	Kind models.Kind

	// Statuses maps every valid status to its ledger code. New entities start
	// in the status with code 0.
	Statuses map[string]uint8
	// RemovedStatus is only reachable through Remove
	RemovedStatus string
	// Status points at the entity's status field, nil for kinds without one
	Status func(E) *string
	// Parent returns the kind and local id of the entity the ledger record hangs off
	Parent func(E) (models.Kind, uint64)
	// Validate rejects entities that may not be stored
	Validate func(E) error

	Register       func(e E, parentLedgerID uint64, hash fingerprint.Hash) ledger.Call
	UpdateStatus   func(ledgerID uint64, code uint8) ledger.Call
	UpdateDataHash func(ledgerID uint64, hash fingerprint.Hash) ledger.Call
	Assign         func(ledgerID uint64, assignee string) ledger.Call
	Remove         func(ledgerID uint64) ledger.Call
}

// Status codes as the contract stores them
var (
	SprintStatuses = map[string]uint8{
		models.SprintPlanning:  0,
		models.SprintActive:    1,
		models.SprintCompleted: 2,
		models.SprintCancelled: 3,
	}
	TaskStatuses = map[string]uint8{
		models.TaskTodo:       0,
		models.TaskInProgress: 1,
		models.TaskReview:     2,
		models.TaskDone:       3,
		models.TaskRemoved:    4,
	}
)

func required(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return invalid("%s is required", field)
	}
	return nil
}

func Teams() Descriptor[*models.Team] {
	return Descriptor[*models.Team]{
		Kind: models.KindTeam,
		Validate: func(t *models.Team) error {
			return required("name", t.Name)
		},
		Register: func(t *models.Team, _ uint64, hash fingerprint.Hash) ledger.Call {
			return ledger.RegisterTeam(t.ID, hash)
		},
	}
}

func BacklogItems() Descriptor[*models.BacklogItem] {
	return Descriptor[*models.BacklogItem]{
		Kind: models.KindBacklogItem,
		Parent: func(b *models.BacklogItem) (models.Kind, uint64) {
			return models.KindTeam, b.TeamID
		},
		Validate: func(b *models.BacklogItem) error {
			return required("title", b.Title)
		},
		Register: func(b *models.BacklogItem, team uint64, hash fingerprint.Hash) ledger.Call {
			return ledger.RegisterBacklogItem(team, b.ID, hash)
		},
	}
}

func Sprints() Descriptor[*models.Sprint] {
	return Descriptor[*models.Sprint]{
		Kind:     models.KindSprint,
		Statuses: SprintStatuses,
		Status:   func(s *models.Sprint) *string { return &s.Status },
		Parent: func(s *models.Sprint) (models.Kind, uint64) {
			return models.KindTeam, s.TeamID
		},
		Validate: func(s *models.Sprint) error {
			if err := required("name", s.Name); err != nil {
				return err
			}
			if s.EndDate.Before(s.StartDate) {
				return invalid("end_date is before start_date")
			}
			return nil
		},
		Register: func(s *models.Sprint, team uint64, hash fingerprint.Hash) ledger.Call {
			return ledger.RegisterSprint(team, s.ID, hash)
		},
		UpdateStatus:   ledger.UpdateSprintStatus,
		UpdateDataHash: ledger.UpdateSprintDataHash,
		Remove:         ledger.RemoveSprint,
	}
}

func Tasks() Descriptor[*models.Task] {
	return Descriptor[*models.Task]{
		Kind:          models.KindTask,
		Statuses:      TaskStatuses,
		RemovedStatus: models.TaskRemoved,
		Status:        func(t *models.Task) *string { return &t.Status },
		Parent: func(t *models.Task) (models.Kind, uint64) {
			return models.KindSprint, t.SprintID
		},
		Validate: func(t *models.Task) error {
			if err := required("title", t.Title); err != nil {
				return err
			}
			if t.Estimate < 0 {
				return invalid("estimate is negative")
			}
			return nil
		},
		Register: func(t *models.Task, sprint uint64, hash fingerprint.Hash) ledger.Call {
			return ledger.RegisterTask(sprint, t.ID, hash)
		},
		UpdateStatus:   ledger.UpdateTaskStatus,
		UpdateDataHash: ledger.UpdateTaskDataHash,
		Assign:         ledger.AssignTask,
		Remove:         ledger.RemoveTask,
	}
}
