package synchronizer

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/ahmadzakiakmal/scrumchain/ledger"
	"github.com/ahmadzakiakmal/scrumchain/repository"
	"github.com/ahmadzakiakmal/scrumchain/repository/models"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	repo    *repository.Repository
	ledger  *fakeLedger
	locks   *KeyedLock
	teams   *Synchronizer[*models.Team]
	items   *Synchronizer[*models.BacklogItem]
	sprints *Synchronizer[*models.Sprint]
	tasks   *Synchronizer[*models.Task]
}

func newFixture(t *testing.T, timeout time.Duration) *fixture {
	t.Helper()
	repo := newTestRepository(t)
	fl := newFakeLedger()
	locks := NewKeyedLock()
	opts := Options{ConfirmTimeout: timeout, Locks: locks}
	nop := cmtlog.NewNopLogger()
	return &fixture{
		repo:    repo,
		ledger:  fl,
		locks:   locks,
		teams:   New(Teams(), repo, fl, opts, nop),
		items:   New(BacklogItems(), repo, fl, opts, nop),
		sprints: New(Sprints(), repo, fl, opts, nop),
		tasks:   New(Tasks(), repo, fl, opts, nop),
	}
}

func (f *fixture) ledgeredTeam(t *testing.T) *models.Team {
	t.Helper()
	res, err := f.teams.Create(context.Background(), &models.Team{Name: "Core"}, "alice")
	require.NoError(t, err)
	require.NoError(t, res.SyncErr)
	return res.Entity
}

func (f *fixture) ledgeredSprint(t *testing.T) *models.Sprint {
	t.Helper()
	team := f.ledgeredTeam(t)
	res, err := f.sprints.Create(context.Background(), newSprint(team.ID), "alice")
	require.NoError(t, err)
	require.NoError(t, res.SyncErr)
	return res.Entity
}

func (f *fixture) ledgeredTask(t *testing.T) *models.Task {
	t.Helper()
	sprint := f.ledgeredSprint(t)
	res, err := f.tasks.Create(context.Background(), &models.Task{SprintID: sprint.ID, Title: "Write tests", Estimate: 3}, "alice")
	require.NoError(t, err)
	require.NoError(t, res.SyncErr)
	return res.Entity
}

func newSprint(teamID uint64) *models.Sprint {
	return &models.Sprint{
		TeamID:    teamID,
		Name:      "S1",
		StartDate: time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2025, 1, 20, 17, 0, 0, 0, time.UTC),
	}
}

func records(t *testing.T, repo *repository.Repository, kind models.Kind, id uint64) []models.Transaction {
	t.Helper()
	page, err := repo.QueryTransactions(context.Background(), repository.TransactionFilter{Kind: kind, EntityID: &id, PageSize: repository.MaxPageSize})
	require.NoError(t, err)
	return page.Items
}

// Scenario A
func TestCreate_ConfirmedAndReconciled(t *testing.T) {
	f := newFixture(t, time.Second)
	ctx := context.Background()
	team := f.ledgeredTeam(t)
	require.NotNil(t, team.LedgerID)

	res, err := f.sprints.Create(ctx, newSprint(team.ID), "alice")
	require.NoError(t, err)
	require.NoError(t, res.SyncErr)
	assert.True(t, res.Ledgered)
	assert.NotEmpty(t, res.TxHash)
	assert.Equal(t, models.SprintPlanning, res.Entity.Status)
	require.NotNil(t, res.Entity.LedgerID)
	assert.EqualValues(t, 1, *res.Entity.LedgerID)
	assert.Equal(t, res.TxHash, *res.Entity.LastTxHash)

	call := f.ledger.lastCall()
	assert.Equal(t, ledger.MethodRegisterSprint, call.Method)
	assert.Equal(t, *team.LedgerID, call.Args.ParentID)
	assert.Equal(t, res.Entity.ID, call.Args.LocalID)

	recs := records(t, f.repo, models.KindSprint, res.Entity.ID)
	require.Len(t, recs, 1)
	rec := recs[0]
	assert.Equal(t, models.TxConfirmed, rec.Status)
	assert.Equal(t, models.TxTypeCreate, rec.TransactionType)
	assert.Equal(t, models.Fingerprint(res.Entity).String(), rec.Fingerprint)
	assert.Equal(t, call.Args.DataHash, rec.Fingerprint)
	assert.EqualValues(t, 1, *rec.LedgerID)
	assert.Equal(t, "alice", rec.Requester)
	assert.NotNil(t, rec.GasUsed)

	integrity, err := f.sprints.Verify(ctx, res.Entity.ID)
	require.NoError(t, err)
	assert.True(t, integrity.Match)
	assert.Equal(t, rec.TxHash, integrity.TxHash)
}

// Scenario B
func TestCreate_SubmissionRejected(t *testing.T) {
	f := newFixture(t, time.Second)
	ctx := context.Background()
	team := f.ledgeredTeam(t)

	f.ledger.reject = errors.New("signer is not a member of team 1")
	res, err := f.sprints.Create(ctx, newSprint(team.ID), "mallory")
	require.NoError(t, err)
	assert.ErrorIs(t, res.SyncErr, ErrLedgerSubmissionRejected)
	assert.False(t, res.Ledgered)
	assert.Empty(t, res.TxHash)

	stored, err := f.sprints.Get(ctx, res.Entity.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.LedgerID)
	assert.Empty(t, records(t, f.repo, models.KindSprint, res.Entity.ID))
}

// Scenario C
func TestUpdate_RequiresLedgerID(t *testing.T) {
	f := newFixture(t, time.Second)
	ctx := context.Background()
	team := f.ledgeredTeam(t)

	f.ledger.reject = errors.New("unavailable")
	res, err := f.sprints.Create(ctx, newSprint(team.ID), "alice")
	require.NoError(t, err)
	require.Error(t, res.SyncErr)
	f.ledger.reject = nil
	calls := f.ledger.callCount()

	_, err = f.sprints.Update(ctx, res.Entity.ID, map[string]any{"name": "Renamed"}, "alice")
	assert.ErrorIs(t, err, ErrEntityNotLedgered)

	_, err = f.sprints.ChangeStatus(ctx, res.Entity.ID, models.SprintActive, "alice")
	assert.ErrorIs(t, err, ErrEntityNotLedgered)

	stored, err := f.sprints.Get(ctx, res.Entity.ID)
	require.NoError(t, err)
	assert.Equal(t, "S1", stored.Name)
	assert.Equal(t, models.SprintPlanning, stored.Status)
	assert.Equal(t, calls, f.ledger.callCount())
}

// Scenario D
func TestUpdate_SerializedPerEntity(t *testing.T) {
	f := newFixture(t, 5*time.Second)
	ctx := context.Background()
	sprint := f.ledgeredSprint(t)
	before := f.ledger.callCount()

	gate := make(chan struct{})
	f.ledger.mu.Lock()
	f.ledger.gate = gate
	f.ledger.awaiting = make(chan string, 2)
	f.ledger.mu.Unlock()

	type out struct {
		res *Result[*models.Sprint]
		err error
	}
	first := make(chan out, 1)
	second := make(chan out, 1)

	go func() {
		res, err := f.sprints.Update(ctx, sprint.ID, map[string]any{"name": "A"}, "alice")
		first <- out{res, err}
	}()
	<-f.ledger.awaiting

	go func() {
		res, err := f.sprints.Update(ctx, sprint.ID, map[string]any{"name": "B"}, "bob")
		second <- out{res, err}
	}()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, before+1, f.ledger.callCount(), "second update waits for the first")

	close(gate)
	a := <-first
	b := <-second
	require.NoError(t, a.err)
	require.NoError(t, b.err)
	require.NoError(t, a.res.SyncErr)
	require.NoError(t, b.res.SyncErr)
	assert.Equal(t, "A", a.res.Entity.Name)
	assert.Equal(t, "B", b.res.Entity.Name)

	recs := records(t, f.repo, models.KindSprint, sprint.ID)
	require.Len(t, recs, 3)
	// newest first
	assert.Equal(t, b.res.TxHash, recs[0].TxHash)
	assert.Equal(t, a.res.TxHash, recs[1].TxHash)
	assert.Equal(t, models.Fingerprint(b.res.Entity).String(), recs[0].Fingerprint)

	integrity, err := f.sprints.Verify(ctx, sprint.ID)
	require.NoError(t, err)
	assert.True(t, integrity.Match)
	assert.Zero(t, f.locks.Held())
}

func TestCreate_Reverted(t *testing.T) {
	f := newFixture(t, time.Second)
	ctx := context.Background()
	team := f.ledgeredTeam(t)

	f.ledger.outcome = func(ledger.Call) *ledger.Receipt {
		return &ledger.Receipt{Success: false, Code: 4, Log: "team 1 does not exist", BlockNumber: 9}
	}
	res, err := f.items.Create(ctx, &models.BacklogItem{TeamID: team.ID, Title: "Login"}, "alice")
	require.NoError(t, err)
	assert.ErrorIs(t, res.SyncErr, ErrLedgerConfirmationFailed)
	assert.NotErrorIs(t, res.SyncErr, ErrConfirmationUnknown)
	assert.Nil(t, res.Entity.LedgerID)

	rec, err := f.repo.GetTransaction(ctx, res.TxHash)
	require.NoError(t, err)
	assert.Equal(t, models.TxFailed, rec.Status)
	require.NotNil(t, rec.ErrorMessage)
	assert.Contains(t, *rec.ErrorMessage, "does not exist")
}

func TestCreate_TimeoutThenSweep(t *testing.T) {
	f := newFixture(t, 30*time.Millisecond)
	ctx := context.Background()
	team := f.ledgeredTeam(t)

	f.ledger.outcome = func(ledger.Call) *ledger.Receipt { return nil }
	res, err := f.items.Create(ctx, &models.BacklogItem{TeamID: team.ID, Title: "Login"}, "alice")
	require.NoError(t, err)
	assert.ErrorIs(t, res.SyncErr, ErrConfirmationUnknown)
	assert.ErrorIs(t, res.SyncErr, ErrLedgerConfirmationFailed)
	assert.False(t, res.Ledgered)

	rec, err := f.repo.GetTransaction(ctx, res.TxHash)
	require.NoError(t, err)
	assert.Equal(t, models.TxPending, rec.Status)

	// The transaction lands later; the sweeper applies it like the workflow would have.
	f.ledger.include(res.TxHash, &ledger.Receipt{
		Success:     true,
		BlockNumber: 40,
		Events: []ledger.Event{{
			Type:       ledger.EventBacklogItemRegistered,
			Attributes: map[string]string{ledger.AttrLedgerID: "5"},
		}},
	})
	sweeper := NewSweeper(f.repo, f.ledger, SweepConfig{MinAge: time.Millisecond, FailAfter: time.Hour}, cmtlog.NewNopLogger())
	sweeper.now = func() time.Time { return time.Now().UTC().Add(time.Second) }
	report, err := sweeper.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Examined)
	assert.Equal(t, 1, report.Confirmed)

	item, err := f.items.Get(ctx, res.Entity.ID)
	require.NoError(t, err)
	require.NotNil(t, item.LedgerID)
	assert.EqualValues(t, 5, *item.LedgerID)

	rec, err = f.repo.GetTransaction(ctx, res.TxHash)
	require.NoError(t, err)
	assert.Equal(t, models.TxConfirmed, rec.Status)
	assert.EqualValues(t, 40, *rec.BlockNumber)
}

func TestSweeper_ExpiresUnknownRecords(t *testing.T) {
	f := newFixture(t, 10*time.Millisecond)
	ctx := context.Background()
	team := f.ledgeredTeam(t)

	f.ledger.outcome = func(ledger.Call) *ledger.Receipt { return nil }
	res, err := f.sprints.Create(ctx, newSprint(team.ID), "alice")
	require.NoError(t, err)
	require.ErrorIs(t, res.SyncErr, ErrConfirmationUnknown)

	sweeper := NewSweeper(f.repo, f.ledger, SweepConfig{MinAge: time.Millisecond, FailAfter: time.Minute}, cmtlog.NewNopLogger())
	sweeper.now = func() time.Time { return time.Now().UTC().Add(time.Second) }
	report, err := sweeper.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.StillPending)

	sweeper.now = func() time.Time { return time.Now().UTC().Add(2 * time.Minute) }
	report, err = sweeper.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Expired)

	rec, err := f.repo.GetTransaction(ctx, res.TxHash)
	require.NoError(t, err)
	assert.Equal(t, models.TxFailed, rec.Status)
	assert.Equal(t, NotFoundOnLedger, *rec.ErrorMessage)

	sprint, err := f.sprints.Get(ctx, res.Entity.ID)
	require.NoError(t, err)
	assert.Nil(t, sprint.LedgerID)
}

func TestCreate_MissingEventIsReconciliationError(t *testing.T) {
	f := newFixture(t, time.Second)
	ctx := context.Background()

	f.ledger.outcome = func(ledger.Call) *ledger.Receipt {
		return &ledger.Receipt{Success: true, BlockNumber: 2}
	}
	res, err := f.teams.Create(ctx, &models.Team{Name: "Core"}, "alice")
	require.NoError(t, err)
	assert.ErrorIs(t, res.SyncErr, ErrReconciliation)
	assert.NotErrorIs(t, res.SyncErr, ErrLedgerConfirmationFailed)
	assert.False(t, res.Ledgered)
	assert.Nil(t, res.Entity.LedgerID)

	rec, err := f.repo.GetTransaction(ctx, res.TxHash)
	require.NoError(t, err)
	assert.Equal(t, models.TxConfirmed, rec.Status)
	assert.Nil(t, rec.LedgerID)
}

func TestCreate_ParentNotLedgered(t *testing.T) {
	f := newFixture(t, time.Second)
	ctx := context.Background()

	f.ledger.reject = errors.New("down")
	teamRes, err := f.teams.Create(ctx, &models.Team{Name: "Core"}, "alice")
	require.NoError(t, err)
	f.ledger.reject = nil

	res, err := f.sprints.Create(ctx, newSprint(teamRes.Entity.ID), "alice")
	require.NoError(t, err)
	assert.ErrorIs(t, res.SyncErr, ErrEntityNotLedgered)
	assert.NotZero(t, res.Entity.ID)
	assert.Zero(t, f.ledger.callCount())
}

func TestCreate_Validation(t *testing.T) {
	f := newFixture(t, time.Second)
	ctx := context.Background()
	team := f.ledgeredTeam(t)

	_, err := f.teams.Create(ctx, &models.Team{Name: "  "}, "alice")
	assert.ErrorIs(t, err, ErrInvalidArgument)

	bad := newSprint(team.ID)
	bad.Status = "archived"
	_, err = f.sprints.Create(ctx, bad, "alice")
	assert.ErrorIs(t, err, ErrUnknownStatusValue)

	backwards := newSprint(team.ID)
	backwards.EndDate = backwards.StartDate.Add(-time.Hour)
	_, err = f.sprints.Create(ctx, backwards, "alice")
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = f.tasks.Create(ctx, &models.Task{SprintID: 999, Title: "orphan"}, "alice")
	assert.ErrorIs(t, err, repository.ErrEntityNotFound)

	assert.Equal(t, 1, f.ledger.callCount())
}

func TestCreate_OnlyInInitialStatus(t *testing.T) {
	f := newFixture(t, time.Second)
	ctx := context.Background()
	sprint := f.ledgeredSprint(t)
	calls := f.ledger.callCount()

	running := newSprint(sprint.TeamID)
	running.Status = models.SprintActive
	_, err := f.sprints.Create(ctx, running, "alice")
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.NotErrorIs(t, err, ErrUnknownStatusValue)

	_, err = f.tasks.Create(ctx, &models.Task{SprintID: sprint.ID, Title: "gone", Status: models.TaskRemoved}, "alice")
	assert.ErrorIs(t, err, ErrInvalidArgument)

	planned := newSprint(sprint.TeamID)
	planned.Status = models.SprintPlanning
	res, err := f.sprints.Create(ctx, planned, "alice")
	require.NoError(t, err)
	require.NoError(t, res.SyncErr)
	assert.Equal(t, models.SprintPlanning, res.Entity.Status)

	var stored int64
	require.NoError(t, f.repo.DB().Model(&models.Sprint{}).Count(&stored).Error)
	assert.EqualValues(t, 2, stored)
	assert.Equal(t, calls+1, f.ledger.callCount())
}

func TestChangeStatus(t *testing.T) {
	f := newFixture(t, time.Second)
	ctx := context.Background()
	sprint := f.ledgeredSprint(t)
	calls := f.ledger.callCount()

	_, err := f.sprints.ChangeStatus(ctx, sprint.ID, "archived", "alice")
	assert.ErrorIs(t, err, ErrUnknownStatusValue)
	assert.Equal(t, calls, f.ledger.callCount())

	res, err := f.sprints.ChangeStatus(ctx, sprint.ID, models.SprintActive, "alice")
	require.NoError(t, err)
	require.NoError(t, res.SyncErr)
	assert.True(t, res.Ledgered)
	assert.Equal(t, models.SprintActive, res.Entity.Status)
	assert.Equal(t, res.TxHash, *res.Entity.LastTxHash)

	call := f.ledger.lastCall()
	assert.Equal(t, ledger.MethodUpdateSprintStatus, call.Method)
	assert.Equal(t, *sprint.LedgerID, call.Args.ID)
	require.NotNil(t, call.Args.Status)
	assert.EqualValues(t, 1, *call.Args.Status)

	rec, err := f.repo.GetTransaction(ctx, res.TxHash)
	require.NoError(t, err)
	assert.Equal(t, models.TxTypeStatusChange, rec.TransactionType)
	assert.Empty(t, rec.Fingerprint)

	team := f.ledgeredTeam(t)
	_, err = f.teams.ChangeStatus(ctx, team.ID, "active", "alice")
	assert.ErrorIs(t, err, ErrUnsupportedOperation)
}

func TestChangeStatus_RemovedOnlyThroughRemove(t *testing.T) {
	f := newFixture(t, time.Second)
	ctx := context.Background()
	task := f.ledgeredTask(t)
	calls := f.ledger.callCount()

	_, err := f.tasks.ChangeStatus(ctx, task.ID, models.TaskRemoved, "alice")
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.Equal(t, calls, f.ledger.callCount())

	stored, err := f.tasks.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskTodo, stored.Status)
}

func TestChangeStatus_ReceiptsOutOfOrder(t *testing.T) {
	f := newFixture(t, 30*time.Millisecond)
	ctx := context.Background()
	sprint := f.ledgeredSprint(t)

	f.ledger.outcome = func(ledger.Call) *ledger.Receipt { return nil }
	first, err := f.sprints.ChangeStatus(ctx, sprint.ID, models.SprintActive, "alice")
	require.NoError(t, err)
	require.ErrorIs(t, first.SyncErr, ErrConfirmationUnknown)

	f.ledger.outcome = f.ledger.succeed
	second, err := f.sprints.ChangeStatus(ctx, sprint.ID, models.SprintCompleted, "alice")
	require.NoError(t, err)
	require.NoError(t, second.SyncErr)
	assert.Equal(t, second.TxHash, *second.Entity.LastTxHash)

	// the earlier transaction is included after the later one was confirmed
	f.ledger.include(first.TxHash, &ledger.Receipt{Success: true, BlockNumber: 50})
	sweeper := NewSweeper(f.repo, f.ledger, SweepConfig{MinAge: time.Millisecond, FailAfter: time.Hour}, cmtlog.NewNopLogger())
	sweeper.now = func() time.Time { return time.Now().UTC().Add(time.Second) }
	report, err := sweeper.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Confirmed)

	stored, err := f.sprints.Get(ctx, sprint.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SprintCompleted, stored.Status)
	require.NotNil(t, stored.LastTxHash)
	assert.Equal(t, second.TxHash, *stored.LastTxHash)

	recs := records(t, f.repo, models.KindSprint, sprint.ID)
	require.Len(t, recs, 3)
	assert.Equal(t, second.TxHash, recs[0].TxHash)
	assert.Equal(t, first.TxHash, recs[1].TxHash)
	for _, rec := range recs {
		assert.Equal(t, models.TxConfirmed, rec.Status, rec.TxHash)
	}
}

func TestAssign(t *testing.T) {
	f := newFixture(t, time.Second)
	ctx := context.Background()
	task := f.ledgeredTask(t)
	addr := ledger.GenerateSigner().Address()

	_, err := f.tasks.Assign(ctx, task.ID, "bob", "alice")
	assert.ErrorIs(t, err, ErrInvalidArgument)

	res, err := f.tasks.Assign(ctx, task.ID, addr, "alice")
	require.NoError(t, err)
	require.NoError(t, res.SyncErr)
	assert.Equal(t, addr, *res.Entity.Assignee)
	assert.Equal(t, ledger.MethodAssignTask, f.ledger.lastCall().Method)

	sprint := f.ledgeredSprint(t)
	_, err = f.sprints.Assign(ctx, sprint.ID, addr, "alice")
	assert.ErrorIs(t, err, ErrUnsupportedOperation)
}

func TestUpdate_RelationalOnlyKinds(t *testing.T) {
	f := newFixture(t, time.Second)
	ctx := context.Background()
	team := f.ledgeredTeam(t)
	calls := f.ledger.callCount()

	res, err := f.teams.Update(ctx, team.ID, map[string]any{"description": "platform"}, "alice")
	require.NoError(t, err)
	assert.NoError(t, res.SyncErr)
	assert.Empty(t, res.TxHash)
	assert.False(t, res.Ledgered)
	assert.Equal(t, "platform", res.Entity.Description)
	assert.Equal(t, calls, f.ledger.callCount())

	integrity, err := f.teams.Verify(ctx, team.ID)
	require.NoError(t, err)
	assert.False(t, integrity.Match, "drift from the registered fingerprint is visible")
}

func TestUpdate_CommitsNewFingerprint(t *testing.T) {
	f := newFixture(t, time.Second)
	ctx := context.Background()
	task := f.ledgeredTask(t)

	res, err := f.tasks.Update(ctx, task.ID, map[string]any{"estimate": 8}, "alice")
	require.NoError(t, err)
	require.NoError(t, res.SyncErr)
	assert.Equal(t, 8, res.Entity.Estimate)
	assert.Equal(t, "Write tests", res.Entity.Title)

	call := f.ledger.lastCall()
	assert.Equal(t, ledger.MethodUpdateTaskDataHash, call.Method)
	assert.Equal(t, models.Fingerprint(res.Entity).String(), call.Args.DataHash)

	_, err = f.tasks.Update(ctx, task.ID, map[string]any{"status": models.TaskDone}, "alice")
	var repoErr *repository.RepositoryError
	require.ErrorAs(t, err, &repoErr)
	assert.Equal(t, repository.CodeInvalidField, repoErr.Code)
}

func TestUpdate_ValidatesMergedEntity(t *testing.T) {
	f := newFixture(t, time.Second)
	ctx := context.Background()
	sprint := f.ledgeredSprint(t)
	calls := f.ledger.callCount()

	_, err := f.sprints.Update(ctx, sprint.ID, map[string]any{"end_date": sprint.StartDate.Add(-24 * time.Hour)}, "alice")
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.Equal(t, calls, f.ledger.callCount())

	stored, err := f.sprints.Get(ctx, sprint.ID)
	require.NoError(t, err)
	assert.True(t, stored.EndDate.Equal(sprint.EndDate))

	_, err = f.sprints.Update(ctx, sprint.ID, map[string]any{"name": " "}, "alice")
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.Equal(t, calls, f.ledger.callCount())
}

func TestVerify_DetectsTampering(t *testing.T) {
	f := newFixture(t, time.Second)
	ctx := context.Background()
	sprint := f.ledgeredSprint(t)

	err := f.repo.DB().Model(&models.Sprint{}).Where("sprint_id = ?", sprint.ID).Update("name", "Tampered").Error
	require.NoError(t, err)

	integrity, err := f.sprints.Verify(ctx, sprint.ID)
	require.NoError(t, err)
	assert.False(t, integrity.Match)
	assert.NotEqual(t, integrity.Recorded, integrity.Computed)
}

func TestRemove_ResolvesInBackground(t *testing.T) {
	f := newFixture(t, time.Second)
	ctx := context.Background()
	task := f.ledgeredTask(t)

	res, err := f.tasks.Remove(ctx, task.ID, "alice")
	require.NoError(t, err)
	require.NoError(t, res.SyncErr)
	assert.Equal(t, models.TaskRemoved, res.Entity.Status)
	assert.NotEmpty(t, res.TxHash)
	assert.Equal(t, ledger.MethodRemoveTask, f.ledger.lastCall().Method)

	_, err = f.tasks.Get(ctx, task.ID)
	assert.ErrorIs(t, err, repository.ErrEntityNotFound)

	closeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	require.NoError(t, f.tasks.Close(closeCtx))

	rec, err := f.repo.GetTransaction(ctx, res.TxHash)
	require.NoError(t, err)
	assert.Equal(t, models.TxConfirmed, rec.Status)
	assert.Equal(t, models.TxTypeRemove, rec.TransactionType)
}

func TestRemove_Unledgered(t *testing.T) {
	f := newFixture(t, time.Second)
	ctx := context.Background()
	team := f.ledgeredTeam(t)

	f.ledger.reject = errors.New("down")
	created, err := f.sprints.Create(ctx, newSprint(team.ID), "alice")
	require.NoError(t, err)
	f.ledger.reject = nil
	calls := f.ledger.callCount()

	res, err := f.sprints.Remove(ctx, created.Entity.ID, "alice")
	require.NoError(t, err)
	assert.NoError(t, res.SyncErr)
	assert.Empty(t, res.TxHash)
	assert.Equal(t, calls, f.ledger.callCount())

	_, err = f.teams.Remove(ctx, team.ID, "alice")
	assert.ErrorIs(t, err, ErrUnsupportedOperation)
}

func TestSubmittedHashSurvivesRecordFailure(t *testing.T) {
	f := newFixture(t, time.Second)
	ctx := context.Background()
	task := f.ledgeredTask(t)

	// occupy the hash the ledger hands out next so recording it fails
	occupy := func() string {
		next := fmt.Sprintf("%064x", f.ledger.callCount()+1)
		require.NoError(t, f.repo.RecordPending(ctx, repository.PendingTransaction{
			TxHash: next, Type: models.TxTypeStatusChange, Kind: models.KindTask, EntityID: task.ID,
		}))
		return next
	}

	next := occupy()
	res, err := f.tasks.ChangeStatus(ctx, task.ID, models.TaskInProgress, "alice")
	require.NoError(t, err)
	assert.ErrorIs(t, res.SyncErr, repository.ErrDuplicateTransaction)
	assert.False(t, res.Ledgered)
	assert.Equal(t, next, res.TxHash)

	next = occupy()
	removed, err := f.tasks.Remove(ctx, task.ID, "alice")
	require.NoError(t, err)
	assert.ErrorIs(t, removed.SyncErr, repository.ErrDuplicateTransaction)
	assert.Equal(t, next, removed.TxHash)
}

func TestSyncError_Is(t *testing.T) {
	cause := errors.New("code 3")
	err := syncErr(ErrLedgerSubmissionRejected, models.KindTask, models.TxTypeCreate, "", cause)
	assert.ErrorIs(t, err, ErrLedgerSubmissionRejected)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "task create")
}
