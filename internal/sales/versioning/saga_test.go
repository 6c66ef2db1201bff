package versioning

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-quotes/internal/sales/packages"
	"github.com/odyssey-erp/odyssey-quotes/internal/sales/pricing"
	"github.com/odyssey-erp/odyssey-quotes/internal/sales/quotations"
	"github.com/odyssey-erp/odyssey-quotes/internal/sales/shared"
)

func runSave(t *testing.T, saga *Saga, ws *Workspace, store *memStore, token *CancelToken) (*Outcome, error) {
	t.Helper()
	ctx := context.Background()
	_, err := ws.Refresh(ctx, store)
	require.NoError(t, err)
	base := store.active("COT-1")
	require.Len(t, base, 1)
	return saga.Run(ctx, saveRequest(base[0]), token)
}

func TestSagaCommitsNewActiveVersion(t *testing.T) {
	store := newSeededStore()
	saga, ws := newTestSaga(store, Config{})

	out, err := runSave(t, saga, ws, store, nil)
	require.NoError(t, err)

	assert.Equal(t, StateCommitted, out.State)
	assert.Equal(t, "v2", out.VersionID)
	assert.Equal(t, 2, out.VersionNumber)
	assert.Equal(t, "COT-1-v2", out.Number)
	assert.Equal(t, 1, out.ReassignedPackages)
	assert.Nil(t, out.Rollback)
	for _, step := range Steps {
		assert.Equal(t, StatusDone, out.Steps[step], step)
	}

	active := store.active("COT-1")
	require.Len(t, active, 1)
	assert.Equal(t, "v2", active[0].ID)

	view := ws.View()
	require.NotNil(t, view.Active("COT-1"))
	assert.Equal(t, "v2", view.Active("COT-1").ID)
	assert.Len(t, view.PackagesOf("v2"), 1)
	assert.Empty(t, view.PackagesOf("v1"))
}

func TestSagaVersionNumbersIncrease(t *testing.T) {
	store := newSeededStore()
	saga, ws := newTestSaga(store, Config{})

	last := 1
	for i := 0; i < 3; i++ {
		out, err := runSave(t, saga, ws, store, nil)
		require.NoError(t, err)
		assert.Greater(t, out.VersionNumber, last)
		last = out.VersionNumber
		assert.Len(t, store.active("COT-1"), 1)
	}
	assert.Equal(t, 4, last)
	assert.Equal(t, 1, store.packagesOf("v4"))
}

func TestSagaCancelAfterCreateRollsBack(t *testing.T) {
	store := newSeededStore()
	saga, ws := newTestSaga(store, Config{})
	token := NewCancelToken()
	store.onCreate = token.Cancel

	out, err := runSave(t, saga, ws, store, token)

	var cancelled *CancelledError
	require.ErrorAs(t, err, &cancelled)
	assert.Equal(t, StepCreatingVersion, cancelled.Step)
	assert.Equal(t, StateRolledBack, out.State)
	assert.Equal(t, [][2]string{{"v2", "v1"}}, store.rollbacks)
	require.NotNil(t, out.Rollback)
	assert.True(t, out.Rollback.OK)
	assert.True(t, out.Rollback.VerifiedClean)
	assert.Equal(t, StatusCancelled, out.Steps[StepCreatingVersion])
	assert.Equal(t, StatusPending, out.Steps[StepActivating])

	active := store.active("COT-1")
	require.Len(t, active, 1)
	assert.Equal(t, "v1", active[0].ID)
	assert.Equal(t, 1, store.packagesOf("v1"))
	assert.Equal(t, "v1", ws.View().Active("COT-1").ID)
}

func TestSagaCancelBeforeStartCreatesNothing(t *testing.T) {
	store := newSeededStore()
	saga, ws := newTestSaga(store, Config{})
	token := NewCancelToken()
	token.Cancel()

	out, err := runSave(t, saga, ws, store, token)

	var cancelled *CancelledError
	require.ErrorAs(t, err, &cancelled)
	assert.Equal(t, StepValidating, cancelled.Step)
	assert.Equal(t, StateRolledBack, out.State)
	assert.Zero(t, store.createCalls)
	assert.Empty(t, store.rollbacks)
	assert.True(t, out.Rollback.OK)
	assert.True(t, out.Rollback.VerifiedClean)
}

func TestSagaAbortedCreateRollsBackOrphan(t *testing.T) {
	store := newSeededStore()
	saga, ws := newTestSaga(store, Config{AbortInFlight: true})
	token := NewCancelToken()
	store.onCreate = token.Cancel
	store.loseResponse = true

	out, err := runSave(t, saga, ws, store, token)

	var cancelled *CancelledError
	require.ErrorAs(t, err, &cancelled)
	assert.Equal(t, StateRolledBack, out.State)
	assert.Empty(t, out.VersionID)
	require.NotNil(t, out.Rollback)
	assert.Equal(t, "v2", out.Rollback.DeletedID)
	assert.Equal(t, [][2]string{{"v2", "v1"}}, store.rollbacks)
	assert.Equal(t, "v1", store.active("COT-1")[0].ID)
}

func TestSagaActivationFailureRollsBack(t *testing.T) {
	store := newSeededStore()
	store.deactivateErr = errUnavailable
	saga, ws := newTestSaga(store, Config{})

	out, err := runSave(t, saga, ws, store, nil)

	var netErr *NetworkError
	require.ErrorAs(t, err, &netErr)
	assert.ErrorIs(t, err, errUnavailable)
	assert.Equal(t, StateRolledBack, out.State)
	assert.Equal(t, StatusError, out.Steps[StepActivating])
	assert.Equal(t, [][2]string{{"v2", "v1"}}, store.rollbacks)
	assert.Equal(t, "v1", store.active("COT-1")[0].ID)
}

func TestSagaRefreshFailureRollsBack(t *testing.T) {
	store := newSeededStore()
	saga, ws := newTestSaga(store, Config{})
	_, err := ws.Refresh(context.Background(), store)
	require.NoError(t, err)

	store.onCreate = func() { store.listErr = errUnavailable }
	base := store.active("COT-1")[0]

	out, err := saga.Run(context.Background(), saveRequest(base), nil)

	var netErr *NetworkError
	require.ErrorAs(t, err, &netErr)
	assert.ErrorIs(t, err, errUnavailable)
	assert.Equal(t, StateRolledBack, out.State)
	assert.Equal(t, StatusError, out.Steps[StepReassigningPackages])
	assert.Equal(t, [][2]string{{"v2", "v1"}}, store.rollbacks)
	assert.True(t, out.Rollback.OK)
	assert.False(t, out.Rollback.VerifiedClean, "follow-up read failed")
	assert.Equal(t, "v1", store.active("COT-1")[0].ID)
}

func TestSagaRollbackFailureNeedsManualCheck(t *testing.T) {
	store := newSeededStore()
	store.deactivateErr = errUnavailable
	store.rollbackErr = errUnavailable
	saga, ws := newTestSaga(store, Config{})

	out, err := runSave(t, saga, ws, store, nil)

	var rf *RollbackFailure
	require.ErrorAs(t, err, &rf)
	assert.Equal(t, "v2", rf.CreatedID)
	assert.Equal(t, "v1", rf.PriorID)
	assert.Equal(t, "COT-1", rf.BaseNumber)
	assert.Contains(t, rf.Error(), "verify the quotation manually")
	assert.Equal(t, StateFailed, out.State)
	assert.False(t, out.Rollback.OK)
	assert.Len(t, store.rollbacks, 1, "rollback is not retried")
}

func TestSagaValidationFailureMutatesNothing(t *testing.T) {
	store := newSeededStore()
	store.snaps[0].Active = false
	saga, ws := newTestSaga(store, Config{})
	_, err := ws.Refresh(context.Background(), store)
	require.NoError(t, err)

	req := saveRequest(store.active("COT-1")[0])
	req.Fields.Email = "nope"
	req.Fields.ValidUntil = testNow.AddDate(0, 0, -1)
	req.Fields.ValidFrom = testNow.AddDate(0, 0, -10)
	req.Templates = quotations.Templates{BaseServices: []pricing.Service{{ID: "setup", Name: "Setup"}}}

	out, err := saga.Run(context.Background(), req, nil)

	require.ErrorIs(t, err, shared.ErrValidation)
	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.True(t, verr.Has("fields.email"))
	assert.True(t, verr.Has("fields.valid_until"))
	assert.True(t, verr.Has("templates.base_services"))
	assert.True(t, verr.Has("packages"))
	assert.Equal(t, StateFailed, out.State)
	assert.Zero(t, store.createCalls)
	assert.Empty(t, store.rollbacks)
	assert.Len(t, store.quotes, 1)
}

func TestSagaRejectsInvalidTemplatePlan(t *testing.T) {
	store := newSeededStore()
	saga, ws := newTestSaga(store, Config{})
	_, err := ws.Refresh(context.Background(), store)
	require.NoError(t, err)

	req := saveRequest(store.active("COT-1")[0])
	req.Templates = quotations.Templates{
		BaseServices: []pricing.Service{
			{ID: "hosting", Name: "Hosting", Price: decimal.NewFromInt(100), FreeMonths: 5, PaidMonths: 5},
		},
		OptionalServices: []pricing.Service{
			{ID: "seo", Name: "SEO", Price: decimal.NewFromInt(40), FreeMonths: 0, PaidMonths: 13},
		},
		PaymentOptions: []pricing.PaymentOption{{Percent: 30}, {Percent: 50}},
	}

	out, err := saga.Run(context.Background(), req, nil)

	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.True(t, verr.Has("templates.base_services[0].months"))
	assert.True(t, verr.Has("templates.optional_services[0].months"))
	assert.True(t, verr.Has("templates.payment_options"))
	assert.False(t, verr.Has("templates.base_services"))
	assert.Equal(t, StateFailed, out.State)
	assert.Zero(t, store.createCalls)
	active := store.active("COT-1")
	require.Len(t, active, 1)
	assert.Equal(t, "v1", active[0].ID)
}

func TestSagaRejectsDuplicatePackageNames(t *testing.T) {
	store := newSeededStore()
	store.snaps = append(store.snaps, packages.Snapshot{ID: "p2", QuotationConfigID: "v1", Name: "  plan   x", Active: true})
	saga, ws := newTestSaga(store, Config{})

	_, err := runSave(t, saga, ws, store, nil)

	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.True(t, verr.Has("packages"))
	assert.Zero(t, store.createCalls)
}

func TestSagaLinksUnlinkedPackages(t *testing.T) {
	store := newSeededStore()
	store.snaps = append(store.snaps, packages.Snapshot{ID: "p2", Name: "Plan Y", Active: true})
	saga, ws := newTestSaga(store, Config{})

	out, err := runSave(t, saga, ws, store, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, out.LinkedPackages)
	assert.Equal(t, 2, out.ReassignedPackages)
	assert.Equal(t, 2, store.packagesOf("v2"))
}

func TestSagaLinkFailureIsNotFatal(t *testing.T) {
	store := newSeededStore()
	store.snaps = append(store.snaps, packages.Snapshot{ID: "p2", Name: "Plan Y", Active: true})
	store.updateErr = errUnavailable
	saga, ws := newTestSaga(store, Config{})

	out, err := runSave(t, saga, ws, store, nil)
	require.NoError(t, err)

	assert.Equal(t, StateCommitted, out.State)
	assert.Zero(t, out.LinkedPackages)
	assert.Equal(t, 1, store.packagesOf("v2"))
}

func TestSagaVersionConflictFailsWithoutRollback(t *testing.T) {
	store := newSeededStore()
	store.quotes = append(store.quotes, quotations.Quotation{ID: "v2-other", BaseNumber: "COT-1", VersionNumber: 2})
	saga, ws := newTestSaga(store, Config{})

	out, err := runSave(t, saga, ws, store, nil)

	assert.ErrorIs(t, err, quotations.ErrVersionConflict)
	assert.Equal(t, StateFailed, out.State)
	assert.Equal(t, StatusError, out.Steps[StepCreatingVersion])
	assert.Empty(t, store.rollbacks)
	assert.Equal(t, "v1", store.active("COT-1")[0].ID)
}

func TestSagaCreateFailureChecksForOrphan(t *testing.T) {
	store := newSeededStore()
	store.createErr = errUnavailable
	saga, ws := newTestSaga(store, Config{})

	out, err := runSave(t, saga, ws, store, nil)

	var netErr *NetworkError
	require.ErrorAs(t, err, &netErr)
	assert.Equal(t, StateRolledBack, out.State)
	assert.True(t, out.Rollback.VerifiedClean)
	assert.Empty(t, store.rollbacks)
}
