package versioning

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-quotes/internal/sales/diff"
	"github.com/odyssey-erp/odyssey-quotes/internal/sales/quotations"
)

func seededWithSecondVersion(t *testing.T) (*memStore, *Coordinator) {
	t.Helper()
	store := newSeededStore()
	coord := newTestCoordinator(store, Hooks{})

	req := saveRequest(store.active("COT-1")[0])
	req.Fields.Company = "Acme Holdings"
	_, err := coord.Save(context.Background(), req)
	require.NoError(t, err)
	return store, coord
}

func TestRestoreShowsDifferencesWithoutConfirmation(t *testing.T) {
	store, coord := seededWithSecondVersion(t)
	r := NewRestorer(coord, testLogger())

	var seen diff.Decision
	res, err := r.Restore(context.Background(), "v1", diff.DeciderFunc(func(_ context.Context, d diff.Decision) diff.Choice {
		seen = d
		return diff.ChoiceCancel
	}))
	require.NoError(t, err)

	assert.Equal(t, "restore", seen.Kind)
	require.Len(t, res.Differences, 1)
	assert.Equal(t, "fields.company", res.Differences[0].Field)
	assert.Equal(t, "Acme Holdings", res.Differences[0].Left)
	assert.Equal(t, "Acme", res.Differences[0].Right)
	assert.Equal(t, "cancel", res.Choice)
	assert.Nil(t, res.Outcome)
	assert.Equal(t, "v2", store.active("COT-1")[0].ID)
}

func TestRestoreConfirmedCreatesNewVersion(t *testing.T) {
	store, coord := seededWithSecondVersion(t)
	r := NewRestorer(coord, testLogger())

	res, err := r.Restore(context.Background(), "v1", diff.Fixed(diff.ChoiceConfirm))
	require.NoError(t, err)

	require.NotNil(t, res.Outcome)
	assert.Equal(t, StateCommitted, res.Outcome.State)
	assert.Equal(t, 3, res.Outcome.VersionNumber)
	active := store.active("COT-1")
	require.Len(t, active, 1)
	assert.Equal(t, "v3", active[0].ID)
	assert.Equal(t, "Acme", active[0].Fields.Company)
	assert.NotNil(t, quotations.Find(store.quotes, "v1"), "history is kept")
}

func TestRestoreRejectsActiveOrUnknownVersion(t *testing.T) {
	_, coord := seededWithSecondVersion(t)
	r := NewRestorer(coord, testLogger())

	_, err := r.Restore(context.Background(), "v2", diff.Fixed(diff.ChoiceConfirm))
	assert.ErrorIs(t, err, ErrAlreadyActive)

	_, err = r.Restore(context.Background(), "v9", diff.Fixed(diff.ChoiceConfirm))
	assert.ErrorIs(t, err, quotations.ErrNotFound)
}
