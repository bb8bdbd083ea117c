package syncer

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rdmartin/VaultSync/internal/library"
	"github.com/rdmartin/VaultSync/internal/models"
	"github.com/rdmartin/VaultSync/internal/report"
	"github.com/rdmartin/VaultSync/internal/sortname"
)

func TestTransitionsIntoDateAddedTagsMembers(t *testing.T) {
	lib := newFakeLibrary()
	a := lib.addMovie("tt0000001", "Heat", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	b := lib.addMovie("tt0000002", "Ronin", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	collID := lib.addCollection("Heist Films", a, b)
	ids := newFakeIdentity()
	require.NoError(t, ids.Put("s1", collID))
	d := NewDateAdded(lib, ids)

	d.Transitions(context.Background(), report.New(nil), &report.CollectionReport{}, models.CollectionSpec{
		SID:          "s1",
		ItemOrdering: orderingPtr(models.OrderingDateAdded),
	})

	flagged, _ := ids.HasDateAdded("s1")
	assert.True(t, flagged)
	entA, _ := lib.ItemByID(context.Background(), a)
	entB, _ := lib.ItemByID(context.Background(), b)
	assert.True(t, sortname.HasTag(entA.SortName))
	assert.True(t, sortname.HasTag(entB.SortName))
	// Newer item sorts first.
	assert.True(t, entB.SortName < entA.SortName)
}

func TestTransitionsOutStripsUnlessShared(t *testing.T) {
	lib := newFakeLibrary()
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	shared := lib.addMovie("tt0000001", "Heat", created)
	only := lib.addMovie("tt0000002", "Ronin", created)
	coll1 := lib.addCollection("Heist Films", shared, only)
	coll2 := lib.addCollection("De Niro", shared)
	ids := newFakeIdentity()
	require.NoError(t, ids.Put("s1", coll1))
	require.NoError(t, ids.Put("s2", coll2))
	d := NewDateAdded(lib, ids)
	rep := report.New(nil)

	// Both collections use date-added ordering.
	for _, sid := range []string{"s1", "s2"} {
		d.Transitions(context.Background(), rep, &report.CollectionReport{}, models.CollectionSpec{
			SID:          sid,
			ItemOrdering: orderingPtr(models.OrderingDateAdded),
		})
	}

	// s1 moves away from date-added ordering.
	d.Transitions(context.Background(), rep, &report.CollectionReport{}, models.CollectionSpec{
		SID:          "s1",
		ItemOrdering: orderingPtr(models.OrderingNone),
	})

	flagged, _ := ids.HasDateAdded("s1")
	assert.False(t, flagged)

	entOnly, _ := lib.ItemByID(context.Background(), only)
	assert.False(t, sortname.HasTag(entOnly.SortName), "exclusive member loses its tag")
	entShared, _ := lib.ItemByID(context.Background(), shared)
	assert.True(t, sortname.HasTag(entShared.SortName), "member of another flagged collection keeps its tag")
}

func TestItemsAddedTagsOnlyWhenFlagged(t *testing.T) {
	lib := newFakeLibrary()
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	a := lib.addMovie("tt0000001", "Heat", created)
	collID := lib.addCollection("Heist Films", a)
	ids := newFakeIdentity()
	require.NoError(t, ids.Put("s1", collID))
	d := NewDateAdded(lib, ids)
	rep := report.New(nil)
	cr := &report.CollectionReport{}

	d.ItemsAdded(context.Background(), rep, cr, collID, []uuid.UUID{a})
	ent, _ := lib.ItemByID(context.Background(), a)
	assert.False(t, sortname.HasTag(ent.SortName), "unflagged collection adds no tags")

	require.NoError(t, ids.AddDateAdded("s1"))
	d.ItemsAdded(context.Background(), rep, cr, collID, []uuid.UUID{a})
	ent, _ = lib.ItemByID(context.Background(), a)
	assert.True(t, sortname.HasTag(ent.SortName))
}

func TestItemsRemovedStripsTag(t *testing.T) {
	lib := newFakeLibrary()
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	a := lib.addMovie("tt0000001", "Heat", created)
	collID := lib.addCollection("Heist Films", a)
	ids := newFakeIdentity()
	require.NoError(t, ids.Put("s1", collID))
	require.NoError(t, ids.AddDateAdded("s1"))
	d := NewDateAdded(lib, ids)
	rep := report.New(nil)
	cr := &report.CollectionReport{}

	d.ItemsAdded(context.Background(), rep, cr, collID, []uuid.UUID{a})
	require.NoError(t, lib.RemoveFromCollection(context.Background(), collID, []uuid.UUID{a}))
	d.ItemsRemoved(context.Background(), rep, cr, collID, []uuid.UUID{a})

	ent, _ := lib.ItemByID(context.Background(), a)
	assert.False(t, sortname.HasTag(ent.SortName))
}

func TestResetAllStripsEverything(t *testing.T) {
	lib := newFakeLibrary()
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ctx := context.Background()
	movies := []uuid.UUID{
		lib.addMovie("tt0000001", "Heat", created),
		lib.addMovie("tt0000002", "Ronin", created),
	}
	for _, id := range movies {
		ent, _ := lib.ItemByID(ctx, id)
		tagged := sortname.DateTag(ent.Name, created)
		require.NoError(t, lib.UpdateMetadata(ctx, id, library.MetadataUpdate{SortName: &tagged}))
	}
	d := NewDateAdded(lib, newFakeIdentity())

	require.NoError(t, d.ResetAll(ctx))

	for _, id := range movies {
		ent, _ := lib.ItemByID(ctx, id)
		assert.False(t, sortname.HasTag(ent.SortName))
	}
}
