package syncer

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rdmartin/VaultSync/internal/library"
	"github.com/rdmartin/VaultSync/internal/models"
	"github.com/rdmartin/VaultSync/internal/settings"
	"github.com/rdmartin/VaultSync/internal/upstream"
)

type fakeNotifier struct {
	mu       sync.Mutex
	percents []float64
}

func (n *fakeNotifier) Broadcast(event string, data interface{}) {
	if event != "sync_progress" {
		return
	}
	m, ok := data.(map[string]float64)
	if !ok {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.percents = append(n.percents, m["percent"])
}

func newTestEngine(lib *fakeLibrary, ids *fakeIdentity, up *fakeUpstream, set *fakeSettings, notifier Notifier) *Engine {
	rec := newTestReconciler(lib, ids)
	inv := NewInventory(lib, up, set, "https://vaultsync.tv", func() string { return "keyhash" })
	return NewEngine(up, set, ids, rec, inv, nil, notifier, "1.2.0")
}

func docWith(specs ...models.CollectionSpec) *models.SyncDocument {
	return &models.SyncDocument{
		JobID:           "job-1",
		Status:          200,
		APIVersion:      3,
		CollectionsSync: &models.CollectionsSync{Collections: specs},
	}
}

func TestSyncRequiresAPIKey(t *testing.T) {
	e := newTestEngine(newFakeLibrary(), newFakeIdentity(), &fakeUpstream{}, newFakeSettings(), nil)
	err := e.Sync(context.Background())
	require.Error(t, err)
}

func TestSyncNothingToDo(t *testing.T) {
	set := newFakeSettings()
	require.NoError(t, set.Set(settings.KeyAPIKey, "key-123"))
	ids := newFakeIdentity()
	notifier := &fakeNotifier{}
	e := newTestEngine(newFakeLibrary(), ids, &fakeUpstream{jobsErr: upstream.ErrNothingToDo}, set, notifier)

	require.NoError(t, e.Sync(context.Background()))

	_, ok, _ := ids.LastSyncRun()
	assert.True(t, ok, "an empty run still counts as a run")
	require.NotEmpty(t, notifier.percents)
	assert.Equal(t, float64(100), notifier.percents[len(notifier.percents)-1])
}

func TestSyncUnauthorized(t *testing.T) {
	set := newFakeSettings()
	require.NoError(t, set.Set(settings.KeyAPIKey, "key-123"))
	e := newTestEngine(newFakeLibrary(), newFakeIdentity(), &fakeUpstream{jobsErr: upstream.ErrUnauthorized}, set, nil)

	err := e.Sync(context.Background())
	assert.ErrorIs(t, err, upstream.ErrUnauthorized)
}

func TestSyncFaultIsolation(t *testing.T) {
	lib := newFakeLibrary()
	lib.addMovie("tt0000001", "Heat", testNow)
	lib.addMovie("tt0000002", "Ronin", testNow)
	lib.addMovie("tt0000003", "Thief", testNow)
	lib.panicOnCreate = "Boom"

	set := newFakeSettings()
	require.NoError(t, set.Set(settings.KeyAPIKey, "key-123"))
	up := &fakeUpstream{doc: docWith(
		models.CollectionSpec{Name: "First", SID: "s1", RefIDs: []string{"tt0000001"}},
		models.CollectionSpec{Name: "Boom", SID: "s2", RefIDs: []string{"tt0000002"}},
		models.CollectionSpec{Name: "Third", SID: "s3", RefIDs: []string{"tt0000003"}},
	)}
	e := newTestEngine(lib, newFakeIdentity(), up, set, nil)

	require.NoError(t, e.Sync(context.Background()))

	cols, _ := lib.Collections(context.Background())
	names := make([]string, 0, len(cols))
	for _, c := range cols {
		names = append(names, c.Name)
	}
	assert.ElementsMatch(t, []string{"First", "Third"}, names)

	// Every collection got a report, plus one job report at the end.
	assert.Equal(t, 3, up.collectionReports)
	assert.Equal(t, 1, up.jobReports)
}

func TestSyncProgressMonotonicEndingAtHundred(t *testing.T) {
	lib := newFakeLibrary()
	lib.addMovie("tt0000001", "Heat", testNow)
	lib.addMovie("tt0000002", "Ronin", testNow)

	set := newFakeSettings()
	require.NoError(t, set.Set(settings.KeyAPIKey, "key-123"))
	up := &fakeUpstream{doc: docWith(
		models.CollectionSpec{Name: "First", SID: "s1", RefIDs: []string{"tt0000001"}},
		models.CollectionSpec{Name: "Second", SID: "s2", RefIDs: []string{"tt0000002"}},
	)}
	notifier := &fakeNotifier{}
	e := newTestEngine(lib, newFakeIdentity(), up, set, notifier)

	require.NoError(t, e.Sync(context.Background()))

	require.NotEmpty(t, notifier.percents)
	for i := 1; i < len(notifier.percents); i++ {
		assert.GreaterOrEqual(t, notifier.percents[i], notifier.percents[i-1])
	}
	assert.Equal(t, float64(100), notifier.percents[len(notifier.percents)-1])
}

func TestSyncPushesInventoryOnlyWhenChanged(t *testing.T) {
	lib := newFakeLibrary()
	lib.folders = []library.Folder{
		{ID: uuid.New(), Name: "Movies"},
		{ID: uuid.New(), Name: "Shows"},
	}
	set := newFakeSettings()
	require.NoError(t, set.Set(settings.KeyAPIKey, "key-123"))
	up := &fakeUpstream{doc: docWith()}
	e := newTestEngine(lib, newFakeIdentity(), up, set, nil)

	require.NoError(t, e.Sync(context.Background()))
	require.Len(t, up.libraryPushes, 1)
	assert.Equal(t, []string{"Movies", "Shows"}, up.libraryPushes[0])

	// Same libraries next run: no second push.
	require.NoError(t, e.Sync(context.Background()))
	assert.Len(t, up.libraryPushes, 1)
}

func TestSyncAppliesLibraryImages(t *testing.T) {
	lib := newFakeLibrary()
	moviesID := uuid.New()
	lib.folders = []library.Folder{{ID: moviesID, Name: "Movies"}}
	set := newFakeSettings()
	require.NoError(t, set.Set(settings.KeyAPIKey, "key-123"))
	doc := docWith()
	doc.LibrarySync = &models.LibrarySync{Images: []models.LibraryImage{
		{Name: "movies", PosterRef: "lib-poster-9"},
	}}
	up := &fakeUpstream{doc: doc}
	e := newTestEngine(lib, newFakeIdentity(), up, set, nil)

	require.NoError(t, e.Sync(context.Background()))

	assert.Equal(t, "https://vaultsync.tv/images/library/lib-poster-9/keyhash", lib.imageURLs[moviesID])
	assert.Contains(t, lib.refreshed, moviesID)
}

func TestSyncCancellation(t *testing.T) {
	lib := newFakeLibrary()
	lib.addMovie("tt0000001", "Heat", testNow)
	set := newFakeSettings()
	require.NoError(t, set.Set(settings.KeyAPIKey, "key-123"))
	up := &fakeUpstream{doc: docWith(
		models.CollectionSpec{Name: "First", SID: "s1", RefIDs: []string{"tt0000001"}},
	)}
	e := newTestEngine(lib, newFakeIdentity(), up, set, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, e.Sync(ctx))

	cols, _ := lib.Collections(context.Background())
	assert.Empty(t, cols, "no mutations after cancellation")
}

func TestVersionLess(t *testing.T) {
	assert.True(t, versionLess("1.2.0", "1.10.0"))
	assert.False(t, versionLess("1.10.0", "1.2.0"))
	assert.False(t, versionLess("1.2.0", "1.2.0"))
	assert.True(t, versionLess("1.2", "1.2.1"))
	assert.False(t, versionLess("", "9.9.9"))
}
