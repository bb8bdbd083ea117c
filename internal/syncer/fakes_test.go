package syncer

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rdmartin/VaultSync/internal/library"
	"github.com/rdmartin/VaultSync/internal/models"
	"github.com/rdmartin/VaultSync/internal/report"
)

// fakeLibrary is an in-memory media server.
type fakeLibrary struct {
	mu      sync.Mutex
	items   map[uuid.UUID]*library.Entity
	members map[uuid.UUID][]uuid.UUID

	createErr     error
	deleteErr     error
	panicOnCreate string // collection name that panics CreateCollection

	refreshed     []uuid.UUID
	imageURLs     map[uuid.UUID]string
	imagesRemoved []uuid.UUID
	folders       []library.Folder
}

func newFakeLibrary() *fakeLibrary {
	return &fakeLibrary{
		items:     make(map[uuid.UUID]*library.Entity),
		members:   make(map[uuid.UUID][]uuid.UUID),
		imageURLs: make(map[uuid.UUID]string),
	}
}

func (f *fakeLibrary) addMovie(ref, name string, createdAt time.Time) uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := uuid.New()
	f.items[id] = &library.Entity{
		ID:          id,
		Kind:        library.KindMovie,
		Name:        name,
		ProviderIDs: map[string]string{library.RefProvider: ref},
		CreatedAt:   createdAt,
	}
	return id
}

func (f *fakeLibrary) addCollection(name string, memberIDs ...uuid.UUID) uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := uuid.New()
	f.items[id] = &library.Entity{ID: id, Kind: library.KindCollection, Name: name}
	f.members[id] = append([]uuid.UUID{}, memberIDs...)
	return id
}

func (f *fakeLibrary) memberRefs(collectionID uuid.UUID) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var refs []string
	for _, id := range f.members[collectionID] {
		if it, ok := f.items[id]; ok {
			if ref, has := it.RefID(); has {
				refs = append(refs, ref)
			}
		}
	}
	sort.Strings(refs)
	return refs
}

func (f *fakeLibrary) ItemByID(ctx context.Context, id uuid.UUID) (*library.Entity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	it, ok := f.items[id]
	if !ok {
		return nil, library.ErrNotFound
	}
	cp := *it
	return &cp, nil
}

func (f *fakeLibrary) ItemsByIDs(ctx context.Context, ids []uuid.UUID) ([]library.Entity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []library.Entity
	for _, id := range ids {
		if it, ok := f.items[id]; ok {
			out = append(out, *it)
		}
	}
	return out, nil
}

func (f *fakeLibrary) ItemsByRefIDs(ctx context.Context, refIDs []string, kinds []library.Kind) ([]library.Entity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	want := make(map[string]bool, len(refIDs))
	for _, id := range refIDs {
		want[strings.ToLower(id)] = true
	}
	kindOK := make(map[library.Kind]bool, len(kinds))
	for _, k := range kinds {
		kindOK[k] = true
	}
	var out []library.Entity
	for _, it := range f.items {
		if !kindOK[it.Kind] {
			continue
		}
		if ref, ok := it.RefID(); ok && want[strings.ToLower(ref)] {
			out = append(out, *it)
		}
	}
	return out, nil
}

func (f *fakeLibrary) ItemsBySortPrefix(ctx context.Context, prefix string) ([]library.Entity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []library.Entity
	for _, it := range f.items {
		if strings.HasPrefix(it.SortName, prefix) {
			out = append(out, *it)
		}
	}
	return out, nil
}

func (f *fakeLibrary) Collections(ctx context.Context) ([]library.Entity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []library.Entity
	for _, it := range f.items {
		if it.Kind == library.KindCollection {
			out = append(out, *it)
		}
	}
	return out, nil
}

func (f *fakeLibrary) CollectionItems(ctx context.Context, collectionID uuid.UUID) ([]library.Entity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []library.Entity
	for _, id := range f.members[collectionID] {
		if it, ok := f.items[id]; ok {
			out = append(out, *it)
		}
	}
	return out, nil
}

func (f *fakeLibrary) CollectionsContaining(ctx context.Context, itemID uuid.UUID) ([]library.Entity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []library.Entity
	for collID, ids := range f.members {
		for _, id := range ids {
			if id == itemID {
				out = append(out, *f.items[collID])
				break
			}
		}
	}
	return out, nil
}

func (f *fakeLibrary) CreateCollection(ctx context.Context, name string, itemIDs []uuid.UUID) (*library.Entity, error) {
	if f.panicOnCreate != "" && name == f.panicOnCreate {
		panic("create blew up: " + name)
	}
	if f.createErr != nil {
		return nil, f.createErr
	}
	id := f.addCollection(name, itemIDs...)
	return f.ItemByID(ctx, id)
}

func (f *fakeLibrary) AddToCollection(ctx context.Context, collectionID uuid.UUID, itemIDs []uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.members[collectionID] = append(f.members[collectionID], itemIDs...)
	return nil
}

func (f *fakeLibrary) RemoveFromCollection(ctx context.Context, collectionID uuid.UUID, itemIDs []uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	drop := make(map[uuid.UUID]bool, len(itemIDs))
	for _, id := range itemIDs {
		drop[id] = true
	}
	var kept []uuid.UUID
	for _, id := range f.members[collectionID] {
		if !drop[id] {
			kept = append(kept, id)
		}
	}
	f.members[collectionID] = kept
	return nil
}

func (f *fakeLibrary) UpdateMetadata(ctx context.Context, id uuid.UUID, upd library.MetadataUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	it, ok := f.items[id]
	if !ok {
		return library.ErrNotFound
	}
	if upd.Name != nil {
		it.Name = *upd.Name
	}
	if upd.Overview != nil {
		it.Overview = *upd.Overview
	}
	if upd.SortName != nil {
		it.SortName = *upd.SortName
	}
	if upd.DisplayOrder != nil {
		it.DisplayOrder = *upd.DisplayOrder
	}
	return nil
}

func (f *fakeLibrary) DeleteItem(ctx context.Context, id uuid.UUID) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.items, id)
	delete(f.members, id)
	return nil
}

func (f *fakeLibrary) Folders(ctx context.Context) ([]library.Folder, error) {
	return f.folders, nil
}

func (f *fakeLibrary) RemovePrimaryImage(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.imagesRemoved = append(f.imagesRemoved, id)
	return nil
}

func (f *fakeLibrary) SetPrimaryImageURL(ctx context.Context, id uuid.UUID, imageURL string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.imageURLs[id] = imageURL
	return nil
}

func (f *fakeLibrary) RefreshMetadata(ctx context.Context, id uuid.UUID, replaceImages bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshed = append(f.refreshed, id)
	return nil
}

// fakeIdentity is an in-memory IdentityStore.
type fakeIdentity struct {
	mu        sync.Mutex
	bySID     map[string]uuid.UUID
	posters   map[uuid.UUID]bool
	dateAdded map[string]bool
	runs      []time.Time
}

func newFakeIdentity() *fakeIdentity {
	return &fakeIdentity{
		bySID:     make(map[string]uuid.UUID),
		posters:   make(map[uuid.UUID]bool),
		dateAdded: make(map[string]bool),
	}
}

func (f *fakeIdentity) Put(sid string, localID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bySID[sid] = localID
	return nil
}

func (f *fakeIdentity) GetBySID(sid string) (uuid.UUID, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.bySID[sid]
	return id, ok, nil
}

func (f *fakeIdentity) GetByLocalID(localID uuid.UUID) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for sid, id := range f.bySID {
		if id == localID {
			return sid, true, nil
		}
	}
	return "", false, nil
}

func (f *fakeIdentity) RemoveBySID(sid string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id, ok := f.bySID[sid]; ok {
		delete(f.posters, id)
	}
	delete(f.bySID, sid)
	delete(f.dateAdded, sid)
	return nil
}

func (f *fakeIdentity) RemoveByLocalID(localID uuid.UUID) error {
	sid, ok, _ := f.GetByLocalID(localID)
	if ok {
		return f.RemoveBySID(sid)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.posters, localID)
	return nil
}

func (f *fakeIdentity) AddPoster(localID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posters[localID] = true
	return nil
}

func (f *fakeIdentity) RemovePoster(localID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.posters, localID)
	return nil
}

func (f *fakeIdentity) HasPoster(localID uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.posters[localID], nil
}

func (f *fakeIdentity) AddDateAdded(sid string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dateAdded[sid] = true
	return nil
}

func (f *fakeIdentity) RemoveDateAdded(sid string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.dateAdded, sid)
	return nil
}

func (f *fakeIdentity) HasDateAdded(sid string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dateAdded[sid], nil
}

func (f *fakeIdentity) HasDateAddedByLocalID(localID uuid.UUID) (bool, error) {
	sid, ok, _ := f.GetByLocalID(localID)
	if !ok {
		return false, nil
	}
	return f.HasDateAdded(sid)
}

func (f *fakeIdentity) AddSyncRun(at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, at)
	return nil
}

func (f *fakeIdentity) LastSyncRun() (time.Time, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.runs) == 0 {
		return time.Time{}, false, nil
	}
	return f.runs[len(f.runs)-1], true, nil
}

// fakeUpstream records reports and serves a canned document.
type fakeUpstream struct {
	mu      sync.Mutex
	doc     *models.SyncDocument
	jobsErr error

	jobReports        int
	collectionReports int
	libraryPushes     [][]string
}

func (f *fakeUpstream) GetJobs(ctx context.Context, apiKey, clientVersion string) (*models.SyncDocument, error) {
	if f.jobsErr != nil {
		return nil, f.jobsErr
	}
	return f.doc, nil
}

func (f *fakeUpstream) PostReport(ctx context.Context, apiKey string, payload interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch payload.(type) {
	case *report.JobReport:
		f.jobReports++
	case report.CollectionReport:
		f.collectionReports++
	}
	return nil
}

func (f *fakeUpstream) AddLibraries(ctx context.Context, apiKey string, names []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.libraryPushes = append(f.libraryPushes, names)
	return nil
}

// fakeSettings is an in-memory SettingsStore.
type fakeSettings struct {
	mu     sync.Mutex
	values map[string]string
}

func newFakeSettings() *fakeSettings {
	return &fakeSettings{values: make(map[string]string)}
}

func (f *fakeSettings) Get(key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.values[key], nil
}

func (f *fakeSettings) Set(key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[key] = value
	return nil
}
