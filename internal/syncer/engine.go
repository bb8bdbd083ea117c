package syncer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cast"

	"github.com/rdmartin/VaultSync/internal/models"
	"github.com/rdmartin/VaultSync/internal/report"
	"github.com/rdmartin/VaultSync/internal/settings"
	"github.com/rdmartin/VaultSync/internal/upstream"
)

// Upstream is the slice of the vaultsync.tv client the engine drives.
type Upstream interface {
	GetJobs(ctx context.Context, apiKey, clientVersion string) (*models.SyncDocument, error)
	PostReport(ctx context.Context, apiKey string, payload interface{}) error
	AddLibraries(ctx context.Context, apiKey string, names []string) error
}

// SettingsStore is the slice of the settings repository the engine reads.
type SettingsStore interface {
	Get(key string) (string, error)
	Set(key, value string) error
}

// Progress baseline after a successful document fetch, and the trailing
// margin reserved for post-loop bookkeeping.
const (
	progressBase    = 15.0
	progressReserve = 10.0
)

// Engine runs one full reconciliation pass: fetch the document, reconcile
// each collection in order with fault isolation, report as it goes.
type Engine struct {
	up         Upstream
	settings   SettingsStore
	ids        IdentityStore
	reconciler *Reconciler
	inventory  *Inventory
	ring       *report.Ring
	notifier   Notifier
	version    string

	mu       sync.Mutex
	progress float64
	running  bool
}

func NewEngine(up Upstream, set SettingsStore, ids IdentityStore, reconciler *Reconciler,
	inventory *Inventory, ring *report.Ring, notifier Notifier, version string) *Engine {
	return &Engine{
		up:         up,
		settings:   set,
		ids:        ids,
		reconciler: reconciler,
		inventory:  inventory,
		ring:       ring,
		notifier:   notifier,
		version:    version,
	}
}

// Progress returns the current run's progress percentage.
func (e *Engine) Progress() (float64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.progress, e.running
}

// Sync executes one reconciliation run. A document fetch failure aborts
// before any mutation; collection failures never abort the run.
func (e *Engine) Sync(ctx context.Context) error {
	apiKey, err := e.settings.Get(settings.KeyAPIKey)
	if err != nil {
		return fmt.Errorf("load api key: %w", err)
	}
	if apiKey == "" {
		return errors.New("no api key configured, login required")
	}

	e.start()
	defer e.finish()

	rep := report.New(e.ring)
	rep.Job.APIKey = apiKey
	rep.Job.ClientVersion = e.version
	rep.Job.StartTime = time.Now()
	e.setProgress(0)

	doc, err := e.up.GetJobs(ctx, apiKey, e.version)
	switch {
	case errors.Is(err, upstream.ErrNothingToDo):
		rep.Add(report.LevelInfo, "no pending jobs upstream")
		e.recordRun(rep)
		e.setProgress(100)
		return nil
	case errors.Is(err, upstream.ErrUnauthorized):
		rep.Add(report.LevelError, "upstream rejected the api key, login required")
		return err
	case err != nil:
		rep.Add(report.LevelError, fmt.Sprintf("fetch sync document: %v", err))
		return err
	}

	rep.Job.JobID = doc.JobID
	rep.Job.APIVersion = doc.APIVersion
	rep.Job.MinClientVersion = doc.MinClientVersion
	if versionLess(e.version, doc.MinClientVersion) {
		rep.Add(report.LevelWarning, fmt.Sprintf("client version %s is below the minimum %s, please upgrade", e.version, doc.MinClientVersion))
	}
	e.setProgress(progressBase)
	e.recordRun(rep)

	if doc.LibrarySync != nil {
		e.inventory.ApplyImages(ctx, rep, doc.LibrarySync)
	}

	var specs []models.CollectionSpec
	if doc.CollectionsSync != nil {
		specs = doc.CollectionsSync.Collections
	}
	e.runCollections(ctx, rep, apiKey, specs)

	e.inventory.Push(ctx, rep, apiKey)

	rep.Job.EndTime = time.Now()
	if err := e.up.PostReport(ctx, apiKey, rep.Job); err != nil {
		log.Printf("[syncer] post job report: %v", err)
	}
	e.setProgress(100)
	log.Print(rep.Summarize())
	return nil
}

// runCollections walks the document in order, spreading the remaining
// progress across collections and posting each report as soon as it is done.
func (e *Engine) runCollections(ctx context.Context, rep *report.Report, apiKey string, specs []models.CollectionSpec) {
	if len(specs) == 0 {
		rep.Add(report.LevelInfo, "sync document lists no collections")
		return
	}
	step := (100 - progressBase - progressReserve) / float64(len(specs))
	current := progressBase

	for i := range specs {
		if ctx.Err() != nil {
			rep.Add(report.LevelWarning, fmt.Sprintf("sync cancelled with %d collections remaining", len(specs)-i))
			return
		}
		cr := e.processOne(ctx, rep, specs[i])
		rep.AppendCollection(cr)
		if err := e.up.PostReport(ctx, apiKey, cr); err != nil {
			log.Printf("[syncer] post collection report for %q: %v", cr.Name, err)
		}
		current += step
		e.setProgress(current)
	}
}

// processOne isolates a single collection: a panic is converted into an error
// entry on that collection's report and the loop moves on.
func (e *Engine) processOne(ctx context.Context, rep *report.Report, spec models.CollectionSpec) (cr report.CollectionReport) {
	defer func() {
		if rec := recover(); rec != nil {
			cr.Name = spec.Name
			cr.CID = spec.CID
			cr.SID = spec.SID
			cr.EndTime = time.Now()
			rep.AddForCollection(report.LevelError, fmt.Sprintf("panic while processing %q: %v", spec.Name, rec), &cr)
		}
	}()
	return e.reconciler.Process(ctx, rep, spec)
}

func (e *Engine) recordRun(rep *report.Report) {
	if err := e.ids.AddSyncRun(time.Now()); err != nil {
		rep.Add(report.LevelWarning, fmt.Sprintf("record sync run: %v", err))
	}
}

func (e *Engine) start() {
	e.mu.Lock()
	e.running = true
	e.progress = 0
	e.mu.Unlock()
}

func (e *Engine) finish() {
	e.mu.Lock()
	e.running = false
	e.mu.Unlock()
}

// setProgress advances the monotonic progress counter and notifies observers.
// Observers must not block; the loop never waits on them.
func (e *Engine) setProgress(p float64) {
	if p > 100 {
		p = 100
	}
	e.mu.Lock()
	if p < e.progress {
		p = e.progress
	}
	e.progress = p
	e.mu.Unlock()
	if e.notifier != nil {
		e.notifier.Broadcast("sync_progress", map[string]float64{"percent": p})
	}
}

// versionLess compares dotted version strings numerically per segment.
func versionLess(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	as, bs := strings.Split(a, "."), strings.Split(b, ".")
	for i := 0; i < len(as) || i < len(bs); i++ {
		var av, bv int
		if i < len(as) {
			av = cast.ToInt(as[i])
		}
		if i < len(bs) {
			bv = cast.ToInt(bs[i])
		}
		if av != bv {
			return av < bv
		}
	}
	return false
}
