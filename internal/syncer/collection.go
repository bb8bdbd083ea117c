package syncer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rdmartin/VaultSync/internal/library"
	"github.com/rdmartin/VaultSync/internal/models"
	"github.com/rdmartin/VaultSync/internal/report"
	"github.com/rdmartin/VaultSync/internal/sortname"
)

// Reconciler turns one desired collection into a sequence of idempotent
// library mutations. Each step downgrades its own failures to report entries;
// only a missing target short-circuits the remaining steps.
type Reconciler struct {
	lib        library.Library
	resolver   *library.Resolver
	ids        IdentityStore
	poster     *PosterPolicy
	dateAdded  *DateAdded
	sortSettle time.Duration
	sleep      func(ctx context.Context, d time.Duration)
	now        func() time.Time
}

func NewReconciler(lib library.Library, resolver *library.Resolver, ids IdentityStore,
	poster *PosterPolicy, dateAdded *DateAdded, sortSettle time.Duration) *Reconciler {
	return &Reconciler{
		lib:        lib,
		resolver:   resolver,
		ids:        ids,
		poster:     poster,
		dateAdded:  dateAdded,
		sortSettle: sortSettle,
		sleep:      sleepCtx,
		now:        time.Now,
	}
}

// Process reconciles a single collection and reports the outcome.
func (r *Reconciler) Process(ctx context.Context, rep *report.Report, spec models.CollectionSpec) report.CollectionReport {
	cr := report.CollectionReport{
		StartTime:   r.now(),
		Name:        spec.Name,
		CID:         spec.CID,
		SID:         spec.SID,
		MissingRefs: []string{},
		Errors:      []string{},
	}
	defer func() { cr.EndTime = r.now() }()

	if spec.Delete {
		r.deleteCollection(ctx, rep, &cr, spec)
		return cr
	}

	refIDs := dedupeRefs(spec.RefIDs)
	if len(refIDs) == 0 && spec.CID == "" && spec.Name == "" {
		cr.Paused = true
		rep.AddForCollection(report.LevelError, "nothing to act on: no items, no known id and no name", &cr)
		return cr
	}

	// Ordering transitions run first so a collection created or merged below
	// is tagged through the usual added-items path.
	r.dateAdded.Transitions(ctx, rep, &cr, spec)

	target := r.findTarget(ctx, rep, &cr, spec)
	if target == nil {
		if len(refIDs) == 0 {
			// The mapped collection is gone and there is nothing to build a
			// new one from; forget the stale mapping.
			if spec.SID != "" {
				if err := r.ids.RemoveBySID(spec.SID); err != nil {
					rep.AddForCollection(report.LevelWarning, fmt.Sprintf("drop stale mapping: %v", err), &cr)
				}
			}
			rep.AddForCollection(report.LevelInfo, fmt.Sprintf("collection %q no longer exists and the document lists no items, skipping", spec.Name), &cr)
			return cr
		}
		target = r.createCollection(ctx, rep, &cr, spec, refIDs)
		if target == nil {
			return cr
		}
	} else {
		cr.CID = target.ID.String()
		if spec.SID != "" {
			if err := r.ids.Put(spec.SID, target.ID); err != nil {
				rep.AddForCollection(report.LevelError, fmt.Sprintf("persist mapping: %v", err), &cr)
			}
		}
		if len(refIDs) > 0 {
			r.mergeMembership(ctx, rep, &cr, target.ID, refIDs)
		}
	}

	r.updateMetadata(ctx, rep, &cr, target, spec)
	r.applySortName(ctx, rep, &cr, target, spec)
	r.applyDisplayOrder(ctx, rep, &cr, target, spec)
	r.poster.Apply(ctx, rep, &cr, target.ID, spec)
	return cr
}

// deleteCollection removes the target and verifies it is gone. Without a
// known local id no deletion is attempted.
func (r *Reconciler) deleteCollection(ctx context.Context, rep *report.Report, cr *report.CollectionReport, spec models.CollectionSpec) {
	localID, ok := r.knownLocalID(spec)
	if !ok {
		rep.AddForCollection(report.LevelError, fmt.Sprintf("delete requested for %q but no local id is known", spec.Name), cr)
		return
	}
	cr.CID = localID.String()

	ent, err := r.lib.ItemByID(ctx, localID)
	if err == library.ErrNotFound {
		cr.Deleted = true
		r.forgetMapping(rep, cr, spec, localID)
		rep.AddForCollection(report.LevelInfo, fmt.Sprintf("collection %q is already gone", spec.Name), cr)
		return
	}
	if err != nil {
		rep.AddForCollection(report.LevelError, fmt.Sprintf("look up %q for deletion: %v", spec.Name, err), cr)
		return
	}
	if ent.Kind != library.KindCollection {
		rep.AddForCollection(report.LevelError, fmt.Sprintf("refusing to delete %s: it is a %s, not a collection", localID, ent.Kind), cr)
		return
	}

	if err := r.lib.DeleteItem(ctx, localID); err != nil {
		rep.AddForCollection(report.LevelError, fmt.Sprintf("delete %q: %v", spec.Name, err), cr)
		return
	}
	if _, err := r.lib.ItemByID(ctx, localID); err != library.ErrNotFound {
		rep.AddForCollection(report.LevelError, fmt.Sprintf("collection %q is still resolvable after deletion", spec.Name), cr)
		return
	}

	cr.Deleted = true
	r.forgetMapping(rep, cr, spec, localID)
	rep.AddForCollection(report.LevelInfo, fmt.Sprintf("deleted collection %q", spec.Name), cr)
}

func (r *Reconciler) forgetMapping(rep *report.Report, cr *report.CollectionReport, spec models.CollectionSpec, localID uuid.UUID) {
	var err error
	if spec.SID != "" {
		err = r.ids.RemoveBySID(spec.SID)
	} else {
		err = r.ids.RemoveByLocalID(localID)
	}
	if err != nil {
		rep.AddForCollection(report.LevelWarning, fmt.Sprintf("drop mapping: %v", err), cr)
	}
}

// knownLocalID resolves the best-known local id: the document's, else ours.
func (r *Reconciler) knownLocalID(spec models.CollectionSpec) (uuid.UUID, bool) {
	if spec.CID != "" {
		if id, err := uuid.Parse(spec.CID); err == nil {
			return id, true
		}
	}
	if spec.SID != "" {
		if id, ok, err := r.ids.GetBySID(spec.SID); err == nil && ok {
			return id, true
		}
	}
	return uuid.Nil, false
}

// findTarget locates the existing collection for the spec: by the supplied
// local id, by our stored mapping, then by exact name. Returns nil when no
// existing collection matches.
func (r *Reconciler) findTarget(ctx context.Context, rep *report.Report, cr *report.CollectionReport, spec models.CollectionSpec) *library.Entity {
	if spec.CID != "" {
		if ent := r.validateID(ctx, rep, cr, spec.CID, "document"); ent != nil {
			return ent
		}
	}
	if spec.SID != "" {
		if id, ok, err := r.ids.GetBySID(spec.SID); err == nil && ok && id.String() != spec.CID {
			if ent := r.validateID(ctx, rep, cr, id.String(), "mapping"); ent != nil {
				return ent
			}
		}
	}

	if spec.Name == "" {
		return nil
	}
	cols, err := r.lib.Collections(ctx)
	if err != nil {
		rep.AddForCollection(report.LevelError, fmt.Sprintf("list collections: %v", err), cr)
		return nil
	}
	for i := range cols {
		if cols[i].Name == spec.Name {
			rep.AddForCollection(report.LevelInfo, fmt.Sprintf("found existing collection %q by name, will merge", spec.Name), cr)
			return &cols[i]
		}
	}
	return nil
}

// validateID checks that a candidate id still names a collection. A stale or
// mistyped id is warned about and discarded, never fatal.
func (r *Reconciler) validateID(ctx context.Context, rep *report.Report, cr *report.CollectionReport, raw, source string) *library.Entity {
	id, err := uuid.Parse(raw)
	if err != nil {
		rep.AddForCollection(report.LevelWarning, fmt.Sprintf("%s id %q is not a valid id", source, raw), cr)
		return nil
	}
	ent, err := r.lib.ItemByID(ctx, id)
	if err == library.ErrNotFound {
		rep.AddForCollection(report.LevelWarning, fmt.Sprintf("%s id %s no longer exists, falling back to name lookup", source, id), cr)
		return nil
	}
	if err != nil {
		rep.AddForCollection(report.LevelWarning, fmt.Sprintf("look up %s id %s: %v", source, id, err), cr)
		return nil
	}
	if ent.Kind != library.KindCollection {
		rep.AddForCollection(report.LevelWarning, fmt.Sprintf("%s id %s names a %s, not a collection", source, id, ent.Kind), cr)
		return nil
	}
	return ent
}

// createCollection builds a new collection from the resolved items. Zero
// resolved items means no collection: one is never created empty.
func (r *Reconciler) createCollection(ctx context.Context, rep *report.Report, cr *report.CollectionReport, spec models.CollectionSpec, refIDs []string) *library.Entity {
	res := r.resolver.ResolveRefs(ctx, refIDs)
	cr.MissingRefs = res.MissingRefs
	if res.FoundCount() == 0 {
		rep.AddForCollection(report.LevelError, fmt.Sprintf("none of the %d referenced items exist in the library, not creating %q", len(refIDs), spec.Name), cr)
		return nil
	}

	ent, err := r.lib.CreateCollection(ctx, spec.Name, res.FoundItemIDs)
	if err != nil {
		rep.AddForCollection(report.LevelError, fmt.Sprintf("create collection %q: %v", spec.Name, err), cr)
		return nil
	}

	cr.IsNew = true
	cr.CID = ent.ID.String()
	cr.AddedCount = res.FoundCount()
	if spec.SID != "" {
		if err := r.ids.Put(spec.SID, ent.ID); err != nil {
			rep.AddForCollection(report.LevelError, fmt.Sprintf("persist mapping: %v", err), cr)
		}
	}
	r.dateAdded.CollectionCreated(ctx, rep, cr, ent.ID)
	rep.AddForCollection(report.LevelInfo, fmt.Sprintf("created collection %q with %d of %d items", spec.Name, res.FoundCount(), len(refIDs)), cr)
	return ent
}

// mergeMembership brings the member set in line with the desired refs:
// removals first, then additions. Members without a cross-reference id are
// left alone.
func (r *Reconciler) mergeMembership(ctx context.Context, rep *report.Report, cr *report.CollectionReport, collectionID uuid.UUID, refIDs []string) {
	current, err := r.lib.CollectionItems(ctx, collectionID)
	if err != nil {
		rep.AddForCollection(report.LevelError, fmt.Sprintf("list members: %v", err), cr)
		return
	}
	memberIDs := make([]uuid.UUID, len(current))
	for i := range current {
		memberIDs[i] = current[i].ID
	}
	memberRefs := r.resolver.RefsForItems(ctx, memberIDs)

	desired := make(map[string]bool, len(refIDs))
	for _, ref := range refIDs {
		desired[strings.ToLower(ref)] = true
	}
	have := make(map[string]bool, len(memberRefs))
	var toRemove []uuid.UUID
	for id, ref := range memberRefs {
		have[strings.ToLower(ref)] = true
		if !desired[strings.ToLower(ref)] {
			toRemove = append(toRemove, id)
		}
	}
	var toAdd []string
	for _, ref := range refIDs {
		if !have[strings.ToLower(ref)] {
			toAdd = append(toAdd, ref)
		}
	}

	if len(toRemove) > 0 {
		if err := r.lib.RemoveFromCollection(ctx, collectionID, toRemove); err != nil {
			rep.AddForCollection(report.LevelError, fmt.Sprintf("remove %d members: %v", len(toRemove), err), cr)
		} else {
			cr.RemovedCount = len(toRemove)
			r.dateAdded.ItemsRemoved(ctx, rep, cr, collectionID, toRemove)
		}
	}

	if len(toAdd) > 0 {
		res := r.resolver.ResolveRefs(ctx, toAdd)
		cr.MissingRefs = res.MissingRefs
		if res.FoundCount() > 0 {
			if err := r.lib.AddToCollection(ctx, collectionID, res.FoundItemIDs); err != nil {
				rep.AddForCollection(report.LevelError, fmt.Sprintf("add %d members: %v", res.FoundCount(), err), cr)
			} else {
				cr.AddedCount = res.FoundCount()
				r.dateAdded.ItemsAdded(ctx, rep, cr, collectionID, res.FoundItemIDs)
			}
		}
	}
}

// updateMetadata writes name and description when they differ. Locked
// entities are reported and left alone.
func (r *Reconciler) updateMetadata(ctx context.Context, rep *report.Report, cr *report.CollectionReport, ent *library.Entity, spec models.CollectionSpec) {
	upd := library.MetadataUpdate{}
	if spec.Name != "" && spec.Name != ent.Name {
		upd.Name = &spec.Name
	}
	if spec.Description != "" && spec.Description != ent.Overview {
		upd.Overview = &spec.Description
	}
	if upd.Name == nil && upd.Overview == nil {
		return
	}
	if ent.Locked {
		rep.AddForCollection(report.LevelError, fmt.Sprintf("collection %q is locked, skipping metadata update", ent.Name), cr)
		return
	}
	if err := r.lib.UpdateMetadata(ctx, ent.ID, upd); err != nil {
		rep.AddForCollection(report.LevelError, fmt.Sprintf("update metadata: %v", err), cr)
	}
}

// applySortName resolves the desired sort key. An explicit key wins; pinning
// only happens when this run actually added items, so untouched collections
// keep their place.
func (r *Reconciler) applySortName(ctx context.Context, rep *report.Report, cr *report.CollectionReport, ent *library.Entity, spec models.CollectionSpec) {
	var desired string
	switch {
	case spec.SortName != "":
		desired = spec.SortName
	case spec.SortToTop != nil && *spec.SortToTop:
		if cr.AddedCount == 0 {
			return
		}
		desired = sortname.PinTag(ent.Name, r.now())
	case spec.SortToTop != nil && !*spec.SortToTop:
		desired = sortname.DefaultSortName(ent.Name)
	default:
		return
	}
	if desired == ent.SortName {
		return
	}

	// Let the membership mutation settle before the server re-reads sort order.
	r.sleep(ctx, r.sortSettle)
	if err := r.lib.UpdateMetadata(ctx, ent.ID, library.MetadataUpdate{SortName: &desired}); err != nil {
		rep.AddForCollection(report.LevelError, fmt.Sprintf("update sort name: %v", err), cr)
	}
}

func (r *Reconciler) applyDisplayOrder(ctx context.Context, rep *report.Report, cr *report.CollectionReport, ent *library.Entity, spec models.CollectionSpec) {
	if spec.ItemOrdering == nil {
		return
	}
	var want string
	switch *spec.ItemOrdering {
	case models.OrderingPremiereDate:
		want = library.DisplayOrderPremiereDate
	case models.OrderingSortName:
		want = library.DisplayOrderSortName
	default:
		return
	}
	if ent.DisplayOrder == want {
		return
	}
	if err := r.lib.UpdateMetadata(ctx, ent.ID, library.MetadataUpdate{DisplayOrder: &want}); err != nil {
		rep.AddForCollection(report.LevelError, fmt.Sprintf("update display order: %v", err), cr)
	}
}

// dedupeRefs drops duplicate refs case-insensitively, keeping first-seen order.
func dedupeRefs(refIDs []string) []string {
	seen := make(map[string]bool, len(refIDs))
	out := make([]string, 0, len(refIDs))
	for _, ref := range refIDs {
		key := strings.ToLower(strings.TrimSpace(ref))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, strings.TrimSpace(ref))
	}
	return out
}
