package syncer

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/rdmartin/VaultSync/internal/library"
	"github.com/rdmartin/VaultSync/internal/models"
	"github.com/rdmartin/VaultSync/internal/report"
	"github.com/rdmartin/VaultSync/internal/sortname"
)

// DateAdded maintains the date-based sort annotation on members of flagged
// collections. Membership in the flag set is keyed by sid; the annotation
// itself lives in each item's sort key. Everything here is best-effort: a
// failed tag write degrades ordering, nothing else.
type DateAdded struct {
	lib library.Library
	ids IdentityStore
}

func NewDateAdded(lib library.Library, ids IdentityStore) *DateAdded {
	return &DateAdded{lib: lib, ids: ids}
}

// Transitions moves the sid in or out of the date-added set to match the
// desired item ordering. Entering the set tags every current member; leaving
// strips tags from members not claimed by another flagged collection.
func (d *DateAdded) Transitions(ctx context.Context, rep *report.Report, cr *report.CollectionReport, spec models.CollectionSpec) {
	if spec.SID == "" {
		return
	}
	ordering := models.OrderingNone
	if spec.ItemOrdering != nil {
		ordering = *spec.ItemOrdering
	}

	flagged, err := d.ids.HasDateAdded(spec.SID)
	if err != nil {
		rep.AddForCollection(report.LevelWarning, fmt.Sprintf("date-added flag lookup failed: %v", err), cr)
		return
	}

	switch {
	case ordering == models.OrderingDateAdded && !flagged:
		if err := d.ids.AddDateAdded(spec.SID); err != nil {
			rep.AddForCollection(report.LevelWarning, fmt.Sprintf("could not enable date-added ordering: %v", err), cr)
			return
		}
		if localID, ok, _ := d.ids.GetBySID(spec.SID); ok {
			d.tagMembers(ctx, rep, cr, localID)
		}
	case ordering != models.OrderingDateAdded && flagged:
		if err := d.ids.RemoveDateAdded(spec.SID); err != nil {
			rep.AddForCollection(report.LevelWarning, fmt.Sprintf("could not disable date-added ordering: %v", err), cr)
			return
		}
		if localID, ok, _ := d.ids.GetBySID(spec.SID); ok {
			d.stripMembers(ctx, rep, cr, localID)
		}
	}
}

// CollectionCreated tags the initial members of a newly created collection
// when its sid carries the date-added flag.
func (d *DateAdded) CollectionCreated(ctx context.Context, rep *report.Report, cr *report.CollectionReport, collectionID uuid.UUID) {
	flagged, err := d.ids.HasDateAddedByLocalID(collectionID)
	if err != nil || !flagged {
		return
	}
	d.tagMembers(ctx, rep, cr, collectionID)
}

// ItemsAdded tags items just added to a flagged collection.
func (d *DateAdded) ItemsAdded(ctx context.Context, rep *report.Report, cr *report.CollectionReport, collectionID uuid.UUID, itemIDs []uuid.UUID) {
	flagged, err := d.ids.HasDateAddedByLocalID(collectionID)
	if err != nil || !flagged || len(itemIDs) == 0 {
		return
	}
	items, err := d.lib.ItemsByIDs(ctx, itemIDs)
	if err != nil {
		rep.AddForCollection(report.LevelWarning, fmt.Sprintf("could not load added items for tagging: %v", err), cr)
		return
	}
	for i := range items {
		if err := d.tagItem(ctx, &items[i]); err != nil {
			rep.AddForCollection(report.LevelWarning, fmt.Sprintf("tag %q: %v", items[i].Name, err), cr)
		}
	}
}

// ItemsRemoved strips tags from items that just left a flagged collection,
// unless another flagged collection still contains them.
func (d *DateAdded) ItemsRemoved(ctx context.Context, rep *report.Report, cr *report.CollectionReport, collectionID uuid.UUID, itemIDs []uuid.UUID) {
	flagged, err := d.ids.HasDateAddedByLocalID(collectionID)
	if err != nil || !flagged || len(itemIDs) == 0 {
		return
	}
	items, err := d.lib.ItemsByIDs(ctx, itemIDs)
	if err != nil {
		rep.AddForCollection(report.LevelWarning, fmt.Sprintf("could not load removed items for untagging: %v", err), cr)
		return
	}
	for i := range items {
		if !sortname.HasTag(items[i].SortName) {
			continue
		}
		if d.inOtherFlaggedCollection(ctx, items[i].ID, collectionID) {
			continue
		}
		if err := d.stripItem(ctx, &items[i]); err != nil {
			rep.AddForCollection(report.LevelWarning, fmt.Sprintf("untag %q: %v", items[i].Name, err), cr)
		}
	}
}

// ResetAll strips the annotation from every tagged item in the library.
func (d *DateAdded) ResetAll(ctx context.Context) error {
	items, err := d.lib.ItemsBySortPrefix(ctx, sortname.TagPrefix)
	if err != nil {
		return fmt.Errorf("find tagged items: %w", err)
	}
	stripped := 0
	for i := range items {
		if err := d.stripItem(ctx, &items[i]); err != nil {
			log.Printf("[syncer] untag %q: %v", items[i].Name, err)
			continue
		}
		stripped++
	}
	log.Printf("[syncer] stripped sort annotations from %d of %d items", stripped, len(items))
	return nil
}

func (d *DateAdded) tagMembers(ctx context.Context, rep *report.Report, cr *report.CollectionReport, collectionID uuid.UUID) {
	items, err := d.lib.CollectionItems(ctx, collectionID)
	if err != nil {
		rep.AddForCollection(report.LevelWarning, fmt.Sprintf("could not load members for tagging: %v", err), cr)
		return
	}
	for i := range items {
		if err := d.tagItem(ctx, &items[i]); err != nil {
			rep.AddForCollection(report.LevelWarning, fmt.Sprintf("tag %q: %v", items[i].Name, err), cr)
		}
	}
}

func (d *DateAdded) stripMembers(ctx context.Context, rep *report.Report, cr *report.CollectionReport, collectionID uuid.UUID) {
	items, err := d.lib.CollectionItems(ctx, collectionID)
	if err != nil {
		rep.AddForCollection(report.LevelWarning, fmt.Sprintf("could not load members for untagging: %v", err), cr)
		return
	}
	for i := range items {
		if !sortname.HasTag(items[i].SortName) {
			continue
		}
		if d.inOtherFlaggedCollection(ctx, items[i].ID, collectionID) {
			continue
		}
		if err := d.stripItem(ctx, &items[i]); err != nil {
			rep.AddForCollection(report.LevelWarning, fmt.Sprintf("untag %q: %v", items[i].Name, err), cr)
		}
	}
}

func (d *DateAdded) tagItem(ctx context.Context, item *library.Entity) error {
	base := item.SortName
	if base == "" {
		base = sortname.DefaultSortName(item.Name)
	}
	desired := sortname.DateTag(base, item.CreatedAt)
	if desired == item.SortName {
		return nil
	}
	return d.lib.UpdateMetadata(ctx, item.ID, library.MetadataUpdate{SortName: &desired})
}

func (d *DateAdded) stripItem(ctx context.Context, item *library.Entity) error {
	desired := sortname.StripTag(item.SortName)
	if desired == item.SortName {
		return nil
	}
	return d.lib.UpdateMetadata(ctx, item.ID, library.MetadataUpdate{SortName: &desired})
}

// inOtherFlaggedCollection reports whether any collection other than except
// both contains the item and carries the date-added flag.
func (d *DateAdded) inOtherFlaggedCollection(ctx context.Context, itemID, except uuid.UUID) bool {
	cols, err := d.lib.CollectionsContaining(ctx, itemID)
	if err != nil {
		log.Printf("[syncer] collections containing %s: %v", itemID, err)
		return false
	}
	for i := range cols {
		if cols[i].ID == except {
			continue
		}
		if flagged, err := d.ids.HasDateAddedByLocalID(cols[i].ID); err == nil && flagged {
			return true
		}
	}
	return false
}
