package library

import (
	"context"
	"log"
	"strings"

	"github.com/google/uuid"
)

// resolveBatchSize bounds each query to respect host query limits.
const resolveBatchSize = 500

// itemKinds are the entity types a cross-reference id may resolve to.
var itemKinds = []Kind{KindMovie, KindSeries}

// ResolveResult is the outcome of resolving cross-reference ids to local items.
type ResolveResult struct {
	FoundItemIDs []uuid.UUID
	FoundRefIDs  []string
	MissingRefs  []string
}

func (r ResolveResult) FoundCount() int {
	return len(r.FoundItemIDs)
}

// Resolver maps cross-reference ids to local item identities and back, in
// bounded batches. A failed batch is logged and contributes zero results;
// partial results from the other batches still count.
type Resolver struct {
	lib Library
}

func NewResolver(lib Library) *Resolver {
	return &Resolver{lib: lib}
}

// ResolveRefs resolves cross-reference ids to local items. Matching is
// case-insensitive. MissingRefs is the requested set minus the found set.
func (r *Resolver) ResolveRefs(ctx context.Context, refIDs []string) ResolveResult {
	result := ResolveResult{MissingRefs: []string{}}
	if len(refIDs) == 0 {
		return result
	}

	found := make(map[string]bool)
	for start := 0; start < len(refIDs); start += resolveBatchSize {
		end := start + resolveBatchSize
		if end > len(refIDs) {
			end = len(refIDs)
		}
		batch := make([]string, 0, end-start)
		for _, id := range refIDs[start:end] {
			batch = append(batch, strings.ToLower(id))
		}

		items, err := r.lib.ItemsByRefIDs(ctx, batch, itemKinds)
		if err != nil {
			log.Printf("[resolver] batch starting at %d failed: %v", start, err)
			continue
		}
		for i := range items {
			ref, ok := items[i].RefID()
			if !ok {
				continue
			}
			result.FoundItemIDs = append(result.FoundItemIDs, items[i].ID)
			result.FoundRefIDs = append(result.FoundRefIDs, ref)
			found[strings.ToLower(ref)] = true
		}
	}

	for _, id := range refIDs {
		if !found[strings.ToLower(id)] {
			result.MissingRefs = append(result.MissingRefs, id)
		}
	}
	return result
}

// RefsForItems returns the cross-reference id of each local item that has one.
func (r *Resolver) RefsForItems(ctx context.Context, itemIDs []uuid.UUID) map[uuid.UUID]string {
	refs := make(map[uuid.UUID]string)
	for start := 0; start < len(itemIDs); start += resolveBatchSize {
		end := start + resolveBatchSize
		if end > len(itemIDs) {
			end = len(itemIDs)
		}

		items, err := r.lib.ItemsByIDs(ctx, itemIDs[start:end])
		if err != nil {
			log.Printf("[resolver] ref lookup batch starting at %d failed: %v", start, err)
			continue
		}
		for i := range items {
			if ref, ok := items[i].RefID(); ok {
				refs[items[i].ID] = ref
			}
		}
	}
	return refs
}
