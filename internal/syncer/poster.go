package syncer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rdmartin/VaultSync/internal/library"
	"github.com/rdmartin/VaultSync/internal/models"
	"github.com/rdmartin/VaultSync/internal/report"
)

// PosterPolicy decides whether a collection gains, keeps or loses its managed
// cover image. Image failures are logged on the report and never propagate.
type PosterPolicy struct {
	lib      library.Library
	ids      IdentityStore
	baseURL  string
	settle   time.Duration
	keyHash  func() string
	imageURL func(baseURL, posterRef, keyHash string) string
	sleep    func(ctx context.Context, d time.Duration)
}

func NewPosterPolicy(lib library.Library, ids IdentityStore, baseURL string, settle time.Duration,
	keyHash func() string, imageURL func(baseURL, posterRef, keyHash string) string) *PosterPolicy {
	return &PosterPolicy{
		lib:      lib,
		ids:      ids,
		baseURL:  baseURL,
		settle:   settle,
		keyHash:  keyHash,
		imageURL: imageURL,
		sleep:    sleepCtx,
	}
}

// Apply runs the four-way poster decision for one collection.
func (p *PosterPolicy) Apply(ctx context.Context, rep *report.Report, cr *report.CollectionReport, collectionID uuid.UUID, spec models.CollectionSpec) {
	noPoster := boolVal(spec.NoPoster)
	setPoster := boolVal(spec.SetPoster)

	switch {
	case noPoster && setPoster:
		if err := p.ids.RemovePoster(collectionID); err != nil {
			rep.AddForCollection(report.LevelError, fmt.Sprintf("drop poster flag: %v", err), cr)
		}
		if err := p.lib.RemovePrimaryImage(ctx, collectionID); err != nil {
			rep.AddForCollection(report.LevelError, fmt.Sprintf("remove poster image: %v", err), cr)
			return
		}
		if err := p.lib.RefreshMetadata(ctx, collectionID, true); err != nil {
			rep.AddForCollection(report.LevelError, fmt.Sprintf("image refresh after poster removal: %v", err), cr)
			return
		}
		rep.AddForCollection(report.LevelInfo, "removed managed poster", cr)

	case noPoster:
		// Flag bookkeeping only; the current image stays.
		if err := p.ids.RemovePoster(collectionID); err != nil {
			rep.AddForCollection(report.LevelError, fmt.Sprintf("drop poster flag: %v", err), cr)
		}

	case spec.PosterRef != "" && setPoster:
		if err := p.ids.AddPoster(collectionID); err != nil {
			rep.AddForCollection(report.LevelError, fmt.Sprintf("set poster flag: %v", err), cr)
			return
		}
		p.sleep(ctx, p.settle)
		url := p.imageURL(p.baseURL, spec.PosterRef, p.keyHash())
		if err := p.lib.SetPrimaryImageURL(ctx, collectionID, url); err != nil {
			rep.AddForCollection(report.LevelError, fmt.Sprintf("set poster image: %v", err), cr)
			return
		}
		if err := p.lib.RefreshMetadata(ctx, collectionID, true); err != nil {
			rep.AddForCollection(report.LevelError, fmt.Sprintf("image refresh after poster update: %v", err), cr)
			return
		}
		rep.AddForCollection(report.LevelInfo, "applied managed poster", cr)
	}
}

func boolVal(p *bool) bool {
	return p != nil && *p
}

// sleepCtx waits for d or until ctx is cancelled, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
