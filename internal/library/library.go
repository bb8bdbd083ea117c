package library

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when an id does not resolve to any library entity.
var ErrNotFound = errors.New("library: entity not found")

// Kind is the closed set of entity types the sync engine distinguishes.
type Kind string

const (
	KindCollection Kind = "collection"
	KindMovie      Kind = "movie"
	KindSeries     Kind = "series"
)

// DisplayOrder values understood by the media server for collections.
const (
	DisplayOrderSortName     = "SortName"
	DisplayOrderPremiereDate = "PremiereDate"
)

// RefProvider is the provider key under which cross-reference ids are stored.
const RefProvider = "imdb"

// Entity is the engine's view of a library item or collection. The media
// server owns the data; the engine only issues mutation requests.
type Entity struct {
	ID              uuid.UUID         `json:"id"`
	Kind            Kind              `json:"kind"`
	Name            string            `json:"name"`
	SortName        string            `json:"sort_name"`
	Overview        string            `json:"overview"`
	ProviderIDs     map[string]string `json:"provider_ids"`
	Locked          bool              `json:"locked"`
	DisplayOrder    string            `json:"display_order"`
	CreatedAt       time.Time         `json:"created_at"`
	HasPrimaryImage bool              `json:"has_primary_image"`
}

// RefID returns the entity's cross-reference id, if it has one.
func (e *Entity) RefID() (string, bool) {
	if e.ProviderIDs == nil {
		return "", false
	}
	id, ok := e.ProviderIDs[RefProvider]
	return id, ok && id != ""
}

// Folder is a top-level library the media server exposes.
type Folder struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// MetadataUpdate holds the mutable fields of an entity; nil means untouched.
type MetadataUpdate struct {
	Name         *string `json:"name,omitempty"`
	Overview     *string `json:"overview,omitempty"`
	SortName     *string `json:"sort_name,omitempty"`
	DisplayOrder *string `json:"display_order,omitempty"`
}

// Library is the media server collaborator. Every call can fail; callers
// downgrade failures to logged report entries at the smallest enclosing step.
type Library interface {
	ItemByID(ctx context.Context, id uuid.UUID) (*Entity, error)
	ItemsByIDs(ctx context.Context, ids []uuid.UUID) ([]Entity, error)
	ItemsByRefIDs(ctx context.Context, refIDs []string, kinds []Kind) ([]Entity, error)
	ItemsBySortPrefix(ctx context.Context, prefix string) ([]Entity, error)

	Collections(ctx context.Context) ([]Entity, error)
	CollectionItems(ctx context.Context, collectionID uuid.UUID) ([]Entity, error)
	CollectionsContaining(ctx context.Context, itemID uuid.UUID) ([]Entity, error)
	CreateCollection(ctx context.Context, name string, itemIDs []uuid.UUID) (*Entity, error)
	AddToCollection(ctx context.Context, collectionID uuid.UUID, itemIDs []uuid.UUID) error
	RemoveFromCollection(ctx context.Context, collectionID uuid.UUID, itemIDs []uuid.UUID) error

	UpdateMetadata(ctx context.Context, id uuid.UUID, upd MetadataUpdate) error
	DeleteItem(ctx context.Context, id uuid.UUID) error

	Folders(ctx context.Context) ([]Folder, error)
	RemovePrimaryImage(ctx context.Context, id uuid.UUID) error
	SetPrimaryImageURL(ctx context.Context, id uuid.UUID, imageURL string) error
	RefreshMetadata(ctx context.Context, id uuid.UUID, replaceImages bool) error
}
