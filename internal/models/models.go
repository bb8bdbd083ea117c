package models

// ItemOrdering controls how a collection's members are displayed, and whether
// members carry date-added sort annotations.
type ItemOrdering int

const (
	OrderingNone ItemOrdering = iota
	OrderingSortName
	OrderingPremiereDate
	OrderingDateAdded
)

// CollectionSpec is one desired collection from the upstream sync document.
// Consumed once per run, never mutated.
type CollectionSpec struct {
	Name        string   `json:"name"`
	Delete      bool     `json:"delete"`
	Description string   `json:"description"`
	RefIDs      []string `json:"ref_ids"`

	// CID is the last-known local collection id, SID the upstream identifier.
	CID string `json:"cid"`
	SID string `json:"collection_sid"`

	SortName  string `json:"sort_name"`
	SortToTop *bool  `json:"sort_to_top"`

	SetPoster *bool  `json:"set_poster"`
	NoPoster  *bool  `json:"no_poster"`
	PosterRef string `json:"poster_id"`

	ItemOrdering *ItemOrdering `json:"item_sorting"`
}

// CollectionsSync is the collection portion of the sync document.
type CollectionsSync struct {
	Collections []CollectionSpec `json:"collections"`
}

// LibrarySync carries per-library poster assignments pushed by upstream.
type LibrarySync struct {
	Images []LibraryImage `json:"images"`
}

type LibraryImage struct {
	Name      string `json:"name"`
	PosterRef string `json:"poster_id"`
}

// SyncDocument is the full response from GET /jobs. Status mirrors HTTP
// semantics: 204 nothing to do, 401 unauthorized, 200 proceed.
type SyncDocument struct {
	JobID            string           `json:"job_id"`
	Status           int              `json:"status"`
	Message          string           `json:"message"`
	APIVersion       int              `json:"api_version"`
	MinClientVersion string           `json:"min_client_version"`
	CollectionsSync  *CollectionsSync `json:"collections_sync"`
	LibrarySync      *LibrarySync     `json:"library_sync"`
}
