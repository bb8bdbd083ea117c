// Package identity persists the correspondence between upstream collection
// identifiers (sids) and locally generated collection ids, plus the two flag
// sets that must survive process restarts. Losing this data is degraded but
// safe: every collection is re-resolved by name on the next run.
package identity

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const syncHistoryLimit = 10

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Put records sid -> localID, replacing any previous assignment for the sid.
func (s *Store) Put(sid string, localID uuid.UUID) error {
	_, err := s.db.Exec(`
		INSERT INTO collection_links (sid, local_id, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (sid) DO UPDATE SET local_id=$2, updated_at=NOW()`,
		sid, localID)
	if err != nil {
		return fmt.Errorf("put collection link: %w", err)
	}
	return nil
}

// GetBySID returns the local id mapped to sid, or ok=false.
func (s *Store) GetBySID(sid string) (uuid.UUID, bool, error) {
	var id uuid.UUID
	err := s.db.QueryRow("SELECT local_id FROM collection_links WHERE sid=$1", sid).Scan(&id)
	if err == sql.ErrNoRows {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("get collection link: %w", err)
	}
	return id, true, nil
}

// GetByLocalID is the reverse lookup.
func (s *Store) GetByLocalID(localID uuid.UUID) (string, bool, error) {
	var sid string
	err := s.db.QueryRow("SELECT sid FROM collection_links WHERE local_id=$1", localID).Scan(&sid)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("reverse collection link: %w", err)
	}
	return sid, true, nil
}

// RemoveBySID deletes the mapping and the sid/local id from both flag sets.
func (s *Store) RemoveBySID(sid string) error {
	localID, ok, err := s.GetBySID(sid)
	if err != nil {
		return err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin remove: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM collection_links WHERE sid=$1", sid); err != nil {
		return fmt.Errorf("remove collection link: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM date_added_collections WHERE sid=$1", sid); err != nil {
		return fmt.Errorf("remove date-added flag: %w", err)
	}
	if ok {
		if _, err := tx.Exec("DELETE FROM poster_collections WHERE local_id=$1", localID); err != nil {
			return fmt.Errorf("remove poster flag: %w", err)
		}
	}
	return tx.Commit()
}

// RemoveByLocalID cascades like RemoveBySID when the sid is known; the poster
// flag is cleared either way.
func (s *Store) RemoveByLocalID(localID uuid.UUID) error {
	sid, ok, err := s.GetByLocalID(localID)
	if err != nil {
		return err
	}
	if ok {
		return s.RemoveBySID(sid)
	}
	_, err = s.db.Exec("DELETE FROM poster_collections WHERE local_id=$1", localID)
	if err != nil {
		return fmt.Errorf("remove poster flag: %w", err)
	}
	return nil
}

func (s *Store) AddPoster(localID uuid.UUID) error {
	_, err := s.db.Exec(`
		INSERT INTO poster_collections (local_id) VALUES ($1) ON CONFLICT DO NOTHING`, localID)
	if err != nil {
		return fmt.Errorf("add poster flag: %w", err)
	}
	return nil
}

func (s *Store) RemovePoster(localID uuid.UUID) error {
	_, err := s.db.Exec("DELETE FROM poster_collections WHERE local_id=$1", localID)
	if err != nil {
		return fmt.Errorf("remove poster flag: %w", err)
	}
	return nil
}

func (s *Store) HasPoster(localID uuid.UUID) (bool, error) {
	var exists bool
	err := s.db.QueryRow(
		"SELECT EXISTS (SELECT 1 FROM poster_collections WHERE local_id=$1)", localID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check poster flag: %w", err)
	}
	return exists, nil
}

func (s *Store) AddDateAdded(sid string) error {
	_, err := s.db.Exec(`
		INSERT INTO date_added_collections (sid) VALUES ($1) ON CONFLICT DO NOTHING`, sid)
	if err != nil {
		return fmt.Errorf("add date-added flag: %w", err)
	}
	return nil
}

func (s *Store) RemoveDateAdded(sid string) error {
	_, err := s.db.Exec("DELETE FROM date_added_collections WHERE sid=$1", sid)
	if err != nil {
		return fmt.Errorf("remove date-added flag: %w", err)
	}
	return nil
}

func (s *Store) HasDateAdded(sid string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(
		"SELECT EXISTS (SELECT 1 FROM date_added_collections WHERE sid=$1)", sid).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check date-added flag: %w", err)
	}
	return exists, nil
}

// HasDateAddedByLocalID checks the flag through the reverse mapping; an
// unmapped collection is never flagged.
func (s *Store) HasDateAddedByLocalID(localID uuid.UUID) (bool, error) {
	sid, ok, err := s.GetByLocalID(localID)
	if err != nil || !ok {
		return false, err
	}
	return s.HasDateAdded(sid)
}

// AddSyncRun records a run timestamp and trims history to the most recent few.
func (s *Store) AddSyncRun(at time.Time) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin sync run: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("INSERT INTO sync_runs (ran_at) VALUES ($1)", at); err != nil {
		return fmt.Errorf("record sync run: %w", err)
	}
	_, err = tx.Exec(`
		DELETE FROM sync_runs WHERE id NOT IN (
			SELECT id FROM sync_runs ORDER BY ran_at DESC LIMIT $1)`, syncHistoryLimit)
	if err != nil {
		return fmt.Errorf("trim sync history: %w", err)
	}
	return tx.Commit()
}

// LastSyncRun returns the most recent run timestamp, or ok=false.
func (s *Store) LastSyncRun() (time.Time, bool, error) {
	var at time.Time
	err := s.db.QueryRow("SELECT ran_at FROM sync_runs ORDER BY ran_at DESC LIMIT 1").Scan(&at)
	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("last sync run: %w", err)
	}
	return at, true, nil
}

// Reset wipes every mapping, flag set and the run history. Used on logout.
func (s *Store) Reset() error {
	for _, table := range []string{"collection_links", "poster_collections", "date_added_collections", "sync_runs"} {
		if _, err := s.db.Exec("DELETE FROM " + table); err != nil {
			return fmt.Errorf("reset %s: %w", table, err)
		}
	}
	return nil
}
