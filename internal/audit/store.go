// Package audit persists the near-duplicates dropped by each build so a
// human can review merges later. Nothing in here is ever deleted by the
// pipeline.
package audit

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/goccy/go-json"
	bolt "go.etcd.io/bbolt"

	"github.com/DeafMist/festival-radar/backend/internal/models"
	"github.com/DeafMist/festival-radar/backend/internal/processing"
)

var groupsBucket = []byte("duplicate_groups")

// ErrNotFound is returned by Review for an unknown key.
var ErrNotFound = errors.New("audit record not found")

// Review verdicts.
const (
	VerdictConfirmed = "confirmed"
	VerdictDistinct  = "distinct"
)

// Record is one duplicate group as last seen by a build.
type Record struct {
	Key       string                `json:"key"`
	RunID     string                `json:"run_id"`
	FirstSeen time.Time             `json:"first_seen"`
	LastSeen  time.Time             `json:"last_seen"`
	Group     models.DuplicateGroup `json:"group"`
	Verdict   string                `json:"verdict,omitempty"`
}

// Store is a bbolt-backed audit log.
type Store struct {
	db *bolt.DB
}

// Open opens or creates the store at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create audit dir: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(groupsBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init audit db: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database file.
func (s *Store) Close() error {
	return s.db.Close()
}

// Key identifies a group by its member ids, survivor first.
func Key(g models.DuplicateGroup) string {
	return processing.AuditKey(g.IDs()...)
}

// Save upserts groups seen by run. First-seen time and any review verdict
// survive re-runs.
func (s *Store) Save(runID string, at time.Time, groups []models.DuplicateGroup) error {
	if len(groups) == 0 {
		return nil
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(groupsBucket)
		for _, g := range groups {
			key := Key(g)
			rec := Record{Key: key, FirstSeen: at}
			if prev := b.Get([]byte(key)); prev != nil {
				if err := json.Unmarshal(prev, &rec); err != nil {
					rec = Record{Key: key, FirstSeen: at}
				}
			}
			rec.RunID = runID
			rec.LastSeen = at
			rec.Group = g

			enc, err := json.Marshal(rec)
			if err != nil {
				return fmt.Errorf("marshal audit record: %w", err)
			}
			if err := b.Put([]byte(key), enc); err != nil {
				return fmt.Errorf("put audit record: %w", err)
			}
		}
		return nil
	})
}

// List returns every record, oldest first. Malformed entries are skipped.
func (s *Store) List() ([]Record, error) {
	var out []Record
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(groupsBucket).ForEach(func(k, v []byte) error {
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return nil
			}
			out = append(out, rec)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list audit records: %w", err)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].FirstSeen.Equal(out[j].FirstSeen) {
			return out[i].FirstSeen.Before(out[j].FirstSeen)
		}
		return out[i].Key < out[j].Key
	})
	return out, nil
}

// Review stores a verdict for the record under key.
func (s *Store) Review(key, verdict string) error {
	if verdict != VerdictConfirmed && verdict != VerdictDistinct {
		return fmt.Errorf("unknown verdict %q", verdict)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(groupsBucket)
		raw := b.Get([]byte(key))
		if raw == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		var rec Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			return fmt.Errorf("decode audit record: %w", err)
		}
		rec.Verdict = verdict
		enc, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal audit record: %w", err)
		}
		return b.Put([]byte(key), enc)
	})
}
