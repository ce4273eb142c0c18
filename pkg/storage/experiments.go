package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/segmentio/ksuid"
)

const experimentPrefix = "exp/"

// ExperimentRecord is a registered experiment.
type ExperimentRecord struct {
	ID       ksuid.KSUID `json:"id"`
	Seed     string      `json:"seed"`
	Format   string      `json:"format"`
	OpenedAt time.Time   `json:"opened_at"`
}

// Experiments persists registered experiments so a restarted server can
// reopen them.
type Experiments struct {
	store *Store
}

// NewExperiments returns the experiment registry backed by store.
func NewExperiments(store *Store) *Experiments {
	return &Experiments{store: store}
}

func experimentKey(id ksuid.KSUID) []byte {
	return append([]byte(experimentPrefix), id.Bytes()...)
}

// Create registers an experiment under a new id.
func (e *Experiments) Create(seed, format string) (*ExperimentRecord, error) {
	rec := &ExperimentRecord{
		ID:       ksuid.New(),
		Seed:     seed,
		Format:   format,
		OpenedAt: time.Now().UTC(),
	}
	if err := e.store.putJSON(experimentKey(rec.ID), rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Read returns the experiment with id.
func (e *Experiments) Read(id ksuid.KSUID) (*ExperimentRecord, error) {
	var rec ExperimentRecord
	ok, err := e.store.getJSON(experimentKey(id), &rec)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("experiment %s: %w", id, pebble.ErrNotFound)
	}
	return &rec, nil
}

// Delete removes the experiment with id.
func (e *Experiments) Delete(id ksuid.KSUID) error {
	return e.store.db.Delete(experimentKey(id), pebble.NoSync)
}

// List returns every experiment, oldest first.
func (e *Experiments) List() ([]ExperimentRecord, error) {
	var out []ExperimentRecord
	err := e.store.scan([]byte(experimentPrefix), func(key, value []byte) error {
		var rec ExperimentRecord
		if err := json.Unmarshal(value, &rec); err != nil {
			return fmt.Errorf("corrupt entry %q: %w", key, err)
		}
		out = append(out, rec)
		return nil
	})
	return out, err
}
