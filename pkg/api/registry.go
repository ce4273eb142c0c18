package api

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/segmentio/ksuid"
	"go.uber.org/zap"

	"github.com/ssargent/poreread/pkg/reader"
	"github.com/ssargent/poreread/pkg/storage"
)

// ErrUnknownExperiment is returned for ids that are not open
var ErrUnknownExperiment = errors.New("unknown experiment")

type openExperiment struct {
	record storage.ExperimentRecord
	exp    *reader.Experiment
}

// Registry tracks the experiments opened through the API. When a store is
// configured, registrations survive restarts.
type Registry struct {
	opener Opener
	store  ExperimentStore
	logger *zap.Logger

	mu   sync.RWMutex
	open map[ksuid.KSUID]*openExperiment
}

// NewRegistry creates a registry. store may be nil.
func NewRegistry(opener Opener, store ExperimentStore, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		opener: opener,
		store:  store,
		logger: logger,
		open:   make(map[ksuid.KSUID]*openExperiment),
	}
}

// Open opens an experiment and registers it under a new id.
func (r *Registry) Open(seed, format string) (*ExperimentSummary, error) {
	exp, err := r.opener.Open(seed, format)
	if err != nil {
		return nil, err
	}

	var rec *storage.ExperimentRecord
	if r.store != nil {
		rec, err = r.store.Create(seed, exp.Format().Name())
		if err != nil {
			exp.Close()
			return nil, fmt.Errorf("failed to register experiment: %w", err)
		}
	} else {
		rec = &storage.ExperimentRecord{
			ID:       ksuid.New(),
			Seed:     seed,
			Format:   exp.Format().Name(),
			OpenedAt: time.Now().UTC(),
		}
	}

	oe := &openExperiment{record: *rec, exp: exp}
	r.mu.Lock()
	r.open[rec.ID] = oe
	r.mu.Unlock()

	r.logger.Info("registered experiment", zap.String("id", rec.ID.String()), zap.String("seed", seed))
	s := summarize(oe)
	return &s, nil
}

// Restore reopens every persisted experiment. Records whose files can no
// longer be opened are dropped.
func (r *Registry) Restore() (int, error) {
	if r.store == nil {
		return 0, nil
	}
	records, err := r.store.List()
	if err != nil {
		return 0, err
	}

	restored := 0
	for _, rec := range records {
		exp, err := r.opener.Open(rec.Seed, rec.Format)
		if err != nil {
			r.logger.Warn("dropping experiment that can no longer be opened",
				zap.String("id", rec.ID.String()), zap.String("seed", rec.Seed), zap.Error(err))
			if err := r.store.Delete(rec.ID); err != nil {
				return restored, err
			}
			continue
		}
		r.mu.Lock()
		r.open[rec.ID] = &openExperiment{record: rec, exp: exp}
		r.mu.Unlock()
		restored++
	}
	return restored, nil
}

// Get returns the open experiment with id.
func (r *Registry) Get(id ksuid.KSUID) (*reader.Experiment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	oe, ok := r.open[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownExperiment, id)
	}
	return oe.exp, nil
}

// Summary describes the open experiment with id.
func (r *Registry) Summary(id ksuid.KSUID) (*ExperimentSummary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	oe, ok := r.open[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownExperiment, id)
	}
	s := summarize(oe)
	return &s, nil
}

// List describes every open experiment, oldest first.
func (r *Registry) List() []ExperimentSummary {
	r.mu.RLock()
	out := make([]ExperimentSummary, 0, len(r.open))
	for _, oe := range r.open {
		out = append(out, summarize(oe))
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].OpenedAt.Equal(out[j].OpenedAt) {
			return out[i].OpenedAt.Before(out[j].OpenedAt)
		}
		return ksuid.Compare(out[i].ID, out[j].ID) < 0
	})
	return out
}

// Len returns the number of open experiments.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.open)
}

// Close closes the experiment with id and forgets it.
func (r *Registry) Close(id ksuid.KSUID) error {
	r.mu.Lock()
	oe, ok := r.open[id]
	delete(r.open, id)
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownExperiment, id)
	}

	var errs []error
	if r.store != nil {
		errs = append(errs, r.store.Delete(id))
	}
	errs = append(errs, oe.exp.Close())
	r.logger.Info("closed experiment", zap.String("id", id.String()))
	return errors.Join(errs...)
}

// CloseAll closes every experiment but keeps their registrations.
func (r *Registry) CloseAll() error {
	r.mu.Lock()
	open := r.open
	r.open = make(map[ksuid.KSUID]*openExperiment)
	r.mu.Unlock()

	var errs []error
	for _, oe := range open {
		errs = append(errs, oe.exp.Close())
	}
	return errors.Join(errs...)
}

func summarize(oe *openExperiment) ExperimentSummary {
	return ExperimentSummary{
		ID:         oe.record.ID,
		Seed:       oe.record.Seed,
		Format:     oe.record.Format,
		Pattern:    oe.exp.Pattern(),
		Samplerate: oe.exp.Samplerate(),
		OpenedAt:   oe.record.OpenedAt,
		Channels:   oe.exp.Info(),
	}
}
