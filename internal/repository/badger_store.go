package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/noah-isme/lesson-scheduler/internal/models"
	appErrors "github.com/noah-isme/lesson-scheduler/pkg/errors"
)

const (
	runPrefix          = "run/"
	availabilityPrefix = "availability/"
	optionsPrefix      = "options/"
)

func putJSON(txn *badger.Txn, key string, value interface{}) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return txn.Set([]byte(key), payload)
}

func getJSON(txn *badger.Txn, key string, dest interface{}) error {
	item, err := txn.Get([]byte(key))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return appErrors.Newf(appErrors.ErrNotFound, "%s not found", key)
		}
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, dest)
	})
}

// BadgerRunStore keeps solver runs in the embedded store.
type BadgerRunStore struct {
	db *badger.DB
}

// NewBadgerRunStore constructs the store.
func NewBadgerRunStore(db *badger.DB) *BadgerRunStore {
	return &BadgerRunStore{db: db}
}

// Create stores a new run.
func (s *BadgerRunStore) Create(_ context.Context, run *models.SolverRun) error {
	prepareRun(run)
	err := s.db.Update(func(txn *badger.Txn) error {
		return putJSON(txn, runPrefix+run.ID, run)
	})
	if err != nil {
		return fmt.Errorf("create solver run: %w", err)
	}
	return nil
}

// GetByID loads a run.
func (s *BadgerRunStore) GetByID(_ context.Context, id string) (*models.SolverRun, error) {
	var run models.SolverRun
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, runPrefix+id, &run)
	})
	if err != nil {
		return nil, fmt.Errorf("get solver run: %w", err)
	}
	return &run, nil
}

// Update applies the non-nil fields of params.
func (s *BadgerRunStore) Update(_ context.Context, id string, params UpdateSolverRunParams) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		var run models.SolverRun
		if err := getJSON(txn, runPrefix+id, &run); err != nil {
			return err
		}
		params.apply(&run)
		return putJSON(txn, runPrefix+id, &run)
	})
	if err != nil {
		return fmt.Errorf("update solver run: %w", err)
	}
	return nil
}

// Claim moves a queued run to RUNNING; a lost transaction race reports false.
func (s *BadgerRunStore) Claim(_ context.Context, id string, startedAt time.Time) (bool, error) {
	claimed := false
	err := s.db.Update(func(txn *badger.Txn) error {
		var run models.SolverRun
		if err := getJSON(txn, runPrefix+id, &run); err != nil {
			return err
		}
		if run.State != models.RunStateQueued {
			return nil
		}
		running := models.RunStateRunning
		UpdateSolverRunParams{State: &running, StartedAt: &startedAt}.apply(&run)
		claimed = true
		return putJSON(txn, runPrefix+id, &run)
	})
	if errors.Is(err, badger.ErrConflict) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("claim solver run: %w", err)
	}
	return claimed, nil
}

// ListQueued returns queued runs oldest first.
func (s *BadgerRunStore) ListQueued(_ context.Context, limit int) ([]models.SolverRun, error) {
	if limit <= 0 {
		limit = 20
	}
	var runs []models.SolverRun
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(runPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var run models.SolverRun
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &run)
			}); err != nil {
				return err
			}
			if run.State == models.RunStateQueued {
				runs = append(runs, run)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list queued solver runs: %w", err)
	}
	sort.SliceStable(runs, func(i, j int) bool { return runs[i].CreatedAt.Before(runs[j].CreatedAt) })
	if len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// FailStale marks runs RUNNING since before startedBefore as FAILED and
// returns their ids.
func (s *BadgerRunStore) FailStale(_ context.Context, startedBefore, finishedAt time.Time, message string) ([]string, error) {
	var ids []string
	err := s.db.Update(func(txn *badger.Txn) error {
		var stale []models.SolverRun
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(runPrefix)
		it := txn.NewIterator(opts)
		for it.Rewind(); it.Valid(); it.Next() {
			var run models.SolverRun
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &run)
			}); err != nil {
				it.Close()
				return err
			}
			if run.State == models.RunStateRunning && run.StartedAt != nil && run.StartedAt.Before(startedBefore) {
				stale = append(stale, run)
			}
		}
		it.Close()

		failed := models.RunStateFailed
		for i := range stale {
			run := &stale[i]
			UpdateSolverRunParams{State: &failed, ErrorMessage: &message, FinishedAt: &finishedAt}.apply(run)
			if err := putJSON(txn, runPrefix+run.ID, run); err != nil {
				return err
			}
			ids = append(ids, run.ID)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("fail stale solver runs: %w", err)
	}
	return ids, nil
}

// BadgerAvailabilityStore keeps availability tables in the embedded store.
type BadgerAvailabilityStore struct {
	db *badger.DB
}

// NewBadgerAvailabilityStore constructs the store.
func NewBadgerAvailabilityStore(db *badger.DB) *BadgerAvailabilityStore {
	return &BadgerAvailabilityStore{db: db}
}

// Create stores an availability table.
func (s *BadgerAvailabilityStore) Create(_ context.Context, availability *models.Availability) error {
	prepareAvailability(availability)
	if err := s.db.Update(func(txn *badger.Txn) error {
		return putJSON(txn, availabilityPrefix+availability.ID, availability)
	}); err != nil {
		return fmt.Errorf("create availability: %w", err)
	}
	return nil
}

// GetByID loads an availability table.
func (s *BadgerAvailabilityStore) GetByID(_ context.Context, id string) (*models.Availability, error) {
	var availability models.Availability
	if err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, availabilityPrefix+id, &availability)
	}); err != nil {
		return nil, fmt.Errorf("get availability: %w", err)
	}
	return &availability, nil
}

// BadgerOptionsStore keeps solver options in the embedded store.
type BadgerOptionsStore struct {
	db *badger.DB
}

// NewBadgerOptionsStore constructs the store.
func NewBadgerOptionsStore(db *badger.DB) *BadgerOptionsStore {
	return &BadgerOptionsStore{db: db}
}

// Create stores an options record.
func (s *BadgerOptionsStore) Create(_ context.Context, opts *models.SolverOptions) error {
	prepareOptions(opts)
	if err := s.db.Update(func(txn *badger.Txn) error {
		return putJSON(txn, optionsPrefix+opts.ID, opts)
	}); err != nil {
		return fmt.Errorf("create solver options: %w", err)
	}
	return nil
}

// GetByID loads an options record.
func (s *BadgerOptionsStore) GetByID(_ context.Context, id string) (*models.SolverOptions, error) {
	var opts models.SolverOptions
	if err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, optionsPrefix+id, &opts)
	}); err != nil {
		return nil, fmt.Errorf("get solver options: %w", err)
	}
	return &opts, nil
}
