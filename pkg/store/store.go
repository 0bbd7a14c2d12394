// Package store archives pipeline runs in a Badger key-value database. Each
// run is one JSON record under "run/<id>".
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	badger "github.com/dgraph-io/badger/v3"
	"github.com/rs/zerolog"
)

var ErrNotFound = errors.New("run not found")

const runPrefix = "run/"

// Record is the archived summary of one run.
type Record struct {
	RunID     string    `json:"run_id"`
	CreatedAt time.Time `json:"created_at"`
	Status    string    `json:"status"`

	GraphPath    string `json:"graph_path,omitempty"`
	InterestPath string `json:"interest_path,omitempty"`

	Params map[string]any `json:"params"`

	Nodes      int   `json:"nodes"`
	Edges      int   `json:"edges"`
	Components int   `json:"components"`
	SCCs       int   `json:"sccs"`
	Singletons int   `json:"singletons"`
	Levels     int   `json:"levels"`
	Iterations int   `json:"iterations"`
	Candidates int   `json:"candidates"`
	RuntimeMS  int64 `json:"runtime_ms"`

	Seeds []SeedEntry `json:"seeds"`
}

// SeedEntry is one archived seed.
type SeedEntry struct {
	Node        int     `json:"node"`
	AvgDistance float64 `json:"avg_distance"`
	Influence   float64 `json:"influence"`
}

// Store wraps a Badger database.
type Store struct {
	db     *badger.DB
	logger zerolog.Logger
}

// Open opens the database at path, or an in-memory database when path is
// empty.
func Open(path string, logger zerolog.Logger) (*Store, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = badgerLogger{logger: logger.With().Str("component", "badger").Logger()}
	opts.MetricsEnabled = false
	if path == "" {
		opts.InMemory = true
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open run store %q: %w", path, err)
	}
	logger.Debug().Str("path", path).Bool("in_memory", opts.InMemory).Msg("Run store opened")
	return &Store{db: db, logger: logger}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save writes rec, replacing any record with the same id.
func (s *Store) Save(rec *Record) error {
	if rec.RunID == "" {
		return fmt.Errorf("save run: empty run id")
	}
	buf, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode run %s: %w", rec.RunID, err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(runPrefix+rec.RunID), buf)
	})
	if err != nil {
		return fmt.Errorf("save run %s: %w", rec.RunID, err)
	}
	return nil
}

// Get loads the record with the given id.
func (s *Store) Get(id string) (*Record, error) {
	var rec Record
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(runPrefix + id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load run %s: %w", id, err)
	}
	return &rec, nil
}

// List returns up to limit records, newest first. A non-positive limit
// returns every record.
func (s *Store) List(limit int) ([]Record, error) {
	var records []Record
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{
			PrefetchValues: true,
			PrefetchSize:   64,
			Prefix:         []byte(runPrefix),
		})
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var rec Record
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			})
			if err != nil {
				return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}

	slices.SortFunc(records, func(a, b Record) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		if a.RunID < b.RunID {
			return -1
		}
		if a.RunID > b.RunID {
			return 1
		}
		return 0
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// Delete removes the record with the given id.
func (s *Store) Delete(id string) error {
	if _, err := s.Get(id); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(runPrefix + id))
	})
}

// badgerLogger routes Badger's internal logging through zerolog.
type badgerLogger struct {
	logger zerolog.Logger
}

func (l badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error().Msgf(format, args...)
}

func (l badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn().Msgf(format, args...)
}

func (l badgerLogger) Infof(format string, args ...any) {
	l.logger.Debug().Msgf(format, args...)
}

func (l badgerLogger) Debugf(format string, args ...any) {
	l.logger.Trace().Msgf(format, args...)
}
