// Package store keeps garden snapshots in an embedded BadgerDB, keyed by
// generation, so a long run can be resumed from any saved generation.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"

	"github.com/pthm-cable/sap/telemetry"
)

// ErrNotFound is returned when no snapshot matches.
var ErrNotFound = errors.New("store: snapshot not found")

const snapshotPrefix = "snapshot/"

// Store is a snapshot store. It is safe for concurrent use.
type Store struct {
	db *badger.DB
}

// badgerLogger adapts slog to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Open opens or creates the store in dir.
func Open(dir string) (*Store, error) {
	if dir == "" {
		return nil, errors.New("store: path is required")
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("create store directory %s: %w", dir, err)
	}
	return open(badger.DefaultOptions(dir))
}

// OpenInMemory opens a store that is discarded on Close.
func OpenInMemory() (*Store, error) {
	return open(badger.DefaultOptions("").WithInMemory(true))
}

func open(opts badger.Options) (*Store, error) {
	opts = opts.WithNumVersionsToKeep(1).WithLogger(&badgerLogger{logger: slog.Default()})
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Keys sort by generation because the number is zero-padded.
func key(generation int) []byte {
	return fmt.Appendf(nil, "%s%016d", snapshotPrefix, generation)
}

// Put saves snap, replacing any snapshot of the same generation.
func (s *Store) Put(snap *telemetry.Snapshot) error {
	if snap.Generation < 0 {
		return fmt.Errorf("store: negative generation %d", snap.Generation)
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(snap.Generation), data)
	})
}

// Get returns the snapshot of generation.
func (s *Store) Get(generation int) (*telemetry.Snapshot, error) {
	var snap *telemetry.Snapshot
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(generation))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		snap, err = decode(item)
		return err
	})
	return snap, err
}

// Latest returns the snapshot with the highest generation.
func (s *Store) Latest() (*telemetry.Snapshot, error) {
	var snap *telemetry.Snapshot
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = []byte(snapshotPrefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		// Seek past the last possible key with our prefix
		seekKey := append([]byte(snapshotPrefix), 0xFF)
		it.Seek(seekKey)
		if !it.ValidForPrefix([]byte(snapshotPrefix)) {
			return ErrNotFound
		}
		var err error
		snap, err = decode(it.Item())
		return err
	})
	return snap, err
}

// Generations lists the stored generations in ascending order.
func (s *Store) Generations() ([]int, error) {
	var gens []int
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		prefix := []byte(snapshotPrefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var gen int
			if _, err := fmt.Sscanf(string(it.Item().Key()[len(prefix):]), "%016d", &gen); err != nil {
				continue
			}
			gens = append(gens, gen)
		}
		return nil
	})
	return gens, err
}

func decode(item *badger.Item) (*telemetry.Snapshot, error) {
	snap := &telemetry.Snapshot{}
	err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, snap)
	})
	if err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", item.Key(), err)
	}
	if snap.Version != telemetry.SnapshotVersion {
		return nil, fmt.Errorf("snapshot version %d not supported (want %d)", snap.Version, telemetry.SnapshotVersion)
	}
	return snap, nil
}
