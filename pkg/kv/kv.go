// Package kv provides the ordered key-value backend pgraph's storage engine
// is built on: atomic write batches, optimistic transactions with per-key
// conflict detection, and on-disk checkpoints — all backed by BadgerDB.
package kv

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dgraph-io/badger/v4"
)

// Sentinel errors.
var (
	ErrNotFound  = errors.New("kv: key not found")
	ErrConflict  = errors.New("kv: transaction conflict")
	ErrClosed    = errors.New("kv: store closed")
)

// Options configures a Store (InMemory/SyncWrites/LowMemory); the same
// tuning trade-offs apply at pgraph's vertex/edge volumes.
type Options struct {
	DataDir    string
	InMemory   bool
	SyncWrites bool
	Logger     badger.Logger
}

// Store wraps a badger.DB and exposes the operations the memory and
// transaction layers need: Get/Batch/Write, optimistic Txn, checkpointing,
// and WAL flush.
type Store struct {
	db      *badger.DB
	dataDir string
}

// Open creates or opens a Store at the given options.
func Open(opts Options) (*Store, error) {
	badgerOpts := badger.DefaultOptions(opts.DataDir)
	if opts.InMemory {
		badgerOpts = badgerOpts.WithInMemory(true)
	}
	if opts.SyncWrites {
		badgerOpts = badgerOpts.WithSyncWrites(true)
	}
	if opts.Logger != nil {
		badgerOpts = badgerOpts.WithLogger(opts.Logger)
	} else {
		badgerOpts = badgerOpts.WithLogger(nil)
	}

	// Low-memory tuning for containerized deployments: slightly slower
	// compaction in exchange for much lower resident memory, a trade-off
	// that favors these settings as sane defaults even at pgraph's
	// larger vertex/edge volumes.
	badgerOpts = badgerOpts.
		WithMemTableSize(16 << 20).
		WithValueLogFileSize(64 << 20).
		WithNumMemtables(2).
		WithNumLevelZeroTables(2).
		WithNumLevelZeroTablesStall(4).
		WithValueThreshold(1024).
		WithBlockCacheSize(32 << 20).
		WithIndexCacheSize(16 << 20)

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("kv: failed to open badger: %w", err)
	}

	return &Store{db: db, dataDir: opts.DataDir}, nil
}

// Close closes the underlying Badger database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get fetches a single key. Returns (nil, false, nil) on miss.
func (s *Store) Get(key []byte) ([]byte, bool, error) {
	var val []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			val = append([]byte(nil), v...)
			return nil
		})
	})
	if err != nil {
		return nil, false, err
	}
	return val, val != nil, nil
}

// MultiGet fetches several keys in a single read transaction, the
// batch-read shape the vertex/edge managers need for LRU-miss backfill.
func (s *Store) MultiGet(keys [][]byte) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	err := s.db.View(func(txn *badger.Txn) error {
		for _, key := range keys {
			item, err := txn.Get(key)
			if err == badger.ErrKeyNotFound {
				continue
			}
			if err != nil {
				return err
			}
			err = item.Value(func(v []byte) error {
				out[string(key)] = append([]byte(nil), v...)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return out, err
}

// writeOp is one buffered mutation in a Batch.
type writeOp struct {
	key    []byte
	value  []byte
	delete bool
}

// Batch buffers puts/deletes for atomic application via Write.
type Batch struct {
	ops []writeOp
}

// NewBatch creates an empty write batch.
func NewBatch() *Batch {
	return &Batch{}
}

// Put stages a key/value write.
func (b *Batch) Put(key, value []byte) {
	b.ops = append(b.ops, writeOp{key: append([]byte(nil), key...), value: append([]byte(nil), value...)})
}

// Delete stages a key delete.
func (b *Batch) Delete(key []byte) {
	b.ops = append(b.ops, writeOp{key: append([]byte(nil), key...), delete: true})
}

// Len reports the number of staged operations.
func (b *Batch) Len() int { return len(b.ops) }

// Write applies a batch atomically via a single Badger transaction.
func (s *Store) Write(b *Batch) error {
	if b == nil || len(b.ops) == 0 {
		return nil
	}
	return s.db.Update(func(txn *badger.Txn) error {
		for _, op := range b.ops {
			if op.delete {
				if err := txn.Delete(op.key); err != nil {
					return err
				}
				continue
			}
			if err := txn.Set(op.key, op.value); err != nil {
				return err
			}
		}
		return nil
	})
}

// Txn is an optimistic-concurrency transaction with per-key conflict
// detection on commit — Badger provides this natively via SSI, which is
// exactly the contract component A must expose.
type Txn struct {
	txn *badger.Txn
	db  *badger.DB
}

// Begin starts a new read-write optimistic transaction.
func (s *Store) Begin() *Txn {
	return &Txn{txn: s.db.NewTransaction(true), db: s.db}
}

// Get reads a key within the transaction's snapshot view.
func (t *Txn) Get(key []byte) ([]byte, bool, error) {
	item, err := t.txn.Get(key)
	if err == badger.ErrKeyNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var val []byte
	err = item.Value(func(v []byte) error {
		val = append([]byte(nil), v...)
		return nil
	})
	return val, true, err
}

// Set stages a write in the transaction.
func (t *Txn) Set(key, value []byte) error {
	return t.txn.Set(key, value)
}

// Delete stages a delete in the transaction.
func (t *Txn) Delete(key []byte) error {
	return t.txn.Delete(key)
}

// Commit attempts to commit the transaction, returning ErrConflict if a
// concurrent writer touched one of the same keys first.
func (t *Txn) Commit() error {
	err := t.txn.Commit()
	if errors.Is(err, badger.ErrConflict) {
		return ErrConflict
	}
	return err
}

// Discard rolls back the transaction, releasing its resources.
func (t *Txn) Discard() {
	t.txn.Discard()
}

// FlushWAL forces Badger to sync its value log and WAL to disk — called
// before a checkpoint so the checkpoint reflects all acknowledged writes.
func (s *Store) FlushWAL() error {
	return s.db.Sync()
}

// CreateCheckpoint writes a consistent, self-contained on-disk snapshot of
// the store into dir/backup.badger, using Badger's native streaming
// backup format. This is simpler and more portable than copying raw SST
// files directly, and Badger ships the matching Load call to reconstitute
// a fresh store from it (see Restore).
func (s *Store) CreateCheckpoint(dir string) (string, error) {
	if err := s.FlushWAL(); err != nil {
		return "", fmt.Errorf("kv: flush before checkpoint: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("kv: checkpoint dir: %w", err)
	}
	path := filepath.Join(dir, "backup.badger")
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("kv: create checkpoint file: %w", err)
	}
	defer f.Close()

	if _, err := s.db.Backup(f, 0); err != nil {
		return "", fmt.Errorf("kv: backup: %w", err)
	}
	return dir, nil
}

// Restore opens a fresh store at dataDir and loads it from a checkpoint
// directory previously produced by CreateCheckpoint.
func Restore(dataDir, checkpointDir string) (*Store, error) {
	store, err := Open(Options{DataDir: dataDir})
	if err != nil {
		return nil, err
	}
	path := filepath.Join(checkpointDir, "backup.badger")
	f, err := os.Open(path)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("kv: open checkpoint: %w", err)
	}
	defer f.Close()

	if err := store.db.Load(f, 256); err != nil {
		store.Close()
		return nil, fmt.Errorf("kv: load checkpoint: %w", err)
	}
	return store, nil
}

// Iterate scans all keys with the given prefix, invoking fn with the raw
// key and value for each. Iteration stops early if fn returns an error.
func (s *Store) Iterate(prefix []byte, fn func(key, value []byte) error) error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			key := append([]byte(nil), item.Key()...)
			var err error
			ierr := item.Value(func(v []byte) error {
				val := append([]byte(nil), v...)
				err = fn(key, val)
				return nil
			})
			if ierr != nil {
				return ierr
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// IterateKeysOnly scans all keys with the given prefix without fetching
// values — used by family scans that only need the key (e.g. extracting
// adjacency ids from the edge family).
func (s *Store) IterateKeysOnly(prefix []byte, fn func(key []byte) error) error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := append([]byte(nil), it.Item().Key()...)
			if err := fn(key); err != nil {
				return err
			}
		}
		return nil
	})
}

// DataDir returns the directory this store was opened against.
func (s *Store) DataDir() string { return s.dataDir }

// Stats reports cheap on-disk size instrumentation for the administrative
// database_stats(include_details=true) surface — the LSM tree and value
// log sizes Badger already tracks internally, plus the data directory
// itself so an operator can correlate with disk usage.
func (s *Store) Stats() map[string]string {
	lsm, vlog := s.db.Size()
	return map[string]string{
		"data_dir":     s.dataDir,
		"lsm_size_mb":  fmt.Sprintf("%.2f", float64(lsm)/(1<<20)),
		"vlog_size_mb": fmt.Sprintf("%.2f", float64(vlog)/(1<<20)),
	}
}
