package kvstore

import (
	"fmt"
	"io"
	"strings"
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"
)

// Partition names an independently keyed, ordered region of the store. Keys
// inside a partition are laid out as "<partition>#<rest>", so a prefix scan
// over Prefix() is confined to that partition.
type Partition string

// Prefix returns the byte prefix shared by every key in the partition.
func (p Partition) Prefix() []byte {
	return []byte(string(p) + "#")
}

// Key builds a key inside the partition from the given components, joined by
// "|". Components must not contain "#" or "|"; callers validate identifiers
// before they reach the store.
func (p Partition) Key(parts ...string) []byte {
	return append(p.Prefix(), []byte(strings.Join(parts, "|"))...)
}

// ScopedPrefix narrows a scan to keys whose leading components equal parts,
// e.g. ComputeGraphs.ScopedPrefix("ns") covers exactly namespace "ns".
func (p Partition) ScopedPrefix(parts ...string) []byte {
	return append(p.Key(parts...), '|')
}

type StoreConfig struct {
	Paths            []string // only Paths[0] is used at the moment
	MinimumFreeSpace int      // in GB
	Logger           *logrus.Logger
}

// Store wraps a single embedded badger instance. It is safe for concurrent
// use; all cross-key consistency is delegated to badger's transactions.
type Store struct {
	config       StoreConfig
	badgerDB     *badger.DB
	log          *logrus.Logger
	readCounter  uint64
	writeCounter uint64
}

func Open(config StoreConfig) (*Store, error) {
	if config.Logger == nil {
		config.Logger = logrus.New()
	}

	if err := config.checkConfig(); err != nil {
		return nil, fmt.Errorf("error checking config for Store: %w", err)
	}

	opts := badger.DefaultOptions(config.Paths[0])
	opts.Logger = nil
	opts.ValueLogFileSize = 1024 * 1024 * 100
	opts.SyncWrites = false

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %s: %w", config.Paths[0], err)
	}

	s := &Store{
		config:   config,
		badgerDB: db,
		log:      config.Logger,
	}

	if err := s.logDiskUsage(config.Paths); err != nil {
		s.log.WithError(err).Warn("could not report disk usage")
	}

	return s, nil
}

// Update runs fn inside a read-write transaction. The transaction commits as
// one atomic unit or not at all.
func (s *Store) Update(fn func(txn *badger.Txn) error) error {
	atomic.AddUint64(&s.writeCounter, 1)
	return s.badgerDB.Update(fn)
}

// View runs fn inside a read-only transaction pinned to a single snapshot of
// the store. Writers committing concurrently are not observed by fn.
func (s *Store) View(fn func(txn *badger.Txn) error) error {
	atomic.AddUint64(&s.readCounter, 1)
	return s.badgerDB.View(fn)
}

func (s *Store) Write(key []byte, content []byte) error {
	return s.Update(func(txn *badger.Txn) error {
		return txn.Set(key, content)
	})
}

func (s *Store) Read(key []byte) ([]byte, error) {
	atomic.AddUint64(&s.readCounter, 1)
	var value []byte
	err := s.badgerDB.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("error reading key %q: %w", key, err)
	}
	return value, nil
}

// Backup streams a consistent dump of every version since the given badger
// timestamp to w and returns the timestamp of the last written version.
func (s *Store) Backup(w io.Writer, since uint64) (uint64, error) {
	return s.badgerDB.Backup(w, since)
}

// Load replays a backup stream produced by Backup into the store.
func (s *Store) Load(r io.Reader) error {
	return s.badgerDB.Load(r, 16)
}

// Counters returns the cumulative read and write operation counts.
func (s *Store) Counters() (reads, writes uint64) {
	return atomic.LoadUint64(&s.readCounter), atomic.LoadUint64(&s.writeCounter)
}

func (s *Store) Close() error {
	if err := s.badgerDB.Sync(); err != nil {
		s.log.WithError(err).Warn("sync before close failed")
	}
	return s.badgerDB.Close()
}

// RunGC triggers value log garbage collection. ErrNoRewrite from badger means
// there was nothing to collect and is not reported as a failure.
func (s *Store) RunGC() error {
	err := s.badgerDB.RunValueLogGC(0.5)
	if err != nil && err != badger.ErrNoRewrite {
		return fmt.Errorf("error cleaning db: %w", err)
	}
	return nil
}
