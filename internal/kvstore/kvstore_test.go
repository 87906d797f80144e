package kvstore

import (
	"io"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	store, err := Open(StoreConfig{
		Paths:  []string{t.TempDir()},
		Logger: logger,
	})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(StoreConfig{})
	assert.Error(t, err)
}

func TestOpenRejectsMissingDirectory(t *testing.T) {
	_, err := Open(StoreConfig{Paths: []string{"/does/not/exist"}})
	assert.Error(t, err)
}

func TestPartitionKeyLayout(t *testing.T) {
	const p Partition = "ComputeGraphs"

	assert.Equal(t, []byte("ComputeGraphs#"), p.Prefix())
	assert.Equal(t, []byte("ComputeGraphs#ns1|g1"), p.Key("ns1", "g1"))
	assert.Equal(t, []byte("ComputeGraphs#ns1|"), p.ScopedPrefix("ns1"))
}

func TestWriteAndRead(t *testing.T) {
	store := openTestStore(t)

	const p Partition = "Things"
	require.NoError(t, store.Write(p.Key("k1"), []byte("v1")))

	value, err := store.Read(p.Key("k1"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), value)

	_, err = store.Read(p.Key("absent"))
	assert.Error(t, err)
}

func TestPartitionsAreIsolated(t *testing.T) {
	store := openTestStore(t)

	const a Partition = "A"
	const b Partition = "B"
	require.NoError(t, store.Write(a.Key("k"), []byte("in-a")))
	require.NoError(t, store.Write(b.Key("k"), []byte("in-b")))

	var seen []string
	err := store.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = a.Prefix()
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(a.Prefix()); it.ValidForPrefix(a.Prefix()); it.Next() {
			value, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			seen = append(seen, string(value))
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"in-a"}, seen)
}

func TestUpdateIsAtomic(t *testing.T) {
	store := openTestStore(t)

	const p Partition = "Pairs"
	err := store.Update(func(txn *badger.Txn) error {
		if err := txn.Set(p.Key("first"), []byte("1")); err != nil {
			return err
		}
		if err := txn.Set(p.Key("second"), []byte("2")); err != nil {
			return err
		}
		return assert.AnError
	})
	require.Error(t, err)

	_, err = store.Read(p.Key("first"))
	assert.Error(t, err, "aborted transaction must not leave writes behind")
	_, err = store.Read(p.Key("second"))
	assert.Error(t, err)
}

func TestCounters(t *testing.T) {
	store := openTestStore(t)

	const p Partition = "C"
	require.NoError(t, store.Write(p.Key("k"), []byte("v")))
	_, _ = store.Read(p.Key("k"))

	reads, writes := store.Counters()
	assert.GreaterOrEqual(t, reads, uint64(1))
	assert.GreaterOrEqual(t, writes, uint64(1))
}
