package state

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/graphloom/graphloom/internal/kvstore"
	"github.com/graphloom/graphloom/pkg/types"
)

// DefaultPageSize bounds how many records a single listing page returns.
const DefaultPageSize = 100

const cursorVersion = 0x01

var errBadCursor = errors.New("malformed cursor token")

// Reader serves point lookups and cursor-paginated scans. Every scan call
// runs inside one read-only transaction, so all pages fetched by that call
// observe the same snapshot of the partition regardless of concurrent
// writers. Readers are cheap; callers create one per use and share the
// underlying store.
type Reader struct {
	kv       *kvstore.Store
	pageSize int
}

func NewReader(kv *kvstore.Store) *Reader {
	return &Reader{kv: kv, pageSize: DefaultPageSize}
}

// PageSize returns a reader with the given page bound. Values below one keep
// the default.
func (r *Reader) PageSize(n int) *Reader {
	if n < 1 {
		return r
	}
	return &Reader{kv: r.kv, pageSize: n}
}

// encodeCursor wraps the last key a scan visited into an opaque resumption
// token. Versioned so the layout can change without old tokens being
// misread as raw offsets.
func encodeCursor(lastKey []byte) string {
	buf := make([]byte, 0, len(lastKey)+1)
	buf = append(buf, cursorVersion)
	buf = append(buf, lastKey...)
	return base64.RawURLEncoding.EncodeToString(buf)
}

func decodeCursor(token string) ([]byte, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errBadCursor, err)
	}
	if len(raw) < 2 || raw[0] != cursorVersion {
		return nil, errBadCursor
	}
	return raw[1:], nil
}

// scanPage visits keys of the given prefix in order, strictly after the
// cursor position, calling visit for each entry until the page is full. It
// returns a cursor for the next page, or "" when the partition is exhausted.
func (r *Reader) scanPage(txn *badger.Txn, prefix []byte, cursor string, visit func(key, value []byte) error) (string, error) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix

	it := txn.NewIterator(opts)
	defer it.Close()

	start := prefix
	var after []byte
	if cursor != "" {
		lastKey, err := decodeCursor(cursor)
		if err != nil {
			return "", err
		}
		start = lastKey
		after = lastKey
	}

	it.Seek(start)
	if after != nil && it.ValidForPrefix(prefix) && bytes.Equal(it.Item().Key(), after) {
		it.Next()
	}

	var visited int
	var lastVisited []byte
	for ; it.ValidForPrefix(prefix); it.Next() {
		if visited == r.pageSize {
			return encodeCursor(lastVisited), nil
		}

		item := it.Item()
		value, err := item.ValueCopy(nil)
		if err != nil {
			return "", err
		}
		key := item.KeyCopy(nil)
		if err := visit(key, value); err != nil {
			return "", err
		}

		lastVisited = key
		visited++
	}

	return "", nil
}

// GetAllNamespaces lists namespaces in key order, one page per call.
func (r *Reader) GetAllNamespaces(cursor string) ([]types.Namespace, string, error) {
	var namespaces []types.Namespace
	var next string

	err := r.kv.View(func(txn *badger.Txn) error {
		var scanErr error
		next, scanErr = r.scanPage(txn, Namespaces.Prefix(), cursor, func(_, value []byte) error {
			var ns types.Namespace
			if err := unmarshalValue(value, &ns); err != nil {
				return err
			}
			namespaces = append(namespaces, ns)
			return nil
		})
		return scanErr
	})
	if err != nil {
		return nil, "", fmt.Errorf("list namespaces: %w", err)
	}

	return namespaces, next, nil
}

// ListComputeGraphs lists one page of a namespace's graphs. The scan walks
// the graph-name index and resolves each entry against the primary record in
// the same snapshot; an index entry without a primary record is a consistency
// violation and surfaces as an error.
func (r *Reader) ListComputeGraphs(namespace string, cursor string) ([]types.ComputeGraph, string, error) {
	indexPrefix := GraphNameIndex.ScopedPrefix(namespace)

	var graphs []types.ComputeGraph
	var next string

	err := r.kv.View(func(txn *badger.Txn) error {
		var scanErr error
		next, scanErr = r.scanPage(txn, indexPrefix, cursor, func(key, _ []byte) error {
			name := string(bytes.TrimPrefix(key, indexPrefix))

			item, err := txn.Get(ComputeGraphs.Key(namespace, name))
			if err != nil {
				return fmt.Errorf("index entry %q/%q has no primary record: %w", namespace, name, err)
			}
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}

			var graph types.ComputeGraph
			if err := unmarshalValue(value, &graph); err != nil {
				return err
			}
			graphs = append(graphs, graph)
			return nil
		})
		return scanErr
	})
	if err != nil {
		return nil, "", fmt.Errorf("list compute graphs in %q: %w", namespace, err)
	}

	return graphs, next, nil
}

// GetComputeGraph returns the latest committed graph record, or nil when no
// graph exists under (namespace, name).
func (r *Reader) GetComputeGraph(namespace, name string) (*types.ComputeGraph, error) {
	var graph *types.ComputeGraph

	err := r.kv.View(func(txn *badger.Txn) error {
		item, err := txn.Get(ComputeGraphs.Key(namespace, name))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		value, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}

		var decoded types.ComputeGraph
		if err := unmarshalValue(value, &decoded); err != nil {
			return err
		}
		graph = &decoded
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get compute graph %q/%q: %w", namespace, name, err)
	}

	return graph, nil
}
