package state

import (
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/graphloom/graphloom/internal/kvstore"
	"github.com/graphloom/graphloom/pkg/types"
)

// Partitions of the embedded store. GraphNameIndex is the secondary index
// that backs namespace-scoped listing; it is written and removed in the same
// transaction as the primary ComputeGraphs record.
const (
	Namespaces     kvstore.Partition = "Namespaces"
	ComputeGraphs  kvstore.Partition = "ComputeGraphs"
	GraphNameIndex kvstore.Partition = "GraphNameIndex"
)

// Machine applies the closed mutation set against the partitioned store.
// Each mutation is one transaction: it fully commits or fully aborts, and a
// failed transaction is reported immediately, never retried here.
type Machine struct {
	kv *kvstore.Store
}

func NewMachine(kv *kvstore.Store) *Machine {
	return &Machine{kv: kv}
}

// CreateNamespace writes a namespace record with the current timestamp.
// Writing an existing name is an upsert; no existence check is performed.
func (m *Machine) CreateNamespace(name string) error {
	if err := types.ValidateName(name); err != nil {
		return err
	}

	ns := types.Namespace{
		Name:      name,
		CreatedAt: types.NowMillis(),
	}
	raw, err := marshalValue(ns)
	if err != nil {
		return err
	}

	err = m.kv.Update(func(txn *badger.Txn) error {
		return txn.Set(Namespaces.Key(name), raw)
	})
	if err != nil {
		return fmt.Errorf("create namespace %q: %w", name, err)
	}
	return nil
}

// CreateComputeGraph stores the graph under (namespace, name) and its entry
// in the graph-name index. Both writes commit together or not at all. The
// target namespace is not checked for existence; that contract belongs to
// the caller.
func (m *Machine) CreateComputeGraph(namespace string, graph types.ComputeGraph) error {
	graph.Namespace = namespace
	if graph.CreatedAt == 0 {
		graph.CreatedAt = types.NowMillis()
	}
	if err := graph.Validate(); err != nil {
		return err
	}

	raw, err := marshalValue(graph)
	if err != nil {
		return err
	}

	err = m.kv.Update(func(txn *badger.Txn) error {
		if err := txn.Set(ComputeGraphs.Key(namespace, graph.Name), raw); err != nil {
			return err
		}
		return txn.Set(GraphNameIndex.Key(namespace, graph.Name), nil)
	})
	if err != nil {
		return fmt.Errorf("create compute graph %q/%q: %w", namespace, graph.Name, err)
	}
	return nil
}

// DeleteComputeGraph removes the primary record and every index entry
// referencing it in a single transaction. A partially deleted graph is never
// observable: if any removal fails the transaction aborts untouched.
func (m *Machine) DeleteComputeGraph(namespace, name string) error {
	err := m.kv.Update(func(txn *badger.Txn) error {
		if err := txn.Delete(ComputeGraphs.Key(namespace, name)); err != nil {
			return err
		}
		return txn.Delete(GraphNameIndex.Key(namespace, name))
	})
	if err != nil {
		return fmt.Errorf("delete compute graph %q/%q: %w", namespace, name, err)
	}
	return nil
}
