package types

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// KeySeparator joins namespace and graph name inside store keys. Identifiers
// that contain it (or the partition delimiter) are rejected up front so a
// range scan over one namespace can never leak into another.
const KeySeparator = "|"

const partitionDelimiter = "#"

// Namespace is a top-level naming scope for compute graphs.
type Namespace struct {
	Name      string `json:"name"`
	CreatedAt uint64 `json:"created_at"`
}

// ComputeGraph is a named DAG of nodes belonging to a namespace. CodeURL is a
// non-owning reference to the blob holding the graph's code artifact.
type ComputeGraph struct {
	Namespace   string              `json:"namespace"`
	Name        string              `json:"name"`
	Description string              `json:"description,omitempty"`
	CodeURL     string              `json:"code_url"`
	CreatedAt   uint64              `json:"created_at"`
	StartNode   string              `json:"start_node,omitempty"`
	Nodes       map[string]Node     `json:"nodes"`
	Edges       map[string][]string `json:"edges,omitempty"`
}

// WriteStreamResult describes a blob persisted by the blob store. Hash is the
// hex SHA-256 of exactly the bytes retrievable at URL.
type WriteStreamResult struct {
	URL       string `json:"url"`
	SizeBytes uint64 `json:"size_bytes"`
	Hash      string `json:"hash"`
	FileName  string `json:"file_name"`
}

// DataObject is an ingestion/output record. Its persistence model is owned by
// collaborators that are stubbed in this service.
type DataObject struct {
	ID   string          `json:"id"`
	Data json.RawMessage `json:"data"`
}

// NowMillis returns the current time as epoch milliseconds, the timestamp
// format persisted in Namespace and ComputeGraph records.
func NowMillis() uint64 {
	return uint64(time.Now().UnixMilli())
}

// ValidateName reports whether s is usable as a namespace or graph name.
func ValidateName(s string) error {
	if s == "" {
		return fmt.Errorf("name must not be empty")
	}
	if strings.Contains(s, KeySeparator) || strings.Contains(s, partitionDelimiter) {
		return fmt.Errorf("name %q must not contain %q or %q", s, KeySeparator, partitionDelimiter)
	}
	return nil
}

// Validate checks the structural invariants of a graph definition: valid
// identifiers, exactly one variant per node, and no dangling node references
// from the start node or the edge lists.
func (g *ComputeGraph) Validate() error {
	if err := ValidateName(g.Namespace); err != nil {
		return fmt.Errorf("invalid namespace: %w", err)
	}
	if err := ValidateName(g.Name); err != nil {
		return fmt.Errorf("invalid graph name: %w", err)
	}

	for name, node := range g.Nodes {
		if err := node.validate(); err != nil {
			return fmt.Errorf("node %q: %w", name, err)
		}
	}

	if g.StartNode != "" {
		if _, ok := g.Nodes[g.StartNode]; !ok {
			return fmt.Errorf("start node %q is not defined in the graph", g.StartNode)
		}
	}

	for from, targets := range g.Edges {
		if _, ok := g.Nodes[from]; !ok {
			return fmt.Errorf("edge source %q is not defined in the graph", from)
		}
		for _, to := range targets {
			if _, ok := g.Nodes[to]; !ok {
				return fmt.Errorf("edge %q -> %q references an undefined node", from, to)
			}
		}
	}

	return nil
}
