package types

import (
	"encoding/json"
	"fmt"
)

// NodeKind identifies the variant carried by a Node.
type NodeKind int

const (
	KindUnknown NodeKind = iota
	KindComputeFn
	KindDynamicRouter
)

func (k NodeKind) String() string {
	switch k {
	case KindComputeFn:
		return "compute_fn"
	case KindDynamicRouter:
		return "dynamic_router"
	}
	return "unknown"
}

// ComputeFn is a single executable unit of a graph. It is invoked with the
// output of its upstream node and produces output for downstream nodes.
type ComputeFn struct {
	Name        string `json:"name"`
	FnName      string `json:"fn_name"`
	Description string `json:"description,omitempty"`
}

// DynamicRouter is a decision point that selects which of its target
// functions receive the input at execution time.
type DynamicRouter struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	SourceFn    string   `json:"source_fn"`
	TargetFns   []string `json:"target_fns"`
}

// Node is a closed union over the two vertex variants. Exactly one of the
// variant pointers is set; adding a variant means touching every switch over
// Kind, which is intentional.
type Node struct {
	ComputeFn     *ComputeFn
	DynamicRouter *DynamicRouter
}

func (n Node) Kind() NodeKind {
	switch {
	case n.ComputeFn != nil:
		return KindComputeFn
	case n.DynamicRouter != nil:
		return KindDynamicRouter
	}
	return KindUnknown
}

func (n Node) validate() error {
	if n.ComputeFn != nil && n.DynamicRouter != nil {
		return fmt.Errorf("node carries both compute_fn and dynamic_router")
	}
	if n.ComputeFn == nil && n.DynamicRouter == nil {
		return fmt.Errorf("node carries neither compute_fn nor dynamic_router")
	}
	return nil
}

// nodeJSON is the wire form: a single-keyed object tagged by variant.
type nodeJSON struct {
	ComputeFn     *ComputeFn     `json:"compute_fn,omitempty"`
	DynamicRouter *DynamicRouter `json:"dynamic_router,omitempty"`
}

func (n Node) MarshalJSON() ([]byte, error) {
	if err := n.validate(); err != nil {
		return nil, err
	}
	return json.Marshal(nodeJSON{
		ComputeFn:     n.ComputeFn,
		DynamicRouter: n.DynamicRouter,
	})
}

func (n *Node) UnmarshalJSON(data []byte) error {
	var wire nodeJSON
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	decoded := Node{ComputeFn: wire.ComputeFn, DynamicRouter: wire.DynamicRouter}
	if err := decoded.validate(); err != nil {
		return err
	}

	*n = decoded
	return nil
}
