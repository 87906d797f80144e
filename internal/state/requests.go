package state

import "github.com/graphloom/graphloom/pkg/types"

// Request is the closed set of mutations the state machine accepts. The
// unexported marker keeps the set sealed; dispatch over it is a single
// exhaustive switch in the root handle.
type Request interface {
	isRequest()
}

type CreateNamespaceRequest struct {
	Name string
}

type CreateComputeGraphRequest struct {
	Namespace    string
	ComputeGraph types.ComputeGraph
}

type DeleteComputeGraphRequest struct {
	Namespace string
	Name      string
}

func (CreateNamespaceRequest) isRequest()    {}
func (CreateComputeGraphRequest) isRequest() {}
func (DeleteComputeGraphRequest) isRequest() {}
