package apiServer

import "github.com/graphloom/graphloom/pkg/types"

type createNamespaceRequest struct {
	Name string `json:"name"`
}

type namespaceList struct {
	Namespaces []types.Namespace `json:"namespaces"`
	Cursor     string            `json:"cursor,omitempty"`
}

type computeGraphsList struct {
	ComputeGraphs []types.ComputeGraph `json:"compute_graphs"`
	Cursor        string               `json:"cursor,omitempty"`
}
