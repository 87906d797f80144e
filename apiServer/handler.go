package apiServer

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	graphloom "github.com/graphloom/graphloom"
	"github.com/graphloom/graphloom/internal/state"
	"github.com/graphloom/graphloom/pkg/blobstore"
	"github.com/graphloom/graphloom/pkg/types"
)

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintln(w, "graphloom server")
}

func (s *Server) handleCreateNamespace(w http.ResponseWriter, r *http.Request) {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()

	var req createNamespaceRequest
	if err := dec.Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	if err := types.ValidateName(req.Name); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	err := s.state.Write(r.Context(), state.CreateNamespaceRequest{Name: req.Name})
	if err != nil {
		s.log.Error("failed to create namespace", "error", err, "namespace", req.Name)
		http.Error(w, http.StatusText(s.storageStatus(err)), s.storageStatus(err))
		return
	}

	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleListNamespaces(w http.ResponseWriter, r *http.Request) {
	reader, err := s.state.Reader()
	if err != nil {
		http.Error(w, http.StatusText(s.storageStatus(err)), s.storageStatus(err))
		return
	}

	namespaces, next, err := reader.GetAllNamespaces(r.URL.Query().Get("cursor"))
	if err != nil {
		s.log.Error("failed to list namespaces", "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if namespaces == nil {
		namespaces = []types.Namespace{}
	}
	writeJSON(w, http.StatusOK, namespaceList{Namespaces: namespaces, Cursor: next})
}

// handleCreateComputeGraph consumes a multipart payload with two fields: the
// "code" byte stream and the "compute_graph" JSON definition. The code field
// is streamed through the blob store as it arrives; the graph definition is
// then rewritten to reference the stored blob and committed.
func (s *Server) handleCreateComputeGraph(w http.ResponseWriter, r *http.Request) {
	namespace := r.PathValue("namespace")
	if err := types.ValidateName(namespace); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	contentType := r.Header.Get("Content-Type")
	if !strings.HasPrefix(strings.ToLower(contentType), "multipart/form-data") {
		http.Error(w, "expected multipart/form-data", http.StatusUnsupportedMediaType)
		return
	}

	mr, err := r.MultipartReader()
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to read multipart body: %v", err), http.StatusBadRequest)
		return
	}

	var graphDefinition *types.ComputeGraph
	var writeResult *types.WriteStreamResult

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			http.Error(w, fmt.Sprintf("failed to read multipart body: %v", err), http.StatusBadRequest)
			return
		}

		switch part.FormName() {
		case "code":
			result, err := s.blobs.Put(r.Context(), namespace, part)
			if err != nil {
				s.log.Error("failed to store code blob", "error", err, "namespace", namespace)
				status := http.StatusInternalServerError
				if errors.Is(err, blobstore.ErrStream) {
					status = http.StatusBadRequest
				}
				http.Error(w, http.StatusText(status), status)
				return
			}
			writeResult = &result
		case "compute_graph":
			var graph types.ComputeGraph
			dec := json.NewDecoder(io.LimitReader(part, 1<<20))
			if err := dec.Decode(&graph); err != nil {
				http.Error(w, fmt.Sprintf("invalid compute graph definition: %v", err), http.StatusBadRequest)
				return
			}
			graphDefinition = &graph
		}
	}

	if graphDefinition == nil {
		http.Error(w, "compute graph definition is required", http.StatusBadRequest)
		return
	}
	if writeResult == nil {
		http.Error(w, "code is required", http.StatusBadRequest)
		return
	}

	graphDefinition.Namespace = namespace
	graphDefinition.CodeURL = writeResult.URL
	if err := graphDefinition.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	err = s.state.Write(r.Context(), state.CreateComputeGraphRequest{
		Namespace:    namespace,
		ComputeGraph: *graphDefinition,
	})
	if err != nil {
		s.log.Error("failed to create compute graph", "error", err, "namespace", namespace, "graph", graphDefinition.Name)
		http.Error(w, http.StatusText(s.storageStatus(err)), s.storageStatus(err))
		return
	}

	s.log.Info("compute graph created",
		"namespace", namespace,
		"graph", graphDefinition.Name,
		"code_size", writeResult.SizeBytes,
		"code_hash", writeResult.Hash,
	)
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleListComputeGraphs(w http.ResponseWriter, r *http.Request) {
	namespace := r.PathValue("namespace")

	reader, err := s.state.Reader()
	if err != nil {
		http.Error(w, http.StatusText(s.storageStatus(err)), s.storageStatus(err))
		return
	}

	graphs, next, err := reader.ListComputeGraphs(namespace, r.URL.Query().Get("cursor"))
	if err != nil {
		s.log.Error("failed to list compute graphs", "error", err, "namespace", namespace)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if graphs == nil {
		graphs = []types.ComputeGraph{}
	}
	writeJSON(w, http.StatusOK, computeGraphsList{ComputeGraphs: graphs, Cursor: next})
}

func (s *Server) handleGetComputeGraph(w http.ResponseWriter, r *http.Request) {
	namespace := r.PathValue("namespace")
	name := r.PathValue("name")

	reader, err := s.state.Reader()
	if err != nil {
		http.Error(w, http.StatusText(s.storageStatus(err)), s.storageStatus(err))
		return
	}

	graph, err := reader.GetComputeGraph(namespace, name)
	if err != nil {
		s.log.Error("failed to get compute graph", "error", err, "namespace", namespace, "graph", name)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	if graph == nil {
		http.Error(w, "compute graph not found", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, graph)
}

func (s *Server) handleDeleteComputeGraph(w http.ResponseWriter, r *http.Request) {
	namespace := r.PathValue("namespace")
	name := r.PathValue("name")

	err := s.state.Write(r.Context(), state.DeleteComputeGraphRequest{
		Namespace: namespace,
		Name:      name,
	})
	if err != nil {
		s.log.Error("failed to delete compute graph", "error", err, "namespace", namespace, "graph", name)
		http.Error(w, http.StatusText(s.storageStatus(err)), s.storageStatus(err))
		return
	}

	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleIngestedData(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, []types.DataObject{})
}

func (s *Server) handleUploadData(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleGetOutput(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, types.DataObject{
		ID:   "test",
		Data: json.RawMessage(`{}`),
	})
}

func (s *Server) handleNotify(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *Server) storageStatus(err error) int {
	if errors.Is(err, graphloom.ErrNotStarted) || errors.Is(err, graphloom.ErrClosed) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
