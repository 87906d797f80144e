package apiServer

import (
	"log/slog"
	"net/http"

	graphloom "github.com/graphloom/graphloom"
	"github.com/graphloom/graphloom/pkg/blobstore"
)

type Server struct {
	mux   *http.ServeMux
	state *graphloom.State
	blobs *blobstore.Local
	log   *slog.Logger
}

type Option func(*Server)

func New(state *graphloom.State, blobs *blobstore.Local, opts ...Option) *Server {
	s := &Server{
		mux:   http.NewServeMux(),
		state: state,
		blobs: blobs,
		log:   slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	s.mux.HandleFunc("POST /namespaces", s.handleCreateNamespace)
	s.mux.HandleFunc("GET /namespaces", s.handleListNamespaces)
	s.mux.HandleFunc("POST /{namespace}/compute_graphs", s.handleCreateComputeGraph)
	s.mux.HandleFunc("GET /{namespace}/compute_graphs", s.handleListComputeGraphs)
	s.mux.HandleFunc("GET /{namespace}/compute_graphs/{name}", s.handleGetComputeGraph)
	s.mux.HandleFunc("DELETE /{namespace}/compute_graphs/{name}", s.handleDeleteComputeGraph)

	// Ingestion, output and notification seams. Their persistence model lives
	// in collaborating services; the handlers are callable stubs.
	s.mux.HandleFunc("GET /{namespace}/compute_graphs/{name}/inputs", s.handleIngestedData)
	s.mux.HandleFunc("POST /{namespace}/compute_graphs/{name}/inputs", s.handleUploadData)
	s.mux.HandleFunc("GET /{namespace}/compute_graphs/{name}/inputs/{object}/outputs/{output}", s.handleGetOutput)
	s.mux.HandleFunc("GET /{namespace}/compute_graphs/{name}/notify", s.handleNotify)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")
	if origin == "" {
		origin = "*"
	} else {
		w.Header().Set("Vary", "Origin")
	}
	w.Header().Set("Access-Control-Allow-Origin", origin)

	allowedHeaders := r.Header.Get("Access-Control-Request-Headers")
	if allowedHeaders == "" {
		allowedHeaders = "Content-Type, Accept"
	}
	w.Header().Set("Access-Control-Allow-Headers", allowedHeaders)
	w.Header().Set("Access-Control-Allow-Methods", "GET,POST,DELETE,OPTIONS")

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	s.mux.ServeHTTP(w, r)
}
