package apiServer

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	graphloom "github.com/graphloom/graphloom"
	"github.com/graphloom/graphloom/pkg/blobstore"
	"github.com/graphloom/graphloom/pkg/types"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	st, err := graphloom.New(graphloom.Config{
		Paths:  []string{t.TempDir()},
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	require.NoError(t, st.Start(context.Background()))
	t.Cleanup(func() { st.Close(context.Background()) })

	blobs, err := blobstore.NewLocal(t.TempDir())
	require.NoError(t, err)

	return New(st, blobs, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
}

func do(t *testing.T, s *Server, method, target string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func multipartGraphBody(t *testing.T, code []byte, graphJSON string) (io.Reader, string) {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	if code != nil {
		fw, err := mw.CreateFormFile("code", "code.py")
		require.NoError(t, err)
		_, err = fw.Write(code)
		require.NoError(t, err)
	}
	if graphJSON != "" {
		gw, err := mw.CreateFormField("compute_graph")
		require.NoError(t, err)
		_, err = gw.Write([]byte(graphJSON))
		require.NoError(t, err)
	}

	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestIndex(t *testing.T) {
	s := newTestServer(t)
	rec := do(t, s, http.MethodGet, "/", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "graphloom server")
}

func TestCreateAndListNamespaces(t *testing.T) {
	s := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/namespaces", strings.NewReader(`{"name":"ns1"}`), "application/json")
	require.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, s, http.MethodPost, "/namespaces", strings.NewReader(`{"name":"ns2"}`), "application/json")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, s, http.MethodGet, "/namespaces", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var list namespaceList
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Namespaces, 2)
	names := []string{list.Namespaces[0].Name, list.Namespaces[1].Name}
	assert.Contains(t, names, "ns1")
	assert.Contains(t, names, "ns2")
}

func TestCreateNamespaceBadRequest(t *testing.T) {
	s := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/namespaces", strings.NewReader(`{`), "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodPost, "/namespaces", strings.NewReader(`{"name":""}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateComputeGraphFullFlow(t *testing.T) {
	s := newTestServer(t)

	code := []byte("print(1)")
	graphJSON := `{"name":"g1","nodes":{"a":{"compute_fn":{"name":"a","fn_name":"fn_a"}}}}`
	body, contentType := multipartGraphBody(t, code, graphJSON)

	rec := do(t, s, http.MethodPost, "/ns1/compute_graphs", body, contentType)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, s, http.MethodGet, "/ns1/compute_graphs/g1", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var graph types.ComputeGraph
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &graph))
	assert.Equal(t, "ns1", graph.Namespace)
	assert.Equal(t, "g1", graph.Name)
	require.Len(t, graph.Nodes, 1)
	assert.Equal(t, types.KindComputeFn, graph.Nodes["a"].Kind())

	// code_url points at exactly the uploaded bytes
	require.True(t, strings.HasPrefix(graph.CodeURL, "file://"))
	stored, err := os.ReadFile(strings.TrimPrefix(graph.CodeURL, "file://"))
	require.NoError(t, err)
	assert.Equal(t, code, stored)
	assert.Len(t, stored, 8)

	expected := sha256.Sum256(code)
	storedDigest := sha256.Sum256(stored)
	assert.Equal(t, hex.EncodeToString(expected[:]), hex.EncodeToString(storedDigest[:]))
}

func TestCreateComputeGraphMissingFields(t *testing.T) {
	s := newTestServer(t)

	body, contentType := multipartGraphBody(t, nil, `{"name":"g1","nodes":{}}`)
	rec := do(t, s, http.MethodPost, "/ns1/compute_graphs", body, contentType)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "code is required")

	body, contentType = multipartGraphBody(t, []byte("code"), "")
	rec = do(t, s, http.MethodPost, "/ns1/compute_graphs", body, contentType)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "compute graph definition is required")
}

func TestCreateComputeGraphBadJSON(t *testing.T) {
	s := newTestServer(t)

	body, contentType := multipartGraphBody(t, []byte("code"), `{"name":`)
	rec := do(t, s, http.MethodPost, "/ns1/compute_graphs", body, contentType)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateComputeGraphRequiresMultipart(t *testing.T) {
	s := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/ns1/compute_graphs", strings.NewReader("{}"), "application/json")
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestListComputeGraphs(t *testing.T) {
	s := newTestServer(t)

	for _, name := range []string{"g1", "g2"} {
		graphJSON := `{"name":"` + name + `","nodes":{"a":{"compute_fn":{"name":"a","fn_name":"fn_a"}}}}`
		body, contentType := multipartGraphBody(t, []byte("code"), graphJSON)
		rec := do(t, s, http.MethodPost, "/ns1/compute_graphs", body, contentType)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := do(t, s, http.MethodGet, "/ns1/compute_graphs", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var list computeGraphsList
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.ComputeGraphs, 2)
	assert.Empty(t, list.Cursor)
}

func TestGetComputeGraphNotFound(t *testing.T) {
	s := newTestServer(t)
	rec := do(t, s, http.MethodGet, "/ns1/compute_graphs/missing", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteComputeGraph(t *testing.T) {
	s := newTestServer(t)

	graphJSON := `{"name":"g1","nodes":{"a":{"compute_fn":{"name":"a","fn_name":"fn_a"}}}}`
	body, contentType := multipartGraphBody(t, []byte("code"), graphJSON)
	rec := do(t, s, http.MethodPost, "/ns1/compute_graphs", body, contentType)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, s, http.MethodDelete, "/ns1/compute_graphs/g1", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, s, http.MethodGet, "/ns1/compute_graphs/g1", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, s, http.MethodGet, "/ns1/compute_graphs", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list computeGraphsList
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Empty(t, list.ComputeGraphs)
}

func TestStubEndpoints(t *testing.T) {
	s := newTestServer(t)

	rec := do(t, s, http.MethodGet, "/ns1/compute_graphs/g1/inputs", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = do(t, s, http.MethodPost, "/ns1/compute_graphs/g1/inputs", strings.NewReader(""), "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, s, http.MethodGet, "/ns1/compute_graphs/g1/inputs/obj1/outputs/out1", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	var obj types.DataObject
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &obj))
	assert.Equal(t, "test", obj.ID)

	rec = do(t, s, http.MethodGet, "/ns1/compute_graphs/g1/notify", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/namespaces", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
}
