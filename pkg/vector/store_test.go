package vector

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/medmap-labs/medmap-engine/pkg/apperrors"
)

type fakeQdrant struct {
	mux *http.ServeMux

	searchRequests []map[string]any
	upsertRequests []map[string]any
	patchRequests  []map[string]any
}

func newFakeQdrant(t *testing.T, collectionSize int) (*fakeQdrant, *httptest.Server) {
	t.Helper()
	f := &fakeQdrant{mux: http.NewServeMux()}

	f.mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	f.mux.HandleFunc("GET /collections", func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, map[string]any{
			"collections": []map[string]any{{"name": "concepts_main"}, {"name": "concepts_staging"}},
		})
	})

	f.mux.HandleFunc("GET /collections/{name}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("name") == "missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		writeEnvelope(w, map[string]any{
			"status":       "green",
			"points_count": 7,
			"config": map[string]any{
				"params": map[string]any{
					"vectors": map[string]any{"size": collectionSize},
				},
			},
		})
	})

	f.mux.HandleFunc("PUT /collections/{name}", func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, true)
	})

	f.mux.HandleFunc("PATCH /collections/{name}", func(w http.ResponseWriter, r *http.Request) {
		f.patchRequests = append(f.patchRequests, decodeBody(r))
		writeEnvelope(w, true)
	})

	f.mux.HandleFunc("POST /collections/{name}/points/search", func(w http.ResponseWriter, r *http.Request) {
		f.searchRequests = append(f.searchRequests, decodeBody(r))
		writeEnvelope(w, []map[string]any{
			{"id": 101, "score": 0.91, "payload": map[string]any{"text": "metformin"}},
			{"id": 102, "score": 0.85, "payload": map[string]any{"text": "metformin hydrochloride"}},
		})
	})

	f.mux.HandleFunc("PUT /collections/{name}/points", func(w http.ResponseWriter, r *http.Request) {
		f.upsertRequests = append(f.upsertRequests, decodeBody(r))
		writeEnvelope(w, map[string]any{"status": "acknowledged"})
	})

	srv := httptest.NewServer(f.mux)
	t.Cleanup(srv.Close)
	return f, srv
}

func writeEnvelope(w http.ResponseWriter, result any) {
	_ = json.NewEncoder(w).Encode(map[string]any{
		"result": result,
		"status": "ok",
	})
}

func decodeBody(r *http.Request) map[string]any {
	var m map[string]any
	_ = json.NewDecoder(r.Body).Decode(&m)
	return m
}

func newTestStore(t *testing.T, url string) *Store {
	t.Helper()
	s, err := NewStore(context.Background(), Config{URL: url}, zap.NewNop())
	require.NoError(t, err)
	return s
}

func TestSearch_SendsFilterAndParsesResults(t *testing.T) {
	fake, srv := newFakeQdrant(t, 1024)
	s := newTestStore(t, srv.URL)

	filter := NewFilter().Match("domain_id", "Drug")
	results, err := s.Search(context.Background(), "vocab", []float32{0.1, 0.2}, 5, filter)
	require.NoError(t, err)

	require.Len(t, results, 2)
	assert.Equal(t, int64(101), results[0].ID)
	assert.InDelta(t, 0.91, results[0].Score, 1e-9)
	assert.Equal(t, "metformin", results[0].Payload["text"])

	require.Len(t, fake.searchRequests, 1)
	req := fake.searchRequests[0]
	assert.Equal(t, float64(5), req["limit"])
	assert.Equal(t, true, req["with_payload"])
	assert.NotNil(t, req["filter"])
}

func TestSearch_EmptyVectorRejected(t *testing.T) {
	_, srv := newFakeQdrant(t, 1024)
	s := newTestStore(t, srv.URL)

	_, err := s.Search(context.Background(), "vocab", nil, 5, nil)
	var opError *OperationError
	require.ErrorAs(t, err, &opError)
	assert.Equal(t, OperationErrorValidation, opError.Code)
}

func TestUpsertBatch_WaitsForWrite(t *testing.T) {
	fake, srv := newFakeQdrant(t, 1024)
	s := newTestStore(t, srv.URL)

	err := s.UpsertBatch(context.Background(), "vocab", []Point{
		{ID: 1, Vector: []float32{0.1}, Payload: NewPayload("a", nil)},
	})
	require.NoError(t, err)
	require.Len(t, fake.upsertRequests, 1)
}

func TestUpsertBatch_EmptyVectorRejected(t *testing.T) {
	_, srv := newFakeQdrant(t, 1024)
	s := newTestStore(t, srv.URL)

	err := s.UpsertBatch(context.Background(), "vocab", []Point{{ID: 1}})
	var opError *OperationError
	require.ErrorAs(t, err, &opError)
	assert.Equal(t, OperationErrorValidation, opError.Code)
}

func TestEnsureCollection_ExistingMatchingSize(t *testing.T) {
	_, srv := newFakeQdrant(t, 1024)
	s := newTestStore(t, srv.URL)

	require.NoError(t, s.EnsureCollection(context.Background(), "vocab", 1024))
}

func TestEnsureCollection_DimensionMismatch(t *testing.T) {
	_, srv := newFakeQdrant(t, 768)
	s := newTestStore(t, srv.URL)

	err := s.EnsureCollection(context.Background(), "vocab", 1024)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrDimensionMismatch))
}

func TestEnsureCollection_CreatesMissing(t *testing.T) {
	_, srv := newFakeQdrant(t, 1024)
	s := newTestStore(t, srv.URL)

	require.NoError(t, s.EnsureCollection(context.Background(), "missing", 1024))
}

func TestSetIndexing_TogglesHNSW(t *testing.T) {
	fake, srv := newFakeQdrant(t, 1024)
	s := newTestStore(t, srv.URL)

	require.NoError(t, s.SetIndexing(context.Background(), "vocab", false))
	require.NoError(t, s.SetIndexing(context.Background(), "vocab", true))

	require.Len(t, fake.patchRequests, 2)
	disabled := fake.patchRequests[0]["hnsw_config"].(map[string]any)
	enabled := fake.patchRequests[1]["hnsw_config"].(map[string]any)
	assert.Equal(t, float64(0), disabled["m"])
	assert.Equal(t, float64(hnswM), enabled["m"])
}

func TestOperationError_Retryability(t *testing.T) {
	assert.True(t, (&OperationError{Code: OperationErrorTransportFailed}).IsRetryable())
	assert.True(t, (&OperationError{Code: OperationErrorTimeout}).IsRetryable())
	assert.True(t, (&OperationError{Code: OperationErrorQueryFailed, StatusCode: 503}).IsRetryable())
	assert.False(t, (&OperationError{Code: OperationErrorQueryFailed, StatusCode: 400}).IsRetryable())
	assert.False(t, (&OperationError{Code: OperationErrorValidation}).IsRetryable())
}

func TestListCollections(t *testing.T) {
	_, srv := newFakeQdrant(t, 3)
	s := newTestStore(t, srv.URL)

	names, err := s.ListCollections(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"concepts_main", "concepts_staging"}, names)
}

func TestInfo(t *testing.T) {
	_, srv := newFakeQdrant(t, 1024)
	s := newTestStore(t, srv.URL)

	info, err := s.Info(context.Background(), "concepts_main")
	require.NoError(t, err)
	assert.Equal(t, "concepts_main", info.Name)
	assert.Equal(t, int64(7), info.PointsCount)
	assert.Equal(t, 1024, info.VectorSize)
	assert.Equal(t, "green", info.Status)

	_, err = s.Info(context.Background(), "missing")
	var opErr *OperationError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, 404, opErr.StatusCode)
}
