// Package vector is a Qdrant-backed vector index client speaking the
// REST API directly: collection lifecycle, filtered nearest-neighbor
// search, batch upsert and the HNSW indexing toggle used by bulk
// embedding runs.
package vector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/medmap-labs/medmap-engine/pkg/apperrors"
)

const (
	// hnswM is the HNSW graph connectivity when indexing is enabled;
	// 0 disables index maintenance entirely during bulk upserts.
	hnswM = 16

	maxErrorBodyBytes = 1024
)

// Store is a client for one Qdrant instance. Collections are addressed
// per call so a single Store can manage multiple collections.
type Store struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

// Config holds connection settings for the vector index.
type Config struct {
	URL     string
	Timeout time.Duration
}

// NewStore creates a vector index client and verifies the instance is
// reachable.
func NewStore(ctx context.Context, cfg Config, logger *zap.Logger) (*Store, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, fmt.Errorf("vector index URL is required")
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}

	s := &Store{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  logger.Named("vector"),
	}

	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

type envelope struct {
	Result json.RawMessage `json:"result"`
	Status json.RawMessage `json:"status"`
}

type searchResultItem struct {
	ID      int64          `json:"id"`
	Score   float64        `json:"score"`
	Payload map[string]any `json:"payload"`
}

// CollectionInfo describes an existing collection.
type CollectionInfo struct {
	Name        string
	PointsCount int64
	VectorSize  int
	Status      string
}

// EnsureCollection creates the collection if it does not exist. An
// existing collection with a different vector size is a configuration
// error, not something to reconcile: dimension changes require a new
// collection name.
func (s *Store) EnsureCollection(ctx context.Context, name string, vectorSize int) error {
	const op = "ensure_collection"
	if vectorSize <= 0 {
		return opErr(op, OperationErrorValidation, fmt.Sprintf("invalid vector size %d", vectorSize), nil)
	}

	info, err := s.collectionInfo(ctx, name)
	if err == nil {
		if info.VectorSize != 0 && info.VectorSize != vectorSize {
			return &OperationError{
				Code:      OperationErrorValidation,
				Operation: op,
				Message: fmt.Sprintf("collection %q has vector size %d, want %d",
					name, info.VectorSize, vectorSize),
				Cause: apperrors.ErrDimensionMismatch,
			}
		}
		return nil
	}

	var opError *OperationError
	if !errors.As(err, &opError) || opError.StatusCode != http.StatusNotFound {
		return err
	}

	// Collections start with indexing disabled; the first bulk embed
	// run re-enables it when it finishes.
	req := map[string]any{
		"vectors": map[string]any{
			"size":     vectorSize,
			"distance": "Cosine",
			"on_disk":  true,
		},
		"hnsw_config": map[string]any{"m": 0},
	}
	if err := s.doJSON(ctx, op, http.MethodPut, "/collections/"+name, req, nil); err != nil {
		return err
	}

	s.logger.Info("Created vector collection",
		zap.String("collection", name),
		zap.Int("vector_size", vectorSize))
	return nil
}

// Search runs a filtered nearest-neighbor query and returns up to k
// scored points. The filter is applied server-side.
func (s *Store) Search(ctx context.Context, collection string, queryVector []float32, k int, filter *Filter) ([]ScoredPoint, error) {
	const op = "search"
	if len(queryVector) == 0 {
		return nil, opErr(op, OperationErrorValidation, "query vector required", nil)
	}
	if k <= 0 {
		k = 10
	}

	req := map[string]any{
		"vector":       queryVector,
		"limit":        k,
		"with_payload": true,
		"with_vector":  false,
	}
	if fm := filter.asMap(); fm != nil {
		req["filter"] = fm
	}

	var items []searchResultItem
	if err := s.doJSON(ctx, op, http.MethodPost, "/collections/"+collection+"/points/search", req, &items); err != nil {
		return nil, err
	}

	out := make([]ScoredPoint, 0, len(items))
	for _, item := range items {
		out = append(out, ScoredPoint{
			ID:      item.ID,
			Score:   item.Score,
			Payload: item.Payload,
		})
	}
	return out, nil
}

// UpsertBatch writes points with their payloads. Writes are idempotent
// under point-ID collision: last write wins.
func (s *Store) UpsertBatch(ctx context.Context, collection string, points []Point) error {
	const op = "upsert"
	if len(points) == 0 {
		return nil
	}
	for _, p := range points {
		if len(p.Vector) == 0 {
			return opErr(op, OperationErrorValidation,
				fmt.Sprintf("point %d has an empty vector", p.ID), nil)
		}
	}

	req := map[string]any{"points": points}
	return s.doJSON(ctx, op, http.MethodPut, "/collections/"+collection+"/points?wait=true", req, nil)
}

// SetIndexing toggles HNSW index maintenance for a collection. Bulk
// embedding disables it before a large upsert run and re-enables it
// afterward. This is a collection-wide mutating call: only one bulk
// embedding job may run against a collection at a time.
func (s *Store) SetIndexing(ctx context.Context, collection string, enabled bool) error {
	const op = "set_indexing"
	m := 0
	if enabled {
		m = hnswM
	}

	req := map[string]any{
		"hnsw_config": map[string]any{"m": m},
	}
	if err := s.doJSON(ctx, op, http.MethodPatch, "/collections/"+collection, req, nil); err != nil {
		return err
	}

	s.logger.Info("Toggled index maintenance",
		zap.String("collection", collection),
		zap.Bool("enabled", enabled))
	return nil
}

// DeletePoints removes points by ID.
func (s *Store) DeletePoints(ctx context.Context, collection string, pointIDs []int64) error {
	const op = "delete_points"
	if len(pointIDs) == 0 {
		return nil
	}
	req := map[string]any{"points": pointIDs}
	return s.doJSON(ctx, op, http.MethodPost, "/collections/"+collection+"/points/delete?wait=true", req, nil)
}

// DeleteCollection drops a collection.
func (s *Store) DeleteCollection(ctx context.Context, collection string) error {
	return s.doJSON(ctx, "delete_collection", http.MethodDelete, "/collections/"+collection, nil, nil)
}

// ListCollections returns the names of all collections.
func (s *Store) ListCollections(ctx context.Context) ([]string, error) {
	var result struct {
		Collections []struct {
			Name string `json:"name"`
		} `json:"collections"`
	}
	if err := s.doJSON(ctx, "list_collections", http.MethodGet, "/collections", nil, &result); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(result.Collections))
	for _, c := range result.Collections {
		names = append(names, c.Name)
	}
	return names, nil
}

// Info returns point count and vector configuration for a collection.
func (s *Store) Info(ctx context.Context, collection string) (*CollectionInfo, error) {
	return s.collectionInfo(ctx, collection)
}

func (s *Store) collectionInfo(ctx context.Context, collection string) (*CollectionInfo, error) {
	const op = "collection_info"
	var result struct {
		Status      string `json:"status"`
		PointsCount int64  `json:"points_count"`
		Config      struct {
			Params struct {
				Vectors struct {
					Size int `json:"size"`
				} `json:"vectors"`
			} `json:"params"`
		} `json:"config"`
	}
	if err := s.doJSON(ctx, op, http.MethodGet, "/collections/"+collection, nil, &result); err != nil {
		return nil, err
	}

	return &CollectionInfo{
		Name:        collection,
		PointsCount: result.PointsCount,
		VectorSize:  result.Config.Params.Vectors.Size,
		Status:      result.Status,
	}, nil
}

func (s *Store) ready(ctx context.Context) error {
	const op = "ready"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/readyz", nil)
	if err != nil {
		return opErr(op, OperationErrorTransportFailed, "build ready request failed", err)
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return classifyCallError(op, "vector index ready check failed", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &OperationError{
			Code:       OperationErrorQueryFailed,
			Operation:  op,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("ready check returned status %d", resp.StatusCode),
		}
	}
	return nil
}

func (s *Store) doJSON(ctx context.Context, op, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(in); err != nil {
			return opErr(op, OperationErrorEncodeFailed, "encode request failed", err)
		}
		body = &buf
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		return opErr(op, OperationErrorTransportFailed, "build request failed", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return classifyCallError(op, "vector index request failed", err)
	}
	defer resp.Body.Close()

	raw, readErr := io.ReadAll(io.LimitReader(resp.Body, 10*maxErrorBodyBytes))
	if readErr != nil {
		return opErr(op, OperationErrorDecodeFailed, "read response failed", readErr)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &OperationError{
			Code:       OperationErrorQueryFailed,
			Operation:  op,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("status=%d body=%q", resp.StatusCode, truncateBody(raw)),
		}
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return opErr(op, OperationErrorDecodeFailed, "decode response envelope failed", err)
	}
	if statusErr := parseEnvelopeStatus(env.Status); statusErr != "" {
		return &OperationError{
			Code:       OperationErrorQueryFailed,
			Operation:  op,
			StatusCode: resp.StatusCode,
			Message:    statusErr,
		}
	}

	if out == nil || len(env.Result) == 0 || string(env.Result) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return opErr(op, OperationErrorDecodeFailed, "decode result failed", err)
	}
	return nil
}

func classifyCallError(op, message string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return opErr(op, OperationErrorTimeout, message, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return opErr(op, OperationErrorTimeout, message, err)
	}
	return opErr(op, OperationErrorTransportFailed, message, err)
}

func parseEnvelopeStatus(raw json.RawMessage) string {
	status := strings.TrimSpace(string(raw))
	if status == "" || status == "null" {
		return ""
	}

	var statusString string
	if err := json.Unmarshal(raw, &statusString); err == nil {
		if strings.EqualFold(statusString, "ok") {
			return ""
		}
		return fmt.Sprintf("status=%q", statusString)
	}

	var statusObject struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &statusObject); err == nil && strings.TrimSpace(statusObject.Error) != "" {
		return strings.TrimSpace(statusObject.Error)
	}

	return "status=" + status
}

func truncateBody(raw []byte) string {
	if len(raw) <= maxErrorBodyBytes {
		return string(raw)
	}
	return string(raw[:maxErrorBodyBytes]) + "..."
}
