package search_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/quarry-data/quarry/modules/catalog/infrastructure/search"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *search.ElasticClient {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	client, err := search.NewElasticClient(search.Config{Addresses: []string{srv.URL}})
	require.NoError(t, err)
	return client
}

func TestElasticClient_IndexExists(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodHead, r.Method)
		require.Equal(t, "/datasets", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	})

	exists, err := client.IndexExists(context.Background(), "datasets")
	require.NoError(t, err)
	require.True(t, exists)
}

func TestElasticClient_IndexExists_Missing(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	exists, err := client.IndexExists(context.Background(), "datasets")
	require.NoError(t, err)
	require.False(t, exists)
}

func TestElasticClient_CreateIndex_SendsMapping(t *testing.T) {
	var body string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		require.Equal(t, "/datasets", r.URL.Path)
		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		body = string(raw)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"acknowledged":true}`))
	})

	require.NoError(t, client.CreateIndex(context.Background(), "datasets", search.DatasetsMapping))
	require.Contains(t, body, `"dataset_id"`)
	require.Contains(t, body, `"keyword"`)
	require.Contains(t, body, `"checksum"`)
	require.Contains(t, body, `"period_start"`)
	require.Contains(t, body, `"updated_at"`)
}

func TestElasticClient_UpsertDocument(t *testing.T) {
	now := time.Now().UTC()
	var path string
	var got search.Document
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		path = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"result":"updated"}`))
	})

	doc := &search.Document{
		DatasetID:  "d1",
		FileName:   "flows.parquet",
		Checksum:   "sha256:aabbcc",
		SizeBytes:  42,
		UploadedAt: now,
		UpdatedAt:  now,
	}
	require.NoError(t, client.UpsertDocument(context.Background(), "datasets", "doc-1", doc))
	require.True(t, strings.HasSuffix(path, "/datasets/_doc/doc-1"), "unexpected path %s", path)
	require.Equal(t, "flows.parquet", got.FileName)
	require.Equal(t, "sha256:aabbcc", got.Checksum)
	require.True(t, got.UpdatedAt.Equal(now))
}

func TestElasticClient_UpsertDocument_ErrorBecomesIndexError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"shard failure"}`))
	})

	err := client.UpsertDocument(context.Background(), "datasets", "doc-1", &search.Document{DatasetID: "d1"})

	var indexErr *search.IndexError
	require.ErrorAs(t, err, &indexErr)
	require.Equal(t, http.StatusServiceUnavailable, indexErr.StatusCode)
	require.Contains(t, indexErr.Body, "shard failure")
}
