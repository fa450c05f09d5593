package vectorindex

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	opensearch "github.com/opensearch-project/opensearch-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/pdf-chat/backend/internal/model/kb"
)

// fakeCollection emulates the index endpoints of a serverless collection.
type fakeCollection struct {
	mu      sync.Mutex
	indices map[string]json.RawMessage
}

func (f *fakeCollection) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	name := r.URL.Path[1:]
	if name == "" {
		w.Write([]byte(`{"version":{"number":"2.11.0","distribution":"opensearch"}}`))
		return
	}

	_, exists := f.indices[name]
	switch r.Method {
	case http.MethodPut:
		if exists {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":{"type":"resource_already_exists_exception","reason":"index [` + name + `] already exists"},"status":400}`))
			return
		}
		body, _ := io.ReadAll(r.Body)
		f.indices[name] = body
		w.Write([]byte(`{"acknowledged":true,"index":"` + name + `"}`))
	case http.MethodHead:
		if !exists {
			w.WriteHeader(http.StatusNotFound)
		}
	case http.MethodDelete:
		if !exists {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":{"type":"index_not_found_exception","reason":"no such index"},"status":404}`))
			return
		}
		delete(f.indices, name)
		w.Write([]byte(`{"acknowledged":true}`))
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newTestClient(t *testing.T) (*Client, *fakeCollection) {
	t.Helper()
	collection := &fakeCollection{indices: map[string]json.RawMessage{}}
	srv := httptest.NewServer(collection)
	t.Cleanup(srv.Close)

	client, err := NewClient(opensearch.Config{Addresses: []string{srv.URL}}, nil)
	require.NoError(t, err)
	return client, collection
}

func TestClientCreate(t *testing.T) {
	client, collection := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.Create(ctx, "kb-docs", kb.DefaultIndexSchema()))

	var body struct {
		Mappings struct {
			Properties map[string]struct {
				Type      string `json:"type"`
				Dimension int    `json:"dimension"`
			} `json:"properties"`
		} `json:"mappings"`
	}
	require.NoError(t, json.Unmarshal(collection.indices["kb-docs"], &body))
	assert.Equal(t, "knn_vector", body.Mappings.Properties[kb.VectorField].Type)
	assert.Equal(t, 1536, body.Mappings.Properties[kb.VectorField].Dimension)
	assert.Equal(t, "text", body.Mappings.Properties[kb.TextField].Type)
	assert.Equal(t, "text", body.Mappings.Properties[kb.MetadataField].Type)

	err := client.Create(ctx, "kb-docs", kb.DefaultIndexSchema())
	assert.ErrorIs(t, err, ErrIndexExists)
}

func TestClientExistsAndDelete(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	ok, err := client.Exists(ctx, "kb-docs")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, client.Create(ctx, "kb-docs", kb.DefaultIndexSchema()))
	ok, err = client.Exists(ctx, "kb-docs")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, client.Delete(ctx, "kb-docs"))
	assert.ErrorIs(t, client.Delete(ctx, "kb-docs"), ErrIndexNotFound)
}

func TestNormalizeEndpoint(t *testing.T) {
	assert.Equal(t, "https://abc.us-east-1.aoss.amazonaws.com", NormalizeEndpoint("abc.us-east-1.aoss.amazonaws.com"))
	assert.Equal(t, "http://localhost:9200", NormalizeEndpoint("http://localhost:9200/"))
}

func TestDecodeErrorPlainString(t *testing.T) {
	apiErr := decodeError(403, strings.NewReader(`{"error":"forbidden"}`))
	assert.Equal(t, "forbidden", apiErr.Reason)
	assert.Contains(t, apiErr.Error(), "403")
}
