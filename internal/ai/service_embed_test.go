package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	appErr "github.com/xxxsen/clinrag/internal/pkg/errors"
)

func TestServiceEmbedder(t *testing.T) {
	var got serviceEmbedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"embeddings":[[0.1,0.2,0.3]]}`))
	}))
	defer srv.Close()

	p, err := NewEmbedProvider("service", map[string]interface{}{"url": srv.URL})
	require.NoError(t, err)
	emb := NewEmbedder(p, "gte-base", 3)

	vec, err := emb.Embed(context.Background(), "chest pain", TaskQuery)
	require.NoError(t, err)
	require.Len(t, vec, 3)
	require.Equal(t, []string{"chest pain"}, got.Texts)
	require.Equal(t, serviceQueryInstruction, got.Instruction)

	_, err = emb.Embed(context.Background(), "note", TaskDocument)
	require.NoError(t, err)
	require.Equal(t, serviceDocumentInstruction, got.Instruction)
}

func TestServiceEmbedderValidatesResponse(t *testing.T) {
	tests := []struct {
		name string
		body string
		dim  int
	}{
		{name: "no embeddings", body: `{"embeddings":[]}`},
		{name: "two embeddings", body: `{"embeddings":[[1],[2]]}`},
		{name: "empty vector", body: `{"embeddings":[[]]}`},
		{name: "wrong dim", body: `{"embeddings":[[1,2]]}`, dim: 3},
		{name: "garbage", body: `<html>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()
			p, err := NewEmbedProvider("service", map[string]interface{}{"url": srv.URL})
			require.NoError(t, err)
			_, err = NewEmbedder(p, "m", tt.dim).Embed(context.Background(), "x", TaskQuery)
			var ue *appErr.UpstreamError
			require.ErrorAs(t, err, &ue)
			require.Equal(t, appErr.ServiceEmbedding, ue.Service)
			require.Equal(t, appErr.UpstreamBadResponse, ue.Kind)
		})
	}
}

func TestServiceEmbedderRequiresURL(t *testing.T) {
	_, err := NewEmbedProvider("service", map[string]interface{}{})
	require.ErrorIs(t, err, ErrUnavailable)
}
