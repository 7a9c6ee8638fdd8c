package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"

	appErr "github.com/xxxsen/clinrag/internal/pkg/errors"
)

const (
	serviceQueryInstruction    = "Represent the query for retrieval:"
	serviceDocumentInstruction = "Represent the clinical note for retrieval, to provide context for a search query."
)

// serviceEmbedConfig points at the standalone clinical embedding service,
// which takes a batch of texts plus an instruction prefix.
type serviceEmbedConfig struct {
	URL            string `json:"url"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

type serviceEmbedProvider struct {
	url    string
	client *http.Client
}

type serviceEmbedRequest struct {
	Texts       []string `json:"texts"`
	Instruction string   `json:"instruction"`
}

type serviceEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

func (p *serviceEmbedProvider) Name() string {
	return "service"
}

func (p *serviceEmbedProvider) Embed(ctx context.Context, model string, text string, taskType string) ([]float32, error) {
	instruction := serviceQueryInstruction
	if taskType == TaskDocument {
		instruction = serviceDocumentInstruction
	}
	data, err := json.Marshal(serviceEmbedRequest{Texts: []string{text}, Instruction: instruction})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := checkStatus("embedding service", resp); err != nil {
		return nil, err
	}
	var out serviceEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, appErr.BadResponse(appErr.ServiceEmbedding, "decode embedding response: %v", err)
	}
	if len(out.Embeddings) != 1 {
		return nil, appErr.BadResponse(appErr.ServiceEmbedding, "expected 1 embedding, got %d", len(out.Embeddings))
	}
	return out.Embeddings[0], nil
}

func createServiceEmbedFactory(args interface{}) (IEmbedProvider, error) {
	cfg := &serviceEmbedConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	url := strings.TrimSpace(cfg.URL)
	if url == "" {
		return nil, ErrUnavailable
	}
	timeout := cfg.TimeoutSeconds
	if timeout <= 0 {
		timeout = 30
	}
	return &serviceEmbedProvider{url: url, client: newHTTPClient(timeout)}, nil
}

func init() {
	RegisterEmbed("service", createServiceEmbedFactory)
}
