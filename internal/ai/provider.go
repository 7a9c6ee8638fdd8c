package ai

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"

	appErr "github.com/xxxsen/clinrag/internal/pkg/errors"
)

var ErrUnavailable = errors.New("ai provider unavailable")

// Embedding task types. Providers map them onto their own notion of an
// instruction or task.
const (
	TaskQuery    = "RETRIEVAL_QUERY"
	TaskDocument = "RETRIEVAL_DOCUMENT"
)

type IAIProvider interface {
	Name() string
	GenerateStream(ctx context.Context, model string, prompt string) iter.Seq2[string, error]
}

type IEmbedProvider interface {
	Name() string
	Embed(ctx context.Context, model string, text string, taskType string) ([]float32, error)
}

// IGenerator streams model output. Callers that need the whole text collect
// the chunks themselves.
type IGenerator interface {
	GenerateStream(ctx context.Context, prompt string) iter.Seq2[string, error]
}

type IEmbedder interface {
	Embed(ctx context.Context, text string, taskType string) ([]float32, error)
	ModelName() string
}

type generator struct {
	provider IAIProvider
	model    string
}

func NewGenerator(p IAIProvider, model string) IGenerator {
	return &generator{provider: p, model: model}
}

func (g *generator) GenerateStream(ctx context.Context, prompt string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for chunk, err := range g.provider.GenerateStream(ctx, g.model, prompt) {
			if err != nil {
				yield("", appErr.Upstream(appErr.ServiceLLM, err))
				return
			}
			if !yield(chunk, nil) {
				return
			}
		}
	}
}

type embedder struct {
	provider IEmbedProvider
	model    string
	dim      int
}

// NewEmbedder binds a provider to a model. When dim is positive every vector
// returned must have exactly that length.
func NewEmbedder(p IEmbedProvider, model string, dim int) IEmbedder {
	return &embedder{provider: p, model: model, dim: dim}
}

func (e *embedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	res, err := e.provider.Embed(ctx, e.model, text, taskType)
	if err != nil {
		return nil, appErr.Upstream(appErr.ServiceEmbedding, err)
	}
	if len(res) == 0 {
		return nil, appErr.BadResponse(appErr.ServiceEmbedding, "empty embedding")
	}
	if e.dim > 0 && len(res) != e.dim {
		return nil, appErr.BadResponse(appErr.ServiceEmbedding, "embedding dim %d, want %d", len(res), e.dim)
	}
	return res, nil
}

func (e *embedder) ModelName() string {
	return e.model
}

type ProviderFactory func(args interface{}) (IAIProvider, error)

type EmbedProviderFactory func(args interface{}) (IEmbedProvider, error)

var (
	registry      = map[string]ProviderFactory{}
	embedRegistry = map[string]EmbedProviderFactory{}
)

func Register(name string, factory ProviderFactory) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || factory == nil {
		return
	}
	registry[key] = factory
}

func RegisterEmbed(name string, factory EmbedProviderFactory) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || factory == nil {
		return
	}
	embedRegistry[key] = factory
}

func NewProvider(name string, args interface{}) (IAIProvider, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return nil, fmt.Errorf("ai.provider is required")
	}
	factory := registry[key]
	if factory == nil {
		return nil, fmt.Errorf("unsupported ai provider: %s", name)
	}
	return factory(args)
}

func NewEmbedProvider(name string, args interface{}) (IEmbedProvider, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return nil, fmt.Errorf("ai.embed_provider is required")
	}
	factory := embedRegistry[key]
	if factory == nil {
		return nil, fmt.Errorf("unsupported embed provider: %s", name)
	}
	return factory(args)
}
