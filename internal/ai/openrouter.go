package ai

import (
	"strings"
)

const defaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"

type openrouterConfig struct {
	APIKey         string   `json:"api_key"`
	BaseURL        string   `json:"base_url"`
	HTTPReferer    string   `json:"http_referer"`
	XTitle         string   `json:"x_title"`
	Temperature    *float64 `json:"temperature"`
	MaxTokens      int      `json:"max_tokens"`
	TimeoutSeconds int      `json:"timeout_seconds"`
}

// OpenRouter speaks the OpenAI chat protocol plus two attribution headers.
func createOpenRouterFactory(args interface{}) (IAIProvider, error) {
	cfg := &openrouterConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, ErrUnavailable
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultOpenRouterBaseURL
	}
	headers := map[string]string{}
	if v := strings.TrimSpace(cfg.HTTPReferer); v != "" {
		headers["HTTP-Referer"] = v
	}
	if v := strings.TrimSpace(cfg.XTitle); v != "" {
		headers["X-Title"] = v
	}
	temperature := defaultOpenAITemperature
	if cfg.Temperature != nil {
		temperature = *cfg.Temperature
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultOpenAIMaxTokens
	}
	return &openAIProvider{
		name:        "openrouter",
		apiKey:      apiKey,
		baseURL:     baseURL,
		temperature: temperature,
		maxTokens:   maxTokens,
		headers:     headers,
		client:      newHTTPClient(cfg.TimeoutSeconds),
	}, nil
}

func init() {
	Register("openrouter", createOpenRouterFactory)
}
