package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"
)

// OllamaClient habla con un servidor Ollama local via /api/generate.
// Con format=json el modelo casi siempre responde JSON válido, pero los
// modelos razonadores (deepseek-r1) siguen colando bloques <think>; la
// recuperación de eso vive en el parser, no aquí.
type OllamaClient struct {
	http      *resty.Client
	model     string
	topP      float64
	maxTokens int
	log       *slog.Logger
}

type ollamaRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	System  string         `json:"system,omitempty"`
	Format  string         `json:"format,omitempty"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type ollamaResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// NewOllamaClient crea el cliente apuntando a host (p.ej.
// http://127.0.0.1:11434).
func NewOllamaClient(host, model string, topP float64, maxTokens int, timeout time.Duration) *OllamaClient {
	return &OllamaClient{
		http: resty.New().
			SetBaseURL(host).
			SetTimeout(timeout).
			SetHeader("Content-Type", "application/json"),
		model:     model,
		topP:      topP,
		maxTokens: maxTokens,
		log:       slog.Default().With("component", "ollama", "model", model),
	}
}

// Generate implementa ports.Judge.
func (c *OllamaClient) Generate(ctx context.Context, prompt, system string, temperature float64) (string, error) {
	req := ollamaRequest{
		Model:  c.model,
		Prompt: prompt,
		System: system,
		Format: "json",
		Stream: false,
		Options: map[string]any{
			"temperature": temperature,
			"top_p":       c.topP,
			"num_predict": c.maxTokens,
			"num_ctx":     8192,
		},
	}

	var out ollamaResponse
	start := time.Now()
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		Post("/api/generate")
	if err != nil {
		return "", fmt.Errorf("llm.Ollama.Generate: request failed: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("llm.Ollama.Generate: status %d: %s", resp.StatusCode(), resp.String())
	}

	c.log.Debug("generation complete", "elapsed", time.Since(start).Round(time.Millisecond), "chars", len(out.Response))
	return out.Response, nil
}
