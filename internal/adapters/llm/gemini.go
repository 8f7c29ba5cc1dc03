package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

const geminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// rateLimitWait es la espera fija ante un 429; la cuota gratuita de
// Gemini se repone por minuto.
const rateLimitWait = 60 * time.Second

// GeminiClient habla con la API REST de Gemini. A diferencia de Ollama,
// aquí se fuerza la estructura con responseSchema, así que la respuesta
// rara vez necesita recuperación.
type GeminiClient struct {
	http      *resty.Client
	model     string
	apiKey    string
	topP      float64
	maxTokens int
	log       *slog.Logger
}

type geminiRequest struct {
	SystemInstruction *geminiContent  `json:"system_instruction,omitempty"`
	Contents          []geminiContent `json:"contents"`
	GenerationConfig  geminiGenConfig `json:"generationConfig"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenConfig struct {
	Temperature      float64         `json:"temperature"`
	TopP             float64         `json:"topP"`
	MaxOutputTokens  int             `json:"maxOutputTokens"`
	ResponseMIMEType string          `json:"responseMimeType"`
	ResponseSchema   json.RawMessage `json:"responseSchema,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// decisionSchema fuerza los campos del veredicto; los nombres coinciden
// con los que el parser canonicaliza.
var decisionSchema = json.RawMessage(`{
  "type": "OBJECT",
  "properties": {
    "karar": {"type": "STRING"},
    "guven": {"type": "INTEGER"},
    "giris_fiyati": {"type": "NUMBER"},
    "stop_loss": {"type": "NUMBER"},
    "take_profit": {"type": "NUMBER"},
    "gerekce": {"type": "STRING"}
  },
  "required": ["karar", "guven", "gerekce"]
}`)

// NewGeminiClient crea el cliente de la API cloud.
func NewGeminiClient(model, apiKey string, topP float64, maxTokens int, timeout time.Duration) *GeminiClient {
	return &GeminiClient{
		http: resty.New().
			SetBaseURL(geminiBaseURL).
			SetTimeout(timeout).
			SetHeader("Content-Type", "application/json"),
		model:     model,
		apiKey:    apiKey,
		topP:      topP,
		maxTokens: maxTokens,
		log:       slog.Default().With("component", "gemini", "model", model),
	}
}

// Generate implementa ports.Judge. Un 429 espera un minuto y reintenta
// una única vez; cualquier otro error HTTP se devuelve tal cual.
func (c *GeminiClient) Generate(ctx context.Context, prompt, system string, temperature float64) (string, error) {
	req := geminiRequest{
		Contents: []geminiContent{
			{Parts: []geminiPart{{Text: prompt}}},
		},
		GenerationConfig: geminiGenConfig{
			Temperature:      temperature,
			TopP:             c.topP,
			MaxOutputTokens:  c.maxTokens,
			ResponseMIMEType: "application/json",
			ResponseSchema:   decisionSchema,
		},
	}
	if system != "" {
		req.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: system}}}
	}

	for attempt := 0; ; attempt++ {
		text, status, err := c.call(ctx, req)
		if err == nil {
			return text, nil
		}
		if status == http.StatusTooManyRequests && attempt == 0 {
			c.log.Warn("rate limited, backing off", "wait", rateLimitWait)
			select {
			case <-ctx.Done():
				return "", fmt.Errorf("llm.Gemini.Generate: %w", ctx.Err())
			case <-time.After(rateLimitWait):
			}
			continue
		}
		return "", err
	}
}

func (c *GeminiClient) call(ctx context.Context, req geminiRequest) (string, int, error) {
	var out geminiResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("key", c.apiKey).
		SetBody(req).
		SetResult(&out).
		Post(fmt.Sprintf("/models/%s:generateContent", c.model))
	if err != nil {
		return "", 0, fmt.Errorf("llm.Gemini.Generate: request failed: %w", err)
	}
	if resp.IsError() {
		return "", resp.StatusCode(), fmt.Errorf("llm.Gemini.Generate: status %d: %s", resp.StatusCode(), resp.String())
	}
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		return "", resp.StatusCode(), fmt.Errorf("llm.Gemini.Generate: empty candidate set")
	}
	return out.Candidates[0].Content.Parts[0].Text, resp.StatusCode(), nil
}
