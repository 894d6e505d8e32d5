package ollama

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/ryanlane/archive-brain/internal/core/domain"
	"github.com/ryanlane/archive-brain/internal/infrastructure/resilience"
)

// Options tunes timeouts and throughput toward one Ollama server.
type Options struct {
	GenTimeout        time.Duration
	EmbedTimeout      time.Duration
	VisionTimeout     time.Duration
	RequestsPerSecond float64
}

type Client struct {
	baseURL     string
	genModel    string
	embedModel  string
	visionModel string

	genClient    *http.Client
	embedClient  *http.Client
	visionClient *http.Client

	limiter *rate.Limiter
	exec    *resilience.Executor
}

func New(baseURL, genModel, embedModel, visionModel string, opts Options) *Client {
	if opts.GenTimeout <= 0 {
		opts.GenTimeout = 120 * time.Second
	}
	if opts.EmbedTimeout <= 0 {
		opts.EmbedTimeout = 60 * time.Second
	}
	if opts.VisionTimeout <= 0 {
		opts.VisionTimeout = 180 * time.Second
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 8
	}
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		genModel:     genModel,
		embedModel:   embedModel,
		visionModel:  visionModel,
		genClient:    &http.Client{Timeout: opts.GenTimeout},
		embedClient:  &http.Client{Timeout: opts.EmbedTimeout},
		visionClient: &http.Client{Timeout: opts.VisionTimeout},
		limiter:      rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1),
		exec:         resilience.NewExecutor(resilience.DefaultConfig()),
	}
}

func (c *Client) Provider() domain.Provider {
	return domain.Provider{
		Kind:        domain.ProviderOllama,
		Name:        "ollama",
		BaseURL:     c.baseURL,
		ChatModel:   c.genModel,
		EmbedModel:  c.embedModel,
		VisionModel: c.visionModel,
		Capabilities: domain.Capabilities{
			Chat:      true,
			Embedding: true,
			Vision:    c.visionModel != "",
		},
	}
}

func (c *Client) GenerateText(ctx context.Context, prompt, model string) (string, error) {
	if model == "" {
		model = c.genModel
	}
	return c.generate(ctx, map[string]any{
		"model":  model,
		"prompt": prompt,
		"stream": false,
	})
}

func (c *Client) GenerateJSON(ctx context.Context, prompt, model string, out any) error {
	if model == "" {
		model = c.genModel
	}
	raw, err := c.generate(ctx, map[string]any{
		"model":  model,
		"prompt": prompt,
		"stream": false,
		"format": "json",
	})
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(extractJSONObject(raw)), out); err != nil {
		return fmt.Errorf("parse generated json: %w", err)
	}
	return nil
}

func (c *Client) Embed(ctx context.Context, text, model string) ([]float32, error) {
	if model == "" {
		model = c.embedModel
	}
	request := map[string]any{
		"model":  model,
		"prompt": text,
	}

	var response struct {
		Embedding []float32 `json:"embedding"`
	}
	err := c.exec.Execute(ctx, "embed", func(ctx context.Context) error {
		return c.postJSON(ctx, c.embedClient, "/api/embeddings", request, &response, "embed")
	}, classifyOllamaError)
	if err != nil {
		return nil, wrapTemporaryIfNeeded("embed", err)
	}
	if len(response.Embedding) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}
	return response.Embedding, nil
}

func (c *Client) DescribeImage(ctx context.Context, path, model, prompt string) (string, error) {
	if model == "" {
		model = c.visionModel
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}

	var response struct {
		Response string `json:"response"`
	}
	request := map[string]any{
		"model":  model,
		"prompt": prompt,
		"stream": false,
		"images": []string{base64.StdEncoding.EncodeToString(data)},
	}
	err = c.exec.Execute(ctx, "describe_image", func(ctx context.Context) error {
		return c.postJSON(ctx, c.visionClient, "/api/generate", request, &response, "describe_image")
	}, classifyOllamaError)
	if err != nil {
		return "", wrapTemporaryIfNeeded("describe_image", err)
	}
	return strings.TrimSpace(response.Response), nil
}

func (c *Client) generate(ctx context.Context, reqBody map[string]any) (string, error) {
	var response struct {
		Response string `json:"response"`
	}
	err := c.exec.Execute(ctx, "generate", func(ctx context.Context) error {
		return c.postJSON(ctx, c.genClient, "/api/generate", reqBody, &response, "generate")
	}, classifyOllamaError)
	if err != nil {
		return "", wrapTemporaryIfNeeded("generate", err)
	}
	return strings.TrimSpace(response.Response), nil
}

func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}
