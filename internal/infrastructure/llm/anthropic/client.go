package anthropic

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/ryanlane/archive-brain/internal/core/domain"
)

const apiVersion = "2023-06-01"

// Client speaks the Anthropic messages API. The provider has no embedding
// endpoint, so Embed always fails and the capability flag says so; callers
// pair it with an embedding-capable backend.
type Client struct {
	baseURL     string
	apiKey      string
	genModel    string
	visionModel string

	httpClient *http.Client
	limiter    *rate.Limiter
}

func New(baseURL, apiKey, genModel, visionModel string, genTimeout time.Duration, requestsPerSecond float64) *Client {
	if genTimeout <= 0 {
		genTimeout = 120 * time.Second
	}
	if requestsPerSecond <= 0 {
		requestsPerSecond = 8
	}
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		apiKey:      apiKey,
		genModel:    genModel,
		visionModel: visionModel,
		httpClient:  &http.Client{Timeout: genTimeout},
		limiter:     rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
	}
}

func (c *Client) Provider() domain.Provider {
	return domain.Provider{
		Kind:        domain.ProviderAnthropic,
		Name:        "anthropic",
		BaseURL:     c.baseURL,
		ChatModel:   c.genModel,
		VisionModel: c.visionModel,
		Capabilities: domain.Capabilities{
			Chat:      true,
			Embedding: false,
			Vision:    c.visionModel != "",
		},
	}
}

type message struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

func (c *Client) GenerateText(ctx context.Context, prompt, model string) (string, error) {
	if model == "" {
		model = c.genModel
	}
	return c.messages(ctx, model, []message{{Role: "user", Content: prompt}})
}

func (c *Client) GenerateJSON(ctx context.Context, prompt, model string, out any) error {
	raw, err := c.GenerateText(ctx, prompt, model)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(extractJSONObject(raw)), out); err != nil {
		return fmt.Errorf("parse generated json: %w", err)
	}
	return nil
}

func (c *Client) Embed(ctx context.Context, text, model string) ([]float32, error) {
	return nil, domain.WrapError(domain.ErrInvalidInput, "embed", fmt.Errorf("anthropic backend has no embedding endpoint"))
}

func (c *Client) DescribeImage(ctx context.Context, path, model, prompt string) (string, error) {
	if model == "" {
		model = c.visionModel
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}
	content := []map[string]any{
		{
			"type": "image",
			"source": map[string]string{
				"type":       "base64",
				"media_type": "image/jpeg",
				"data":       base64.StdEncoding.EncodeToString(data),
			},
		},
		{"type": "text", "text": prompt},
	}
	return c.messages(ctx, model, []message{{Role: "user", Content: content}})
}

func (c *Client) messages(ctx context.Context, model string, messages []message) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}
	body, err := json.Marshal(map[string]any{
		"model":      model,
		"max_tokens": 1024,
		"messages":   messages,
	})
	if err != nil {
		return "", fmt.Errorf("marshal messages request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create messages request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", apiVersion)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", domain.WrapError(domain.ErrTemporary, "messages", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		msg := strings.TrimSpace(string(raw))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return "", domain.WrapError(domain.ErrTemporary, "messages", fmt.Errorf("anthropic status %s: %s", resp.Status, msg))
		}
		return "", fmt.Errorf("anthropic messages status: %s: %s", resp.Status, msg)
	}

	var response messagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return "", fmt.Errorf("decode messages response: %w", err)
	}
	for _, block := range response.Content {
		if block.Type == "text" {
			return strings.TrimSpace(block.Text), nil
		}
	}
	return "", fmt.Errorf("empty messages response")
}

func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}
