package openai

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

// Client speaks the OpenAI-compatible chat/embeddings protocol. It covers
// both api.openai.com and self-hosted compatible servers.
type Client struct {
	baseURL     string
	apiKey      string
	genModel    string
	embedModel  string
	visionModel string

	genClient   *http.Client
	embedClient *http.Client
	limiter     *rate.Limiter
}

func New(baseURL, apiKey, genModel, embedModel, visionModel string, genTimeout, embedTimeout time.Duration, requestsPerSecond float64) *Client {
	if genTimeout <= 0 {
		genTimeout = 120 * time.Second
	}
	if embedTimeout <= 0 {
		embedTimeout = 60 * time.Second
	}
	if requestsPerSecond <= 0 {
		requestsPerSecond = 8
	}
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		apiKey:      apiKey,
		genModel:    genModel,
		embedModel:  embedModel,
		visionModel: visionModel,
		genClient:   &http.Client{Timeout: genTimeout},
		embedClient: &http.Client{Timeout: embedTimeout},
		limiter:     rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
	}
}

func (c *Client) Provider() domain.Provider {
	return domain.Provider{
		Kind:        domain.ProviderOpenAI,
		Name:        "openai",
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

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *Client) GenerateText(ctx context.Context, prompt, model string) (string, error) {
	if model == "" {
		model = c.genModel
	}
	return c.chat(ctx, model, []chatMessage{{Role: "user", Content: prompt}}, nil)
}

func (c *Client) GenerateJSON(ctx context.Context, prompt, model string, out any) error {
	if model == "" {
		model = c.genModel
	}
	raw, err := c.chat(ctx, model, []chatMessage{{Role: "user", Content: prompt}}, map[string]string{"type": "json_object"})
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return fmt.Errorf("parse generated json: %w", err)
	}
	return nil
}

func (c *Client) Embed(ctx context.Context, text, model string) ([]float32, error) {
	if model == "" {
		model = c.embedModel
	}
	var response struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	err := c.postJSON(ctx, c.embedClient, "/embeddings", map[string]any{
		"model": model,
		"input": text,
	}, &response, "embed")
	if err != nil {
		return nil, err
	}
	if len(response.Data) == 0 || len(response.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}
	return response.Data[0].Embedding, nil
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
		{"type": "text", "text": prompt},
		{"type": "image_url", "image_url": map[string]string{
			"url": "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(data),
		}},
	}
	return c.chat(ctx, model, []chatMessage{{Role: "user", Content: content}}, nil)
}

func (c *Client) chat(ctx context.Context, model string, messages []chatMessage, responseFormat map[string]string) (string, error) {
	request := map[string]any{
		"model":    model,
		"messages": messages,
	}
	if responseFormat != nil {
		request["response_format"] = responseFormat
	}
	var response chatResponse
	if err := c.postJSON(ctx, c.genClient, "/chat/completions", request, &response, "chat"); err != nil {
		return "", err
	}
	if len(response.Choices) == 0 {
		return "", fmt.Errorf("empty chat response")
	}
	return strings.TrimSpace(response.Choices[0].Message.Content), nil
}

func (c *Client) postJSON(ctx context.Context, client *http.Client, path string, payload any, out any, operation string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", operation, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return domain.WrapError(domain.ErrTemporary, operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		msg := strings.TrimSpace(string(raw))
		if isContextLengthBody(msg) {
			return domain.WrapError(domain.ErrContextLength, operation, fmt.Errorf("openai status %s: %s", resp.Status, msg))
		}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return domain.WrapError(domain.ErrTemporary, operation, fmt.Errorf("openai status %s: %s", resp.Status, msg))
		}
		return fmt.Errorf("openai %s status: %s: %s", operation, resp.Status, msg)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}

func isContextLengthBody(body string) bool {
	lower := strings.ToLower(body)
	return strings.Contains(lower, "context length") ||
		strings.Contains(lower, "maximum context") ||
		strings.Contains(lower, "context_length_exceeded")
}
