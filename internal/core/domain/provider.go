package domain

// ProviderKind identifies which backend protocol a provider speaks.
type ProviderKind string

const (
	ProviderOllama    ProviderKind = "ollama"
	ProviderOpenAI    ProviderKind = "openai"
	ProviderAnthropic ProviderKind = "anthropic"
)

// Capabilities flags what a provider can do.
type Capabilities struct {
	Chat      bool `json:"chat"`
	Embedding bool `json:"embedding"`
	Vision    bool `json:"vision"`
}

// Provider is a registered LLM backend. The pipeline consumes providers
// through the LLMBackend port and stays agnostic to the kind.
type Provider struct {
	Kind         ProviderKind `json:"kind"`
	Name         string       `json:"name"`
	BaseURL      string       `json:"base_url"`
	ChatModel    string       `json:"chat_model"`
	EmbedModel   string       `json:"embed_model"`
	VisionModel  string       `json:"vision_model,omitempty"`
	Capabilities Capabilities `json:"capabilities"`
	Priority     int          `json:"priority"`
}
