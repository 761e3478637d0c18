package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIClient implements the Client interface using OpenAI's chat
// completions API in JSON mode.
type OpenAIClient struct {
	client *openai.Client
	model  string

	mu    sync.Mutex
	usage TokenUsage
}

// OpenAIConfig holds configuration for the OpenAI client.
type OpenAIConfig struct {
	APIKey  string
	Model   string // e.g., "gpt-4o-mini"
	BaseURL string // optional override, used by tests and proxies
}

// NewOpenAIClient creates a new OpenAI client.
func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	return &OpenAIClient{
		client: openai.NewClientWithConfig(clientConfig),
		model:  model,
	}
}

// claimList is the expected extraction response schema.
type claimList struct {
	Claims []ExtractedClaim `json:"claims"`
}

// ExtractClaims identifies checkable factual claims in one sentence.
func (c *OpenAIClient) ExtractClaims(ctx context.Context, sentence string) ([]ExtractedClaim, error) {
	content, err := c.complete(ctx, ClaimExtractionPrompt, sentence)
	if err != nil {
		return nil, err
	}

	var result claimList
	if err := json.Unmarshal([]byte(content), &result); err != nil {
		return nil, fmt.Errorf("%w: claim list: %v (content: %s)", ErrMalformedResponse, err, content)
	}

	claims := result.Claims[:0]
	for _, cl := range result.Claims {
		if strings.TrimSpace(cl.Text) == "" {
			continue
		}
		claims = append(claims, cl)
	}
	return claims, nil
}

// JudgeClaim produces a verdict for a claim given evidence passages.
func (c *OpenAIClient) JudgeClaim(ctx context.Context, claim string, passages []EvidencePassage) (*VerdictResult, error) {
	content, err := c.complete(ctx, VerdictPrompt, verdictUserPrompt(claim, passages))
	if err != nil {
		return nil, err
	}

	var result VerdictResult
	if err := json.Unmarshal([]byte(content), &result); err != nil {
		return nil, fmt.Errorf("%w: verdict: %v (content: %s)", ErrMalformedResponse, err, content)
	}
	if err := validateVerdict(&result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Usage returns cumulative token usage for this client.
func (c *OpenAIClient) Usage() TokenUsage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.usage
}

// complete runs one low-temperature JSON-mode chat completion and
// returns the raw message content.
func (c *OpenAIClient) complete(ctx context.Context, system, user string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: 0.1,
		MaxTokens:   500,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return "", fmt.Errorf("OpenAI API error: %w", err)
	}

	c.mu.Lock()
	c.usage.PromptTokens += resp.Usage.PromptTokens
	c.usage.CompletionTokens += resp.Usage.CompletionTokens
	c.mu.Unlock()

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices in response", ErrMalformedResponse)
	}
	return stripCodeFence(resp.Choices[0].Message.Content), nil
}

// validateVerdict enforces the verdict schema contract.
func validateVerdict(v *VerdictResult) error {
	switch v.Status {
	case "supported", "contradicted", "unclear", "not_found":
	default:
		return fmt.Errorf("%w: unknown status %q", ErrMalformedResponse, v.Status)
	}
	if v.Confidence < 0 || v.Confidence > 1 {
		return fmt.Errorf("%w: confidence %v out of range", ErrMalformedResponse, v.Confidence)
	}
	return nil
}

// stripCodeFence removes a markdown code block wrapper some models add
// around JSON output.
func stripCodeFence(content string) string {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	return strings.TrimSpace(content)
}
