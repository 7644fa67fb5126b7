package llmadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/marketintel/engine/internal/domain"
)

// chatMessage/chatRequest/chatResponse mirror the teacher's Bifrost
// gateway wire format (internal/llm/types.go), since every provider
// here is assumed to speak the same OpenAI-shaped chat completion
// protocol through a gateway.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatChoice struct {
	Message chatMessage `json:"message"`
}

type chatResponse struct {
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// HTTPProvider is a single LLM backend reached over HTTP, grounded on
// the teacher's internal/llm.Client.
type HTTPProvider struct {
	id          ProviderID
	endpoint    string
	apiKey      string
	model       string
	temperature float64
	maxTokens   int
	httpClient  *http.Client
}

// HTTPProviderConfig configures one provider's HTTP transport.
type HTTPProviderConfig struct {
	Endpoint    string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// NewHTTPProvider builds a provider. Zero-valued fields in cfg fall
// back to the teacher's defaults.
func NewHTTPProvider(id ProviderID, cfg HTTPProviderConfig) *HTTPProvider {
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 2000
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &HTTPProvider{
		id:          id,
		endpoint:    cfg.Endpoint,
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
	}
}

func (p *HTTPProvider) ID() ProviderID { return p.id }

// Invoke issues one chat completion call and returns the raw assistant
// content, extracted from markdown fencing if present. It never
// validates against the schema — that's the Adapter's job, since
// validation failures must be attributed back to the agent as a
// VALIDATION-kind ProviderError regardless of which provider answered.
func (p *HTTPProvider) Invoke(ctx context.Context, req Request) (json.RawMessage, error) {
	chatReq := chatRequest{
		Model: p.model,
		Messages: []chatMessage{
			{Role: "system", Content: req.SystemPrompt},
			{Role: "user", Content: req.UserPrompt},
		},
		Temperature: p.temperature,
		MaxTokens:   p.maxTokens,
	}

	body, err := json.Marshal(chatReq)
	if err != nil {
		return nil, domain.NewProviderError(domain.ProviderErrorValidation, "marshal request: "+err.Error())
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, domain.NewProviderError(domain.ProviderErrorUpstream, "build request: "+err.Error())
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	log.Debug().Str("provider", string(p.id)).Str("model", p.model).Msg("sending llm request")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, domain.NewProviderError(domain.ProviderErrorTimeout, ctx.Err().Error())
		}
		return nil, domain.NewProviderError(domain.ProviderErrorUpstream, err.Error())
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.NewProviderError(domain.ProviderErrorUpstream, "read response: "+err.Error())
	}

	if resp.StatusCode != http.StatusOK {
		var errResp errorResponse
		_ = json.Unmarshal(respBody, &errResp)
		return nil, classifyHTTPError(resp.StatusCode, errResp.Error.Message, string(respBody))
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, domain.NewProviderError(domain.ProviderErrorValidation, "parse response: "+err.Error())
	}
	if len(parsed.Choices) == 0 {
		return nil, domain.NewProviderError(domain.ProviderErrorValidation, "no choices in response")
	}

	extracted := extractJSON(parsed.Choices[0].Message.Content)
	if extracted == "" {
		return nil, domain.NewProviderError(domain.ProviderErrorValidation, "no JSON object found in response content")
	}
	return json.RawMessage(extracted), nil
}

func classifyHTTPError(statusCode int, message, fallback string) *domain.ProviderError {
	if message == "" {
		message = fallback
	}
	switch {
	case statusCode == http.StatusTooManyRequests:
		return domain.NewProviderError(domain.ProviderErrorRateLimited, message)
	case statusCode == http.StatusGatewayTimeout:
		return domain.NewProviderError(domain.ProviderErrorTimeout, message)
	case statusCode >= 500:
		return domain.NewProviderError(domain.ProviderErrorUpstream, message)
	default:
		return domain.NewProviderError(domain.ProviderErrorUpstream, fmt.Sprintf("status %d: %s", statusCode, message))
	}
}

// extractJSON tries markdown-fenced JSON first, then the first balanced
// {...} or [...] span, mirroring the teacher's extraction order.
func extractJSON(content string) string {
	if fenced := extractFromMarkdownFence(content); fenced != "" {
		return fenced
	}
	return extractFirstJSONObject(content)
}

func extractFromMarkdownFence(content string) string {
	for _, fence := range []string{"```json", "```"} {
		idx := strings.Index(content, fence)
		if idx < 0 {
			continue
		}
		rest := content[idx+len(fence):]
		rest = strings.TrimPrefix(rest, "\n")
		end := strings.Index(rest, "```")
		if end < 0 {
			continue
		}
		candidate := strings.TrimSpace(rest[:end])
		if len(candidate) > 0 && (candidate[0] == '{' || candidate[0] == '[') {
			return candidate
		}
	}
	return ""
}

func extractFirstJSONObject(content string) string {
	content = strings.TrimSpace(content)
	start := -1
	var open, close byte
	for i := 0; i < len(content); i++ {
		if content[i] == '{' {
			start, open, close = i, '{', '}'
			break
		}
		if content[i] == '[' {
			start, open, close = i, '[', ']'
			break
		}
	}
	if start < 0 {
		return ""
	}
	depth := 0
	for i := start; i < len(content); i++ {
		switch content[i] {
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return content[start : i+1]
			}
		}
	}
	return ""
}
