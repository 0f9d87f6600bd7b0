package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"codeweave/backend/internal/apperr"
)

const (
	DefaultBaseURL = "https://api.openai.com"
	DefaultModel   = "gpt-4o"
	completionPath = "/v1/chat/completions"
	maxErrorBody   = 4 << 10
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest takes either a full conversation or a single user message.
type ChatRequest struct {
	Message  string    `json:"message,omitempty"`
	Messages []Message `json:"messages,omitempty"`
	Model    string    `json:"model,omitempty"`
	APIKey   string    `json:"apiKey,omitempty"`
}

type ChatResult struct {
	Reply      string          `json:"reply"`
	Completion json.RawMessage `json:"completion"`
}

// Client proxies chat requests to an OpenAI-compatible completions API.
type Client struct {
	http    *http.Client
	baseURL string
	apiKey  string
	model   string
}

func NewClient(baseURL, apiKey, model string, hc *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if model == "" {
		model = DefaultModel
	}
	if hc == nil {
		hc = &http.Client{Timeout: 60 * time.Second}
	}
	return &Client{http: hc, baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey, model: model}
}

type completionRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
}

type completionResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
}

// Chat uses the caller's key when given, else the server's.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (*ChatResult, error) {
	key := strings.TrimSpace(req.APIKey)
	if key == "" {
		key = c.apiKey
	}
	if key == "" {
		return nil, apperr.NewAuth(http.StatusUnauthorized, "AI_KEY_MISSING", "OpenAI API Key is required. Please set it in Settings.")
	}

	msgs := req.Messages
	if len(msgs) == 0 {
		if strings.TrimSpace(req.Message) == "" {
			return nil, apperr.NewValidation("VALIDATION", "message is required")
		}
		msgs = []Message{{Role: "user", Content: req.Message}}
	}
	model := req.Model
	if model == "" {
		model = c.model
	}

	body, err := json.Marshal(completionRequest{Model: model, Messages: msgs})
	if err != nil {
		return nil, apperr.NewInternal(err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+completionPath, bytes.NewReader(body))
	if err != nil {
		return nil, apperr.NewInternal(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+key)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, apperr.NewUpstream(http.StatusBadGateway, "AI provider unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, apperr.NewUpstream(resp.StatusCode, "OpenAI Error: "+strings.TrimSpace(string(detail)), nil)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.NewUpstream(http.StatusBadGateway, "AI provider response unreadable", err)
	}
	var parsed completionResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, apperr.NewUpstream(http.StatusBadGateway, "AI provider returned invalid JSON", fmt.Errorf("decode completion: %w", err))
	}
	res := &ChatResult{Completion: raw}
	if len(parsed.Choices) > 0 {
		res.Reply = parsed.Choices[0].Message.Content
	}
	return res, nil
}
