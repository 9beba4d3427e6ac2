package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

const (
	defaultAnthropicEndpoint = "https://api.anthropic.com"
	anthropicVersion         = "2023-06-01"
	anthropicMaxTokens       = 2048
)

type anthropicClient struct {
	endpoint string
	model    string
	apiKey   string
	client   *http.Client
}

type anthropicRequest struct {
	Model     string        `json:"model"`
	MaxTokens int           `json:"max_tokens"`
	System    string        `json:"system,omitempty"`
	Messages  []chatMessage `json:"messages"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

func (r anthropicResponse) text() string {
	var b strings.Builder
	for _, block := range r.Content {
		if block.Type != "" && block.Type != "text" {
			continue
		}
		b.WriteString(block.Text)
	}
	return b.String()
}

func (c *anthropicClient) complete(ctx context.Context, system string, user string) (string, error) {
	var decoded anthropicResponse
	err := postJSON(ctx, c.client, ProviderAnthropic,
		joinEndpoint(c.endpoint, "/v1/messages"),
		map[string]string{
			"x-api-key":         c.apiKey,
			"anthropic-version": anthropicVersion,
		},
		anthropicRequest{
			Model:     c.model,
			MaxTokens: anthropicMaxTokens,
			System:    strings.TrimSpace(system),
			Messages:  []chatMessage{{Role: "user", Content: user}},
		},
		&decoded,
		decodeAnthropicError,
	)
	if err != nil {
		return "", err
	}
	return decoded.text(), nil
}

func (c *anthropicClient) warm(context.Context) error {
	return nil
}

func decodeAnthropicError(body []byte) (string, string) {
	var payload struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", ""
	}
	return payload.Error.Type, payload.Error.Message
}
