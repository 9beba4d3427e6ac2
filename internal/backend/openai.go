package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

const defaultOpenAIEndpoint = "https://api.openai.com/v1"

type openAIClient struct {
	endpoint string
	model    string
	apiKey   string
	client   *http.Client
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (r chatCompletionResponse) firstMessage() string {
	if len(r.Choices) == 0 {
		return ""
	}
	return r.Choices[0].Message.Content
}

func (c *openAIClient) complete(ctx context.Context, system string, user string) (string, error) {
	messages := make([]chatMessage, 0, 2)
	if strings.TrimSpace(system) != "" {
		messages = append(messages, chatMessage{Role: "system", Content: system})
	}
	messages = append(messages, chatMessage{Role: "user", Content: user})

	var decoded chatCompletionResponse
	err := postJSON(ctx, c.client, ProviderOpenAI,
		joinEndpoint(c.endpoint, "/chat/completions"),
		map[string]string{"authorization": "Bearer " + c.apiKey},
		chatCompletionRequest{Model: c.model, Messages: messages},
		&decoded,
		decodeOpenAIError,
	)
	if err != nil {
		return "", err
	}
	return decoded.firstMessage(), nil
}

func (c *openAIClient) warm(context.Context) error {
	return nil
}

func decodeOpenAIError(body []byte) (string, string) {
	var payload struct {
		Error struct {
			Code    any    `json:"code"`
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", ""
	}
	code := payload.Error.Type
	if s, ok := payload.Error.Code.(string); ok && s != "" {
		code = s
	}
	return code, payload.Error.Message
}
