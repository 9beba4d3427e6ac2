package backend

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
)

const defaultLocalEndpoint = "http://127.0.0.1:11434"

// localClient talks to an Ollama-compatible server on the workstation.
type localClient struct {
	model string
	llm   llms.Model
}

func newLocalClient(endpoint string, model string, client *http.Client) (*localClient, error) {
	opts := []ollama.Option{
		ollama.WithModel(model),
		ollama.WithServerURL(endpoint),
	}
	if client != nil {
		opts = append(opts, ollama.WithHTTPClient(client))
	}
	llm, err := ollama.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create local model client: %w", err)
	}
	return &localClient{model: model, llm: llm}, nil
}

func (c *localClient) complete(ctx context.Context, system string, user string) (string, error) {
	content := make([]llms.MessageContent, 0, 2)
	if strings.TrimSpace(system) != "" {
		content = append(content, llms.TextParts(llms.ChatMessageTypeSystem, system))
	}
	content = append(content, llms.TextParts(llms.ChatMessageTypeHuman, user))

	resp, err := c.llm.GenerateContent(ctx, content)
	if err != nil {
		return "", classifyLocalError(err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Content, nil
}

// warm issues a one-token request so the server loads the model into memory.
func (c *localClient) warm(ctx context.Context) error {
	_, err := c.llm.GenerateContent(ctx,
		[]llms.MessageContent{llms.TextParts(llms.ChatMessageTypeHuman, "ok")},
		llms.WithMaxTokens(1),
	)
	if err != nil {
		return classifyLocalError(err)
	}
	return nil
}

func classifyLocalError(err error) *Error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "not found") && strings.Contains(msg, "model"):
		return &Error{Kind: KindPermanent, Provider: ProviderLocal, Code: "model_not_found", Err: err}
	case strings.Contains(msg, "status code: 5"), strings.Contains(msg, "server busy"):
		return &Error{Kind: KindTransient, Provider: ProviderLocal, Code: "server_error", Err: err}
	}
	return classifyTransport(ProviderLocal, err)
}
