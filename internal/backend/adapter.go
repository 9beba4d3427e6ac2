// Package backend wraps local and remote inference services behind one Process contract.
package backend

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"
)

// Provider tags one concrete backend implementation.
type Provider string

const (
	ProviderLocal     Provider = "local"
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
)

// Valid reports whether p is a known provider tag.
func (p Provider) Valid() bool {
	switch p {
	case ProviderLocal, ProviderOpenAI, ProviderAnthropic:
		return true
	default:
		return false
	}
}

// Remote reports whether p calls a hosted API that needs a credential.
func (p Provider) Remote() bool {
	return p == ProviderOpenAI || p == ProviderAnthropic
}

// Profile describes how to build one adapter.
type Profile struct {
	Provider       Provider
	ModelID        string
	PromptTemplate string
	// CredentialRef names where the credential came from (for logs); Credential holds the secret.
	CredentialRef string
	Credential    string
	Endpoint      string
}

// Input is one text-transformation request.
type Input struct {
	Text string
	// Prompt overrides the adapter's prompt template for this call.
	Prompt      string
	Instruction string
	Selection   string
	Language    string
}

// Adapter is the uniform text -> text contract over one backend.
type Adapter interface {
	Process(ctx context.Context, in Input) (string, error)
	Provider() Provider
	Model() string
	SetPrompt(template string)
	Warm(ctx context.Context) error
}

// ErrEmptyResponse indicates the backend answered without any text.
var ErrEmptyResponse = errors.New("backend returned empty response")

// completer performs exactly one request against a provider.
type completer interface {
	complete(ctx context.Context, system string, user string) (string, error)
	warm(ctx context.Context) error
}

// adapter layers prompt rendering and retry over a provider completer.
type adapter struct {
	provider Provider
	model    string
	call     completer
	retry    RetryPolicy
	logger   *slog.Logger
	prompt   atomic.Pointer[string]
}

func newAdapter(provider Provider, model string, prompt string, call completer, retry RetryPolicy, logger *slog.Logger) *adapter {
	a := &adapter{
		provider: provider,
		model:    model,
		call:     call,
		retry:    retry,
		logger:   logger,
	}
	a.SetPrompt(prompt)
	return a
}

func (a *adapter) Provider() Provider { return a.provider }

func (a *adapter) Model() string { return a.model }

// SetPrompt swaps the default prompt template in place.
func (a *adapter) SetPrompt(template string) {
	a.prompt.Store(&template)
}

func (a *adapter) currentPrompt() string {
	if p := a.prompt.Load(); p != nil {
		return *p
	}
	return ""
}

// Process renders the prompt and calls the backend with transient-failure retry.
func (a *adapter) Process(ctx context.Context, in Input) (string, error) {
	tmpl := in.Prompt
	if strings.TrimSpace(tmpl) == "" {
		tmpl = a.currentPrompt()
	}
	system, err := RenderPrompt(tmpl, in)
	if err != nil {
		return "", &Error{Kind: KindPermanent, Provider: a.provider, Code: "prompt_template", Err: err}
	}

	policy := a.retry
	userOnRetry := policy.OnRetry
	policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		a.logWarn("backend call failed; retrying",
			"provider", a.provider,
			"model", a.model,
			"attempt", attempt,
			"delay_ms", delay.Milliseconds(),
			"error", err.Error(),
		)
		if userOnRetry != nil {
			userOnRetry(attempt, err, delay)
		}
	}

	out, err := Retry(ctx, policy, func() (string, error) {
		text, err := a.call.complete(ctx, system, in.Text)
		if err != nil {
			return "", err
		}
		text = strings.TrimSpace(text)
		if text == "" {
			return "", &Error{Kind: KindTransient, Provider: a.provider, Code: "empty_response", Err: ErrEmptyResponse}
		}
		return text, nil
	})
	if err != nil {
		return "", err
	}
	return out, nil
}

// Warm asks the backend to load its model ahead of the first real request.
func (a *adapter) Warm(ctx context.Context) error {
	return a.call.warm(ctx)
}

func (a *adapter) logWarn(msg string, args ...any) {
	if a.logger == nil {
		return
	}
	a.logger.Warn(msg, args...)
}
