package backend

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

var (
	ErrMissingModel      = errors.New("backend profile missing model id")
	ErrMissingCredential = errors.New("backend profile missing credential")
	ErrUnknownProvider   = errors.New("unknown backend provider")
)

// Factory builds adapters that share one HTTP client and retry policy.
type Factory struct {
	client *http.Client
	retry  RetryPolicy
	logger *slog.Logger
}

// FactoryOption customizes a Factory.
type FactoryOption func(*Factory)

// WithHTTPClient overrides the shared HTTP client.
func WithHTTPClient(client *http.Client) FactoryOption {
	return func(f *Factory) {
		if client != nil {
			f.client = client
		}
	}
}

// WithRetryPolicy overrides DefaultRetryPolicy.
func WithRetryPolicy(policy RetryPolicy) FactoryOption {
	return func(f *Factory) { f.retry = policy }
}

// NewFactory returns a Factory with a 60s request timeout and the default retry policy.
func NewFactory(logger *slog.Logger, opts ...FactoryOption) *Factory {
	f := &Factory{
		client: &http.Client{Timeout: 60 * time.Second},
		retry:  DefaultRetryPolicy(),
		logger: logger,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// New constructs the adapter described by profile.
func (f *Factory) New(profile Profile) (Adapter, error) {
	model := strings.TrimSpace(profile.ModelID)
	if model == "" {
		return nil, fmt.Errorf("%s: %w", profile.Provider, ErrMissingModel)
	}
	if err := ValidatePrompt(profile.PromptTemplate); err != nil {
		return nil, err
	}
	if profile.Provider.Remote() && strings.TrimSpace(profile.Credential) == "" {
		return nil, fmt.Errorf("%s: %w", profile.Provider, ErrMissingCredential)
	}

	var call completer
	switch profile.Provider {
	case ProviderLocal:
		local, err := newLocalClient(valueOrDefault(profile.Endpoint, defaultLocalEndpoint), model, f.client)
		if err != nil {
			return nil, err
		}
		call = local
	case ProviderOpenAI:
		call = &openAIClient{
			endpoint: valueOrDefault(profile.Endpoint, defaultOpenAIEndpoint),
			model:    model,
			apiKey:   profile.Credential,
			client:   f.client,
		}
	case ProviderAnthropic:
		call = &anthropicClient{
			endpoint: valueOrDefault(profile.Endpoint, defaultAnthropicEndpoint),
			model:    model,
			apiKey:   profile.Credential,
			client:   f.client,
		}
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownProvider, profile.Provider)
	}

	if f.logger != nil {
		f.logger.Debug("backend adapter created",
			"provider", profile.Provider,
			"model", model,
			"credential_ref", profile.CredentialRef,
		)
	}
	return newAdapter(profile.Provider, model, profile.PromptTemplate, call, f.retry, f.logger), nil
}

func valueOrDefault(value string, fallback string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return fallback
}
