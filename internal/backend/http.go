package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const maxErrorBody = 64 << 10

// postJSON sends payload and decodes a 2xx body into out.
// Non-2xx responses are handed to decodeErr which extracts the provider code and message.
func postJSON(
	ctx context.Context,
	client *http.Client,
	provider Provider,
	endpoint string,
	headers map[string]string,
	payload any,
	out any,
	decodeErr func(body []byte) (code string, message string),
) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return &Error{Kind: KindPermanent, Provider: provider, Code: "encode_request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return &Error{Kind: KindPermanent, Provider: provider, Code: "build_request", Err: err}
	}
	req.Header.Set("content-type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return classifyTransport(provider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		code, message := "", ""
		if decodeErr != nil {
			code, message = decodeErr(raw)
		}
		if message == "" {
			message = strings.TrimSpace(string(raw))
		}
		return classifyHTTP(provider, resp.StatusCode, code, message)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &Error{Kind: KindTransient, Provider: provider, Status: resp.StatusCode, Code: "decode_response", Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func joinEndpoint(base string, path string) string {
	return strings.TrimRight(strings.TrimSpace(base), "/") + path
}
