// Package transcribe turns captured audio into text through an HTTP speech-to-text server.
package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/afero"
)

// ErrEmptyArtifact is returned for a zero-byte capture.
var ErrEmptyArtifact = errors.New("capture artifact is empty")

// Config describes the transcription server.
type Config struct {
	Endpoint string
	Language string
	Timeout  time.Duration
	FS       afero.Fs
	HTTP     *http.Client
	Logger   *slog.Logger
}

// Client uploads one artifact per request as multipart form data.
type Client struct {
	endpoint string
	language string
	fs       afero.Fs
	http     *http.Client
	logger   *slog.Logger
}

// StatusError is a non-2xx reply from the server.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("transcription server returned HTTP %d", e.Status)
	}
	return fmt.Sprintf("transcription server returned HTTP %d: %s", e.Status, e.Body)
}

// New validates cfg and builds a client.
func New(cfg Config) (*Client, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, errors.New("transcriber endpoint is empty")
	}
	if _, err := url.ParseRequestURI(endpoint); err != nil {
		return nil, fmt.Errorf("parse transcriber endpoint: %w", err)
	}
	fs := cfg.FS
	if fs == nil {
		fs = afero.NewOsFs()
	}
	client := cfg.HTTP
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &Client{
		endpoint: endpoint,
		language: strings.TrimSpace(cfg.Language),
		fs:       fs,
		http:     client,
		logger:   cfg.Logger,
	}, nil
}

// Endpoint returns the upload URL.
func (c *Client) Endpoint() string { return c.endpoint }

type transcriptionResponse struct {
	Text string `json:"text"`
}

// Transcribe uploads artifact and returns the recognized text unchanged.
func (c *Client) Transcribe(ctx context.Context, artifact string) (string, error) {
	audio, err := afero.ReadFile(c.fs, artifact)
	if err != nil {
		return "", fmt.Errorf("read artifact: %w", err)
	}
	if len(audio) == 0 {
		return "", ErrEmptyArtifact
	}

	body, contentType, err := c.encode(filepath.Base(artifact), audio)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, body)
	if err != nil {
		return "", fmt.Errorf("build transcription request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("post transcription: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("read transcription response: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		return "", &StatusError{Status: resp.StatusCode, Body: strings.TrimSpace(truncate(string(payload), 256))}
	}

	var decoded transcriptionResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return "", fmt.Errorf("decode transcription response: %w", err)
	}
	if c.logger != nil {
		c.logger.Debug("transcription complete",
			"artifact", artifact,
			"bytes", len(audio),
			"duration_ms", time.Since(started).Milliseconds(),
			"chars", len(decoded.Text),
		)
	}
	return decoded.Text, nil
}

func (c *Client) encode(filename string, audio []byte) (io.Reader, string, error) {
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	header.Set("Content-Type", mimetype.Detect(audio).String())
	part, err := form.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("create file part: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return nil, "", fmt.Errorf("write file part: %w", err)
	}

	fields := map[string]string{"response_format": "json"}
	if c.language != "" {
		fields["language"] = c.language
	}
	for _, key := range []string{"language", "response_format"} {
		value, ok := fields[key]
		if !ok {
			continue
		}
		if err := form.WriteField(key, value); err != nil {
			return nil, "", fmt.Errorf("write %s field: %w", key, err)
		}
	}
	if err := form.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart body: %w", err)
	}
	return &buf, form.FormDataContentType(), nil
}

// CheckHTTP reports whether the server answers at all. Any status below 500 counts as up.
func (c *Client) CheckHTTP(ctx context.Context) error {
	target, err := url.Parse(c.endpoint)
	if err != nil {
		return err
	}
	target.Path = "/"
	target.RawQuery = ""

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("probe transcription server: %w", err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode >= 500 {
		return &StatusError{Status: resp.StatusCode}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
