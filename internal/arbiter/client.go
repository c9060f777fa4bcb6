package arbiter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/farcloser/primordium/fault"

	"github.com/farcloser/assay/internal/types"
)

const (
	defaultTimeout     = 12 * time.Second
	defaultModel       = "llama3.2"
	defaultTemperature = 0.1
	defaultMaxTokens   = 64
	maxResponseBytes   = 64 * 1024
)

var (
	// ErrDisabled is recorded when no endpoint is configured.
	ErrDisabled = errors.New("arbiter disabled")
	// ErrUnparsable is recorded when the model answered without a recognizable verdict.
	ErrUnparsable = errors.New("no verdict keyword in response")
)

// Config captures the runtime settings required to talk to the local inference endpoint.
type Config struct {
	Endpoint string
	Model    string
	Timeout  time.Duration
	// ForceCPU asks the inference server to keep the model off the GPU.
	ForceCPU bool
}

// Client talks to an Ollama-style generate endpoint.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient constructs a client. A zero timeout selects 12s.
func NewClient(cfg Config, opts ...Option) *Client {
	cfg.Endpoint = strings.TrimSpace(cfg.Endpoint)
	cfg.Model = strings.TrimSpace(cfg.Model)

	if cfg.Model == "" {
		cfg.Model = defaultModel
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	client := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     slog.New(slog.DiscardHandler),
	}

	for _, opt := range opts {
		opt(client)
	}

	client.logger = client.logger.With("component", "arbiter", "model", cfg.Model)

	return client
}

type generateOptions struct {
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
	NumPredict  int     `json:"num_predict"`
	NumGPU      *int    `json:"num_gpu,omitempty"`
}

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

type generateResponse struct {
	Response string `json:"response"`
	Error    string `json:"error,omitempty"`
}

type httpStatusError struct {
	StatusCode int
	Body       string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("arbiter request: http %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
}

// Arbitrate sends one request, without retries. Any failure yields a FAILED outcome.
func (c *Client) Arbitrate(ctx context.Context, req Request) types.Arbitration {
	start := time.Now()

	if c.cfg.Endpoint == "" {
		return Failed(c.cfg.Model, 0, ErrDisabled)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	text, err := c.generate(ctx, Prompt(req))
	latency := float64(time.Since(start).Microseconds()) / 1000

	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("%w: after %v: %w", fault.ErrTimeout, c.cfg.Timeout, err)
		}

		c.logger.Warn("arbitration failed", "error", err, "latency_ms", latency)

		return Failed(c.cfg.Model, latency, err)
	}

	verdict, justification, ok := ParseVerdict(text)
	if !ok {
		c.logger.Warn("arbitration unparsable", "response", summarize(text))

		return Failed(c.cfg.Model, latency, ErrUnparsable)
	}

	c.logger.Debug("arbitration done", "verdict", verdict, "latency_ms", latency)

	return types.Arbitration{
		Verdict:       verdict,
		Justification: justification,
		Status:        types.OutcomeArbitrated,
		Model:         c.cfg.Model,
		LatencyMs:     latency,
	}
}

func (c *Client) generate(ctx context.Context, prompt string) (string, error) {
	payload := generateRequest{
		Model:  c.cfg.Model,
		Prompt: prompt,
		Stream: false,
		Options: generateOptions{
			Temperature: defaultTemperature,
			MaxTokens:   defaultMaxTokens,
			NumPredict:  defaultMaxTokens,
		},
	}

	if c.cfg.ForceCPU {
		zero := 0
		payload.Options.NumGPU = &zero
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("arbiter request: encode body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(encoded))
	if err != nil {
		return "", fmt.Errorf("arbiter request: new request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("arbiter request: http error: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("arbiter request: read body: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return "", &httpStatusError{StatusCode: resp.StatusCode, Body: summarize(string(body))}
	}

	var decoded generateResponse
	if err = json.Unmarshal(body, &decoded); err != nil {
		return "", fmt.Errorf("%w: %w", fault.ErrInvalidJSON, err)
	}

	if decoded.Error != "" {
		return "", fmt.Errorf("arbiter request: api error: %s", strings.TrimSpace(decoded.Error))
	}

	return decoded.Response, nil
}

func summarize(content string) string {
	clean := strings.Join(strings.Fields(content), " ")

	const limit = 160
	if runes := []rune(clean); len(runes) > limit {
		clean = string(runes[:limit]) + "..."
	}

	if clean == "" {
		return "<empty>"
	}

	return clean
}
