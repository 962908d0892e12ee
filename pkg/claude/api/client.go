package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	DefaultBaseURL    = "https://api.anthropic.com"
	DefaultAPIVersion = "2023-06-01"
)

// ErrorResponse represents the API's error response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error details.
type ErrorDetail struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (err ErrorDetail) MarshalZerologObject(e *zerolog.Event) {
	e.Str("type", err.Type)
	e.Str("message", err.Message)
}

// Usage represents the billing and rate-limit usage information.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

func (u Usage) MarshalZerologObject(e *zerolog.Event) {
	e.Int("input_tokens", u.InputTokens)
	e.Int("output_tokens", u.OutputTokens)
}

// Client is a Messages API client.
type Client struct {
	httpClient *http.Client
	apiKey     string
	APIVersion string
	BaseURL    string
}

type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client. The default has no
// global timeout so that long streams are bounded by the request context
// instead.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.BaseURL = baseURL
	}
}

func WithAPIVersion(version string) ClientOption {
	return func(c *Client) {
		c.APIVersion = version
	}
}

func NewClient(apiKey string, options ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{
			Transport: &http.Transport{
				ResponseHeaderTimeout: 60 * time.Second,
			},
		},
		apiKey:     apiKey,
		APIVersion: DefaultAPIVersion,
		BaseURL:    DefaultBaseURL,
	}
	for _, option := range options {
		option(c)
	}
	return c
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", c.APIVersion)
	req.Header.Set("Content-Type", "application/json")
}

// SendMessage sends a non-streaming message request and returns the
// complete response.
func (c *Client) SendMessage(ctx context.Context, req *MessageRequest) (*MessageResponse, error) {
	resp, err := c.post(ctx, req)
	if err != nil {
		return nil, err
	}
	defer func(Body io.ReadCloser) {
		_ = Body.Close()
	}(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, decodeErrorResponse(resp)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read response body")
	}
	var messageResp MessageResponse
	if err := json.Unmarshal(respBody, &messageResp); err != nil {
		return nil, errors.Wrap(err, "failed to decode message response")
	}
	return &messageResp, nil
}

// StreamMessage sends a streaming message request and returns a channel
// of typed events. The channel closes when the stream terminates, the
// body ends, or ctx is cancelled. Transport and HTTP-level failures are
// reported through the returned error before any event is emitted.
func (c *Client) StreamMessage(ctx context.Context, req *MessageRequest) (<-chan StreamingEvent, error) {
	req.Stream = true

	resp, err := c.post(ctx, req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		defer func(Body io.ReadCloser) {
			_ = Body.Close()
		}(resp.Body)
		return nil, decodeErrorResponse(resp)
	}

	log.Debug().Str("model", req.Model).Int("messages", len(req.Messages)).Msg("streaming response started")

	events := make(chan StreamingEvent)
	go streamEvents(ctx, resp.Body, events)
	return events, nil
}

func (c *Client) post(ctx context.Context, req *MessageRequest) (*http.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal message request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/messages", bytes.NewBuffer(body))
	if err != nil {
		return nil, err
	}
	c.setHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(err, "message request failed")
	}
	return resp, nil
}

func decodeErrorResponse(resp *http.Response) error {
	respBody, _ := io.ReadAll(resp.Body)
	var errorResp ErrorResponse
	if err := json.Unmarshal(respBody, &errorResp); err != nil {
		return errors.Errorf("request failed with status %d: %s", resp.StatusCode, string(respBody))
	}
	return errors.Errorf("%s: %s", errorResp.Error.Type, errorResp.Error.Message)
}
