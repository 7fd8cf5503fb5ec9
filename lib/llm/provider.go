// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Provider sends one completion request and waits for the full reply.
type Provider interface {
	Complete(ctx context.Context, request Request) (*Response, error)
}

// Role is the speaker of a Message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one conversation turn. Content is plain text.
type Message struct {
	Role    Role
	Content string
}

// Request is a provider-neutral completion request.
type Request struct {
	Model       string
	System      string
	Messages    []Message
	MaxTokens   int
	Temperature *float64
}

// StopReason is why the model stopped producing output.
type StopReason string

const (
	StopEndTurn   StopReason = "end_turn"
	StopMaxTokens StopReason = "max_tokens"
	StopSequence  StopReason = "stop_sequence"
	StopOther     StopReason = "other"
)

// Usage is the token accounting a provider reports for one request.
type Usage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// Response is a provider-neutral completion.
type Response struct {
	ID         string
	Model      string
	Text       string
	StopReason StopReason
	Usage      Usage
}

// Endpoint names where and how a provider authenticates.
type Endpoint struct {
	// BaseURL is the scheme and host, optionally with a path prefix,
	// without a trailing slash. The provider appends its API path.
	BaseURL string

	// APIKey is sent in the provider's authentication header. Empty
	// sends no credentials, for gateways that inject them.
	APIKey string
}

func (endpoint Endpoint) url(path string) string {
	return strings.TrimRight(endpoint.BaseURL, "/") + path
}

// ProviderError is returned when the API responds with a non-200 status.
type ProviderError struct {
	StatusCode int

	// Type is the provider's error type string, e.g. "rate_limit_error".
	Type    string
	Message string
}

func (err *ProviderError) Error() string {
	if err.Type != "" {
		return fmt.Sprintf("llm: HTTP %d: %s: %s", err.StatusCode, err.Type, err.Message)
	}
	return fmt.Sprintf("llm: HTTP %d: %s", err.StatusCode, err.Message)
}

// IsRateLimited reports an HTTP 429.
func (err *ProviderError) IsRateLimited() bool { return err.StatusCode == http.StatusTooManyRequests }

// IsOverloaded reports an HTTP 529, Anthropic's overload status.
func (err *ProviderError) IsOverloaded() bool { return err.StatusCode == 529 }

// postJSON marshals wireRequest, POSTs it with headers, and returns the
// response. A non-200 status is converted to a ProviderError and the
// body closed; otherwise the caller owns the body.
func postJSON(ctx context.Context, httpClient *http.Client, url string, headers http.Header, wireRequest any, prefix string) (*http.Response, error) {
	body, err := json.Marshal(wireRequest)
	if err != nil {
		return nil, fmt.Errorf("%s: marshaling request: %w", prefix, err)
	}

	httpRequest, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%s: creating request: %w", prefix, err)
	}
	httpRequest.Header.Set("Content-Type", "application/json")
	for name, values := range headers {
		for _, value := range values {
			httpRequest.Header.Add(name, value)
		}
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	httpResponse, err := httpClient.Do(httpRequest)
	if err != nil {
		return nil, fmt.Errorf("%s: sending request: %w", prefix, err)
	}
	if httpResponse.StatusCode != http.StatusOK {
		defer httpResponse.Body.Close()
		return nil, readProviderError(httpResponse)
	}
	return httpResponse, nil
}

// wireResponse is implemented by pointers to provider wire structs.
type wireResponse[T any] interface {
	*T
	toResponse() *Response
}

// decodeResponse decodes the body into the wire type T and converts it.
// The body is closed before returning.
func decodeResponse[T any, P wireResponse[T]](httpResponse *http.Response, prefix string) (*Response, error) {
	defer httpResponse.Body.Close()

	wire := P(new(T))
	if err := json.NewDecoder(httpResponse.Body).Decode(wire); err != nil {
		return nil, fmt.Errorf("%s: decoding response: %w", prefix, err)
	}
	return wire.toResponse(), nil
}

// readProviderError parses {"error":{"type":...,"message":...}}, the
// error shape shared by OpenAI, Anthropic, and compatible servers. Any
// other body is kept verbatim (truncated) as the message.
func readProviderError(httpResponse *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(httpResponse.Body, 4096))

	var wireError struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &wireError) == nil && wireError.Error.Message != "" {
		return &ProviderError{
			StatusCode: httpResponse.StatusCode,
			Type:       wireError.Error.Type,
			Message:    wireError.Error.Message,
		}
	}
	return &ProviderError{StatusCode: httpResponse.StatusCode, Message: string(body)}
}
