// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"context"
	"net/http"
	"strings"
)

const (
	// DefaultAnthropicBaseURL is the public Anthropic API.
	DefaultAnthropicBaseURL = "https://api.anthropic.com"

	anthropicVersion = "2023-06-01"
)

// Anthropic implements [Provider] for the Messages API (/v1/messages).
type Anthropic struct {
	httpClient *http.Client
	endpoint   Endpoint
}

// NewAnthropic returns an Anthropic provider. An empty BaseURL selects
// DefaultAnthropicBaseURL.
func NewAnthropic(httpClient *http.Client, endpoint Endpoint) *Anthropic {
	if endpoint.BaseURL == "" {
		endpoint.BaseURL = DefaultAnthropicBaseURL
	}
	return &Anthropic{httpClient: httpClient, endpoint: endpoint}
}

// Complete sends a non-streaming Messages request.
func (provider *Anthropic) Complete(ctx context.Context, request Request) (*Response, error) {
	headers := http.Header{}
	headers.Set("anthropic-version", anthropicVersion)
	if provider.endpoint.APIKey != "" {
		headers.Set("x-api-key", provider.endpoint.APIKey)
	}

	httpResponse, err := postJSON(ctx, provider.httpClient,
		provider.endpoint.url("/v1/messages"), headers,
		provider.buildRequest(request), "llm/anthropic")
	if err != nil {
		return nil, err
	}
	return decodeResponse[anthropicResponse](httpResponse, "llm/anthropic")
}

func (provider *Anthropic) buildRequest(request Request) anthropicRequest {
	wire := anthropicRequest{
		Model:       request.Model,
		MaxTokens:   request.MaxTokens,
		System:      request.System,
		Temperature: request.Temperature,
	}
	for _, message := range request.Messages {
		wire.Messages = append(wire.Messages, anthropicMessage{
			Role:    string(message.Role),
			Content: []anthropicContentBlock{{Type: "text", Text: message.Content}},
		})
	}
	return wire
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	Temperature *float64           `json:"temperature,omitempty"`
}

type anthropicMessage struct {
	Role    string                  `json:"role"`
	Content []anthropicContentBlock `json:"content"`
}

type anthropicContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type anthropicResponse struct {
	ID         string                  `json:"id"`
	Model      string                  `json:"model"`
	Content    []anthropicContentBlock `json:"content"`
	StopReason string                  `json:"stop_reason"`
	Usage      anthropicUsage          `json:"usage"`
}

type anthropicUsage struct {
	InputTokens              int64 `json:"input_tokens"`
	OutputTokens             int64 `json:"output_tokens"`
	CacheCreationInputTokens int64 `json:"cache_creation_input_tokens"`
	CacheReadInputTokens     int64 `json:"cache_read_input_tokens"`
}

// toResponse concatenates the text blocks. Cached prompt tokens are
// billed as input, so they are folded into InputTokens.
func (wire *anthropicResponse) toResponse() *Response {
	var text strings.Builder
	for _, block := range wire.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return &Response{
		ID:         wire.ID,
		Model:      wire.Model,
		Text:       text.String(),
		StopReason: mapAnthropicStopReason(wire.StopReason),
		Usage: Usage{
			InputTokens: wire.Usage.InputTokens + wire.Usage.CacheCreationInputTokens +
				wire.Usage.CacheReadInputTokens,
			OutputTokens: wire.Usage.OutputTokens,
		},
	}
}

func mapAnthropicStopReason(reason string) StopReason {
	switch reason {
	case "end_turn":
		return StopEndTurn
	case "max_tokens":
		return StopMaxTokens
	case "stop_sequence":
		return StopSequence
	default:
		return StopOther
	}
}
