// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"context"
	"net/http"
	"strings"
)

// DefaultOpenAIBaseURL is the public OpenAI API.
const DefaultOpenAIBaseURL = "https://api.openai.com"

// OpenAI implements [Provider] for the Chat Completions wire format,
// which OpenAI, Azure OpenAI, OpenRouter, vLLM, Ollama, and llama.cpp
// all accept at /v1/chat/completions.
type OpenAI struct {
	httpClient *http.Client
	endpoint   Endpoint
}

// NewOpenAI returns an OpenAI-compatible provider. An empty BaseURL
// selects DefaultOpenAIBaseURL.
func NewOpenAI(httpClient *http.Client, endpoint Endpoint) *OpenAI {
	if endpoint.BaseURL == "" {
		endpoint.BaseURL = DefaultOpenAIBaseURL
	}
	return &OpenAI{httpClient: httpClient, endpoint: endpoint}
}

// Complete sends a non-streaming chat completion.
func (provider *OpenAI) Complete(ctx context.Context, request Request) (*Response, error) {
	headers := http.Header{}
	if provider.endpoint.APIKey != "" {
		headers.Set("Authorization", "Bearer "+provider.endpoint.APIKey)
	}

	httpResponse, err := postJSON(ctx, provider.httpClient,
		provider.endpoint.url("/v1/chat/completions"), headers,
		provider.buildRequest(request), "llm/openai")
	if err != nil {
		return nil, err
	}
	return decodeResponse[openaiResponse](httpResponse, "llm/openai")
}

// buildRequest puts the system prompt first, as a role "system" message.
func (provider *OpenAI) buildRequest(request Request) openaiRequest {
	wire := openaiRequest{
		Model:       request.Model,
		MaxTokens:   request.MaxTokens,
		Temperature: request.Temperature,
	}
	if request.System != "" {
		wire.Messages = append(wire.Messages, openaiMessage{Role: "system", Content: request.System})
	}
	for _, message := range request.Messages {
		wire.Messages = append(wire.Messages, openaiMessage{
			Role:    string(message.Role),
			Content: message.Content,
		})
	}
	return wire
}

type openaiRequest struct {
	Model       string          `json:"model"`
	Messages    []openaiMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature *float64        `json:"temperature,omitempty"`
}

type openaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openaiResponse struct {
	ID      string         `json:"id"`
	Model   string         `json:"model"`
	Choices []openaiChoice `json:"choices"`
	Usage   openaiUsage    `json:"usage"`
}

type openaiChoice struct {
	Index        int           `json:"index"`
	Message      openaiMessage `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

type openaiUsage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
}

// toResponse takes the first choice; the runtime never requests n > 1.
func (wire *openaiResponse) toResponse() *Response {
	response := &Response{
		ID:    wire.ID,
		Model: wire.Model,
		Usage: Usage{
			InputTokens:  wire.Usage.PromptTokens,
			OutputTokens: wire.Usage.CompletionTokens,
		},
	}
	if len(wire.Choices) > 0 {
		response.Text = wire.Choices[0].Message.Content
		response.StopReason = mapOpenAIFinishReason(wire.Choices[0].FinishReason)
	}
	return response
}

func mapOpenAIFinishReason(reason string) StopReason {
	switch strings.ToLower(reason) {
	case "stop":
		return StopEndTurn
	case "length":
		return StopMaxTokens
	default:
		return StopOther
	}
}
