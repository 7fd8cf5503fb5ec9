// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/jsonc"
)

// ErrNoChoices is returned by InvokeChoice for an empty label set.
var ErrNoChoices = errors.New("gateway: choices must not be empty")

const (
	jsonInstruction = "\n\nIMPORTANT: Respond with valid JSON only. No explanation, no markdown, just JSON."
	boolInstruction = "\n\nAnswer with exactly 'yes' or 'no'."
)

// InvokeJSON asks for a JSON reply and decodes it into plain Go values
// (map[string]any, []any, float64, string, bool, nil). A reply that does
// not decode yields fallback with a nil error. Budget and transport
// errors are returned as from Invoke.
func (gateway *Gateway) InvokeJSON(ctx context.Context, prompt, chunk string, fallback any) (any, error) {
	text, err := gateway.Invoke(ctx, prompt+jsonInstruction, chunk)
	if err != nil {
		return nil, err
	}
	var value any
	if err := DecodeJSONReply(text, &value); err != nil {
		gateway.logger.Debug("json reply fell back to default", "error", err)
		return fallback, nil
	}
	return value, nil
}

// InvokeJSONAs is InvokeJSON decoding into T.
func InvokeJSONAs[T any](ctx context.Context, gateway *Gateway, prompt, chunk string, fallback T) (T, error) {
	text, err := gateway.Invoke(ctx, prompt+jsonInstruction, chunk)
	if err != nil {
		var zero T
		return zero, err
	}
	var value T
	if err := DecodeJSONReply(text, &value); err != nil {
		gateway.logger.Debug("json reply fell back to default", "error", err)
		return fallback, nil
	}
	return value, nil
}

// DecodeJSONReply decodes model output into target. It accepts a bare
// document, one wrapped in a markdown code fence, and one embedded in
// surrounding prose. Comments and trailing commas are tolerated.
func DecodeJSONReply(text string, target any) error {
	candidate := stripCodeFence(strings.TrimSpace(text))
	err := json.Unmarshal(jsonc.ToJSON([]byte(candidate)), target)
	if err == nil {
		return nil
	}
	if embedded, found := extractEmbeddedJSON(candidate); found {
		if json.Unmarshal(jsonc.ToJSON([]byte(embedded)), target) == nil {
			return nil
		}
	}
	return fmt.Errorf("gateway: reply is not JSON: %w", err)
}

func stripCodeFence(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}
	lines := strings.Split(text, "\n")
	lines = lines[1:]
	if len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[:len(lines)-1]
	}
	return strings.Join(lines, "\n")
}

// extractEmbeddedJSON returns the span from the first opening bracket to
// the last matching closing bracket.
func extractEmbeddedJSON(text string) (string, bool) {
	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return "", false
	}
	closer := "}"
	if text[start] == '[' {
		closer = "]"
	}
	end := strings.LastIndex(text, closer)
	if end <= start {
		return "", false
	}
	return text[start : end+1], true
}

// InvokeBool asks a yes/no question. Recognized replies, ignoring case
// and surrounding punctuation, are yes/true/1 and no/false/0; anything
// else yields fallback.
func (gateway *Gateway) InvokeBool(ctx context.Context, prompt, chunk string, fallback bool) (bool, error) {
	text, err := gateway.Invoke(ctx, prompt+boolInstruction, chunk)
	if err != nil {
		return false, err
	}
	value, ok := ParseBoolReply(text)
	if !ok {
		gateway.logger.Debug("bool reply fell back to default", "reply", truncate(text, 80))
		return fallback, nil
	}
	return value, nil
}

// ParseBoolReply maps a reply onto the boolean vocabulary.
func ParseBoolReply(text string) (value bool, ok bool) {
	switch strings.ToLower(strings.Trim(text, " \t\r\n.!'\"`")) {
	case "yes", "true", "1":
		return true, true
	case "no", "false", "0":
		return false, true
	default:
		return false, false
	}
}

// InvokeChoice asks the model to pick one of choices and maps the reply
// to a label: exact match first, then a case-insensitive match, then the
// first label contained in the reply. No match yields fallback.
func (gateway *Gateway) InvokeChoice(ctx context.Context, prompt, chunk string, choices []string, fallback string) (string, error) {
	if len(choices) == 0 {
		return "", ErrNoChoices
	}
	quoted := make([]string, len(choices))
	for index, choice := range choices {
		quoted[index] = "'" + choice + "'"
	}
	text, err := gateway.Invoke(ctx, fmt.Sprintf(
		"%s\n\nChoose exactly one of: %s\nRespond with only your choice, nothing else.",
		prompt, strings.Join(quoted, ", ")), chunk)
	if err != nil {
		return "", err
	}
	if choice, ok := MatchChoice(text, choices); ok {
		return choice, nil
	}
	gateway.logger.Debug("choice reply fell back to default", "reply", truncate(text, 80))
	return fallback, nil
}

// MatchChoice finds the label a reply names.
func MatchChoice(reply string, choices []string) (string, bool) {
	reply = strings.TrimSpace(reply)
	for _, choice := range choices {
		if reply == choice {
			return choice, true
		}
	}
	for _, choice := range choices {
		if strings.EqualFold(reply, choice) {
			return choice, true
		}
	}
	lowered := strings.ToLower(reply)
	for _, choice := range choices {
		if choice != "" && strings.Contains(lowered, strings.ToLower(choice)) {
			return choice, true
		}
	}
	return "", false
}

func truncate(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "..."
}
