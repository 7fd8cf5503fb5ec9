// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"reflect"
	"strings"
	"testing"
)

// finding uses json tags only, like the result types of built-in tasks.
type finding struct {
	Claim      string `json:"claim"`
	Confidence string `json:"confidence,omitempty"`
	Line       int    `json:"line"`
}

func TestMarshalDeterministic(t *testing.T) {
	t.Parallel()

	value := map[string]any{"zeta": 1, "alpha": []any{"a", 2.5}, "mid": nil}
	first, err := Marshal(value)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	for range 20 {
		again, err := Marshal(value)
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		if !bytes.Equal(first, again) {
			t.Fatalf("encoding differs between calls: %x != %x", first, again)
		}
	}
}

func TestJSONTagsNameFields(t *testing.T) {
	t.Parallel()

	data, err := Marshal(finding{Claim: "growth", Line: 3})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded any
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	want := map[string]any{"claim": "growth", "line": int64(3)}
	if !reflect.DeepEqual(decoded, want) {
		t.Errorf("decoded = %#v, want %#v", decoded, want)
	}

	diagnostic, err := Diagnose(data)
	if err != nil {
		t.Fatalf("Diagnose: %v", err)
	}
	if !strings.Contains(diagnostic, `"claim"`) {
		t.Errorf("diagnostic %s does not name the claim field", diagnostic)
	}
}

func TestBlobRoundTrip(t *testing.T) {
	t.Parallel()

	repetitive := map[string]any{
		"findings": []any{strings.Repeat("the same sentence again. ", 200)},
		"count":    int64(7),
	}
	tests := []struct {
		name        string
		value       any
		compression Compression
		wantTag     Compression
	}{
		{name: "none", value: repetitive, compression: CompressionNone, wantTag: CompressionNone},
		{name: "lz4", value: repetitive, compression: CompressionLZ4, wantTag: CompressionLZ4},
		{name: "zstd", value: repetitive, compression: CompressionZstd, wantTag: CompressionZstd},
		{name: "tiny value stays uncompressed", value: map[string]any{"n": int64(1)}, compression: CompressionZstd, wantTag: CompressionNone},
		{name: "nil", value: nil, compression: CompressionLZ4, wantTag: CompressionNone},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			blob, err := EncodeBlob(test.value, test.compression)
			if err != nil {
				t.Fatalf("EncodeBlob: %v", err)
			}
			if Compression(blob[0]) != test.wantTag {
				t.Errorf("stored compression = %s, want %s", Compression(blob[0]), test.wantTag)
			}
			var decoded any
			if err := DecodeBlob(blob, &decoded); err != nil {
				t.Fatalf("DecodeBlob: %v", err)
			}
			if !reflect.DeepEqual(decoded, test.value) {
				t.Errorf("decoded = %#v, want %#v", decoded, test.value)
			}
		})
	}
}

func TestUnpackBlobRejectsCorruption(t *testing.T) {
	t.Parallel()

	blob, err := PackBlob(bytes.Repeat([]byte("abcd"), 100), CompressionZstd)
	if err != nil {
		t.Fatalf("PackBlob: %v", err)
	}
	tests := map[string][]byte{
		"empty":         {},
		"unknown tag":   append([]byte{9}, blob[1:]...),
		"truncated":     blob[:len(blob)/2],
		"length only":   {byte(CompressionNone), 0x80},
		"size mismatch": {byte(CompressionNone), 5, 'a', 'b'},
	}
	for name, corrupt := range tests {
		if _, err := UnpackBlob(corrupt); err == nil {
			t.Errorf("%s: UnpackBlob succeeded, want an error", name)
		}
	}
}

func TestParseCompression(t *testing.T) {
	t.Parallel()

	for _, compression := range []Compression{CompressionNone, CompressionLZ4, CompressionZstd} {
		parsed, err := ParseCompression(compression.String())
		if err != nil || parsed != compression {
			t.Errorf("ParseCompression(%q) = %v, %v", compression.String(), parsed, err)
		}
	}
	if _, err := ParseCompression("gzip"); err == nil {
		t.Errorf("ParseCompression(gzip) succeeded")
	}
}
