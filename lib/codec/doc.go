// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec encodes values stored in the audit database.
//
// JSON is the external format: result envelopes on stdout and --json
// output. CBOR is the storage format: task results and their partial
// values are written as Core Deterministic CBOR (RFC 8949 §4.2), so the
// same result always produces the same bytes. fxamacker/cbor reads
// `json` struct tags when `cbor` tags are absent, which lets the result
// types of built-in tasks be stored without extra annotations.
//
// Stored blobs are optionally compressed. A blob is a one-byte
// [Compression] tag, the uncompressed length as a uvarint, and the
// payload:
//
//	blob, err := codec.EncodeBlob(result.Value, codec.CompressionZstd)
//	var value any
//	err = codec.DecodeBlob(blob, &value)
//
// Model responses are plain text and use [Compress] directly.
package codec
