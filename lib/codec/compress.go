// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression identifies how a blob payload is compressed. The values
// are stored in the audit database; changing them breaks existing
// databases.
type Compression uint8

const (
	// CompressionNone stores the payload as is. Compress falls back to
	// it for payloads that do not shrink.
	CompressionNone Compression = 0

	// CompressionLZ4 is LZ4 block compression: fast, modest ratio.
	CompressionLZ4 Compression = 1

	// CompressionZstd is zstd at the default level: better ratio on
	// text and JSON-like data.
	CompressionZstd Compression = 2
)

func (compression Compression) String() string {
	switch compression {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", compression)
	}
}

// ParseCompression parses the names String returns.
func ParseCompression(name string) (Compression, error) {
	switch name {
	case "none", "":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZstd, nil
	default:
		return 0, fmt.Errorf("codec: unknown compression %q", name)
	}
}

var errIncompressible = errors.New("codec: data is incompressible")

var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("codec: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("codec: zstd decoder initialization failed: " + err.Error())
	}
}

// Compress compresses data with the requested algorithm and reports the
// algorithm actually used: CompressionNone when the output would not be
// smaller than the input.
func Compress(data []byte, compression Compression) ([]byte, Compression, error) {
	var compressed []byte
	var err error
	switch compression {
	case CompressionNone:
		return data, CompressionNone, nil
	case CompressionLZ4:
		compressed, err = compressLZ4(data)
	case CompressionZstd:
		compressed, err = compressZstd(data)
	default:
		return nil, 0, fmt.Errorf("codec: unsupported compression %d", compression)
	}
	if errors.Is(err, errIncompressible) {
		return data, CompressionNone, nil
	}
	if err != nil {
		return nil, 0, err
	}
	return compressed, compression, nil
}

// Decompress reverses Compress. size must be the exact uncompressed
// length.
func Decompress(compressed []byte, compression Compression, size int) ([]byte, error) {
	switch compression {
	case CompressionNone:
		if len(compressed) != size {
			return nil, fmt.Errorf("codec: stored payload is %d bytes, expected %d", len(compressed), size)
		}
		return compressed, nil
	case CompressionLZ4:
		destination := make([]byte, size)
		read, err := lz4.UncompressBlock(compressed, destination)
		if err != nil {
			return nil, fmt.Errorf("codec: lz4 decompress: %w", err)
		}
		if read != size {
			return nil, fmt.Errorf("codec: lz4 decompress: got %d bytes, expected %d", read, size)
		}
		return destination, nil
	case CompressionZstd:
		destination, err := zstdDecoder.DecodeAll(compressed, make([]byte, 0, size))
		if err != nil {
			return nil, fmt.Errorf("codec: zstd decompress: %w", err)
		}
		if len(destination) != size {
			return nil, fmt.Errorf("codec: zstd decompress: got %d bytes, expected %d", len(destination), size)
		}
		return destination, nil
	default:
		return nil, fmt.Errorf("codec: unsupported compression %d", compression)
	}
}

func compressLZ4(data []byte) ([]byte, error) {
	destination := make([]byte, lz4.CompressBlockBound(len(data)))
	written, err := lz4.CompressBlock(data, destination, nil)
	if err != nil {
		return nil, fmt.Errorf("codec: lz4 compress: %w", err)
	}
	// Zero means lz4 judged the input incompressible.
	if written == 0 || written >= len(data) {
		return nil, errIncompressible
	}
	return destination[:written], nil
}

func compressZstd(data []byte) ([]byte, error) {
	compressed := zstdEncoder.EncodeAll(data, nil)
	if len(compressed) >= len(data) {
		return nil, errIncompressible
	}
	return compressed, nil
}

// PackBlob frames data as tag, uvarint length, payload.
func PackBlob(data []byte, compression Compression) ([]byte, error) {
	payload, used, err := Compress(data, compression)
	if err != nil {
		return nil, err
	}
	blob := make([]byte, 0, 1+binary.MaxVarintLen64+len(payload))
	blob = append(blob, byte(used))
	blob = binary.AppendUvarint(blob, uint64(len(data)))
	return append(blob, payload...), nil
}

// UnpackBlob reverses PackBlob.
func UnpackBlob(blob []byte) ([]byte, error) {
	if len(blob) == 0 {
		return nil, errors.New("codec: empty blob")
	}
	size, read := binary.Uvarint(blob[1:])
	if read <= 0 {
		return nil, errors.New("codec: blob has a malformed length")
	}
	return Decompress(blob[1+read:], Compression(blob[0]), int(size))
}

// EncodeBlob marshals v to CBOR and packs it.
func EncodeBlob(v any, compression Compression) ([]byte, error) {
	data, err := Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("codec: encoding blob: %w", err)
	}
	return PackBlob(data, compression)
}

// DecodeBlob unpacks blob and unmarshals the CBOR inside into v.
func DecodeBlob(blob []byte, v any) error {
	data, err := UnpackBlob(blob)
	if err != nil {
		return err
	}
	if err := Unmarshal(data, v); err != nil {
		return fmt.Errorf("codec: decoding blob: %w", err)
	}
	return nil
}
