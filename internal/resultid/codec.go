// Package resultid encodes search-hit provenance into opaque, URL-safe ids of
// the form "<kind>:<payload>" and decodes them back without a database round
// trip.
package resultid

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/klauspost/compress/zstd"

	"wpmcp/internal/model"
)

const (
	separator = ":"

	markerPlain = 'j'
	markerZstd  = 'z'

	// Payloads below this size are never worth a zstd frame header.
	compressThreshold = 512
)

var (
	encoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	decoder, _ = zstd.NewReader(nil)

	encoding = base64.RawURLEncoding
)

// Encode serializes payload and prefixes it with kind. It fails only when kind
// is empty or contains the separator, or payload is not JSON-serializable.
func Encode(kind string, payload any) (string, error) {
	if kind == "" {
		return "", errors.New("result kind is required")
	}
	if strings.Contains(kind, separator) {
		return "", fmt.Errorf("result kind %q must not contain %q", kind, separator)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal result payload: %w", err)
	}

	marker := byte(markerPlain)
	body := raw
	if len(raw) >= compressThreshold {
		if compressed := encoder.EncodeAll(raw, nil); len(compressed) < len(raw) {
			marker = markerZstd
			body = compressed
		}
	}

	var b strings.Builder
	b.Grow(len(kind) + 2 + encoding.EncodedLen(len(body)))
	b.WriteString(kind)
	b.WriteString(separator)
	b.WriteByte(marker)
	b.WriteString(encoding.EncodeToString(body))
	return b.String(), nil
}

// Decode splits id on its first separator and restores the payload. Every
// failure is a *model.DecodingError.
func Decode(id string) (string, json.RawMessage, error) {
	kind, encoded, ok := strings.Cut(strings.TrimSpace(id), separator)
	if !ok {
		return "", nil, &model.DecodingError{Reason: "missing kind separator"}
	}
	if kind == "" {
		return "", nil, &model.DecodingError{Reason: "empty kind"}
	}
	if encoded == "" {
		return "", nil, &model.DecodingError{Reason: "empty payload"}
	}

	marker, text := encoded[0], encoded[1:]
	body, err := encoding.DecodeString(text)
	if err != nil {
		return "", nil, &model.DecodingError{Reason: "malformed payload encoding", Cause: err}
	}

	switch marker {
	case markerPlain:
	case markerZstd:
		body, err = decoder.DecodeAll(body, nil)
		if err != nil {
			return "", nil, &model.DecodingError{Reason: "corrupt compressed payload", Cause: err}
		}
	default:
		return "", nil, &model.DecodingError{Reason: fmt.Sprintf("unknown payload marker %q", marker)}
	}

	body = bytes.TrimSpace(body)
	if !json.Valid(body) {
		return "", nil, &model.DecodingError{Reason: "payload is not valid JSON"}
	}
	return kind, json.RawMessage(body), nil
}

// DecodeInto decodes id and unmarshals its payload into v.
func DecodeInto(id string, v any) (string, error) {
	kind, payload, err := Decode(id)
	if err != nil {
		return "", err
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return "", &model.DecodingError{Reason: "payload does not match the expected shape", Cause: err}
	}
	return kind, nil
}
