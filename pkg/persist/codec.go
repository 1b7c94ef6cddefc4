// Package persist provides codec-based persistence for companion files:
// a Codec turns state into bytes, a Container wraps those bytes on disk
// (plain or LZ4-compressed), and writes replace the target atomically.
package persist

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/pierrec/lz4/v4"
)

// Default indentation for pretty-printed JSON.
const defaultIndent = "  "

// Codec defines how state is serialized and deserialized.
type Codec interface {
	// Marshal encodes the state to bytes.
	Marshal(state any) ([]byte, error)
	// Unmarshal decodes the state from bytes.
	Unmarshal(data []byte, state any) error
}

// JSONCodec implements Codec using JSON encoding with optional indentation.
type JSONCodec struct {
	// Indent specifies the indentation string. Empty string means compact JSON.
	Indent string
}

// NewJSONCodec creates a JSON codec with pretty-printing (2-space indent).
func NewJSONCodec() *JSONCodec {
	return &JSONCodec{Indent: defaultIndent}
}

// NewCompactJSONCodec creates a JSON codec without indentation.
func NewCompactJSONCodec() *JSONCodec {
	return &JSONCodec{}
}

// Marshal implements Codec.Marshal using JSON encoding.
func (c *JSONCodec) Marshal(state any) ([]byte, error) {
	var (
		data []byte
		err  error
	)

	if c.Indent != "" {
		data, err = json.MarshalIndent(state, "", c.Indent)
	} else {
		data, err = json.Marshal(state)
	}

	if err != nil {
		return nil, fmt.Errorf("json encode: %w", err)
	}

	return data, nil
}

// Unmarshal implements Codec.Unmarshal using JSON decoding.
func (c *JSONCodec) Unmarshal(data []byte, state any) error {
	err := json.Unmarshal(data, state)
	if err != nil {
		return fmt.Errorf("json decode: %w", err)
	}

	return nil
}

// Container wraps encoded state bytes into their on-disk representation.
type Container interface {
	// Pack transforms encoded bytes into their stored form.
	Pack(data []byte) ([]byte, error)
	// Unpack reverses Pack.
	Unpack(data []byte) ([]byte, error)
}

// NopContainer stores bytes as-is.
type NopContainer struct{}

// Pack implements Container.Pack as the identity.
func (NopContainer) Pack(data []byte) ([]byte, error) {
	return data, nil
}

// Unpack implements Container.Unpack as the identity.
func (NopContainer) Unpack(data []byte) ([]byte, error) {
	return data, nil
}

// LZ4Container stores bytes as an LZ4 frame. Offset tables are highly
// repetitive and compress well.
type LZ4Container struct{}

// Pack implements Container.Pack using the LZ4 frame format.
func (LZ4Container) Pack(data []byte) ([]byte, error) {
	var buf bytes.Buffer

	w := lz4.NewWriter(&buf)

	_, err := w.Write(data)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}

	closeErr := w.Close()
	if closeErr != nil {
		return nil, fmt.Errorf("lz4 finalize: %w", closeErr)
	}

	return buf.Bytes(), nil
}

// Unpack implements Container.Unpack using the LZ4 frame format.
func (LZ4Container) Unpack(data []byte) ([]byte, error) {
	r := lz4.NewReader(bytes.NewReader(data))

	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("lz4 decompress: %w", err)
	}

	return out, nil
}
