// File: codec/codec.go
// Package codec names the Serializer and Compressor contracts the
// engine consumes without caring about the concrete encoding. It
// ships one default implementation of each (JSON, gzip) so the engine
// and lps.Session run out of the box; operators supply their own
// TLV/AMF3/Protobuf Serializer or a different Compressor without
// touching core/reactor/conn code.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package codec

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"io"
)

// Serializer decodes a byte stream into an opaque Value and encodes a
// Value back into bytes.
type Serializer interface {
	Decode(data []byte) (any, error)
	Encode(v any) ([]byte, error)
}

// Compressor deflates/inflates byte vectors.
type Compressor interface {
	Deflate(p []byte) ([]byte, error)
	Inflate(p []byte) ([]byte, error)
}

// JSON is the default Serializer.
type JSON struct{}

func (JSON) Decode(data []byte) (any, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}

func (JSON) Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Gzip is the default Compressor, used by lps.Session when a client
// advertises gzip support.
type Gzip struct{}

func (Gzip) Deflate(p []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(p); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (Gzip) Inflate(p []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(p))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
