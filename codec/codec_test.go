// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package codec

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestJSONRoundTrip(t *testing.T) {
	var j JSON
	enc, err := j.Encode(map[string]any{"a": float64(1)})
	require.NoError(t, err)
	dec, err := j.Decode(enc)
	require.NoError(t, err)
	require.Equal(t, map[string]any{"a": float64(1)}, dec)
}

func TestGzipRoundTrip(t *testing.T) {
	var g Gzip
	deflated, err := g.Deflate([]byte("hello world"))
	require.NoError(t, err)
	require.NotEqual(t, []byte("hello world"), deflated)
	inflated, err := g.Inflate(deflated)
	require.NoError(t, err)
	require.Equal(t, []byte("hello world"), inflated)
}
