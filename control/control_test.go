// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package control

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestProbesDumpState(t *testing.T) {
	p := NewProbes()
	p.RegisterProbe("connections", func() any { return 42 })
	p.RegisterProbe("workers", func() any { return 4 })

	snap := p.DumpState()
	require.Equal(t, 42, snap["connections"])
	require.Equal(t, 4, snap["workers"])
}

func TestProbesReRegisterReplaces(t *testing.T) {
	p := NewProbes()
	p.RegisterProbe("x", func() any { return 1 })
	p.RegisterProbe("x", func() any { return 2 })
	require.Equal(t, 2, p.DumpState()["x"])
}

func TestStatsAliasesDumpState(t *testing.T) {
	p := NewProbes()
	p.RegisterProbe("alive", func() any { return true })
	require.Equal(t, p.DumpState(), p.Stats())
}
