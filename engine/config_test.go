// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package engine

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveWorkers(t *testing.T) {
	n, err := resolveWorkers(nil)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	n, err = resolveWorkers("auto")
	require.NoError(t, err)
	require.Equal(t, 0, n)

	n, err = resolveWorkers(float64(8))
	require.NoError(t, err)
	require.Equal(t, 8, n)

	n, err = resolveWorkers(1)
	require.NoError(t, err)
	require.Equal(t, 2, n, "core.workers floor is 2")

	_, err = resolveWorkers("not-a-number")
	require.Error(t, err)

	_, err = resolveWorkers(3.5)
	require.NoError(t, err) // truncates, does not reject
}

func TestValidateRequiresAtLeastOneTransport(t *testing.T) {
	_, err := validate(rawConfig{})
	require.Error(t, err)
}

func TestValidateRequiresTransportFields(t *testing.T) {
	raw := rawConfig{}
	raw.Transports = []TransportConfig{{Type: "http", Port: 8080}}
	_, err := validate(raw)
	require.ErrorContains(t, err, "name")

	raw.Transports = []TransportConfig{{Name: "web", Port: 8080}}
	_, err = validate(raw)
	require.ErrorContains(t, err, "type")

	raw.Transports = []TransportConfig{{Name: "web", Type: "http"}}
	_, err = validate(raw)
	require.ErrorContains(t, err, "port")
}

func TestValidateDefaultsTimeZoneToUTC(t *testing.T) {
	raw := rawConfig{}
	raw.Transports = []TransportConfig{{Name: "web", Type: "http", Port: 8080}}
	cfg, err := validate(raw)
	require.NoError(t, err)
	require.Equal(t, "UTC", cfg.TimeZone.String())
}

func TestValidateRejectsUnknownTimeZone(t *testing.T) {
	raw := rawConfig{}
	raw.Core.TimeZone = "Not/AZone"
	raw.Transports = []TransportConfig{{Name: "web", Type: "http", Port: 8080}}
	_, err := validate(raw)
	require.Error(t, err)
}
