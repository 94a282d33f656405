package vm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestCallGas63Over64Rule covers EIP-150: a CALL-family opcode may forward at
// most all-but-one-64th of the caller's remaining gas, and never more than
// what was actually requested.
func TestCallGas63Over64Rule(t *testing.T) {
	cases := []struct {
		name          string
		availableGas  uint64
		requestedGas  uint64
		wantForwarded uint64
	}{
		{
			name:          "request exceeds cap, forwards 63/64",
			availableGas:  6400,
			requestedGas:  6400,
			wantForwarded: 6400 - 6400/64,
		},
		{
			name:          "request under cap forwards exactly requested",
			availableGas:  6400,
			requestedGas:  50,
			wantForwarded: 50,
		},
		{
			name:          "request of all available gas is clipped",
			availableGas:  1000000,
			requestedGas:  1000000,
			wantForwarded: 1000000 - 1000000/64,
		},
		{
			name:          "zero available gas forwards nothing",
			availableGas:  0,
			requestedGas:  100,
			wantForwarded: 0,
		},
		{
			name:          "small available gas below 64 retains nothing extra",
			availableGas:  63,
			requestedGas:  63,
			wantForwarded: 63 - 63/64,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := CallGas(tc.availableGas, tc.requestedGas)
			require.Equal(t, tc.wantForwarded, got)
			require.LessOrEqual(t, got, tc.availableGas, "forwarded gas must never exceed what's available")

			kept := tc.availableGas - got
			if tc.requestedGas >= tc.availableGas-tc.availableGas/CallGasFraction {
				require.GreaterOrEqual(t, kept, tc.availableGas/CallGasFraction, "caller must retain at least 1/64th when the request is capped")
			}
		})
	}
}
