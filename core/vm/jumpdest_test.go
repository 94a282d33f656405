package vm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// jumpdestBitmap reproduces Contract.analyzeJumpdests's classification
// independently of JumpdestProof, for use as the parity oracle below.
func jumpdestBitmap(code []byte) map[uint64]bool {
	c := &Contract{Code: code}
	bitmap := make(map[uint64]bool)
	for i := uint64(0); i < uint64(len(code)); i++ {
		if c.isCode(i) && OpCode(code[i]) == JUMPDEST {
			bitmap[i] = true
		}
	}
	return bitmap
}

func TestBuildJumpdestProofsMatchesScan(t *testing.T) {
	codes := [][]byte{
		{byte(JUMPDEST), byte(STOP)},
		{byte(PUSH1), byte(JUMPDEST), byte(JUMPDEST), byte(STOP)},
		append(append([]byte{byte(PUSH32)}, make([]byte, 32)...), byte(JUMPDEST)),
		buildLongCode(),
	}

	for _, code := range codes {
		want := jumpdestBitmap(code)
		proofs := BuildJumpdestProofs(code)

		require.Equal(t, len(want), len(proofs), "proof count must match scan-derived bitmap")
		for _, p := range proofs {
			require.True(t, want[p.Addr], "proof claims non-jumpdest offset %d", p.Addr)
			require.True(t, VerifyJumpdestProof(code, p), "constructed proof for offset %d failed verification", p.Addr)
		}
	}
}

func TestVerifyJumpdestProofRejectsBadClaims(t *testing.T) {
	code := []byte{byte(PUSH1), byte(JUMPDEST), byte(JUMPDEST), byte(STOP)}

	// Offset 1 is PUSH1's immediate byte, not a real JUMPDEST.
	require.False(t, VerifyJumpdestProof(code, JumpdestProof{Addr: 1, Start: 0}))

	// Offset 2 is a genuine JUMPDEST.
	require.True(t, VerifyJumpdestProof(code, JumpdestProof{Addr: 2, Start: 0}))

	// Out of bounds.
	require.False(t, VerifyJumpdestProof(code, JumpdestProof{Addr: uint64(len(code)), Start: 0}))

	// A Start beyond Addr is never valid.
	require.False(t, VerifyJumpdestProof(code, JumpdestProof{Addr: 2, Start: 3}))
}

func TestVerifyJumpdestProofRejectsStraddlingStart(t *testing.T) {
	// PUSH32 at offset 0 covers bytes [1,33). A JUMPDEST byte value placed
	// inside that immediate region is data, not an opcode; claiming Start
	// lands cleanly there must fail isCleanJumpBoundary.
	code := make([]byte, 40)
	code[0] = byte(PUSH32)
	code[20] = byte(JUMPDEST) // inside the PUSH32 immediate: not a real jumpdest
	code[33] = byte(JUMPDEST) // first byte after the immediate: a real jumpdest

	require.False(t, VerifyJumpdestProof(code, JumpdestProof{Addr: 20, Start: 0}))
	require.True(t, VerifyJumpdestProof(code, JumpdestProof{Addr: 33, Start: 0}))
	require.False(t, VerifyJumpdestProof(code, JumpdestProof{Addr: 33, Start: 20}))
}

func buildLongCode() []byte {
	code := make([]byte, 0, 256)
	for i := 0; i < 20; i++ {
		code = append(code, byte(JUMPDEST))
		code = append(code, byte(PUSH1), 0x01)
		code = append(code, byte(ADD))
	}
	code = append(code, byte(STOP))
	return code
}
