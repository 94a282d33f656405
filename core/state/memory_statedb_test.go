package state

import (
	"math/big"
	"testing"

	"github.com/eth2030/eth2030/core/types"
	"github.com/stretchr/testify/require"
)

// TestSnapshotRevertRoundTrip covers the journal round-trip property: after
// RevertToSnapshot, every account field touched since the snapshot (balance,
// nonce, code, storage, selfdestruct flag, refund counter, and logs) must
// read back exactly as it did at snapshot time, while warm access-list
// entries made after the snapshot must survive the revert.
func TestSnapshotRevertRoundTrip(t *testing.T) {
	addr := types.HexToAddress("0x1234000000000000000000000000000000abcd")
	key := types.HexToHash("0x01")

	s := NewMemoryStateDB()
	s.CreateAccount(addr)
	s.AddBalance(addr, big.NewInt(1000))
	s.SetNonce(addr, 1)
	s.SetCode(addr, []byte{0x60, 0x00})
	s.SetState(addr, key, types.HexToHash("0xaa"))
	s.AddAddressToAccessList(addr) // warm before snapshot

	preBalance := s.GetBalance(addr)
	preNonce := s.GetNonce(addr)
	preCode := s.GetCode(addr)
	preCodeHash := s.GetCodeHash(addr)
	preState := s.GetState(addr, key)
	preRefund := s.GetRefund()

	snap := s.Snapshot()

	// Mutate everything a frame could touch.
	s.AddBalance(addr, big.NewInt(500))
	s.SetNonce(addr, 2)
	s.SetCode(addr, []byte{0x60, 0x01, 0x00})
	s.SetState(addr, key, types.HexToHash("0xbb"))
	s.AddRefund(100)
	s.SelfDestruct(addr)
	s.AddLog(&types.Log{Address: addr})
	newAddr := types.HexToAddress("0x9999000000000000000000000000000000beef")
	s.AddAddressToAccessList(newAddr) // warm after snapshot

	s.RevertToSnapshot(snap)

	require.Equal(t, preBalance.String(), s.GetBalance(addr).String())
	require.Equal(t, preNonce, s.GetNonce(addr))
	require.Equal(t, preCode, s.GetCode(addr))
	require.Equal(t, preCodeHash, s.GetCodeHash(addr))
	require.Equal(t, preState, s.GetState(addr, key))
	require.Equal(t, preRefund, s.GetRefund())
	require.False(t, s.HasSelfDestructed(addr))
	require.Empty(t, s.GetLogs(types.Hash{}))

	// Warm-set insertions are intentionally not rolled back by a revert.
	require.True(t, s.AddressInAccessList(addr))
	require.True(t, s.AddressInAccessList(newAddr))
}

// TestSnapshotRevertUndoesAccountCreation covers the case where the account
// itself (not just a field) was created after the snapshot: reverting must
// make it disappear entirely, matching CreateAccount's own journal entry.
func TestSnapshotRevertUndoesAccountCreation(t *testing.T) {
	addr := types.HexToAddress("0x1111000000000000000000000000000000aaaa")

	s := NewMemoryStateDB()
	require.False(t, s.Exist(addr))

	snap := s.Snapshot()
	s.CreateAccount(addr)
	s.AddBalance(addr, big.NewInt(1))
	require.True(t, s.Exist(addr))

	s.RevertToSnapshot(snap)
	require.False(t, s.Exist(addr))
}

// TestNestedSnapshotsRevertIndependently covers reverting an inner
// checkpoint while keeping outer changes intact, as required for nested
// call/create frames.
func TestNestedSnapshotsRevertIndependently(t *testing.T) {
	addr := types.HexToAddress("0x2222000000000000000000000000000000bbbb")

	s := NewMemoryStateDB()
	s.CreateAccount(addr)
	s.SetNonce(addr, 1)

	outer := s.Snapshot()
	s.SetNonce(addr, 2)

	inner := s.Snapshot()
	s.SetNonce(addr, 3)
	s.RevertToSnapshot(inner)
	require.Equal(t, uint64(2), s.GetNonce(addr), "inner revert must undo only the inner frame's change")

	s.RevertToSnapshot(outer)
	require.Equal(t, uint64(1), s.GetNonce(addr), "outer revert must undo everything since the outer snapshot")
}
