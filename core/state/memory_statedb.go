package state

import (
	"bytes"
	"encoding/binary"
	"math/big"
	"sort"

	"github.com/eth2030/eth2030/core/types"
	"github.com/eth2030/eth2030/crypto"
)

// stateObject represents an Ethereum account with its associated state.
type stateObject struct {
	account          types.Account
	code             []byte
	dirtyStorage     map[types.Hash]types.Hash
	committedStorage map[types.Hash]types.Hash
	selfDestructed   bool
}

func newStateObject() *stateObject {
	return &stateObject{
		account:          types.NewAccount(),
		dirtyStorage:     make(map[types.Hash]types.Hash),
		committedStorage: make(map[types.Hash]types.Hash),
	}
}

// MemoryStateDB is an in-memory implementation of the StateDB interface. It
// owns the journal, the EIP-2929 access list, and the per-transaction
// touched/created-contract sets that the transaction driver prunes and
// selfdestructs at the end of each transaction. No trie-based world-state
// root is computed here (GetRoot is a flat content digest), and no state
// root is checked against a claimed value.
type MemoryStateDB struct {
	stateObjects map[types.Address]*stateObject
	journal      *journal
	logs         map[types.Hash][]*types.Log
	refund       uint64
	accessList   *accessList

	// touched holds every address visited during the current transaction.
	// Entries are pruned at transaction end if the account is empty.
	touched map[types.Address]struct{}

	// createdContracts holds addresses CREATE/CREATE2'd during the current
	// transaction. Per EIP-6780, SELFDESTRUCT only deletes an account if its
	// address is present in this set.
	createdContracts map[types.Address]struct{}

	// Current transaction context for log attribution.
	txHash  types.Hash
	txIndex int

	metrics *StateMetrics
}

// NewMemoryStateDB creates a new in-memory state database.
func NewMemoryStateDB() *MemoryStateDB {
	return &MemoryStateDB{
		stateObjects:     make(map[types.Address]*stateObject),
		journal:          newJournal(),
		logs:             make(map[types.Hash][]*types.Log),
		accessList:       newAccessList(),
		touched:          make(map[types.Address]struct{}),
		createdContracts: make(map[types.Address]struct{}),
		metrics:          NewStateMetrics(),
	}
}

// Metrics returns the state database's operation counters.
func (s *MemoryStateDB) Metrics() *StateMetrics {
	return s.metrics
}

func (s *MemoryStateDB) getStateObject(addr types.Address) *stateObject {
	return s.stateObjects[addr]
}

func (s *MemoryStateDB) getOrNewStateObject(addr types.Address) *stateObject {
	if obj := s.stateObjects[addr]; obj != nil {
		return obj
	}
	obj := newStateObject()
	s.stateObjects[addr] = obj
	return obj
}

// markTouched records addr as visited this transaction, journalling the
// first visit so a frame revert un-marks it too.
func (s *MemoryStateDB) markTouched(addr types.Address) {
	if _, ok := s.touched[addr]; ok {
		return
	}
	s.journal.append(touchedChange{addr: addr})
	s.touched[addr] = struct{}{}
}

// --- Account operations ---

func (s *MemoryStateDB) CreateAccount(addr types.Address) {
	s.markTouched(addr)
	prev := s.stateObjects[addr] // may be nil
	s.journal.append(createAccountChange{addr: addr, prev: prev})
	s.stateObjects[addr] = newStateObject()
}

func (s *MemoryStateDB) SubBalance(addr types.Address, amount *big.Int) {
	s.markTouched(addr)
	s.metrics.RecordAccountWrite()
	obj := s.getOrNewStateObject(addr)
	s.journal.append(balanceChange{addr: addr, prev: new(big.Int).Set(obj.account.Balance)})
	obj.account.Balance = new(big.Int).Sub(obj.account.Balance, amount)
}

func (s *MemoryStateDB) AddBalance(addr types.Address, amount *big.Int) {
	s.markTouched(addr)
	s.metrics.RecordAccountWrite()
	obj := s.getOrNewStateObject(addr)
	s.journal.append(balanceChange{addr: addr, prev: new(big.Int).Set(obj.account.Balance)})
	obj.account.Balance = new(big.Int).Add(obj.account.Balance, amount)
}

func (s *MemoryStateDB) GetBalance(addr types.Address) *big.Int {
	s.metrics.RecordAccountRead()
	if obj := s.getStateObject(addr); obj != nil {
		return new(big.Int).Set(obj.account.Balance)
	}
	return new(big.Int)
}

func (s *MemoryStateDB) GetNonce(addr types.Address) uint64 {
	if obj := s.getStateObject(addr); obj != nil {
		return obj.account.Nonce
	}
	return 0
}

func (s *MemoryStateDB) SetNonce(addr types.Address, nonce uint64) {
	s.markTouched(addr)
	obj := s.getOrNewStateObject(addr)
	s.journal.append(nonceChange{addr: addr, prev: obj.account.Nonce})
	obj.account.Nonce = nonce
}

func (s *MemoryStateDB) GetCode(addr types.Address) []byte {
	if obj := s.getStateObject(addr); obj != nil {
		s.metrics.RecordCodeRead(len(obj.code))
		return obj.code
	}
	return nil
}

func (s *MemoryStateDB) SetCode(addr types.Address, code []byte) {
	s.markTouched(addr)
	s.metrics.RecordCodeWrite(len(code))
	obj := s.getOrNewStateObject(addr)
	prevCode := obj.code
	prevHash := make([]byte, len(obj.account.CodeHash))
	copy(prevHash, obj.account.CodeHash)
	s.journal.append(codeChange{addr: addr, prevCode: prevCode, prevHash: prevHash})
	obj.code = code
	obj.account.CodeHash = crypto.Keccak256(code)
}

func (s *MemoryStateDB) GetCodeHash(addr types.Address) types.Hash {
	if obj := s.getStateObject(addr); obj != nil {
		return types.BytesToHash(obj.account.CodeHash)
	}
	return types.Hash{}
}

func (s *MemoryStateDB) GetCodeSize(addr types.Address) int {
	if obj := s.getStateObject(addr); obj != nil {
		return len(obj.code)
	}
	return 0
}

// --- Self-destruct ---

// MarkCreatedThisTx records addr as CREATE/CREATE2'd during the current
// transaction, as required by EIP-6780's "same-transaction" selfdestruct gate.
func (s *MemoryStateDB) MarkCreatedThisTx(addr types.Address) {
	if _, ok := s.createdContracts[addr]; ok {
		return
	}
	s.journal.append(createdContractChange{addr: addr})
	s.createdContracts[addr] = struct{}{}
}

// CreatedThisTx reports whether addr was CREATE/CREATE2'd during the
// current transaction.
func (s *MemoryStateDB) CreatedThisTx(addr types.Address) bool {
	_, ok := s.createdContracts[addr]
	return ok
}

// SelfDestruct marks addr as selfdestructed and zeroes its balance. Per
// EIP-6780, the caller must additionally check CreatedThisTx before the
// account is actually removed at transaction end; pre-Cancun-style full
// deletion for accounts not created this transaction is no longer performed
// by this core's pruning step, matching the London/Shanghai target fork.
func (s *MemoryStateDB) SelfDestruct(addr types.Address) {
	s.markTouched(addr)
	obj := s.getStateObject(addr)
	if obj == nil {
		return
	}
	s.metrics.RecordSelfDestruct()
	s.journal.append(selfDestructChange{
		addr:           addr,
		prevDestructed: obj.selfDestructed,
		prevBalance:    new(big.Int).Set(obj.account.Balance),
	})
	obj.selfDestructed = true
	obj.account.Balance = new(big.Int)
}

func (s *MemoryStateDB) HasSelfDestructed(addr types.Address) bool {
	if obj := s.getStateObject(addr); obj != nil {
		return obj.selfDestructed
	}
	return false
}

// --- Storage operations ---

func (s *MemoryStateDB) GetState(addr types.Address, key types.Hash) types.Hash {
	s.metrics.RecordStorageRead(types.HashLength)
	if obj := s.getStateObject(addr); obj != nil {
		if val, ok := obj.dirtyStorage[key]; ok {
			return val
		}
		return obj.committedStorage[key]
	}
	return types.Hash{}
}

func (s *MemoryStateDB) SetState(addr types.Address, key types.Hash, value types.Hash) {
	s.markTouched(addr)
	s.metrics.RecordStorageWrite(types.HashLength)
	obj := s.getOrNewStateObject(addr)
	prevDirty, prevExists := obj.dirtyStorage[key]
	var prev types.Hash
	if prevExists {
		prev = prevDirty
	} else {
		prev = obj.committedStorage[key]
	}
	s.journal.append(storageChange{addr: addr, key: key, prev: prev, prevExists: prevExists})
	obj.dirtyStorage[key] = value
}

func (s *MemoryStateDB) GetCommittedState(addr types.Address, key types.Hash) types.Hash {
	if obj := s.getStateObject(addr); obj != nil {
		return obj.committedStorage[key]
	}
	return types.Hash{}
}

// --- Account existence ---

func (s *MemoryStateDB) Exist(addr types.Address) bool {
	return s.stateObjects[addr] != nil
}

func (s *MemoryStateDB) Empty(addr types.Address) bool {
	obj := s.getStateObject(addr)
	if obj == nil {
		return true
	}
	return obj.account.Nonce == 0 &&
		obj.account.Balance.Sign() == 0 &&
		types.BytesToHash(obj.account.CodeHash) == types.EmptyCodeHash
}

// --- Snapshot and revert ---

func (s *MemoryStateDB) Snapshot() int {
	s.metrics.RecordSnapshot()
	return s.journal.snapshot()
}

func (s *MemoryStateDB) RevertToSnapshot(id int) {
	s.metrics.RecordRevert()
	s.journal.revertToSnapshot(id, s)
}

// --- Logs ---

func (s *MemoryStateDB) AddLog(log *types.Log) {
	// Use the current tx context hash so logs are keyed correctly.
	txHash := s.txHash
	log.TxHash = txHash
	log.TxIndex = uint(s.txIndex)
	s.journal.append(logChange{txHash: txHash, prevLen: len(s.logs[txHash])})
	s.logs[txHash] = append(s.logs[txHash], log)
}

func (s *MemoryStateDB) GetLogs(txHash types.Hash) []*types.Log {
	return s.logs[txHash]
}

// SetTxContext sets the current transaction hash and index for log attribution.
func (s *MemoryStateDB) SetTxContext(txHash types.Hash, txIndex int) {
	s.txHash = txHash
	s.txIndex = txIndex
}

// --- Refund counter ---

func (s *MemoryStateDB) AddRefund(gas uint64) {
	s.journal.append(refundChange{prev: s.refund})
	s.refund += gas
}

func (s *MemoryStateDB) SubRefund(gas uint64) {
	s.journal.append(refundChange{prev: s.refund})
	s.refund -= gas
}

func (s *MemoryStateDB) GetRefund() uint64 {
	return s.refund
}

// --- Access list (EIP-2929) ---
//
// Warm-set insertions are intentionally not journalled: once an address or
// slot is marked warm it stays warm for the rest of the transaction even if
// the frame that warmed it reverts.

func (s *MemoryStateDB) AddAddressToAccessList(addr types.Address) {
	s.accessList.AddAddress(addr)
}

func (s *MemoryStateDB) AddSlotToAccessList(addr types.Address, slot types.Hash) {
	s.accessList.AddSlot(addr, slot)
}

func (s *MemoryStateDB) AddressInAccessList(addr types.Address) bool {
	return s.accessList.ContainsAddress(addr)
}

func (s *MemoryStateDB) SlotInAccessList(addr types.Address, slot types.Hash) (addressOk bool, slotOk bool) {
	return s.accessList.ContainsSlot(addr, slot)
}

// --- Transaction lifecycle ---

// PruneTouched deletes every touched address that is empty (EIP-161) and
// every address selfdestructed and created within this transaction
// (EIP-6780), then clears the touched/created/access-list state ready for
// the next transaction. Call once after a transaction's checkpoint has been
// committed.
func (s *MemoryStateDB) PruneTouched() {
	for addr := range s.touched {
		if obj := s.stateObjects[addr]; obj != nil {
			if obj.selfDestructed && s.CreatedThisTx(addr) {
				delete(s.stateObjects, addr)
				continue
			}
			if s.Empty(addr) {
				delete(s.stateObjects, addr)
			}
		}
	}
	s.touched = make(map[types.Address]struct{})
	s.createdContracts = make(map[types.Address]struct{})
}

// TouchedAddresses returns the set of addresses visited this transaction.
// The returned slice is a snapshot; mutating it has no effect on the state DB.
func (s *MemoryStateDB) TouchedAddresses() []types.Address {
	addrs := make([]types.Address, 0, len(s.touched))
	for addr := range s.touched {
		addrs = append(addrs, addr)
	}
	return addrs
}

// --- Commit ---

func (s *MemoryStateDB) Commit() {
	for _, obj := range s.stateObjects {
		for key, val := range obj.dirtyStorage {
			if val == (types.Hash{}) {
				delete(obj.committedStorage, key)
			} else {
				obj.committedStorage[key] = val
			}
		}
		obj.dirtyStorage = make(map[types.Hash]types.Hash)
	}
}

// FinalizePreState copies current dirty storage into committed storage for all accounts.
// Call this after loading pre-state but before executing transactions, so that
// GetCommittedState returns correct "original" values for SSTORE gas calculations.
func (s *MemoryStateDB) FinalizePreState() {
	for _, obj := range s.stateObjects {
		for key, value := range obj.dirtyStorage {
			obj.committedStorage[key] = value
		}
	}
}

// Copy returns a deep copy of the MemoryStateDB. The copy shares no mutable
// state with the original.
func (s *MemoryStateDB) Copy() *MemoryStateDB {
	cp := &MemoryStateDB{
		stateObjects:     make(map[types.Address]*stateObject, len(s.stateObjects)),
		journal:          newJournal(),
		logs:             make(map[types.Hash][]*types.Log, len(s.logs)),
		refund:           s.refund,
		accessList:       s.accessList.Copy(),
		touched:          make(map[types.Address]struct{}, len(s.touched)),
		createdContracts: make(map[types.Address]struct{}, len(s.createdContracts)),
		metrics:          NewStateMetrics(),
	}

	for addr, obj := range s.stateObjects {
		newObj := &stateObject{
			account: types.Account{
				Nonce:    obj.account.Nonce,
				Balance:  new(big.Int).Set(obj.account.Balance),
				Root:     obj.account.Root,
				CodeHash: make([]byte, len(obj.account.CodeHash)),
			},
			code:             make([]byte, len(obj.code)),
			dirtyStorage:     make(map[types.Hash]types.Hash, len(obj.dirtyStorage)),
			committedStorage: make(map[types.Hash]types.Hash, len(obj.committedStorage)),
			selfDestructed:   obj.selfDestructed,
		}
		copy(newObj.account.CodeHash, obj.account.CodeHash)
		copy(newObj.code, obj.code)
		for k, v := range obj.dirtyStorage {
			newObj.dirtyStorage[k] = v
		}
		for k, v := range obj.committedStorage {
			newObj.committedStorage[k] = v
		}
		cp.stateObjects[addr] = newObj
	}

	for txHash, logs := range s.logs {
		cpLogs := make([]*types.Log, len(logs))
		for i, log := range logs {
			cpLog := *log
			cpLogs[i] = &cpLog
		}
		cp.logs[txHash] = cpLogs
	}

	for addr := range s.touched {
		cp.touched[addr] = struct{}{}
	}
	for addr := range s.createdContracts {
		cp.createdContracts[addr] = struct{}{}
	}

	return cp
}

// Prefetch pre-loads state for the given addresses into the state cache.
// This is a no-op for addresses already loaded; it only avoids nil-map
// lookups on the first read of an address not yet touched.
func (s *MemoryStateDB) Prefetch(addrs []types.Address) {
	for _, addr := range addrs {
		if s.stateObjects[addr] == nil {
			s.stateObjects[addr] = newStateObject()
		}
	}
}

// GetRoot computes a content commitment over the current account set. This
// core does not own an MPT, so this is not the yellow paper state root — it's a
// deterministic Keccak digest over sorted (address, nonce, balance, codehash,
// storage) tuples, suitable for genesis bootstrapping and test fixtures that
// need a stable root-like value without a real trie behind it.
func (s *MemoryStateDB) GetRoot() types.Hash {
	addrs := make([]types.Address, 0, len(s.stateObjects))
	for addr := range s.stateObjects {
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool {
		return bytes.Compare(addrs[i][:], addrs[j][:]) < 0
	})

	var buf []byte
	for _, addr := range addrs {
		obj := s.stateObjects[addr]
		if obj.selfDestructed {
			continue
		}
		buf = append(buf, addr[:]...)
		buf = appendUint64BE(buf, obj.account.Nonce)
		if obj.account.Balance != nil {
			buf = append(buf, obj.account.Balance.Bytes()...)
		}
		buf = append(buf, obj.account.CodeHash...)

		keys := make([]types.Hash, 0, len(obj.committedStorage))
		for k := range obj.committedStorage {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool {
			return bytes.Compare(keys[i][:], keys[j][:]) < 0
		})
		for _, k := range keys {
			v := obj.committedStorage[k]
			if v == (types.Hash{}) {
				continue
			}
			buf = append(buf, k[:]...)
			buf = append(buf, v[:]...)
		}
	}

	if len(buf) == 0 {
		return types.EmptyRootHash
	}
	return crypto.Keccak256Hash(buf)
}

func appendUint64BE(buf []byte, v uint64) []byte {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	return append(buf, tmp[:]...)
}

// Verify interface compliance at compile time.
var _ StateDB = (*MemoryStateDB)(nil)
