package core

import (
	"math/big"
	"testing"

	"github.com/eth2030/eth2030/core/state"
	"github.com/eth2030/eth2030/core/types"
	"github.com/stretchr/testify/require"
)

// newTestHeader builds a minimal header on TestConfig (all forks active,
// Shanghai at genesis). baseFee may be nil to exercise the legacy
// fee-to-coinbase path.
func newTestHeader(baseFee *big.Int) *types.Header {
	return &types.Header{
		Number:    big.NewInt(1),
		Time:      100,
		Coinbase:  types.HexToAddress("0x636f696e62617365000000000000000000000000"),
		GasLimit:  30_000_000,
		BaseFee:   baseFee,
		MixDigest: types.Hash{},
	}
}

func newLegacyTx(nonce uint64, to *types.Address, value *big.Int, gasLimit uint64, gasPrice *big.Int, data []byte, from types.Address) *types.Transaction {
	tx := types.NewTransaction(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gasLimit,
		To:       to,
		Value:    value,
		Data:     data,
	})
	tx.SetSender(from)
	return tx
}

// assertGasConserved checks the balance/gas conservation identity for a
// processed transaction: the sender's balance decrease must exactly account
// for the value transferred out, the coinbase's gain, any base-fee burn, and
// the gas refunded for unused gas_limit.
func assertGasConserved(t *testing.T, senderPre, senderPost *big.Int, valueOut *big.Int, usedGas uint64, gasPrice, baseFee *big.Int) {
	t.Helper()
	burn := new(big.Int)
	tip := new(big.Int).Set(gasPrice)
	if baseFee != nil && baseFee.Sign() > 0 {
		burn = new(big.Int).Mul(baseFee, new(big.Int).SetUint64(usedGas))
		tip = new(big.Int).Sub(gasPrice, baseFee)
	}
	coinbaseGain := new(big.Int).Mul(tip, new(big.Int).SetUint64(usedGas))

	spent := new(big.Int).Add(valueOut, burn)
	spent.Add(spent, coinbaseGain)

	got := new(big.Int).Sub(senderPre, senderPost)
	require.Equal(t, spent.String(), got.String(), "sender balance delta must equal value out + burn + coinbase gain")
	_ = coinbaseGain
}

// TestScenario_SimpleTransfer covers a plain value transfer between two EOAs
// with a zero-fee block: A (1e18 wei) sends 1e15 wei to a fresh address B.
func TestScenario_SimpleTransfer(t *testing.T) {
	statedb := state.NewMemoryStateDB()
	a := types.HexToAddress("0x6100000000000000000000000000000000000000")
	b := types.HexToAddress("0x6200000000000000000000000000000000000000")

	statedb.CreateAccount(a)
	statedb.AddBalance(a, new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
	statedb.FinalizePreState()

	header := newTestHeader(nil)
	gp := new(GasPool).AddGas(header.GasLimit)
	value := new(big.Int).Mul(big.NewInt(1), new(big.Int).Exp(big.NewInt(10), big.NewInt(15), nil))

	tx := newLegacyTx(0, &b, value, TxGas, big.NewInt(0), nil, a)
	statedb.SetTxContext(tx.Hash(), 0)

	receipt, usedGas, err := ApplyTransaction(TestConfig, statedb, header, tx, gp)
	require.NoError(t, err)

	require.Equal(t, types.ReceiptStatusSuccessful, receipt.Status)
	require.Equal(t, TxGas, usedGas)
	require.Empty(t, receipt.Logs)
	require.Equal(t, uint64(1), statedb.GetNonce(a))

	wantA := new(big.Int).Sub(new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil), value)
	require.Equal(t, wantA.String(), statedb.GetBalance(a).String())
	require.Equal(t, value.String(), statedb.GetBalance(b).String())
}

// TestScenario_CallToEOAWithData covers an intrinsic-gas-only call: the
// recipient is an EOA with no code, so used_gas must equal the intrinsic
// cost of the 4-byte calldata exactly, with nothing left over for execution.
func TestScenario_CallToEOAWithData(t *testing.T) {
	statedb := state.NewMemoryStateDB()
	a := types.HexToAddress("0x6100000000000000000000000000000000000000")
	b := types.HexToAddress("0x6200000000000000000000000000000000000000")

	statedb.CreateAccount(a)
	statedb.AddBalance(a, new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
	statedb.FinalizePreState()

	header := newTestHeader(nil)
	gp := new(GasPool).AddGas(header.GasLimit)

	data := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	wantIntrinsic := intrinsicGas(data, false, true)
	require.Equal(t, TxGas+4*TxDataNonZeroGas, wantIntrinsic)

	tx := newLegacyTx(0, &b, big.NewInt(0), wantIntrinsic, big.NewInt(0), data, a)
	statedb.SetTxContext(tx.Hash(), 0)

	receipt, usedGas, err := ApplyTransaction(TestConfig, statedb, header, tx, gp)
	require.NoError(t, err)

	require.Equal(t, types.ReceiptStatusSuccessful, receipt.Status)
	require.Equal(t, wantIntrinsic, usedGas)
}

// TestScenario_ContractCreation covers CREATE: a constructor that deploys a
// single byte of runtime code (MSTORE8 1 at offset 0; RETURN 1 byte from
// offset 0).
func TestScenario_ContractCreation(t *testing.T) {
	statedb := state.NewMemoryStateDB()
	a := types.HexToAddress("0x6100000000000000000000000000000000000000")

	statedb.CreateAccount(a)
	statedb.AddBalance(a, new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
	statedb.FinalizePreState()

	header := newTestHeader(nil)
	gp := new(GasPool).AddGas(header.GasLimit)

	initCode := []byte{
		0x60, 0x01, // PUSH1 0x01
		0x60, 0x00, // PUSH1 0x00
		0x53,       // MSTORE8
		0x60, 0x01, // PUSH1 0x01
		0x60, 0x00, // PUSH1 0x00
		0xF3, // RETURN
	}

	tx := newLegacyTx(0, nil, big.NewInt(0), 1_000_000, big.NewInt(0), initCode, a)
	statedb.SetTxContext(tx.Hash(), 0)

	receipt, _, err := ApplyTransaction(TestConfig, statedb, header, tx, gp)
	require.NoError(t, err)

	require.Equal(t, types.ReceiptStatusSuccessful, receipt.Status)
	require.False(t, receipt.ContractAddress.IsZero())
	require.Equal(t, []byte{0x01}, statedb.GetCode(receipt.ContractAddress))
	require.NotEqual(t, types.EmptyCodeHash, statedb.GetCodeHash(receipt.ContractAddress))
	require.Equal(t, uint64(1), statedb.GetNonce(a))
}

// TestScenario_CreateRejectsEIP3541 covers the EIP-3541 contract-creation
// gate shared by CREATE and CREATE2: a constructor returning code starting
// with 0xEF must fail the whole creation, burn all gas, leave no deployed
// code, keep the caller's nonce bump, and roll back the value transfer.
func TestScenario_CreateRejectsEIP3541(t *testing.T) {
	statedb := state.NewMemoryStateDB()
	a := types.HexToAddress("0x6100000000000000000000000000000000000000")

	startBalance := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	statedb.CreateAccount(a)
	statedb.AddBalance(a, startBalance)
	statedb.FinalizePreState()

	header := newTestHeader(nil)
	gp := new(GasPool).AddGas(header.GasLimit)

	initCode := []byte{
		0x60, 0xEF, // PUSH1 0xEF
		0x60, 0x00, // PUSH1 0x00
		0x53,       // MSTORE8
		0x60, 0x01, // PUSH1 0x01
		0x60, 0x00, // PUSH1 0x00
		0xF3, // RETURN
	}

	value := big.NewInt(1000)
	gasLimit := uint64(200_000)
	tx := newLegacyTx(0, nil, value, gasLimit, big.NewInt(0), initCode, a)
	statedb.SetTxContext(tx.Hash(), 0)

	receipt, usedGas, err := ApplyTransaction(TestConfig, statedb, header, tx, gp)
	require.NoError(t, err)

	require.Equal(t, types.ReceiptStatusFailed, receipt.Status)
	require.Equal(t, gasLimit, usedGas, "EIP-3541 rejection must consume the entire gas limit")
	require.True(t, receipt.ContractAddress.IsZero() || statedb.GetCodeSize(receipt.ContractAddress) == 0)
	require.Equal(t, uint64(1), statedb.GetNonce(a), "caller nonce still bumps on a failed creation")
	require.Equal(t, startBalance.String(), statedb.GetBalance(a).String(), "value transfer must be rolled back")
}

// TestScenario_OutOfGasInNestedCall covers a CALL with a too-small gas
// stipend into a callee that attempts an SSTORE: the inner frame faults,
// the callee's storage is untouched, and the caller observes success=0 but
// keeps running (and can still reach STOP for an overall successful
// transaction).
func TestScenario_OutOfGasInNestedCall(t *testing.T) {
	statedb := state.NewMemoryStateDB()
	sender := types.HexToAddress("0x73656e6465720000000000000000000000000000")
	callerAddr := types.HexToAddress("0x63616c6c65720000000000000000000000000000")
	calleeAddr := types.HexToAddress("0x63616c6c65650000000000000000000000000000")

	statedb.CreateAccount(sender)
	statedb.AddBalance(sender, new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))

	statedb.CreateAccount(calleeAddr)
	calleeCode := []byte{
		0x60, 0x01, // PUSH1 0x01 (value)
		0x60, 0x00, // PUSH1 0x00 (key)
		0x55, // SSTORE
	}
	statedb.SetCode(calleeAddr, calleeCode)

	statedb.CreateAccount(callerAddr)
	callerCode := buildCallCode(calleeAddr, 100)
	statedb.SetCode(callerAddr, callerCode)
	statedb.FinalizePreState()

	header := newTestHeader(nil)
	gp := new(GasPool).AddGas(header.GasLimit)

	tx := newLegacyTx(0, &callerAddr, big.NewInt(0), 200_000, big.NewInt(0), nil, sender)
	statedb.SetTxContext(tx.Hash(), 0)

	receipt, _, err := ApplyTransaction(TestConfig, statedb, header, tx, gp)
	require.NoError(t, err)

	require.Equal(t, types.ReceiptStatusSuccessful, receipt.Status, "the outer frame reaches STOP regardless of the inner call's failure")
	require.Equal(t, types.Hash{}, statedb.GetState(calleeAddr, types.Hash{}), "callee storage must be untouched by the faulted SSTORE")
}

// buildCallCode assembles: CALL(gas, to, 0, 0, 0, 0, 0); POP; STOP.
func buildCallCode(to types.Address, gas uint64) []byte {
	code := []byte{
		0x60, 0x00, // PUSH1 0x00 (retSize)
		0x60, 0x00, // PUSH1 0x00 (retOffset)
		0x60, 0x00, // PUSH1 0x00 (argsSize)
		0x60, 0x00, // PUSH1 0x00 (argsOffset)
		0x60, 0x00, // PUSH1 0x00 (value)
		0x73, // PUSH20 <to>
	}
	code = append(code, to[:]...)
	code = append(code, 0x60, byte(gas)) // PUSH1 <gas>
	code = append(code, 0xF1)            // CALL
	code = append(code, 0x50)            // POP
	code = append(code, 0x00)            // STOP
	return code
}

// TestScenario_SelfDestructPreExistingContract covers EIP-6780: a contract
// that existed before this transaction (not CREATE/CREATE2'd within it) that
// self-destructs only transfers its balance to the beneficiary; it is not
// removed from state.
func TestScenario_SelfDestructPreExistingContract(t *testing.T) {
	statedb := state.NewMemoryStateDB()
	sender := types.HexToAddress("0x73656e6465720000000000000000000000000000")
	contractAddr := types.HexToAddress("0x636f6e7472616374000000000000000000000000")
	recipient := types.HexToAddress("0x726563697069656e740000000000000000000000")

	statedb.CreateAccount(sender)
	statedb.AddBalance(sender, new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))

	statedb.CreateAccount(contractAddr)
	contractBalance := big.NewInt(5_000_000_000_000_000_000)
	statedb.AddBalance(contractAddr, contractBalance)
	contractCode := append([]byte{0x73}, recipient[:]...)
	contractCode = append(contractCode, 0xFF) // SELFDESTRUCT
	statedb.SetCode(contractAddr, contractCode)
	statedb.FinalizePreState()

	header := newTestHeader(nil)
	gp := new(GasPool).AddGas(header.GasLimit)

	tx := newLegacyTx(0, &contractAddr, big.NewInt(0), 100_000, big.NewInt(0), nil, sender)
	statedb.SetTxContext(tx.Hash(), 0)

	receipt, _, err := ApplyTransaction(TestConfig, statedb, header, tx, gp)
	require.NoError(t, err)

	require.Equal(t, types.ReceiptStatusSuccessful, receipt.Status)
	require.Equal(t, contractBalance.String(), statedb.GetBalance(recipient).String())
	require.Equal(t, "0", statedb.GetBalance(contractAddr).String())
	require.True(t, statedb.Exist(contractAddr), "a contract not created this tx must survive SELFDESTRUCT per EIP-6780")
	require.True(t, statedb.HasSelfDestructed(contractAddr))
}

// TestGasConservation_EIP1559 exercises the balance conservation identity
// with a non-zero base fee and priority tip: sender_pre = sender_post +
// value_out + coinbase_gain + burn + remaining_balance_diff.
func TestGasConservation_EIP1559(t *testing.T) {
	statedb := state.NewMemoryStateDB()
	a := types.HexToAddress("0x6100000000000000000000000000000000000000")
	b := types.HexToAddress("0x6200000000000000000000000000000000000000")

	statedb.CreateAccount(a)
	startBalance := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	statedb.AddBalance(a, startBalance)
	statedb.FinalizePreState()

	baseFee := big.NewInt(10)
	header := newTestHeader(baseFee)
	gp := new(GasPool).AddGas(header.GasLimit)

	tx := types.NewTransaction(&types.DynamicFeeTx{
		ChainID:   TestConfig.ChainID,
		Nonce:     0,
		GasTipCap: big.NewInt(2),
		GasFeeCap: big.NewInt(20),
		Gas:       TxGas,
		To:        &b,
		Value:     big.NewInt(0),
	})
	tx.SetSender(a)
	statedb.SetTxContext(tx.Hash(), 0)

	receipt, usedGas, err := ApplyTransaction(TestConfig, statedb, header, tx, gp)
	require.NoError(t, err)
	require.Equal(t, types.ReceiptStatusSuccessful, receipt.Status)

	gasPrice := msgEffectiveGasPrice(&Message{GasFeeCap: big.NewInt(20), GasTipCap: big.NewInt(2)}, baseFee)
	assertGasConserved(t, startBalance, statedb.GetBalance(a), big.NewInt(0), usedGas, gasPrice, baseFee)
}

// TestReceiptBloomDeterminism covers the testable property that the receipt
// bloom filter is a pure function of its logs: replaying the same
// transaction against identically-constructed pre-state yields an identical
// bloom both times.
func TestReceiptBloomDeterminism(t *testing.T) {
	build := func() *types.Receipt {
		statedb := state.NewMemoryStateDB()
		a := types.HexToAddress("0x6100000000000000000000000000000000000000")
		logEmitter := types.HexToAddress("0x6c6f67656d697400000000000000000000000000")

		statedb.CreateAccount(a)
		statedb.AddBalance(a, new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))

		statedb.CreateAccount(logEmitter)
		// LOG0(0, 0): PUSH1 0, PUSH1 0, LOG0, STOP
		statedb.SetCode(logEmitter, []byte{0x60, 0x00, 0x60, 0x00, 0xA0, 0x00})
		statedb.FinalizePreState()

		header := newTestHeader(nil)
		gp := new(GasPool).AddGas(header.GasLimit)
		tx := newLegacyTx(0, &logEmitter, big.NewInt(0), 100_000, big.NewInt(0), nil, a)
		statedb.SetTxContext(tx.Hash(), 0)

		receipt, _, err := ApplyTransaction(TestConfig, statedb, header, tx, gp)
		require.NoError(t, err)
		return receipt
	}

	r1 := build()
	r2 := build()
	require.Equal(t, r1.Bloom, r2.Bloom)
	require.NotEmpty(t, r1.Logs)
}
