package core

import (
	"math/big"

	"github.com/eth2030/eth2030/core/vm"
)

// ChainConfig holds chain-level configuration for fork scheduling. Forks up
// to and including London are activated by block number; Shanghai (the fork
// ceiling this core targets) is activated by timestamp, matching the
// post-merge scheduling convention.
type ChainConfig struct {
	ChainID *big.Int

	HomesteadBlock      *big.Int
	EIP158Block         *big.Int // Spurious Dragon: empty-account cleanup
	ByzantiumBlock      *big.Int
	ConstantinopleBlock *big.Int
	IstanbulBlock       *big.Int
	BerlinBlock         *big.Int
	LondonBlock         *big.Int
	MergeNetsplitBlock  *big.Int

	ShanghaiTime *uint64
}

func isBlockForked(forkBlock *big.Int, block *big.Int) bool {
	if forkBlock == nil || block == nil {
		return false
	}
	return forkBlock.Cmp(block) <= 0
}

func isTimestampForked(forkTime *uint64, time uint64) bool {
	if forkTime == nil {
		return false
	}
	return *forkTime <= time
}

// IsHomestead returns whether the given block number is at or past Homestead.
func (c *ChainConfig) IsHomestead(num *big.Int) bool { return isBlockForked(c.HomesteadBlock, num) }

// IsEIP158 returns whether the given block number is at or past Spurious Dragon.
func (c *ChainConfig) IsEIP158(num *big.Int) bool { return isBlockForked(c.EIP158Block, num) }

// IsByzantium returns whether the given block number is at or past Byzantium.
func (c *ChainConfig) IsByzantium(num *big.Int) bool { return isBlockForked(c.ByzantiumBlock, num) }

// IsConstantinople returns whether the given block number is at or past Constantinople.
func (c *ChainConfig) IsConstantinople(num *big.Int) bool {
	return isBlockForked(c.ConstantinopleBlock, num)
}

// IsIstanbul returns whether the given block number is at or past Istanbul.
func (c *ChainConfig) IsIstanbul(num *big.Int) bool { return isBlockForked(c.IstanbulBlock, num) }

// IsBerlin returns whether the given block number is at or past Berlin.
func (c *ChainConfig) IsBerlin(num *big.Int) bool { return isBlockForked(c.BerlinBlock, num) }

// IsLondon returns whether the given block number is at or past London.
func (c *ChainConfig) IsLondon(num *big.Int) bool { return isBlockForked(c.LondonBlock, num) }

// IsMerge returns whether the chain has transitioned to proof-of-stake at the
// given block number.
func (c *ChainConfig) IsMerge(num *big.Int) bool { return isBlockForked(c.MergeNetsplitBlock, num) }

// IsShanghai returns whether the given block time is at or past the Shanghai fork.
func (c *ChainConfig) IsShanghai(time uint64) bool { return isTimestampForked(c.ShanghaiTime, time) }

// Rules builds the vm-level fork rule set active at the given block number
// and timestamp, for use as EVM.SetForkRules/SelectJumpTable/SelectPrecompiles
// input.
func (c *ChainConfig) Rules(num *big.Int, isMerge bool, time uint64) vm.ForkRules {
	return vm.ForkRules{
		IsShanghai:       c.IsShanghai(time),
		IsMerge:          isMerge || c.IsMerge(num),
		IsLondon:         c.IsLondon(num),
		IsBerlin:         c.IsBerlin(num),
		IsIstanbul:       c.IsIstanbul(num),
		IsConstantinople: c.IsConstantinople(num),
		IsByzantium:      c.IsByzantium(num),
		IsHomestead:      c.IsHomestead(num),
		IsEIP158:         c.IsEIP158(num),
	}
}

func newUint64(v uint64) *uint64 { return &v }

// MainnetConfig is the chain config for Ethereum mainnet, capped at Shanghai.
var MainnetConfig = &ChainConfig{
	ChainID:             big.NewInt(1),
	HomesteadBlock:      big.NewInt(1_150_000),
	EIP158Block:         big.NewInt(2_675_000),
	ByzantiumBlock:      big.NewInt(4_370_000),
	ConstantinopleBlock: big.NewInt(7_280_000),
	IstanbulBlock:       big.NewInt(9_069_000),
	BerlinBlock:         big.NewInt(12_244_000),
	LondonBlock:         big.NewInt(12_965_000),
	MergeNetsplitBlock:  big.NewInt(15_537_394),
	ShanghaiTime:        newUint64(1681338455),
}

// SepoliaConfig is the chain config for the Sepolia testnet, capped at Shanghai.
var SepoliaConfig = &ChainConfig{
	ChainID:             big.NewInt(11155111),
	HomesteadBlock:      big.NewInt(0),
	EIP158Block:         big.NewInt(0),
	ByzantiumBlock:      big.NewInt(0),
	ConstantinopleBlock: big.NewInt(0),
	IstanbulBlock:       big.NewInt(0),
	BerlinBlock:         big.NewInt(0),
	LondonBlock:         big.NewInt(0),
	MergeNetsplitBlock:  big.NewInt(1_735_371),
	ShanghaiTime:        newUint64(1677557088),
}

// HoleskyConfig is the chain config for the Holesky testnet, capped at Shanghai.
var HoleskyConfig = &ChainConfig{
	ChainID:             big.NewInt(17000),
	HomesteadBlock:      big.NewInt(0),
	EIP158Block:         big.NewInt(0),
	ByzantiumBlock:      big.NewInt(0),
	ConstantinopleBlock: big.NewInt(0),
	IstanbulBlock:       big.NewInt(0),
	BerlinBlock:         big.NewInt(0),
	LondonBlock:         big.NewInt(0),
	MergeNetsplitBlock:  big.NewInt(0),
	ShanghaiTime:        newUint64(1696000704),
}

// TestConfig is a chain config with all in-scope forks active at genesis.
var TestConfig = &ChainConfig{
	ChainID:             big.NewInt(1337),
	HomesteadBlock:      big.NewInt(0),
	EIP158Block:         big.NewInt(0),
	ByzantiumBlock:      big.NewInt(0),
	ConstantinopleBlock: big.NewInt(0),
	IstanbulBlock:       big.NewInt(0),
	BerlinBlock:         big.NewInt(0),
	LondonBlock:         big.NewInt(0),
	MergeNetsplitBlock:  big.NewInt(0),
	ShanghaiTime:        newUint64(0),
}
