// Package emu provides functional RV32IMAFD emulation.
package emu

import "github.com/sarchlab/rv32sim/insts"

// MaxBlockLen bounds the number of instructions per compiled block so
// interrupt latency stays within a block's worth of instructions.
const MaxBlockLen = 64

// Block is a decoded straight-line instruction sequence keyed by its
// starting physical address. The only control-flow transfer, and the
// only instruction affecting address translation, is the final one.
type Block struct {
	// PAddr is the physical address of the first instruction.
	PAddr uint32
	// Insts holds the decoded sequence, terminator included.
	Insts []insts.Instruction
	// Generation records the cache generation at compile time.
	Generation uint32
}

// InstCount returns the number of instructions in the block.
func (b *Block) InstCount() uint32 {
	return uint32(len(b.Insts))
}

// BlockResult reports how a block ended.
type BlockResult struct {
	// Executed is the number of instructions retired before the block
	// ended (all of them, unless a trap cut it short).
	Executed uint32
	// Trap is the trap that aborted the block, or nil.
	Trap *Trap
}

// BlockCache maps physical addresses to compiled blocks with O(1) bulk
// invalidation via a generation counter. Invalidation events (FENCE.I,
// SFENCE.VMA, satp writes) are rare next to lookups, so stale blocks
// are left in the map and simply miss.
type BlockCache struct {
	blocks     map[uint32]*Block
	generation uint32

	// Hits, Misses and Compiles are lookup statistics.
	Hits     uint64
	Misses   uint64
	Compiles uint64
}

// NewBlockCache creates an empty block cache.
func NewBlockCache() *BlockCache {
	return &BlockCache{
		blocks:     make(map[uint32]*Block, 4096),
		generation: 1,
	}
}

// Lookup returns the current-generation block at paddr, or nil.
func (c *BlockCache) Lookup(paddr uint32) *Block {
	if b, ok := c.blocks[paddr]; ok && b.Generation == c.generation {
		c.Hits++
		return b
	}
	c.Misses++
	return nil
}

// Compile reads successive words from the bus starting at paddr,
// decoding until a terminator or the length limit, and caches the block.
func (c *BlockCache) Compile(paddr uint32, bus Bus) *Block {
	decoded := make([]insts.Instruction, 0, 16)
	addr := paddr

	for {
		inst := insts.Decode(bus.Read32(addr))
		decoded = append(decoded, inst)
		if insts.IsTerminator(inst.Opcode) || len(decoded) >= MaxBlockLen {
			break
		}
		addr += 4
	}

	block := &Block{
		PAddr:      paddr,
		Insts:      decoded,
		Generation: c.generation,
	}
	c.blocks[paddr] = block
	c.Compiles++
	return block
}

// InvalidateAll bumps the generation; every cached block misses from now
// on as if the cache were empty.
func (c *BlockCache) InvalidateAll() {
	c.generation++
}

// Reset drops all blocks and statistics.
func (c *BlockCache) Reset() {
	c.blocks = make(map[uint32]*Block, 4096)
	c.generation = 1
	c.Hits = 0
	c.Misses = 0
	c.Compiles = 0
}

// ExecuteBlock runs a compiled block against the CPU and bus. Any trap
// aborts the block immediately: remaining instructions do not execute
// and the PC is left at the trapping instruction, preserving the
// illusion that the block is just an optimization of single-stepping.
func ExecuteBlock(cpu *CPU, block *Block, bus Bus) BlockResult {
	for i := range block.Insts {
		if trap := cpu.Execute(&block.Insts[i], bus); trap != nil {
			cpu.InstCount += uint64(i)
			return BlockResult{Executed: uint32(i), Trap: trap}
		}
	}
	n := block.InstCount()
	cpu.InstCount += uint64(n)
	return BlockResult{Executed: n}
}
