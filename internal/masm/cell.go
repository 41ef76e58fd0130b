package masm

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/lattice-ml/lattice/internal/graph"
)

// Cell is a compiled graph: a frozen instruction program plus the arena
// layout it was generated against. Cells are immutable and safe to share;
// each execution uses its own Instance.
type Cell struct {
	prog      Program
	arenaSize int
	consts    []constInit
}

type constInit struct {
	offset int
	data   []byte
}

// NewCell packages a frozen program with the graph's arena layout. Constant
// tensor payloads are captured so instances can materialize them.
func NewCell(prog Program, g *graph.Graph, arenaSize int) *Cell {
	c := &Cell{prog: prog, arenaSize: arenaSize}
	for _, t := range g.Tensors() {
		if t.Constant() && !t.Ref() {
			if t.Size() != len(t.Data()) {
				// Constants are materialized with a flat copy, so their
				// layout must be unpadded.
				panic(fmt.Sprintf("cell: constant %s payload is %d bytes but layout needs %d",
					t.Name(), len(t.Data()), t.Size()))
			}
			c.consts = append(c.consts, constInit{offset: t.Offset(), data: t.Data()})
		}
	}
	return c
}

// ArenaSize returns the instance arena size in bytes.
func (c *Cell) ArenaSize() int { return c.arenaSize }

// Instructions returns the number of instructions in the compiled program.
func (c *Cell) Instructions() int { return len(c.prog) }

// Instance is one execution context for a cell: a zero-initialized arena
// with constant payloads materialized. Instances are not safe for concurrent
// use; run each batch item on its own instance.
type Instance struct {
	cell  *Cell
	arena []byte
}

// NewInstance allocates a fresh arena for the cell.
func (c *Cell) NewInstance() *Instance {
	n := &Instance{cell: c, arena: make([]byte, c.arenaSize)}
	n.materialize()
	return n
}

// Clear rezeroes the arena and rematerializes constants, recycling the
// instance for another run.
func (n *Instance) Clear() {
	for i := range n.arena {
		n.arena[i] = 0
	}
	n.materialize()
}

func (n *Instance) materialize() {
	for _, c := range n.cell.consts {
		copy(n.arena[c.offset:c.offset+len(c.data)], c.data)
	}
}

// Address resolves a tensor's storage address in the arena, following the
// pointer slot for reference tensors.
func (n *Instance) Address(t *graph.Tensor) int {
	if t.Ref() {
		return int(int64(binary.LittleEndian.Uint64(n.arena[t.Offset():])))
	}
	return t.Offset()
}

// Pointer returns the raw address value stored in a reference tensor's slot.
func (n *Instance) Pointer(t *graph.Tensor) int64 {
	if !t.Ref() {
		panic(fmt.Sprintf("instance: tensor %s is not a reference", t.Name()))
	}
	return int64(binary.LittleEndian.Uint64(n.arena[t.Offset():]))
}

// Float32s reads the tensor's elements as float32 values, following the
// reference slot when the tensor is an alias.
func (n *Instance) Float32s(t *graph.Tensor) []float32 {
	if t.Type() != graph.Float32 {
		panic(fmt.Sprintf("instance: tensor %s is %s, not float32", t.Name(), t.Type()))
	}
	addr := n.Address(t)
	out := make([]float32, t.Elements())
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(n.arena[addr+i*4:]))
	}
	return out
}

// SetInt32s writes an int32 batch into the tensor's arena slot.
func (n *Instance) SetInt32s(t *graph.Tensor, vals []int32) {
	if t.Type() != graph.Int32 {
		panic(fmt.Sprintf("instance: tensor %s is %s, not int32", t.Name(), t.Type()))
	}
	if len(vals) != t.Elements() {
		panic(fmt.Sprintf("instance: tensor %s holds %d elements, got %d",
			t.Name(), t.Elements(), len(vals)))
	}
	for i, v := range vals {
		binary.LittleEndian.PutUint32(n.arena[t.Offset()+i*4:], uint32(v))
	}
}

// SetFloat32s writes a float32 batch into the tensor's arena slot.
func (n *Instance) SetFloat32s(t *graph.Tensor, vals []float32) {
	if t.Type() != graph.Float32 {
		panic(fmt.Sprintf("instance: tensor %s is %s, not float32", t.Name(), t.Type()))
	}
	if len(vals) != t.Elements() {
		panic(fmt.Sprintf("instance: tensor %s holds %d elements, got %d",
			t.Name(), t.Elements(), len(vals)))
	}
	for i, v := range vals {
		binary.LittleEndian.PutUint32(n.arena[t.Offset()+i*4:], math.Float32bits(v))
	}
}

// Run executes the cell's program against the instance arena. The program
// runs to completion; invariant violations abort.
func (n *Instance) Run() {
	var gp [NumRegisters]int64
	var vec [NumVecRegisters][VecWidth]float32
	prog := n.cell.prog

	addr := func(in *instr) int {
		a := in.disp
		if in.base != NoReg {
			a += int(gp[in.base])
		}
		if in.idx != NoReg {
			a += int(gp[in.idx]) * in.scale
		}
		return a
	}

	for pc := 0; pc < len(prog); pc++ {
		in := &prog[pc]
		switch in.op {
		case opMoveImm:
			gp[in.dst] = in.imm
		case opMoveReg:
			gp[in.dst] = gp[in.src]
		case opClear:
			gp[in.dst] = 0
		case opMulImm:
			gp[in.dst] *= in.imm
		case opAddReg:
			gp[in.dst] += gp[in.src]
		case opAddImm:
			gp[in.dst] += in.imm
		case opCondMoveNeg:
			if gp[in.dst] < 0 {
				gp[in.dst] = gp[in.src]
			}
		case opLoadPtr:
			gp[in.dst] = int64(binary.LittleEndian.Uint64(n.arena[in.disp:]))
		case opStorePtr:
			binary.LittleEndian.PutUint64(n.arena[in.disp:], uint64(gp[in.src]))
		case opLoadIndex32:
			gp[in.dst] = int64(int32(binary.LittleEndian.Uint32(n.arena[addr(in):])))
		case opStoreReg32:
			binary.LittleEndian.PutUint32(n.arena[addr(in):], uint32(gp[in.src]))
		case opJump:
			pc = in.label.pc - 1
		case opJumpNeg:
			if gp[in.src] < 0 {
				pc = in.label.pc - 1
			}
		case opJumpNonNeg:
			if gp[in.src] >= 0 {
				pc = in.label.pc - 1
			}
		case opJumpNEImm:
			if gp[in.src] != in.imm {
				pc = in.label.pc - 1
			}
		case opJumpNEReg:
			if gp[in.dst] != gp[in.src] {
				pc = in.label.pc - 1
			}
		case opLoadF32:
			vec[in.vec][0] = math.Float32frombits(binary.LittleEndian.Uint32(n.arena[addr(in):]))
		case opAddF32:
			vec[in.vec][0] += math.Float32frombits(binary.LittleEndian.Uint32(n.arena[addr(in):]))
		case opStoreF32:
			binary.LittleEndian.PutUint32(n.arena[addr(in):], math.Float32bits(vec[in.vec][0]))
		case opVClear:
			vec[in.vec] = [VecWidth]float32{}
		case opVAddMem:
			a := addr(in)
			for lane := 0; lane < VecWidth; lane++ {
				vec[in.vec][lane] += math.Float32frombits(
					binary.LittleEndian.Uint32(n.arena[a+lane*4:]))
			}
		case opVStoreAligned:
			a := addr(in)
			if a%(VecWidth*4) != 0 {
				panic(fmt.Sprintf("masm: misaligned vector store at %d (pc %d)", a, pc))
			}
			for lane := 0; lane < VecWidth; lane++ {
				binary.LittleEndian.PutUint32(n.arena[a+lane*4:], math.Float32bits(vec[in.vec][lane]))
			}
		case opCopy:
			dst := in.disp + int(gp[in.dst])
			src := in.srcDisp + int(gp[in.src])
			if dst+in.size > len(n.arena) || src+in.size > len(n.arena) {
				panic(fmt.Sprintf("masm: copy of %d bytes out of arena bounds (pc %d)", in.size, pc))
			}
			copy(n.arena[dst:dst+in.size], n.arena[src:src+in.size])
		default:
			panic(fmt.Sprintf("masm: unknown opcode %d at pc %d", in.op, pc))
		}
	}
}
