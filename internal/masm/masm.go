// Package masm provides the instruction emission and register allocation
// service consumed by kernels: scoped general-purpose and vector register
// pools, two-phase labels, tensor addressing, and emission primitives for
// scalar, vector and bulk-copy operations.
//
// Emitted programs are symbolic. A frozen program together with the graph's
// arena layout forms a Cell; a Cell instance owns one arena and executes the
// program against it. Addresses are byte offsets into the instance arena, so
// a reference tensor's slot holds an address value computed at run time.
package masm

import (
	"fmt"

	"github.com/lattice-ml/lattice/internal/graph"
)

// Register pool sizes. Fourteen general-purpose slots mirror an x86-64
// register file minus the stack and frame pointers; sixteen vector slots
// mirror ymm0-ymm15.
const (
	NumRegisters    = 14
	NumVecRegisters = 16
)

// VecWidth is the number of float32 lanes in one vector register.
const VecWidth = 8

// Register is a handle to an allocated general-purpose register.
type Register int8

// VecRegister is a handle to an allocated vector register.
type VecRegister int8

// NoReg marks an absent index register in addressing operands.
const NoReg Register = -1

// Registers is a fixed pool of general-purpose registers with scoped
// acquisition. A kernel allocates registers for the duration of its own
// emission; the compiler resets the pool between steps.
type Registers struct {
	used [NumRegisters]bool
}

// Alloc acquires a free register. Exhausting the pool is a bug in kernel
// logic (kernels must bound their register needs at selection time) and
// aborts the process.
func (r *Registers) Alloc() Register {
	for i := range r.used {
		if !r.used[i] {
			r.used[i] = true
			return Register(i)
		}
	}
	panic("masm: out of general-purpose registers")
}

// Release returns a register to the pool.
func (r *Registers) Release(reg Register) {
	if reg < 0 || int(reg) >= NumRegisters || !r.used[reg] {
		panic(fmt.Sprintf("masm: release of unallocated register %d", reg))
	}
	r.used[reg] = false
}

// Reset releases all registers.
func (r *Registers) Reset() {
	r.used = [NumRegisters]bool{}
}

// VecRegisters is a fixed pool of vector registers with scoped acquisition.
type VecRegisters struct {
	used [NumVecRegisters]bool
}

// Alloc acquires a free vector register, aborting when the pool is
// exhausted.
func (r *VecRegisters) Alloc() VecRegister {
	for i := range r.used {
		if !r.used[i] {
			r.used[i] = true
			return VecRegister(i)
		}
	}
	panic("masm: out of vector registers")
}

// Release returns a vector register to the pool.
func (r *VecRegisters) Release(reg VecRegister) {
	if reg < 0 || int(reg) >= NumVecRegisters || !r.used[reg] {
		panic(fmt.Sprintf("masm: release of unallocated vector register %d", reg))
	}
	r.used[reg] = false
}

// Reset releases all vector registers.
func (r *VecRegisters) Reset() {
	r.used = [NumVecRegisters]bool{}
}

// Label is a two-phase jump target: jumps may reference it before Bind fixes
// its position. All labels must be bound before the program is frozen.
type Label struct {
	pc    int
	bound bool
}

// MacroAssembler accumulates a symbolic instruction program and owns the
// register pools used during emission.
type MacroAssembler struct {
	prog   []instr
	rr     Registers
	mm     VecRegisters
	labels []*Label
}

// New creates an empty macro assembler.
func New() *MacroAssembler {
	return &MacroAssembler{}
}

// RR returns the general-purpose register pool.
func (m *MacroAssembler) RR() *Registers { return &m.rr }

// MM returns the vector register pool.
func (m *MacroAssembler) MM() *VecRegisters { return &m.mm }

// ResetRegisters releases every register in both pools. The compiler calls
// this between steps so each kernel emits with a full register file.
func (m *MacroAssembler) ResetRegisters() {
	m.rr.Reset()
	m.mm.Reset()
}

// NewLabel creates an unbound label.
func (m *MacroAssembler) NewLabel() *Label {
	l := &Label{}
	m.labels = append(m.labels, l)
	return l
}

// Bind fixes a label at the current program position.
func (m *MacroAssembler) Bind(l *Label) {
	if l.bound {
		panic("masm: label bound twice")
	}
	l.pc = len(m.prog)
	l.bound = true
}

// emit appends one instruction.
func (m *MacroAssembler) emit(in instr) {
	m.prog = append(m.prog, in)
}

// LoadTensorAddress loads the address of a tensor's storage into dst. For a
// reference tensor the address is read from its pointer slot; otherwise the
// address is the tensor's fixed arena offset.
func (m *MacroAssembler) LoadTensorAddress(dst Register, t *graph.Tensor) {
	if t.Ref() {
		m.emit(instr{op: opLoadPtr, dst: dst, disp: t.Offset()})
	} else {
		m.emit(instr{op: opMoveImm, dst: dst, imm: int64(t.Offset())})
	}
}

// LoadTensorInt32 sign-extends the int32 stored in a tensor's arena slot
// into dst. The tensor must hold a materialized value, not a reference.
func (m *MacroAssembler) LoadTensorInt32(dst Register, t *graph.Tensor) {
	if t.Ref() {
		panic(fmt.Sprintf("masm: int32 load from reference tensor %s", t.Name()))
	}
	m.emit(instr{op: opLoadIndex32, dst: dst, base: NoReg, idx: NoReg, disp: t.Offset()})
}

// StoreTensorPointer stores the address value in src into a reference
// tensor's pointer slot.
func (m *MacroAssembler) StoreTensorPointer(t *graph.Tensor, src Register) {
	if !t.Ref() {
		panic(fmt.Sprintf("masm: pointer store to non-reference tensor %s", t.Name()))
	}
	m.emit(instr{op: opStorePtr, src: src, disp: t.Offset()})
}

// LoadIndex32 sign-extends the int32 at [base + idx*scale] into dst. Pass
// NoReg as idx for a plain [base] load.
func (m *MacroAssembler) LoadIndex32(dst, base, idx Register, scale int) {
	m.emit(instr{op: opLoadIndex32, dst: dst, base: base, idx: idx, scale: scale})
}

// MoveImm loads an immediate into dst.
func (m *MacroAssembler) MoveImm(dst Register, imm int64) {
	m.emit(instr{op: opMoveImm, dst: dst, imm: imm})
}

// MoveReg copies src into dst.
func (m *MacroAssembler) MoveReg(dst, src Register) {
	m.emit(instr{op: opMoveReg, dst: dst, src: src})
}

// Clear zeroes dst.
func (m *MacroAssembler) Clear(dst Register) {
	m.emit(instr{op: opClear, dst: dst})
}

// MulImm multiplies dst by an immediate.
func (m *MacroAssembler) MulImm(dst Register, imm int64) {
	m.emit(instr{op: opMulImm, dst: dst, imm: imm})
}

// AddReg adds src into dst.
func (m *MacroAssembler) AddReg(dst, src Register) {
	m.emit(instr{op: opAddReg, dst: dst, src: src})
}

// AddImm adds an immediate into dst.
func (m *MacroAssembler) AddImm(dst Register, imm int64) {
	m.emit(instr{op: opAddImm, dst: dst, imm: imm})
}

// Inc increments dst.
func (m *MacroAssembler) Inc(dst Register) {
	m.emit(instr{op: opAddImm, dst: dst, imm: 1})
}

// CondMoveNegative copies src into dst if dst is negative.
func (m *MacroAssembler) CondMoveNegative(dst, src Register) {
	m.emit(instr{op: opCondMoveNeg, dst: dst, src: src})
}

// Jump branches unconditionally to a label.
func (m *MacroAssembler) Jump(l *Label) {
	m.emit(instr{op: opJump, label: l})
}

// JumpIfNegative branches to a label if reg is negative.
func (m *MacroAssembler) JumpIfNegative(reg Register, l *Label) {
	m.emit(instr{op: opJumpNeg, src: reg, label: l})
}

// JumpIfNonNegative branches to a label if reg is zero or positive.
func (m *MacroAssembler) JumpIfNonNegative(reg Register, l *Label) {
	m.emit(instr{op: opJumpNonNeg, src: reg, label: l})
}

// JumpIfNotEqualImm branches to a label if reg differs from an immediate.
func (m *MacroAssembler) JumpIfNotEqualImm(reg Register, imm int64, l *Label) {
	m.emit(instr{op: opJumpNEImm, src: reg, imm: imm, label: l})
}

// JumpIfNotEqualReg branches to a label if the two registers differ.
func (m *MacroAssembler) JumpIfNotEqualReg(a, b Register, l *Label) {
	m.emit(instr{op: opJumpNEReg, dst: a, src: b, label: l})
}

// LoadF32 loads the float32 at [base + idx*scale + disp] into the first lane
// of v.
func (m *MacroAssembler) LoadF32(v VecRegister, base, idx Register, scale, disp int) {
	m.emit(instr{op: opLoadF32, vec: v, base: base, idx: idx, scale: scale, disp: disp})
}

// AddF32 adds the float32 at [base + idx*scale + disp] into the first lane
// of v.
func (m *MacroAssembler) AddF32(v VecRegister, base, idx Register, scale, disp int) {
	m.emit(instr{op: opAddF32, vec: v, base: base, idx: idx, scale: scale, disp: disp})
}

// StoreF32 stores the first lane of v to [base + idx*scale + disp].
func (m *MacroAssembler) StoreF32(base, idx Register, scale, disp int, v VecRegister) {
	m.emit(instr{op: opStoreF32, vec: v, base: base, idx: idx, scale: scale, disp: disp})
}

// StoreReg32 stores the low 32 bits of src to [base + disp].
func (m *MacroAssembler) StoreReg32(base Register, disp int, src Register) {
	m.emit(instr{op: opStoreReg32, base: base, disp: disp, src: src})
}

// VClear zeroes all lanes of v.
func (m *MacroAssembler) VClear(v VecRegister) {
	m.emit(instr{op: opVClear, vec: v})
}

// VAddMem adds the VecWidth float32 values at [base + disp] into v.
func (m *MacroAssembler) VAddMem(v VecRegister, base Register, disp int) {
	m.emit(instr{op: opVAddMem, vec: v, base: base, disp: disp})
}

// VStoreAligned stores all lanes of v to [base + disp]. The address must be
// aligned to the vector width; a misaligned store indicates a broken layout
// contract and aborts at run time.
func (m *MacroAssembler) VStoreAligned(base Register, disp int, v VecRegister) {
	m.emit(instr{op: opVStoreAligned, vec: v, base: base, disp: disp})
}

// Copy emits a bulk byte copy of size bytes from [src + srcDisp] to
// [dst + dstDisp].
func (m *MacroAssembler) Copy(dst Register, dstDisp int, src Register, srcDisp, size int) {
	m.emit(instr{op: opCopy, dst: dst, src: src, disp: dstDisp, srcDisp: srcDisp, size: size})
}

// Freeze validates the program and returns it. All labels must be bound.
func (m *MacroAssembler) Freeze() Program {
	for _, l := range m.labels {
		if !l.bound {
			panic("masm: frozen program has unbound label")
		}
	}
	return Program(m.prog)
}

// Len returns the number of instructions emitted so far.
func (m *MacroAssembler) Len() int { return len(m.prog) }
