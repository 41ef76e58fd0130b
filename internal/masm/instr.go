package masm

// opcode enumerates the symbolic instruction set kernels emit through the
// macro assembler.
type opcode int

const (
	opMoveImm opcode = iota // dst = imm
	opMoveReg               // dst = src
	opClear                 // dst = 0
	opMulImm                // dst *= imm
	opAddReg                // dst += src
	opAddImm                // dst += imm
	opCondMoveNeg           // if dst < 0: dst = src

	opLoadPtr     // dst = int64 at [disp]
	opStorePtr    // int64 at [disp] = src
	opLoadIndex32 // dst = sign-extended int32 at [base + idx*scale + disp]
	opStoreReg32  // int32 at [base + disp] = low32(src)

	opJump       // goto label
	opJumpNeg    // if src < 0: goto label
	opJumpNonNeg // if src >= 0: goto label
	opJumpNEImm  // if src != imm: goto label
	opJumpNEReg  // if dst != src: goto label

	opLoadF32  // vec[0] = float32 at [base + idx*scale + disp]
	opAddF32   // vec[0] += float32 at [base + idx*scale + disp]
	opStoreF32 // float32 at [base + idx*scale + disp] = vec[0]

	opVClear        // vec = 0 in all lanes
	opVAddMem       // vec += VecWidth float32 at [base + disp]
	opVStoreAligned // VecWidth float32 at [base + disp] = vec (aligned)

	opCopy // size bytes from [src + srcDisp] to [dst + disp]
)

// instr is one symbolic instruction. Field use depends on the opcode; base
// and idx are NoReg when absent from the addressing mode.
type instr struct {
	op      opcode
	dst     Register
	src     Register
	vec     VecRegister
	base    Register
	idx     Register
	scale   int
	disp    int
	srcDisp int
	size    int
	imm     int64
	label   *Label
}

// Program is a frozen instruction sequence ready for execution.
type Program []instr
