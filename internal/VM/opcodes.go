package VM

// OpCode selects which instruction-family semantics to execute.
//
// Jump opcodes are grouped at the low end of the enumeration so that
// MxJumpOp stays small and the interpreter can skip the jump-target
// bookkeeping for everything above it.
type OpCode uint16

const (
	// Jump opcodes — P2 is an instruction address.
	OpInit          OpCode = iota // jump0: start at P2, or fall through if P2==0
	OpGoto                        // pc = P2
	OpGosub                       // push pc+1, pc = P2
	OpInitCoroutine               // r[P1] = frame starting at P3; jump P2 if P2!=0
	OpYield                       // swap pc with frame in r[P1]; jump P2 when ended
	OpMustBeInt                   // if r[P1] not int: jump P2, or error if P2==0
	OpJump                        // pc = P1, P2, or P3 per last Compare result
	OpOnce                        // jump P2 on every pass but the first
	OpIf                          // if r[P1] is true: pc = P2 (P3: jump on NULL)
	OpIfNot                       // if r[P1] is false: pc = P2 (P3: jump on NULL)
	OpIfPos                       // if r[P1]>0 then r[P1]-=P3, pc = P2
	OpDecrJumpZero                // if (--r[P1])==0: pc = P2
	OpIsNull                      // if r[P1] is NULL: pc = P2
	OpNotNull                     // if r[P1] not NULL: pc = P2
	OpIfNullRow                   // if cursor P1 on a null row: r[P3]=NULL, pc = P2
	OpSeekLT                      // reposition cursor P1 to last entry < key r[P3@P4]; jump P2 on miss
	OpSeekLE                      // reposition cursor P1 to last entry <= key; jump P2 on miss
	OpSeekGE                      // reposition cursor P1 to first entry >= key; jump P2 on miss
	OpSeekGT                      // reposition cursor P1 to first entry > key; jump P2 on miss
	OpSeekRowid                   // jump0: seek cursor P1 to rowid r[P3]; jump P2 on miss
	OpNotExists                   // jump P2 if rowid r[P3] absent from cursor P1
	OpFound                       // jump P2 if key r[P3@P4] present in index cursor P1
	OpNotFound                    // jump P2 if key r[P3@P4] absent from index cursor P1
	OpLast                        // jump0: cursor P1 to last entry; jump P2 if empty
	OpRewind                      // jump0: cursor P1 to first entry; jump P2 if empty
	OpNext                        // advance cursor P1; jump P2 while entries remain
	OpPrev                        // step cursor P1 back; jump P2 while entries remain
	OpRowSetRead                  // r[P3] = smallest rowid in rowset r[P1]; jump P2 if empty
	OpRowSetTest                  // jump P2 if r[P3] already in rowset r[P1], else insert it

	// Non-jump opcodes.
	OpReturn       // pop return address, jump to it
	OpEndCoroutine // mark frame r[P1] ended, resume consumer
	OpHalt         // stop: status P1, message P4
	OpHaltIfNull   // OpHalt semantics when r[P3] is NULL
	OpInteger      // r[P2] = P1
	OpInt64        // r[P2] = P4 (int64)
	OpReal         // r[P2] = P4 (float64)
	OpString8      // r[P2] = P4 (string)
	OpBlob         // r[P2] = P4 (blob)
	OpNull         // r[P2..P3] = NULL
	OpSoftNull     // r[P1] = NULL, subtype preserved
	OpVariable     // r[P2] = bound parameter P1
	OpMove         // r[P2@P3] = r[P1@P3]; source becomes undefined
	OpCopy         // r[P2@P3+1] = r[P1@P3+1]
	OpSCopy        // r[P2] = r[P1]
	OpIntCopy      // r[P2] = integer value of r[P1]
	OpResultRow    // yield r[P1@P2] to the caller
	OpAddImm       // r[P1] = int(r[P1]) + P2
	OpEq           // r[P3] = (r[P1]==r[P2]); P5 NULLEQ treats NULLs equal
	OpNe           // r[P3] = (r[P1]!=r[P2]); P5 NULLEQ treats NULLs equal
	OpLt           // r[P3] = (r[P1]<r[P2])
	OpLe           // r[P3] = (r[P1]<=r[P2])
	OpGt           // r[P3] = (r[P1]>r[P2])
	OpGe           // r[P3] = (r[P1]>=r[P2])
	OpCompare      // order r[P1@P3] against r[P2@P3] under key P4 for a following Jump
	OpAnd          // r[P3] = r[P1] AND r[P2] (three-valued)
	OpOr           // r[P3] = r[P1] OR r[P2] (three-valued)
	OpNot          // r[P2] = NOT r[P1]
	OpBitAnd       // r[P3] = r[P1] & r[P2]
	OpBitOr        // r[P3] = r[P1] | r[P2]
	OpBitNot       // r[P2] = ~r[P1]
	OpShiftLeft    // r[P3] = r[P2] << r[P1]
	OpShiftRight   // r[P3] = r[P2] >> r[P1]
	OpAdd          // r[P3] = r[P1] + r[P2]
	OpSubtract     // r[P3] = r[P2] - r[P1]
	OpMultiply     // r[P3] = r[P1] * r[P2]
	OpDivide       // r[P3] = r[P2] / r[P1]
	OpRemainder    // r[P3] = r[P2] % r[P1]
	OpConcat       // r[P3] = r[P2] || r[P1]
	OpCast         // r[P1] = cast(r[P1] as affinity P2)
	OpAffinity     // apply affinity string P4 to r[P1@P2]
	OpRealAffinity // if r[P1] is int, convert to real
	OpColumn       // r[P3] = column P2 of the record under cursor P1
	OpMakeRecord   // r[P3] = serialized record of r[P1@P2], affinities P4
	OpCount        // r[P2] = number of entries in cursor P1's tree
	OpOpenRead     // open read cursor P1 on tree root P2; P4 KeyInfo for indexes
	OpOpenWrite    // open write cursor P1 on tree root P2
	OpReopenIdx    // like OpOpenRead, but a no-op if P1 already on root P2
	OpOpenEphemeral // open cursor P1 on a new transient tree; P4 KeyInfo
	OpOpenPseudo   // cursor P1 reads the record image in r[P2], P3 columns
	OpClose        // close cursor P1
	OpNullRow      // move cursor P1 to the synthetic null row
	OpRowid        // r[P2] = rowid under cursor P1
	OpNewRowid     // r[P2] = an unused rowid for cursor P1
	OpInsert       // insert key r[P3], record r[P2] via cursor P1; P5 flags
	OpDelete       // delete the entry under cursor P1
	OpRowData      // r[P2] = raw record under cursor P1
	OpIdxInsert    // insert index key r[P2] via cursor P1; P5 flags
	OpIdxDelete    // delete index key r[P2@P3] via cursor P1
	OpSequence     // r[P2] = cursor[P1].seq++
	OpRowSetAdd    // rowset(r[P1]) += r[P2]
	OpAggStep      // step accumulator r[P3] with args r[P2@P5], func P4
	OpAggFinal     // finalize accumulator r[P1], N=P2
	OpFunction     // r[P3] = P4.func(r[P2@P5])
	OpPureFunc     // OpFunction restricted to side-effect-free functions
	OpGetSubtype   // r[P2] = subtype of r[P1]
	OpSetSubtype   // subtype of r[P2] = int(r[P1])
	OpClrSubtype   // subtype of r[P1] = 0
	OpSavepoint    // P1: 0 begin, 1 release, 2 rollback; name P4
	OpTransaction  // open a transaction; P2!=0 means write intent
	OpAutoCommit   // commit (P1==0) or roll back (P1!=0) the transaction
	OpNoop         // do nothing
	OpExplain      // compiler annotation; do nothing

	NumOpcodes // sentinel, must be last
)

// MxJumpOp is the largest opcode that can transfer control through P2.
// The resolution pass only validates jump targets for opcodes at or
// below this bound; correctness does not depend on the interpreter
// exploiting it.
const MxJumpOp = OpRowSetTest

// Operand-role flags. Per-opcode, immutable, shared process-wide.
const (
	OpflgJump   uint8 = 0x01 // P2 holds a jump target
	OpflgIn1    uint8 = 0x02 // P1 is an input register
	OpflgIn2    uint8 = 0x04 // P2 is an input register
	OpflgIn3    uint8 = 0x08 // P3 is an input register
	OpflgOut2   uint8 = 0x10 // P2 is an output register
	OpflgOut3   uint8 = 0x20 // P3 is an output register
	OpflgNCycle uint8 = 0x40 // cycles count against cursor P1
	OpflgJump0  uint8 = 0x80 // P2 may be zero, meaning "no jump"
)

// opcodeFlags declares each opcode's operand roles. The resolution pass
// checks every instruction against this table before execution begins.
var opcodeFlags = [NumOpcodes]uint8{
	OpInit:          OpflgJump | OpflgJump0,
	OpGoto:          OpflgJump,
	OpGosub:         OpflgJump,
	OpInitCoroutine: OpflgJump | OpflgJump0,
	OpYield:         OpflgIn1 | OpflgJump | OpflgJump0,
	OpMustBeInt:     OpflgIn1 | OpflgJump | OpflgJump0,
	OpJump:          OpflgJump,
	OpOnce:          OpflgJump,
	OpIf:            OpflgIn1 | OpflgJump,
	OpIfNot:         OpflgIn1 | OpflgJump,
	OpIfPos:         OpflgIn1 | OpflgJump,
	OpDecrJumpZero:  OpflgIn1 | OpflgJump,
	OpIsNull:        OpflgIn1 | OpflgJump,
	OpNotNull:       OpflgIn1 | OpflgJump,
	OpIfNullRow:     OpflgJump | OpflgOut3 | OpflgNCycle,
	OpSeekLT:        OpflgJump | OpflgIn3 | OpflgNCycle,
	OpSeekLE:        OpflgJump | OpflgIn3 | OpflgNCycle,
	OpSeekGE:        OpflgJump | OpflgIn3 | OpflgNCycle,
	OpSeekGT:        OpflgJump | OpflgIn3 | OpflgNCycle,
	OpSeekRowid:     OpflgJump | OpflgIn3 | OpflgNCycle | OpflgJump0,
	OpNotExists:     OpflgJump | OpflgIn3 | OpflgNCycle,
	OpFound:         OpflgJump | OpflgIn3 | OpflgNCycle,
	OpNotFound:      OpflgJump | OpflgIn3 | OpflgNCycle,
	OpLast:          OpflgJump | OpflgJump0 | OpflgNCycle,
	OpRewind:        OpflgJump | OpflgJump0 | OpflgNCycle,
	OpNext:          OpflgJump | OpflgNCycle,
	OpPrev:          OpflgJump | OpflgNCycle,
	OpRowSetRead:    OpflgIn1 | OpflgOut3 | OpflgJump,
	OpRowSetTest:    OpflgIn1 | OpflgIn3 | OpflgJump,

	OpReturn:        0,
	OpEndCoroutine:  OpflgIn1,
	OpHalt:          0,
	OpHaltIfNull:    OpflgIn3,
	OpInteger:       OpflgOut2,
	OpInt64:         OpflgOut2,
	OpReal:          OpflgOut2,
	OpString8:       OpflgOut2,
	OpBlob:          OpflgOut2,
	OpNull:          OpflgOut2,
	OpSoftNull:      0,
	OpVariable:      OpflgOut2,
	OpMove:          0,
	OpCopy:          0,
	OpSCopy:         OpflgOut2,
	OpIntCopy:       OpflgOut2,
	OpResultRow:     0,
	OpAddImm:        OpflgIn1,
	OpEq:            OpflgIn1 | OpflgIn2 | OpflgOut3,
	OpNe:            OpflgIn1 | OpflgIn2 | OpflgOut3,
	OpLt:            OpflgIn1 | OpflgIn2 | OpflgOut3,
	OpLe:            OpflgIn1 | OpflgIn2 | OpflgOut3,
	OpGt:            OpflgIn1 | OpflgIn2 | OpflgOut3,
	OpGe:            OpflgIn1 | OpflgIn2 | OpflgOut3,
	OpCompare:       0,
	OpAnd:           OpflgIn1 | OpflgIn2 | OpflgOut3,
	OpOr:            OpflgIn1 | OpflgIn2 | OpflgOut3,
	OpNot:           OpflgIn1 | OpflgOut2,
	OpBitAnd:        OpflgIn1 | OpflgIn2 | OpflgOut3,
	OpBitOr:         OpflgIn1 | OpflgIn2 | OpflgOut3,
	OpBitNot:        OpflgIn1 | OpflgOut2,
	OpShiftLeft:     OpflgIn1 | OpflgIn2 | OpflgOut3,
	OpShiftRight:    OpflgIn1 | OpflgIn2 | OpflgOut3,
	OpAdd:           OpflgIn1 | OpflgIn2 | OpflgOut3,
	OpSubtract:      OpflgIn1 | OpflgIn2 | OpflgOut3,
	OpMultiply:      OpflgIn1 | OpflgIn2 | OpflgOut3,
	OpDivide:        OpflgIn1 | OpflgIn2 | OpflgOut3,
	OpRemainder:     OpflgIn1 | OpflgIn2 | OpflgOut3,
	OpConcat:        OpflgIn1 | OpflgIn2 | OpflgOut3,
	OpCast:          OpflgIn1,
	OpAffinity:      0,
	OpRealAffinity:  OpflgIn1,
	OpColumn:        OpflgOut3 | OpflgNCycle,
	OpMakeRecord:    OpflgOut3,
	OpCount:         OpflgOut2 | OpflgNCycle,
	OpOpenRead:      OpflgNCycle,
	OpOpenWrite:     OpflgNCycle,
	OpReopenIdx:     OpflgNCycle,
	OpOpenEphemeral: OpflgNCycle,
	OpOpenPseudo:    0,
	OpClose:         OpflgNCycle,
	OpNullRow:       0,
	OpRowid:         OpflgOut2 | OpflgNCycle,
	OpNewRowid:      OpflgOut2,
	OpInsert:        0,
	OpDelete:        0,
	OpRowData:       OpflgOut2,
	OpIdxInsert:     OpflgIn2,
	OpIdxDelete:     0,
	OpSequence:      OpflgOut2,
	OpRowSetAdd:     OpflgIn1 | OpflgIn2,
	OpAggStep:       0,
	OpAggFinal:      0,
	OpFunction:      0,
	OpPureFunc:      0,
	OpGetSubtype:    OpflgIn1 | OpflgOut2,
	OpSetSubtype:    OpflgIn1 | OpflgOut2,
	OpClrSubtype:    OpflgIn1,
	OpSavepoint:     0,
	OpTransaction:   0,
	OpAutoCommit:    0,
	OpNoop:          0,
	OpExplain:       0,
}

// Flags returns the operand-role bitset for op.
func (op OpCode) Flags() uint8 {
	if op >= NumOpcodes {
		return 0
	}
	return opcodeFlags[op]
}

// IsJump reports whether P2 of op is a jump target.
func (op OpCode) IsJump() bool { return op.Flags()&OpflgJump != 0 }

var opcodeNames = [NumOpcodes]string{
	OpInit:          "Init",
	OpGoto:          "Goto",
	OpGosub:         "Gosub",
	OpInitCoroutine: "InitCoroutine",
	OpYield:         "Yield",
	OpMustBeInt:     "MustBeInt",
	OpJump:          "Jump",
	OpOnce:          "Once",
	OpIf:            "If",
	OpIfNot:         "IfNot",
	OpIfPos:         "IfPos",
	OpDecrJumpZero:  "DecrJumpZero",
	OpIsNull:        "IsNull",
	OpNotNull:       "NotNull",
	OpIfNullRow:     "IfNullRow",
	OpSeekLT:        "SeekLT",
	OpSeekLE:        "SeekLE",
	OpSeekGE:        "SeekGE",
	OpSeekGT:        "SeekGT",
	OpSeekRowid:     "SeekRowid",
	OpNotExists:     "NotExists",
	OpFound:         "Found",
	OpNotFound:      "NotFound",
	OpLast:          "Last",
	OpRewind:        "Rewind",
	OpNext:          "Next",
	OpPrev:          "Prev",
	OpRowSetRead:    "RowSetRead",
	OpRowSetTest:    "RowSetTest",
	OpReturn:        "Return",
	OpEndCoroutine:  "EndCoroutine",
	OpHalt:          "Halt",
	OpHaltIfNull:    "HaltIfNull",
	OpInteger:       "Integer",
	OpInt64:         "Int64",
	OpReal:          "Real",
	OpString8:       "String8",
	OpBlob:          "Blob",
	OpNull:          "Null",
	OpSoftNull:      "SoftNull",
	OpVariable:      "Variable",
	OpMove:          "Move",
	OpCopy:          "Copy",
	OpSCopy:         "SCopy",
	OpIntCopy:       "IntCopy",
	OpResultRow:     "ResultRow",
	OpAddImm:        "AddImm",
	OpEq:            "Eq",
	OpNe:            "Ne",
	OpLt:            "Lt",
	OpLe:            "Le",
	OpGt:            "Gt",
	OpGe:            "Ge",
	OpCompare:       "Compare",
	OpAnd:           "And",
	OpOr:            "Or",
	OpNot:           "Not",
	OpBitAnd:        "BitAnd",
	OpBitOr:         "BitOr",
	OpBitNot:        "BitNot",
	OpShiftLeft:     "ShiftLeft",
	OpShiftRight:    "ShiftRight",
	OpAdd:           "Add",
	OpSubtract:      "Subtract",
	OpMultiply:      "Multiply",
	OpDivide:        "Divide",
	OpRemainder:     "Remainder",
	OpConcat:        "Concat",
	OpCast:          "Cast",
	OpAffinity:      "Affinity",
	OpRealAffinity:  "RealAffinity",
	OpColumn:        "Column",
	OpMakeRecord:    "MakeRecord",
	OpCount:         "Count",
	OpOpenRead:      "OpenRead",
	OpOpenWrite:     "OpenWrite",
	OpReopenIdx:     "ReopenIdx",
	OpOpenEphemeral: "OpenEphemeral",
	OpOpenPseudo:    "OpenPseudo",
	OpClose:         "Close",
	OpNullRow:       "NullRow",
	OpRowid:         "Rowid",
	OpNewRowid:      "NewRowid",
	OpInsert:        "Insert",
	OpDelete:        "Delete",
	OpRowData:       "RowData",
	OpIdxInsert:     "IdxInsert",
	OpIdxDelete:     "IdxDelete",
	OpSequence:      "Sequence",
	OpRowSetAdd:     "RowSetAdd",
	OpAggStep:       "AggStep",
	OpAggFinal:      "AggFinal",
	OpFunction:      "Function",
	OpPureFunc:      "PureFunc",
	OpGetSubtype:    "GetSubtype",
	OpSetSubtype:    "SetSubtype",
	OpClrSubtype:    "ClrSubtype",
	OpSavepoint:     "Savepoint",
	OpTransaction:   "Transaction",
	OpAutoCommit:    "AutoCommit",
	OpNoop:          "Noop",
	OpExplain:       "Explain",
}

func (op OpCode) String() string {
	if op < NumOpcodes && opcodeNames[op] != "" {
		return opcodeNames[op]
	}
	return "Op?"
}

// OpcodeByName resolves a display name back to its opcode.
func OpcodeByName(name string) (OpCode, bool) {
	for op, n := range opcodeNames {
		if n == name {
			return OpCode(op), true
		}
	}
	return 0, false
}
