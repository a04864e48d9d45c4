package verifier

// effect is the fixed stack behavior of an instruction: pop lists the
// consumed values topmost first, push the produced values bottom first.
type effect struct {
	pop  []Kind
	push []Kind
}

func pushes(k Kind) effect         { return effect{push: []Kind{k}} }
func pops(k Kind) effect           { return effect{pop: []Kind{k}} }
func convert(from, to Kind) effect { return effect{pop: []Kind{from}, push: []Kind{to}} }
func arith(k Kind) effect          { return effect{pop: []Kind{k, k}, push: []Kind{k}} }
func shift(k Kind) effect          { return effect{pop: []Kind{Int, k}, push: []Kind{k}} }
func compare(k Kind) effect        { return effect{pop: []Kind{k, k}, push: []Kind{Int}} }
func arrayLoad(k Kind) effect      { return effect{pop: []Kind{Int, Reference}, push: []Kind{k}} }
func arrayStore(k Kind) effect     { return effect{pop: []Kind{k, Int, Reference}} }

// stackEffects covers every instruction whose effect does not depend on
// its operands or the constant pool. Local variable indices are not
// checked.
var stackEffects = map[Opcode]effect{
	OpAconstNull: pushes(Reference),
	OpIconstM1:   pushes(Int), OpIconst0: pushes(Int), OpIconst1: pushes(Int), OpIconst2: pushes(Int),
	OpIconst3: pushes(Int), OpIconst4: pushes(Int), OpIconst5: pushes(Int),
	OpLconst0: pushes(Long), OpLconst1: pushes(Long),
	OpFconst0: pushes(Float), OpFconst1: pushes(Float), OpFconst2: pushes(Float),
	OpDconst0: pushes(Double), OpDconst1: pushes(Double),
	OpBipush: pushes(Int), OpSipush: pushes(Int),

	OpIload: pushes(Int), OpLload: pushes(Long), OpFload: pushes(Float), OpDload: pushes(Double), OpAload: pushes(Reference),
	OpIload0: pushes(Int), OpIload1: pushes(Int), OpIload2: pushes(Int), OpIload3: pushes(Int),
	OpLload0: pushes(Long), OpLload1: pushes(Long), OpLload2: pushes(Long), OpLload3: pushes(Long),
	OpFload0: pushes(Float), OpFload1: pushes(Float), OpFload2: pushes(Float), OpFload3: pushes(Float),
	OpDload0: pushes(Double), OpDload1: pushes(Double), OpDload2: pushes(Double), OpDload3: pushes(Double),
	OpAload0: pushes(Reference), OpAload1: pushes(Reference), OpAload2: pushes(Reference), OpAload3: pushes(Reference),

	OpIaload: arrayLoad(Int), OpLaload: arrayLoad(Long), OpFaload: arrayLoad(Float), OpDaload: arrayLoad(Double),
	OpAaload: arrayLoad(Reference), OpBaload: arrayLoad(Int), OpCaload: arrayLoad(Int), OpSaload: arrayLoad(Int),

	OpIstore: pops(Int), OpLstore: pops(Long), OpFstore: pops(Float), OpDstore: pops(Double), OpAstore: pops(Reference),
	OpIstore0: pops(Int), OpIstore1: pops(Int), OpIstore2: pops(Int), OpIstore3: pops(Int),
	OpLstore0: pops(Long), OpLstore1: pops(Long), OpLstore2: pops(Long), OpLstore3: pops(Long),
	OpFstore0: pops(Float), OpFstore1: pops(Float), OpFstore2: pops(Float), OpFstore3: pops(Float),
	OpDstore0: pops(Double), OpDstore1: pops(Double), OpDstore2: pops(Double), OpDstore3: pops(Double),
	OpAstore0: pops(Reference), OpAstore1: pops(Reference), OpAstore2: pops(Reference), OpAstore3: pops(Reference),

	OpIastore: arrayStore(Int), OpLastore: arrayStore(Long), OpFastore: arrayStore(Float), OpDastore: arrayStore(Double),
	OpAastore: arrayStore(Reference), OpBastore: arrayStore(Int), OpCastore: arrayStore(Int), OpSastore: arrayStore(Int),

	OpIadd: arith(Int), OpLadd: arith(Long), OpFadd: arith(Float), OpDadd: arith(Double),
	OpIsub: arith(Int), OpLsub: arith(Long), OpFsub: arith(Float), OpDsub: arith(Double),
	OpImul: arith(Int), OpLmul: arith(Long), OpFmul: arith(Float), OpDmul: arith(Double),
	OpIdiv: arith(Int), OpLdiv: arith(Long), OpFdiv: arith(Float), OpDdiv: arith(Double),
	OpIrem: arith(Int), OpLrem: arith(Long), OpFrem: arith(Float), OpDrem: arith(Double),
	OpIneg: convert(Int, Int), OpLneg: convert(Long, Long), OpFneg: convert(Float, Float), OpDneg: convert(Double, Double),
	OpIshl: shift(Int), OpLshl: shift(Long), OpIshr: shift(Int), OpLshr: shift(Long), OpIushr: shift(Int), OpLushr: shift(Long),
	OpIand: arith(Int), OpLand: arith(Long), OpIor: arith(Int), OpLor: arith(Long), OpIxor: arith(Int), OpLxor: arith(Long),

	OpI2l: convert(Int, Long), OpI2f: convert(Int, Float), OpI2d: convert(Int, Double),
	OpL2i: convert(Long, Int), OpL2f: convert(Long, Float), OpL2d: convert(Long, Double),
	OpF2i: convert(Float, Int), OpF2l: convert(Float, Long), OpF2d: convert(Float, Double),
	OpD2i: convert(Double, Int), OpD2l: convert(Double, Long), OpD2f: convert(Double, Float),
	OpI2b: convert(Int, Int), OpI2c: convert(Int, Int), OpI2s: convert(Int, Int),

	OpLcmp: compare(Long), OpFcmpl: compare(Float), OpFcmpg: compare(Float), OpDcmpl: compare(Double), OpDcmpg: compare(Double),

	OpArraylength:  convert(Reference, Int),
	OpMonitorenter: pops(Reference), OpMonitorexit: pops(Reference),
}

var returnKinds = map[Opcode]Kind{
	OpIreturn: Int,
	OpLreturn: Long,
	OpFreturn: Float,
	OpDreturn: Double,
	OpAreturn: Reference,
}
