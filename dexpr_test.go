package sym

import "testing"

func TestEvaluate_FbregAgainstRegisterFrameBase(t *testing.T) {
	// spec.md scenario 4: a variable's DW_OP_fbreg -24, inside a function
	// whose frame_base is DW_OP_reg29 ($fp), evaluates to $fp-0x18.
	fbChain := &LocationChain{Ops: decodeOps([]byte{byte(dwOpReg0 + 29)})}
	fbResult, err := evaluate(fbChain, nil)
	if err != nil {
		t.Fatalf("evaluate(frame base): %v", err)
	}
	if fbResult.Kind != ResultRegister || fbResult.Register != "$fp" {
		t.Fatalf("frame base result = %+v, want plain $fp register", fbResult)
	}

	varChain := &LocationChain{Ops: decodeOps([]byte{byte(dwOpFbreg), 0x68})} // -24
	res, err := evaluate(varChain, &fbResult)
	if err != nil {
		t.Fatalf("evaluate(var): %v", err)
	}
	if res.Kind != ResultRegisterOffset || res.Register != "$fp" || res.Offset != -24 {
		t.Fatalf("evaluate(fbreg -24) = %+v, want $fp-0x18", res)
	}
	if got, want := res.String(), "$fp-0x18"; got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
}

func TestEvaluate_FbregWithoutFrameBaseIsError(t *testing.T) {
	chain := &LocationChain{Ops: decodeOps([]byte{byte(dwOpFbreg), 0x00})}
	_, err := evaluate(chain, nil)
	if err == nil {
		t.Fatal("expected error for fbreg with no frame base, got nil")
	}
}

func TestEvaluate_PlainAddress(t *testing.T) {
	// DW_OP_addr 0x1000
	chain := &LocationChain{Ops: decodeOps([]byte{byte(dwOpAddr), 0x00, 0x10, 0, 0, 0, 0, 0, 0})}
	res, err := evaluate(chain, nil)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if res.Kind != ResultAddress || res.Address != 0x1000 {
		t.Fatalf("evaluate(addr) = %+v", res)
	}
}

func TestEvaluate_StackValue(t *testing.T) {
	// DW_OP_lit5 DW_OP_stack_value
	chain := &LocationChain{Ops: decodeOps([]byte{byte(dwOpLit0 + 5), byte(dwOpStackValue)})}
	res, err := evaluate(chain, nil)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if res.Kind != ResultStackValue || res.Address != 5 {
		t.Fatalf("evaluate(stack_value) = %+v", res)
	}
}

func TestEvaluate_RegisterPlusConstant(t *testing.T) {
	// DW_OP_breg0 0x10: register-relative, $x0+0x10
	off, _ := encodeSLEB128(0x10)
	expr := append([]byte{byte(dwOpBreg0)}, off...)
	chain := &LocationChain{Ops: decodeOps(expr)}
	res, err := evaluate(chain, nil)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if res.Kind != ResultRegisterOffset || res.Register != "$x0" || res.Offset != 0x10 {
		t.Fatalf("evaluate(breg0 0x10) = %+v", res)
	}
}

func TestEvaluate_MulAndOrOnConstants(t *testing.T) {
	// DW_OP_lit4 DW_OP_lit3 DW_OP_mul -> 12
	chain := &LocationChain{Ops: decodeOps([]byte{byte(dwOpLit0 + 4), byte(dwOpLit0 + 3), byte(dwOpMul)})}
	res, err := evaluate(chain, nil)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if res.Kind != ResultAddress || res.Address != 12 {
		t.Fatalf("evaluate(mul) = %+v, want 12", res)
	}

	// DW_OP_lit6 DW_OP_lit3 DW_OP_and -> 2
	chain = &LocationChain{Ops: decodeOps([]byte{byte(dwOpLit0 + 6), byte(dwOpLit0 + 3), byte(dwOpAnd)})}
	res, err = evaluate(chain, nil)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if res.Address != 2 {
		t.Fatalf("evaluate(and) = %+v, want 2", res)
	}

	// DW_OP_lit4 DW_OP_lit1 DW_OP_or -> 5
	chain = &LocationChain{Ops: decodeOps([]byte{byte(dwOpLit0 + 4), byte(dwOpLit0 + 1), byte(dwOpOr)})}
	res, err = evaluate(chain, nil)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if res.Address != 5 {
		t.Fatalf("evaluate(or) = %+v, want 5", res)
	}
}

func TestEvaluate_Deref(t *testing.T) {
	// DW_OP_addr 0x2000 DW_OP_deref
	chain := &LocationChain{Ops: decodeOps([]byte{
		byte(dwOpAddr), 0x00, 0x20, 0, 0, 0, 0, 0, 0,
		byte(dwOpDeref),
	})}
	res, err := evaluate(chain, nil)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !res.NeedsRead || res.Address != 0x2000 {
		t.Fatalf("evaluate(deref) = %+v", res)
	}
	if got, want := res.String(), "*(0x2000)"; got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
}

func TestEvaluate_UnknownOpcodeErrors(t *testing.T) {
	chain := &LocationChain{Ops: decodeOps([]byte{0xff})}
	_, err := evaluate(chain, nil)
	if err == nil {
		t.Fatal("expected error for unknown opcode")
	}
}

func TestLocationChain_InRange(t *testing.T) {
	unbounded := &LocationChain{}
	if !unbounded.InRange(0x123) {
		t.Fatal("unbounded chain must cover every pc")
	}
	bounded := &LocationChain{Bounded: true, Low: 0x1000, High: 0x1100}
	if !bounded.InRange(0x1000) || !bounded.InRange(0x10ff) {
		t.Fatal("bounded chain must cover [Low, High)")
	}
	if bounded.InRange(0x1100) || bounded.InRange(0xfff) {
		t.Fatal("bounded chain must not cover outside [Low, High)")
	}
}

// encodeSLEB128 is a tiny test-only encoder, the inverse of the leb128
// package's decoder, used to build expression bytes for breg/fbreg cases
// above without hardcoding magic byte sequences for every operand value.
func encodeSLEB128(v int64) ([]byte, int) {
	var out []byte
	more := true
	for more {
		b := byte(v & 0x7f)
		v >>= 7
		signBitSet := b&0x40 != 0
		if (v == 0 && !signBitSet) || (v == -1 && signBitSet) {
			more = false
		} else {
			b |= 0x80
		}
		out = append(out, b)
	}
	return out, len(out)
}
