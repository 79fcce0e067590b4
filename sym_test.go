package sym

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// newTestContext builds a Context directly from a hand-built DIE tree and
// line index, bypassing Open (and therefore any real file/ELF/DWARF I/O),
// matching the construction style SPEC_FULL.md §8 prescribes for tests.
func newTestContext(t *testing.T, root *DIE, records []LineRecord) *Context {
	t.Helper()
	cu := &CompilationUnit{Root: root, lines: newLineIndex(records)}
	cus := newCURegistry()
	cus.add(cu)
	return &Context{a: &adapter{}, cus: cus}
}

func buildFuncWithFrameBase(t *testing.T) *DIE {
	t.Helper()
	cu := &DIE{Tag: TagCompileUnit, name: "a.c"}
	fn := &DIE{
		Tag: TagSubprogram, name: "foo", Parent: cu,
		HasRange: true, LowPC: 0x1000, HighPC: 0x1100,
		FrameBase: &LocationChain{Ops: decodeOps([]byte{byte(dwOpReg0 + 29)})},
	}
	local := &DIE{Tag: TagVariable, name: "x", Parent: fn}
	local.Location = &LocationList{Chains: []*LocationChain{
		{Ops: decodeOps([]byte{byte(dwOpFbreg), 0x68})}, // -24
	}}
	local.FrameBase = copyChain(fn.FrameBase)
	fn.Children = []*DIE{local}
	cu.Children = []*DIE{fn}
	return cu
}

func TestContext_FindByNameAndOffset(t *testing.T) {
	root := buildFuncWithFrameBase(t)
	root.Children[0].Offset = 0x10
	root.Children[0].Children[0].Offset = 0x20

	ctx := newTestContext(t, root, nil)

	d, err := ctx.FindByName("foo")
	require.NoError(t, err)
	require.Equal(t, TagSubprogram, d.Tag)

	d, err = ctx.FindByOffset(0x20)
	require.NoError(t, err)
	require.Equal(t, "x", d.Name())

	_, err = ctx.FindByName("nope")
	require.True(t, Is(err, KindDIE, DIENotFound))
}

func TestContext_FunctionByPC(t *testing.T) {
	root := buildFuncWithFrameBase(t)
	ctx := newTestContext(t, root, nil)

	fn, err := ctx.FunctionByPC(0x1050)
	require.NoError(t, err)
	require.Equal(t, "foo", fn.Name())

	_, err = ctx.FunctionByPC(0x2000)
	require.True(t, Is(err, KindDIE, DIENotFound))
}

func TestContext_EvaluateLocation_FbregAgainstFrameBase(t *testing.T) {
	root := buildFuncWithFrameBase(t)
	ctx := newTestContext(t, root, nil)

	v := root.Children[0].Children[0]
	res, err := ctx.EvaluateLocation(v, 0x1050)
	require.NoError(t, err)
	require.Equal(t, ResultRegisterOffset, res.Kind)
	require.Equal(t, "$fp", res.Register)
	require.Equal(t, int64(-24), res.Offset)
}

func TestContext_EvaluateLocation_NoChainApplies(t *testing.T) {
	root := buildFuncWithFrameBase(t)
	v := root.Children[0].Children[0]
	v.Location = &LocationList{Chains: []*LocationChain{
		{Bounded: true, Low: 0x2000, High: 0x2100, Ops: decodeOps([]byte{byte(dwOpLit0 + 1)})},
	}}
	ctx := newTestContext(t, root, nil)

	res, err := ctx.EvaluateLocation(v, 0x1050)
	require.NoError(t, err)
	require.Equal(t, ResultUnavailable, res.Kind)
}

func TestContext_LineQueries(t *testing.T) {
	root := &DIE{Tag: TagCompileUnit, name: "main.c", HasRange: true, LowPC: 0x1000, HighPC: 0x2000}
	records := []LineRecord{
		{Addr: 0x1000, File: "main.c", Line: 10},
		{Addr: 0x1010, File: "main.c", Line: 11},
		{Addr: 0x1020, File: "main.c", Line: 12},
	}
	ctx := newTestContext(t, root, records)

	rec, err := ctx.PCToLine(0x1010)
	require.NoError(t, err)
	require.Equal(t, 11, rec.Line)

	_, err = ctx.PCToLine(0x1015)
	require.True(t, Is(err, KindDIE, DIELineNotFound))

	pc, used, err := ctx.LineToPC("main.c", 11)
	require.NoError(t, err)
	require.Equal(t, uint64(0x1010), pc)
	require.Equal(t, 11, used)

	pc, used, err = ctx.LineToPC("main.c", 100)
	require.NoError(t, err)
	require.Equal(t, uint64(0x1020), pc)
	require.Equal(t, 12, used)

	next, err := ctx.PCToNextLine(0x1010)
	require.NoError(t, err)
	require.Equal(t, 12, next.Line)
}

func TestContext_CloseIsIdempotentAndNilSafe(t *testing.T) {
	var ctx *Context
	require.NoError(t, ctx.Close())

	root := &DIE{Tag: TagCompileUnit, name: "a.c"}
	live := newTestContext(t, root, nil)
	require.NoError(t, live.Close())
	require.NoError(t, live.Close())
}

func TestContext_ErrorStateAccessors(t *testing.T) {
	root := &DIE{Tag: TagCompileUnit, name: "a.c"}
	ctx := newTestContext(t, root, nil)

	require.Nil(t, ctx.LastError())

	_, err := ctx.FindByName("nope")
	require.Error(t, err)
	require.Equal(t, err, ctx.LastError())

	ctx.ClearError()
	require.Nil(t, ctx.LastError())
}

func TestContext_OpenRejectsEmptyPath(t *testing.T) {
	_, err := Open("")
	require.True(t, Is(err, KindGeneric, GenericMissingFile))
}
