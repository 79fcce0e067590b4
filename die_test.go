package sym

import (
	"debug/dwarf"
	"testing"

	"github.com/stretchr/testify/require"
)

// rawTree is a small hand-built helper for constructing a rawDIE tree
// without going through buildRaw (which drives a real dwarf.Reader). Tests
// below build the tree spec.md's scenarios describe directly, the way
// SPEC_FULL.md §8 prescribes: *dwarf.Entry values constructed by hand.
func rawTree(entry *dwarf.Entry, addrSize int, children ...*rawDIE) *rawDIE {
	n := &rawDIE{entry: entry, addrSize: addrSize}
	for _, c := range children {
		c.parent = n
		n.children = append(n.children, c)
	}
	return n
}

func field(attr dwarf.Attr, val interface{}) dwarf.Field {
	return dwarf.Field{Attr: attr, Val: val}
}

func entryOf(off dwarf.Offset, tag dwarf.Tag, children bool, fields ...dwarf.Field) *dwarf.Entry {
	return &dwarf.Entry{Offset: off, Tag: tag, Children: children, Field: fields}
}

func newTestAdapter() *adapter {
	return &adapter{byOffset: make(map[rawOffset]*rawDIE)}
}

func indexRaw(a *adapter, root *rawDIE) {
	a.byOffset[root.offset()] = root
	for _, c := range root.children {
		indexRaw(a, c)
	}
}

func TestBuildTree_AdmitsOnlyClosedTagSet(t *testing.T) {
	// compile_unit
	//   subprogram "foo" [0x1000,0x1100)
	//     formal_parameter "argv"
	//     base_type int        <- not admitted, dropped
	//       variable "local"   <- re-parented to "foo" despite its dropped parent
	cu := entryOf(0x0, dwarf.TagCompileUnit, true, field(dwarf.AttrName, "a.c"))

	fn := entryOf(0x10, dwarf.TagSubprogram, true,
		field(dwarf.AttrName, "foo"),
		field(dwarf.AttrLowpc, uint64(0x1000)),
		field(dwarf.AttrHighpc, uint64(0x1100)),
	)
	param := entryOf(0x20, dwarf.TagFormalParameter, false, field(dwarf.AttrName, "argv"))
	baseType := entryOf(0x30, dwarf.TagBaseType, true, field(dwarf.AttrName, "int"))
	local := entryOf(0x40, dwarf.TagVariable, false, field(dwarf.AttrName, "local"))

	raw := rawTree(cu, 8,
		rawTree(fn, 8,
			rawTree(param, 8),
			rawTree(baseType, 8,
				rawTree(local, 8),
			),
		),
	)

	a := newTestAdapter()
	indexRaw(a, raw)

	tb := &treeBuilder{a: a, cu: &CompilationUnit{}, names: &nameCounters{}}
	root, err := tb.buildTree(raw)
	require.NoError(t, err)
	require.Equal(t, TagCompileUnit, root.Tag)
	require.Equal(t, "a.c", root.Name())
	require.Len(t, root.Children, 1)

	fooDIE := root.Children[0]
	require.Equal(t, TagSubprogram, fooDIE.Tag)
	require.Equal(t, "foo", fooDIE.Name())
	require.True(t, fooDIE.HasRange)
	require.Equal(t, uint64(0x1000), fooDIE.LowPC)
	require.Equal(t, uint64(0x1100), fooDIE.HighPC)

	// base_type was dropped, but its admitted child "local" reattaches to
	// foo, the nearest admitted ancestor.
	require.Len(t, fooDIE.Children, 2)
	tags := map[Tag]bool{}
	for _, c := range fooDIE.Children {
		tags[c.Tag] = true
	}
	require.True(t, tags[TagFormalParameter])
	require.True(t, tags[TagVariable])

	for _, c := range fooDIE.Children {
		require.Same(t, fooDIE, c.Parent)
	}
}

func TestBuildTree_AnonymousNamesAreDistinctAndNested(t *testing.T) {
	// compile_unit
	//   structure_type (anonymous)
	//     structure_type (anonymous)
	cu := entryOf(0x0, dwarf.TagCompileUnit, true)
	outer := entryOf(0x10, dwarf.TagStructType, true)
	inner := entryOf(0x20, dwarf.TagStructType, false)

	raw := rawTree(cu, 8, rawTree(outer, 8, rawTree(inner, 8)))
	a := newTestAdapter()
	indexRaw(a, raw)

	tb := &treeBuilder{a: a, cu: &CompilationUnit{}, names: &nameCounters{}}
	root, err := tb.buildTree(raw)
	require.NoError(t, err)

	outerDIE := root.Children[0]
	innerDIE := outerDIE.Children[0]

	require.True(t, outerDIE.IsSynthesizedName())
	require.True(t, innerDIE.IsSynthesizedName())
	require.NotEqual(t, outerDIE.Name(), innerDIE.Name())
	require.Equal(t, "ANON_STRUCT_1", outerDIE.Name())
	require.Equal(t, "ANON_STRUCT_2", innerDIE.Name())
}

func TestBuildTree_LexicalBlockGetsSequentialName(t *testing.T) {
	cu := entryOf(0x0, dwarf.TagCompileUnit, true)
	block := entryOf(0x10, dwarf.TagLexDwarfBlock, false)
	raw := rawTree(cu, 8, rawTree(block, 8))

	a := newTestAdapter()
	indexRaw(a, raw)
	tb := &treeBuilder{a: a, cu: &CompilationUnit{}, names: &nameCounters{}}
	root, err := tb.buildTree(raw)
	require.NoError(t, err)
	require.Equal(t, "LEXICAL_BLOCK_1", root.Children[0].Name())
}

func TestDIE_InRangeIsHalfOpen(t *testing.T) {
	d := &DIE{HasRange: true, LowPC: 0x1000, HighPC: 0x1100}
	require.True(t, d.InRange(0x1000))
	require.True(t, d.InRange(0x10ff))
	require.False(t, d.InRange(0x1100))
	require.False(t, d.InRange(0xfff))
}

func buildScopeTree(t *testing.T) *DIE {
	t.Helper()

	cuEntry := entryOf(0x0, dwarf.TagCompileUnit, true, field(dwarf.AttrName, "a.c"))
	fnEntry := entryOf(0x10, dwarf.TagSubprogram, true,
		field(dwarf.AttrName, "foo"),
		field(dwarf.AttrLowpc, uint64(0x1000)),
		field(dwarf.AttrHighpc, uint64(0x1100)),
	)
	paramEntry := entryOf(0x20, dwarf.TagFormalParameter, false, field(dwarf.AttrName, "argv"))
	varEntry := entryOf(0x30, dwarf.TagVariable, false, field(dwarf.AttrName, "x"))
	blockEntry := entryOf(0x40, dwarf.TagLexDwarfBlock, true)
	nestedVarEntry := entryOf(0x50, dwarf.TagVariable, false, field(dwarf.AttrName, "y"))

	raw := rawTree(cuEntry, 8,
		rawTree(fnEntry, 8,
			rawTree(paramEntry, 8),
			rawTree(varEntry, 8),
			rawTree(blockEntry, 8, rawTree(nestedVarEntry, 8)),
		),
	)

	a := newTestAdapter()
	indexRaw(a, raw)
	tb := &treeBuilder{a: a, cu: &CompilationUnit{}, names: &nameCounters{}}
	root, err := tb.buildTree(raw)
	require.NoError(t, err)
	return root
}

func TestSearch_ByNameByOffsetByEnclosingPC(t *testing.T) {
	root := buildScopeTree(t)

	d := search(root, predNameEquals("foo"))
	require.NotNil(t, d)
	require.Equal(t, TagSubprogram, d.Tag)

	d = search(root, predOffsetEquals(0x50))
	require.NotNil(t, d)
	require.Equal(t, "y", d.Name())

	d = search(root, predEnclosesPC(0x1050))
	require.NotNil(t, d)
	require.Equal(t, "foo", d.Name())

	require.Nil(t, search(root, predEnclosesPC(0x1100)))
	require.Nil(t, search(root, predNameEquals("nope")))
}

func TestCollectVariablesAndParameters(t *testing.T) {
	root := buildScopeTree(t)
	fn := search(root, predNameEquals("foo"))
	require.NotNil(t, fn)

	vars := collectVariables(fn)
	names := map[string]bool{}
	for _, v := range vars {
		names[v.Name()] = true
	}
	require.True(t, names["x"])
	require.True(t, names["y"])
	require.Len(t, vars, 2)

	params := parameters(fn)
	require.Len(t, params, 1)
	require.Equal(t, "argv", params[0].Name())
}

func TestMembers_RequiresStructOrUnion(t *testing.T) {
	root := buildScopeTree(t)
	fn := search(root, predNameEquals("foo"))
	_, err := members(fn)
	require.Error(t, err)
	require.True(t, Is(err, KindDIE, DIENotStructOrUnion))
}
