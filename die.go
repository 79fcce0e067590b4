package sym

import (
	"debug/dwarf"
	"fmt"
)

// Offset identifies a DIE by its byte offset within the DWARF debug_info
// section it came from. It is stable for the lifetime of a Context.
type Offset uint64

// Tag is one of the closed set of DIE tags the tree admits.
type Tag int

// The admitted tags. A DIE is in the tree if and only if its DWARF tag maps
// to one of these (spec.md §3, "Admitted tags").
const (
	TagCompileUnit Tag = iota
	TagSubprogram
	TagInlinedSubroutine
	TagFormalParameter
	TagEnumerationType
	TagEnumerator
	TagStructureType
	TagUnionType
	TagMember
	TagVariable
	TagLexicalBlock
)

func (t Tag) String() string {
	switch t {
	case TagCompileUnit:
		return "compile_unit"
	case TagSubprogram:
		return "subprogram"
	case TagInlinedSubroutine:
		return "inlined_subroutine"
	case TagFormalParameter:
		return "formal_parameter"
	case TagEnumerationType:
		return "enumeration_type"
	case TagEnumerator:
		return "enumerator"
	case TagStructureType:
		return "structure_type"
	case TagUnionType:
		return "union_type"
	case TagMember:
		return "member"
	case TagVariable:
		return "variable"
	case TagLexicalBlock:
		return "lexical_block"
	}
	return "unknown"
}

// admittedTag maps a raw DWARF tag to the trimmed tree's Tag, reporting
// false if the DWARF tag is not one of the admitted set.
func admittedTag(t dwarf.Tag) (Tag, bool) {
	switch t {
	case dwarf.TagCompileUnit:
		return TagCompileUnit, true
	case dwarf.TagSubprogram:
		return TagSubprogram, true
	case dwarf.TagInlinedSubroutine:
		return TagInlinedSubroutine, true
	case dwarf.TagFormalParameter:
		return TagFormalParameter, true
	case dwarf.TagEnumerationType:
		return TagEnumerationType, true
	case dwarf.TagEnumerator:
		return TagEnumerator, true
	case dwarf.TagStructType:
		return TagStructureType, true
	case dwarf.TagUnionType:
		return TagUnionType, true
	case dwarf.TagMember:
		return TagMember, true
	case dwarf.TagVariable:
		return TagVariable, true
	case dwarf.TagLexDwarfBlock:
		return TagLexicalBlock, true
	}
	return 0, false
}

// Class is a bitset describing a resolved type chain's shape.
type Class int

// Classification bits. "None of the three" means a plain scalar.
const (
	ClassPointer Class = 1 << iota
	ClassAggregate
	ClassArray
)

func (c Class) IsPointer() bool   { return c&ClassPointer != 0 }
func (c Class) IsAggregate() bool { return c&ClassAggregate != 0 }
func (c Class) IsArray() bool     { return c&ClassArray != 0 }

// sizeUnknown is the sentinel byte size for a type whose dimension is not a
// compile-time constant (e.g. a runtime-sized array), per spec.md §4.5.
const sizeUnknown = ^uint64(0)

// TypeInfo holds the fields the type-chain resolver (§4.5) computes for a
// DIE that carries a type reference.
type TypeInfo struct {
	HasType bool

	// TypeName is the canonical source-form string, e.g. "const char **".
	TypeName string

	// ByteSize is the total size in bytes, or sizeUnknown if the type's
	// size is not a compile-time constant.
	ByteSize uint64

	// BaseTag is the tag of the chain's terminal node.
	BaseTag    Tag
	hasBaseTag bool

	// baseOffset is the raw offset of the chain's terminal DIE, used to
	// look the aggregate back up in the tree (e.g. for membersViaType).
	baseOffset Offset

	// BaseEncoding is the DW_ATE_* encoding of the chain's base_type
	// terminal, meaningful only when that terminal is a base_type.
	BaseEncoding int64
	hasEncoding  bool

	// ArrayElemSize is the size of one element, when the chain passes
	// through an array.
	ArrayElemSize uint64

	Class Class

	// truncated records that the canonical name hit the fixed-capacity
	// buffer described in §4.5 and was cut short.
	truncated bool
}

// TerminalTag returns the tag of the type chain's terminal node and whether
// one was recorded. Only admitted tags (struct, union, enumeration) are
// recorded; for a base_type or void terminal it reports false, and Encoding
// describes a base_type terminal instead.
func (t TypeInfo) TerminalTag() (Tag, bool) { return t.BaseTag, t.hasBaseTag }

// Encoding returns the DW_ATE_* base-type encoding and whether the chain's
// terminal is in fact a base type.
func (t TypeInfo) Encoding() (int64, bool) { return t.BaseEncoding, t.hasEncoding }

// Truncated reports whether TypeName was cut short by the resolver's fixed
// name-buffer cap.
func (t TypeInfo) Truncated() bool { return t.truncated }

// SizeKnown reports whether ByteSize is a genuine compile-time constant
// rather than the "non-compile-time-constant" sentinel.
func (t TypeInfo) SizeKnown() bool { return t.ByteSize != sizeUnknown }

// LocationList is the set of location descriptions recorded for one
// attribute of a DIE: zero or more PC-bounded chains (spec.md §3,
// LocationDescription).
type LocationList struct {
	Chains []*LocationChain
}

// DIE is one node of the trimmed, parent-linked tree described in
// spec.md §3. Children are owned; Parent is a non-owning back-reference.
type DIE struct {
	Tag    Tag
	Offset Offset
	name   string

	// nameSynthetic records whether Name was synthesized by the tree
	// builder (an anonymous struct/union/enum, or an unnamed lexical
	// block) rather than read from the DWARF data, mirroring the
	// StringOwner distinction described in spec.md §9 -- in this Go
	// translation there is nothing to free differently, but the
	// provenance is kept because callers may reasonably want to tell a
	// synthesized placeholder from a real source-level name.
	nameSynthetic bool

	Parent   *DIE
	Children []*DIE

	HasRange      bool
	LowPC, HighPC uint64

	HasMemberOffset bool
	MemberOffset    uint64

	TypeInfo TypeInfo

	Location  *LocationList
	FrameBase *LocationChain // a subprogram's own frame base, or a descendant's copy of it

	HasAbstractOrigin bool
	AbstractOrigin    Offset

	cu *CompilationUnit
}

// Name returns the DIE's own name. For tags spec.md requires a synthetic
// name for (anonymous struct/union/enum, unnamed lexical block), this is
// the synthesized name, never empty.
func (d *DIE) Name() string { return d.name }

// IsSynthesizedName reports whether Name() was synthesized by the tree
// builder rather than taken from the DWARF data.
func (d *DIE) IsSynthesizedName() bool { return d.nameSynthetic }

// CU returns the compilation unit this DIE belongs to.
func (d *DIE) CU() *CompilationUnit { return d.cu }

// InRange reports whether pc falls within the DIE's half-open [low, high)
// range. It always returns false for a DIE with no range.
func (d *DIE) InRange(pc uint64) bool {
	return d.HasRange && pc >= d.LowPC && pc < d.HighPC
}

// TypeName returns the canonical type string resolved for d (§4.5), and
// whether d carries a type reference at all.
func (d *DIE) TypeName() (string, bool) { return d.TypeInfo.TypeName, d.TypeInfo.HasType }

// ByteSize returns d's resolved type size and whether d has a type.
// SizeKnown further distinguishes a genuine zero size from the
// non-compile-time-constant sentinel.
func (d *DIE) ByteSize() (uint64, bool) { return d.TypeInfo.ByteSize, d.TypeInfo.HasType }

func (d *DIE) String() string {
	if d.HasRange {
		return fmt.Sprintf("%s %q [%#x,%#x) @%#x", d.Tag, d.name, d.LowPC, d.HighPC, d.Offset)
	}
	return fmt.Sprintf("%s %q @%#x", d.Tag, d.name, d.Offset)
}

// --- tree construction --------------------------------------------------

// nameCounters generates the synthetic names spec.md §4.3 requires for
// anonymous aggregates and unnamed lexical blocks. One instance is created
// per Context and lives for the Context's lifetime (they "reset at open",
// per spec.md §5).
type nameCounters struct {
	anonStruct int
	anonUnion  int
	anonEnum   int
	lexBlock   int
}

// treeBuilder carries the per-construction state needed to build one CU's
// DIE tree: the adapter used to resolve type references, the owning CU
// (recorded on every DIE built), and the shared synthetic-name counters.
type treeBuilder struct {
	a        *adapter
	cu       *CompilationUnit
	names    *nameCounters
}

// buildTree implements spec.md §4.3: a depth-first traversal of raw, with
// explicit recursion, admitting only the tagged nodes in the closed set and
// re-parenting admitted grandchildren of a dropped node to the nearest
// admitted ancestor.
func (b *treeBuilder) buildTree(raw *rawDIE) (*DIE, error) {
	root, err := b.walk(raw, nil)
	if err != nil {
		return nil, err
	}
	if root == nil {
		return nil, newError(KindDIE, DIENotCompileUnit)
	}
	return root, nil
}

// walk visits raw and everything beneath it. parent is the nearest admitted
// ancestor DIE already built (nil at the CU root). It returns the DIE built
// for raw, or nil if raw's tag was not admitted (its admitted descendants,
// if any, have already been attached to parent).
func (b *treeBuilder) walk(raw *rawDIE, parent *DIE) (*DIE, error) {
	tag, admitted := admittedTag(raw.tag())

	var node *DIE
	if admitted {
		node = &DIE{
			Tag:    tag,
			Offset: Offset(raw.offset()),
			Parent: parent,
			cu:     b.cu,
		}
		b.assignName(node, raw)

		if low, high, ok := decodeRanges(raw.entry); ok {
			node.HasRange = true
			node.LowPC, node.HighPC = low, high
		}

		if tag == TagMember {
			if off, ok := decodeUint(raw.entry, dwarf.AttrDataMemberLoc); ok {
				node.HasMemberOffset = true
				node.MemberOffset = off
			}
		}

		if typeOff, ok := decodeRef(raw.entry, dwarf.AttrType); ok {
			info, err := b.a.resolveTypeChain(typeOff, raw.addrSize)
			if err != nil {
				return nil, err
			}
			node.TypeInfo = info
		}

		if err := b.attachLocation(node, raw); err != nil {
			return nil, err
		}

		if tag == TagSubprogram {
			if fb, err := b.frameBase(raw); err != nil {
				return nil, err
			} else {
				node.FrameBase = fb
			}
		} else if parent != nil {
			// defensive copy, per spec.md §3/§9: each DIE keeps its own
			// copy of the enclosing subprogram's frame base so that
			// evaluating a descendant's location never needs to climb
			// back up a tree that may since have been mutated or partly
			// freed.
			node.FrameBase = copyChain(parent.FrameBase)
		}

		if tag == TagInlinedSubroutine {
			if origin, ok := decodeRef(raw.entry, dwarf.AttrAbstractOrigin); ok {
				node.HasAbstractOrigin = true
				node.AbstractOrigin = Offset(origin)
			}
		}

		if parent != nil {
			parent.Children = append(parent.Children, node)
		}
	}

	nextParent := parent
	if admitted {
		nextParent = node
	}

	for c := raw.firstChild(); c != nil; c = c.nextSibling() {
		if _, err := b.walk(c, nextParent); err != nil {
			return nil, err
		}
	}

	return node, nil
}

// assignName applies the naming policy of spec.md §4.3: a real DWARF name
// is used if present; otherwise an anonymous struct/union/enum or unnamed
// lexical block is given a stable, per-kind monotonically increasing
// synthetic name.
func (b *treeBuilder) assignName(node *DIE, raw *rawDIE) {
	if n, ok := raw.name(); ok && n != "" {
		node.name = n
		return
	}

	node.nameSynthetic = true
	switch node.Tag {
	case TagStructureType:
		b.names.anonStruct++
		node.name = fmt.Sprintf("ANON_STRUCT_%d", b.names.anonStruct)
	case TagUnionType:
		b.names.anonUnion++
		node.name = fmt.Sprintf("ANON_UNION_%d", b.names.anonUnion)
	case TagEnumerationType:
		b.names.anonEnum++
		node.name = fmt.Sprintf("ANON_ENUM_%d", b.names.anonEnum)
	case TagLexicalBlock:
		b.names.lexBlock++
		node.name = fmt.Sprintf("LEXICAL_BLOCK_%d", b.names.lexBlock)
	default:
		node.name = ""
		node.nameSynthetic = false
	}
}

// --- search ---------------------------------------------------------

// search performs a single generic pre-order walk of root, returning the
// first DIE for which pred returns true.
func search(root *DIE, pred func(*DIE) bool) *DIE {
	if root == nil {
		return nil
	}
	if pred(root) {
		return root
	}
	for _, c := range root.Children {
		if found := search(c, pred); found != nil {
			return found
		}
	}
	return nil
}

func predNameEquals(name string) func(*DIE) bool {
	return func(d *DIE) bool { return d.name == name }
}

func predEnclosesPC(pc uint64) func(*DIE) bool {
	return func(d *DIE) bool {
		return d.Tag == TagSubprogram && d.InRange(pc)
	}
}

func predOffsetEquals(off Offset) func(*DIE) bool {
	return func(d *DIE) bool { return d.Offset == off }
}

// collectVariables gathers every descendant DIE tagged variable, in
// pre-order.
func collectVariables(root *DIE) []*DIE {
	var out []*DIE
	var walk func(*DIE)
	walk = func(d *DIE) {
		if d.Tag == TagVariable {
			out = append(out, d)
		}
		for _, c := range d.Children {
			walk(c)
		}
	}
	walk(root)
	return out
}

// parameters returns fn's direct children tagged formal_parameter, in
// source order.
func parameters(fn *DIE) []*DIE {
	var out []*DIE
	for _, c := range fn.Children {
		if c.Tag == TagFormalParameter {
			out = append(out, c)
		}
	}
	return out
}

// members returns agg's direct children tagged member, in source order.
// agg must be a structure_type or union_type DIE.
func members(agg *DIE) ([]*DIE, error) {
	if agg.Tag != TagStructureType && agg.Tag != TagUnionType {
		return nil, newError(KindDIE, DIENotStructOrUnion)
	}
	var out []*DIE
	for _, c := range agg.Children {
		if c.Tag == TagMember {
			out = append(out, c)
		}
	}
	return out, nil
}

// membersViaType returns the members of the struct/union that d's type
// chain resolves to, looking up the terminal aggregate DIE in root's tree.
func membersViaType(d *DIE, root *DIE) ([]*DIE, error) {
	if !d.TypeInfo.HasType {
		return nil, newError(KindDIE, DIENoDataType)
	}
	tag, ok := d.TypeInfo.TerminalTag()
	if !ok || (tag != TagStructureType && tag != TagUnionType) {
		return nil, newError(KindDIE, DIENotStructOrUnion)
	}
	agg := search(root, predOffsetEquals(d.TypeInfo.baseOffset))
	if agg == nil {
		return nil, newError(KindDIE, DIENotFound)
	}
	return members(agg)
}
