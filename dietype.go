package sym

import (
	"debug/dwarf"
	"fmt"
	"strings"

	"github.com/jsherman212/libsym/logger"
)

// typeNameCap bounds the canonical type-name string built below. A type
// chain deep enough to overflow it (normally only possible with
// pathologically nested typedefs) is truncated rather than grown without
// limit, and TypeInfo.Truncated reports the fact; see spec.md §4.5.
const typeNameCap = 256

// DW_ATE_* base-type encodings, the values TypeInfo.BaseEncoding reports.
// The resolver itself does not branch on any of them.
const (
	dwATEAddress       = 0x1
	dwATEBoolean       = 0x2
	dwATEFloat         = 0x4
	dwATESigned        = 0x5
	dwATESignedChar    = 0x6
	dwATEUnsigned      = 0x7
	dwATEUnsignedChar  = 0x8
)

// typeLayer is one link of a type chain, outermost (the DIE that the
// starting AttrType reference points at) first and the terminal last.
type typeLayer struct {
	tag     dwarf.Tag
	raw     *rawDIE
	dims    []uint64 // array_type: one entry per subrange_type child, 0 if unknown
	hasDims bool

	// params holds each formal_parameter child's own canonical type name,
	// for a subroutine_type layer (spec.md §4.5: "A function type emits
	// ret(arg1, arg2, …)").
	params []string
}

// resolveTypeChain follows the AttrType chain starting at off, producing
// the TypeInfo spec.md §4.5 requires: a canonical C-style name, a byte
// size (or the "not a compile-time constant" sentinel), the terminal's tag
// (when it is an admitted tag) or base_type encoding, and the
// pointer/aggregate/array classification
// bits. addrSize is the target's pointer width, used to size pointer_type
// nodes that carry no explicit byte_size attribute.
func (a *adapter) resolveTypeChain(off rawOffset, addrSize int) (TypeInfo, error) {
	var layers []typeLayer

	cur := off
	for {
		raw, ok := a.lookupRaw(cur)
		if !ok {
			return TypeInfo{}, newError(KindAdapter, AdapterNoEntry)
		}

		layer := typeLayer{tag: raw.tag(), raw: raw}

		if raw.tag() == dwarf.TagArrayType {
			layer.dims, layer.hasDims = arrayDims(a, raw)
		}
		if raw.tag() == dwarf.TagSubroutineType {
			layer.params = a.subroutineParamNames(raw, addrSize)
		}

		layers = append(layers, layer)

		if isTerminalTag(raw.tag()) {
			break
		}

		next, ok := decodeRef(raw.entry, dwarf.AttrType)
		if !ok {
			// a modifier (pointer_type, const_type, ...) with no AttrType
			// means "void" at this point in the chain.
			layers = append(layers, typeLayer{tag: 0})
			break
		}
		cur = next
	}

	info := TypeInfo{HasType: true}
	info.TypeName, info.truncated = renderTypeName(layers)
	info.ByteSize = typeChainSize(layers, addrSize)
	info.Class = classify(layers)

	if term := layers[len(layers)-1]; term.tag == dwarf.TagBaseType {
		if enc, ok := decodeInt(term.raw.entry, dwarf.AttrEncoding); ok {
			info.BaseEncoding = enc
			info.hasEncoding = true
		}
	} else if tag, ok := admittedTag(layers[len(layers)-1].tag); ok {
		info.BaseTag = tag
		info.hasBaseTag = true
		info.baseOffset = Offset(layers[len(layers)-1].raw.offset())
	}

	if info.Class.IsArray() {
		for _, l := range layers {
			if l.tag == dwarf.TagArrayType {
				info.ArrayElemSize = elementSize(layers, l)
				break
			}
		}
	}

	return info, nil
}

// subroutineParamNames resolves the canonical type name of each of raw's
// formal_parameter children, in source order, for rendering a
// subroutine_type as "ret(arg1, arg2, …)". A parameter with no type
// reference (vanishingly rare, but not disallowed by DWARF) is rendered as
// "void" rather than aborting the whole chain.
func (a *adapter) subroutineParamNames(raw *rawDIE, addrSize int) []string {
	var out []string
	for c := raw.firstChild(); c != nil; c = c.nextSibling() {
		if c.tag() != dwarf.TagFormalParameter {
			continue
		}
		typeOff, ok := decodeRef(c.entry, dwarf.AttrType)
		if !ok {
			out = append(out, "void")
			continue
		}
		info, err := a.resolveTypeChain(typeOff, addrSize)
		if err != nil || !info.HasType {
			out = append(out, "void")
			continue
		}
		out = append(out, info.TypeName)
	}
	return out
}

// isTerminalTag reports whether t never itself carries a further AttrType
// reference to chase. subroutine_type is deliberately excluded: its
// AttrType, when present, is its return type, and the chain must keep
// following it (spec.md §4.5, "A function type emits ret(arg1, arg2, …)");
// a subroutine_type with no AttrType falls out of the loop via the
// no-AttrType branch below instead, which appends the implicit void
// terminal.
func isTerminalTag(t dwarf.Tag) bool {
	switch t {
	case dwarf.TagBaseType, dwarf.TagStructType, dwarf.TagUnionType, dwarf.TagEnumerationType:
		return true
	}
	return false
}

// arrayDims reads the dimension of each subrange_type child of an
// array_type DIE. A dimension of 0 with hasDims still true means the
// subrange carries no upper bound (a runtime-sized array).
func arrayDims(a *adapter, raw *rawDIE) ([]uint64, bool) {
	var dims []uint64
	found := false
	for c := raw.firstChild(); c != nil; c = c.nextSibling() {
		if c.tag() != dwarf.TagSubrangeType {
			continue
		}
		found = true
		if count, ok := decodeUint(c.entry, dwarf.AttrCount); ok {
			dims = append(dims, count)
			continue
		}
		if upper, ok := decodeUint(c.entry, dwarf.AttrUpperBound); ok {
			dims = append(dims, upper+1)
			continue
		}
		dims = append(dims, 0)
	}
	return dims, found
}

// renderTypeName builds the canonical C-style type string of spec.md §4.5,
// e.g. "const char **", "struct foo [0x10][0x4]", walking the layers from
// the outermost one to the terminal. The full name is built first; if it is
// longer than typeNameCap bytes it is cut to that length and truncated is
// set to true.
func renderTypeName(layers []typeLayer) (string, bool) {
	var prefix, suffix strings.Builder
	base := "void"

	// baseSet latches once any of {typedef, base_type, struct, union,
	// enum} names the base: a typedef is "source-truth" (spec.md §4.5),
	// so the OUTERMOST one seen (layers run outermost-first, from the
	// reference that started the walk toward its terminal) wins and
	// further layers toward the terminal must not overwrite it — e.g. a
	// typedef of a typedef of int names itself, not "int".
	baseSet := false

	for _, l := range layers {
		switch l.tag {
		case dwarf.TagPointerType:
			suffix.WriteString("*")
		case dwarf.TagConstType:
			prefix.WriteString("const ")
		case dwarf.TagVolatileType:
			prefix.WriteString("volatile ")
		case dwarf.TagTypedef:
			if baseSet {
				continue
			}
			if n, ok := l.raw.name(); ok {
				base = n
				baseSet = true
			}
		case dwarf.TagBaseType:
			if baseSet {
				continue
			}
			if n, ok := l.raw.name(); ok {
				base = n
				baseSet = true
			}
		case dwarf.TagStructType:
			if baseSet {
				continue
			}
			base = "struct " + aggName(l.raw)
			baseSet = true
		case dwarf.TagUnionType:
			if baseSet {
				continue
			}
			base = "union " + aggName(l.raw)
			baseSet = true
		case dwarf.TagEnumerationType:
			if baseSet {
				continue
			}
			base = "enum " + aggName(l.raw)
			baseSet = true
		case dwarf.TagArrayType:
			// each dimension is joined directly onto the suffix, with no
			// space of its own: the single separator below (between base
			// and suffix) is the only space the rendered name gets before
			// its first bracket. An unknown dimension (arrayDims' d == 0
			// sentinel, a subrange_type with no AttrCount/AttrUpperBound)
			// renders as the empty "[]" spec.md §4.5/§8 requires for a
			// runtime-sized array, not a literal "[0x0]".
			for _, d := range l.dims {
				if d == 0 {
					suffix.WriteString("[]")
					continue
				}
				fmt.Fprintf(&suffix, "[%#x]", d)
			}
		case dwarf.TagSubroutineType:
			suffix.WriteString("(")
			if len(l.params) == 0 {
				suffix.WriteString("void")
			} else {
				suffix.WriteString(strings.Join(l.params, ", "))
			}
			suffix.WriteString(")")
		case 0:
			// void terminal; base stays "void"
		}
	}

	name := base
	if suffix.Len() > 0 {
		sep := " "
		if strings.HasPrefix(suffix.String(), "(") {
			// a function type's parameter list follows its return type
			// directly: "ret(arg1, arg2)"
			sep = ""
		}
		name = base + sep + suffix.String()
	}
	full := prefix.String() + name
	full = strings.TrimRight(full, " ")

	if len(full) > typeNameCap {
		logger.Logf(logger.Allow, "sym", "type name exceeded %d bytes, truncated", typeNameCap)
		return full[:typeNameCap], true
	}
	return full, false
}

func aggName(raw *rawDIE) string {
	if n, ok := raw.name(); ok && n != "" {
		return n
	}
	return "{...}"
}

// typeChainSize computes the total byte size of the chain, or sizeUnknown
// if an array dimension that is part of the type's own storage (that is,
// not behind a pointer) is not a compile-time constant.
func typeChainSize(layers []typeLayer, addrSize int) uint64 {
	total := uint64(1)
	for _, l := range layers {
		if l.tag == dwarf.TagPointerType {
			// everything past the first pointer is the pointee, not part
			// of this type's own storage
			return total * uint64(addrSize)
		}
		if l.tag != dwarf.TagArrayType {
			continue
		}
		for _, d := range l.dims {
			if d == 0 {
				return sizeUnknown
			}
			total *= d
		}
	}
	return total * baseSize(layers, addrSize)
}

// baseSize returns the terminal (non-array, non-pointer) layer's own byte
// size, from its DW_AT_byte_size attribute when present. A void or
// function terminal (raw == nil, or a subroutine_type with no size
// attribute of its own) has no size of its own.
func baseSize(layers []typeLayer, addrSize int) uint64 {
	term := layers[len(layers)-1]
	if term.raw == nil || term.tag == dwarf.TagSubroutineType {
		return 0
	}
	if sz, ok := decodeUint(term.raw.entry, dwarf.AttrByteSize); ok {
		return sz
	}
	return 0
}

// elementSize returns the size of a single element of the array described
// by arrayLayer: everything the chain resolves to below the array.
func elementSize(layers []typeLayer, arrayLayer typeLayer) uint64 {
	below := false
	size := uint64(1)
	for _, l := range layers {
		if !below {
			below = l.tag == dwarf.TagArrayType
			continue
		}
		switch l.tag {
		case dwarf.TagPointerType:
			return size * uint64(addrSizeOf(layers))
		case dwarf.TagArrayType:
			for _, d := range l.dims {
				size *= d
			}
		}
	}
	return size * baseSize(layers, 0)
}

// addrSizeOf recovers the pointer width recorded on whichever layer's
// rawDIE is still available, for elementSize's pointer-element case.
func addrSizeOf(layers []typeLayer) int {
	for _, l := range layers {
		if l.raw != nil {
			return l.raw.addrSize
		}
	}
	return 8
}

// classify derives the Class bitset for a resolved type chain.
func classify(layers []typeLayer) Class {
	var c Class
	for _, l := range layers {
		switch l.tag {
		case dwarf.TagPointerType:
			c |= ClassPointer
		case dwarf.TagArrayType:
			c |= ClassArray
		case dwarf.TagStructType, dwarf.TagUnionType:
			c |= ClassAggregate
		}
	}
	return c
}
