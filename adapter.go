package sym

import (
	"debug/dwarf"
	"debug/elf"
	"encoding/binary"
	"errors"
	"io"
	"os"

	"github.com/jsherman212/libsym/logger"
)

// adapter is the thin, total-function layer over the external DWARF/ELF
// reader (the standard library's debug/dwarf and debug/elf packages). Every
// method either succeeds or returns a *Error; no *dwarf.Entry, *elf.File, or
// any other reader-owned value is ever handed back to a caller outside this
// file and die.go/dexpr.go/dietype.go, which treat rawDIE/dwarf.Entry as a
// private implementation detail of tree construction.
type adapter struct {
	file *os.File
	ef   *elf.File
	dwrf *dwarf.Data

	byteOrder binary.ByteOrder
	debugLoc  []byte // raw .debug_loc section, nil if absent

	// byOffset indexes every raw entry seen during buildRaw, including
	// tags dropped from the admitted DIE tree (base_type, pointer_type,
	// typedef, array_type, subrange_type, ...). The type-chain resolver
	// (dietype.go) needs to follow references to exactly these tags, so
	// it looks them up here rather than in the trimmed tree.
	byOffset map[rawOffset]*rawDIE

	// cuHeaders is every compilation unit's raw header, in section order,
	// decoded directly from .debug_info since debug/dwarf's own Reader
	// does not expose header fields (version, abbrev offset, header
	// length) through its entry-streaming API.
	cuHeaders []cuHeader
}

// lookupRaw resolves a raw DWARF offset to the rawDIE seen for it during
// the initial pre-walk, regardless of whether that tag was admitted into
// the trimmed DIE tree.
func (a *adapter) lookupRaw(off rawOffset) (*rawDIE, bool) {
	r, ok := a.byOffset[off]
	return r, ok
}

// rawOffset identifies a DIE the way the adapter's underlying reader does.
// die.go translates this into the tree's own Offset type.
type rawOffset = dwarf.Offset

// rawDIE is one node of the adapter's pre-walked tree: a single linear pass
// over the flattened dwarf.Reader stream, reconstructed into a real tree
// using a depth-indexed parent stack (see buildRaw). die.go walks this
// structure with firstChild/nextSibling-shaped accessors instead of driving
// the reader itself, matching the adapter capabilities listed in §1/§6:
// "walk a raw DIE: first child, next sibling, tag, name, offset".
type rawDIE struct {
	entry    *dwarf.Entry
	parent   *rawDIE
	children []*rawDIE
	addrSize int

	// cuLowPC/hasCULow carry the enclosing compilation unit's low_pc, the
	// base address against which loclist entries and DW_OP_addr are
	// resolved (DWARF4 §3.1.1 / §2.6.2).
	cuLowPC  uint64
	hasCULow bool
}

func (r *rawDIE) tag() dwarf.Tag    { return r.entry.Tag }
func (r *rawDIE) offset() rawOffset { return r.entry.Offset }

func (r *rawDIE) firstChild() *rawDIE {
	return r.nthChild(0)
}

func (r *rawDIE) nthChild(i int) *rawDIE {
	if i < 0 || i >= len(r.children) {
		return nil
	}
	return r.children[i]
}

// nextSibling returns the rawDIE immediately following r among r.parent's
// children, or nil if r is the last child (or has no parent, i.e. is a CU
// root).
func (r *rawDIE) nextSibling() *rawDIE {
	if r.parent == nil {
		return nil
	}
	for i, c := range r.parent.children {
		if c == r {
			return r.parent.nthChild(i + 1)
		}
	}
	return nil
}

func (r *rawDIE) name() (string, bool) {
	v, ok := r.entry.Val(dwarf.AttrName).(string)
	return v, ok
}

// openAdapter opens path as an ELF file carrying DWARF debugging
// information and pre-walks every compilation unit into a rawDIE tree,
// returning one root rawDIE (tag compile_unit) per unit, in header order.
func openAdapter(path string) (*adapter, []*rawDIE, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, newError(KindAdapter, AdapterOpenFailed)
	}

	ef, err := elf.NewFile(f)
	if err != nil {
		f.Close()
		return nil, nil, newError(KindAdapter, AdapterNotELF)
	}

	d, err := ef.DWARF()
	if err != nil {
		f.Close()
		return nil, nil, newError(KindAdapter, AdapterNoDWARF)
	}

	a := &adapter{
		file:      f,
		ef:        ef,
		dwrf:      d,
		byteOrder: ef.ByteOrder,
		byOffset:  make(map[rawOffset]*rawDIE),
	}

	if sec := ef.Section(".debug_loc"); sec != nil {
		if data, err := sec.Data(); err == nil {
			a.debugLoc = data
		} else {
			logger.Logf(logger.Allow, "sym", "could not read .debug_loc: %v", err)
		}
	}

	roots, err := a.buildRaw()
	if err != nil {
		f.Close()
		return nil, nil, err
	}

	if sec := ef.Section(".debug_info"); sec != nil {
		if data, err := sec.Data(); err == nil {
			a.cuHeaders = parseCUHeaders(data, a.byteOrder)
		} else {
			logger.Logf(logger.Allow, "sym", "could not read .debug_info for CU headers: %v", err)
		}
	}

	return a, roots, nil
}

// cuHeader is the literal DWARF compilation-unit header (DWARF4 §7.5.1.1):
// the fields spec.md §3 lists on CompilationUnit beyond the root DIE
// itself. headerOffset is the byte offset, within .debug_info, of the
// header's own unit_length field -- the same coordinate space root DIE
// offsets are expressed in, used to match a header to its root (see
// adapter.headerFor).
type cuHeader struct {
	headerOffset     uint64
	headerLength     uint64 // bytes from the start of this header to its first DIE
	abbrevOffset     uint64
	addressSize      int
	nextHeaderOffset uint64
}

// parseCUHeaders walks the raw .debug_info section bytes and decodes every
// compilation-unit header in order. It supports 32-bit DWARF (the 64-bit
// format's 0xffffffff escape is not emitted by the toolchains this library
// targets) and both the pre-DWARFv5 and DWARFv5 header layouts. A
// corrupted trailing header is silently dropped rather than erroring the
// whole load: headerFor simply has nothing to report for those CUs, and
// the affected CompilationUnit keeps its header fields zeroed.
func parseCUHeaders(data []byte, order binary.ByteOrder) []cuHeader {
	var out []cuHeader
	off := 0

	for off+4 <= len(data) {
		start := uint64(off)
		unitLength := uint64(order.Uint32(data[off:]))
		off += 4
		if unitLength == 0 || off+int(unitLength) > len(data) {
			break
		}
		next := start + 4 + unitLength

		if off+2 > len(data) {
			break
		}
		version := order.Uint16(data[off:])
		off += 2

		var abbrevOff uint64
		var addrSize int

		if version >= 5 {
			if off+6 > len(data) {
				break
			}
			// unit_type(1), address_size(1), debug_abbrev_offset(4)
			addrSize = int(data[off+1])
			abbrevOff = uint64(order.Uint32(data[off+2:]))
			off += 6
		} else {
			if off+5 > len(data) {
				break
			}
			abbrevOff = uint64(order.Uint32(data[off:]))
			addrSize = int(data[off+4])
			off += 5
		}

		out = append(out, cuHeader{
			headerOffset:     start,
			headerLength:     uint64(off) - start,
			abbrevOffset:     abbrevOff,
			addressSize:      addrSize,
			nextHeaderOffset: next,
		})

		off = int(next)
	}

	return out
}

// headerFor returns the cuHeader whose span covers rootOffset, the byte
// offset of a CU's root DIE. False if the headers could not be parsed
// (e.g. .debug_info was absent from the section table).
func (a *adapter) headerFor(rootOffset rawOffset) (cuHeader, bool) {
	for _, h := range a.cuHeaders {
		if uint64(rootOffset) >= h.headerOffset && uint64(rootOffset) < h.nextHeaderOffset {
			return h, true
		}
	}
	return cuHeader{}, false
}

// close releases the underlying file. A Context constructed without ever
// successfully opening one (e.g. in a test) carries a nil file, and closing
// that must be a no-op rather than os.ErrInvalid.
func (a *adapter) close() error {
	if a.file == nil {
		return nil
	}
	return a.file.Close()
}

// buildRaw performs the single linear pass described in SPEC_FULL.md §4.3:
// the flattened dwarf.Reader stream is read exactly once. A null entry
// (Tag == 0, the encoding's own end-of-children marker) pops the current
// parent off an explicit, growable stack; any other entry becomes a child
// of the stack's top, or a new root if the stack is empty. An entry that
// declares children pushes itself as the new parent for what follows.
func (a *adapter) buildRaw() ([]*rawDIE, error) {
	r := a.dwrf.Reader()

	var roots []*rawDIE
	var stack []*rawDIE

	var curCULow uint64
	var curCUHasLow bool

	for {
		entry, err := r.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, newError(KindAdapter, AdapterReadFailed)
		}
		if entry == nil {
			break
		}

		if entry.Tag == 0 {
			// end-of-children marker: pop one level
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
			continue
		}

		node := &rawDIE{entry: entry, addrSize: r.AddressSize()}
		a.byOffset[entry.Offset] = node

		if entry.Tag == dwarf.TagCompileUnit {
			curCULow, curCUHasLow = entryLowPC(entry)
			roots = append(roots, node)
		} else if len(stack) > 0 {
			parent := stack[len(stack)-1]
			node.parent = parent
			parent.children = append(parent.children, node)
		} else {
			// an entry outside of any compile_unit; DWARF never produces
			// this, but treat it as its own root rather than panicking.
			roots = append(roots, node)
		}

		node.cuLowPC = curCULow
		node.hasCULow = curCUHasLow

		if entry.Children {
			stack = append(stack, node)
		}
	}

	return roots, nil
}

func entryLowPC(entry *dwarf.Entry) (uint64, bool) {
	v, ok := entry.Val(dwarf.AttrLowpc).(uint64)
	return v, ok
}

// --- attribute decoding -----------------------------------------------

// decodeUint decodes attr as an unsigned integer, accepting the several
// concrete Go types debug/dwarf uses for DWARF's various constant forms.
func decodeUint(e *dwarf.Entry, attr dwarf.Attr) (uint64, bool) {
	switch v := e.Val(attr).(type) {
	case int64:
		return uint64(v), true
	case uint64:
		return v, true
	}
	return 0, false
}

// decodeInt decodes attr as a signed integer.
func decodeInt(e *dwarf.Entry, attr dwarf.Attr) (int64, bool) {
	switch v := e.Val(attr).(type) {
	case int64:
		return v, true
	case uint64:
		return int64(v), true
	}
	return 0, false
}

// decodeString decodes attr as a string.
func decodeString(e *dwarf.Entry, attr dwarf.Attr) (string, bool) {
	v, ok := e.Val(attr).(string)
	return v, ok
}

// decodeRef decodes attr as a reference to another DIE, identified by its
// offset within the same .debug_info section.
func decodeRef(e *dwarf.Entry, attr dwarf.Attr) (rawOffset, bool) {
	v, ok := e.Val(attr).(dwarf.Offset)
	return v, ok
}

// decodeRanges decodes an entry's low/high PC pair, if it has one.
// AttrHighpc may be encoded as an absolute address or as an offset from
// low_pc; debug/dwarf normalizes the latter for us when it can, but some
// producers emit it as a plain constant, so both cases are handled here.
func decodeRanges(e *dwarf.Entry) (low, high uint64, ok bool) {
	lowV, lowOK := e.Val(dwarf.AttrLowpc).(uint64)
	if !lowOK {
		return 0, 0, false
	}

	switch v := e.Val(dwarf.AttrHighpc).(type) {
	case uint64:
		high = v
	case int64:
		high = lowV + uint64(v)
	default:
		return 0, 0, false
	}

	return lowV, high, true
}

// locListRange is one PC-bounded entry decoded from the .debug_loc section:
// an absolute [Low, High) address range together with the raw location
// expression bytes valid over that range.
type locListRange struct {
	Low, High uint64
	Expr      []byte
}

// decodeLoc decodes the AttrLocation (or AttrFrameBase) value of e into
// either a single, unbounded location expression, or a list of PC-bounded
// ranges read from .debug_loc. cuLowPC is the enclosing CU's low_pc, the
// base address loclist offsets are relative to.
func (a *adapter) decodeLoc(e *dwarf.Entry, attr dwarf.Attr, cuLowPC uint64) (single []byte, ranges []locListRange, err error) {
	val := e.Val(attr)
	if val == nil {
		return nil, nil, nil
	}

	switch v := val.(type) {
	case []byte:
		// DW_FORM_exprloc / DW_FORM_block*: a single location expression,
		// not PC-bounded.
		return v, nil, nil
	case int64:
		ranges, err := a.parseLoclist(uint64(v), cuLowPC)
		if err != nil {
			return nil, nil, err
		}
		return nil, ranges, nil
	case uint64:
		ranges, err := a.parseLoclist(v, cuLowPC)
		if err != nil {
			return nil, nil, err
		}
		return nil, ranges, nil
	}

	return nil, nil, newError(KindAdapter, AdapterBadForm)
}

// parseLoclist decodes the location list beginning at byte offset ptr in
// the .debug_loc section. Each entry is a pair of 4-byte address offsets
// followed by a 2-byte expression length and the expression bytes; the list
// terminates at an entry whose address offsets are both zero. An address
// offset of 0xffffffff marks a base-address selection entry rather than a
// location (DWARF4 §2.6.2).
func (a *adapter) parseLoclist(ptr uint64, cuLowPC uint64) ([]locListRange, error) {
	if a.debugLoc == nil {
		return nil, newError(KindAdapter, AdapterNoLocSection)
	}
	if ptr >= uint64(len(a.debugLoc)) {
		return nil, newError(KindAdapter, AdapterBadLoclist)
	}

	data := a.debugLoc
	base := cuLowPC
	p := ptr

	var out []locListRange

	for {
		if p+8 > uint64(len(data)) {
			return nil, newError(KindAdapter, AdapterBadLoclist)
		}
		start := uint64(a.byteOrder.Uint32(data[p:]))
		p += 4
		end := uint64(a.byteOrder.Uint32(data[p:]))
		p += 4

		if start == 0 && end == 0 {
			break
		}

		if start == 0xffffffff {
			base = end
			continue
		}

		if p+2 > uint64(len(data)) {
			return nil, newError(KindAdapter, AdapterBadLoclist)
		}
		length := uint64(a.byteOrder.Uint16(data[p:]))
		p += 2

		if p+length > uint64(len(data)) {
			return nil, newError(KindAdapter, AdapterBadLoclist)
		}
		expr := data[p : p+length]
		p += length

		if start < end {
			out = append(out, locListRange{
				Low:  start + base,
				High: end + base,
				Expr: expr,
			})
		}
	}

	return out, nil
}

// lineRecords enumerates every line-program row for the compilation unit
// rooted at root, skipping end-sequence markers (they describe the address
// just past the last instruction, not a source line).
func (a *adapter) lineRecords(root *rawDIE) ([]LineRecord, error) {
	lr, err := a.dwrf.LineReader(root.entry)
	if err != nil {
		return nil, newError(KindAdapter, AdapterReadFailed)
	}
	if lr == nil {
		return nil, nil
	}

	var out []LineRecord
	var entry dwarf.LineEntry
	for {
		err := lr.Next(&entry)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, newError(KindAdapter, AdapterReadFailed)
		}
		if entry.EndSequence {
			continue
		}
		file := ""
		if entry.File != nil {
			file = entry.File.Name
		}
		out = append(out, LineRecord{
			Addr: entry.Address,
			File: file,
			Line: entry.Line,
		})
	}

	return out, nil
}
