// Package sym is a library for consuming DWARF debugging information and
// exposing it to a debugger front end: it parses every compilation unit of
// a target binary, builds a trimmed, parent-linked tree of debugging
// information entries per unit, resolves type-describing DIE chains into
// canonical type strings and sizes, preserves variable location
// descriptions, and answers source-level queries (name lookup, PC↔line,
// function-encloses-PC, variable/parameter/member enumeration, and
// location evaluation).
//
// The package does not itself decode the raw DWARF byte format beyond
// what the standard library's debug/dwarf and debug/elf packages already
// provide, and it never reads target process memory or registers: all
// location evaluation is symbolic, for a live debugger to complete.
package sym

// Context owns everything produced by Open: the adapter's file/ELF/DWARF
// handles and the registry of compilation units built from them. Every CU,
// DIE, and string it exposes is valid only while the Context is open
// (spec.md §3, §5 "external access discipline").
type Context struct {
	a    *adapter
	cus  *cuRegistry
	errs errState

	closed bool
}

// Open acquires path as an ELF file carrying DWARF debugging information,
// parses every compilation unit, builds each one's DIE tree, and installs
// its line index. Any failure releases everything acquired so far before
// returning (spec.md §6 "Opening").
func Open(path string) (*Context, error) {
	if path == "" {
		return nil, newError(KindGeneric, GenericMissingFile)
	}

	a, roots, err := openAdapter(path)
	if err != nil {
		return nil, err
	}

	ctx := &Context{a: a, cus: newCURegistry()}
	names := &nameCounters{}

	for _, raw := range roots {
		cu := &CompilationUnit{AddressSize: raw.addrSize}
		if h, ok := a.headerFor(raw.offset()); ok {
			cu.HeaderLength = h.headerLength
			cu.AbbrevOffset = h.abbrevOffset
			cu.NextHeaderOffset = h.nextHeaderOffset
			cu.AddressSize = h.addressSize
		}

		tb := &treeBuilder{a: a, cu: cu, names: names}
		root, err := tb.buildTree(raw)
		if err != nil {
			a.close()
			return nil, err
		}
		cu.Root = root

		records, err := a.lineRecords(raw)
		if err != nil {
			a.close()
			return nil, err
		}
		cu.lines = newLineIndex(records)

		ctx.cus.add(cu)
	}

	return ctx, nil
}

// Close releases everything the Context holds: the bound DWARF/ELF data
// and the underlying file. It is idempotent, safe to call on an already
// closed or nil Context (spec.md §6 "Closing").
func (c *Context) Close() error {
	if c == nil || c.closed {
		return nil
	}
	c.closed = true
	return c.a.close()
}

// fail records err (if it is a *Error) as the Context's current error and
// returns it unchanged, so every public method can end with `return
// c.fail(err)` regardless of whether err is nil.
func (c *Context) fail(err error) error {
	if err == nil {
		c.errs.clear()
		return nil
	}
	if se, ok := err.(*Error); ok {
		c.errs.set_(se.Kind, se.Code)
	}
	return err
}

func (c *Context) checkOpen() error {
	if c == nil {
		return newError(KindGeneric, GenericNullHandle)
	}
	if c.closed {
		return newError(KindGeneric, GenericClosed)
	}
	return nil
}

// LastError returns the error recorded by the most recent call into this
// Context, or nil if that call succeeded or none has been made
// (spec.md §7, "Error accessors").
func (c *Context) LastError() error {
	if c == nil || !c.errs.set {
		return nil
	}
	return newError(c.errs.kind, c.errs.code)
}

// ClearError resets the Context's recorded error state to "no error".
func (c *Context) ClearError() {
	if c == nil {
		return
	}
	c.errs.clear()
}

// --- CU queries (spec.md §6) --------------------------------------------

// CUs returns every compilation unit, in the order they were loaded. The
// returned slice aliases Context-owned storage and must be treated as
// read-only.
func (c *Context) CUs() []*CompilationUnit {
	if err := c.checkOpen(); err != nil {
		c.fail(err)
		return nil
	}
	c.fail(nil)
	return c.cus.all()
}

// CUByName finds the compilation unit whose own source filename equals
// file.
func (c *Context) CUByName(file string) (*CompilationUnit, error) {
	if err := c.checkOpen(); err != nil {
		return nil, c.fail(err)
	}
	cu, err := c.cus.byName(file)
	return cu, c.fail(err)
}

// CUByPC finds the compilation unit whose root DIE's [low_pc, high_pc)
// range contains pc.
func (c *Context) CUByPC(pc uint64) (*CompilationUnit, error) {
	if err := c.checkOpen(); err != nil {
		return nil, c.fail(err)
	}
	cu, err := c.cus.byPC(pc)
	return cu, c.fail(err)
}

// --- DIE queries (spec.md §6) --------------------------------------------

// FindByName returns the first DIE, across every compilation unit in load
// order, whose own name equals name.
func (c *Context) FindByName(name string) (*DIE, error) {
	if err := c.checkOpen(); err != nil {
		return nil, c.fail(err)
	}
	for _, cu := range c.cus.all() {
		if d := search(cu.Root, predNameEquals(name)); d != nil {
			return d, c.fail(nil)
		}
	}
	return nil, c.fail(newError(KindDIE, DIENotFound))
}

// FindByOffset returns the DIE, across every compilation unit, whose DWARF
// offset equals off.
func (c *Context) FindByOffset(off Offset) (*DIE, error) {
	if err := c.checkOpen(); err != nil {
		return nil, c.fail(err)
	}
	for _, cu := range c.cus.all() {
		if d := search(cu.Root, predOffsetEquals(off)); d != nil {
			return d, c.fail(nil)
		}
	}
	return nil, c.fail(newError(KindDIE, DIENotFound))
}

// FunctionByPC returns the subprogram DIE whose [low_pc, high_pc) range
// contains pc. It consults the owning compilation unit first (found by PC
// range) and falls back to scanning every unit, so a subprogram is still
// found even when its CU's own root carries no range.
func (c *Context) FunctionByPC(pc uint64) (*DIE, error) {
	if err := c.checkOpen(); err != nil {
		return nil, c.fail(err)
	}
	if cu, err := c.cus.byPC(pc); err == nil {
		if d := search(cu.Root, predEnclosesPC(pc)); d != nil {
			return d, c.fail(nil)
		}
	}
	for _, cu := range c.cus.all() {
		if d := search(cu.Root, predEnclosesPC(pc)); d != nil {
			return d, c.fail(nil)
		}
	}
	return nil, c.fail(newError(KindDIE, DIENotFound))
}

// Parameters returns d's direct children tagged formal_parameter, in
// source order, whatever d's own tag is; it returns nil when there are
// none.
func (d *DIE) Parameters() []*DIE { return parameters(d) }

// Members returns the struct/union members reachable from d: d's own
// direct member children if d is itself a structure_type/union_type, or
// else the members of the aggregate d's type chain resolves to (looked up
// within root's tree), per spec.md §4.6.
func (d *DIE) Members(root *DIE) ([]*DIE, error) {
	if d.Tag == TagStructureType || d.Tag == TagUnionType {
		return members(d)
	}
	return membersViaType(d, root)
}

// Variables returns every descendant DIE tagged variable, in pre-order.
func (d *DIE) Variables() []*DIE { return collectVariables(d) }

// --- Line queries (spec.md §6, §4.7) -------------------------------------

// PCToLine returns the line record whose address exactly equals pc, within
// whichever compilation unit covers it.
func (c *Context) PCToLine(pc uint64) (LineRecord, error) {
	if err := c.checkOpen(); err != nil {
		return LineRecord{}, c.fail(err)
	}
	if cu, err := c.cus.byPC(pc); err == nil {
		if r, err := cu.lines.pcToLine(pc); err == nil {
			return r, c.fail(nil)
		}
	}
	for _, cu := range c.cus.all() {
		if r, err := cu.lines.pcToLine(pc); err == nil {
			return r, c.fail(nil)
		}
	}
	return LineRecord{}, c.fail(newError(KindDIE, DIELineNotFound))
}

// PCToSourceLocation resolves pc to its source file (trimmed to basename),
// enclosing function name (empty if none encloses pc), and line number.
func (c *Context) PCToSourceLocation(pc uint64) (file, function string, line int, err error) {
	rec, err := c.PCToLine(pc)
	if err != nil {
		return "", "", 0, err
	}
	file = basename(rec.File)
	line = rec.Line
	if fn, ferr := c.FunctionByPC(pc); ferr == nil {
		function = fn.Name()
	}
	c.fail(nil)
	return file, function, line, nil
}

// LineToPC resolves (file, line) to an address. If that exact line has a
// record, its lowest address is returned with usedLine == line. Otherwise
// the nearest line (by absolute difference) with a record in file is used
// instead, and usedLine reports which line was actually used — line itself
// is never mutated (spec.md §9, Open Question (i)).
func (c *Context) LineToPC(file string, line int) (pc uint64, usedLine int, err error) {
	if err := c.checkOpen(); err != nil {
		return 0, 0, c.fail(err)
	}
	for _, cu := range c.cus.all() {
		if pc, used, e := cu.lines.lineToPC(file, line); e == nil {
			return pc, used, c.fail(nil)
		}
	}
	return 0, 0, c.fail(newError(KindDIE, DIELineNotFound))
}

// LineToPCs returns every address recorded for (file, line), ascending, a
// single source line may generate multiple addresses.
func (c *Context) LineToPCs(file string, line int) []uint64 {
	if err := c.checkOpen(); err != nil {
		c.fail(err)
		return nil
	}
	var out []uint64
	for _, cu := range c.cus.all() {
		out = append(out, cu.lines.lineToPCs(file, line)...)
	}
	c.fail(nil)
	return out
}

// PCToNextLine returns the line record for the address at which control
// passes from p's source line to the next one.
func (c *Context) PCToNextLine(p uint64) (LineRecord, error) {
	if err := c.checkOpen(); err != nil {
		return LineRecord{}, c.fail(err)
	}
	if cu, err := c.cus.byPC(p); err == nil {
		if r, err := cu.lines.nextLine(p); err == nil {
			return r, c.fail(nil)
		}
	}
	for _, cu := range c.cus.all() {
		if r, err := cu.lines.nextLine(p); err == nil {
			return r, c.fail(nil)
		}
	}
	return LineRecord{}, c.fail(newError(KindDIE, DIENextLineNotFound))
}

// --- Location evaluation (spec.md §6, §4.4) ------------------------------

// EvaluateLocation evaluates d's location description at pc, returning a
// debugger-agnostic location (a register name, a memory address, or a
// literal) without reading any target memory or registers. If d has a
// frame-base-relative subprogram ancestor, that subprogram's own frame
// base is evaluated first and used to resolve DW_OP_fbreg.
func (c *Context) EvaluateLocation(d *DIE, pc uint64) (LocResult, error) {
	if err := c.checkOpen(); err != nil {
		return LocResult{}, c.fail(err)
	}
	if d == nil || d.Location == nil {
		return LocResult{}, c.fail(newError(KindDIE, DIENotFound))
	}

	var chain *LocationChain
	var fallback *LocationChain
	for _, ch := range d.Location.Chains {
		if ch.Bounded && ch.InRange(pc) {
			chain = ch
			break
		}
		if !ch.Bounded && fallback == nil {
			fallback = ch
		}
	}
	if chain == nil {
		chain = fallback
	}
	if chain == nil {
		return LocResult{Kind: ResultUnavailable}, c.fail(nil)
	}

	var fb *LocResult
	if d.FrameBase != nil {
		r, err := evaluate(d.FrameBase, nil)
		if err == nil {
			fb = &r
		}
	}

	result, err := evaluate(chain, fb)
	return result, c.fail(err)
}
