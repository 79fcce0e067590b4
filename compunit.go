package sym

// CompilationUnit is one DWARF compilation unit: the grouping that
// corresponds to a single compiled source file (spec.md §3).
type CompilationUnit struct {
	// HeaderLength is the CU header's own byte length, as reported by the
	// adapter's header iteration.
	HeaderLength uint64

	// AbbrevOffset is the byte offset of this CU's abbreviation table
	// within .debug_abbrev.
	AbbrevOffset uint64

	// AddressSize is the number of bytes in a target pointer for this CU.
	AddressSize int

	// NextHeaderOffset is the byte offset of the following CU header, or
	// the section length for the last unit.
	NextHeaderOffset uint64

	Root *DIE

	lines *lineIndex
}

// Name returns the CU's own source filename, the root DIE's name.
func (cu *CompilationUnit) Name() string {
	if cu.Root == nil {
		return ""
	}
	return cu.Root.Name()
}

// InRange reports whether pc falls within this CU's root DIE range. A CU
// whose root carries no low/high PC never matches (spec.md §3,
// CompilationUnit invariant).
func (cu *CompilationUnit) InRange(pc uint64) bool {
	return cu.Root != nil && cu.Root.InRange(pc)
}

// cuRegistry is the ordered set of a Context's compilation units
// (component H). Lookup by filename and by enclosing PC are both linear,
// acceptable for the tens-to-hundreds of CUs a real debugger workload
// carries (spec.md §4.8).
type cuRegistry struct {
	units *seq[*CompilationUnit]
}

func newCURegistry() *cuRegistry {
	return &cuRegistry{units: newSeq[*CompilationUnit](0)}
}

func (r *cuRegistry) add(cu *CompilationUnit) {
	r.units.append(cu)
}

func (r *cuRegistry) all() []*CompilationUnit {
	return r.units.all()
}

// byName finds the CU whose root DIE name equals file, exactly.
func (r *cuRegistry) byName(file string) (*CompilationUnit, error) {
	for _, cu := range r.units.all() {
		if cu.Name() == file {
			return cu, nil
		}
	}
	return nil, newError(KindCU, CUNotFound)
}

// byPC finds the CU whose root DIE's [low_pc, high_pc) range contains pc.
func (r *cuRegistry) byPC(pc uint64) (*CompilationUnit, error) {
	for _, cu := range r.units.all() {
		if cu.InRange(pc) {
			return cu, nil
		}
	}
	return nil, newError(KindCU, CUNotFound)
}
