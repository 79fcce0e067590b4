package sym

// Kind classifies an error by the subsystem that raised it.
type Kind int

// Code distinguishes errors of the same Kind.
type Code int

// The closed set of error kinds.
const (
	NoError Kind = iota
	KindGeneric
	KindAdapter
	KindCU
	KindDIE
)

// Codes for KindGeneric.
const (
	GenericBadArgument Code = iota
	GenericMissingFile
	GenericNullHandle
	GenericClosed
)

// Codes for KindAdapter. Each names one failure mode of a call into the
// external DWARF/ELF reader.
const (
	AdapterOpenFailed Code = iota
	AdapterNotELF
	AdapterNoDWARF
	AdapterReadFailed
	AdapterBadForm
	AdapterNoLocSection
	AdapterBadLoclist
	AdapterNoEntry
)

// Codes for KindCU.
const (
	CUNotFound Code = iota
	CUNoHeader
)

// Codes for KindDIE.
const (
	DIENotCompileUnit Code = iota
	DIENotSubprogram
	DIENoParent
	DIENoDataType
	DIENotStructOrUnion
	DIENotFound
	DIELineNotFound
	DIENextLineNotFound
)

// messages is a two-level static table of short, bounded messages. It is
// consulted only to render a human-readable string; no entry in it is ever
// built with fmt.Sprintf, so message never allocates on the path a caller
// takes to decide what went wrong (Kind and Code comparisons are enough for
// that).
var messages = map[Kind]map[Code]string{
	KindGeneric: {
		GenericBadArgument: "bad argument",
		GenericMissingFile: "missing file",
		GenericNullHandle:  "null handle",
		GenericClosed:      "context is closed",
	},
	KindAdapter: {
		AdapterOpenFailed:   "could not open file",
		AdapterNotELF:       "not an ELF file",
		AdapterNoDWARF:      "no DWARF data",
		AdapterReadFailed:   "DWARF read failed",
		AdapterBadForm:      "unexpected attribute form",
		AdapterNoLocSection: "no .debug_loc section",
		AdapterBadLoclist:   "malformed location list",
		AdapterNoEntry:      "no entry",
	},
	KindCU: {
		CUNotFound: "compilation unit not found",
		CUNoHeader: "no more compilation unit headers",
	},
	KindDIE: {
		DIENotCompileUnit:   "DIE is not a compile unit",
		DIENotSubprogram:    "DIE is not a subprogram",
		DIENoParent:         "DIE has no parent",
		DIENoDataType:       "DIE has no data type",
		DIENotStructOrUnion: "DIE is not a struct or union",
		DIENotFound:         "DIE not found",
		DIELineNotFound:     "line not found",
		DIENextLineNotFound: "next line not found",
	},
}

const outOfBounds = "out of bounds"

// message returns the bounded static string for (kind, code). An
// out-of-range kind or code never panics: it maps to a generic fallback.
func message(kind Kind, code Code) string {
	byCode, ok := messages[kind]
	if !ok {
		return outOfBounds
	}
	s, ok := byCode[code]
	if !ok {
		return outOfBounds
	}
	return s
}

// Error is a (kind, code) pair. It implements the standard error interface
// so it can be returned and compared like any other Go error, while still
// carrying the stable kind/code taxonomy spec'd for the library.
type Error struct {
	Kind Kind
	Code Code
}

// newError constructs an *Error. Used internally rather than a plain
// errors.New so that every library failure carries a Kind/Code pair.
func newError(kind Kind, code Code) *Error {
	return &Error{Kind: kind, Code: code}
}

// Error implements the error interface.
func (e *Error) Error() string {
	return message(e.Kind, e.Code)
}

// Is reports whether err is a library *Error with the given kind and code.
func Is(err error, kind Kind, code Code) bool {
	e, ok := err.(*Error)
	if !ok {
		return false
	}
	return e.Kind == kind && e.Code == code
}

// errState holds the "current error" referred to by the Context-level
// accessors in §6 (LastError / ClearError). Every public entry point that
// takes a *Context updates this state as a side effect, mirroring the
// original C library's global symerr_t while additionally returning the
// error the idiomatic Go way.
type errState struct {
	kind Kind
	code Code
	set  bool
}

func (s *errState) set_(kind Kind, code Code) *Error {
	s.kind = kind
	s.code = code
	s.set = true
	return newError(kind, code)
}

func (s *errState) clear() {
	s.kind = NoError
	s.code = 0
	s.set = false
}

func (s *errState) message() string {
	if !s.set {
		return message(NoError, 0)
	}
	return message(s.kind, s.code)
}

func init() {
	// NoError has no codes of its own; guarantee message() never reports
	// "out of bounds" for it.
	messages[NoError] = map[Code]string{0: "no error"}
}
