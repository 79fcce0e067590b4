package sym

import (
	"path/filepath"
	"sort"
)

// LineRecord is one row of a compilation unit's line-number program,
// already replayed by the external DWARF reader (spec.md §1 Non-goals:
// "does not replay the line-number program itself").
type LineRecord struct {
	Addr uint64
	File string
	Line int
}

// lineIndex is the per-CU, address-ordered line table the four queries of
// spec.md §4.7 operate over.
type lineIndex struct {
	records []LineRecord
}

// newLineIndex builds a lineIndex from records, sorting them by address so
// every query below can use binary search / an ordered forward scan.
func newLineIndex(records []LineRecord) *lineIndex {
	sorted := make([]LineRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Addr < sorted[j].Addr })
	return &lineIndex{records: sorted}
}

// pcToLine implements spec.md §4.7 "PC → line": an exact match on record
// address. It fails with DIELineNotFound if no record has that exact
// address.
func (idx *lineIndex) pcToLine(pc uint64) (LineRecord, error) {
	n := len(idx.records)
	i := sort.Search(n, func(i int) bool { return idx.records[i].Addr >= pc })
	if i >= n || idx.records[i].Addr != pc {
		return LineRecord{}, newError(KindDIE, DIELineNotFound)
	}
	return idx.records[i], nil
}

// lineToPC implements spec.md §4.7 "Line → PC": if (file, line) has an
// exact record, its (lowest) address is returned together with line
// itself. Otherwise the record in file whose line number is closest (by
// absolute difference) to line is used instead, and its own line number is
// returned as usedLine so the caller can surface the adjustment — the
// input line is never mutated in place (spec.md §9, Open Question (i)).
func (idx *lineIndex) lineToPC(file string, line int) (pc uint64, usedLine int, err error) {
	var candidates []LineRecord
	for _, r := range idx.records {
		if r.File == file {
			candidates = append(candidates, r)
		}
	}
	if len(candidates) == 0 {
		return 0, 0, newError(KindDIE, DIELineNotFound)
	}

	best := candidates[0]
	bestDiff := absDiff(best.Line, line)
	bestIsExact := best.Line == line

	for _, r := range candidates[1:] {
		if r.Line == line {
			if !bestIsExact || r.Addr < best.Addr {
				best = r
				bestIsExact = true
			}
			continue
		}
		if bestIsExact {
			continue
		}
		diff := absDiff(r.Line, line)
		if diff < bestDiff || (diff == bestDiff && r.Addr < best.Addr) {
			best = r
			bestDiff = diff
		}
	}

	return best.Addr, best.Line, nil
}

func absDiff(a, b int) int {
	if a > b {
		return a - b
	}
	return b - a
}

// lineToPCs implements spec.md §4.7 "Line → PCs (all)": every address
// recorded for (file, line), ascending — a single source line may generate
// multiple addresses.
func (idx *lineIndex) lineToPCs(file string, line int) []uint64 {
	var out []uint64
	for _, r := range idx.records {
		if r.File == file && r.Line == line {
			out = append(out, r.Addr)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// nextLine implements spec.md §4.7 "PC → next line": starting from p's own
// line record, scan forward (by address) for the first record whose line
// number is recorded (> 0) and differs from p's, and return it. It fails
// with DIENextLineNotFound if p has no line record of its own, or no such
// record follows it.
func (idx *lineIndex) nextLine(p uint64) (LineRecord, error) {
	cur, err := idx.pcToLine(p)
	if err != nil {
		return LineRecord{}, newError(KindDIE, DIENextLineNotFound)
	}

	n := len(idx.records)
	i := sort.Search(n, func(i int) bool { return idx.records[i].Addr > p })
	for ; i < n; i++ {
		r := idx.records[i]
		if r.Line > 0 && r.Line != cur.Line {
			return r, nil
		}
	}

	return LineRecord{}, newError(KindDIE, DIENextLineNotFound)
}

// basename trims a source file path to its final component, the form
// spec.md §4.7's PC→(file,func,line) query reports.
func basename(path string) string {
	return filepath.Base(path)
}
