package sym

import (
	"fmt"
	"strings"
)

// Pretty renders a single DIE as one line, in the style spec.md §6 calls
// for ("pretty-print a single DIE or a subtree"): tag, name, offset, and
// whatever of range/type/location the DIE carries.
func (d *DIE) Pretty() string {
	var b strings.Builder
	fmt.Fprintf(&b, "<%#x> %s %q", d.Offset, d.Tag, d.name)

	if d.HasRange {
		fmt.Fprintf(&b, " [%#x,%#x)", d.LowPC, d.HighPC)
	}
	if d.HasMemberOffset {
		fmt.Fprintf(&b, " +%#x", d.MemberOffset)
	}
	if d.TypeInfo.HasType {
		fmt.Fprintf(&b, " : %s", d.TypeInfo.TypeName)
		if d.TypeInfo.SizeKnown() {
			fmt.Fprintf(&b, " (%#x bytes)", d.TypeInfo.ByteSize)
		}
	}
	if d.Location != nil && len(d.Location.Chains) > 0 {
		fmt.Fprintf(&b, " loc:%d", len(d.Location.Chains))
	}

	return b.String()
}

// PrettySubtree renders d and every descendant, one per line, indented two
// spaces per tree depth.
func (d *DIE) PrettySubtree() string {
	var b strings.Builder
	prettyWalk(&b, d, 0)
	return b.String()
}

func prettyWalk(b *strings.Builder, d *DIE, depth int) {
	b.WriteString(strings.Repeat("  ", depth))
	b.WriteString(d.Pretty())
	b.WriteString("\n")
	for _, c := range d.Children {
		prettyWalk(b, c, depth+1)
	}
}
