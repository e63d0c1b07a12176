package plan

import (
	"fmt"
	"strings"
)

// Format returns a human-readable rendition of the plan, zones and names in
// sorted order.
func Format(p Plan) string {
	var b strings.Builder

	if p.Len() == 0 {
		fmt.Fprintf(&b, "Plan: no changes\n")
		return b.String()
	}

	fmt.Fprintf(&b, "Plan: %d change(s)\n", p.Len())
	for _, z := range p.Zones() {
		fmt.Fprintf(&b, "  Zone %s:\n", z)
		for _, name := range p.Names(z) {
			a := p[z][name]
			fmt.Fprintf(&b, "    - %-6s %-5s %s", a.Kind, a.Type, a.Name)
			if len(a.Values) > 0 {
				fmt.Fprintf(&b, " -> %s", strings.Join(a.Values, ","))
			}
			fmt.Fprintln(&b)
		}
	}

	return b.String()
}
