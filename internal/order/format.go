package order

import (
	"fmt"
	"strings"
)

// FormatSnapshot renders s as a fixed-width table, top entry first.
func FormatSnapshot(s Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-4s%-6s%-12s%-16s%-12s%s\n", "#", "Z", "KIND", "ID", "STATE", "NAME")
	for _, entry := range s {
		fmt.Fprintf(&b, "%-4d%-6d%-12s%-16s%-12s%s\n", entry.DisplayOrder, entry.ZIndex, entry.Kind, entry.ID, entryState(entry), entry.Name)
	}
	return b.String()
}

func entryState(e Entry) string {
	switch {
	case e.Placeholder():
		return "unresolved"
	case e.Hidden:
		return "hidden"
	default:
		return "ok"
	}
}
