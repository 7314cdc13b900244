// Package util holds formatting helpers shared by the command-line tools.
package util

import (
	"fmt"
	"strings"
)

// DumpOptions controls DumpSector.
type DumpOptions struct {
	// BytesPerRow, 16 if zero
	BytesPerRow int
	// Base is added to row positions, e.g. the byte offset of the sector
	Base int64
	// ASCII appends the printable characters of each row, like xxd
	ASCII bool
	// Highlight marks these positions in bold red; when Only is set, rows
	// without a highlighted byte are left out
	Highlight map[int]bool
	Only      bool
}

// DumpSector renders b in hex, one row per BytesPerRow bytes, with an extra
// space every 8 bytes.
func DumpSector(b []byte, opts DumpOptions) string {
	perRow := opts.BytesPerRow
	if perRow <= 0 {
		perRow = 16
	}
	var out strings.Builder
	ascii := make([]byte, 0, perRow)
	for first := 0; first < len(b); first += perRow {
		last := first + perRow
		marked := false
		var row strings.Builder
		fmt.Fprintf(&row, "%08x:", opts.Base+int64(first))
		for j := first; j < last; j++ {
			if j%8 == 0 {
				row.WriteByte(' ')
			}
			if j >= len(b) {
				row.WriteString("   ")
				ascii = append(ascii, ' ')
				continue
			}
			hex := fmt.Sprintf(" %02x", b[j])
			if opts.Highlight[j] {
				hex = "\033[1m\033[31m" + hex + "\033[0m"
				marked = true
			}
			row.WriteString(hex)
			if b[j] < 32 || b[j] > 126 {
				ascii = append(ascii, '.')
			} else {
				ascii = append(ascii, b[j])
			}
		}
		if opts.ASCII {
			fmt.Fprintf(&row, "  %s", ascii)
		}
		ascii = ascii[:0]
		if opts.Only && !marked {
			continue
		}
		out.WriteString(row.String())
		out.WriteByte('\n')
	}
	return out.String()
}

// Diff returns the positions at which a and b differ; bytes past the end of
// the shorter slice count as different.
func Diff(a, b []byte) []int {
	var diffs []int
	for i := 0; i < max(len(a), len(b)); i++ {
		if i >= len(a) || i >= len(b) || a[i] != b[i] {
			diffs = append(diffs, i)
		}
	}
	return diffs
}

// DumpChanges renders only the rows of before and after that differ, with the
// changed bytes highlighted. It returns "" when they are identical.
func DumpChanges(before, after []byte, base int64) string {
	diffs := Diff(before, after)
	if len(diffs) == 0 {
		return ""
	}
	hl := make(map[int]bool, len(diffs))
	for _, d := range diffs {
		hl[d] = true
	}
	opts := DumpOptions{Base: base, ASCII: true, Highlight: hl, Only: true}
	return "before:\n" + DumpSector(before, opts) + "after:\n" + DumpSector(after, opts)
}
