/*
Copyright © 2026 Benny Powers <web@bennypowers.com>

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/

package graph

import (
	"fmt"
	"strings"
)

// PositionOf converts a byte offset into a 1-based line and column.
func PositionOf(content []byte, offset int) (line, column int) {
	if offset > len(content) {
		offset = len(content)
	}
	line = 1
	lineStart := 0
	for i := 0; i < offset; i++ {
		if content[i] == '\n' {
			line++
			lineStart = i + 1
		}
	}
	return line, offset - lineStart + 1
}

// CodeFrame renders the lines around line:column with a caret under the
// column. It returns "" when the position is out of range.
func CodeFrame(content []byte, line, column int) string {
	lines := strings.Split(string(content), "\n")
	if line < 1 || line > len(lines) {
		return ""
	}
	first := max(1, line-2)
	last := min(len(lines), line+1)
	width := len(fmt.Sprint(last))
	var b strings.Builder
	for n := first; n <= last; n++ {
		marker := " "
		if n == line {
			marker = ">"
		}
		fmt.Fprintf(&b, "%s %*d | %s\n", marker, width, n, lines[n-1])
		if n == line {
			fmt.Fprintf(&b, "  %s | %s^\n", strings.Repeat(" ", width), strings.Repeat(" ", max(0, column-1)))
		}
	}
	return b.String()
}

// TraceAt builds a Trace for a byte offset in content.
func TraceAt(ownerURL string, content []byte, offset int) Trace {
	line, column := PositionOf(content, offset)
	return Trace{
		URL:       ownerURL,
		Line:      line,
		Column:    column,
		CodeFrame: CodeFrame(content, line, column),
	}
}
