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

package plugin

import (
	"bytes"
	"cmp"
	"slices"

	"bennypowers.dev/sous/graph"
)

// Edit replaces the bytes between Start and End with Text.
type Edit struct {
	Start, End int
	Text       string
}

// SpecifierEdit returns the edit writing the generated specifier of ref
// over its span in content, and false when nothing would change.
func SpecifierEdit(content []byte, ref *graph.Reference) (Edit, bool) {
	if ref.IsImplicit || ref.IsIgnored() || ref.End <= ref.Start || ref.End > len(content) {
		return Edit{}, false
	}
	if string(content[ref.Start:ref.End]) == ref.GeneratedSpecifier {
		return Edit{}, false
	}
	return Edit{Start: ref.Start, End: ref.End, Text: ref.GeneratedSpecifier}, true
}

// ApplyEdits returns content with non-overlapping edits applied. content
// itself is left untouched.
func ApplyEdits(content []byte, edits []Edit) []byte {
	if len(edits) == 0 {
		return content
	}
	sorted := slices.SortedFunc(slices.Values(edits), func(a, b Edit) int {
		return cmp.Compare(a.Start, b.Start)
	})
	var b bytes.Buffer
	b.Grow(len(content))
	last := 0
	for _, e := range sorted {
		b.Write(content[last:e.Start])
		b.WriteString(e.Text)
		last = e.End
	}
	b.Write(content[last:])
	return b.Bytes()
}
