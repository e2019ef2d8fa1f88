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

package sourcemap

import (
	"fmt"
	"strings"
)

const base64Chars = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"

var base64Index = func() [256]int8 {
	var idx [256]int8
	for i := range idx {
		idx[i] = -1
	}
	for i := 0; i < len(base64Chars); i++ {
		idx[base64Chars[i]] = int8(i)
	}
	return idx
}()

// Segment is one decoded mapping. All fields hold absolute values.
type Segment struct {
	GeneratedColumn int
	HasSource       bool
	Source          int
	SourceLine      int
	SourceColumn    int
	HasName         bool
	Name            int
}

// DecodeMappings decodes a "mappings" string into segments grouped by
// generated line.
func DecodeMappings(mappings string) ([][]Segment, error) {
	var (
		lines                       [][]Segment
		source, srcLine, srcCol, nm int
	)
	for _, line := range strings.Split(mappings, ";") {
		var segs []Segment
		col := 0
		for _, field := range strings.Split(line, ",") {
			if field == "" {
				continue
			}
			values, err := decodeVLQ(field)
			if err != nil {
				return nil, err
			}
			switch len(values) {
			case 1, 4, 5:
			default:
				return nil, fmt.Errorf("segment %q has %d fields", field, len(values))
			}
			col += values[0]
			seg := Segment{GeneratedColumn: col}
			if len(values) >= 4 {
				source += values[1]
				srcLine += values[2]
				srcCol += values[3]
				seg.HasSource = true
				seg.Source, seg.SourceLine, seg.SourceColumn = source, srcLine, srcCol
			}
			if len(values) == 5 {
				nm += values[4]
				seg.HasName = true
				seg.Name = nm
			}
			segs = append(segs, seg)
		}
		lines = append(lines, segs)
	}
	return lines, nil
}

// EncodeMappings is the inverse of DecodeMappings.
func EncodeMappings(lines [][]Segment) string {
	var (
		b                           strings.Builder
		source, srcLine, srcCol, nm int
	)
	for i, segs := range lines {
		if i > 0 {
			b.WriteByte(';')
		}
		col := 0
		for j, seg := range segs {
			if j > 0 {
				b.WriteByte(',')
			}
			encodeVLQ(&b, seg.GeneratedColumn-col)
			col = seg.GeneratedColumn
			if !seg.HasSource {
				continue
			}
			encodeVLQ(&b, seg.Source-source)
			encodeVLQ(&b, seg.SourceLine-srcLine)
			encodeVLQ(&b, seg.SourceColumn-srcCol)
			source, srcLine, srcCol = seg.Source, seg.SourceLine, seg.SourceColumn
			if seg.HasName {
				encodeVLQ(&b, seg.Name-nm)
				nm = seg.Name
			}
		}
	}
	return b.String()
}

func decodeVLQ(field string) ([]int, error) {
	var (
		values       []int
		value, shift int
	)
	for i := 0; i < len(field); i++ {
		digit := base64Index[field[i]]
		if digit < 0 {
			return nil, fmt.Errorf("invalid base64 character %q in %q", field[i], field)
		}
		cont := digit&32 != 0
		value += int(digit&31) << shift
		if cont {
			shift += 5
			continue
		}
		negative := value&1 != 0
		value >>= 1
		if negative {
			value = -value
		}
		values = append(values, value)
		value, shift = 0, 0
	}
	if shift != 0 {
		return nil, fmt.Errorf("truncated VLQ in %q", field)
	}
	return values, nil
}

func encodeVLQ(b *strings.Builder, n int) {
	v := n << 1
	if n < 0 {
		v = (-n << 1) | 1
	}
	for {
		digit := v & 31
		v >>= 5
		if v > 0 {
			digit |= 32
		}
		b.WriteByte(base64Chars[digit])
		if v == 0 {
			return
		}
	}
}
