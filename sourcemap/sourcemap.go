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

// Package sourcemap reads, writes and composes version 3 source maps.
package sourcemap

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// ErrIndexedMap is returned for maps using "sections", which are not
// supported.
var ErrIndexedMap = errors.New("indexed source maps are not supported")

// Map is a version 3 source map.
type Map struct {
	Version        int      `json:"version"`
	File           string   `json:"file,omitempty"`
	SourceRoot     string   `json:"sourceRoot,omitempty"`
	Sources        []string `json:"sources"`
	SourcesContent []string `json:"sourcesContent,omitempty"`
	Names          []string `json:"names"`
	Mappings       string   `json:"mappings"`
}

// Parse validates and decodes a source map.
func Parse(data []byte) (*Map, error) {
	if !gjson.ValidBytes(data) {
		return nil, errors.New("source map is not valid JSON")
	}
	if gjson.GetBytes(data, "sections").Exists() {
		return nil, ErrIndexedMap
	}
	if v := gjson.GetBytes(data, "version").Int(); v != 3 {
		return nil, fmt.Errorf("unsupported source map version %d", v)
	}
	var m Map
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Bytes encodes the map as JSON.
func (m *Map) Bytes() ([]byte, error) {
	if m.Sources == nil {
		m.Sources = []string{}
	}
	if m.Names == nil {
		m.Names = []string{}
	}
	return json.Marshal(m)
}

// SetFile rewrites the "file" field of an encoded map in place.
func SetFile(data []byte, file string) ([]byte, error) {
	return sjson.SetBytes(data, "file", file)
}

// Sources returns the "sources" array of an encoded map.
func Sources(data []byte) []string {
	var out []string
	for _, s := range gjson.GetBytes(data, "sources").Array() {
		out = append(out, s.String())
	}
	return out
}

// Identity returns a map where every line of content maps to the same
// line of source.
func Identity(source string, content []byte) *Map {
	lines := strings.Count(string(content), "\n") + 1
	decoded := make([][]Segment, lines)
	for i := range decoded {
		decoded[i] = []Segment{{GeneratedColumn: 0, HasSource: true, SourceLine: i}}
	}
	return &Map{
		Version:  3,
		Sources:  []string{source},
		Names:    []string{},
		Mappings: EncodeMappings(decoded),
	}
}

// Compose returns a map from the generated positions of outer to the
// original positions of inner, where outer was produced from the generated
// output of inner.
func Compose(outer, inner *Map) (*Map, error) {
	outerLines, err := DecodeMappings(outer.Mappings)
	if err != nil {
		return nil, fmt.Errorf("decoding outer mappings: %w", err)
	}
	innerLines, err := DecodeMappings(inner.Mappings)
	if err != nil {
		return nil, fmt.Errorf("decoding inner mappings: %w", err)
	}
	names := append([]string(nil), inner.Names...)
	nameAt := func(name string) int {
		for i, n := range names {
			if n == name {
				return i
			}
		}
		names = append(names, name)
		return len(names) - 1
	}
	result := make([][]Segment, len(outerLines))
	for line, segments := range outerLines {
		for _, seg := range segments {
			if !seg.HasSource || seg.SourceLine >= len(innerLines) {
				continue
			}
			orig, ok := lookup(innerLines[seg.SourceLine], seg.SourceColumn)
			if !ok {
				continue
			}
			mapped := Segment{
				GeneratedColumn: seg.GeneratedColumn,
				HasSource:       true,
				Source:          orig.Source,
				SourceLine:      orig.SourceLine,
				SourceColumn:    orig.SourceColumn + (seg.SourceColumn - orig.GeneratedColumn),
				HasName:         orig.HasName,
				Name:            orig.Name,
			}
			if !orig.HasName && seg.HasName && seg.Name < len(outer.Names) {
				mapped.HasName = true
				mapped.Name = nameAt(outer.Names[seg.Name])
			}
			result[line] = append(result[line], mapped)
		}
	}
	return &Map{
		Version:        3,
		File:           outer.File,
		SourceRoot:     inner.SourceRoot,
		Sources:        inner.Sources,
		SourcesContent: inner.SourcesContent,
		Names:          names,
		Mappings:       EncodeMappings(result),
	}, nil
}

// lookup finds the segment covering column: the last one starting at or
// before it.
func lookup(segments []Segment, column int) (Segment, bool) {
	var found Segment
	ok := false
	for _, seg := range segments {
		if seg.GeneratedColumn > column {
			break
		}
		if seg.HasSource {
			found, ok = seg, true
		}
	}
	return found, ok
}

// Comment returns the sourceMappingURL comment for a script or stylesheet.
func Comment(kind, url string) string {
	if kind == "css" {
		return "\n/*# sourceMappingURL=" + url + " */"
	}
	return "\n//# sourceMappingURL=" + url
}

// DataURL encodes a map as a base64 data URL for inline sourcemaps.
func DataURL(data []byte) string {
	return "data:application/json;charset=utf-8;base64," + base64.StdEncoding.EncodeToString(data)
}
