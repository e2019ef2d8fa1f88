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

// Package inject writes import maps and bootstrap scripts into HTML
// documents, updating an existing import map script tag or inserting new
// tags at the top of <head>.
package inject

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"bennypowers.dev/sous/importmap"
	"golang.org/x/net/html"
)

// ErrNoHead is returned when a document has no <head> to insert into.
var ErrNoHead = errors.New("could not find insertion point (no <head> tag)")

// Location is the byte span of an import map script's content.
type Location struct {
	Found        bool
	ContentStart int
	ContentEnd   int
	// Line is the 1-based line of the opening tag.
	Line int
}

// InsertPoint is where new tags go: the first non-whitespace byte after
// <head>, and the indentation found before it.
type InsertPoint struct {
	Found  bool
	Offset int
	Indent string
}

var errStop = errors.New("stop")

// FindImportMap locates the first <script type="importmap"> in content.
func FindImportMap(content []byte) Location {
	var loc Location
	_ = Walk(content, func(z *html.Tokenizer, tt html.TokenType, offset int) error {
		switch tt {
		case html.StartTagToken:
			name, hasAttr := z.TagName()
			if !loc.Found && string(name) == "script" && hasAttr && scriptType(z) == "importmap" {
				loc = Location{
					Found:        true,
					ContentStart: offset + len(z.Raw()),
					Line:         1 + bytes.Count(content[:offset], []byte("\n")),
				}
			}
		case html.EndTagToken:
			if name, _ := z.TagName(); loc.Found && string(name) == "script" {
				loc.ContentEnd = offset
				return errStop
			}
		}
		return nil
	})
	if loc.Found && loc.ContentEnd == 0 {
		return Location{}
	}
	return loc
}

// FindInsertPoint locates the insertion point after the <head> start tag.
func FindInsertPoint(content []byte) InsertPoint {
	var point InsertPoint
	_ = Walk(content, func(z *html.Tokenizer, tt html.TokenType, offset int) error {
		if tt != html.StartTagToken {
			return nil
		}
		if name, _ := z.TagName(); string(name) == "head" {
			point = insertAfter(content, offset+len(z.Raw()))
			return errStop
		}
		return nil
	})
	return point
}

func insertAfter(content []byte, at int) InsertPoint {
	end := at
	for end < len(content) && strings.ContainsRune(" \t\r\n", rune(content[end])) {
		end++
	}
	ws := string(content[at:end])
	indent := ""
	if i := strings.LastIndex(ws, "\n"); i >= 0 {
		indent = ws[i+1:]
	}
	return InsertPoint{Found: true, Offset: end, Indent: indent}
}

func scriptType(z *html.Tokenizer) string {
	for {
		key, val, more := z.TagAttr()
		if string(key) == "type" {
			return strings.ToLower(strings.TrimSpace(string(val)))
		}
		if !more {
			return ""
		}
	}
}

// ImportMap merges im into the document's import map, creating one when
// none exists. An existing map keeps its entries unless im overrides them.
// The boolean reports whether a new tag was inserted.
func ImportMap(content []byte, im *importmap.ImportMap) ([]byte, bool, error) {
	if im.IsEmpty() {
		return content, false, nil
	}
	loc := FindImportMap(content)
	if loc.Found {
		merged := im
		existing := content[loc.ContentStart:loc.ContentEnd]
		if len(bytes.TrimSpace(existing)) > 0 {
			current, err := importmap.Parse(existing)
			if err != nil {
				return nil, false, fmt.Errorf("failed to parse existing import map at line %d: %w", loc.Line, err)
			}
			merged = current.Merge(im)
		}
		var out bytes.Buffer
		out.Write(content[:loc.ContentStart])
		out.WriteByte('\n')
		out.WriteString(merged.ToJSON())
		out.WriteByte('\n')
		out.Write(content[loc.ContentEnd:])
		return out.Bytes(), false, nil
	}
	out, err := insert(content, `<script type="importmap">`, im.ToJSON())
	return out, err == nil, err
}

// Script inserts a classic inline script at the top of <head>.
func Script(content []byte, js string) ([]byte, error) {
	return insert(content, "<script>", js)
}

func insert(content []byte, open, body string) ([]byte, error) {
	point := FindInsertPoint(content)
	if !point.Found {
		return nil, ErrNoHead
	}
	var tag strings.Builder
	tag.WriteString(open)
	tag.WriteString("\n")
	tag.WriteString(body)
	tag.WriteString("\n")
	tag.WriteString(point.Indent)
	tag.WriteString("</script>\n")
	tag.WriteString(point.Indent)

	var out bytes.Buffer
	out.Write(content[:point.Offset])
	out.WriteString(tag.String())
	out.Write(content[point.Offset:])
	return out.Bytes(), nil
}

// Walk tokenizes content and calls fn with each token and its byte
// offset. It stops at the end of input or when fn returns an error.
func Walk(content []byte, fn func(z *html.Tokenizer, tt html.TokenType, offset int) error) error {
	z := html.NewTokenizer(bytes.NewReader(content))
	offset := 0
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if err := z.Err(); err != nil && err != io.EOF {
				return err
			}
			return nil
		}
		raw := len(z.Raw())
		if err := fn(z, tt, offset); err != nil {
			if err == errStop {
				return nil
			}
			return err
		}
		offset += raw
	}
}
