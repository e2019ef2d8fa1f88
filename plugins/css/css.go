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

// Package css discovers @import rules and url() references in
// stylesheets. In dev, stylesheets accept their own updates.
package css

import (
	"bytes"
	"context"

	"bennypowers.dev/sous/config"
	"bennypowers.dev/sous/graph"
	"bennypowers.dev/sous/plugin"
	"github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/css"
)

// New returns the css plugin.
func New() *plugin.Plugin {
	return &plugin.Plugin{
		Name: "css",
		TransformUrlContent: plugin.ByKind(map[string]plugin.ContentFunc{
			graph.KindCSS: transform,
		}),
	}
}

// Specifier is a reference found in a stylesheet.
type Specifier struct {
	Value      string
	Type       graph.ReferenceType
	Start, End int
}

type token struct {
	tt    css.TokenType
	data  []byte
	start int
}

// tokenize splits content into css tokens with their byte offsets. The
// lexer keeps every byte, so offsets are running sums.
func tokenize(content []byte) []token {
	in := parse.NewInputBytes(content)
	defer in.Restore()
	l := css.NewLexer(in)
	var toks []token
	offset := 0
	for {
		tt, data := l.Next()
		if tt == css.ErrorToken {
			return toks
		}
		toks = append(toks, token{tt: tt, data: data, start: offset})
		offset += len(data)
	}
}

// Scan returns the @import and url() specifiers of content in source
// order. Comments and string literals are opaque. A url() inside an
// @import is reported once, as the import.
func Scan(content []byte) []Specifier {
	toks := tokenize(content)
	var specs []Specifier
	for i := 0; i < len(toks); i++ {
		tok := toks[i]
		switch {
		case tok.tt == css.URLToken:
			if s, ok := urlSpecifier(tok, graph.TypeCSSURL); ok {
				specs = append(specs, s)
			}
		case tok.tt == css.AtKeywordToken && bytes.EqualFold(tok.data, []byte("@import")):
			j := i + 1
			for j < len(toks) && (toks[j].tt == css.WhitespaceToken || toks[j].tt == css.CommentToken) {
				j++
			}
			if j == len(toks) {
				break
			}
			var s Specifier
			ok := false
			switch toks[j].tt {
			case css.StringToken:
				s, ok = stringSpecifier(toks[j], graph.TypeCSSImport)
			case css.URLToken:
				s, ok = urlSpecifier(toks[j], graph.TypeCSSImport)
			}
			if ok {
				specs = append(specs, s)
				i = j
			}
		}
	}
	return specs
}

// stringSpecifier unquotes a string token.
func stringSpecifier(tok token, typ graph.ReferenceType) (Specifier, bool) {
	start, end := 1, len(tok.data)
	if end > 1 && tok.data[end-1] == tok.data[0] {
		end--
	}
	if start >= end {
		return Specifier{}, false
	}
	return Specifier{
		Value: string(tok.data[start:end]),
		Type:  typ,
		Start: tok.start + start,
		End:   tok.start + end,
	}, true
}

// urlSpecifier takes the value out of a url(...) token, quoted or not.
func urlSpecifier(tok token, typ graph.ReferenceType) (Specifier, bool) {
	d := tok.data
	start := bytes.IndexByte(d, '(') + 1
	end := len(d)
	if end > start && d[end-1] == ')' {
		end--
	}
	for start < end && isSpace(d[start]) {
		start++
	}
	for end > start && isSpace(d[end-1]) {
		end--
	}
	if end-start >= 2 && (d[start] == '"' || d[start] == '\'') && d[end-1] == d[start] {
		start++
		end--
	}
	if start >= end {
		return Specifier{}, false
	}
	return Specifier{
		Value: string(d[start:end]),
		Type:  typ,
		Start: tok.start + start,
		End:   tok.start + end,
	}, true
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f'
}

func transform(ctx context.Context, hc *plugin.HookContext, u *graph.UrlInfo) (*plugin.Result, error) {
	content := u.Content()
	var edits []plugin.Edit
	for _, spec := range Scan(content) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ref := &graph.Reference{
			Specifier: spec.Value,
			Type:      spec.Type,
			Start:     spec.Start,
			End:       spec.End,
			Trace:     graph.TraceAt(u.URL(), content, spec.Start),
		}
		if spec.Type == graph.TypeCSSImport {
			ref.ExpectedType = graph.KindCSS
		}
		found, err := hc.References.Found(ref)
		if err != nil {
			return nil, err
		}
		if e, ok := plugin.SpecifierEdit(content, found); ok {
			edits = append(edits, e)
		}
	}
	if hc.Mode == config.ModeDev {
		u.SetHot(graph.HotState{AcceptSelf: true})
	}
	if len(edits) == 0 {
		return nil, nil
	}
	return &plugin.Result{Content: plugin.ApplyEdits(content, edits)}, nil
}
