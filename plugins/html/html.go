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

// Package html discovers the references of html documents: scripts,
// stylesheets, icons, manifests and images, plus inline scripts and
// styles, which are cooked in place.
package html

import (
	"context"
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"bennypowers.dev/sous/graph"
	"bennypowers.dev/sous/inject"
	"bennypowers.dev/sous/plugin"
)

// New returns the html plugin.
func New() *plugin.Plugin {
	return &plugin.Plugin{
		Name: "html",
		TransformUrlContent: plugin.ByKind(map[string]plugin.ContentFunc{
			graph.KindHTML: transform,
		}),
	}
}

// tag is a start tag with its raw bytes and decoded attributes.
type tag struct {
	name   string
	raw    []byte
	offset int
	attrs  map[string]string
}

func readTag(z *html.Tokenizer, offset int) tag {
	name, hasAttr := z.TagName()
	t := tag{name: string(name), raw: z.Raw(), offset: offset, attrs: map[string]string{}}
	for hasAttr {
		var key, val []byte
		key, val, hasAttr = z.TagAttr()
		if _, seen := t.attrs[string(key)]; !seen {
			t.attrs[string(key)] = string(val)
		}
	}
	return t
}

var attrPatterns = map[string]*regexp.Regexp{
	"src":  attrPattern("src"),
	"href": attrPattern("href"),
}

func attrPattern(name string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)\s` + name + `\s*=\s*(?:"([^"]*)"|'([^']*)'|([^\s"'>]+))`)
}

// span returns the document offsets of the raw value of attribute name.
func (t tag) span(name string) (start, end int, ok bool) {
	m := attrPatterns[name].FindSubmatchIndex(t.raw)
	if m == nil {
		return 0, 0, false
	}
	for g := 1; g <= 3; g++ {
		if m[2*g] >= 0 {
			return t.offset + m[2*g], t.offset + m[2*g+1], true
		}
	}
	return 0, 0, false
}

// pending is an inline script or style waiting for its text token.
type pending struct {
	ref         graph.Reference
	contentType string
}

type walker struct {
	ctx     context.Context
	hc      *plugin.HookContext
	u       *graph.UrlInfo
	content []byte
	edits   []plugin.Edit
	inline  *pending
}

func transform(ctx context.Context, hc *plugin.HookContext, u *graph.UrlInfo) (*plugin.Result, error) {
	w := &walker{ctx: ctx, hc: hc, u: u, content: u.Content()}
	if err := inject.Walk(w.content, w.token); err != nil {
		return nil, err
	}
	if len(w.edits) == 0 {
		return nil, nil
	}
	return &plugin.Result{Content: plugin.ApplyEdits(w.content, w.edits)}, nil
}

func (w *walker) token(z *html.Tokenizer, tt html.TokenType, offset int) error {
	if err := w.ctx.Err(); err != nil {
		return err
	}
	switch tt {
	case html.StartTagToken, html.SelfClosingTagToken:
		w.inline = nil
		return w.startTag(readTag(z, offset))
	case html.TextToken:
		if w.inline == nil {
			return nil
		}
		p := w.inline
		w.inline = nil
		return w.inlineContent(p, offset, len(z.Raw()))
	case html.EndTagToken:
		w.inline = nil
	}
	return nil
}

func (w *walker) startTag(t tag) error {
	switch t.name {
	case "script":
		expected, ok := scriptKind(t.attrs["type"])
		if !ok {
			return nil
		}
		ref := graph.Reference{Type: graph.TypeScript, ExpectedType: expected}
		if _, hasSrc := t.attrs["src"]; hasSrc {
			return w.attribute(t, "src", ref)
		}
		w.inline = &pending{ref: ref, contentType: "text/javascript"}
	case "style":
		w.inline = &pending{ref: graph.Reference{Type: graph.TypeStyle, ExpectedType: graph.KindCSS}, contentType: "text/css"}
	case "link":
		ref, ok := linkReference(t.attrs)
		if !ok {
			return nil
		}
		return w.attribute(t, "href", ref)
	case "img":
		return w.attribute(t, "src", graph.Reference{Type: graph.TypeImgSrc})
	}
	return nil
}

// scriptKind maps the type attribute of a script to the expected kind.
// Data blocks such as import maps are not references.
func scriptKind(typ string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(typ)) {
	case "", "text/javascript", "application/javascript":
		return graph.KindJSClassic, true
	case "module":
		return graph.KindJSModule, true
	}
	return "", false
}

func linkReference(attrs map[string]string) (graph.Reference, bool) {
	ref := graph.Reference{Type: graph.TypeLinkHref}
	for _, rel := range strings.Fields(strings.ToLower(attrs["rel"])) {
		switch rel {
		case "stylesheet":
			ref.ExpectedType = graph.KindCSS
			return ref, true
		case "modulepreload":
			ref.ExpectedType = graph.KindJSModule
			ref.IsWeak = true
			return ref, true
		case "preload", "prefetch":
			ref.IsWeak = true
			switch attrs["as"] {
			case "style":
				ref.ExpectedType = graph.KindCSS
			case "script":
				ref.ExpectedType = graph.KindJSClassic
			}
			return ref, true
		case "manifest":
			ref.ExpectedType = graph.KindWebmanifest
			return ref, true
		case "icon", "apple-touch-icon", "mask-icon":
			return ref, true
		}
	}
	return ref, false
}

func (w *walker) attribute(t tag, name string, ref graph.Reference) error {
	value := strings.TrimSpace(t.attrs[name])
	if value == "" {
		return nil
	}
	start, end, ok := t.span(name)
	if !ok {
		return nil
	}
	ref.Specifier = value
	ref.Start, ref.End = start, end
	ref.Trace = graph.TraceAt(w.u.URL(), w.content, start)
	found, err := w.hc.References.Found(&ref)
	if err != nil {
		return err
	}
	if found.IsIgnored() {
		return nil
	}
	text := html.EscapeString(found.GeneratedSpecifier)
	if string(w.content[start:end]) != text {
		w.edits = append(w.edits, plugin.Edit{Start: start, End: end, Text: text})
	}
	return nil
}

// inlineContent registers the body of a script or style element, cooks it
// and writes the cooked content back in place.
func (w *walker) inlineContent(p *pending, start, length int) error {
	body := w.content[start : start+length]
	if strings.TrimSpace(string(body)) == "" {
		return nil
	}
	line, column := graph.PositionOf(w.content, start)
	ref := p.ref
	ref.IsInline = true
	ref.Start, ref.End = start, start+length
	ref.Trace = graph.TraceAt(w.u.URL(), w.content, start)
	found, err := w.hc.References.FoundInline(&ref, graph.InlineInput{
		Line:        line,
		Column:      column,
		Content:     body,
		ContentType: p.contentType,
	})
	if err != nil {
		return err
	}
	cooked, err := w.hc.References.CookInline(w.ctx, found)
	if err != nil {
		return err
	}
	if out := cooked.Content(); string(out) != string(body) {
		w.edits = append(w.edits, plugin.Edit{Start: start, End: start + length, Text: string(out)})
	}
	return nil
}
