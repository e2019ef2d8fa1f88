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
	"errors"
	"fmt"
	"maps"
	"strings"
)

// ReferenceID identifies a Reference inside its UrlGraph. IDs grow
// monotonically and are never reused.
type ReferenceID uint64

// ReferenceType is the syntactic role of a specifier in its owner.
type ReferenceType string

const (
	TypeEntryPoint       ReferenceType = "entry_point"
	TypeHTTPRequest      ReferenceType = "http_request"
	TypeSearchParamsBase ReferenceType = "search_params_base"
	TypeSourcemapComment ReferenceType = "sourcemap_comment"
	TypeLinkHref         ReferenceType = "link_href"
	TypeScript           ReferenceType = "script"
	TypeStyle            ReferenceType = "style"
	TypeImgSrc           ReferenceType = "img_src"
	TypeJSImport         ReferenceType = "js_import"
	TypeJSURL            ReferenceType = "js_url"
	TypeCSSImport        ReferenceType = "css_import"
	TypeCSSURL           ReferenceType = "css_url"
	TypeWebmanifestIcon  ReferenceType = "webmanifest_icon"
)

// IgnoreScheme prefixes URLs that a resolver deliberately leaves alone.
// Such references are never fetched and never enter the graph.
const IgnoreScheme = "ignore:"

// ErrURLAlreadySet is returned when a reference target is set twice.
var ErrURLAlreadySet = errors.New("reference url already set")

// Trace locates the specifier that created a reference.
type Trace struct {
	URL       string
	Line      int
	Column    int
	CodeFrame string
}

func (t Trace) String() string {
	if t.Line == 0 {
		return t.URL
	}
	return fmt.Sprintf("%s:%d:%d", t.URL, t.Line, t.Column)
}

// Reference is one occurrence of a specifier inside an owner. Redirecting
// or inlining a reference never mutates it: a new Reference is chained
// through Prev/Next, and Original always points at the first one.
type Reference struct {
	ID        ReferenceID
	OwnerURL  string
	Specifier string
	Trace     Trace

	Type    ReferenceType
	Subtype string
	// ExpectedType is the content kind the owner expects, such as
	// "js_module" for a <script type="module">.
	ExpectedType    string
	ExpectedSubtype string

	url                string
	GeneratedURL       string
	GeneratedSpecifier string

	// IsWeak references never keep their target alive.
	IsWeak bool
	// IsImplicit references do not appear in the owner content.
	IsImplicit bool
	IsInline   bool
	// Content and ContentType carry the source of an inline reference.
	Content     []byte
	ContentType string

	// Start and End are byte offsets of the specifier in the owner content.
	Start, End int

	Filename string
	Debug    bool

	Original ReferenceID
	Prev     ReferenceID
	Next     ReferenceID
	// Implicits are removed together with this reference.
	Implicits []ReferenceID

	Data map[string]any
}

// URL returns the resolved target URL, or "" before resolution.
func (r *Reference) URL() string {
	return r.url
}

// SetURL sets the resolved target. A target can be set exactly once.
func (r *Reference) SetURL(u string) error {
	if r.url != "" {
		return fmt.Errorf("%w: %s (was %s)", ErrURLAlreadySet, u, r.url)
	}
	r.url = u
	return nil
}

// IsIgnored reports whether the resolved URL uses the ignore pseudo-scheme.
func (r *Reference) IsIgnored() bool {
	return strings.HasPrefix(r.url, IgnoreScheme)
}

// IsResourceHint reports whether the reference only hints at a resource
// (preload, prefetch) instead of loading it.
func (r *Reference) IsResourceHint() bool {
	return r.Type == TypeLinkHref && r.IsWeak
}

// clone copies r for chaining. Identity, chain links and implicits are
// reset by the caller.
func (r *Reference) clone() *Reference {
	next := *r
	next.Implicits = nil
	next.Data = maps.Clone(r.Data)
	return &next
}

// InlineInput describes content embedded in an owner document.
type InlineInput struct {
	// OwnerURL is the embedding document. Defaults to the owner of the
	// reference being inlined.
	OwnerURL    string
	Specifier   string
	Line        int
	Column      int
	Content     []byte
	ContentType string
}

// InlineSite records where inline content sits in its embedding document.
type InlineSite struct {
	OwnerURL string
	Line     int
	Column   int
	// ExpectedType is the kind the embedding element declares.
	ExpectedType string
}
