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

package versioning

import (
	"fmt"
	"regexp"
	"sync"

	"bennypowers.dev/sous/graph"
)

// Pattern matches one placeholder.
var Pattern = regexp.MustCompile(`!~\{\d{4,}\}~`)

// normalized replaces every placeholder before hashing so that token
// numbering, which depends on discovery order, never affects a version.
const normalized = "!~{0000}~"

type placeholderKey struct {
	url string
	typ graph.ReferenceType
}

// Placeholders hands out one fixed-width token per target URL and
// reference type. References of different types to one URL may be
// versioned differently, so they never share a token.
type Placeholders struct {
	mu      sync.Mutex
	byKey   map[placeholderKey]string
	byToken map[string]string
}

// NewPlaceholders returns an empty registry.
func NewPlaceholders() *Placeholders {
	return &Placeholders{
		byKey:   make(map[placeholderKey]string),
		byToken: make(map[string]string),
	}
}

// For returns the token standing for url in references of type typ,
// allocating one on first use.
func (p *Placeholders) For(url string, typ graph.ReferenceType) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	key := placeholderKey{url: url, typ: typ}
	if token, ok := p.byKey[key]; ok {
		return token
	}
	token := fmt.Sprintf("!~{%04d}~", len(p.byKey)+1)
	p.byKey[key] = token
	p.byToken[token] = url
	return token
}

// URL returns the target of token.
func (p *Placeholders) URL(token string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	url, ok := p.byToken[token]
	return url, ok
}

// Normalize replaces every placeholder in content with the same token.
func Normalize(content []byte) []byte {
	return Pattern.ReplaceAll(content, []byte(normalized))
}
