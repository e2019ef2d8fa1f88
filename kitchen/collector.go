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

package kitchen

import (
	"context"
	"sync"

	"bennypowers.dev/sous/config"
	"bennypowers.dev/sous/graph"
	"bennypowers.dev/sous/plugin"
)

// collector gathers the references discovered while cooking one node.
// They are committed together once the cook succeeds, or discarded.
type collector struct {
	k     *Kitchen
	owner *graph.UrlInfo
	hc    *plugin.HookContext

	mu      sync.Mutex
	found   []*graph.Reference
	created []*graph.Reference
}

func (k *Kitchen) newCollector(owner *graph.UrlInfo) *collector {
	c := &collector{k: k, owner: owner}
	c.hc = &plugin.HookContext{
		Mode:       k.mode,
		Config:     k.cfg,
		Graph:      k.graph,
		Logger:     k.logger,
		References: c,
	}
	return c
}

func (c *collector) track(ref *graph.Reference) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.created = append(c.created, ref)
}

func (c *collector) add(ref *graph.Reference) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.found = append(c.found, ref)
}

func (c *collector) committed() []*graph.Reference {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*graph.Reference(nil), c.found...)
}

func (c *collector) discard() {
	c.mu.Lock()
	refs := append(c.created, c.found...)
	c.created, c.found = nil, nil
	c.mu.Unlock()
	c.k.graph.Discard(refs)
}

// Found registers a reference discovered in the owner and resolves it.
// Ignored references are returned resolved but are not committed.
func (c *collector) Found(ref *graph.Reference) (*graph.Reference, error) {
	ref = c.k.graph.CreateReference(c.owner, ref)
	c.track(ref)
	resolved, err := c.k.resolve(c.hc, ref, c.track)
	if err != nil {
		return nil, err
	}
	if !resolved.IsIgnored() {
		c.add(resolved)
	}
	return resolved, nil
}

// FoundInline registers content embedded in the owner. The returned
// reference points at a node named after the embedding position.
func (c *collector) FoundInline(ref *graph.Reference, in graph.InlineInput) (*graph.Reference, error) {
	if in.Specifier == "" {
		in.Specifier = InlineURL(c.owner.URL(), in.Line, in.Column, in.ContentType)
	}
	ref.Specifier = in.Specifier
	site := c.k.graph.CreateReference(c.owner, ref)
	c.track(site)
	inlined := c.k.graph.Inline(site, in)
	c.track(inlined)
	inlined.GeneratedURL = inlined.URL()
	inlined.GeneratedSpecifier = inlined.Specifier
	c.add(inlined)
	return inlined, nil
}

// CookInline cooks the target of an inline reference right away. In dev
// mode a failure is logged and the inline content is kept as is, so the
// embedding document can still be served.
func (c *collector) CookInline(ctx context.Context, ref *graph.Reference) (*graph.UrlInfo, error) {
	u, err := c.k.graph.ReuseOrCreateUrlInfo(ref)
	if err != nil {
		return nil, err
	}
	if err := c.k.Cook(ctx, u); err != nil {
		if c.k.mode != config.ModeDev || isCancellation(err) {
			return nil, err
		}
		c.k.logger.Warn("error in inline content", "url", u.URL(), "error", err)
		content, contentType := u.InlineContent()
		if u.Locked() {
			return u, nil
		}
		if err := u.SetOriginalContent(content); err != nil {
			return nil, err
		}
		u.ContentType = contentType
	}
	return u, nil
}
