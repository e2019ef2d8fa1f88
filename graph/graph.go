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

// Package graph models web assets as UrlInfo nodes connected by Reference
// edges. The UrlGraph owns every node and edge; edges refer to nodes by URL
// and to each other by ReferenceID, so dropping a node is a map deletion.
package graph

import (
	"fmt"
	"net/url"
	"slices"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"bennypowers.dev/sous/config"
)

// DereferenceFunc is called once when a node loses its last strong inbound
// reference. last is the reference whose removal caused it.
type DereferenceFunc func(u *UrlInfo, last *Reference)

// UrlGraph is the arena holding every UrlInfo and Reference.
type UrlGraph struct {
	mu       sync.RWMutex
	root     *UrlInfo
	urlInfos map[string]*UrlInfo
	refs     map[ReferenceID]*Reference
	nextID   atomic.Uint64

	listenersMu    sync.Mutex
	onDereferenced map[int]DereferenceFunc
	nextListener   int
}

// New creates a graph whose root node has rootURL, usually the file URL of
// the project directory.
func New(rootURL string, ctx *config.Context) *UrlGraph {
	g := &UrlGraph{
		urlInfos:       make(map[string]*UrlInfo),
		refs:           make(map[ReferenceID]*Reference),
		onDereferenced: make(map[int]DereferenceFunc),
	}
	g.root = newUrlInfo(rootURL, ctx)
	g.root.Type = KindDirectory
	g.urlInfos[rootURL] = g.root
	return g
}

// Root returns the root node. Entry points and requests hang off it.
func (g *UrlGraph) Root() *UrlInfo {
	return g.root
}

// Get returns the node for u, or nil.
func (g *UrlGraph) Get(u string) *UrlInfo {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.urlInfos[u]
}

// All returns every node sorted by URL.
func (g *UrlGraph) All() []*UrlInfo {
	g.mu.RLock()
	defer g.mu.RUnlock()
	infos := make([]*UrlInfo, 0, len(g.urlInfos))
	for _, u := range g.urlInfos {
		infos = append(infos, u)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].url < infos[j].url })
	return infos
}

// Reference returns the reference with the given id, or nil.
func (g *UrlGraph) Reference(id ReferenceID) *Reference {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.refs[id]
}

// CreateReference registers ref as discovered in owner. The reference gets
// a fresh id and stays detached until AddDependency or ReplaceReferences.
func (g *UrlGraph) CreateReference(owner *UrlInfo, ref *Reference) *Reference {
	ref.ID = ReferenceID(g.nextID.Add(1))
	ref.OwnerURL = owner.url
	ref.Original = ref.ID
	ref.Prev, ref.Next = 0, 0
	if ref.Trace.URL == "" {
		ref.Trace.URL = owner.url
	}
	g.mu.Lock()
	g.refs[ref.ID] = ref
	g.mu.Unlock()
	return ref
}

func (g *UrlGraph) chainLocked(prev *Reference) *Reference {
	next := prev.clone()
	next.ID = ReferenceID(g.nextID.Add(1))
	next.Original = prev.Original
	next.Prev = prev.ID
	next.Next = 0
	prev.Next = next.ID
	g.refs[next.ID] = next
	return next
}

// Redirect returns a new reference chained after ref and pointing to u.
// The redirected reference is left untouched apart from its Next link.
func (g *UrlGraph) Redirect(ref *Reference, u string) *Reference {
	g.mu.Lock()
	defer g.mu.Unlock()
	next := g.chainLocked(ref)
	next.url = u
	next.GeneratedURL = ""
	next.GeneratedSpecifier = ""
	return next
}

// Inline returns a new reference chained after ref that carries the
// content in, owned by the embedding document.
func (g *UrlGraph) Inline(ref *Reference, in InlineInput) *Reference {
	g.mu.Lock()
	defer g.mu.Unlock()
	next := g.chainLocked(ref)
	if in.OwnerURL != "" {
		next.OwnerURL = in.OwnerURL
	}
	if in.Specifier != "" {
		next.Specifier = in.Specifier
	}
	next.url = next.Specifier
	next.IsInline = true
	next.Content = in.Content
	next.ContentType = in.ContentType
	next.Trace = Trace{URL: next.OwnerURL, Line: in.Line, Column: in.Column, CodeFrame: ref.Trace.CodeFrame}
	return next
}

// Owner returns the node containing ref.
func (g *UrlGraph) Owner(ref *Reference) *UrlInfo {
	return g.Get(ref.OwnerURL)
}

// Target returns the node ref points to, or nil when not materialized.
func (g *UrlGraph) Target(ref *Reference) *UrlInfo {
	if ref.url == "" {
		return nil
	}
	return g.Get(ref.url)
}

// ReuseOrCreateUrlInfo returns the target node of ref, creating it with a
// context inherited from the owner. References to workers create isolated
// contexts.
func (g *UrlGraph) ReuseOrCreateUrlInfo(ref *Reference) (*UrlInfo, error) {
	if ref.url == "" {
		return nil, fmt.Errorf("reference %d (%s) is not resolved", ref.ID, ref.Specifier)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	target, _ := g.reuseOrCreateLocked(ref)
	return target, nil
}

func (g *UrlGraph) reuseOrCreateLocked(ref *Reference) (*UrlInfo, bool) {
	if existing, ok := g.urlInfos[ref.url]; ok {
		g.applyInlineLocked(existing, ref)
		return existing, false
	}
	ctx := g.root.ctx
	if owner, ok := g.urlInfos[ref.OwnerURL]; ok && owner.ctx != nil {
		ctx = owner.ctx
	}
	if ctx != nil && (ref.Subtype == "worker" || ref.ExpectedSubtype == "worker") {
		ctx = ctx.WithIsolated(true)
	}
	u := newUrlInfo(ref.url, ctx)
	g.urlInfos[ref.url] = u
	g.applyInlineLocked(u, ref)
	g.linkSearchParamsBaseLocked(u)
	return u, true
}

func (g *UrlGraph) applyInlineLocked(u *UrlInfo, ref *Reference) {
	if !ref.IsInline {
		return
	}
	u.IsInline = true
	u.InlineSite = &InlineSite{
		OwnerURL:     ref.OwnerURL,
		Line:         ref.Trace.Line,
		Column:       ref.Trace.Column,
		ExpectedType: ref.ExpectedType,
	}
	if u.setInlineContent(ref.Content, ref.ContentType) {
		g.markModifiedLocked(u, time.Now(), map[string]bool{})
	}
}

// linkSearchParamsBaseLocked adds a weak implicit edge from a query-bearing
// node to its query-less base, so changes to the base reach every variant.
func (g *UrlGraph) linkSearchParamsBaseLocked(u *UrlInfo) {
	parsed, err := url.Parse(u.url)
	if err != nil || parsed.RawQuery == "" {
		return
	}
	parsed.RawQuery = ""
	parsed.ForceQuery = false
	ref := &Reference{
		ID:         ReferenceID(g.nextID.Add(1)),
		OwnerURL:   u.url,
		Specifier:  parsed.String(),
		Trace:      Trace{URL: u.url},
		Type:       TypeSearchParamsBase,
		IsWeak:     true,
		IsImplicit: true,
		url:        parsed.String(),
	}
	ref.Original = ref.ID
	g.refs[ref.ID] = ref
	base, _ := g.reuseOrCreateLocked(ref)
	g.addLocked(u, base, ref)
}

// Finalize materializes the target of ref and wires it into both edge sets.
func (g *UrlGraph) Finalize(ref *Reference) (*UrlInfo, error) {
	if ref.url == "" {
		return nil, fmt.Errorf("reference %d (%s) is not resolved", ref.ID, ref.Specifier)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	owner, ok := g.urlInfos[ref.OwnerURL]
	if !ok {
		return nil, fmt.Errorf("owner %s of reference %d is not in the graph", ref.OwnerURL, ref.ID)
	}
	target, _ := g.reuseOrCreateLocked(ref)
	g.addLocked(owner, target, ref)
	return target, nil
}

// AddDependency wires an already materialized reference into both edge sets.
func (g *UrlGraph) AddDependency(ref *Reference) error {
	_, err := g.Finalize(ref)
	return err
}

func (g *UrlGraph) addLocked(owner, target *UrlInfo, ref *Reference) {
	g.refs[ref.ID] = ref
	if !slices.Contains(owner.refsToOthers, ref.ID) {
		owner.refsToOthers = append(owner.refsToOthers, ref.ID)
	}
	target.refsFromOthers[ref.ID] = struct{}{}
	if ref.IsWeak {
		return
	}
	target.dereferenced = false
	first := g.refs[target.firstReference]
	if first == nil || first.IsWeak {
		g.applyFirstReferenceLocked(target, ref)
	}
}

func (g *UrlGraph) applyFirstReferenceLocked(target *UrlInfo, ref *Reference) {
	target.firstReference = ref.ID
	if ref.Type == TypeEntryPoint {
		target.IsEntryPoint = true
	}
	if ref.Filename != "" {
		target.FilenameHint = ref.Filename
	}
	if ref.Debug {
		target.Debug = true
	}
}

type dereference struct {
	target *UrlInfo
	last   *Reference
}

// RemoveDependency detaches ref from both edge sets. It reports false when
// ref was not attached, which makes repeated removal a no-op.
func (g *UrlGraph) RemoveDependency(ref *Reference) bool {
	g.mu.Lock()
	var events []dereference
	removed := g.removeLocked(ref, &events)
	g.mu.Unlock()
	g.notify(events)
	return removed
}

func (g *UrlGraph) removeLocked(ref *Reference, events *[]dereference) bool {
	owner := g.urlInfos[ref.OwnerURL]
	if owner == nil {
		return false
	}
	idx := slices.Index(owner.refsToOthers, ref.ID)
	if idx < 0 {
		return false
	}
	owner.refsToOthers = slices.Delete(owner.refsToOthers, idx, idx+1)
	for _, id := range ref.Implicits {
		if implicit := g.refs[id]; implicit != nil {
			g.removeLocked(implicit, events)
		}
	}
	target := g.urlInfos[ref.url]
	if target == nil {
		return true
	}
	delete(target.refsFromOthers, ref.ID)
	if target.firstReference == ref.ID {
		target.firstReference = 0
		if next := g.firstStrongInboundLocked(target); next != nil {
			target.firstReference = next.ID
		}
	}
	if !ref.IsWeak && !target.dereferenced && target != g.root && !g.hasStrongInboundLocked(target) {
		target.dereferenced = true
		*events = append(*events, dereference{target: target, last: ref})
	}
	if len(target.refsFromOthers) == 0 && target != g.root {
		delete(g.urlInfos, target.url)
		for _, id := range slices.Clone(target.refsToOthers) {
			if out := g.refs[id]; out != nil {
				g.removeLocked(out, events)
			}
		}
	}
	return true
}

func (g *UrlGraph) firstStrongInboundLocked(u *UrlInfo) *Reference {
	var first *Reference
	for id := range u.refsFromOthers {
		ref := g.refs[id]
		if ref == nil || ref.IsWeak {
			continue
		}
		if first == nil || ref.ID < first.ID {
			first = ref
		}
	}
	return first
}

// hasStrongInboundLocked ignores request pseudo-references: a node that is
// only being served is still dereferenced from the document graph.
func (g *UrlGraph) hasStrongInboundLocked(u *UrlInfo) bool {
	for id := range u.refsFromOthers {
		ref := g.refs[id]
		if ref != nil && !ref.IsWeak && ref.Type != TypeHTTPRequest {
			return true
		}
	}
	return false
}

// ReplaceReferences swaps the outgoing references of owner for refs.
// New edges are added before old ones are removed, so a target kept by the
// new set is never dereferenced in between. Graph-managed search params
// edges survive the swap.
func (g *UrlGraph) ReplaceReferences(owner *UrlInfo, refs []*Reference) error {
	g.mu.Lock()
	var events []dereference
	incoming := make(map[ReferenceID]bool, len(refs))
	for _, ref := range refs {
		if ref.url == "" {
			g.mu.Unlock()
			return fmt.Errorf("reference %d (%s) is not resolved", ref.ID, ref.Specifier)
		}
		incoming[ref.ID] = true
	}
	var previous []*Reference
	for _, id := range owner.refsToOthers {
		ref := g.refs[id]
		if ref == nil || incoming[id] || ref.Type == TypeSearchParamsBase {
			continue
		}
		previous = append(previous, ref)
	}
	for _, ref := range refs {
		target, _ := g.reuseOrCreateLocked(ref)
		g.addLocked(owner, target, ref)
	}
	for _, ref := range previous {
		g.removeLocked(ref, &events)
		g.forgetChainLocked(ref)
	}
	g.mu.Unlock()
	g.notify(events)
	return nil
}

// Discard forgets references that were created but never attached.
func (g *UrlGraph) Discard(refs []*Reference) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, ref := range refs {
		owner := g.urlInfos[ref.OwnerURL]
		if owner != nil && slices.Contains(owner.refsToOthers, ref.ID) {
			continue
		}
		delete(g.refs, ref.ID)
	}
}

func (g *UrlGraph) forgetChainLocked(ref *Reference) {
	for ref != nil {
		delete(g.refs, ref.ID)
		for _, id := range ref.Implicits {
			delete(g.refs, id)
		}
		ref = g.refs[ref.Prev]
	}
}

// ReferencesToOthers returns the outgoing references of u in discovery order.
func (g *UrlGraph) ReferencesToOthers(u *UrlInfo) []*Reference {
	g.mu.RLock()
	defer g.mu.RUnlock()
	refs := make([]*Reference, 0, len(u.refsToOthers))
	for _, id := range u.refsToOthers {
		if ref := g.refs[id]; ref != nil {
			refs = append(refs, ref)
		}
	}
	return refs
}

// ReferencesFromOthers returns the incoming references of u ordered by id.
func (g *UrlGraph) ReferencesFromOthers(u *UrlInfo) []*Reference {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.inboundLocked(u)
}

func (g *UrlGraph) inboundLocked(u *UrlInfo) []*Reference {
	refs := make([]*Reference, 0, len(u.refsFromOthers))
	for id := range u.refsFromOthers {
		if ref := g.refs[id]; ref != nil {
			refs = append(refs, ref)
		}
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].ID < refs[j].ID })
	return refs
}

// FirstReference returns the reference that seeded the node metadata.
func (g *UrlGraph) FirstReference(u *UrlInfo) *Reference {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.refs[u.firstReference]
}

// IsDereferenced reports whether u lost its last strong inbound reference.
func (g *UrlGraph) IsDereferenced(u *UrlInfo) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return u.dereferenced
}

// IsUsed reports whether u is reachable from the root through a chain of
// strong references.
func (g *UrlGraph) IsUsed(u *UrlInfo) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.isUsedLocked(u, make(map[string]bool))
}

func (g *UrlGraph) isUsedLocked(u *UrlInfo, seen map[string]bool) bool {
	if u == g.root {
		return true
	}
	if seen[u.url] {
		return false
	}
	seen[u.url] = true
	for id := range u.refsFromOthers {
		ref := g.refs[id]
		if ref == nil || g.weakAfterRedirectsLocked(ref) {
			continue
		}
		owner := g.urlInfos[ref.OwnerURL]
		if owner != nil && g.isUsedLocked(owner, seen) {
			return true
		}
	}
	return false
}

// weakAfterRedirectsLocked reports whether ref is weak once its redirect chain
// is followed to the end. A weak reference redirected to a strong one
// keeps its target in use.
func (g *UrlGraph) weakAfterRedirectsLocked(ref *Reference) bool {
	for ref.Next != 0 {
		next := g.refs[ref.Next]
		if next == nil {
			break
		}
		ref = next
	}
	return ref.IsWeak
}

// VisitStronglyReachable walks the graph breadth-first from the root along
// strong, explicit references. Returning false from fn stops the walk.
func (g *UrlGraph) VisitStronglyReachable(fn func(u *UrlInfo) bool) {
	g.mu.RLock()
	order := g.stronglyReachableLocked()
	g.mu.RUnlock()
	for _, u := range order {
		if !fn(u) {
			return
		}
	}
}

// StronglyReachable returns every node reachable from the root, excluding
// the root itself, in breadth-first discovery order.
func (g *UrlGraph) StronglyReachable() []*UrlInfo {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.stronglyReachableLocked()
}

func (g *UrlGraph) stronglyReachableLocked() []*UrlInfo {
	seen := map[string]bool{g.root.url: true}
	queue := []*UrlInfo{g.root}
	var order []*UrlInfo
	for len(queue) > 0 {
		u := queue[0]
		queue = queue[1:]
		for _, id := range u.refsToOthers {
			ref := g.refs[id]
			if ref == nil || ref.IsWeak || ref.IsImplicit {
				continue
			}
			target := g.urlInfos[ref.url]
			if target == nil || seen[target.url] {
				continue
			}
			seen[target.url] = true
			order = append(order, target)
			queue = append(queue, target)
		}
	}
	return order
}

// FindDependent walks inbound references upward from u and returns the
// first node matching pred.
func (g *UrlGraph) FindDependent(u *UrlInfo, pred func(*UrlInfo) bool) *UrlInfo {
	g.mu.RLock()
	defer g.mu.RUnlock()
	seen := map[string]bool{u.url: true}
	queue := []*UrlInfo{u}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, ref := range g.inboundLocked(current) {
			owner := g.urlInfos[ref.OwnerURL]
			if owner == nil || seen[owner.url] {
				continue
			}
			seen[owner.url] = true
			if pred(owner) {
				return owner
			}
			queue = append(queue, owner)
		}
	}
	return nil
}

// FindDependency walks outgoing references downward from u and returns the
// first node matching pred.
func (g *UrlGraph) FindDependency(u *UrlInfo, pred func(*UrlInfo) bool) *UrlInfo {
	g.mu.RLock()
	defer g.mu.RUnlock()
	seen := map[string]bool{u.url: true}
	queue := []*UrlInfo{u}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, id := range current.refsToOthers {
			ref := g.refs[id]
			if ref == nil {
				continue
			}
			target := g.urlInfos[ref.url]
			if target == nil || seen[target.url] {
				continue
			}
			seen[target.url] = true
			if pred(target) {
				return target
			}
			queue = append(queue, target)
		}
	}
	return nil
}

// MarkModified records a change to u at the given time. The change is
// propagated to every node holding an implicit reference to u, such as the
// search params variants of a file.
func (g *UrlGraph) MarkModified(u *UrlInfo, at time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.markModifiedLocked(u, at, make(map[string]bool))
}

func (g *UrlGraph) markModifiedLocked(u *UrlInfo, at time.Time, seen map[string]bool) {
	if seen[u.url] {
		return
	}
	seen[u.url] = true
	u.mu.Lock()
	u.modifiedAt = at
	u.mu.Unlock()
	for id := range u.refsFromOthers {
		ref := g.refs[id]
		if ref == nil || !ref.IsImplicit {
			continue
		}
		if owner := g.urlInfos[ref.OwnerURL]; owner != nil {
			g.markModifiedLocked(owner, at, seen)
		}
	}
}

// OnDereferenced registers fn and returns a function that unregisters it.
func (g *UrlGraph) OnDereferenced(fn DereferenceFunc) func() {
	g.listenersMu.Lock()
	defer g.listenersMu.Unlock()
	id := g.nextListener
	g.nextListener++
	g.onDereferenced[id] = fn
	return func() {
		g.listenersMu.Lock()
		defer g.listenersMu.Unlock()
		delete(g.onDereferenced, id)
	}
}

func (g *UrlGraph) notify(events []dereference) {
	if len(events) == 0 {
		return
	}
	g.listenersMu.Lock()
	ids := make([]int, 0, len(g.onDereferenced))
	for id := range g.onDereferenced {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	listeners := make([]DereferenceFunc, 0, len(ids))
	for _, id := range ids {
		listeners = append(listeners, g.onDereferenced[id])
	}
	g.listenersMu.Unlock()
	for _, e := range events {
		for _, fn := range listeners {
			fn(e.target, e.last)
		}
	}
}
