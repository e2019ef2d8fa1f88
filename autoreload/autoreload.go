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

// Package autoreload decides, for a changed node, whether the browser can
// apply a hot update or has to reload the page.
package autoreload

import (
	"slices"

	"bennypowers.dev/sous/graph"
)

// Reasons a propagation declines.
const (
	ReasonDeclined     = "declined"
	ReasonCycle        = "cycle"
	ReasonNotAccepted  = "not accepted"
	ReasonDereferenced = "dereferenced"
)

// Boundary is where an update stops: URL re-executes and accepts the new
// version of AcceptedBy.
type Boundary struct {
	URL        string `json:"url"`
	AcceptedBy string `json:"acceptedBy"`
}

// Result is the outcome of one propagation.
type Result struct {
	Reload bool   `json:"reload"`
	Reason string `json:"reason,omitempty"`
	// Decliner is the node that forced the reload.
	Decliner   string     `json:"decliner,omitempty"`
	Boundaries []Boundary `json:"boundaries,omitempty"`
}

func decline(reason, decliner string) Result {
	return Result{Reload: true, Reason: reason, Decliner: decliner}
}

// Propagate walks up from changed through the nodes that reference it and
// collects the update boundaries. It declines as soon as one path cannot
// be handled without a full reload.
func Propagate(g *graph.UrlGraph, changed *graph.UrlInfo) Result {
	var boundaries []Boundary
	var visit func(u *graph.UrlInfo, chain []string) *Result
	visit = func(u *graph.UrlInfo, chain []string) *Result {
		hot := u.Hot()
		if hot.AcceptSelf {
			boundaries = append(boundaries, Boundary{URL: u.URL(), AcceptedBy: u.URL()})
			return nil
		}
		if hot.Decline {
			r := decline(ReasonDeclined, u.URL())
			return &r
		}
		referrers := referrersOf(g, u)
		if len(referrers) == 0 {
			r := decline(ReasonNotAccepted, u.URL())
			return &r
		}
		for _, owner := range referrers {
			if owner.Hot().AcceptsDependency(u.URL()) {
				boundaries = append(boundaries, Boundary{URL: owner.URL(), AcceptedBy: u.URL()})
				continue
			}
			if slices.Contains(chain, owner.URL()) {
				r := decline(ReasonCycle, owner.URL())
				return &r
			}
			if r := visit(owner, append(chain, owner.URL())); r != nil {
				return r
			}
		}
		return nil
	}
	if r := visit(changed, []string{changed.URL()}); r != nil {
		return *r
	}
	return Result{Boundaries: dedupe(boundaries)}
}

// Pruned re-runs propagation from the former referrer of a node that lost
// its last strong reference.
func Pruned(g *graph.UrlGraph, last *graph.Reference) Result {
	owner := g.Get(last.OwnerURL)
	if owner == nil || owner == g.Root() {
		return decline(ReasonDereferenced, last.URL())
	}
	return Propagate(g, owner)
}

// referrersOf returns the owners an update travels to. Weak references do
// not carry updates, except the graph's own link from a query variant to
// its base. Client requests are not referrers. Reaching the root through
// any other reference means a document has to reload.
func referrersOf(g *graph.UrlGraph, u *graph.UrlInfo) []*graph.UrlInfo {
	var owners []*graph.UrlInfo
	for _, ref := range g.ReferencesFromOthers(u) {
		if ref.Type == graph.TypeHTTPRequest || (ref.IsWeak && ref.Type != graph.TypeSearchParamsBase) {
			continue
		}
		owner := g.Owner(ref)
		if owner == nil || owner == g.Root() {
			return nil
		}
		if !slices.Contains(owners, owner) {
			owners = append(owners, owner)
		}
	}
	return owners
}

func dedupe(bs []Boundary) []Boundary {
	var out []Boundary
	for _, b := range bs {
		if !slices.Contains(out, b) {
			out = append(out, b)
		}
	}
	return out
}
