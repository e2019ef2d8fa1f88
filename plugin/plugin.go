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

// Package plugin defines the hook protocol through which the kitchen
// resolves, fetches and transforms every node of the graph.
package plugin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"bennypowers.dev/sous/config"
	"bennypowers.dev/sous/graph"
)

// ErrSkip returned from Init deactivates the plugin without failing.
var ErrSkip = errors.New("plugin skipped")

// Result is what a content hook hands back. A nil *Result means the hook
// did not handle the node. A nil Content keeps the current content.
type Result struct {
	Content      []byte
	ContentType  string
	Type         string
	Subtype      string
	Sourcemap    []byte
	Parsed       any
	Data         map[string]any
	Status       int
	Headers      map[string]string
	IsEntryPoint bool
}

// BundleResult is one output of a bundler.
type BundleResult struct {
	Content   []byte
	Sourcemap []byte
	Data      map[string]any
	// SourceURLs lists the nodes merged into this bundle.
	SourceURLs []string
	// RemapReference, when set, redirects references to a merged URL the
	// bundle did not list in SourceURLs. It returns "" to keep the URL.
	RemapReference func(url string) string
}

// Collector receives the references a transform hook discovers in the
// node being cooked. Found and FoundInline resolve and format the
// reference right away so the hook can rewrite its specifier with
// GeneratedSpecifier.
type Collector interface {
	Found(ref *graph.Reference) (*graph.Reference, error)
	FoundInline(ref *graph.Reference, in graph.InlineInput) (*graph.Reference, error)
	// CookInline cooks the target of an inline reference immediately, so
	// the embedding document can splice the result back in.
	CookInline(ctx context.Context, ref *graph.Reference) (*graph.UrlInfo, error)
}

// HookContext is passed to every hook.
type HookContext struct {
	Mode       config.Mode
	Config     *config.Config
	Graph      *graph.UrlGraph
	Logger     *slog.Logger
	References Collector
}

type (
	// ResolveFunc turns a specifier into an absolute URL, or "" if not handled.
	ResolveFunc func(hc *HookContext, ref *graph.Reference) (string, error)
	// RedirectFunc returns a new URL for ref, or "" to keep the current one.
	RedirectFunc func(hc *HookContext, ref *graph.Reference, current string) (string, error)
	// SearchParamsFunc returns params to set on the resolved URL.
	SearchParamsFunc func(hc *HookContext, ref *graph.Reference) (url.Values, error)
	// FormatFunc returns the specifier written into the owner, or "".
	FormatFunc func(hc *HookContext, ref *graph.Reference) (string, error)
	// ContentFunc is the shape of fetch, transform, finalize and optimize.
	ContentFunc func(ctx context.Context, hc *HookContext, u *graph.UrlInfo) (*Result, error)
	// BundleFunc bundles every used node of one kind.
	BundleFunc func(ctx context.Context, hc *HookContext, infos []*graph.UrlInfo) (map[string]BundleResult, error)
	// CookedFunc observes a node after a successful cook.
	CookedFunc func(hc *HookContext, u *graph.UrlInfo)
	// Teardown releases what Init acquired.
	Teardown func()
)

// InitContext is passed to Init.
type InitContext struct {
	Mode   config.Mode
	Config *config.Config
	Logger *slog.Logger
}

// Plugin is a named bundle of hooks. Every hook is optional.
type Plugin struct {
	Name string
	// AppliesDuring filters the plugin by mode. Nil means both modes.
	AppliesDuring func(config.Mode) bool
	// Init runs once when the controller is built. Returning ErrSkip
	// deactivates the plugin.
	Init func(ic InitContext) (Teardown, error)
	// Effect runs after Init with the names of the other active plugins.
	// Returning false deactivates this plugin.
	Effect func(active []string) bool

	ResolveReference               ResolveFunc
	RedirectReference              RedirectFunc
	TransformReferenceSearchParams SearchParamsFunc
	FormatReference                FormatFunc

	FetchUrlContent     ContentHook
	TransformUrlContent ContentHook
	FinalizeUrlContent  ContentHook
	OptimizeUrlContent  ContentHook
	Bundle              map[string]BundleFunc
	Cooked              CookedFunc
}

// DevOnly is an AppliesDuring predicate for dev-only plugins.
func DevOnly(m config.Mode) bool { return m == config.ModeDev }

// BuildOnly is an AppliesDuring predicate for build-only plugins.
func BuildOnly(m config.Mode) bool { return m == config.ModeBuild }

// ContentHook is either one function for every kind or a function per kind.
type ContentHook struct {
	uniform ContentFunc
	byKind  map[string]ContentFunc
}

// Uniform applies fn to every node.
func Uniform(fn ContentFunc) ContentHook {
	return ContentHook{uniform: fn}
}

// ByKind applies each function to nodes of the matching kind only.
func ByKind(fns map[string]ContentFunc) ContentHook {
	return ContentHook{byKind: fns}
}

// For returns the function that applies to kind, or nil.
func (h ContentHook) For(kind string) ContentFunc {
	if h.uniform != nil {
		return h.uniform
	}
	return h.byKind[kind]
}

// IsZero reports whether the hook is unset.
func (h ContentHook) IsZero() bool {
	return h.uniform == nil && len(h.byKind) == 0
}

// SyntaxError is returned by hooks that fail to parse content. Line and
// Column are 1-based positions in the node content; the kitchen
// translates them into the embedding document for inline nodes.
type SyntaxError struct {
	Line    int
	Column  int
	Message string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%d:%d: %s", e.Line, e.Column, e.Message)
}
