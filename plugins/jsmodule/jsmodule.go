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

// Package jsmodule discovers the imports of js modules with tree-sitter,
// rewrites them to their generated specifiers and, in dev, records the
// import.meta.hot contract of each module.
package jsmodule

import (
	"context"
	"net/url"

	"bennypowers.dev/sous/config"
	"bennypowers.dev/sous/graph"
	"bennypowers.dev/sous/plugin"
)

// New returns the js module plugin.
func New() *plugin.Plugin {
	return &plugin.Plugin{
		Name: "js_module",
		TransformUrlContent: plugin.ByKind(map[string]plugin.ContentFunc{
			graph.KindJSModule: transform,
		}),
	}
}

func transform(ctx context.Context, hc *plugin.HookContext, u *graph.UrlInfo) (*plugin.Result, error) {
	content := u.Content()
	a, err := Analyze(content)
	if err != nil {
		return nil, err
	}

	resolved := make(map[string]string, len(a.Imports))
	var edits []plugin.Edit
	for _, imp := range a.Imports {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ref := &graph.Reference{
			Specifier: imp.Specifier,
			Type:      imp.Type,
			Start:     imp.Start,
			End:       imp.End,
			Trace:     graph.TraceAt(u.URL(), content, imp.Start),
		}
		if imp.Type == graph.TypeJSImport {
			ref.ExpectedType = graph.KindJSModule
		}
		if imp.Worker {
			ref.ExpectedType = graph.KindJSModule
			ref.ExpectedSubtype = "worker"
		}
		if imp.Dynamic {
			ref.Data = map[string]any{"dynamic": true}
		}
		found, err := hc.References.Found(ref)
		if err != nil {
			return nil, err
		}
		resolved[imp.Specifier] = found.URL()
		if e, ok := plugin.SpecifierEdit(content, found); ok {
			edits = append(edits, e)
		}
	}

	if hc.Mode == config.ModeDev {
		u.SetHot(hotState(u.URL(), a.Hot, resolved))
	}
	if len(edits) == 0 {
		return nil, nil
	}
	return &plugin.Result{Content: plugin.ApplyEdits(content, edits)}, nil
}

// hotState turns accepted specifiers into absolute URLs, preferring the
// resolution of a matching import.
func hotState(base string, hot *Hot, resolved map[string]string) graph.HotState {
	if hot == nil {
		return graph.HotState{}
	}
	state := graph.HotState{AcceptSelf: hot.AcceptSelf, Decline: hot.Decline}
	baseURL, _ := url.Parse(base)
	for _, spec := range hot.Dependencies {
		if u, ok := resolved[spec]; ok {
			state.AcceptDependencies = append(state.AcceptDependencies, u)
			continue
		}
		ref, err := url.Parse(spec)
		if err != nil || baseURL == nil {
			continue
		}
		state.AcceptDependencies = append(state.AcceptDependencies, baseURL.ResolveReference(ref).String())
	}
	return state
}
