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

// Package webmanifest discovers and rewrites the icons of web app
// manifests.
package webmanifest

import (
	"context"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"bennypowers.dev/sous/graph"
	"bennypowers.dev/sous/plugin"
)

// New returns the webmanifest plugin.
func New() *plugin.Plugin {
	return &plugin.Plugin{
		Name: "webmanifest",
		TransformUrlContent: plugin.ByKind(map[string]plugin.ContentFunc{
			graph.KindWebmanifest: transform,
		}),
	}
}

func transform(ctx context.Context, hc *plugin.HookContext, u *graph.UrlInfo) (*plugin.Result, error) {
	content := u.Content()
	if !gjson.ValidBytes(content) {
		return nil, &plugin.SyntaxError{Line: 1, Column: 1, Message: "invalid JSON"}
	}
	out := content
	changed := false
	count := int(gjson.GetBytes(content, "icons.#").Int())
	for i := range count {
		path := fmt.Sprintf("icons.%d.src", i)
		src := gjson.GetBytes(content, path)
		if src.Type != gjson.String || src.Str == "" {
			continue
		}
		start := src.Index + 1
		found, err := hc.References.Found(&graph.Reference{
			Specifier: src.Str,
			Type:      graph.TypeWebmanifestIcon,
			Start:     start,
			End:       src.Index + len(src.Raw) - 1,
			Trace:     graph.TraceAt(u.URL(), content, start),
		})
		if err != nil {
			return nil, err
		}
		if found.IsIgnored() || found.GeneratedSpecifier == src.Str {
			continue
		}
		out, err = sjson.SetBytes(out, path, found.GeneratedSpecifier)
		if err != nil {
			return nil, err
		}
		changed = true
	}
	if !changed {
		return nil, nil
	}
	return &plugin.Result{Content: out}, nil
}
