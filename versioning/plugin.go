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
	"strings"

	"bennypowers.dev/sous/graph"
	"bennypowers.dev/sous/plugin"
)

// Plugin formats every versionable reference as a placeholder token, so
// cooked content can be hashed before any version is known.
func Plugin(p *Placeholders) plugin.Plugin {
	return plugin.Plugin{
		Name:          "versioning",
		AppliesDuring: plugin.BuildOnly,
		Init: func(ic plugin.InitContext) (plugin.Teardown, error) {
			if !ic.Config.Versioning.Enabled {
				return nil, plugin.ErrSkip
			}
			return nil, nil
		},
		FormatReference: func(hc *plugin.HookContext, ref *graph.Reference) (string, error) {
			if ref.IsInline || ref.IsImplicit || ref.IsIgnored() {
				return "", nil
			}
			switch ref.Type {
			case graph.TypeEntryPoint, graph.TypeHTTPRequest, graph.TypeSourcemapComment, graph.TypeSearchParamsBase:
				return "", nil
			}
			if !strings.HasPrefix(ref.URL(), "file:") {
				return "", nil
			}
			return p.For(ref.URL(), ref.Type), nil
		},
	}
}
