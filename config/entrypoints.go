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

package config

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"bennypowers.dev/sous/fs"
)

// ExpandEntryPoints expands the configured entry point globs into sorted,
// root-relative specifiers ("./index.html"). Patterns without glob
// metacharacters are kept as is, even when the file is missing, so that the
// kitchen can report a proper fetch error for them.
func (c *Config) ExpandEntryPoints(fsys fs.FileSystem) ([]string, error) {
	root := fs.Sub(fsys, toSlash(c.RootDirectory))
	seen := make(map[string]bool)
	var specifiers []string
	add := func(p string) {
		p = strings.TrimPrefix(path.Clean("/"+p), "/")
		if seen[p] {
			return
		}
		seen[p] = true
		specifiers = append(specifiers, "./"+p)
	}
	for _, pattern := range c.EntryPoints {
		pattern = strings.TrimPrefix(strings.TrimPrefix(pattern, "./"), "/")
		if !hasMeta(pattern) {
			add(pattern)
			continue
		}
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid entry point pattern %q", pattern)
		}
		matches, err := doublestar.Glob(root, pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("expanding %q: %w", pattern, err)
		}
		for _, m := range matches {
			if strings.HasPrefix(m, "node_modules/") || strings.Contains(m, "/node_modules/") {
				continue
			}
			add(m)
		}
	}
	sort.Strings(specifiers)
	return specifiers, nil
}

func hasMeta(pattern string) bool {
	return strings.ContainsAny(pattern, "*?[{")
}

func toSlash(p string) string {
	return strings.ReplaceAll(p, "\\", "/")
}
