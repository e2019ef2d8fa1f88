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

// Package packagejson parses package.json files and resolves the subpaths
// a package exposes through "exports", "imports", "module" and "main".
package packagejson

import (
	"errors"
	"path"
	"slices"
	"strings"

	"bennypowers.dev/sous/fs"
	json "github.com/goccy/go-json"
)

// ErrNotExported is returned when a subpath is not exported by the package.
var ErrNotExported = errors.New("not exported by package.json")

// DefaultConditions is the default export condition priority for browser environments.
var DefaultConditions = []string{"browser", "import", "default"}

// PackageJSON is the subset of package.json used for module resolution.
type PackageJSON struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Main    string `json:"main,omitempty"`
	Module  string `json:"module,omitempty"`
	Exports any    `json:"exports,omitempty"`
	Imports any    `json:"imports,omitempty"`

	RawWorkspaces json.RawMessage `json:"workspaces,omitempty"`
}

// WorkspacePatterns returns the globs of the workspaces field, given either
// as an array or as an object with a packages array.
func (pkg *PackageJSON) WorkspacePatterns() []string {
	if len(pkg.RawWorkspaces) == 0 {
		return nil
	}
	var patterns []string
	if err := json.Unmarshal(pkg.RawWorkspaces, &patterns); err == nil {
		return patterns
	}
	var obj struct {
		Packages []string `json:"packages"`
	}
	if err := json.Unmarshal(pkg.RawWorkspaces, &obj); err == nil {
		return obj.Packages
	}
	return nil
}

// Parse parses package.json data.
func Parse(data []byte) (*PackageJSON, error) {
	var pkg PackageJSON
	if err := json.Unmarshal(data, &pkg); err != nil {
		return nil, err
	}
	return &pkg, nil
}

// ParseFile parses a package.json file.
func ParseFile(fsys fs.FileSystem, path string) (*PackageJSON, error) {
	data, err := fsys.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// SplitSpecifier splits a bare specifier into its package name and a
// subpath suitable for ResolveExport: "@scope/pkg/a.js" gives
// "@scope/pkg" and "./a.js"; "lit" gives "lit" and ".".
func SplitSpecifier(specifier string) (name, subpath string) {
	parts := strings.SplitN(specifier, "/", 3)
	n := 1
	if strings.HasPrefix(specifier, "@") && len(parts) > 1 {
		n = 2
	}
	name = strings.Join(parts[:min(n, len(parts))], "/")
	rest := strings.TrimPrefix(specifier, name)
	if rest == "" || rest == "/" {
		return name, "."
	}
	return name, "." + rest
}

// IsBare reports whether specifier names a package rather than a path or
// a URL.
func IsBare(specifier string) bool {
	if specifier == "" || strings.HasPrefix(specifier, "#") {
		return false
	}
	for _, prefix := range []string{"./", "../", "/"} {
		if strings.HasPrefix(specifier, prefix) {
			return false
		}
	}
	if specifier == "." || specifier == ".." {
		return false
	}
	return !strings.Contains(specifier, ":")
}

// ResolveExport resolves subpath ("." or "./x") to a file path relative
// to the package directory, without a leading "./". Nil conditions means
// DefaultConditions. Packages without "exports" fall back to "module",
// then "main", then index.js for the main entry, and expose every other
// subpath as is.
func (pkg *PackageJSON) ResolveExport(subpath string, conditions []string) (string, error) {
	if pkg.Exports == nil {
		if subpath != "." {
			return trimDotSlash(subpath), nil
		}
		for _, entry := range []string{pkg.Module, pkg.Main} {
			if entry != "" {
				return trimDotSlash(entry), nil
			}
		}
		return "index.js", nil
	}
	exports, ok := pkg.Exports.(map[string]any)
	if !ok || !hasSubpathKeys(exports) {
		if subpath != "." {
			return "", ErrNotExported
		}
		return resolveTarget(pkg.Exports, "", conditions)
	}
	return resolveIn(exports, subpath, conditions)
}

// ResolveImport resolves a "#internal" specifier through "imports".
func (pkg *PackageJSON) ResolveImport(specifier string, conditions []string) (string, error) {
	imports, ok := pkg.Imports.(map[string]any)
	if !ok {
		return "", ErrNotExported
	}
	return resolveIn(imports, specifier, conditions)
}

func hasSubpathKeys(m map[string]any) bool {
	for key := range m {
		if strings.HasPrefix(key, ".") {
			return true
		}
	}
	return false
}

// resolveIn looks key up in a subpath map, trying an exact match first
// and then the longest matching "*" pattern.
func resolveIn(m map[string]any, key string, conditions []string) (string, error) {
	if target, ok := m[key]; ok && !strings.Contains(key, "*") {
		return resolveTarget(target, "", conditions)
	}
	patterns := make([]string, 0, len(m))
	for pattern := range m {
		if strings.Count(pattern, "*") == 1 {
			patterns = append(patterns, pattern)
		}
	}
	slices.SortFunc(patterns, func(a, b string) int { return len(b) - len(a) })
	for _, pattern := range patterns {
		prefix, suffix, _ := strings.Cut(pattern, "*")
		if len(key) < len(prefix)+len(suffix) || !strings.HasPrefix(key, prefix) || !strings.HasSuffix(key, suffix) {
			continue
		}
		match := key[len(prefix) : len(key)-len(suffix)]
		return resolveTarget(m[pattern], match, conditions)
	}
	return "", ErrNotExported
}

// resolveTarget resolves a target value: a path string, a condition map
// or a fallback array. A "*" in the path is replaced with match.
func resolveTarget(value any, match string, conditions []string) (string, error) {
	if conditions == nil {
		conditions = DefaultConditions
	}
	switch v := value.(type) {
	case string:
		resolved := path.Clean(trimDotSlash(strings.ReplaceAll(v, "*", match)))
		if strings.HasPrefix(resolved, "..") {
			return "", ErrNotExported
		}
		return resolved, nil
	case map[string]any:
		for _, cond := range conditions {
			if next, ok := v[cond]; ok {
				if resolved, err := resolveTarget(next, match, conditions); err == nil {
					return resolved, nil
				}
			}
		}
	case []any:
		for _, item := range v {
			if resolved, err := resolveTarget(item, match, conditions); err == nil {
				return resolved, nil
			}
		}
	}
	return "", ErrNotExported
}

func trimDotSlash(path string) string {
	return strings.TrimPrefix(path, "./")
}
