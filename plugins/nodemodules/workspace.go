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

package nodemodules

import (
	"path"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"

	"bennypowers.dev/sous/fs"
	"bennypowers.dev/sous/packagejson"
)

// FindWorkspaceRoot walks up from startDir to the directory holding
// node_modules, a package.json with workspaces, or .git. It returns
// startDir when none is found.
func FindWorkspaceRoot(fsys fs.FileSystem, startDir string) string {
	dir := startDir
	for {
		if stat, err := fsys.Stat(filepath.Join(dir, "node_modules")); err == nil && stat.IsDir() {
			return dir
		}
		if pkg, err := packagejson.ParseFile(fsys, filepath.Join(dir, "package.json")); err == nil && len(pkg.WorkspacePatterns()) > 0 {
			return dir
		}
		if stat, err := fsys.Stat(filepath.Join(dir, ".git")); err == nil && stat.IsDir() {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return startDir
		}
		dir = parent
	}
}

// DiscoverWorkspaces maps the package names of the workspaces declared by
// the package.json in rootDir to their directories. Workspace patterns
// are doublestar globs relative to rootDir.
func DiscoverWorkspaces(fsys fs.FileSystem, rootDir string) (map[string]string, error) {
	root, err := packagejson.ParseFile(fsys, filepath.Join(rootDir, "package.json"))
	if err != nil {
		return nil, err
	}
	packages := make(map[string]string)
	sub := fs.Sub(fsys, filepath.ToSlash(rootDir))
	for _, pattern := range root.WorkspacePatterns() {
		matches, err := doublestar.Glob(sub, path.Join(path.Clean(pattern), "package.json"))
		if err != nil {
			continue
		}
		for _, m := range matches {
			if doublestar.MatchUnvalidated("**/node_modules/**", m) {
				continue
			}
			dir := filepath.Join(rootDir, filepath.FromSlash(path.Dir(m)))
			pkg, err := packagejson.ParseFile(fsys, filepath.Join(dir, "package.json"))
			if err != nil || pkg.Name == "" {
				continue
			}
			packages[pkg.Name] = dir
		}
	}
	return packages, nil
}
