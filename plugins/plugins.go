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

// Package plugins assembles the standard plugin set used by the CLI.
package plugins

import (
	"bennypowers.dev/sous/fs"
	"bennypowers.dev/sous/packagejson"
	"bennypowers.dev/sous/plugin"
	"bennypowers.dev/sous/plugins/css"
	"bennypowers.dev/sous/plugins/filesystem"
	"bennypowers.dev/sous/plugins/html"
	"bennypowers.dev/sous/plugins/jsmodule"
	"bennypowers.dev/sous/plugins/nodemodules"
	"bennypowers.dev/sous/plugins/remote"
	"bennypowers.dev/sous/plugins/webmanifest"
)

// Options configures Default.
type Options struct {
	FileSystem fs.FileSystem
	// Packages is shared with a dev session, which drops changed
	// package.json files. A private cache is used when nil.
	Packages   *packagejson.MemoryCache
	Conditions []string
	// Fetcher overrides the HTTP fetcher of the remote plugin.
	Fetcher remote.Fetcher
}

// Default returns the resolvers, fetchers and transforms for html, js
// modules, css and web manifests, with local resolvers ahead of remote
// ones.
func Default(opts Options) []*plugin.Plugin {
	return []*plugin.Plugin{
		filesystem.New(opts.FileSystem),
		nodemodules.New(nodemodules.Options{
			FileSystem: opts.FileSystem,
			Cache:      opts.Packages,
			Conditions: opts.Conditions,
		}),
		remote.New(remote.Options{Fetcher: opts.Fetcher}),
		html.New(),
		jsmodule.New(),
		css.New(),
		webmanifest.New(),
	}
}
