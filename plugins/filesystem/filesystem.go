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

// Package filesystem resolves relative and root-relative specifiers to
// file URLs and serves their content from a fs.FileSystem.
package filesystem

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"bennypowers.dev/sous/config"
	"bennypowers.dev/sous/fs"
	"bennypowers.dev/sous/graph"
	"bennypowers.dev/sous/internal/mediatype"
	"bennypowers.dev/sous/packagejson"
	"bennypowers.dev/sous/plugin"
	json "github.com/goccy/go-json"
)

// FSPrefix marks request paths that point outside the root directory.
const FSPrefix = "/@fs/"

// New returns the filesystem plugin.
func New(fsys fs.FileSystem) *plugin.Plugin {
	p := &filesystem{fsys: fsys}
	return &plugin.Plugin{
		Name:              "filesystem",
		ResolveReference:  p.resolve,
		RedirectReference: p.redirect,
		FetchUrlContent:   plugin.Uniform(p.fetch),
	}
}

type filesystem struct {
	fsys fs.FileSystem
}

func (p *filesystem) resolve(hc *plugin.HookContext, ref *graph.Reference) (string, error) {
	spec := ref.Specifier
	switch {
	case spec == "", strings.HasPrefix(spec, "//"):
		return "", nil
	case strings.HasPrefix(spec, FSPrefix):
		return "file:///" + strings.TrimPrefix(spec, FSPrefix), nil
	case strings.HasPrefix(spec, "#"):
		if ref.Type == graph.TypeJSImport {
			return "", nil
		}
		return graph.IgnoreScheme + spec, nil
	}
	parsed, err := url.Parse(spec)
	if err != nil {
		return "", fmt.Errorf("invalid specifier %q: %w", spec, err)
	}
	switch parsed.Scheme {
	case "":
	case "file":
		return spec, nil
	case "http", "https":
		return "", nil
	default:
		return graph.IgnoreScheme + spec, nil
	}
	if ref.Type == graph.TypeJSImport && packagejson.IsBare(spec) {
		return "", nil
	}

	base := ref.OwnerURL
	rootRelative := ref.Type == graph.TypeEntryPoint || ref.Type == graph.TypeHTTPRequest || strings.HasPrefix(spec, "/")
	if rootRelative {
		base = hc.Config.RootURL()
		if ref.Type == graph.TypeHTTPRequest {
			spec = strings.TrimPrefix(spec, hc.Config.BasePath())
		}
		parsed, err = url.Parse(strings.TrimLeft(spec, "/"))
		if err != nil {
			return "", err
		}
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	if baseURL.Scheme != "file" {
		return "", nil
	}
	return baseURL.ResolveReference(parsed).String(), nil
}

// redirect appends the trailing slash that identifies directory URLs.
func (p *filesystem) redirect(hc *plugin.HookContext, ref *graph.Reference, current string) (string, error) {
	if strings.HasSuffix(current, "/") {
		return "", nil
	}
	path, ok := config.URLToPath(current)
	if !ok {
		return "", nil
	}
	info, err := p.fsys.Stat(path)
	if err != nil || !info.IsDir() {
		return "", nil
	}
	u, err := url.Parse(current)
	if err != nil {
		return "", err
	}
	u.Path += "/"
	return u.String(), nil
}

func (p *filesystem) fetch(ctx context.Context, hc *plugin.HookContext, u *graph.UrlInfo) (*plugin.Result, error) {
	path, ok := config.URLToPath(u.URL())
	if !ok {
		return nil, nil
	}
	info, err := p.fsys.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return p.listing(hc, path)
	}
	content, err := p.fsys.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return &plugin.Result{Content: content, ContentType: mediatype.ByExtension(path)}, nil
}

// listing serves a directory as the JSON array of its entry names, with
// subdirectories suffixed by a slash.
func (p *filesystem) listing(hc *plugin.HookContext, path string) (*plugin.Result, error) {
	if hc.Config.Directories != config.DirectoriesPreserve {
		return nil, fmt.Errorf("%s is a directory; set directories to %q to reference it", path, config.DirectoriesPreserve)
	}
	entries, err := p.fsys.ReadDir(path)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	content, err := json.Marshal(names)
	if err != nil {
		return nil, err
	}
	return &plugin.Result{
		Content:     content,
		ContentType: "application/json",
		Type:        graph.KindDirectory,
	}, nil
}
