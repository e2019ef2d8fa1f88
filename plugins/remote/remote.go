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

// Package remote resolves and fetches http(s) URLs.
package remote

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"bennypowers.dev/sous/graph"
	"bennypowers.dev/sous/internal/mediatype"
	"bennypowers.dev/sous/packagejson"
	"bennypowers.dev/sous/plugin"
)

// Options configures the remote plugin.
type Options struct {
	// Fetcher defaults to an HTTPFetcher.
	Fetcher   Fetcher
	CacheSize int
}

// New returns the remote plugin. Its cache lives as long as the plugin,
// so a dev session fetches each URL once.
func New(opts Options) *plugin.Plugin {
	if opts.Fetcher == nil {
		opts.Fetcher = NewHTTPFetcher()
	}
	r := &remote{fetcher: opts.Fetcher, cache: NewCache(opts.CacheSize)}
	return &plugin.Plugin{
		Name:             "remote",
		ResolveReference: r.resolve,
		FetchUrlContent:  plugin.Uniform(r.fetch),
	}
}

type remote struct {
	fetcher Fetcher
	cache   *Cache
}

func isRemote(u *url.URL) bool {
	return u.Scheme == "http" || u.Scheme == "https"
}

// resolve handles absolute http(s) specifiers and specifiers relative to
// a remote owner.
func (r *remote) resolve(hc *plugin.HookContext, ref *graph.Reference) (string, error) {
	spec, err := url.Parse(ref.Specifier)
	if err != nil {
		return "", nil
	}
	if isRemote(spec) {
		return spec.String(), nil
	}
	owner, err := url.Parse(ref.OwnerURL)
	if err != nil || !isRemote(owner) {
		if strings.HasPrefix(ref.Specifier, "//") {
			return "https:" + ref.Specifier, nil
		}
		return "", nil
	}
	if spec.Scheme != "" || (ref.Type == graph.TypeJSImport && packagejson.IsBare(ref.Specifier)) {
		return "", nil
	}
	return owner.ResolveReference(spec).String(), nil
}

func (r *remote) fetch(ctx context.Context, hc *plugin.HookContext, u *graph.UrlInfo) (*plugin.Result, error) {
	parsed, err := url.Parse(u.URL())
	if err != nil || !isRemote(parsed) {
		return nil, nil
	}
	body, err := r.cache.GetOrLoad(ctx, u.URL(), r.fetcher.Fetch)
	if err != nil {
		var fe *FetchError
		if errors.As(err, &fe) {
			switch fe.StatusCode {
			case 401, 403, 404:
				return &plugin.Result{Status: fe.StatusCode}, nil
			}
		}
		return nil, err
	}
	hc.Logger.Debug("fetched remote content", "url", u.URL(), "bytes", len(body))
	return &plugin.Result{
		Content:     body,
		ContentType: mediatype.ByExtension(parsed.Path),
		Status:      200,
	}, nil
}
