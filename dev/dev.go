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

// Package dev cooks documents lazily as a client requests them and turns
// file changes into autoreload messages.
package dev

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"bennypowers.dev/sous/autoreload"
	"bennypowers.dev/sous/config"
	"bennypowers.dev/sous/fs"
	"bennypowers.dev/sous/graph"
	"bennypowers.dev/sous/internal/metrics"
	"bennypowers.dev/sous/kitchen"
	"bennypowers.dev/sous/packagejson"
	"bennypowers.dev/sous/plugin"
)

// DefaultWindow is how long changes are collected into one message.
const DefaultWindow = 50 * time.Millisecond

// Options configures a Session.
type Options struct {
	FileSystem fs.FileSystem
	Plugins    []*plugin.Plugin
	Logger     *slog.Logger
	Metrics    *metrics.Metrics
	// Packages is the cache shared with the node_modules plugin. Changed
	// package.json files are dropped from it.
	Packages *packagejson.MemoryCache
	// Window defaults to DefaultWindow.
	Window time.Duration
	// OnMessage receives every coalesced autoreload message.
	OnMessage func(autoreload.Message)
}

// Session is one running dev server's view of the project.
type Session struct {
	graph     *graph.UrlGraph
	ctrl      *plugin.Controller
	kitchen   *kitchen.Kitchen
	logger    *slog.Logger
	packages  *packagejson.MemoryCache
	coalescer *autoreload.Coalescer
	stop      func()
}

// New starts a session for cfg.
func New(cfg *config.Config, opts Options) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ctrl, err := plugin.NewController(config.ModeDev, cfg, logger, opts.Plugins...)
	if err != nil {
		return nil, err
	}
	window := opts.Window
	if window <= 0 {
		window = DefaultWindow
	}
	emit := opts.OnMessage
	if emit == nil {
		emit = func(m autoreload.Message) {
			logger.Info("autoreload", "type", m.Type, "changed", m.Changed, "reason", m.Reason)
		}
	}
	g := graph.New(cfg.RootURL(), config.NewContext(cfg))
	k := kitchen.New(g, ctrl, cfg,
		kitchen.WithLogger(logger),
		kitchen.WithMetrics(opts.Metrics),
		kitchen.WithFileSystem(opts.FileSystem),
	)
	s := &Session{
		graph:     g,
		ctrl:      ctrl,
		kitchen:   k,
		logger:    logger,
		packages:  opts.Packages,
		coalescer: autoreload.NewCoalescer(window, emit),
	}
	s.stop = g.OnDereferenced(s.pruned)
	return s, nil
}

// Graph returns the session graph.
func (s *Session) Graph() *graph.UrlGraph { return s.graph }

// Close stops the session and drops any pending message.
func (s *Session) Close() {
	s.stop()
	s.coalescer.Stop()
	s.kitchen.Close()
	s.ctrl.Close()
}

// Serve cooks the document requested at reqPath, a path below the base
// path like "/src/app.js". Directory paths serve their index.html. Only
// the requested node is cooked; its references are resolved but their
// targets wait for their own request.
func (s *Session) Serve(ctx context.Context, reqPath string) (*graph.UrlInfo, error) {
	if reqPath == "" || strings.HasSuffix(reqPath, "/") {
		reqPath += "index.html"
	}
	u, err := s.kitchen.InjectRequest(reqPath)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, nil
	}
	if err := s.kitchen.Cook(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// FileChanged marks every node read from the file at p as modified and
// queues the autoreload outcome. Nodes that are no longer used by any
// document are only marked; they reload on their next request.
func (s *Session) FileChanged(p string, at time.Time) {
	if filepath.Base(p) == "package.json" && s.packages != nil {
		s.packages.Invalidate(p)
	}
	for _, u := range s.nodesOf(config.FileURL(p)) {
		s.graph.MarkModified(u, at)
		if !s.graph.IsUsed(u) {
			continue
		}
		r := autoreload.Propagate(s.graph, u)
		s.logger.Debug("file changed", "url", u.URL(), "reload", r.Reload)
		s.coalescer.Add(u.URL(), r)
	}
}

// Flush emits the pending autoreload message right away.
func (s *Session) Flush() {
	s.coalescer.Flush()
}

// nodesOf returns the node for url along with its search param variants.
func (s *Session) nodesOf(url string) []*graph.UrlInfo {
	var out []*graph.UrlInfo
	for _, u := range s.graph.All() {
		base := u.URL()
		if i := strings.IndexAny(base, "?#"); i >= 0 {
			base = base[:i]
		}
		if base == url && !u.IsInline {
			out = append(out, u)
		}
	}
	return out
}

func (s *Session) pruned(u *graph.UrlInfo, last *graph.Reference) {
	if last == nil || last.Type == graph.TypeHTTPRequest {
		return
	}
	r := autoreload.Pruned(s.graph, last)
	s.logger.Debug("pruned", "url", u.URL(), "from", last.OwnerURL)
	s.coalescer.Add(u.URL(), r)
}
