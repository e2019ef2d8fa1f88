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

// Package kitchen cooks graph nodes: it resolves references, fetches
// content, runs transforms and finalizes the result through the plugin
// controller, keeping every node's outgoing references consistent with its
// content.
package kitchen

import (
	"context"
	"errors"
	"fmt"
	iofs "io/fs"
	"log/slog"
	"maps"
	"net/url"
	"strings"
	"sync"
	"time"

	"bennypowers.dev/sous/config"
	"bennypowers.dev/sous/fs"
	"bennypowers.dev/sous/graph"
	"bennypowers.dev/sous/internal/mediatype"
	"bennypowers.dev/sous/internal/metrics"
	"bennypowers.dev/sous/plugin"
	"bennypowers.dev/sous/transformer"
	"github.com/sourcegraph/conc/pool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// MaxRedirects bounds the redirect hooks applied to one reference.
const MaxRedirects = 10

// Option configures a Kitchen.
type Option func(*Kitchen)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(k *Kitchen) { k.logger = logger }
}

// WithMetrics records cook counters and stage durations in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(k *Kitchen) { k.metrics = m }
}

// WithTracer sets the tracer used for stage spans. Defaults to the global
// otel tracer provider.
func WithTracer(t trace.Tracer) Option {
	return func(k *Kitchen) { k.tracer = t }
}

// WithFileSystem sets the filesystem debug copies are written to.
func WithFileSystem(fsys fs.FileSystem) Option {
	return func(k *Kitchen) { k.fsys = fsys }
}

// Kitchen drives nodes of one graph through the plugin pipeline.
type Kitchen struct {
	graph   *graph.UrlGraph
	ctrl    *plugin.Controller
	cfg     *config.Config
	mode    config.Mode
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
	fsys    fs.FileSystem

	transformer *transformer.Transformer
	unsubscribe func()

	mu       sync.Mutex
	inflight map[string]*job
	built    sync.Map // url -> *buildOnce
}

type job struct {
	modifiedAt time.Time
	done       chan struct{}
	err        error
	cancel     context.CancelCauseFunc
}

type buildOnce struct {
	once sync.Once
	err  error
}

// New returns a kitchen cooking nodes of g in the mode of ctrl.
func New(g *graph.UrlGraph, ctrl *plugin.Controller, cfg *config.Config, opts ...Option) *Kitchen {
	k := &Kitchen{
		graph:    g,
		ctrl:     ctrl,
		cfg:      cfg,
		mode:     ctrl.Mode(),
		inflight: make(map[string]*job),
	}
	for _, opt := range opts {
		opt(k)
	}
	if k.logger == nil {
		k.logger = slog.Default()
	}
	if k.tracer == nil {
		k.tracer = otel.Tracer("bennypowers.dev/sous/kitchen")
	}
	k.transformer = transformer.New(cfg, k.fsys, k.logger)
	k.unsubscribe = g.OnDereferenced(func(u *graph.UrlInfo, _ *graph.Reference) {
		k.metrics.Dereferenced()
		k.built.Delete(u.URL())
	})
	return k
}

// Close detaches the kitchen from its graph.
func (k *Kitchen) Close() {
	if k.unsubscribe != nil {
		k.unsubscribe()
	}
}

// Graph returns the graph the kitchen cooks.
func (k *Kitchen) Graph() *graph.UrlGraph { return k.graph }

// Controller returns the plugin controller.
func (k *Kitchen) Controller() *plugin.Controller { return k.ctrl }

// Config returns the shared configuration.
func (k *Kitchen) Config() *config.Config { return k.cfg }

// Logger returns the kitchen logger.
func (k *Kitchen) Logger() *slog.Logger { return k.logger }

// HookContext returns a context for hooks that run outside of a cook,
// such as bundling. Its collector commits references on owner.
func (k *Kitchen) HookContext(owner *graph.UrlInfo) *plugin.HookContext {
	return k.newCollector(owner).hc
}

// InjectEntryPoint resolves specifier from the root and adds it to the
// graph as an entry point.
func (k *Kitchen) InjectEntryPoint(specifier string) (*graph.UrlInfo, error) {
	return k.inject(specifier, graph.TypeEntryPoint)
}

// InjectRequest resolves a client request path from the root. Request
// references keep the node in the graph while it is served but do not
// count as a use by another document.
func (k *Kitchen) InjectRequest(specifier string) (*graph.UrlInfo, error) {
	return k.inject(specifier, graph.TypeHTTPRequest)
}

func (k *Kitchen) inject(specifier string, typ graph.ReferenceType) (*graph.UrlInfo, error) {
	root := k.graph.Root()
	c := k.newCollector(root)
	ref := k.graph.CreateReference(root, &graph.Reference{Specifier: specifier, Type: typ})
	c.track(ref)
	resolved, err := k.resolve(c.hc, ref, c.track)
	if err != nil {
		c.discard()
		return nil, err
	}
	if resolved.IsIgnored() {
		c.discard()
		return nil, nil
	}
	for _, existing := range k.graph.ReferencesToOthers(root) {
		if existing.Type == typ && existing.URL() == resolved.URL() {
			c.discard()
			return k.graph.Target(existing), nil
		}
	}
	return k.graph.Finalize(resolved)
}

// resolve runs the resolve, search params, redirect and format hooks for
// ref. It returns the last reference of the redirect chain.
func (k *Kitchen) resolve(hc *plugin.HookContext, ref *graph.Reference, track func(*graph.Reference)) (*graph.Reference, error) {
	if ref.URL() != "" {
		return ref, nil
	}
	start := time.Now()
	defer k.metrics.ObserveStage(StageResolve, start)
	resolved, p, err := plugin.CallFirst(k.ctrl.Resolvers(), func(fn plugin.ResolveFunc) (string, bool, error) {
		u, err := fn(hc, ref)
		return u, u != "", err
	})
	if err != nil {
		return nil, k.resolutionError(ref, ReasonPluginError, pluginName(p), err)
	}
	if resolved == "" {
		return nil, k.resolutionError(ref, ReasonNoResolver, "", nil)
	}
	if strings.HasPrefix(resolved, graph.IgnoreScheme) {
		return ref, ref.SetURL(resolved)
	}

	resolved, err = k.applySearchParams(hc, ref, resolved)
	if err != nil {
		return nil, err
	}
	if err := ref.SetURL(resolved); err != nil {
		return nil, err
	}

	for i := 0; ; i++ {
		current := ref.URL()
		next, p, err := plugin.CallFirst(k.ctrl.Redirectors(), func(fn plugin.RedirectFunc) (string, bool, error) {
			u, err := fn(hc, ref, current)
			return u, u != "" && u != current, err
		})
		if err != nil {
			return nil, k.resolutionError(ref, ReasonPluginError, pluginName(p), err)
		}
		if next == "" {
			break
		}
		if i == MaxRedirects {
			return nil, k.resolutionError(ref, ReasonRedirectLoop, pluginName(p), fmt.Errorf("more than %d redirects", MaxRedirects))
		}
		ref = k.graph.Redirect(ref, next)
		track(ref)
	}

	specifier, p, err := plugin.CallFirst(k.ctrl.Formatters(), func(fn plugin.FormatFunc) (string, bool, error) {
		s, err := fn(hc, ref)
		return s, s != "", err
	})
	if err != nil {
		return nil, k.resolutionError(ref, ReasonPluginError, pluginName(p), err)
	}
	if specifier == "" {
		specifier = k.defaultSpecifier(ref.URL())
	}
	ref.GeneratedURL = ref.URL()
	ref.GeneratedSpecifier = specifier
	return ref, nil
}

func (k *Kitchen) applySearchParams(hc *plugin.HookContext, ref *graph.Reference, resolved string) (string, error) {
	var merged url.Values
	err := plugin.CallAll(k.ctrl.SearchParams(), func(fn plugin.SearchParamsFunc) error {
		values, err := fn(hc, ref)
		if err != nil {
			return err
		}
		for key, vs := range values {
			if merged == nil {
				merged = url.Values{}
			}
			merged[key] = vs
		}
		return nil
	})
	if err != nil {
		var hookErr *plugin.HookError
		name := ""
		if errors.As(err, &hookErr) {
			name = hookErr.Plugin
		}
		return "", k.resolutionError(ref, ReasonPluginError, name, err)
	}
	if len(merged) == 0 {
		return resolved, nil
	}
	parsed, err := url.Parse(resolved)
	if err != nil {
		return "", k.resolutionError(ref, ReasonPluginError, "", err)
	}
	q := parsed.Query()
	for key, vs := range merged {
		q[key] = vs
	}
	parsed.RawQuery = q.Encode()
	return parsed.String(), nil
}

// defaultSpecifier serves files below the root from the base path and
// other local files through /@fs/.
func (k *Kitchen) defaultSpecifier(u string) string {
	root := k.cfg.RootURL()
	if strings.HasPrefix(u, root) {
		return k.cfg.BasePath() + strings.TrimPrefix(u, root)
	}
	if rest, ok := strings.CutPrefix(u, "file:///"); ok {
		return "/@fs/" + rest
	}
	return u
}

// InlineURL names content embedded in ownerURL at the given position.
func InlineURL(ownerURL string, line, column int, contentType string) string {
	if i := strings.IndexAny(ownerURL, "?#"); i >= 0 {
		ownerURL = ownerURL[:i]
	}
	return fmt.Sprintf("%s@L%dC%d%s", ownerURL, line, column, mediatype.Extension(contentType))
}

// Cook runs u through fetch, transform and finalize. In dev mode a cook
// is skipped when u has not changed since the last one, shared with a
// concurrent caller for the same modification, and restarted when a newer
// modification arrives. In build mode every node is cooked once per pass.
func (k *Kitchen) Cook(ctx context.Context, u *graph.UrlInfo) error {
	if k.mode == config.ModeBuild {
		return k.cookOnce(ctx, u)
	}
	return k.cookDev(ctx, u)
}

func (k *Kitchen) cookOnce(ctx context.Context, u *graph.UrlInfo) error {
	v, _ := k.built.LoadOrStore(u.URL(), &buildOnce{})
	b := v.(*buildOnce)
	ran := false
	b.once.Do(func() {
		ran = true
		b.err = k.cookStages(ctx, u, u.ModifiedAt())
	})
	if !ran {
		k.metrics.Cook("", metrics.ResultShared)
	}
	return b.err
}

// ResetBuildPass forgets which nodes were cooked, so the next build pass
// cooks every node again.
func (k *Kitchen) ResetBuildPass() {
	k.built.Range(func(key, _ any) bool {
		k.built.Delete(key)
		return true
	})
}

func (k *Kitchen) cookDev(ctx context.Context, u *graph.UrlInfo) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		at := u.ModifiedAt()
		if u.IsFresh() {
			k.metrics.Cook("", metrics.ResultFresh)
			return nil
		}
		k.mu.Lock()
		if j := k.inflight[u.URL()]; j != nil {
			k.mu.Unlock()
			if !j.modifiedAt.Equal(at) {
				k.logger.Debug("superseding cook", "url", u.URL())
				j.cancel(ErrSuperseded)
			} else {
				k.metrics.Cook("", metrics.ResultShared)
			}
			select {
			case <-j.done:
			case <-ctx.Done():
				return ctx.Err()
			}
			if j.modifiedAt.Equal(at) && !isCancellation(j.err) {
				return j.err
			}
			continue
		}
		jctx, cancel := context.WithCancelCause(ctx)
		j := &job{modifiedAt: at, done: make(chan struct{}), cancel: cancel}
		k.inflight[u.URL()] = j
		k.mu.Unlock()

		j.err = k.cookStages(jctx, u, at)
		if errors.Is(context.Cause(jctx), ErrSuperseded) {
			j.err = ErrSuperseded
			k.metrics.Cook(u.Type, metrics.ResultSuperseded)
		}
		cancel(nil)
		k.mu.Lock()
		if k.inflight[u.URL()] == j {
			delete(k.inflight, u.URL())
		}
		k.mu.Unlock()
		close(j.done)
		if errors.Is(j.err, ErrSuperseded) {
			continue
		}
		return j.err
	}
}

func isCancellation(err error) bool {
	return errors.Is(err, ErrSuperseded) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// CookDependencies cooks every node strongly referenced from u,
// recursively and concurrently. Sourcemap comments, weak and implicit
// references are skipped. The first error cancels the remaining cooks.
func (k *Kitchen) CookDependencies(ctx context.Context, u *graph.UrlInfo) error {
	var seen sync.Map
	seen.Store(u.URL(), true)
	return k.cookDependencies(ctx, u, &seen)
}

func (k *Kitchen) cookDependencies(ctx context.Context, u *graph.UrlInfo, seen *sync.Map) error {
	p := pool.New().WithContext(ctx).WithCancelOnError().WithFirstError()
	for _, ref := range k.graph.ReferencesToOthers(u) {
		if ref.Type == graph.TypeSourcemapComment || ref.IsWeak || ref.IsImplicit || ref.IsIgnored() {
			continue
		}
		target := k.graph.Target(ref)
		if target == nil {
			continue
		}
		if _, loaded := seen.LoadOrStore(target.URL(), true); loaded {
			continue
		}
		p.Go(func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := k.Cook(ctx, target); err != nil {
				return err
			}
			return k.cookDependencies(ctx, target, seen)
		})
	}
	return p.Wait()
}

func (k *Kitchen) cookStages(ctx context.Context, u *graph.UrlInfo, at time.Time) error {
	ctx, span := k.tracer.Start(ctx, "cook", trace.WithAttributes(
		attribute.String("url", u.URL()),
		attribute.String("mode", string(k.mode)),
	))
	defer span.End()

	c := k.newCollector(u)
	err := k.runStages(ctx, c, u, at)
	if err != nil {
		c.discard()
		if cause := context.Cause(ctx); cause != nil && ctx.Err() != nil {
			err = cause
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if se, ok := Stage(err); ok {
			k.metrics.StageError(se.Stage, se.Reason)
		}
		if !isCancellation(err) {
			k.metrics.Cook(u.Type, metrics.ResultError)
		}
		return err
	}
	k.metrics.Cook(u.Type, metrics.ResultCooked)
	return nil
}

func (k *Kitchen) runStages(ctx context.Context, c *collector, u *graph.UrlInfo, at time.Time) error {
	hc := c.hc
	u.ResetContent()

	if err := k.fetch(ctx, hc, u); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := k.transform(ctx, hc, u); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	sm, err := k.finalize(ctx, hc, u)
	if err != nil {
		return err
	}
	if sm != nil {
		c.add(sm.Reference)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := k.graph.ReplaceReferences(u, c.committed()); err != nil {
		return k.finalizeError(u, "", err)
	}
	if sm != nil {
		if err := k.transformer.Materialize(k.graph, sm); err != nil {
			return k.finalizeError(u, "", err)
		}
	}
	u.MarkCooked(at)
	if err := k.transformer.PersistDebug(u); err != nil {
		k.logger.Warn("writing debug copy failed", "url", u.URL(), "error", err)
	}
	_ = plugin.CallAll(k.ctrl.Cooked(), func(fn plugin.CookedFunc) error {
		fn(hc, u)
		return nil
	})
	k.logger.Debug("cooked", "url", u.URL(), "type", u.Type, "references", len(c.committed()))
	return nil
}

func (k *Kitchen) fetch(ctx context.Context, hc *plugin.HookContext, u *graph.UrlInfo) error {
	start := time.Now()
	defer k.metrics.ObserveStage(StageFetch, start)
	ctx, span := k.tracer.Start(ctx, StageFetch)
	defer span.End()

	var (
		result *plugin.Result
		p      *plugin.Plugin
		err    error
	)
	if u.IsInline {
		content, contentType := u.InlineContent()
		result = &plugin.Result{Content: content, ContentType: contentType}
	} else {
		result, p, err = plugin.CallFirstAsync(ctx, k.ctrl.Fetchers(k.expectedType(u)), func(ctx context.Context, fn plugin.ContentFunc) (*plugin.Result, bool, error) {
			r, err := fn(ctx, hc, u)
			return r, r != nil, err
		})
	}
	if err != nil {
		if isCancellation(err) {
			return err
		}
		reason := ReasonPluginError
		switch {
		case errors.Is(err, iofs.ErrNotExist):
			reason = ReasonNotFound
		case errors.Is(err, iofs.ErrPermission):
			reason = ReasonPermissionDenied
		}
		return k.fetchError(u, reason, pluginName(p), 0, err)
	}
	if result == nil {
		return k.fetchError(u, ReasonNoContent, "", 0, nil)
	}
	switch {
	case result.Status == 404:
		return k.fetchError(u, ReasonNotFound, pluginName(p), result.Status, nil)
	case result.Status == 401 || result.Status == 403:
		return k.fetchError(u, ReasonPermissionDenied, pluginName(p), result.Status, nil)
	}

	if err := u.SetOriginalContent(result.Content); err != nil {
		return k.fetchError(u, ReasonPluginError, pluginName(p), 0, err)
	}
	u.ContentType = result.ContentType
	if u.ContentType == "" {
		u.ContentType = mediatype.ByExtension(u.URL())
	}
	u.Type = result.Type
	if u.Type == "" {
		u.Type = mediatype.Kind(u.ContentType, k.expectedType(u))
	}
	u.Subtype = result.Subtype
	u.Status = result.Status
	u.Headers = result.Headers
	if result.IsEntryPoint {
		u.IsEntryPoint = true
	}
	if result.Sourcemap != nil {
		u.SetSourcemap(result.Sourcemap)
	}
	if result.Parsed != nil {
		u.SetParsed(result.Parsed)
	}
	maps.Copy(u.Data, result.Data)
	span.SetAttributes(attribute.String("type", u.Type))
	return nil
}

// expectedType is the kind declared by the first reference to u.
func (k *Kitchen) expectedType(u *graph.UrlInfo) string {
	if u.Type != "" {
		return u.Type
	}
	if u.InlineSite != nil && u.InlineSite.ExpectedType != "" {
		return u.InlineSite.ExpectedType
	}
	if first := k.graph.FirstReference(u); first != nil {
		return first.ExpectedType
	}
	for _, ref := range k.graph.ReferencesFromOthers(u) {
		if ref.ExpectedType != "" {
			return ref.ExpectedType
		}
	}
	return ""
}

func (k *Kitchen) transform(ctx context.Context, hc *plugin.HookContext, u *graph.UrlInfo) error {
	start := time.Now()
	defer k.metrics.ObserveStage(StageTransform, start)
	ctx, span := k.tracer.Start(ctx, StageTransform)
	defer span.End()

	for _, l := range k.ctrl.Transformers(u.Type) {
		if err := ctx.Err(); err != nil {
			return err
		}
		r, err := l.Fn(ctx, hc, u)
		if err != nil {
			// errors from references and inline content keep their own stage
			if _, ok := Stage(err); ok || isCancellation(err) {
				return err
			}
			return k.transformError(u, l.Plugin.Name, err)
		}
		if err := k.transformer.Apply(u, r); err != nil {
			return k.transformError(u, l.Plugin.Name, err)
		}
	}
	return nil
}

func (k *Kitchen) finalize(ctx context.Context, hc *plugin.HookContext, u *graph.UrlInfo) (*transformer.SourcemapFile, error) {
	start := time.Now()
	defer k.metrics.ObserveStage(StageFinalize, start)
	ctx, span := k.tracer.Start(ctx, StageFinalize)
	defer span.End()

	r, p, err := plugin.CallFirstAsync(ctx, k.ctrl.Finalizers(u.Type), func(ctx context.Context, fn plugin.ContentFunc) (*plugin.Result, bool, error) {
		r, err := fn(ctx, hc, u)
		return r, r != nil, err
	})
	if err != nil {
		if isCancellation(err) {
			return nil, err
		}
		return nil, k.finalizeError(u, pluginName(p), err)
	}
	if err := k.transformer.Apply(u, r); err != nil {
		return nil, k.finalizeError(u, pluginName(p), err)
	}
	sm, err := k.transformer.Finalize(k.graph, u)
	if err != nil {
		return nil, k.finalizeError(u, "", err)
	}
	u.Lock()
	return sm, nil
}

// Optimize runs the optimize hooks of u inside its refine window.
func (k *Kitchen) Optimize(ctx context.Context, u *graph.UrlInfo) error {
	hc := k.HookContext(u)
	return u.Refine(func() error {
		return plugin.CallAllAsync(ctx, k.ctrl.Optimizers(u.Type), func(ctx context.Context, fn plugin.ContentFunc) error {
			r, err := fn(ctx, hc, u)
			if err != nil {
				return err
			}
			return k.transformer.Apply(u, r)
		})
	})
}

func pluginName(p *plugin.Plugin) string {
	if p == nil {
		return ""
	}
	return p.Name
}

func (k *Kitchen) stageError(stage, reason, pluginName string, u string, tr graph.Trace, err error) StageError {
	var hookErr *plugin.HookError
	if errors.As(err, &hookErr) {
		if pluginName == "" {
			pluginName = hookErr.Plugin
		}
		err = hookErr.Err
	}
	se := StageError{Stage: stage, Reason: reason, Plugin: pluginName, URL: u, Trace: tr, Err: err}
	if strings.Contains(tr.URL, "/node_modules/") {
		se.FirstPartyTrace = k.firstPartyTrace(tr.URL)
	}
	return se
}

func (k *Kitchen) resolutionError(ref *graph.Reference, reason, pluginName string, err error) error {
	tr := ref.Trace
	if tr.CodeFrame == "" {
		if owner := k.graph.Owner(ref); owner != nil && tr.Line > 0 {
			tr.CodeFrame = graph.CodeFrame(owner.OriginalContent(), tr.Line, tr.Column)
		}
	}
	return &ResolutionError{
		StageError: k.stageError(StageResolve, reason, pluginName, ref.Specifier, tr, err),
		Specifier:  ref.Specifier,
	}
}

func (k *Kitchen) fetchError(u *graph.UrlInfo, reason, pluginName string, status int, err error) error {
	return &FetchError{
		StageError: k.stageError(StageFetch, reason, pluginName, u.URL(), k.traceOf(u), err),
		Status:     status,
	}
}

func (k *Kitchen) transformError(u *graph.UrlInfo, pluginName string, err error) error {
	tr := k.traceOf(u)
	reason := ReasonPluginError
	var syntax *plugin.SyntaxError
	if errors.As(err, &syntax) {
		reason = ReasonSyntaxError
		tr = k.positionIn(u, syntax.Line, syntax.Column)
	}
	return &TransformError{StageError: k.stageError(StageTransform, reason, pluginName, u.URL(), tr, err)}
}

func (k *Kitchen) finalizeError(u *graph.UrlInfo, pluginName string, err error) error {
	return &FinalizeError{StageError: k.stageError(StageFinalize, ReasonPluginError, pluginName, u.URL(), k.traceOf(u), err)}
}

// traceOf returns the trace of the reference that introduced u.
func (k *Kitchen) traceOf(u *graph.UrlInfo) graph.Trace {
	if first := k.graph.FirstReference(u); first != nil {
		return first.Trace
	}
	if refs := k.graph.ReferencesFromOthers(u); len(refs) > 0 {
		return refs[0].Trace
	}
	return graph.Trace{URL: u.URL()}
}

// positionIn maps a position inside u to the document embedding it.
func (k *Kitchen) positionIn(u *graph.UrlInfo, line, column int) graph.Trace {
	site := u.InlineSite
	if site == nil {
		return graph.Trace{URL: u.URL(), Line: line, Column: column, CodeFrame: graph.CodeFrame(u.OriginalContent(), line, column)}
	}
	tr := graph.Trace{URL: site.OwnerURL, Line: site.Line + line - 1, Column: column}
	if line == 1 {
		tr.Column = site.Column + column - 1
	}
	if owner := k.graph.Get(site.OwnerURL); owner != nil {
		tr.CodeFrame = graph.CodeFrame(owner.OriginalContent(), tr.Line, tr.Column)
	}
	return tr
}

// firstPartyTrace walks first references upward from u until leaving
// node_modules.
func (k *Kitchen) firstPartyTrace(u string) *graph.Trace {
	seen := map[string]bool{}
	for !seen[u] {
		seen[u] = true
		node := k.graph.Get(u)
		if node == nil {
			return nil
		}
		first := k.graph.FirstReference(node)
		if first == nil {
			return nil
		}
		if !strings.Contains(first.Trace.URL, "/node_modules/") {
			tr := first.Trace
			return &tr
		}
		u = first.OwnerURL
	}
	return nil
}
