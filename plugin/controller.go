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

package plugin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"bennypowers.dev/sous/config"
)

// Listener pairs a plugin with one of its hook functions.
type Listener[F any] struct {
	Plugin *Plugin
	Fn     F
}

// Controller dispatches hooks to the active plugins in registration order.
// It is immutable once built.
type Controller struct {
	mode      config.Mode
	plugins   []*Plugin
	teardowns []Teardown

	resolvers    []Listener[ResolveFunc]
	redirectors  []Listener[RedirectFunc]
	searchParams []Listener[SearchParamsFunc]
	formatters   []Listener[FormatFunc]
	fetchers     []Listener[ContentHook]
	transformers []Listener[ContentHook]
	finalizers   []Listener[ContentHook]
	optimizers   []Listener[ContentHook]
	bundlers     []Listener[map[string]BundleFunc]
	cooked       []Listener[CookedFunc]
}

// NewController filters plugins by mode, runs Init and then Effect, and
// indexes the hooks of the survivors.
func NewController(mode config.Mode, cfg *config.Config, logger *slog.Logger, plugins ...*Plugin) (*Controller, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Controller{mode: mode}
	ic := InitContext{Mode: mode, Config: cfg, Logger: logger}
	var candidates []*Plugin
	for _, p := range plugins {
		if p == nil {
			continue
		}
		if p.AppliesDuring != nil && !p.AppliesDuring(mode) {
			continue
		}
		if p.Init != nil {
			teardown, err := p.Init(ic)
			if errors.Is(err, ErrSkip) {
				logger.Debug("plugin skipped", "plugin", p.Name)
				continue
			}
			if err != nil {
				c.Close()
				return nil, fmt.Errorf("initializing plugin %s: %w", p.Name, err)
			}
			if teardown != nil {
				c.teardowns = append(c.teardowns, teardown)
			}
		}
		candidates = append(candidates, p)
	}
	names := make([]string, 0, len(candidates))
	for _, p := range candidates {
		names = append(names, p.Name)
	}
	for _, p := range candidates {
		if p.Effect != nil {
			others := slices.DeleteFunc(slices.Clone(names), func(n string) bool { return n == p.Name })
			if !p.Effect(others) {
				logger.Debug("plugin deactivated by effect", "plugin", p.Name)
				continue
			}
		}
		c.plugins = append(c.plugins, p)
	}
	c.index()
	return c, nil
}

func (c *Controller) index() {
	for _, p := range c.plugins {
		if p.ResolveReference != nil {
			c.resolvers = append(c.resolvers, Listener[ResolveFunc]{p, p.ResolveReference})
		}
		if p.RedirectReference != nil {
			c.redirectors = append(c.redirectors, Listener[RedirectFunc]{p, p.RedirectReference})
		}
		if p.TransformReferenceSearchParams != nil {
			c.searchParams = append(c.searchParams, Listener[SearchParamsFunc]{p, p.TransformReferenceSearchParams})
		}
		if p.FormatReference != nil {
			c.formatters = append(c.formatters, Listener[FormatFunc]{p, p.FormatReference})
		}
		if !p.FetchUrlContent.IsZero() {
			c.fetchers = append(c.fetchers, Listener[ContentHook]{p, p.FetchUrlContent})
		}
		if !p.TransformUrlContent.IsZero() {
			c.transformers = append(c.transformers, Listener[ContentHook]{p, p.TransformUrlContent})
		}
		if !p.FinalizeUrlContent.IsZero() {
			c.finalizers = append(c.finalizers, Listener[ContentHook]{p, p.FinalizeUrlContent})
		}
		if !p.OptimizeUrlContent.IsZero() {
			c.optimizers = append(c.optimizers, Listener[ContentHook]{p, p.OptimizeUrlContent})
		}
		if len(p.Bundle) > 0 {
			c.bundlers = append(c.bundlers, Listener[map[string]BundleFunc]{p, p.Bundle})
		}
		if p.Cooked != nil {
			c.cooked = append(c.cooked, Listener[CookedFunc]{p, p.Cooked})
		}
	}
}

// Mode returns the mode the controller was built for.
func (c *Controller) Mode() config.Mode { return c.mode }

// Plugins returns the active plugins in registration order.
func (c *Controller) Plugins() []*Plugin { return slices.Clone(c.plugins) }

// Names returns the names of the active plugins.
func (c *Controller) Names() []string {
	names := make([]string, len(c.plugins))
	for i, p := range c.plugins {
		names[i] = p.Name
	}
	return names
}

// Close runs the teardowns returned by Init, last first.
func (c *Controller) Close() {
	for i := len(c.teardowns) - 1; i >= 0; i-- {
		c.teardowns[i]()
	}
	c.teardowns = nil
}

func (c *Controller) Resolvers() []Listener[ResolveFunc] { return c.resolvers }
func (c *Controller) Redirectors() []Listener[RedirectFunc] { return c.redirectors }
func (c *Controller) SearchParams() []Listener[SearchParamsFunc] { return c.searchParams }
func (c *Controller) Formatters() []Listener[FormatFunc] { return c.formatters }
func (c *Controller) Cooked() []Listener[CookedFunc] { return c.cooked }
func (c *Controller) Bundlers() []Listener[map[string]BundleFunc] { return c.bundlers }

// Fetchers returns the fetch hooks applying to kind.
func (c *Controller) Fetchers(kind string) []Listener[ContentFunc] { return forKind(c.fetchers, kind) }

// Transformers returns the transform hooks applying to kind.
func (c *Controller) Transformers(kind string) []Listener[ContentFunc] {
	return forKind(c.transformers, kind)
}

// Finalizers returns the finalize hooks applying to kind.
func (c *Controller) Finalizers(kind string) []Listener[ContentFunc] {
	return forKind(c.finalizers, kind)
}

// Optimizers returns the optimize hooks applying to kind.
func (c *Controller) Optimizers(kind string) []Listener[ContentFunc] {
	return forKind(c.optimizers, kind)
}

func forKind(hooks []Listener[ContentHook], kind string) []Listener[ContentFunc] {
	var out []Listener[ContentFunc]
	for _, h := range hooks {
		if fn := h.Fn.For(kind); fn != nil {
			out = append(out, Listener[ContentFunc]{h.Plugin, fn})
		}
	}
	return out
}

// CallAll calls every listener in order, stopping at the first error.
func CallAll[F any](listeners []Listener[F], call func(F) error) error {
	for _, l := range listeners {
		if err := call(l.Fn); err != nil {
			return &HookError{Plugin: l.Plugin.Name, Err: err}
		}
	}
	return nil
}

// CallAllAsync is CallAll for hooks that block; ctx is checked between
// listeners.
func CallAllAsync[F any](ctx context.Context, listeners []Listener[F], call func(context.Context, F) error) error {
	for _, l := range listeners {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := call(ctx, l.Fn); err != nil {
			return &HookError{Plugin: l.Plugin.Name, Err: err}
		}
	}
	return nil
}

// CallFirst returns the result of the first listener reporting ok.
// The plugin is nil when no listener handled the call.
func CallFirst[F, R any](listeners []Listener[F], call func(F) (R, bool, error)) (R, *Plugin, error) {
	var zero R
	for _, l := range listeners {
		r, ok, err := call(l.Fn)
		if err != nil {
			return zero, l.Plugin, &HookError{Plugin: l.Plugin.Name, Err: err}
		}
		if ok {
			return r, l.Plugin, nil
		}
	}
	return zero, nil, nil
}

// CallFirstAsync is CallFirst for hooks that block.
func CallFirstAsync[F, R any](ctx context.Context, listeners []Listener[F], call func(context.Context, F) (R, bool, error)) (R, *Plugin, error) {
	var zero R
	for _, l := range listeners {
		if err := ctx.Err(); err != nil {
			return zero, nil, err
		}
		r, ok, err := call(ctx, l.Fn)
		if err != nil {
			return zero, l.Plugin, &HookError{Plugin: l.Plugin.Name, Err: err}
		}
		if ok {
			return r, l.Plugin, nil
		}
	}
	return zero, nil, nil
}

// HookError attributes an error to the plugin whose hook returned it.
type HookError struct {
	Plugin string
	Err    error
}

func (e *HookError) Error() string {
	return fmt.Sprintf("plugin %s: %v", e.Plugin, e.Err)
}

func (e *HookError) Unwrap() error {
	return e.Err
}
