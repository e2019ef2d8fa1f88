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
	"maps"
	"sort"

	"github.com/masterminds/semver"
)

// Feature names known to the runtime compatibility matrix.
const (
	FeatureImportMap     = "importmap"
	FeatureModuleScripts = "script_type_module"
	FeatureImportDynamic = "import_dynamic"
	FeatureImportMeta    = "import_meta"
)

// Features maps a feature to the minimum version of each runtime that
// supports it. A runtime missing from a feature's row does not support it.
var Features = map[string]map[string]string{
	FeatureImportMap: {
		"chrome":  "89",
		"edge":    "89",
		"firefox": "108",
		"safari":  "16.4",
		"node":    "0",
	},
	FeatureModuleScripts: {
		"chrome":  "61",
		"edge":    "16",
		"firefox": "60",
		"safari":  "10.1",
	},
	FeatureImportDynamic: {
		"chrome":  "63",
		"edge":    "79",
		"firefox": "67",
		"safari":  "11.3",
		"node":    "13.2",
	},
	FeatureImportMeta: {
		"chrome":  "64",
		"edge":    "79",
		"firefox": "62",
		"safari":  "11.1",
		"node":    "10.4",
	},
}

func parseRuntimeVersion(v string) (*semver.Version, error) {
	version, err := semver.NewVersion(v)
	if err != nil {
		return nil, fmt.Errorf("invalid version %q: %w", v, err)
	}
	return version, nil
}

// Supports reports whether every runtime in compat supports feature.
// An empty compat map means "latest of everything".
func Supports(compat map[string]string, feature string) bool {
	row, ok := Features[feature]
	if !ok {
		return false
	}
	runtimes := make([]string, 0, len(compat))
	for name := range compat {
		runtimes = append(runtimes, name)
	}
	sort.Strings(runtimes)
	for _, name := range runtimes {
		minimum, ok := row[name]
		if !ok {
			return false
		}
		have, err := parseRuntimeVersion(compat[name])
		if err != nil {
			return false
		}
		need, err := parseRuntimeVersion(minimum)
		if err != nil {
			return false
		}
		if have.LessThan(need) {
			return false
		}
	}
	return true
}

// Context is the per-node configuration. Nodes inherit the context of the
// node that discovered them; isolated contexts (workers) carry overrides
// instead of delegating to a parent.
type Context struct {
	base          *Config
	runtimeCompat map[string]string
	isolated      bool
}

// NewContext creates the root context for cfg.
func NewContext(cfg *Config) *Context {
	return &Context{base: cfg}
}

// Config returns the shared configuration underneath the overrides.
func (c *Context) Config() *Config {
	return c.base
}

// WithRuntimeCompat returns a copy of c whose runtime matrix is compat.
func (c *Context) WithRuntimeCompat(compat map[string]string) *Context {
	next := *c
	next.runtimeCompat = maps.Clone(compat)
	return &next
}

// WithIsolated returns a copy of c marked as an isolated execution context.
func (c *Context) WithIsolated(isolated bool) *Context {
	next := *c
	next.isolated = isolated
	return &next
}

// RuntimeCompat returns the effective runtime matrix.
func (c *Context) RuntimeCompat() map[string]string {
	if c.runtimeCompat != nil {
		return c.runtimeCompat
	}
	if c.base == nil {
		return nil
	}
	return c.base.RuntimeCompat
}

// Isolated reports whether the node runs in its own global scope, such as
// a worker, where an import map injected into the page does not apply.
func (c *Context) Isolated() bool {
	return c.isolated
}

// Supports reports whether the effective runtimes support feature.
func (c *Context) Supports(feature string) bool {
	return Supports(c.RuntimeCompat(), feature)
}
