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

// Package config holds the shared build and dev configuration for sous.
package config

import (
	"errors"
	"fmt"
	"maps"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Mode selects which of the two pipelines is running.
type Mode string

const (
	ModeDev   Mode = "dev"
	ModeBuild Mode = "build"
)

// SourcemapMode controls how sourcemaps are materialized.
type SourcemapMode string

const (
	SourcemapsNone   SourcemapMode = "none"
	SourcemapsInline SourcemapMode = "inline"
	SourcemapsFile   SourcemapMode = "file"
)

// VersioningMethod selects where a version string is placed.
type VersioningMethod string

const (
	// VersionInFilename produces "app-<version>.js".
	VersionInFilename VersioningMethod = "filename"
	// VersionInSearchParam produces "app.js?v=<version>".
	VersionInSearchParam VersioningMethod = "search_param"
)

// DirectoryPolicy decides what happens when a reference points to a directory.
type DirectoryPolicy string

const (
	DirectoriesError    DirectoryPolicy = "error"
	DirectoriesPreserve DirectoryPolicy = "preserve"
)

// Versioning configures build-time content-hash versioning.
type Versioning struct {
	Enabled bool             `mapstructure:"enabled"`
	Method  VersioningMethod `mapstructure:"method"`
	// ViaImportmap lets js imports stay unversioned when the runtime
	// supports import maps, moving the version into a generated map.
	ViaImportmap bool `mapstructure:"viaImportmap"`
	Length       int  `mapstructure:"length"`
}

// KindOptions overrides settings for one content kind (e.g. "css").
type KindOptions struct {
	Versioning *bool         `mapstructure:"versioning"`
	Sourcemaps SourcemapMode `mapstructure:"sourcemaps"`
}

// Config is the configuration shared by the kitchen, build and dev session.
type Config struct {
	RootDirectory  string                 `mapstructure:"rootDirectory"`
	BuildDirectory string                 `mapstructure:"buildDirectory"`
	DebugDirectory string                 `mapstructure:"debugDirectory"`
	Base           string                 `mapstructure:"base"`
	EntryPoints    []string               `mapstructure:"entryPoints"`
	RuntimeCompat  map[string]string      `mapstructure:"runtimeCompat"`
	Versioning     Versioning             `mapstructure:"versioning"`
	Sourcemaps     SourcemapMode          `mapstructure:"sourcemaps"`
	Directories    DirectoryPolicy        `mapstructure:"directories"`
	Kinds          map[string]KindOptions `mapstructure:"kinds"`
}

// DefaultRuntimeCompat is used when no runtime compatibility is configured.
var DefaultRuntimeCompat = map[string]string{
	"chrome":  "64",
	"edge":    "79",
	"firefox": "67",
	"safari":  "11.3",
}

// Default returns a configuration with every default applied.
func Default() *Config {
	return &Config{
		BuildDirectory: "dist",
		Base:           "/",
		EntryPoints:    []string{"index.html"},
		RuntimeCompat:  maps.Clone(DefaultRuntimeCompat),
		Versioning: Versioning{
			Enabled:      true,
			Method:       VersionInFilename,
			ViaImportmap: true,
			Length:       8,
		},
		Sourcemaps:  SourcemapsNone,
		Directories: DirectoriesError,
	}
}

// SetDefaults registers defaults on v so that Unmarshal fills unset keys.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("buildDirectory", d.BuildDirectory)
	v.SetDefault("base", d.Base)
	v.SetDefault("entryPoints", d.EntryPoints)
	v.SetDefault("runtimeCompat", d.RuntimeCompat)
	v.SetDefault("versioning.enabled", d.Versioning.Enabled)
	v.SetDefault("versioning.method", string(d.Versioning.Method))
	v.SetDefault("versioning.viaImportmap", d.Versioning.ViaImportmap)
	v.SetDefault("versioning.length", d.Versioning.Length)
	v.SetDefault("sourcemaps", string(d.Sourcemaps))
	v.SetDefault("directories", string(d.Directories))
}

// Load reads the optional sous.{yaml,json,toml} file in rootDir through v,
// so values bound from flags take precedence over the file.
func Load(v *viper.Viper, rootDir string) (*Config, error) {
	if v == nil {
		v = viper.New()
	}
	SetDefaults(v)
	v.SetConfigName("sous")
	v.AddConfigPath(rootDir)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if cfg.RootDirectory == "" {
		cfg.RootDirectory = rootDir
	}
	abs, err := filepath.Abs(cfg.RootDirectory)
	if err != nil {
		return nil, err
	}
	cfg.RootDirectory = abs
	return cfg, cfg.Validate()
}

// Validate reports configuration values that cannot be honored.
func (c *Config) Validate() error {
	var errs []error
	switch c.Versioning.Method {
	case VersionInFilename, VersionInSearchParam, "":
	default:
		errs = append(errs, fmt.Errorf("unknown versioning method %q", c.Versioning.Method))
	}
	switch c.Sourcemaps {
	case SourcemapsNone, SourcemapsInline, SourcemapsFile, "":
	default:
		errs = append(errs, fmt.Errorf("unknown sourcemaps mode %q", c.Sourcemaps))
	}
	if c.Versioning.Length < 0 || c.Versioning.Length > 64 {
		errs = append(errs, fmt.Errorf("versioning length %d out of range", c.Versioning.Length))
	}
	for runtime, version := range c.RuntimeCompat {
		if _, err := parseRuntimeVersion(version); err != nil {
			errs = append(errs, fmt.Errorf("runtimeCompat %s: %w", runtime, err))
		}
	}
	return errors.Join(errs...)
}

// RootURL returns the file URL of the root directory, with a trailing slash.
func (c *Config) RootURL() string {
	return DirectoryURL(c.RootDirectory)
}

// BasePath returns Base normalized to start and end with a slash.
func (c *Config) BasePath() string {
	base := c.Base
	if base == "" {
		return "/"
	}
	if !strings.HasPrefix(base, "/") && !strings.Contains(base, "://") {
		base = "/" + base
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return base
}

// VersioningFor reports whether nodes of the given kind get versioned.
func (c *Config) VersioningFor(kind string) bool {
	if opts, ok := c.Kinds[kind]; ok && opts.Versioning != nil {
		return *opts.Versioning
	}
	return c.Versioning.Enabled
}

// SourcemapsFor returns the sourcemap mode for the given kind.
func (c *Config) SourcemapsFor(kind string) SourcemapMode {
	if opts, ok := c.Kinds[kind]; ok && opts.Sourcemaps != "" {
		return opts.Sourcemaps
	}
	if c.Sourcemaps == "" {
		return SourcemapsNone
	}
	return c.Sourcemaps
}

// FileURL converts an absolute filesystem path to a file URL.
func FileURL(p string) string {
	p = filepath.ToSlash(p)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return (&url.URL{Scheme: "file", Path: p}).String()
}

// DirectoryURL is FileURL with a trailing slash.
func DirectoryURL(p string) string {
	u := FileURL(p)
	if !strings.HasSuffix(u, "/") {
		u += "/"
	}
	return u
}

// URLToPath converts a file URL back to a filesystem path.
// It returns false for any other scheme.
func URLToPath(raw string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "file" {
		return "", false
	}
	return filepath.FromSlash(path.Clean(u.Path)), true
}
