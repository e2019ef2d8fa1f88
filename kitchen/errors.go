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

package kitchen

import (
	"errors"
	"fmt"
	"strings"

	"bennypowers.dev/sous/graph"
)

// ErrSuperseded is the cancellation cause of a dev cook made obsolete by a
// newer modification of the same node.
var ErrSuperseded = errors.New("cook superseded by a newer modification")

// Stage names.
const (
	StageResolve   = "resolve"
	StageFetch     = "fetch"
	StageTransform = "transform"
	StageFinalize  = "finalize"
)

// Reason codes.
const (
	ReasonNoResolver       = "no_resolver"
	ReasonRedirectLoop     = "redirect_loop"
	ReasonNoContent        = "no_content"
	ReasonNotFound         = "not_found"
	ReasonPermissionDenied = "permission_denied"
	ReasonPluginError      = "plugin_error"
	ReasonSyntaxError      = "syntax_error"
)

// StageError carries the diagnostic context common to every pipeline
// failure.
type StageError struct {
	Stage  string
	Reason string
	// Plugin is the name of the plugin whose hook failed, if known.
	Plugin string
	URL    string
	// Trace points at the reference that led to URL.
	Trace graph.Trace
	// FirstPartyTrace is the closest reference outside node_modules, set
	// when Trace itself is inside third-party code.
	FirstPartyTrace *graph.Trace
	Err             error
}

func (e *StageError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s: %s", e.Stage, e.URL, e.Reason)
	if e.Plugin != "" {
		fmt.Fprintf(&b, " (plugin %s)", e.Plugin)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if e.Trace.URL != "" {
		fmt.Fprintf(&b, "\n  at %s", e.Trace)
	}
	if e.FirstPartyTrace != nil {
		fmt.Fprintf(&b, "\n  imported from %s", *e.FirstPartyTrace)
	}
	if e.Trace.CodeFrame != "" {
		b.WriteString("\n")
		b.WriteString(e.Trace.CodeFrame)
	}
	return b.String()
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// ResolutionError is returned when no plugin resolves a specifier.
type ResolutionError struct {
	StageError
	Specifier string
}

// FetchError is returned when no plugin produces content for a node.
type FetchError struct {
	StageError
	Status int
}

// IsNotFound reports whether the resource does not exist.
func (e *FetchError) IsNotFound() bool {
	return e.Reason == ReasonNotFound
}

// IsPermissionDenied reports whether the resource could not be read.
func (e *FetchError) IsPermissionDenied() bool {
	return e.Reason == ReasonPermissionDenied
}

// TransformError is returned when a transform hook fails. For inline
// content, Trace points into the embedding document.
type TransformError struct {
	StageError
}

// FinalizeError is returned when finalization fails.
type FinalizeError struct {
	StageError
}

// Stage returns the StageError inside err, if any.
func Stage(err error) (*StageError, bool) {
	var (
		re *ResolutionError
		fe *FetchError
		te *TransformError
		ze *FinalizeError
	)
	switch {
	case errors.As(err, &re):
		return &re.StageError, true
	case errors.As(err, &fe):
		return &fe.StageError, true
	case errors.As(err, &te):
		return &te.StageError, true
	case errors.As(err, &ze):
		return &ze.StageError, true
	}
	return nil, false
}
