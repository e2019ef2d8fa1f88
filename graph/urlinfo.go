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

package graph

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/url"
	"path"
	"slices"
	"sync"
	"time"

	"bennypowers.dev/sous/config"
)

// ErrContentLocked is returned when finalized content is mutated outside
// of a Refine window.
var ErrContentLocked = errors.New("content is locked")

// Content kinds assigned to UrlInfo.Type.
const (
	KindHTML        = "html"
	KindCSS         = "css"
	KindJSModule    = "js_module"
	KindJSClassic   = "js_classic"
	KindJSON        = "json"
	KindWebmanifest = "webmanifest"
	KindSourcemap   = "sourcemap"
	KindDirectory   = "directory"
	KindText        = "text"
	KindOther       = "other"
)

// HotState is the hot-module-replacement contract a node declares.
type HotState struct {
	AcceptSelf bool
	Decline    bool
	// AcceptDependencies lists absolute URLs this node accepts updates for.
	AcceptDependencies []string
}

// AcceptsDependency reports whether u is listed as an accepted dependency.
func (h HotState) AcceptsDependency(u string) bool {
	return slices.Contains(h.AcceptDependencies, u)
}

// UrlInfo is one resource in the graph, identified by its absolute URL.
// Content accessors are safe for concurrent use; edge sets are owned by
// the UrlGraph.
type UrlInfo struct {
	url string

	mu              sync.RWMutex
	originalContent []byte
	content         []byte
	contentHash     string
	parsed          any
	sourcemap       []byte
	locked          bool
	refining        bool

	Type        string
	Subtype     string
	ContentType string
	Status      int
	Headers     map[string]string

	IsEntryPoint bool
	IsInline     bool
	InlineSite   *InlineSite
	FilenameHint string
	Debug        bool

	Data map[string]any

	hot        HotState
	modifiedAt time.Time
	cookedAt   time.Time
	cooked     bool

	inlineContent     []byte
	inlineContentType string

	ctx *config.Context

	// guarded by the graph mutex
	refsToOthers   []ReferenceID
	refsFromOthers map[ReferenceID]struct{}
	firstReference ReferenceID
	dereferenced   bool
}

func newUrlInfo(u string, ctx *config.Context) *UrlInfo {
	return &UrlInfo{
		url:            u,
		ctx:            ctx,
		Data:           make(map[string]any),
		refsFromOthers: make(map[ReferenceID]struct{}),
	}
}

// URL returns the node identity.
func (u *UrlInfo) URL() string {
	return u.url
}

// Context returns the layered per-node configuration.
func (u *UrlInfo) Context() *config.Context {
	return u.ctx
}

// Filename returns the last path segment of the URL, or the filename hint.
func (u *UrlInfo) Filename() string {
	if u.FilenameHint != "" {
		return u.FilenameHint
	}
	parsed, err := url.Parse(u.url)
	if err != nil {
		return path.Base(u.url)
	}
	return path.Base(parsed.Path)
}

// Content returns the current content.
func (u *UrlInfo) Content() []byte {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.content
}

// OriginalContent returns the content as fetched, before any transform.
func (u *UrlInfo) OriginalContent() []byte {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.originalContent
}

// SetOriginalContent stores fetched content as both original and current.
func (u *UrlInfo) SetOriginalContent(content []byte) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.locked && !u.refining {
		return ErrContentLocked
	}
	u.originalContent = content
	u.setContentLocked(content)
	return nil
}

// SetContent replaces the current content and invalidates derived data.
func (u *UrlInfo) SetContent(content []byte) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.locked && !u.refining {
		return ErrContentLocked
	}
	u.setContentLocked(content)
	return nil
}

func (u *UrlInfo) setContentLocked(content []byte) {
	u.content = content
	u.contentHash = ""
	u.parsed = nil
}

// ResetContent clears content and derived data ahead of a re-cook.
func (u *UrlInfo) ResetContent() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.originalContent = nil
	u.content = nil
	u.contentHash = ""
	u.parsed = nil
	u.sourcemap = nil
	u.locked = false
	u.cooked = false
}

// ContentHash returns the hex sha256 of the current content, computed
// lazily and invalidated whenever the content changes.
func (u *UrlInfo) ContentHash() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.contentHash == "" {
		sum := sha256.Sum256(u.content)
		u.contentHash = hex.EncodeToString(sum[:])
	}
	return u.contentHash
}

// Parsed returns the parsed form cached for the current content, if any.
func (u *UrlInfo) Parsed() any {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.parsed
}

// SetParsed caches a parsed form of the current content.
func (u *UrlInfo) SetParsed(v any) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.parsed = v
}

// Sourcemap returns the sourcemap mapping current content to original.
func (u *UrlInfo) Sourcemap() []byte {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.sourcemap
}

// SetSourcemap stores the sourcemap for the current content.
func (u *UrlInfo) SetSourcemap(sm []byte) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.sourcemap = sm
}

// Lock freezes the content until the next ResetContent.
func (u *UrlInfo) Lock() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.locked = true
}

// Locked reports whether content is frozen.
func (u *UrlInfo) Locked() bool {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.locked
}

// Refine runs fn with the content lock lifted. Build steps that run after
// finalization (bundling, optimization, version substitution) go through
// here.
func (u *UrlInfo) Refine(fn func() error) error {
	u.mu.Lock()
	u.refining = true
	u.mu.Unlock()
	defer func() {
		u.mu.Lock()
		u.refining = false
		u.mu.Unlock()
	}()
	return fn()
}

// Hot returns the declared HMR state.
func (u *UrlInfo) Hot() HotState {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.hot
}

// SetHot replaces the declared HMR state.
func (u *UrlInfo) SetHot(h HotState) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.hot = h
}

// ModifiedAt returns the time of the last change notification.
func (u *UrlInfo) ModifiedAt() time.Time {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.modifiedAt
}

// MarkCooked records a completed cook for the given modification time.
func (u *UrlInfo) MarkCooked(at time.Time) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.cooked = true
	u.cookedAt = at
}

// IsFresh reports whether the node was cooked and has not changed since.
func (u *UrlInfo) IsFresh() bool {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.cooked && u.cookedAt.Equal(u.modifiedAt)
}

// IsCooked reports whether a cook has completed since the last reset.
func (u *UrlInfo) IsCooked() bool {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.cooked
}

// InlineContent returns the content provided by the embedding document.
func (u *UrlInfo) InlineContent() ([]byte, string) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.inlineContent, u.inlineContentType
}

func (u *UrlInfo) setInlineContent(content []byte, contentType string) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	changed := string(u.inlineContent) != string(content) || u.inlineContentType != contentType
	u.inlineContent = content
	u.inlineContentType = contentType
	return changed
}

// HasSearchParams reports whether the URL carries a query string.
func (u *UrlInfo) HasSearchParams() bool {
	parsed, err := url.Parse(u.url)
	return err == nil && parsed.RawQuery != ""
}

// IsJS reports whether the node holds a script.
func (u *UrlInfo) IsJS() bool {
	return u.Type == KindJSModule || u.Type == KindJSClassic
}
