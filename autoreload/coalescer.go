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

package autoreload

import (
	"slices"
	"sync"
	"time"
)

// Message is what the dev client receives for a batch of changes.
type Message struct {
	Type       string     `json:"type"`
	Reason     string     `json:"reason,omitempty"`
	Decliner   string     `json:"decliner,omitempty"`
	Changed    []string   `json:"changed"`
	Boundaries []Boundary `json:"boundaries,omitempty"`
}

// Message types.
const (
	MessageReload = "reload"
	MessageUpdate = "update"
)

// Merge folds the result of one more change into m. A reload wins over
// any number of updates; the first reload keeps its reason.
func (m Message) Merge(changed string, r Result) Message {
	if !slices.Contains(m.Changed, changed) {
		m.Changed = append(slices.Clone(m.Changed), changed)
	}
	if m.Type == MessageReload {
		return m
	}
	if r.Reload {
		m.Type = MessageReload
		m.Reason = r.Reason
		m.Decliner = r.Decliner
		m.Boundaries = nil
		return m
	}
	m.Type = MessageUpdate
	boundaries := slices.Clone(m.Boundaries)
	for _, b := range r.Boundaries {
		if !slices.Contains(boundaries, b) {
			boundaries = append(boundaries, b)
		}
	}
	m.Boundaries = boundaries
	return m
}

// Coalescer batches results arriving within a short window into a single
// message.
type Coalescer struct {
	window time.Duration
	emit   func(Message)

	mu      sync.Mutex
	pending *Message
	timer   *time.Timer
}

// NewCoalescer returns a coalescer calling emit once per batch.
func NewCoalescer(window time.Duration, emit func(Message)) *Coalescer {
	return &Coalescer{window: window, emit: emit}
}

// Add records the result for one changed URL. The first result of a batch
// starts the window.
func (c *Coalescer) Add(changed string, r Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == nil {
		c.pending = &Message{}
		c.timer = time.AfterFunc(c.window, c.Flush)
	}
	merged := c.pending.Merge(changed, r)
	c.pending = &merged
}

// Flush emits the pending batch right away, if any.
func (c *Coalescer) Flush() {
	c.mu.Lock()
	pending := c.pending
	c.pending = nil
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.mu.Unlock()
	if pending != nil {
		c.emit(*pending)
	}
}

// Stop drops any pending batch.
func (c *Coalescer) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timer != nil {
		c.timer.Stop()
	}
	c.pending = nil
	c.timer = nil
}
