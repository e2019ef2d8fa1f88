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

package remote

import (
	"context"
	"slices"
	"sync"
)

// Cache keeps the bodies of fetched URLs, evicting the oldest entry once
// maxSize is reached. Failed loads are not kept.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry
	order   []string
	maxSize int
}

type cacheEntry struct {
	once sync.Once
	body []byte
	err  error
}

// NewCache creates a cache holding at most maxSize bodies (default 100).
func NewCache(maxSize int) *Cache {
	if maxSize <= 0 {
		maxSize = 100
	}
	return &Cache{
		entries: make(map[string]*cacheEntry),
		order:   make([]string, 0, maxSize),
		maxSize: maxSize,
	}
}

// GetOrLoad returns the cached body of url or loads it. Concurrent callers
// for the same url share one load.
func (c *Cache) GetOrLoad(ctx context.Context, url string, load func(context.Context, string) ([]byte, error)) ([]byte, error) {
	c.mu.Lock()
	entry, ok := c.entries[url]
	if !ok {
		entry = &cacheEntry{}
		if len(c.entries) >= c.maxSize {
			oldest := c.order[0]
			c.order = c.order[1:]
			delete(c.entries, oldest)
		}
		c.entries[url] = entry
		c.order = append(c.order, url)
	}
	c.mu.Unlock()

	entry.once.Do(func() {
		entry.body, entry.err = load(ctx, url)
	})
	if entry.err != nil {
		c.forget(url, entry)
		return nil, entry.err
	}
	return entry.body, nil
}

func (c *Cache) forget(url string, entry *cacheEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entries[url] != entry {
		return
	}
	delete(c.entries, url)
	if i := slices.Index(c.order, url); i >= 0 {
		c.order = slices.Delete(c.order, i, i+1)
	}
}

// Invalidate drops url from the cache.
func (c *Cache) Invalidate(url string) {
	c.mu.Lock()
	entry := c.entries[url]
	c.mu.Unlock()
	if entry != nil {
		c.forget(url, entry)
	}
}

// Len returns the number of cached bodies.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
