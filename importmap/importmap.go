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

// Package importmap provides types and operations for ES module import maps.
// See https://developer.mozilla.org/en-US/docs/Web/HTML/Element/script/type/importmap
package importmap

import (
	"maps"

	json "github.com/goccy/go-json"
)

// ImportMap represents an ES module import map.
type ImportMap struct {
	// Imports maps module specifiers to URLs.
	Imports map[string]string `json:"imports,omitempty"`

	// Scopes maps URL prefixes to import maps that apply when the referrer
	// URL starts with the scope prefix.
	Scopes map[string]map[string]string `json:"scopes,omitempty"`

	// Integrity maps module URLs to their expected subresource integrity values.
	Integrity map[string]string `json:"integrity,omitempty"`
}

// Parse parses JSON data into an ImportMap.
func Parse(data []byte) (*ImportMap, error) {
	var im ImportMap
	if err := json.Unmarshal(data, &im); err != nil {
		return nil, err
	}
	return &im, nil
}

// Set maps specifier to target in the top-level imports.
func (im *ImportMap) Set(specifier, target string) {
	if im.Imports == nil {
		im.Imports = make(map[string]string)
	}
	im.Imports[specifier] = target
}

// SetScoped maps specifier to target for referrers below scope.
func (im *ImportMap) SetScoped(scope, specifier, target string) {
	if im.Scopes == nil {
		im.Scopes = make(map[string]map[string]string)
	}
	if im.Scopes[scope] == nil {
		im.Scopes[scope] = make(map[string]string)
	}
	im.Scopes[scope][specifier] = target
}

// IsEmpty reports whether the map has no entries.
func (im *ImportMap) IsEmpty() bool {
	return im == nil || (len(im.Imports) == 0 && len(im.Scopes) == 0 && len(im.Integrity) == 0)
}

// Merge combines this import map with another, with the other taking precedence.
// The result is a new ImportMap; neither input is modified.
func (im *ImportMap) Merge(other *ImportMap) *ImportMap {
	if im == nil {
		if other == nil {
			return &ImportMap{}
		}
		return other.Clone()
	}
	if other == nil {
		return im.Clone()
	}

	result := im.Clone()
	for specifier, target := range other.Imports {
		result.Set(specifier, target)
	}
	for scope, imports := range other.Scopes {
		for specifier, target := range imports {
			result.SetScoped(scope, specifier, target)
		}
	}
	if len(other.Integrity) > 0 {
		if result.Integrity == nil {
			result.Integrity = make(map[string]string, len(other.Integrity))
		}
		maps.Copy(result.Integrity, other.Integrity)
	}
	return result
}

// Clone creates a deep copy of the import map.
func (im *ImportMap) Clone() *ImportMap {
	if im == nil {
		return nil
	}
	result := &ImportMap{
		Imports:   maps.Clone(im.Imports),
		Integrity: maps.Clone(im.Integrity),
	}
	if im.Scopes != nil {
		result.Scopes = make(map[string]map[string]string, len(im.Scopes))
		for scope, imports := range im.Scopes {
			result.Scopes[scope] = maps.Clone(imports)
		}
	}
	return result
}

// ToJSON converts the import map to an indented JSON string with sorted
// keys. Returns an empty string if the import map is nil or entirely empty.
func (im *ImportMap) ToJSON() string {
	if im.IsEmpty() {
		return ""
	}
	bytes, err := json.MarshalIndent(im, "", "  ")
	if err != nil {
		return ""
	}
	return string(bytes)
}
