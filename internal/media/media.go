// Package media duplicates the binary assets referenced from file and media
// columns. Asset metadata is the decoded JSON stored in the column: either a
// single locator or a bundle of named variants (original, large, thumbnail)
// each carrying its own locator.
package media

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Metadata is the decoded locator document of one asset column.
type Metadata = map[string]any

// Request describes one asset copy. Owner ids are the owning project (or
// root) before and after cloning; asset ids are the row ids.
type Request struct {
	Table      string
	Column     string
	OldOwnerID int64
	NewOwnerID int64
	OldAssetID int64
	NewAssetID int64
	Metadata   Metadata
}

// Variant selects which duplicator handles an asset.
type Variant int

const (
	VariantNone Variant = iota
	VariantLocal
	VariantRemote
)

func (v Variant) String() string {
	switch v {
	case VariantLocal:
		return "local"
	case VariantRemote:
		return "remote"
	default:
		return "none"
	}
}

// Locator field names, compared case-insensitively.
var (
	remoteKeyFields = []string{"s3_key", "object_key"}
	filenameField   = "filename"
	volumeField     = "volume"
	hashField       = "hash"
	magicField      = "magic"
	mimeFields      = []string{"mimetype", "mime_type", "content_type"}
)

// Classify inspects the whole metadata tree, nested variants included. A
// remote key anywhere wins; otherwise a filename means a local asset.
func Classify(md Metadata) Variant {
	if md == nil {
		return VariantNone
	}
	if hasField(md, remoteKeyFields...) {
		return VariantRemote
	}
	if hasField(md, filenameField) {
		return VariantLocal
	}
	return VariantNone
}

func hasField(v any, names ...string) bool {
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			for _, n := range names {
				if strings.EqualFold(k, n) {
					return true
				}
			}
			if hasField(child, names...) {
				return true
			}
		}
	case []any:
		for _, child := range t {
			if hasField(child, names...) {
				return true
			}
		}
	}
	return false
}

// field returns the actual key and string value of the first name present in
// m.
func field(m map[string]any, names ...string) (string, string, bool) {
	for k, v := range m {
		for _, n := range names {
			if strings.EqualFold(k, n) {
				s, ok := v.(string)
				return k, s, ok && s != ""
			}
		}
	}
	return "", "", false
}

type variantRef struct {
	name string
	loc  map[string]any
	drop func()
}

// variants lists every locator map of an asset, the top level and nested
// maps at any depth. The top-level locator is named single; nested ones are
// named by their key path joined with "_". Names are unique and the order is
// stable.
func variants(md Metadata, single string, locatorFields ...string) []variantRef {
	var out []variantRef
	used := make(map[string]bool)
	add := func(name string, loc map[string]any, drop func()) {
		base := name
		for i := 2; used[name]; i++ {
			name = fmt.Sprintf("%s_%d", base, i)
		}
		used[name] = true
		out = append(out, variantRef{name: name, loc: loc, drop: drop})
	}
	if _, _, ok := field(md, locatorFields...); ok {
		add(single, md, func() {
			for _, f := range append([]string{volumeField, hashField, magicField}, locatorFields...) {
				if k := keyLike(md, f, ""); k != "" {
					delete(md, k)
				}
			}
		})
	}
	var walk func(v any, path []string, drop func())
	walk = func(v any, path []string, drop func()) {
		switch t := v.(type) {
		case map[string]any:
			if len(path) > 0 {
				if _, _, ok := field(t, locatorFields...); ok {
					add(variantName(path), t, drop)
				}
			}
			keys := make([]string, 0, len(t))
			for k := range t {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				k := k
				walk(t[k], append(path[:len(path):len(path)], k), func() { delete(t, k) })
			}
		case []any:
			for i := range t {
				i := i
				walk(t[i], append(path[:len(path):len(path)], strconv.Itoa(i)), func() { t[i] = nil })
			}
		}
	}
	walk(md, nil, nil)
	return out
}

// variantName joins a key path into a name safe for object keys and file
// names.
func variantName(path []string) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			return r
		default:
			return '_'
		}
	}, strings.Join(path, "_"))
	return strings.ToLower(name)
}

// keyLike returns the existing spelling of name in m, or def.
func keyLike(m map[string]any, name, def string) string {
	for k := range m {
		if strings.EqualFold(k, name) {
			return k
		}
	}
	return def
}

func cloneTree(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			out[k] = cloneTree(child)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, child := range t {
			out[i] = cloneTree(child)
		}
		return out
	default:
		return v
	}
}

func cloneMetadata(md Metadata) Metadata {
	if md == nil {
		return nil
	}
	return cloneTree(md).(map[string]any)
}
