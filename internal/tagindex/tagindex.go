// Package tagindex maps tags to the set of keys carrying them.
//
// Like tracker, an Index relies on its owner for synchronization.
package tagindex

import "sort"

type Index struct {
	byTag map[string]map[string]struct{}
}

func New() *Index {
	return &Index{byTag: make(map[string]map[string]struct{})}
}

func (x *Index) Add(tag, key string) {
	keys, ok := x.byTag[tag]
	if !ok {
		keys = make(map[string]struct{})
		x.byTag[tag] = keys
	}
	keys[key] = struct{}{}
}

// Remove drops key from tag. A tag left without keys is removed entirely.
func (x *Index) Remove(tag, key string) {
	keys, ok := x.byTag[tag]
	if !ok {
		return
	}
	delete(keys, key)
	if len(keys) == 0 {
		delete(x.byTag, tag)
	}
}

// Keys returns a sorted copy of the keys under tag (nil for unknown tags).
func (x *Index) Keys(tag string) []string {
	keys, ok := x.byTag[tag]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(keys))
	for k := range keys {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (x *Index) Has(tag, key string) bool {
	_, ok := x.byTag[tag][key]
	return ok
}

// Tags returns the number of tags with at least one key.
func (x *Index) Tags() int { return len(x.byTag) }
