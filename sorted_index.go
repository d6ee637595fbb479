package phoenix

import "github.com/eljojo/phoenix/types"

// IndexEntry is one (timestamp, key) pair of a SortedIndex.
type IndexEntry struct {
	TS  int64        `json:"ts"`
	Key types.MsgKey `json:"key"`
}

// SortedIndex keeps message keys ordered newest first (non-increasing TS).
// Keys are unique. It is not safe for concurrent use; State guards it.
type SortedIndex struct {
	entries []IndexEntry
	keys    map[types.MsgKey]struct{}
}

// NewSortedIndex creates an empty index.
func NewSortedIndex() *SortedIndex {
	return &SortedIndex{keys: make(map[types.MsgKey]struct{})}
}

// Insert places key before the first entry whose timestamp is <= ts.
// Returns false if the key is already indexed.
func (idx *SortedIndex) Insert(ts int64, key types.MsgKey) bool {
	if _, ok := idx.keys[key]; ok {
		return false
	}
	idx.keys[key] = struct{}{}

	pos := len(idx.entries)
	for i, e := range idx.entries {
		if e.TS <= ts {
			pos = i
			break
		}
	}

	idx.entries = append(idx.entries, IndexEntry{})
	copy(idx.entries[pos+1:], idx.entries[pos:])
	idx.entries[pos] = IndexEntry{TS: ts, Key: key}
	return true
}

// Contains reports whether key has been indexed.
func (idx *SortedIndex) Contains(key types.MsgKey) bool {
	_, ok := idx.keys[key]
	return ok
}

// Len returns the number of indexed keys.
func (idx *SortedIndex) Len() int {
	return len(idx.entries)
}

// Slice returns a copy of the keys in [start, end), clamped to the index bounds.
func (idx *SortedIndex) Slice(start, end int) []types.MsgKey {
	if start < 0 {
		start = 0
	}
	if end > len(idx.entries) {
		end = len(idx.entries)
	}
	if start >= end {
		return []types.MsgKey{}
	}

	out := make([]types.MsgKey, 0, end-start)
	for _, e := range idx.entries[start:end] {
		out = append(out, e.Key)
	}
	return out
}

// Entries returns a copy of every entry, newest first.
func (idx *SortedIndex) Entries() []IndexEntry {
	out := make([]IndexEntry, len(idx.entries))
	copy(out, idx.entries)
	return out
}
