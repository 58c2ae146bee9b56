package upload

// Remove returns a copy of collection without the first entry equal to reference.
// A reference that is not present leaves the collection unchanged.
func Remove(collection []string, reference string) []string {
	for i, entry := range collection {
		if entry == reference {
			return RemoveAt(collection, i)
		}
	}
	return append([]string(nil), collection...)
}

// RemoveAt returns a copy of collection without the entry at index.
// Out-of-range indexes are ignored.
func RemoveAt(collection []string, index int) []string {
	out := make([]string, 0, len(collection))
	for i, entry := range collection {
		if i != index {
			out = append(out, entry)
		}
	}
	return out
}
