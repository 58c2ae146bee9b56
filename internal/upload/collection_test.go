package upload

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRemove(t *testing.T) {
	tests := []struct {
		name       string
		collection []string
		reference  string
		expected   []string
	}{
		{
			name:       "Removes matching entry and keeps order",
			collection: []string{"a", "b", "c"},
			reference:  "b",
			expected:   []string{"a", "c"},
		},
		{
			name:       "Absent reference is a no-op",
			collection: []string{"a", "b"},
			reference:  "z",
			expected:   []string{"a", "b"},
		},
		{
			name:       "Duplicate removes first match only",
			collection: []string{"x", "a", "y", "a"},
			reference:  "a",
			expected:   []string{"x", "y", "a"},
		},
		{
			name:       "Last entry",
			collection: []string{"a"},
			reference:  "a",
			expected:   []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := append([]string(nil), tt.collection...)

			result := Remove(tt.collection, tt.reference)

			assert.Equal(t, tt.expected, result)
			assert.Equal(t, before, tt.collection, "input must not be mutated")
		})
	}
}

func TestRemove_Empty(t *testing.T) {
	assert.Empty(t, Remove(nil, "a"))
}

func TestRemoveAt(t *testing.T) {
	collection := []string{"a", "b", "c"}

	assert.Equal(t, []string{"b", "c"}, RemoveAt(collection, 0))
	assert.Equal(t, []string{"a", "b"}, RemoveAt(collection, 2))
	assert.Equal(t, []string{"a", "b", "c"}, RemoveAt(collection, 3))
	assert.Equal(t, []string{"a", "b", "c"}, RemoveAt(collection, -1))
	assert.Equal(t, []string{"a", "b", "c"}, collection)
}
