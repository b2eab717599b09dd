package deployment

import (
	"encoding/json"
	"maps"
	"slices"
	"strings"
)

// LabelSet is a set of labels on an address book entry.
type LabelSet map[string]struct{}

// NewLabelSet initializes a new LabelSet with any number of labels. Without labels it returns
// nil, which is how an unlabelled entry is loaded back from JSON.
func NewLabelSet(labels ...string) LabelSet {
	if len(labels) == 0 {
		return nil
	}

	set := make(LabelSet, len(labels))
	set.Add(labels...)

	return set
}

// Add inserts one or more labels into the set.
func (s LabelSet) Add(labels ...string) {
	for _, l := range labels {
		s[l] = struct{}{}
	}
}

// Contains reports whether every one of labels is in the set.
func (s LabelSet) Contains(labels ...string) bool {
	for _, l := range labels {
		if _, ok := s[l]; !ok {
			return false
		}
	}

	return true
}

// List returns the labels sorted.
func (s LabelSet) List() []string {
	return slices.Sorted(maps.Keys(s))
}

// String returns the labels as a sorted, space-separated string.
func (s LabelSet) String() string {
	return strings.Join(s.List(), " ")
}

func (s LabelSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.List())
}

func (s *LabelSet) UnmarshalJSON(b []byte) error {
	var labels []string
	if err := json.Unmarshal(b, &labels); err != nil {
		return err
	}
	*s = NewLabelSet(labels...)

	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}
