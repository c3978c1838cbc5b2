package server

import (
	"maps"
	"net/url"
	"slices"
)

// ParameterSet is an immutable mapping from parameter name to a single value.
// The zero value is an empty set.
type ParameterSet struct {
	values map[string]string
}

// FlattenParameters reduces multi-valued form parameters to one value per name.
// The first value wins; names with no values are dropped.
func FlattenParameters(raw url.Values) ParameterSet {
	values := make(map[string]string, len(raw))
	for name, vs := range raw {
		if len(vs) == 0 {
			continue
		}
		values[name] = vs[0]
	}
	return ParameterSet{values: values}
}

// NewParameterSet copies m into a ParameterSet.
func NewParameterSet(m map[string]string) ParameterSet {
	return ParameterSet{values: maps.Clone(m)}
}

// Get returns the value for name, or "" when absent.
func (p ParameterSet) Get(name string) string {
	return p.values[name]
}

// Has reports whether name is present, even with an empty value.
func (p ParameterSet) Has(name string) bool {
	_, ok := p.values[name]
	return ok
}

func (p ParameterSet) Len() int {
	return len(p.values)
}

// Names returns the parameter names in sorted order.
func (p ParameterSet) Names() []string {
	return slices.Sorted(maps.Keys(p.values))
}

// Map returns a copy of the parameters.
func (p ParameterSet) Map() map[string]string {
	m := maps.Clone(p.values)
	if m == nil {
		m = map[string]string{}
	}
	return m
}
