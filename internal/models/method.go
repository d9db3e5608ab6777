package models

import (
	"fmt"
	"sort"
	"strings"
)

// Method is the out-of-band channel a settlement was paid through.
type Method string

const (
	MethodUPI  Method = "UPI"
	MethodCash Method = "Cash"
)

// DefaultMethods is the method set used when none is configured.
var DefaultMethods = []Method{MethodUPI, MethodCash}

// MethodSet is a closed set of accepted settlement methods. New methods are
// added by configuration; validation always goes through Parse.
type MethodSet struct {
	methods map[Method]struct{}
}

// NewMethodSet builds a set from the given methods. Blank names are rejected.
func NewMethodSet(methods ...Method) (MethodSet, error) {
	set := MethodSet{methods: make(map[Method]struct{}, len(methods))}
	for _, m := range methods {
		name := strings.TrimSpace(string(m))
		if name == "" {
			return MethodSet{}, fmt.Errorf("settlement method name must not be blank")
		}
		set.methods[Method(name)] = struct{}{}
	}
	if len(set.methods) == 0 {
		return MethodSet{}, fmt.Errorf("at least one settlement method is required")
	}
	return set, nil
}

// ParseMethodList parses a comma separated list such as "UPI,Cash".
func ParseMethodList(s string) (MethodSet, error) {
	var methods []Method
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			methods = append(methods, Method(part))
		}
	}
	return NewMethodSet(methods...)
}

// Parse returns the Method named s, or an error if s is not in the set.
// Matching is exact.
func (s MethodSet) Parse(name string) (Method, error) {
	m := Method(name)
	if _, ok := s.methods[m]; !ok {
		return "", fmt.Errorf("unknown payment method %q", name)
	}
	return m, nil
}

// Methods returns the set members sorted by name.
func (s MethodSet) Methods() []Method {
	out := make([]Method, 0, len(s.methods))
	for m := range s.methods {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
