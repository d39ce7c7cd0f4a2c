package scenario

import (
	"fmt"
	"strings"

	"github.com/kuitang/modulista-e2e/internal/errs"
)

// SelectAll is the selection argument meaning "every scenario in the set".
const SelectAll = "all"

// Set is an ordered collection of scenarios with unique names.
type Set struct {
	list  []Scenario
	index map[string]int
}

// NewSet builds a set in the given order.
func NewSet(scenarios ...Scenario) (*Set, error) {
	s := &Set{index: make(map[string]int, len(scenarios))}
	for _, sc := range scenarios {
		if err := s.Add(sc); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Add appends sc. Names must be unique within the set.
func (s *Set) Add(sc Scenario) error {
	if s.index == nil {
		s.index = make(map[string]int)
	}
	if _, exists := s.index[sc.Name]; exists {
		return errs.New(errs.InvalidScenario, fmt.Sprintf("duplicate scenario name %q", sc.Name))
	}
	s.index[sc.Name] = len(s.list)
	s.list = append(s.list, sc)
	return nil
}

// Lookup returns the scenario called name.
func (s *Set) Lookup(name string) (Scenario, bool) {
	i, ok := s.index[name]
	if !ok {
		return Scenario{}, false
	}
	return s.list[i], true
}

// Select returns the named scenarios in the order given. No names, or the
// single name "all", selects every scenario in declaration order.
func (s *Set) Select(names ...string) ([]Scenario, error) {
	if len(names) == 0 || (len(names) == 1 && names[0] == SelectAll) {
		return s.All(), nil
	}
	out := make([]Scenario, 0, len(names))
	var unknown []string
	for _, name := range names {
		sc, ok := s.Lookup(name)
		if !ok {
			unknown = append(unknown, name)
			continue
		}
		out = append(out, sc)
	}
	if len(unknown) > 0 {
		return nil, errs.New(errs.InvalidScenario, fmt.Sprintf("unknown scenario(s): %s (available: %s)",
			strings.Join(unknown, ", "), strings.Join(s.Names(), ", ")))
	}
	return out, nil
}

// All returns a copy of every scenario in declaration order.
func (s *Set) All() []Scenario {
	out := make([]Scenario, len(s.list))
	copy(out, s.list)
	return out
}

// Names returns scenario names in declaration order.
func (s *Set) Names() []string {
	out := make([]string, len(s.list))
	for i, sc := range s.list {
		out[i] = sc.Name
	}
	return out
}

func (s *Set) Len() int { return len(s.list) }
