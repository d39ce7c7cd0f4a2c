package scenario

import (
	"embed"
	"fmt"
)

//go:embed builtin/*.yaml
var builtinFS embed.FS

// builtinOrder is the declaration order of the bundled scenarios.
var builtinOrder = []string{
	"add-rename-delete",
	"duplicate-name",
	"type-change-rerender",
	"homepage",
}

// Builtin returns the bundled Modulista verification scenarios. Navigate
// URLs are relative; resolve them with WithBase before running.
func Builtin() (*Set, error) {
	set, err := NewSet()
	if err != nil {
		return nil, err
	}
	for _, name := range builtinOrder {
		data, err := builtinFS.ReadFile("builtin/" + name + ".yaml")
		if err != nil {
			return nil, fmt.Errorf("built-in scenario %q: %w", name, err)
		}
		scs, err := Parse(data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse built-in scenario %q: %w", name, err)
		}
		for _, sc := range scs {
			if err := set.Add(sc); err != nil {
				return nil, err
			}
		}
	}
	return set, nil
}

// MustBuiltin is Builtin for callers that treat a broken bundle as a bug.
func MustBuiltin() *Set {
	set, err := Builtin()
	if err != nil {
		panic(err)
	}
	return set
}
