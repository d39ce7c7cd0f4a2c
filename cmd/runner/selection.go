package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/kuitang/modulista-e2e/internal/scenario"
)

// selection is the parsed list of runner arguments, in command-line order.
// Each argument is either a scenario file or a built-in scenario name.
type selection struct {
	args []string
}

func newSelection(args []string) selection {
	if len(args) == 0 {
		args = []string{scenario.SelectAll}
	}
	return selection{args: args}
}

// isFile reports whether arg names a scenario file rather than a built-in.
func isFile(arg string) bool {
	switch strings.ToLower(filepath.Ext(arg)) {
	case ".yaml", ".yml":
		return true
	}
	if strings.ContainsRune(arg, os.PathSeparator) {
		return true
	}
	info, err := os.Stat(arg)
	return err == nil && info.Mode().IsRegular()
}

// Files returns the scenario files named on the command line.
func (s selection) Files() []string {
	var files []string
	for _, arg := range s.args {
		if isFile(arg) {
			files = append(files, arg)
		}
	}
	return files
}

// Load reads files and looks up built-ins in argument order. Files are read
// fresh on every call so watch mode picks up edits. Names must be unique
// across the whole selection.
func (s selection) Load() ([]scenario.Scenario, error) {
	builtin, err := scenario.Builtin()
	if err != nil {
		return nil, err
	}

	combined, err := scenario.NewSet()
	if err != nil {
		return nil, err
	}
	for _, arg := range s.args {
		var scs []scenario.Scenario
		if isFile(arg) {
			scs, err = scenario.LoadFile(arg)
		} else {
			scs, err = builtin.Select(arg)
		}
		if err != nil {
			return nil, err
		}
		for _, sc := range scs {
			if err := combined.Add(sc); err != nil {
				return nil, err
			}
		}
	}
	return combined.All(), nil
}
