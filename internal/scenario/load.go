package scenario

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/kuitang/modulista-e2e/internal/errs"
)

var validate = validator.New()

// scenarioFile is the mapping form of a scenario file.
type scenarioFile struct {
	Scenarios []Scenario `yaml:"scenarios"`
}

// LoadFile reads and validates every scenario in the YAML file at path.
func LoadFile(path string) ([]Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Wrap(errs.InvalidScenario, fmt.Sprintf("read scenario file %s", path), err)
	}
	scs, err := Parse(data)
	if err != nil {
		return nil, errs.Wrap(errs.InvalidScenario, fmt.Sprintf("scenario file %s", path), err)
	}
	return scs, nil
}

// Parse decodes YAML holding a single scenario, a list of scenarios, or a
// mapping with a top-level "scenarios" list. Unknown fields are rejected.
func Parse(data []byte) ([]Scenario, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, errs.Wrap(errs.InvalidScenario, "parse yaml", err)
	}
	if len(root.Content) == 0 {
		return nil, errs.New(errs.InvalidScenario, "no scenarios defined")
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var scs []Scenario
	switch doc := root.Content[0]; {
	case doc.Kind == yaml.SequenceNode:
		if err := dec.Decode(&scs); err != nil {
			return nil, errs.Wrap(errs.InvalidScenario, "decode scenarios", err)
		}
	case doc.Kind == yaml.MappingNode && hasKey(doc, "scenarios"):
		var f scenarioFile
		if err := dec.Decode(&f); err != nil {
			return nil, errs.Wrap(errs.InvalidScenario, "decode scenarios", err)
		}
		scs = f.Scenarios
	case doc.Kind == yaml.MappingNode:
		var sc Scenario
		if err := dec.Decode(&sc); err != nil {
			return nil, errs.Wrap(errs.InvalidScenario, "decode scenario", err)
		}
		scs = []Scenario{sc}
	default:
		return nil, errs.New(errs.InvalidScenario, "scenario document must be a mapping or a list")
	}

	if len(scs) == 0 {
		return nil, errs.New(errs.InvalidScenario, "no scenarios defined")
	}
	for i := range scs {
		if err := scs[i].Validate(); err != nil {
			return nil, err
		}
	}
	return scs, nil
}

func hasKey(mapping *yaml.Node, key string) bool {
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			return true
		}
	}
	return false
}

// Validate checks struct tags and the per-kind required fields.
func (s Scenario) Validate() error {
	if err := validate.Struct(s); err != nil {
		return errs.Wrap(errs.InvalidScenario, fmt.Sprintf("scenario %q", s.Name), describeValidation(err))
	}
	for i, a := range s.Actions {
		if err := a.validateFields(); err != nil {
			return errs.Wrap(errs.InvalidScenario, fmt.Sprintf("scenario %q step %d (%s)", s.Name, i+1, a.Kind), err)
		}
		if a.Kind == KindExpectDialog && i+1 < len(s.Actions) && s.Actions[i+1].Kind == KindExpectDialog {
			return errs.New(errs.InvalidScenario, fmt.Sprintf("scenario %q step %d: expect_dialog must be followed by its triggering action", s.Name, i+1))
		}
	}
	return nil
}

func (a Action) validateFields() error {
	switch a.Kind {
	case KindNavigate:
		if strings.TrimSpace(a.URL) == "" {
			return errors.New("url is required")
		}
	case KindClick, KindFill, KindAssertVisible, KindAssertHidden:
		if strings.TrimSpace(a.Selector) == "" {
			return errors.New("selector is required")
		}
	case KindAssertTextVisible:
		if strings.TrimSpace(a.Text) == "" {
			return errors.New("text is required")
		}
	case KindExpectDialog:
		if a.Response != Accept && a.Response != Dismiss {
			return fmt.Errorf("response must be %q or %q", Accept, Dismiss)
		}
	}
	return nil
}

func describeValidation(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s: %s=%s", fe.Namespace(), fe.Tag(), fe.Param()))
		} else {
			parts = append(parts, fmt.Sprintf("%s: %s", fe.Namespace(), fe.Tag()))
		}
	}
	return errors.New(strings.Join(parts, "; "))
}

// WithBase returns a copy of s whose relative navigate URLs are resolved
// against base. "/" and "" navigate to base itself.
func (s Scenario) WithBase(base string) (Scenario, error) {
	baseURL, err := url.Parse(base)
	if err != nil || baseURL.Scheme == "" {
		return Scenario{}, errs.New(errs.InvalidScenario, fmt.Sprintf("target %q is not an absolute URL", base))
	}
	out := s
	out.Actions = make([]Action, len(s.Actions))
	for i, a := range s.Actions {
		if a.Kind == KindNavigate {
			resolved, err := resolveURL(baseURL, a.URL)
			if err != nil {
				return Scenario{}, errs.Wrap(errs.InvalidScenario, fmt.Sprintf("scenario %q step %d", s.Name, i+1), err)
			}
			a.URL = resolved
		}
		out.Actions[i] = a
	}
	return out, nil
}

func resolveURL(base *url.URL, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" || ref == "/" {
		return base.String(), nil
	}
	u, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %w", ref, err)
	}
	if u.IsAbs() {
		return u.String(), nil
	}
	return base.ResolveReference(u).String(), nil
}

// ResolveAll applies WithBase to every scenario.
func ResolveAll(scs []Scenario, base string) ([]Scenario, error) {
	out := make([]Scenario, 0, len(scs))
	for _, sc := range scs {
		r, err := sc.WithBase(base)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}
