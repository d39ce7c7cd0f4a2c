package browser

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/kuitang/modulista-e2e/internal/errs"
)

// LocatorKind selects the lookup strategy.
type LocatorKind int

const (
	ByCSS LocatorKind = iota
	ByText
	ByTestID
	ByRole
)

// Locator describes how to find an element. It holds no element handle and
// is resolved again on every call.
type Locator struct {
	Kind  LocatorKind
	Value string // CSS selector, exact text, test id, or ARIA role
	Name  string // accessible name, ByRole only
	raw   string
}

var roleExpr = regexp.MustCompile(`^([a-z]+)(?:\[name=(?:"([^"]*)"|'([^']*)')\])?$`)

// ParseLocator parses the selector grammar used in scenarios:
//
//	text=<exact text>
//	testid=<data-testid>
//	role=<role>[name="<accessible name>"]
//	anything else is CSS
func ParseLocator(s string) (Locator, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return Locator{}, errs.New(errs.InvalidScenario, "empty selector")
	}
	switch {
	case strings.HasPrefix(raw, "text="):
		v := strings.TrimPrefix(raw, "text=")
		if v == "" {
			return Locator{}, errs.New(errs.InvalidScenario, "text= selector needs a value")
		}
		return Locator{Kind: ByText, Value: v, raw: raw}, nil
	case strings.HasPrefix(raw, "testid="):
		v := strings.TrimPrefix(raw, "testid=")
		if v == "" {
			return Locator{}, errs.New(errs.InvalidScenario, "testid= selector needs a value")
		}
		return Locator{Kind: ByTestID, Value: v, raw: raw}, nil
	case strings.HasPrefix(raw, "role="):
		m := roleExpr.FindStringSubmatch(strings.TrimPrefix(raw, "role="))
		if m == nil {
			return Locator{}, errs.New(errs.InvalidScenario, fmt.Sprintf("malformed role selector %q", raw))
		}
		name := m[2]
		if name == "" {
			name = m[3]
		}
		return Locator{Kind: ByRole, Value: m[1], Name: name, raw: raw}, nil
	default:
		return Locator{Kind: ByCSS, Value: raw, raw: raw}, nil
	}
}

// MustParseLocator panics on malformed input. Test helper.
func MustParseLocator(s string) Locator {
	l, err := ParseLocator(s)
	if err != nil {
		panic(err)
	}
	return l
}

func (l Locator) String() string {
	if l.raw != "" {
		return l.raw
	}
	switch l.Kind {
	case ByText:
		return "text=" + l.Value
	case ByTestID:
		return "testid=" + l.Value
	case ByRole:
		if l.Name != "" {
			return fmt.Sprintf("role=%s[name=%q]", l.Value, l.Name)
		}
		return "role=" + l.Value
	default:
		return l.Value
	}
}

// implicitRoles lists the elements that carry a role without an explicit
// role attribute. Only the roles scenarios use are covered.
var implicitRoles = map[string][]string{
	"button":   {"button", "input[@type='button']", "input[@type='submit']", "input[@type='reset']"},
	"link":     {"a[@href]"},
	"textbox":  {"textarea", "input[not(@type) or @type='text' or @type='email' or @type='search']"},
	"checkbox": {"input[@type='checkbox']"},
	"heading":  {"h1", "h2", "h3", "h4", "h5", "h6"},
	"listitem": {"li"},
	"list":     {"ul", "ol"},
	"dialog":   {"dialog"},
}

// XPath renders l as an XPath expression. CSS locators have no XPath form
// and return ok=false.
func (l Locator) XPath() (expr string, ok bool) {
	switch l.Kind {
	case ByText:
		lit := xpathLiteral(l.Value)
		return fmt.Sprintf(`//*[not(self::script or self::style)][normalize-space(.)=%s][not(.//*[normalize-space(.)=%s])]`, lit, lit), true
	case ByTestID:
		return fmt.Sprintf(`//*[@data-testid=%s]`, xpathLiteral(l.Value)), true
	case ByRole:
		steps := []string{fmt.Sprintf("*[@role=%s]", xpathLiteral(l.Value))}
		for _, tag := range implicitRoles[l.Value] {
			steps = append(steps, tag+"[not(@role)]")
		}
		nameCond := ""
		if l.Name != "" {
			lit := xpathLiteral(l.Name)
			nameCond = fmt.Sprintf("[@aria-label=%s or (not(@aria-label) and (normalize-space(.)=%s or @title=%s or @value=%s))]", lit, lit, lit, lit)
		}
		parts := make([]string, len(steps))
		for i, s := range steps {
			parts[i] = "//" + s + nameCond
		}
		return strings.Join(parts, " | "), true
	default:
		return "", false
	}
}

// xpathLiteral quotes s for XPath 1.0, which has no escape sequences.
func xpathLiteral(s string) string {
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	if !strings.Contains(s, `'`) {
		return `'` + s + `'`
	}
	parts := strings.Split(s, `"`)
	quoted := make([]string, 0, 2*len(parts))
	for i, p := range parts {
		if i > 0 {
			quoted = append(quoted, `'"'`)
		}
		if p != "" {
			quoted = append(quoted, `"`+p+`"`)
		}
	}
	return "concat(" + strings.Join(quoted, ", ") + ")"
}
