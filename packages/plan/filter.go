package plan

import (
	"strings"

	"github.com/abdul-hamid-achik/hitrun/packages/core/model"
)

// Filter selects the test cases a plan contributes.
type Filter struct {
	// Name matches the test name or "Class.test". A leading or trailing *
	// matches any prefix or suffix.
	Name string
	// Traits keeps cases carrying any of the entries. An entry is either
	// "name=value" or a bare value matched against every trait.
	Traits []string
}

func (f Filter) Empty() bool {
	return f.Name == "" && len(f.Traits) == 0
}

func (f Filter) Matches(class, test string, traits model.Traits) bool {
	if f.Name != "" && !matchesPattern(test, f.Name) && !matchesPattern(class+"."+test, f.Name) {
		return false
	}
	if len(f.Traits) > 0 && !hasAnyTrait(traits, f.Traits) {
		return false
	}
	return true
}

func matchesPattern(name, pattern string) bool {
	if pattern == "" {
		return true
	}

	prefix := strings.HasPrefix(pattern, "*")
	suffix := strings.HasSuffix(pattern, "*")
	switch {
	case prefix && suffix && len(pattern) > 1:
		return strings.Contains(name, pattern[1:len(pattern)-1])
	case prefix:
		return strings.HasSuffix(name, pattern[1:])
	case suffix:
		return strings.HasPrefix(name, pattern[:len(pattern)-1])
	}
	return name == pattern
}

func hasAnyTrait(traits model.Traits, filters []string) bool {
	for _, filter := range filters {
		name, value, named := strings.Cut(filter, "=")
		for traitName, values := range traits {
			if named && traitName != name {
				continue
			}
			want := filter
			if named {
				want = value
			}
			for _, v := range values {
				if v == want {
					return true
				}
			}
		}
	}
	return false
}
