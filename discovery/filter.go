package discovery

import "path"

// MatchNames returns a filter accepting names that match any of the
// path.Match patterns, e.g. "db-*".
func MatchNames(patterns ...string) Filter {
	return func(name string) bool {
		return matchAny(patterns, name)
	}
}

// ExcludeNames returns a filter rejecting names that match any pattern.
func ExcludeNames(patterns ...string) Filter {
	return func(name string) bool {
		return !matchAny(patterns, name)
	}
}

// AllOf combines filters; a name must pass every one.
func AllOf(filters ...Filter) Filter {
	return func(name string) bool {
		for _, f := range filters {
			if f != nil && !f(name) {
				return false
			}
		}
		return true
	}
}

func matchAny(patterns []string, name string) bool {
	for _, p := range patterns {
		if ok, err := path.Match(p, name); err == nil && ok {
			return true
		}
	}
	return false
}
