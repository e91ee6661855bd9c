package discovery

import "testing"

func TestFilters(t *testing.T) {
	tests := []struct {
		name   string
		filter Filter
		in     string
		want   bool
	}{
		{"match glob", MatchNames("db-*"), "db-main", true},
		{"match miss", MatchNames("db-*"), "cache", false},
		{"match any of", MatchNames("db-*", "cache"), "cache", true},
		{"match none configured", MatchNames(), "db", false},
		{"exclude hit", ExcludeNames("internal-*"), "internal-api", false},
		{"exclude miss", ExcludeNames("internal-*"), "api", true},
		{"bad pattern never matches", MatchNames("["), "[", false},
		{"all of pass", AllOf(MatchNames("db-*"), ExcludeNames("db-test")), "db-main", true},
		{"all of fail", AllOf(MatchNames("db-*"), ExcludeNames("db-test")), "db-test", false},
		{"all of skips nil", AllOf(nil, MatchNames("*")), "x", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter(tt.in); got != tt.want {
				t.Errorf("filter(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
