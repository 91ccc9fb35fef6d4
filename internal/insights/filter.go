// Package insights filters match tables and summarizes score distributions for the explorer.
package insights

import (
	"strings"

	"github.com/onnwee/foundermatch/internal/profile"
	"github.com/onnwee/foundermatch/internal/ranking"
)

// Filter narrows a subject's ranked matches.
type Filter struct {
	// Industries keeps rows whose counterpart works in one of these industries.
	// Empty keeps every row.
	Industries []string
	// Query keeps rows whose reason contains it, ignoring case. Empty keeps every row.
	Query string
}

// IsZero reports whether the filter keeps every row.
func (f Filter) IsZero() bool {
	return len(f.Industries) == 0 && strings.TrimSpace(f.Query) == ""
}

// Apply returns the rows that pass the filter, preserving rank order.
// A counterpart's industry is its founder industry or provider industry preference,
// looked up in dir; counterparts missing from dir never pass an industry filter.
func (f Filter) Apply(rows []ranking.Match, dir *profile.Directory) []ranking.Match {
	if f.IsZero() {
		return rows
	}

	industries := make(map[string]struct{}, len(f.Industries))
	for _, industry := range f.Industries {
		industries[industry] = struct{}{}
	}
	query := strings.ToLower(strings.TrimSpace(f.Query))

	out := make([]ranking.Match, 0, len(rows))
	for _, row := range rows {
		if len(industries) > 0 {
			p, ok := dir.Get(row.CounterpartID)
			if !ok {
				continue
			}
			if _, want := industries[p.MarketIndustry()]; !want {
				continue
			}
		}
		if query != "" && !strings.Contains(strings.ToLower(row.Reason()), query) {
			continue
		}
		out = append(out, row)
	}
	return out
}
