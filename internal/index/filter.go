package index

import "strings"

// Filter restricts a search to assets matching exact structured constraints.
// Predicates are conjunctive across fields (category AND artist), and
// disjunctive within a field (category is Clothing OR Hair). A zero filter
// matches everything.
type Filter struct {
	Categories        []string `json:"categories,omitempty"`
	CompatibleFigures []string `json:"compatible_figures,omitempty"`
	Artists           []string `json:"artists,omitempty"`
	Tags              []string `json:"tags,omitempty"`
}

// IsZero reports whether the filter has no constraints.
func (f Filter) IsZero() bool {
	return len(f.Categories) == 0 && len(f.CompatibleFigures) == 0 &&
		len(f.Artists) == 0 && len(f.Tags) == 0
}

// Matches reports whether an asset's shadow attributes satisfy the filter.
// All comparisons are case-insensitive. Category is an exact match; tags and
// figures match on set membership; artists match on substring, so a filter
// for "Stonemason" also finds "Stonemason3D".
func (f Filter) Matches(s *Shadow) bool {
	if len(f.Categories) > 0 && !anyEqualFold(f.Categories, s.Category) {
		return false
	}
	if len(f.Tags) > 0 && !anyMemberFold(f.Tags, s.Tags) {
		return false
	}
	if len(f.CompatibleFigures) > 0 && !anyMemberFold(f.CompatibleFigures, s.CompatibleFigures) {
		return false
	}
	if len(f.Artists) > 0 && !anySubstringFold(f.Artists, s.Artists) {
		return false
	}
	return true
}

// anyEqualFold reports whether value equals any of the wanted values.
func anyEqualFold(wanted []string, value string) bool {
	for _, w := range wanted {
		if strings.EqualFold(strings.TrimSpace(w), value) {
			return true
		}
	}
	return false
}

// anyMemberFold reports whether any wanted value is a member of values.
func anyMemberFold(wanted, values []string) bool {
	for _, w := range wanted {
		w = strings.TrimSpace(w)
		for _, v := range values {
			if strings.EqualFold(w, v) {
				return true
			}
		}
	}
	return false
}

// anySubstringFold reports whether any wanted value appears as a
// case-insensitive substring of any of the values.
func anySubstringFold(wanted, values []string) bool {
	for _, w := range wanted {
		w = strings.ToLower(strings.TrimSpace(w))
		if w == "" {
			continue
		}
		for _, v := range values {
			if strings.Contains(strings.ToLower(v), w) {
				return true
			}
		}
	}
	return false
}
