package features

import "strings"

// Group is a one-hot family: the placeholder name used in a feature list and the
// column prefix it expands to.
type Group struct {
	Placeholder string `yaml:"placeholder" json:"placeholder"`
	Prefix      string `yaml:"prefix" json:"prefix"`
}

// DefaultGroups are the position families. Sub-positions expand before positions.
var DefaultGroups = []Group{
	{Placeholder: "subpos", Prefix: "subpos_"},
	{Placeholder: "pos", Prefix: "pos_"},
}

// Resolve expands group placeholders in requested into the concrete columns present in
// columns. Plain names keep their relative order ahead of every expansion; each
// placeholder is removed even when nothing matches, and no name appears twice.
// requested is not modified, and resolving the result again returns it unchanged.
func Resolve(columns []string, requested []string, groups []Group) []string {
	present := make(map[string]bool, len(requested))
	for _, name := range requested {
		present[name] = true
	}

	placeholders := make(map[string]bool, len(groups))
	for _, g := range groups {
		placeholders[g.Placeholder] = true
	}

	resolved := make([]string, 0, len(requested))
	seen := make(map[string]bool, len(requested))
	for _, name := range requested {
		if !placeholders[name] && !seen[name] {
			seen[name] = true
			resolved = append(resolved, name)
		}
	}

	for _, g := range groups {
		if !present[g.Placeholder] {
			continue
		}
		for _, c := range Matching(columns, g.Prefix) {
			if !seen[c] {
				seen[c] = true
				resolved = append(resolved, c)
			}
		}
	}

	return resolved
}

// Matching returns the columns starting with prefix, in column order.
func Matching(columns []string, prefix string) []string {
	var out []string
	for _, c := range columns {
		if strings.HasPrefix(c, prefix) {
			out = append(out, c)
		}
	}
	return out
}

// GroupColumns returns every one-hot column of every group, grouped in the order
// the groups are listed.
func GroupColumns(columns []string, groups []Group) []string {
	var out []string
	for _, g := range groups {
		out = append(out, Matching(columns, g.Prefix)...)
	}
	return out
}
