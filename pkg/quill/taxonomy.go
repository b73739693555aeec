package quill

import (
	"sort"

	"github.com/crimson-sun/quill/internal/model"
)

// Category is a top-level group of audit event types.
type Category struct {
	Name   string   // authentication, authorization, schema, ...
	Atypes []string // event types in this group, sorted
}

// Taxonomy returns every audit event type grouped by category. Categories
// and their event types are sorted by name.
func Taxonomy() []Category {
	groups := map[model.Group][]string{}
	for _, a := range model.Atypes() {
		g, _ := model.GroupOf(a)
		groups[g] = append(groups[g], a)
	}
	out := make([]Category, 0, len(groups))
	for g, atypes := range groups {
		sort.Strings(atypes)
		out = append(out, Category{Name: string(g), Atypes: atypes})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
