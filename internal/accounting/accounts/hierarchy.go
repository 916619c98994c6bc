package accounts

import (
	"slices"
	"strings"
)

// maxDepth bounds parent walks so corrupt data cannot loop forever.
const maxDepth = 64

// Descendants returns the accounts below root, depth-first with siblings
// ordered by code.
func Descendants(rootID string, all []Account) []Account {
	children := make(map[string][]Account, len(all))
	for _, a := range all {
		if a.ParentID != "" {
			children[a.ParentID] = append(children[a.ParentID], a)
		}
	}
	for id := range children {
		slices.SortFunc(children[id], func(a, b Account) int { return strings.Compare(a.Code, b.Code) })
	}
	var out []Account
	seen := map[string]bool{rootID: true}
	var walk func(id string)
	walk = func(id string) {
		for _, child := range children[id] {
			if seen[child.ID] {
				continue
			}
			seen[child.ID] = true
			out = append(out, child)
			walk(child.ID)
		}
	}
	walk(rootID)
	return out
}

// relevel recomputes Level for root's descendants given root's level. It
// returns only the accounts whose level changed.
func relevel(root Account, all []Account) []Account {
	byID := make(map[string]Account, len(all))
	for _, a := range all {
		byID[a.ID] = a
	}
	byID[root.ID] = root
	var changed []Account
	for _, d := range Descendants(root.ID, all) {
		parent := byID[d.ParentID]
		level := parent.Level + 1
		if d.Level != level {
			d.Level = level
			changed = append(changed, d)
		}
		byID[d.ID] = d
	}
	return changed
}

func removeID(ids []string, id string) []string {
	return slices.DeleteFunc(slices.Clone(ids), func(v string) bool { return v == id })
}

func appendID(ids []string, id string) []string {
	if slices.Contains(ids, id) {
		return ids
	}
	return append(slices.Clone(ids), id)
}
