package tracer

import (
	"fmt"
	"sort"
	"strings"

	"claude-diagnose/internal/model"
)

// BuildCallTree arranges syscall stats into the fixed two-level flamegraph
// tree: root, category, syscall. Leaf weight is the call count; duration
// never contributes to weight. The depth is fixed, so the tree is acyclic by
// construction.
func BuildCallTree(stats []model.SyscallStat) *model.CallTreeNode {
	root := &model.CallTreeNode{Label: "syscalls"}

	byCategory := make(map[string]*model.CallTreeNode)
	for _, st := range stats {
		cat, ok := byCategory[st.Category]
		if !ok {
			cat = &model.CallTreeNode{Label: st.Category, Category: st.Category}
			byCategory[st.Category] = cat
			root.Children = append(root.Children, cat)
		}
		cat.Children = append(cat.Children, &model.CallTreeNode{
			Label:      st.Name,
			Category:   st.Category,
			SelfWeight: st.Count,
		})
	}

	// Heaviest category first, then heaviest syscall within each.
	for _, cat := range root.Children {
		sort.Slice(cat.Children, func(i, j int) bool {
			if cat.Children[i].SelfWeight != cat.Children[j].SelfWeight {
				return cat.Children[i].SelfWeight > cat.Children[j].SelfWeight
			}
			return cat.Children[i].Label < cat.Children[j].Label
		})
	}
	sort.Slice(root.Children, func(i, j int) bool {
		wi, wj := TreeWeight(root.Children[i]), TreeWeight(root.Children[j])
		if wi != wj {
			return wi > wj
		}
		return root.Children[i].Label < root.Children[j].Label
	})
	return root
}

// TreeWeight is the total weight of a node's subtree.
func TreeWeight(n *model.CallTreeNode) int64 {
	w := n.SelfWeight
	for _, c := range n.Children {
		w += TreeWeight(c)
	}
	return w
}

// FoldedStacks renders stats in the collapsed-stack format consumed by
// flamegraph tooling: one `category;syscall count` line per stat.
func FoldedStacks(stats []model.SyscallStat) string {
	var b strings.Builder
	for _, st := range stats {
		fmt.Fprintf(&b, "%s;%s %d\n", st.Category, st.Name, st.Count)
	}
	return b.String()
}
