package decomp

import "github.com/roach88/stencil/internal/ir"

// node is either a leaf region, a sync marker, or an internal node whose
// children run in order with sync markers separating dependent groups.
type node struct {
	region   *ir.Region
	sync     bool
	children []*node
}

func (n *node) internal() bool { return n.region == nil && !n.sync }

// Tree is the spawn tree produced by Bisect. It is consumed destructively:
// CollectUntilSync removes the leaves it returns and PruneSync removes the
// structure left behind.
type Tree struct {
	root *node
	size int
}

func newTree(child *node) *Tree {
	root := &node{}
	if child != nil {
		root.children = []*node{child}
	}
	t := &Tree{root: root}
	t.size = count(root)
	return t
}

func count(n *node) int {
	if n.sync {
		return 0
	}
	c := 1
	for _, ch := range n.children {
		c += count(ch)
	}
	return c
}

// Size returns the number of region and internal nodes, root included.
func (t *Tree) Size() int { return t.size }

// CollectUntilSync appends every leaf reachable without crossing a sync
// marker to dst and removes those leaves from the tree.
func (t *Tree) CollectUntilSync(dst []ir.Region) []ir.Region {
	return t.collect(t.root, dst)
}

func (t *Tree) collect(n *node, dst []ir.Region) []ir.Region {
	kept := make([]*node, 0, len(n.children))
	blocked := false
	for _, c := range n.children {
		switch {
		case blocked:
			kept = append(kept, c)
		case c.sync:
			blocked = true
			kept = append(kept, c)
		case c.region != nil:
			dst = append(dst, *c.region)
			t.size--
		default:
			dst = t.collect(c, dst)
			kept = append(kept, c)
		}
	}
	n.children = kept
	return dst
}

// PruneSync removes emptied internal nodes and sync markers no longer
// separating anything. It returns the number of nodes and markers removed.
func (t *Tree) PruneSync() int {
	return t.prune(t.root)
}

func (t *Tree) prune(n *node) int {
	removed := 0
	kept := make([]*node, 0, len(n.children))
	for _, c := range n.children {
		if c.internal() {
			removed += t.prune(c)
			if len(c.children) == 0 {
				t.size--
				removed++
				continue
			}
		}
		if c.sync && (len(kept) == 0 || kept[len(kept)-1].sync) {
			removed++
			continue
		}
		kept = append(kept, c)
	}
	for len(kept) > 0 && kept[len(kept)-1].sync {
		kept = kept[:len(kept)-1]
		removed++
	}
	n.children = kept
	return removed
}
