// Package graph holds the root's tree membership structure: BFS-based
// parent selection, subtree removal, and last-seen-based liveness queries.
// It is touched only by the root peer's tick loop, so it carries no
// internal locking.
package graph

import (
	"time"

	"canopy/internal/wire"
)

const maxChildren = 2

// Node is a tree membership node. Parent is a relational back-reference
// for traversal only — it must never keep a removed subtree alive and is
// never followed after removal.
type Node struct {
	Addr     wire.Address
	Parent   *Node
	Children []*Node
	LastSeen time.Time
}

// subtreeNodes returns every descendant of n, not including n itself.
func (n *Node) subtreeNodes() []*Node {
	var out []*Node
	for _, c := range n.Children {
		out = append(out, c)
		out = append(out, c.subtreeNodes()...)
	}
	return out
}

// Graph is the tree of admitted nodes, rooted at the root peer's own node.
type Graph struct {
	root   *Node
	byAddr map[wire.Address]*Node
}

// New creates a graph containing only the root node.
func New(rootAddr wire.Address) *Graph {
	root := &Node{Addr: rootAddr, LastSeen: time.Now()}
	return &Graph{
		root:   root,
		byAddr: map[wire.Address]*Node{rootAddr: root},
	}
}

// Root returns the graph's root node.
func (g *Graph) Root() *Node { return g.root }

// Find returns the node at addr, if present.
func (g *Graph) Find(addr wire.Address) (*Node, bool) {
	n, ok := g.byAddr[addr]
	return n, ok
}

// Size returns the number of nodes currently in the graph, including root.
func (g *Graph) Size() int { return len(g.byAddr) }

// FindParentFor runs BFS from root and returns the first node with fewer
// than two children. If sender is already present, its own subtree (and
// itself) is excluded from candidacy so it can never become its own
// ancestor.
func (g *Graph) FindParentFor(sender wire.Address) *Node {
	excluded := map[wire.Address]struct{}{}
	if senderNode, ok := g.byAddr[sender]; ok {
		excluded[senderNode.Addr] = struct{}{}
		for _, d := range senderNode.subtreeNodes() {
			excluded[d.Addr] = struct{}{}
		}
	}

	queue := []*Node{g.root}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		if _, skip := excluded[n.Addr]; skip {
			continue
		}
		if len(n.Children) < maxChildren {
			return n
		}
		queue = append(queue, n.Children...)
	}
	return nil // unreachable while membership <= 511 (branching factor 2, depth 8)
}

// Insert admits addr into the graph under the BFS-selected parent and
// returns that parent's address. If addr is already present, it is
// reparented in place rather than ignored or duplicated — resolving the
// "re-advertise an existing address" open question by always honoring the
// freshest Advertise Request, since BFS already excludes addr's own
// subtree from candidacy so this can never introduce a cycle.
func (g *Graph) Insert(addr wire.Address) wire.Address {
	parent := g.FindParentFor(addr)

	if existing, ok := g.byAddr[addr]; ok {
		detachFromParent(existing)
		existing.Parent = parent
		parent.Children = append(parent.Children, existing)
		return parent.Addr
	}

	n := &Node{Addr: addr, Parent: parent, LastSeen: time.Now()}
	parent.Children = append(parent.Children, n)
	g.byAddr[addr] = n
	return parent.Addr
}

func detachFromParent(n *Node) {
	if n.Parent == nil {
		return
	}
	siblings := n.Parent.Children
	for i, c := range siblings {
		if c == n {
			n.Parent.Children = append(siblings[:i], siblings[i+1:]...)
			break
		}
	}
	n.Parent = nil
}

// Remove detaches node from its parent and drops it and its entire
// subtree from the address index. The subtree remains structurally
// linked in memory but is unreachable from root, so it must never be
// returned by FindParentFor or GetInactiveNodes again.
func (g *Graph) Remove(n *Node) {
	if n == g.root {
		return
	}
	descendants := n.subtreeNodes()
	detachFromParent(n)

	delete(g.byAddr, n.Addr)
	for _, d := range descendants {
		delete(g.byAddr, d.Addr)
	}
}

// GetInactiveNodes returns every non-root node whose LastSeen predates
// threshold, discovered by traversing children from the root.
func (g *Graph) GetInactiveNodes(threshold time.Time) []*Node {
	var out []*Node
	for _, n := range g.root.subtreeNodes() {
		if n.LastSeen.Before(threshold) {
			out = append(out, n)
		}
	}
	return out
}
