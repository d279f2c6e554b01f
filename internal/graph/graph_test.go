package graph

import (
	"testing"
	"time"

	"canopy/internal/wire"
)

func addr(t *testing.T, ip string, port int) wire.Address {
	t.Helper()
	a, err := wire.NewAddress(ip, port)
	if err != nil {
		t.Fatalf("NewAddress(%s, %d): %v", ip, port, err)
	}
	return a
}

func TestInsertFillsBreadthFirst(t *testing.T) {
	root := addr(t, "10.0.0.1", 1)
	g := New(root)

	a := addr(t, "10.0.0.2", 2)
	b := addr(t, "10.0.0.3", 3)
	c := addr(t, "10.0.0.4", 4)

	if p := g.Insert(a); p != root {
		t.Fatalf("Insert(a) parent = %+v, want root %+v", p, root)
	}
	if p := g.Insert(b); p != root {
		t.Fatalf("Insert(b) parent = %+v, want root %+v", p, root)
	}
	// Root already has two children (maxChildren), so c must land under a.
	if p := g.Insert(c); p != a {
		t.Fatalf("Insert(c) parent = %+v, want a %+v", p, a)
	}
	if g.Size() != 4 {
		t.Errorf("Size() = %d, want 4", g.Size())
	}
}

func TestFindParentForExcludesSendersOwnSubtree(t *testing.T) {
	root := addr(t, "10.0.0.1", 1)
	g := New(root)

	a := addr(t, "10.0.0.2", 2)
	g.Insert(a)
	// Fill root's remaining slot so root is no longer a BFS candidate.
	b := addr(t, "10.0.0.3", 3)
	g.Insert(b)
	c := addr(t, "10.0.0.4", 4)
	g.Insert(c) // lands under a

	// Re-advertising `a` must never select a or any of a's descendants
	// (here, c) as a's own parent.
	p := g.FindParentFor(a)
	if p == nil {
		t.Fatal("FindParentFor(a) = nil")
	}
	if p.Addr == a || p.Addr == c {
		t.Errorf("FindParentFor(a) selected %+v, which is a or its own descendant", p.Addr)
	}
}

func TestRemoveDropsEntireSubtree(t *testing.T) {
	root := addr(t, "10.0.0.1", 1)
	g := New(root)

	a := addr(t, "10.0.0.2", 2)
	g.Insert(a)
	b := addr(t, "10.0.0.3", 3)
	g.Insert(b)
	c := addr(t, "10.0.0.4", 4)
	g.Insert(c) // under a, since root is full

	node, ok := g.Find(a)
	if !ok {
		t.Fatal("Find(a) missing before Remove")
	}
	g.Remove(node)

	if _, ok := g.Find(a); ok {
		t.Error("a still present after Remove")
	}
	if _, ok := g.Find(c); ok {
		t.Error("c (a's child) still present after Remove")
	}
	if _, ok := g.Find(b); !ok {
		t.Error("b should survive removal of a's subtree")
	}
	if g.Size() != 2 { // root + b
		t.Errorf("Size() after Remove = %d, want 2", g.Size())
	}
}

func TestRemoveIgnoresRoot(t *testing.T) {
	root := addr(t, "10.0.0.1", 1)
	g := New(root)
	g.Remove(g.Root())
	if g.Size() != 1 {
		t.Errorf("Size() after Remove(root) = %d, want 1 (root must survive)", g.Size())
	}
}

func TestGetInactiveNodesExcludesRootAndFreshNodes(t *testing.T) {
	root := addr(t, "10.0.0.1", 1)
	g := New(root)

	stale := addr(t, "10.0.0.2", 2)
	g.Insert(stale)
	fresh := addr(t, "10.0.0.3", 3)
	g.Insert(fresh)

	staleNode, _ := g.Find(stale)
	staleNode.LastSeen = time.Now().Add(-time.Hour)
	g.Root().LastSeen = time.Now().Add(-time.Hour)

	inactive := g.GetInactiveNodes(time.Now().Add(-time.Minute))
	if len(inactive) != 1 || inactive[0].Addr != stale {
		t.Errorf("GetInactiveNodes = %+v, want only %+v", inactive, stale)
	}
}

func TestInsertReparentsExistingAddress(t *testing.T) {
	root := addr(t, "10.0.0.1", 1)
	g := New(root)

	a := addr(t, "10.0.0.2", 2)
	g.Insert(a)
	before, _ := g.Find(a)
	beforeParent := before.Parent.Addr

	// Re-inserting the same address must reparent it in place, not create
	// a duplicate or ignore the request.
	newParent := g.Insert(a)
	if g.Size() != 2 {
		t.Errorf("Size() after re-insert = %d, want 2 (no duplicate)", g.Size())
	}
	if newParent != beforeParent {
		t.Errorf("re-insert under identical tree shape should keep the same parent: got %+v want %+v", newParent, beforeParent)
	}
}
