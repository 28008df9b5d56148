package optree

import (
	"slices"

	"github.com/vk/dataflow/internal/errs"
)

// AddChild appends child to the ordered children of n and registers n as one
// of its parents. An unassociated child of an associated node joins the tree
// together with its subtree.
func (n *Node) AddChild(child *Node) error {
	const op = "Node.AddChild"
	switch {
	case child == nil:
		return errs.New(errs.InvalidArgument, op, "nil child")
	case child == n:
		return errs.New(errs.InvalidArgument, op, "%s cannot be its own child", n.NameWithID())
	case slices.Contains(n.children, child):
		return errs.New(errs.AlreadyExists, op, "%s is already a child of %s", child.NameWithID(), n.NameWithID())
	case child.reaches(n):
		return errs.New(errs.InvalidArgument, op, "adding %s under %s creates a cycle", child.NameWithID(), n.NameWithID())
	}
	if err := checkSameTree(op, n, child); err != nil {
		return err
	}
	if n.tree != nil {
		for d := range preOrder(child) {
			if d.tree != nil && d.tree != n.tree {
				return errs.New(errs.InvalidState, op, "%s belongs to another tree", d.NameWithID())
			}
		}
		n.tree.associateSubtree(child)
	}

	n.children = append(n.children, child)
	child.parents = append(child.parents, n)
	return nil
}

// RemoveChild unlinks child from n. The child keeps its own subtree.
func (n *Node) RemoveChild(child *Node) error {
	const op = "Node.RemoveChild"
	idx := slices.Index(n.children, child)
	if child == nil || idx < 0 {
		return errs.New(errs.NotFound, op, "%v is not a child of %s", child, n.NameWithID())
	}
	if err := checkMutable(op, n); err != nil {
		return err
	}

	n.children = slices.Delete(n.children, idx, idx+1)
	child.parents = slices.DeleteFunc(child.parents, func(p *Node) bool { return p == n })
	return nil
}

// Remove splices n out of the tree. The parent of n takes the child of n at
// the position n held. Only nodes with at most one parent and at most one
// child can be removed. Removing the root makes the former child the root.
func (n *Node) Remove() error {
	const op = "Node.Remove"
	if len(n.children) > 1 {
		return errs.New(errs.UnsupportedOperation, op, "%s has %d children", n.NameWithID(), len(n.children))
	}
	if len(n.parents) > 1 {
		return errs.New(errs.UnsupportedOperation, op, "%s has %d parents", n.NameWithID(), len(n.parents))
	}
	if err := checkMutable(op, n); err != nil {
		return err
	}

	var parent, child *Node
	if len(n.parents) == 1 {
		parent = n.parents[0]
	}
	if len(n.children) == 1 {
		child = n.children[0]
	}
	if parent != nil && child != nil && slices.Contains(parent.children, child) {
		return errs.New(errs.AlreadyExists, op, "%s is already a child of %s", child.NameWithID(), parent.NameWithID())
	}

	if child != nil {
		i := slices.Index(child.parents, n)
		if parent != nil {
			child.parents[i] = parent
		} else {
			child.parents = slices.Delete(child.parents, i, i+1)
		}
	}
	if parent != nil {
		i := slices.Index(parent.children, n)
		if child != nil {
			parent.children[i] = child
		} else {
			parent.children = slices.Delete(parent.children, i, i+1)
		}
	}
	if n.tree != nil && n.tree.root == n {
		n.tree.root = child
	}
	n.parents = nil
	n.children = nil
	return nil
}

// InsertAsParent splices newNode between n and all of its parents. Each
// parent has newNode at the position n held, newNode gets the parents of n
// and n becomes the only child of newNode. newNode must be standalone.
func (n *Node) InsertAsParent(newNode *Node) error {
	const op = "Node.InsertAsParent"
	switch {
	case newNode == nil:
		return errs.New(errs.InvalidArgument, op, "nil node")
	case newNode == n:
		return errs.New(errs.InvalidArgument, op, "%s cannot be its own parent", n.NameWithID())
	case len(newNode.parents) > 0 || len(newNode.children) > 0:
		return errs.New(errs.InvalidArgument, op, "%s is already linked into a tree", newNode.NameWithID())
	}
	if err := checkSameTree(op, n, newNode); err != nil {
		return err
	}

	if n.tree != nil && newNode.tree == nil {
		n.tree.associate(newNode)
	}
	for _, p := range n.parents {
		p.children[slices.Index(p.children, n)] = newNode
	}
	newNode.parents = n.parents
	newNode.children = []*Node{n}
	n.parents = []*Node{newNode}
	if n.tree != nil && n.tree.root == n {
		n.tree.root = newNode
	}
	return nil
}

// reaches reports whether target is n or one of its descendants.
func (n *Node) reaches(target *Node) bool {
	for d := range preOrder(n) {
		if d == target {
			return true
		}
	}
	return false
}

func checkSameTree(op string, a, b *Node) error {
	if a.tree != nil && b.tree != nil && a.tree != b.tree {
		return errs.New(errs.InvalidState, op, "%s and %s belong to different trees", a.NameWithID(), b.NameWithID())
	}
	if err := checkMutable(op, a); err != nil {
		return err
	}
	return checkMutable(op, b)
}

func checkMutable(op string, n *Node) error {
	if n.tree == nil {
		return nil
	}
	if s := n.tree.State(); s > Building {
		return errs.New(errs.InvalidState, op, "tree is %s, structure is frozen", s)
	}
	return nil
}
