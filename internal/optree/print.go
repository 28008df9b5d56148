package optree

import (
	"fmt"
	"io"
	"strings"
)

// NameWithID returns the operator kind and the node id, e.g. "Map(ID:3)".
func (n *Node) NameWithID() string {
	if n == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s(ID:%d)", n.op.Name(), n.id)
}

func (n *Node) String() string { return n.NameWithID() }

func describe(op Operator) string {
	if d, ok := op.(Describer); ok && d.Describe() != "" {
		return " " + d.Describe()
	}
	return ""
}

// Print writes a one-line summary of n. With showAll it adds runtime details
// on the following lines.
func (n *Node) Print(w io.Writer, showAll bool) error {
	line := n.NameWithID() + describe(n.op)
	if _, err := fmt.Fprintln(w, line); err != nil {
		return err
	}
	if !showAll {
		return nil
	}

	ids := func(nodes []*Node) string {
		parts := make([]string, len(nodes))
		for i, c := range nodes {
			parts[i] = fmt.Sprint(c.id)
		}
		return "[" + strings.Join(parts, " ") + "]"
	}
	sampler := "none"
	if n.sampler != nil {
		sampler = n.sampler.Describe()
	}
	_, err := fmt.Fprintf(w,
		"  state: %s\n  flags: %s\n  workers: %d\n  queue size: %d\n  connector: %d/%d, %d pushed\n  columns: %s\n  sampler: %s\n  children: %s\n  parents: %s\n",
		n.State(), n.ControlFlags(), n.op.NumWorkers(), n.queueSize,
		n.ConnectorSize(), n.ConnectorCapacity(), n.ConnectorOutBufferCount(),
		n.ColumnNameMapAsString(), sampler, ids(n.children), ids(n.parents))
	return err
}

func (f ControlFlag) String() string {
	var parts []string
	if f&FlagRepeated != 0 {
		parts = append(parts, "repeated")
	}
	if f&FlagLastRepeat != 0 {
		parts = append(parts, "last-repeat")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// Print writes the subtree rooted at from, or the whole tree when from is
// nil, one node per line indented by depth.
func (t *Tree) Print(w io.Writer, from *Node) error {
	if from == nil {
		from = t.root
	}
	if from == nil {
		_, err := fmt.Fprintln(w, "<empty tree>")
		return err
	}
	return printSubtree(w, from, "", true, true)
}

func printSubtree(w io.Writer, n *Node, prefix string, last, top bool) error {
	branch, next := "", ""
	if !top {
		branch = "+- "
		if last {
			next = prefix + "   "
		} else {
			next = prefix + "|  "
		}
	}
	line := prefix + branch + n.NameWithID() + describe(n.op)
	if _, err := fmt.Fprintln(w, line); err != nil {
		return err
	}
	for i, c := range n.children {
		if err := printSubtree(w, c, next, i == len(n.children)-1, false); err != nil {
			return err
		}
	}
	return nil
}
