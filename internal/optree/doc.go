// Package optree implements the operator execution tree.
//
// A Tree owns a set of Nodes. Each Node wraps an Operator, keeps an ordered
// list of children and a list of parents, and, once the tree is prepared,
// owns the Connector its operator pushes to. Ids are assigned only by the
// tree when a node is associated with it.
//
// # Lifecycle
//
//  1. Build: create nodes with NewNode and link them with AddChild. Assign
//     the root with Tree.AssignRoot. RemoveChild, Remove and InsertAsParent
//     rewrite the structure and fail without side effects.
//  2. Prepare: Tree.Prepare runs the registered passes when optimization is
//     enabled, then calls PrepareNodePreAction top-down and
//     PrepareNodePostAction bottom-up on every reachable node. After this
//     the structure and column maps are frozen.
//  3. Launch: Tree.Launch starts one task per non-inlined node. Operators
//     read their children with GetNextInput, which runs the EoE and EoF
//     handlers, and push to their own output with Push.
//  4. Drain: the consumer calls Tree.Next until it sees EoF, then Tree.Wait.
//
// # Inlined nodes
//
// A node with queue size 0 has no connector and no task. Reads of its output
// run on the goroutine of its consumer, and its sizing accessors report the
// values of its first child.
package optree
