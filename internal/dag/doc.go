// Package dag holds the prerequisite graph used to order part activation.
//
// Nodes are string IDs; an edge from A to B means B depends on A. The
// container adds one edge per prerequisite import binding, rejects cycles
// through DetectCycles and activates parts in TopologicalOrder. Ordering is
// deterministic: among ready nodes the smallest ID goes first.
package dag
