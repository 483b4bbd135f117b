// Package engine implements the composition container.
//
// A Container matches the imports of parts against the exports available
// to it: parts already composed, exports injected through a batch, and part
// definitions offered by an optional catalog, which are turned into shared
// parts only when something asks for them.
//
// Every batch is a transaction. Candidate selection and cardinality checks
// run first and touch no part; prerequisite imports then order activation
// (a cycle among them fails the batch), imports are set, and OnComposed is
// called. Errors are collected, not short-circuited, and a failed batch
// leaves the container as it was.
//
// Imports declared recomposable are re-bound when the set of matching
// exports changes, whether through a later batch or a catalog change event.
// Any change to the matches of a non-recomposable import is rejected.
package engine
