// Package catalog provides queryable collections of part definitions.
//
// A Catalog answers "which exports match this constraint" with
// (part definition, export definition) pairs. Static catalogs never change;
// Mutable, Aggregate and Directory catalogs publish ChangeEvent deltas to
// subscribers, which is how a container learns that it has to recompose.
//
// Each catalog owns a memo of its export queries. The memo lives and dies
// with the catalog and is flushed on every change.
package catalog
