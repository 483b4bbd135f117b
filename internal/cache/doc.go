// Package cache persists discovered part definitions so later runs can skip
// discovery.
//
// A Writer serializes one or more catalogs (contracts, metadata,
// cardinalities and flags, never behavior) into a single artifact, each
// under its own Token; one token is the root. A Reader verifies the
// artifact's checksum up front and rebuilds catalogs, binding every
// definition to a live factory through a catalog.Binder such as part.Site.
// Writing a catalog read back from a cache yields the same bytes.
//
// Artifacts are kept in a Store: FileStore or SQLiteStore.
package cache
