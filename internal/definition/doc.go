// Package definition holds the immutable data model of the composition
// system: contracts, export and import definitions, part definitions and the
// runtime Export handle.
//
// # Why a separate definition layer
//
// Definitions are produced once (by the builder API, by HCL manifests or by
// the cache reader) and then shared by catalogs, the engine and the cache
// compiler. None of them carry mutable state, so they can be read from any
// goroutine without locking. Everything with behavior (activation, import
// assignment, disposal) lives behind the Part interface.
//
// # Identity
//
//   - ExportDefinition: structural (contract name + metadata).
//   - ImportDefinition: structural (constraint + cardinality + flags).
//   - PartDefinition: structural via Equal, reference identity elsewhere.
//
// Metadata values are cty.Value so that they survive the trip through HCL
// manifests and the cache artifact without losing type information.
package definition
