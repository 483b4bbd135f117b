// Package registry provides the central "glue" between declared parts and
// the Go code that implements them.
//
// The Registry stores, per part type name, the constructor of the part
// object plus the getters and setters behind each export and import member.
// Definitions discovered elsewhere (HCL manifests, cache artifacts) only
// carry names; they are bound to working factories through this registry.
//
// During startup, definitions are validated against the registry so that
// the Go code and the public-facing manifests stay in sync, preventing a
// wide class of runtime errors.
package registry
