// Package part turns Go types into composable parts.
//
// Define declares a part type: its constructor, the exports it offers and
// the imports it needs. The result is registered in a registry.Registry and
// carries a definition.PartDefinition whose factory creates *Instance
// values. Site binds definitions discovered elsewhere (manifests, caches) to
// the same registrations.
package part
