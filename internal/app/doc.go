// Package app wires the composition engine into a runnable program: it
// builds the logger and the tracer, registers the built-in part modules,
// assembles the catalog from manifests or a cache and composes the root
// contract. It is decoupled from any specific entrypoint like a CLI.
package app
