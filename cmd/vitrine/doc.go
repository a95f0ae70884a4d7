// Package main hosts the vitrine CLI entrypoint and command graph.
//
// The Cobra-based command tree covers the publish run itself, catalog
// import and maintenance, authorization bootstrap, run and attempt history,
// and configuration scaffolding. It centralizes configuration resolution
// and dependency wiring so subcommands can focus on user experience.
//
// New behaviour belongs in the internal packages; commands here stay thin
// wrappers that parse flags, wire dependencies, and render output.
package main
