// Package services defines shared utilities consumed by the publish pipeline
// and external integrations.
//
// It carries two concerns:
//   - Context helpers that stamp item keys, stage names, and run identifiers
//     for logging and tracing.
//   - Error markers and the Wrap helper that fold failures into consistent
//     post attempt failure reasons.
//
// Use these helpers when wiring new pipeline logic so operational behaviour
// (error handling, observability, retries) stays uniform across the run.
package services
