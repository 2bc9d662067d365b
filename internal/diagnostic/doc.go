// Package diagnostic provides structured errors, warnings and notes produced
// while loading a template and while mapping a batch of source files.
//
// Key capabilities:
//   - Structural template defects, located by group and rule
//   - Lint warnings with "did you mean" suggestions
//   - Duplicate identity reports listing both provenances
package diagnostic
