// Package cmd implements the hitrun CLI commands using Cobra.
//
// Available commands:
//   - run: Execute test plans
//   - validate: Check plans against the schema without executing
//   - list: Display the test cases a plan defines
//   - history: Show recorded runs
//   - init: Create a config file and an example plan
//   - version: Show hitrun version information
//
// The CLI supports flags for filtering, output formatting, parallel
// execution, metrics, run history and watch mode.
package cmd
