// Package model holds the descriptors a discovery provider hands to the
// runner: assemblies, collections, classes, methods and test cases, plus the
// run summary they aggregate into.
//
// Descriptors are built top-down with the New* helpers, which link parents and
// derive every unique ID deterministically from the descriptor's identity and
// its ancestors' IDs, so the same test has the same ID in every process.
package model
