// Package assertions evaluates the assert blocks of plan tests against the
// output of a command.
//
// Subjects select a value: exitCode, duration, stdout, stderr, lines, json
// or a path into the JSON a command printed (json.user.id, items[0]).
// Operators compare it: equals, contains, matches, >, length, in, type,
// schema (a JSON schema file), each (applied per array item) and snapshot.
// Every positive operator with a negative form (contains, exists, ...) has a
// not-prefixed twin.
package assertions
