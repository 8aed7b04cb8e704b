// Package builtin provides the template functions available in hitrun plans.
//
// Available functions:
//   - uuid(): a random UUID v4
//   - now(): current time in RFC 3339
//   - date(layout): current UTC date, default layout 2006-01-02
//   - timestamp(), timestampMs(): Unix time in seconds or milliseconds
//   - random(min, max): random integer in range
//   - randomString(length): random alphanumeric string
//   - base64(value), sha256(value): encodings of value
//   - env(name, fallback): environment variable with an optional fallback
//
// Functions are invoked with the {{name(args)}} syntax inside plan commands.
package builtin
