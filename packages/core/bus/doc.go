// Package bus delivers run messages to a sink.
//
// Delivery is synchronous and serialized: concurrent producers never call
// the sink at the same time. The bus also implements stop-on-fail, turning
// the first failing test outcome into a sticky "stop" answer for every
// producer while still delivering everything it is given.
package bus
