// Package messages defines the structured events a test run emits and the
// sink contract that receives them.
//
// Every message carries a type discriminator (MessageType) and the
// correlation IDs of its level: assembly messages carry the assembly ID,
// collection messages add the collection ID, and so on down to individual
// tests. A Starting message at any level is always followed by exactly one
// matching Finished message carrying the same IDs.
//
// Messages serialize to JSON with a "$type" field; see Marshal and Unmarshal.
package messages
