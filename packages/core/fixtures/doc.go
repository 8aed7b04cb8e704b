// Package fixtures manages shared fixture instances for one scope of a test
// run (assembly, collection or class).
//
// A Manager creates each requested fixture type at most once, initializes it
// when it implements lifetime.AsyncInitializer, serves lookups for the scope
// and its children, and disposes every instance it created exactly once.
// Managers form a chain: a class scope reads collection and assembly fixtures
// through its parent.
package fixtures
