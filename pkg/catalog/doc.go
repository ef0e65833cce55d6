// Package catalog holds the named selectors, action creators and transforms
// that binding descriptors refer to.
//
// Names are resolved once, when an element is bound. A name that is not
// registered is a fatal lookup error (E001 selector, E002 action, E003
// transform).
//
// Builtins:
//
//	selector  custom   dot-path lookup: custom("list.search")
//	transform upper, lower, trim, title, string, json, length
//
// Applications add their own entries, usually generated from tapas.json with
// Path, Filter and Dispatch.
package catalog
