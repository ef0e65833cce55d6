// Package errors provides structured, coded errors for Tapas.
//
// Every failure the binding engine reports carries a stable code (e.g. "E001")
// that maps to a category, a short message and a documentation URL. Errors
// built with New compare equal under errors.Is when their codes match, so a
// package can export sentinels:
//
//	var ErrUnknownSelector = errors.New("E001")
//
//	if stderrors.Is(err, ErrUnknownSelector) { ... }
//
// # Error Codes
//
//   - E001-E009: catalog and element lookups
//   - E010-E019: expression compilation and evaluation
//   - E020-E029: value shape mismatches (list of non-sequence)
//   - E030-E039: element registry and binding
//   - E040-E049: binding descriptor documents
//   - E120-E139: configuration
//   - E140-E149: command line
//
// # Usage
//
//	err := errors.New("E041").
//	    WithLocation("bindings.yaml", 12, 3).
//	    WithSuggestion("add an id: key to the entry")
//
//	fmt.Println(err.Format())
package errors
