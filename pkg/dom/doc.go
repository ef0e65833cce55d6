// Package dom is a small server-side document model over golang.org/x/net/html.
//
// It gives the binding engine the handful of browser operations it needs:
// CSS selector queries (via cascadia), attribute and class edits, text and
// markup replacement, deep cloning, and bubbling event listeners.
//
// Mutations of attached nodes are reported to observers as Patch values so a
// transport can mirror the document in a browser:
//
//	stop := doc.Observe(func(p dom.Patch) { send(p) })
//	defer stop()
package dom
