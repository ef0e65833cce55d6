// Package bind keeps an HTML document in sync with a store through
// declarative bindings.
//
// Each bound element is described by a Descriptor addressed by its
// data-tapas-id attribute. A Controller registers every bound element in an
// element registry, compiles the descriptor's expressions once and attaches
// memoized bindings that touch the document only when their value changes:
//
//	ctl := bind.New(doc, st, cat)
//	if err := ctl.BindAll(descriptors); err != nil { ... }
//	if err := ctl.Bootstrap(); err != nil { ... }
//
// Expressions see the element's merged scope: the data of its ancestors and
// itself (list items bind item and index), the values of the selectors
// declared on the chain, and state, the element's own scratch state. Event
// callbacks also see event and set_state.
//
// A store notification recomputes each subscribed selector and re-applies
// the bindings of the element that declared it; descendants are re-applied
// only through set_state and list updates.
//
// List bindings stamp one copy of a template child per item. Copies keep
// hierarchical ids: the template "1.2.1" yields "1.2.1", "1.2.2" and so on,
// and the configurations nested under the template are bound onto every
// copy with the ids rewritten.
//
// A Controller is owned by one goroutine. Work from elsewhere, including
// actions put by store effects, goes through Post and runs on Run or on the
// next Drain.
package bind
