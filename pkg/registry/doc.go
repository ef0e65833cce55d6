// Package registry keeps the ownership tree of bound elements.
//
// Each registered element gets a Handle and a Node record holding its
// parent, children, data, state, selectors, bindings and events. Parents
// are found lazily by walking the host element tree, so an element can be
// registered before or after its children as long as both end up
// registered.
//
// Configs stores the declarative configuration of every element under a
// hierarchical id. List bindings use it to find the configuration of a
// template's subtree when they stamp new items.
package registry
