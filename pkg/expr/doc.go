// Package expr compiles binding snippets into reusable programs.
//
// A snippet is Lua source. It may be a bare expression or several
// statements; unless it already returns, the value of its final statement is
// returned (see AddExplicitReturn). Statement separators inside parenthesis
// groups are left alone so call arguments are never split:
//
//	e := expr.NewEngine()
//	p, _ := e.Compile("local n = #items; n * 2")
//	v, _ := p.Eval(expr.Scope{"items": []any{1, 2, 3}}) // int64(6)
//
// Values cross into Lua as tables, numbers, strings and booleans. A table
// that started life as a Go value comes back as that same value, so a binding
// that returns its input unchanged keeps its identity for change detection.
package expr
