package expr

import (
	"fmt"
	"strings"
	"sync"

	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"

	"github.com/vango-dev/tapas/internal/errors"
)

// Scope is the flat name to value record an expression runs against.
type Scope map[string]any

// Func is a Go function callable from expressions. An error returned here
// aborts the evaluation and is reported in the evaluation error chain.
type Func func(args ...any) (any, error)

// Engine compiles binding snippets and evaluates them on a pool of Lua
// states. Compiled programs are cached by source text.
//
// Each evaluation borrows its own state, so programs may be evaluated from
// several goroutines and evaluation may nest (a Func that evaluates another
// program borrows a second state).
type Engine struct {
	mu      sync.Mutex
	free    []*lua.LState
	all     []*lua.LState
	cache   map[string]*Program
	globals map[string]any
	active  map[*lua.LState]*converter
	closed  bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithGlobal installs a value in the global table of every state.
func WithGlobal(name string, v any) Option {
	return func(e *Engine) {
		e.globals[name] = v
	}
}

// NewEngine creates an expression engine.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		cache:   make(map[string]*Program),
		globals: make(map[string]any),
		active:  make(map[*lua.LState]*converter),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Program is a compiled expression. It is immutable and may be evaluated
// any number of times.
type Program struct {
	engine *Engine
	proto  *lua.FunctionProto

	// Source is the snippet as written.
	Source string
	// Code is the chunk actually compiled, with the implicit return added.
	Code string
}

// Compile normalizes and compiles src. Compiling the same source twice
// returns the cached program.
func (e *Engine) Compile(src string) (*Program, error) {
	e.mu.Lock()
	if p, ok := e.cache[src]; ok {
		e.mu.Unlock()
		return p, nil
	}
	e.mu.Unlock()

	code := AddExplicitReturn(src)
	chunk, err := parse.Parse(strings.NewReader(code), "<expr>")
	if err != nil {
		return nil, errors.New("E010").WithDetailf("%q", src).Wrap(err)
	}
	proto, err := lua.Compile(chunk, "<expr>")
	if err != nil {
		return nil, errors.New("E010").WithDetailf("%q", src).Wrap(err)
	}

	p := &Program{engine: e, proto: proto, Source: src, Code: code}
	e.mu.Lock()
	if cached, ok := e.cache[src]; ok {
		p = cached
	} else {
		e.cache[src] = p
	}
	e.mu.Unlock()
	return p, nil
}

// Eval compiles src (or reuses the cached program) and evaluates it.
func (e *Engine) Eval(src string, scope Scope) (any, error) {
	p, err := e.Compile(src)
	if err != nil {
		return nil, err
	}
	return p.Eval(scope)
}

// Eval runs the program with scope bound as its environment. Names that are
// not in scope fall back to the Lua globals.
func (p *Program) Eval(scope Scope) (any, error) {
	L, err := p.engine.acquire()
	if err != nil {
		return nil, err
	}
	defer p.engine.release(L)

	c := p.engine.newConverter(L)
	p.engine.activate(L, c)
	env := L.NewTable()
	for name, v := range scope {
		env.RawSetString(name, c.toLua(v))
	}
	meta := L.NewTable()
	meta.RawSetString("__index", L.G.Global)
	L.SetMetatable(env, meta)

	fn := L.NewFunctionFromProto(p.proto)
	fn.Env = env

	top := L.GetTop()
	L.Push(fn)
	if err := L.PCall(0, 1, nil); err != nil {
		L.SetTop(top)
		ee := errors.New("E011").WithDetailf("%q", p.Source)
		if c.pending != nil {
			return nil, ee.Wrap(c.pending)
		}
		return nil, ee.Wrap(err)
	}
	ret := L.Get(-1)
	L.SetTop(top)
	return c.toGo(ret), nil
}

// Close releases every pooled state. Evaluations after Close fail.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	for _, L := range e.all {
		L.Close()
	}
	e.free = nil
	e.all = nil
}

func (e *Engine) acquire() (*lua.LState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, fmt.Errorf("expr: engine closed")
	}
	if n := len(e.free); n > 0 {
		L := e.free[n-1]
		e.free = e.free[:n-1]
		return L, nil
	}
	L := e.newState()
	e.all = append(e.all, L)
	return L, nil
}

// activate makes c the converter Go functions running on L report to.
func (e *Engine) activate(L *lua.LState, c *converter) {
	e.mu.Lock()
	e.active[L] = c
	e.mu.Unlock()
}

func (e *Engine) session(L *lua.LState) *converter {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active[L]
}

func (e *Engine) release(L *lua.LState) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.active, L)
	if e.closed {
		return
	}
	e.free = append(e.free, L)
}

// newState opens a state with the base, table, string and math libraries.
// Snippets are trusted but have no business touching io or os.
func (e *Engine) newState() *lua.LState {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)

	c := e.newConverter(L)
	for name, v := range e.globals {
		L.SetGlobal(name, c.toLua(v))
	}
	return L
}
