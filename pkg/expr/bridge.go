package expr

import (
	"math"
	"reflect"
	"strconv"

	lua "github.com/yuin/gopher-lua"

	"github.com/vango-dev/tapas/internal/errors"
)

// converter moves values between Go and one Lua state for the duration of
// an evaluation. Tables built from Go values remember their origin so a
// table that comes back unchanged converts to the very same Go value.
type converter struct {
	engine  *Engine
	L       *lua.LState
	origin  map[lua.LValue]any
	built   map[refKey]lua.LValue
	pending error
}

type refKey struct {
	typ reflect.Type
	ptr uintptr
	len int
}

func (e *Engine) newConverter(L *lua.LState) *converter {
	return &converter{
		engine: e,
		L:      L,
		origin: make(map[lua.LValue]any),
		built:  make(map[refKey]lua.LValue),
	}
}

func (c *converter) toLua(v any) lua.LValue {
	switch val := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(val)
	case string:
		return lua.LString(val)
	case int:
		return lua.LNumber(val)
	case int64:
		return lua.LNumber(val)
	case int32:
		return lua.LNumber(val)
	case float64:
		return lua.LNumber(val)
	case float32:
		return lua.LNumber(val)
	case uint:
		return lua.LNumber(val)
	case uint64:
		return lua.LNumber(val)
	case uint32:
		return lua.LNumber(val)
	case []byte:
		return lua.LString(val)
	case Func:
		return c.wrapFunc(val)
	case func(args ...any) (any, error):
		return c.wrapFunc(val)
	case lua.LValue:
		return val
	}
	return c.reflectToLua(reflect.ValueOf(v), v)
}

func (c *converter) reflectToLua(rv reflect.Value, orig any) lua.LValue {
	switch rv.Kind() {
	case reflect.Pointer:
		if rv.IsNil() {
			return lua.LNil
		}
		if rv.Elem().Kind() == reflect.Struct {
			key := refKey{typ: rv.Type(), ptr: rv.Pointer()}
			if lv, ok := c.built[key]; ok {
				return lv
			}
			t := c.L.NewTable()
			c.built[key] = t
			c.origin[t] = orig
			c.fillStruct(t, rv.Elem())
			return t
		}
		return c.toLua(rv.Elem().Interface())

	case reflect.Slice, reflect.Array:
		var key refKey
		if rv.Kind() == reflect.Slice {
			if rv.IsNil() {
				return c.remember(c.L.NewTable(), orig)
			}
			key = refKey{typ: rv.Type(), ptr: rv.Pointer(), len: rv.Len()}
			if lv, ok := c.built[key]; ok {
				return lv
			}
		}
		t := c.L.NewTable()
		if key.ptr != 0 {
			c.built[key] = t
		}
		c.remember(t, orig)
		for i := 0; i < rv.Len(); i++ {
			t.RawSetInt(i+1, c.toLua(rv.Index(i).Interface()))
		}
		return t

	case reflect.Map:
		if rv.IsNil() {
			return c.remember(c.L.NewTable(), orig)
		}
		key := refKey{typ: rv.Type(), ptr: rv.Pointer()}
		if lv, ok := c.built[key]; ok {
			return lv
		}
		t := c.L.NewTable()
		c.built[key] = t
		c.remember(t, orig)
		iter := rv.MapRange()
		for iter.Next() {
			t.RawSet(c.toLua(iter.Key().Interface()), c.toLua(iter.Value().Interface()))
		}
		return t

	case reflect.Struct:
		t := c.L.NewTable()
		c.remember(t, orig)
		c.fillStruct(t, rv)
		return t

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return lua.LNumber(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return lua.LNumber(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return lua.LNumber(rv.Float())
	case reflect.String:
		return lua.LString(rv.String())
	case reflect.Bool:
		return lua.LBool(rv.Bool())
	}

	ud := c.L.NewUserData()
	ud.Value = orig
	return ud
}

func (c *converter) remember(t *lua.LTable, orig any) *lua.LTable {
	if orig != nil {
		c.origin[t] = orig
	}
	return t
}

func (c *converter) fillStruct(t *lua.LTable, rv reflect.Value) {
	rt := rv.Type()
	for i := 0; i < rv.NumField(); i++ {
		f := rt.Field(i)
		if !f.IsExported() {
			continue
		}
		name, skip := fieldName(f)
		if skip {
			continue
		}
		t.RawSetString(name, c.toLua(rv.Field(i).Interface()))
	}
}

// wrapFunc exposes fn to Lua. Arguments and results go through the
// converter of whichever evaluation is running on the calling state.
func (c *converter) wrapFunc(fn Func) *lua.LFunction {
	lf := c.L.NewFunction(func(L *lua.LState) int {
		cur := c.engine.session(L)
		if cur == nil {
			cur = c.engine.newConverter(L)
		}
		n := L.GetTop()
		args := make([]any, n)
		for i := 1; i <= n; i++ {
			args[i-1] = cur.toGo(L.Get(i))
		}
		result, err := fn(args...)
		if err != nil {
			cur.pending = err
			L.RaiseError("%s", err.Error())
			return 0
		}
		L.Push(cur.toLua(result))
		return 1
	})
	c.origin[lf] = fn
	return lf
}

func (c *converter) toGo(lv lua.LValue) any {
	if orig, ok := c.origin[lv]; ok {
		return orig
	}
	switch v := lv.(type) {
	case *lua.LNilType:
		return nil
	case lua.LBool:
		return bool(v)
	case lua.LString:
		return string(v)
	case lua.LNumber:
		f := float64(v)
		if f == math.Trunc(f) && f >= math.MinInt64 && f <= math.MaxInt64 {
			return int64(f)
		}
		return f
	case *lua.LTable:
		return c.tableToGo(v, make(map[*lua.LTable]bool))
	case *lua.LUserData:
		return v.Value
	case *lua.LFunction:
		return c.luaFunc(v)
	}
	return nil
}

// luaFunc turns a function defined inside an expression into a Func that
// can be called after the evaluation returned.
func (c *converter) luaFunc(fn *lua.LFunction) Func {
	e := c.engine
	return func(args ...any) (any, error) {
		L, err := e.acquire()
		if err != nil {
			return nil, err
		}
		defer e.release(L)
		cur := e.newConverter(L)
		e.activate(L, cur)

		top := L.GetTop()
		L.Push(fn)
		for _, a := range args {
			L.Push(cur.toLua(a))
		}
		if err := L.PCall(len(args), 1, nil); err != nil {
			L.SetTop(top)
			if cur.pending != nil {
				return nil, errors.New("E011").Wrap(cur.pending)
			}
			return nil, errors.New("E011").Wrap(err)
		}
		ret := L.Get(-1)
		L.SetTop(top)
		return cur.toGo(ret), nil
	}
}

// tableToGo converts an unknown table to []any when its keys are exactly
// 1..n and to map[string]any otherwise. An empty table becomes an empty
// slice.
func (c *converter) tableToGo(t *lua.LTable, visited map[*lua.LTable]bool) any {
	if orig, ok := c.origin[t]; ok {
		return orig
	}
	if visited[t] {
		return nil
	}
	visited[t] = true

	count, maxN, isArray := 0, 0, true
	t.ForEach(func(k, _ lua.LValue) {
		count++
		if kn, ok := k.(lua.LNumber); ok {
			n := int(kn)
			if float64(n) == float64(kn) && n > 0 {
				if n > maxN {
					maxN = n
				}
				return
			}
		}
		isArray = false
	})

	convert := func(v lua.LValue) any {
		if sub, ok := v.(*lua.LTable); ok {
			return c.tableToGo(sub, visited)
		}
		return c.toGo(v)
	}

	if isArray && count == maxN {
		arr := make([]any, maxN)
		for i := 1; i <= maxN; i++ {
			arr[i-1] = convert(t.RawGetInt(i))
		}
		return arr
	}

	m := make(map[string]any, count)
	t.ForEach(func(k, v lua.LValue) {
		var key string
		switch kv := k.(type) {
		case lua.LString:
			key = string(kv)
		case lua.LNumber:
			key = strconv.FormatFloat(float64(kv), 'f', -1, 64)
		default:
			key = k.String()
		}
		m[key] = convert(v)
	})
	return m
}
