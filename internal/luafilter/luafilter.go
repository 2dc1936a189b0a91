// Package luafilter evaluates small sandboxed Lua predicates over file
// records. Only the base, string, table and math libraries are opened.
package luafilter

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"
)

const (
	defaultTimeout   = 200 * time.Millisecond
	registrySize     = 256
	registryMaxSize  = 4096
	timeoutViolation = "sandbox timeout"
)

// ErrNotBoolean is returned when a predicate yields a non-boolean value.
var ErrNotBoolean = errors.New("predicate must return a boolean")

// Predicate is a compiled Lua chunk evaluated once per record. A Predicate is
// not safe for concurrent use.
type Predicate struct {
	proto   *lua.FunctionProto
	timeout time.Duration
	state   *lua.LState
}

// Compile parses code into a reusable predicate. A zero timeout uses the default.
func Compile(name, code string, timeout time.Duration) (*Predicate, error) {
	chunk, err := parse.Parse(strings.NewReader(code), name)
	if err != nil {
		return nil, fmt.Errorf("%s: %v", name, err)
	}
	proto, err := lua.Compile(chunk, name)
	if err != nil {
		return nil, fmt.Errorf("%s: %v", name, err)
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Predicate{proto: proto, timeout: timeout}, nil
}

// Match runs the predicate with globals bound and returns its boolean result.
func (p *Predicate) Match(globals map[string]any) (bool, error) {
	if p == nil {
		return true, nil
	}
	if p.state == nil {
		p.state = newSandboxState()
	}
	L := p.state
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	L.SetContext(ctx)
	defer L.RemoveContext()

	for k, v := range globals {
		L.SetGlobal(k, toLValue(L, v))
	}
	L.Push(L.NewFunctionFromProto(p.proto))
	if err := L.PCall(0, 1, nil); err != nil {
		if isTimeoutError(err) {
			return false, errors.New(timeoutViolation)
		}
		return false, err
	}
	ret := L.Get(-1)
	L.Pop(1)
	b, ok := ret.(lua.LBool)
	if !ok {
		return false, ErrNotBoolean
	}
	return bool(b), nil
}

// Close releases the underlying Lua state.
func (p *Predicate) Close() {
	if p != nil && p.state != nil {
		p.state.Close()
		p.state = nil
	}
}

func newSandboxState() *lua.LState {
	L := lua.NewState(lua.Options{
		SkipOpenLibs:     true,
		RegistrySize:     registrySize,
		RegistryMaxSize:  registryMaxSize,
		RegistryGrowStep: 0,
	})
	for _, lib := range []struct {
		name string
		fn   lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.StringLibName, lua.OpenString},
		{lua.TabLibName, lua.OpenTable},
		{lua.MathLibName, lua.OpenMath},
	} {
		L.Push(L.NewFunction(lib.fn))
		L.Push(lua.LString(lib.name))
		L.Call(1, 0)
	}
	// No filesystem or process access from filters.
	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "require"} {
		L.SetGlobal(name, lua.LNil)
	}
	return L
}

func isTimeoutError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "deadline") || strings.Contains(msg, "context canceled")
}

func toLValue(L *lua.LState, v any) lua.LValue {
	switch x := v.(type) {
	case nil:
		return lua.LNil
	case string:
		return lua.LString(x)
	case bool:
		return lua.LBool(x)
	case int:
		return lua.LNumber(float64(x))
	case int64:
		return lua.LNumber(float64(x))
	case float64:
		return lua.LNumber(x)
	case map[string]any:
		tbl := L.NewTable()
		for k, v2 := range x {
			tbl.RawSetString(k, toLValue(L, v2))
		}
		return tbl
	case []any:
		tbl := L.NewTable()
		for i, v2 := range x {
			tbl.RawSetInt(i+1, toLValue(L, v2))
		}
		return tbl
	default:
		return lua.LNil
	}
}
