package script

import (
	"bufio"
	"fmt"
	"math/rand"
	"os"
	"time"

	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"

	"httpload/internal/generator"
)

const (
	luaCycleFunc = "onCycle"
	luaCallFunc  = "onCall"
)

// LuaProgram is a compiled Lua script. Each generator runs it in its own
// interpreter state.
//
// The script defines onCall(n), returning the text of call n or nil to end
// the cycle, and optionally onCycle(), run before call 1 of every cycle. The
// html table exposes the last response body:
//
//	html.getMatches(regex)                      lines containing a match
//	html.extractMatches(regex)                  all matches
//	html.extractMatches(prefix, regex, postfix) matches between prefix and postfix
type LuaProgram struct {
	path  string
	proto *lua.FunctionProto
}

// CompileLua parses the script at path. A missing or malformed script is a
// configuration error.
func CompileLua(path string) (*LuaProgram, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", generator.ErrConfiguration, err)
	}
	defer f.Close()

	chunk, err := parse.Parse(bufio.NewReader(f), path)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing %s: %v", generator.ErrConfiguration, path, err)
	}
	proto, err := lua.Compile(chunk, path)
	if err != nil {
		return nil, fmt.Errorf("%w: compiling %s: %v", generator.ErrConfiguration, path, err)
	}
	return &LuaProgram{path: path, proto: proto}, nil
}

// Lua runs a LuaProgram for one generator. Not safe for concurrent use.
type Lua struct {
	L       *lua.LState
	onCycle *lua.LFunction
	onCall  *lua.LFunction
	rng     *rand.Rand
	content Content
}

// NewScript starts an interpreter, installs the html library and a math.random
// seeded with seed, and runs the program's top level. A zero seed picks one.
func (p *LuaProgram) NewScript(seed int64) (*Lua, error) {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	s := &Lua{
		L:   lua.NewState(),
		rng: rand.New(rand.NewSource(seed)),
	}
	s.install()

	s.L.Push(s.L.NewFunctionFromProto(p.proto))
	if err := s.L.PCall(0, lua.MultRet, nil); err != nil {
		s.L.Close()
		return nil, fmt.Errorf("%w: running %s: %v", generator.ErrConfiguration, p.path, err)
	}

	var ok bool
	if s.onCall, ok = s.L.GetGlobal(luaCallFunc).(*lua.LFunction); !ok {
		s.L.Close()
		return nil, fmt.Errorf("%w: %s does not define %s(n)", generator.ErrConfiguration, p.path, luaCallFunc)
	}
	s.onCycle, _ = s.L.GetGlobal(luaCycleFunc).(*lua.LFunction)
	return s, nil
}

func (s *Lua) install() {
	html := s.L.SetFuncs(s.L.NewTable(), map[string]lua.LGFunction{
		"getMatches":     s.getMatches,
		"extractMatches": s.extractMatches,
	})
	s.L.SetGlobal("html", html)

	if math, ok := s.L.GetGlobal("math").(*lua.LTable); ok {
		s.L.SetField(math, "random", s.L.NewFunction(s.random))
		s.L.SetField(math, "randomseed", s.L.NewFunction(s.randomseed))
	}
}

// OnCycle calls onCycle when the script defines it. The last response
// stays available, so the first call of a cycle can build on the page the
// previous cycle ended with.
func (s *Lua) OnCycle() error {
	if s.onCycle == nil {
		return nil
	}
	return s.L.CallByParam(lua.P{Fn: s.onCycle, NRet: 0, Protect: true})
}

// OnCall calls onCall(n). nil or false ends the cycle.
func (s *Lua) OnCall(n int) (string, bool, error) {
	if err := s.L.CallByParam(lua.P{Fn: s.onCall, NRet: 1, Protect: true}, lua.LNumber(n)); err != nil {
		return "", false, err
	}
	ret := s.L.Get(-1)
	s.L.Pop(1)

	if lua.LVIsFalse(ret) {
		return "", false, nil
	}
	str, ok := ret.(lua.LString)
	if !ok {
		return "", false, fmt.Errorf("%s(%d) returned a %s, want string or nil", luaCallFunc, n, ret.Type())
	}
	return string(str), true, nil
}

func (s *Lua) Observe(body string) { s.content.Set(body) }

// Close releases the interpreter.
func (s *Lua) Close() error {
	s.L.Close()
	return nil
}

func (s *Lua) getMatches(L *lua.LState) int {
	lines, err := s.content.Lines(L.CheckString(1))
	if err != nil {
		L.RaiseError("%v", err)
		return 0
	}
	L.Push(stringTable(L, lines))
	return 1
}

func (s *Lua) extractMatches(L *lua.LState) int {
	var (
		found []string
		err   error
	)
	if L.GetTop() >= 3 {
		found, err = s.content.ExtractBetween(L.CheckString(1), L.CheckString(2), L.CheckString(3))
	} else {
		found, err = s.content.Extract(L.CheckString(1))
	}
	if err != nil {
		L.RaiseError("%v", err)
		return 0
	}
	L.Push(stringTable(L, found))
	return 1
}

func stringTable(L *lua.LState, values []string) *lua.LTable {
	t := L.CreateTable(len(values), 0)
	for _, v := range values {
		t.Append(lua.LString(v))
	}
	return t
}

// random follows Lua's math.random: no arguments gives a float in [0,1),
// random(m) an integer in [1,m], random(m,n) an integer in [m,n].
func (s *Lua) random(L *lua.LState) int {
	switch L.GetTop() {
	case 0:
		L.Push(lua.LNumber(s.rng.Float64()))
	case 1:
		hi := L.CheckInt(1)
		if hi < 1 {
			L.ArgError(1, "interval is empty")
		}
		L.Push(lua.LNumber(1 + s.rng.Intn(hi)))
	default:
		lo, hi := L.CheckInt(1), L.CheckInt(2)
		if lo > hi {
			L.ArgError(2, "interval is empty")
		}
		L.Push(lua.LNumber(lo + s.rng.Intn(hi-lo+1)))
	}
	return 1
}

func (s *Lua) randomseed(L *lua.LState) int {
	s.rng.Seed(L.CheckInt64(1))
	return 0
}
