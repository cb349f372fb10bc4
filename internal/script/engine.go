// Package script runs user-provided Lua hooks against the event stream.
// A hook file defines on_event(event); a returned string is shown as a
// notice in the status line. Hooks observe events, they never alter them.
package script

import (
	"fmt"
	"os"
	"sync"

	lua "github.com/yuin/gopher-lua"

	"github.com/quarrylabs/quarry/internal/models"
)

// Engine executes one hook script in a sandboxed Lua state. The state is
// not safe for concurrent use, so calls are serialized by the mutex.
type Engine struct {
	mu   sync.Mutex
	path string
	L    *lua.LState
}

// NewEngine loads the hook script at path. The script must define an
// on_event function.
func NewEngine(path string) (*Engine, error) {
	e := &Engine{path: path}
	if err := e.Reload(); err != nil {
		return nil, err
	}
	return e, nil
}

// Reload re-reads and recompiles the script, replacing the Lua state.
// On failure the previous state stays in effect.
func (e *Engine) Reload() error {
	script, err := os.ReadFile(e.path)
	if err != nil {
		return fmt.Errorf("read hook script: %w", err)
	}

	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	openSafeLibs(L)

	if err := L.DoString(string(script)); err != nil {
		L.Close()
		return fmt.Errorf("load hook script: %w", err)
	}
	if L.GetGlobal("on_event") == lua.LNil {
		L.Close()
		return fmt.Errorf("hook script must define an 'on_event' function")
	}

	e.mu.Lock()
	if e.L != nil {
		e.L.Close()
	}
	e.L = L
	e.mu.Unlock()
	return nil
}

// OnEvent calls on_event(event) and returns the notice string, if any.
// Script errors are returned to the caller but leave the engine usable.
func (e *Engine) OnEvent(ev models.Event) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.L == nil {
		return "", nil
	}

	L := e.L
	L.Push(L.GetGlobal("on_event"))
	L.Push(eventToTable(L, ev))
	if err := L.PCall(1, 1, nil); err != nil {
		return "", fmt.Errorf("on_event: %w", err)
	}

	ret := L.Get(-1)
	L.Pop(1)
	if s, ok := ret.(lua.LString); ok {
		return string(s), nil
	}
	return "", nil
}

// Close releases the Lua state.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.L != nil {
		e.L.Close()
		e.L = nil
	}
}

// openSafeLibs loads only libraries that cannot touch the filesystem or
// spawn processes.
func openSafeLibs(L *lua.LState) {
	lua.OpenBase(L)
	L.SetGlobal("loadfile", lua.LNil)
	L.SetGlobal("dofile", lua.LNil)
	L.SetGlobal("load", lua.LNil)
	L.SetGlobal("loadstring", lua.LNil)
	L.SetGlobal("print", lua.LNil)

	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)

	// The Open* helpers leave their module tables on the stack.
	L.SetTop(0)
}

// eventToTable converts an event into the table shape hooks receive.
func eventToTable(L *lua.LState, ev models.Event) *lua.LTable {
	tbl := L.NewTable()
	L.SetField(tbl, "type", lua.LString(ev.Type))
	if ev.Phase != "" {
		L.SetField(tbl, "phase", lua.LString(ev.Phase))
	}
	if ev.File != "" {
		L.SetField(tbl, "file", lua.LString(ev.File))
	}
	if ev.Table != "" {
		L.SetField(tbl, "table", lua.LString(ev.Table))
	}
	if ev.Message != "" {
		L.SetField(tbl, "message", lua.LString(ev.Message))
	}
	if ev.Error != "" {
		L.SetField(tbl, "error", lua.LString(ev.Error))
	}
	if ev.Type == models.EventProgress {
		L.SetField(tbl, "percent_complete", lua.LNumber(ev.PercentComplete))
	}
	if ev.Tokens != nil {
		tokens := L.NewTable()
		L.SetField(tokens, "prompt", lua.LNumber(ev.Tokens.Prompt))
		L.SetField(tokens, "completion", lua.LNumber(ev.Tokens.Completion))
		L.SetField(tokens, "total", lua.LNumber(ev.Tokens.Total))
		L.SetField(tbl, "tokens", tokens)
	}
	return tbl
}
