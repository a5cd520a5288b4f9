// Package scripting lets actors and worlds be written in Lua.
package scripting

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sarchlab/actsim/grid"
	"github.com/sarchlab/actsim/sim"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// WorldScript is the script name that holds the world's own callbacks.
const WorldScript = "world"

// A Sleeper delays user code, usually the scheduler.
type Sleeper interface {
	SleepCycles(n int) error
}

// A ToneSink plays short tones.
type ToneSink interface {
	PlayTone(freq float64, d time.Duration)
}

type kind struct {
	name  string
	act   *lua.LFunction
	glyph rune
}

// Engine wraps a single gopher-lua VM. The VM is only used from the act loop
// goroutine, apart from loading scripts before the loop starts.
type Engine struct {
	vm  *lua.LState
	log *zap.Logger

	kinds       map[string]*kind
	worldScript *lua.LTable

	sleeper Sleeper
	tones   ToneSink
	world   *grid.World

	current     *LuaActor
	interrupted error
}

// NewEngine creates a Lua engine with the actor API installed.
func NewEngine(log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}

	vm := lua.NewState(lua.Options{
		SkipOpenLibs: false,
	})

	vm.SetGlobal("API_VERSION", lua.LNumber(1))

	e := &Engine{
		vm:    vm,
		log:   log,
		kinds: make(map[string]*kind),
	}
	e.registerAPI()

	return e
}

// Close releases the VM.
func (e *Engine) Close() {
	e.vm.Close()
}

// SetSleeper sets what delay() calls.
func (e *Engine) SetSleeper(s Sleeper) {
	e.sleeper = s
}

// SetToneSink sets what tone() calls.
func (e *Engine) SetToneSink(t ToneSink) {
	e.tones = t
}

// Bind sets the world that scripts add actors to and query.
func (e *Engine) Bind(w *grid.World) {
	e.world = w
	w.SetHooks(e.worldHooks())
}

// LoadDir loads every .lua file in a directory. Each file defines the actor
// kind named after it, except world.lua, which defines the world callbacks.
func (e *Engine) LoadDir(dir string) error {
	if err := e.LoadFS(os.DirFS(dir)); err != nil {
		return fmt.Errorf("scripts %s: %w", dir, err)
	}

	return nil
}

// LoadFS loads every .lua file at the root of fsys, the same way LoadDir
// does.
func (e *Engine) LoadFS(fsys fs.FS) error {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() || path.Ext(entry.Name()) != ".lua" {
			continue
		}

		src, err := fs.ReadFile(fsys, entry.Name())
		if err != nil {
			return err
		}

		name := strings.TrimSuffix(entry.Name(), ".lua")
		if err := e.LoadString(name, string(src)); err != nil {
			return err
		}

		e.log.Debug("loaded lua script", zap.String("file", entry.Name()))
	}

	return nil
}

// LoadString defines a script from source.
func (e *Engine) LoadString(name, src string) error {
	fn, err := e.vm.LoadString(src)
	if err != nil {
		return fmt.Errorf("load %s: %w", name, err)
	}

	return e.define(name, fn)
}

func (e *Engine) define(name string, chunk *lua.LFunction) error {
	if err := e.vm.CallByParam(lua.P{
		Fn:      chunk,
		NRet:    1,
		Protect: true,
	}); err != nil {
		return err
	}

	ret := e.vm.Get(-1)
	e.vm.Pop(1)

	tbl, ok := ret.(*lua.LTable)
	if !ok {
		return fmt.Errorf("script %s must return a table, got %s",
			name, ret.Type())
	}

	if name == WorldScript {
		e.worldScript = tbl
		return nil
	}

	act, ok := tbl.RawGetString("act").(*lua.LFunction)
	if !ok {
		return fmt.Errorf("script %s has no act function", name)
	}

	k := &kind{name: name, act: act, glyph: '?'}
	if g := lua.LVAsString(tbl.RawGetString("glyph")); g != "" {
		k.glyph, _ = utf8.DecodeRuneInString(g)
	}

	e.kinds[name] = k

	return nil
}

// Kinds returns the names of the loaded actor kinds.
func (e *Engine) Kinds() []string {
	names := make([]string, 0, len(e.kinds))
	for name := range e.kinds {
		names = append(names, name)
	}

	return names
}

// NewActor creates an actor of a loaded kind. It does not touch the VM, so
// it may be called from any goroutine.
func (e *Engine) NewActor(kindName string) (*LuaActor, error) {
	k, ok := e.kinds[kindName]
	if !ok {
		return nil, fmt.Errorf("unknown actor kind %q", kindName)
	}

	return &LuaActor{engine: e, kind: k}, nil
}

// call runs a Lua function for an actor, or for the world if a is nil. A
// delay() that was interrupted surfaces as sim.ErrInterrupted.
func (e *Engine) call(a *LuaActor, fn *lua.LFunction, args ...lua.LValue) error {
	prev := e.current
	e.current = a
	e.interrupted = nil

	err := e.vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    0,
		Protect: true,
	}, args...)

	e.current = prev
	interrupted := e.interrupted
	e.interrupted = nil

	if interrupted != nil {
		return interrupted
	}

	return err
}

func (e *Engine) worldHooks() grid.Hooks {
	if e.worldScript == nil {
		return grid.Hooks{}
	}

	h := grid.Hooks{}

	if fn, ok := e.worldScript.RawGetString("act").(*lua.LFunction); ok {
		h.Act = func() error { return e.call(nil, fn) }
	}

	if fn, ok := e.worldScript.RawGetString("started").(*lua.LFunction); ok {
		h.Started = func() { e.logHookError("started", e.call(nil, fn)) }
	}

	if fn, ok := e.worldScript.RawGetString("stopped").(*lua.LFunction); ok {
		h.Stopped = func() { e.logHookError("stopped", e.call(nil, fn)) }
	}

	return h
}

func (e *Engine) logHookError(hook string, err error) {
	if err == nil || errors.Is(err, sim.ErrInterrupted) {
		return
	}

	e.log.Error("world hook failed", zap.String("hook", hook), zap.Error(err))
}
