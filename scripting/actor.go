package scripting

import (
	"fmt"

	"github.com/sarchlab/actsim/grid"
	lua "github.com/yuin/gopher-lua"
)

// A LuaActor is an actor whose act function is written in Lua.
type LuaActor struct {
	grid.ActorBase

	engine *Engine
	kind   *kind
	self   *lua.LTable
}

// Kind returns the name of the actor's script.
func (a *LuaActor) Kind() string {
	return a.kind.name
}

// Glyph returns the glyph declared by the script.
func (a *LuaActor) Glyph() rune {
	return a.kind.glyph
}

// Act calls the script's act function with the actor's own table.
func (a *LuaActor) Act() error {
	if a.self == nil {
		a.self = a.engine.vm.NewTable()
	}

	if err := a.engine.call(a, a.kind.act, a.self); err != nil {
		return fmt.Errorf("%s: %w", a.kind.name, err)
	}

	return nil
}
