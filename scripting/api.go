package scripting

import (
	"time"

	lua "github.com/yuin/gopher-lua"
)

func (e *Engine) registerAPI() {
	api := map[string]lua.LGFunction{
		"move":         e.luaMove,
		"set_location": e.luaSetLocation,
		"location":     e.luaLocation,
		"world_size":   e.luaWorldSize,
		"actors_at":    e.luaActorsAt,
		"add":          e.luaAdd,
		"remove":       e.luaRemove,
		"delay":        e.luaDelay,
		"tone":         e.luaTone,
	}

	for name, fn := range api {
		e.vm.SetGlobal(name, e.vm.NewFunction(fn))
	}
}

func (e *Engine) actor(L *lua.LState) *LuaActor {
	if e.current == nil {
		L.RaiseError("no actor is acting")
	}

	return e.current
}

// move(dx, dy)
func (e *Engine) luaMove(L *lua.LState) int {
	a := e.actor(L)
	a.Move(L.CheckInt(1), L.CheckInt(2))

	return 0
}

// set_location(x, y)
func (e *Engine) luaSetLocation(L *lua.LState) int {
	a := e.actor(L)
	a.SetLocation(L.CheckInt(1), L.CheckInt(2))

	return 0
}

// x, y = location()
func (e *Engine) luaLocation(L *lua.LState) int {
	a := e.actor(L)
	L.Push(lua.LNumber(a.X()))
	L.Push(lua.LNumber(a.Y()))

	return 2
}

// w, h = world_size()
func (e *Engine) luaWorldSize(L *lua.LState) int {
	if e.world == nil {
		L.RaiseError("no world")
	}

	L.Push(lua.LNumber(e.world.Width()))
	L.Push(lua.LNumber(e.world.Height()))

	return 2
}

// n = actors_at(x, y)
func (e *Engine) luaActorsAt(L *lua.LState) int {
	if e.world == nil {
		L.RaiseError("no world")
	}

	objs := e.world.ObjectsAt(L.CheckInt(1), L.CheckInt(2))
	L.Push(lua.LNumber(len(objs)))

	return 1
}

// ok = add(kind, x, y)
func (e *Engine) luaAdd(L *lua.LState) int {
	if e.world == nil {
		L.RaiseError("no world")
	}

	a, err := e.NewActor(L.CheckString(1))
	if err != nil {
		L.RaiseError("%s", err.Error())
	}

	err = e.world.AddObject(a, L.CheckInt(2), L.CheckInt(3))
	L.Push(lua.LBool(err == nil))

	return 1
}

// remove()
func (e *Engine) luaRemove(L *lua.LState) int {
	e.actor(L).RemoveSelf()

	return 0
}

// delay([cycles])
func (e *Engine) luaDelay(L *lua.LState) int {
	if e.sleeper == nil {
		return 0
	}

	if err := e.sleeper.SleepCycles(L.OptInt(1, 1)); err != nil {
		e.interrupted = err
		L.RaiseError("%s", err.Error())
	}

	return 0
}

// tone(freq, ms)
func (e *Engine) luaTone(L *lua.LState) int {
	freq := float64(L.CheckNumber(1))
	d := time.Duration(L.OptInt(2, 100)) * time.Millisecond

	if e.tones != nil {
		e.tones.PlayTone(freq, d)
	}

	return 0
}
