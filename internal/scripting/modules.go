package scripting

import (
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// RegisterModules registers the arena.* Lua tables into L:
//
//	arena.log.debug/info/warn(msg)
//	arena.random(lo, hi)   inclusive roll through the dice roller
//	arena.chance(percent)  percentile check through the dice roller
//
// Precondition: L must be from NewSandboxedState.
// Postcondition: arena global is defined in L.
func (m *Manager) RegisterModules(L *lua.LState) {
	arena := L.NewTable()

	logTbl := L.NewTable()
	L.SetFuncs(logTbl, map[string]lua.LGFunction{
		"debug": m.logAt(zap.DebugLevel),
		"info":  m.logAt(zap.InfoLevel),
		"warn":  m.logAt(zap.WarnLevel),
	})
	arena.RawSetString("log", logTbl)

	L.SetFuncs(arena, map[string]lua.LGFunction{
		"random": func(L *lua.LState) int {
			lo := L.CheckInt(1)
			hi := L.OptInt(2, lo)
			L.Push(lua.LNumber(m.roller.Range("lua:random", lo, hi)))
			return 1
		},
		"chance": func(L *lua.LState) int {
			pct := L.CheckInt(1)
			L.Push(lua.LBool(m.roller.Chance("lua:chance", pct)))
			return 1
		},
	})
	L.SetGlobal("arena", arena)
}

func (m *Manager) logAt(level zapcore.Level) lua.LGFunction {
	return func(L *lua.LState) int {
		msg := L.CheckString(1)
		if ce := m.logger.Check(level, msg); ce != nil {
			ce.Write(zap.String("source", "lua"))
		}
		return 0
	}
}
