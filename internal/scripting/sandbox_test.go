package scripting

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	lua "github.com/yuin/gopher-lua"
	"pgregory.net/rapid"
)

func TestNewSandboxedState_UnsafeLibsNil(t *testing.T) {
	L := NewSandboxedState()
	require.NotNil(t, L)
	defer L.Close()
	for _, name := range []string{"os", "io", "debug"} {
		assert.Equal(t, lua.LNil, L.GetGlobal(name), "expected %s to be nil", name)
	}
}

func TestNewSandboxedState_DangerousGlobalsNil(t *testing.T) {
	L := NewSandboxedState()
	defer L.Close()
	for _, name := range []string{"dofile", "loadfile", "load", "collectgarbage", "require"} {
		assert.Equal(t, lua.LNil, L.GetGlobal(name), "expected %s to be nil", name)
	}
}

func TestNewSandboxedState_SafeLibsAvailable(t *testing.T) {
	L := NewSandboxedState()
	defer L.Close()
	err := L.DoString(`
		local x = math.sqrt(4)
		assert(x == 2.0, "math.sqrt failed")
		local s = string.upper("hello")
		assert(s == "HELLO", "string.upper failed")
		local t = {}
		table.insert(t, 1)
		assert(#t == 1, "table.insert failed")
	`)
	assert.NoError(t, err)
}

func TestWithLimit_InstructionLimitExceeded(t *testing.T) {
	L := NewSandboxedState()
	defer L.Close()
	err := withLimit(L, 10, func() error { return L.DoString(`while true do end`) })
	assert.Error(t, err, "expected instruction limit error")
}

func TestWithLimit_DefaultLimit_NormalScriptRuns(t *testing.T) {
	L := NewSandboxedState()
	defer L.Close()
	assert.NoError(t, withLimit(L, 0, func() error { return L.DoString(`local x = 1 + 1`) }))
}

func TestProperty_InstructionLimitAlwaysErrors(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		limit := rapid.IntRange(1, 50).Draw(t, "limit")
		L := NewSandboxedState()
		defer L.Close()
		err := withLimit(L, limit, func() error { return L.DoString(`while true do end`) })
		if err == nil {
			t.Fatalf("expected error with limit=%d but got nil", limit)
		}
	})
}

func TestToGo_ArrayAndHashTables(t *testing.T) {
	L := NewSandboxedState()
	defer L.Close()
	require.NoError(t, L.DoString(`
		arr = {"head", "legs"}
		obj = {attack = "torso", power = 3, flag = true}
	`))
	assert.Equal(t, []any{"head", "legs"}, ToGo(L.GetGlobal("arr")))
	assert.Equal(t, map[string]any{"attack": "torso", "power": float64(3), "flag": true}, ToGo(L.GetGlobal("obj")))
	assert.Nil(t, ToGo(lua.LNil))
}

func TestToLua_RoundTripsPlainValues(t *testing.T) {
	L := NewSandboxedState()
	defer L.Close()
	in := map[string]any{
		"id":     "p1",
		"health": 12,
		"areas":  []string{"head", "arms"},
		"alive":  true,
	}
	out := ToGo(ToLua(L, in))
	assert.Equal(t, map[string]any{
		"id":     "p1",
		"health": float64(12),
		"areas":  []any{"head", "arms"},
		"alive":  true,
	}, out)
}
