package scripting

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/cory-johannsen/arena/internal/game/dice"
)

// GlobalScope is the reserved key for shared scripts loaded via LoadGlobal.
// Call falls back to this VM when no scoped VM is found.
const GlobalScope = "__global__"

type vm struct {
	mu sync.Mutex
	L  *lua.LState
}

// Manager owns one sandboxed LState per scope (a ghost archetype, for
// instance) and exposes hook dispatch.
//
// Manager is safe for concurrent use. Each LState is single-threaded; its own
// mutex serializes calls into the same scope while different scopes run
// concurrently.
type Manager struct {
	mu        sync.RWMutex
	vms       map[string]*vm
	instLimit int
	roller    *dice.Roller
	logger    *zap.Logger
}

// NewManager creates a Manager. instLimit <= 0 selects DefaultInstructionLimit.
//
// Precondition: roller and logger must be non-nil.
// Postcondition: Returns a non-nil Manager with no scopes loaded.
func NewManager(roller *dice.Roller, logger *zap.Logger, instLimit int) *Manager {
	if roller == nil {
		panic("scripting.NewManager: roller must not be nil")
	}
	if logger == nil {
		panic("scripting.NewManager: logger must not be nil")
	}
	if instLimit <= 0 {
		instLimit = DefaultInstructionLimit
	}
	return &Manager{
		vms:       make(map[string]*vm),
		instLimit: instLimit,
		roller:    roller,
		logger:    logger,
	}
}

// LoadScope creates a sandboxed VM for scope, registers the arena.* modules,
// then executes the *.lua files of each scriptDir in turn, every directory in
// lexicographic file order.
//
// Precondition: scope must be non-empty; every scriptDir must be a readable directory.
// Postcondition: Scope VM is registered, replacing any previous one; returns error on Lua load failure.
func (m *Manager) LoadScope(scope string, scriptDirs ...string) error {
	var files []string
	for _, dir := range scriptDirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return fmt.Errorf("scripting: reading script dir %q for %q: %w", dir, scope, err)
		}
		var local []string
		for _, e := range entries {
			if !e.IsDir() && filepath.Ext(e.Name()) == ".lua" {
				local = append(local, filepath.Join(dir, e.Name()))
			}
		}
		sort.Strings(local)
		files = append(files, local...)
	}

	return m.load(scope, func(L *lua.LState) error {
		for _, path := range files {
			if err := L.DoFile(path); err != nil {
				return fmt.Errorf("scripting: loading %q for %q: %w", path, scope, err)
			}
		}
		return nil
	})
}

// LoadGlobal creates the global VM used as a Call fallback from any scope.
//
// Precondition: scriptDir must be a readable directory.
func (m *Manager) LoadGlobal(scriptDir string) error {
	return m.LoadScope(GlobalScope, scriptDir)
}

// LoadString creates a VM for scope from a single Lua chunk.
func (m *Manager) LoadString(scope, src string) error {
	return m.load(scope, func(L *lua.LState) error {
		if err := L.DoString(src); err != nil {
			return fmt.Errorf("scripting: loading chunk for %q: %w", scope, err)
		}
		return nil
	})
}

func (m *Manager) load(scope string, exec func(L *lua.LState) error) error {
	if scope == "" {
		return fmt.Errorf("scripting: scope must not be empty")
	}
	L := NewSandboxedState()
	m.RegisterModules(L)
	if err := withLimit(L, m.instLimit, func() error { return exec(L) }); err != nil {
		L.Close()
		return err
	}

	m.mu.Lock()
	old := m.vms[scope]
	m.vms[scope] = &vm{L: L}
	m.mu.Unlock()

	if old != nil {
		old.mu.Lock()
		old.L.Close()
		old.mu.Unlock()
	}
	return nil
}

// Scopes returns the loaded scope names in sorted order.
func (m *Manager) Scopes() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.vms))
	for k := range m.vms {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Call invokes the named Lua global function in scope's VM, falling back to
// the global VM when scope has none. Arguments are converted with ToLua and
// the first return value with ToGo.
//
// Returns (nil, nil) if no VM exists or the hook is not defined. Lua runtime
// errors, including an exhausted instruction budget, are logged at Warn level
// and reported as (nil, nil).
func (m *Manager) Call(scope, hook string, args ...any) (any, error) {
	m.mu.RLock()
	v, ok := m.vms[scope]
	if !ok {
		v = m.vms[GlobalScope]
	}
	m.mu.RUnlock()

	if v == nil {
		m.logger.Debug("scripting: no VM for scope",
			zap.String("scope", scope),
			zap.String("hook", hook),
		)
		return nil, nil
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	L := v.L
	if L.IsClosed() {
		return nil, nil
	}

	fn := L.GetGlobal(hook)
	if fn.Type() != lua.LTFunction {
		return nil, nil
	}

	largs := make([]lua.LValue, len(args))
	for i, a := range args {
		largs[i] = ToLua(L, a)
	}

	var ret lua.LValue = lua.LNil
	err := withLimit(L, m.instLimit, func() error {
		if err := L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, largs...); err != nil {
			return err
		}
		ret = L.Get(-1)
		L.Pop(1)
		return nil
	})
	if err != nil {
		m.logger.Warn("scripting: Lua runtime error",
			zap.String("scope", scope),
			zap.String("hook", hook),
			zap.Error(err),
		)
		return nil, nil
	}
	return ToGo(ret), nil
}

// Close releases all VMs.
//
// Postcondition: Subsequent Call invocations return (nil, nil).
func (m *Manager) Close() {
	m.mu.Lock()
	vms := m.vms
	m.vms = make(map[string]*vm)
	m.mu.Unlock()

	for _, v := range vms {
		v.mu.Lock()
		v.L.Close()
		v.mu.Unlock()
	}
}
