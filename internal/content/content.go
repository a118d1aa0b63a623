// Package content loads the YAML and Lua assets ghosts are built from.
//
// A content directory is laid out as:
//
//	archetypes.yaml        archetypes: [...]
//	companions.yaml        companions: [...]
//	items/*.yaml           items: [...]
//	tactics/*.lua          global tactics scripts
//	tactics/<archetype>/   per-archetype tactics scripts
//
// Every part is optional; missing parts fall back to built-in defaults.
package content

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cory-johannsen/arena/internal/game/combat"
	"github.com/cory-johannsen/arena/internal/game/ghost"
	"github.com/cory-johannsen/arena/internal/scripting"
)

// ErrEmptyPool is returned by LoadPools when the directory defines no items.
// The returned Pools are still usable; ghosts fall back to default stats.
var ErrEmptyPool = errors.New("content: no items defined")

type archetypeFile struct {
	Archetypes []ghost.Archetype `yaml:"archetypes"`
}

type companionFile struct {
	Companions []combat.CompanionSnapshot `yaml:"companions"`
}

type itemFile struct {
	Items []ghost.Item `yaml:"items"`
}

// LoadPools reads the ghost pools from dir.
//
// Precondition: dir must be a readable directory.
// Postcondition: Returns the pools, or a non-nil error on the first parse or
// validate failure. Returns the pools together with ErrEmptyPool when no
// item is defined.
func LoadPools(dir string) (ghost.Pools, error) {
	if _, err := os.Stat(dir); err != nil {
		return ghost.Pools{}, fmt.Errorf("reading content dir %q: %w", dir, err)
	}

	var pools ghost.Pools

	var af archetypeFile
	if err := readOptional(filepath.Join(dir, "archetypes.yaml"), &af); err != nil {
		return ghost.Pools{}, err
	}
	seen := make(map[string]bool, len(af.Archetypes))
	for _, a := range af.Archetypes {
		if err := a.Validate(); err != nil {
			return ghost.Pools{}, fmt.Errorf("archetypes.yaml: %w", err)
		}
		if seen[a.Name] {
			return ghost.Pools{}, fmt.Errorf("archetypes.yaml: duplicate archetype %q", a.Name)
		}
		seen[a.Name] = true
	}
	pools.Archetypes = af.Archetypes

	var cf companionFile
	if err := readOptional(filepath.Join(dir, "companions.yaml"), &cf); err != nil {
		return ghost.Pools{}, err
	}
	for _, c := range cf.Companions {
		if err := validateCompanion(c); err != nil {
			return ghost.Pools{}, fmt.Errorf("companions.yaml: %w", err)
		}
	}
	pools.Companions = cf.Companions

	items, err := LoadItems(filepath.Join(dir, "items"))
	if err != nil {
		return ghost.Pools{}, err
	}
	pools.Items = items
	if pools.Empty() {
		return pools, ErrEmptyPool
	}
	return pools, nil
}

// LoadItems reads every *.yaml file in dir and groups the items by slot.
// A missing dir yields an empty map.
//
// Postcondition: Item ids are unique across all files.
func LoadItems(dir string) (map[string][]ghost.Item, error) {
	out := make(map[string][]ghost.Item)
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return out, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading item dir %q: %w", dir, err)
	}

	ids := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		var f itemFile
		if err := readOptional(path, &f); err != nil {
			return nil, err
		}
		for _, it := range f.Items {
			if err := it.Validate(); err != nil {
				return nil, fmt.Errorf("loading %q: %w", path, err)
			}
			if prev, dup := ids[it.ID]; dup {
				return nil, fmt.Errorf("loading %q: item %q already defined in %q", path, it.ID, prev)
			}
			ids[it.ID] = path
			out[it.Slot] = append(out[it.Slot], it)
		}
	}
	return out, nil
}

// LoadTactics loads dir/tactics into mgr: loose *.lua files become the global
// scope and each subdirectory becomes the scope named after it. Scoped VMs
// run the loose files first so shared helpers are visible to them. A missing
// tactics directory is not an error.
//
// Postcondition: Returns the loaded scope names in sorted order.
func LoadTactics(dir string, mgr *scripting.Manager) ([]string, error) {
	root := filepath.Join(dir, "tactics")
	entries, err := os.ReadDir(root)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading tactics dir %q: %w", root, err)
	}

	var scopes []string
	hasGlobal := false
	for _, e := range entries {
		if e.IsDir() {
			if err := mgr.LoadScope(e.Name(), root, filepath.Join(root, e.Name())); err != nil {
				return nil, err
			}
			scopes = append(scopes, e.Name())
			continue
		}
		if filepath.Ext(e.Name()) == ".lua" {
			hasGlobal = true
		}
	}
	if hasGlobal {
		if err := mgr.LoadGlobal(root); err != nil {
			return nil, err
		}
		scopes = append(scopes, scripting.GlobalScope)
	}
	sort.Strings(scopes)
	return scopes, nil
}

func readOptional(path string, out any) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parsing %q: %w", path, err)
	}
	return nil
}

func validateCompanion(c combat.CompanionSnapshot) error {
	switch {
	case c.Name == "":
		return errors.New("companion name must not be empty")
	case c.Mastery < 1:
		return fmt.Errorf("companion %q: mastery must be >= 1, got %d", c.Name, c.Mastery)
	case c.MaxHealth < 1:
		return fmt.Errorf("companion %q: max_health must be >= 1, got %d", c.Name, c.MaxHealth)
	case c.MinDamage < 0 || c.MaxDamage < c.MinDamage:
		return fmt.Errorf("companion %q: damage range %d-%d is invalid", c.Name, c.MinDamage, c.MaxDamage)
	}
	return nil
}
