package combat

import "fmt"

// Area is a target zone for attacks and defense.
type Area string

const (
	AreaHead  Area = "head"
	AreaChest Area = "chest"
	AreaBelly Area = "belly"
	AreaGroin Area = "groin"
	AreaLegs  Area = "legs"
	// AreaCompanion is the pseudo-area addressing the opponent's companion creature.
	AreaCompanion Area = "companion"
)

// DefenseSize is the maximum number of areas a combatant may cover per turn.
const DefenseSize = 2

// BodyAreas lists the body areas in display order.
var BodyAreas = []Area{AreaHead, AreaChest, AreaBelly, AreaGroin, AreaLegs}

// IsBody reports whether a is one of the five body areas.
func (a Area) IsBody() bool {
	for _, b := range BodyAreas {
		if a == b {
			return true
		}
	}
	return false
}

// Valid reports whether a is a body area or the companion pseudo-area.
func (a Area) Valid() bool {
	return a == AreaCompanion || a.IsBody()
}

// ParseArea converts a client-supplied string into an Area.
//
// Postcondition: Returns a valid Area or a non-nil error.
func ParseArea(s string) (Area, error) {
	a := Area(s)
	if !a.Valid() {
		return "", fmt.Errorf("unknown area %q", s)
	}
	return a, nil
}

// Covers reports whether the defense set contains area.
func Covers(defense []Area, area Area) bool {
	for _, d := range defense {
		if d == area {
			return true
		}
	}
	return false
}
