// Package reward converts a finished match into currency, experience and
// rating deltas for one participant.
package reward

import "github.com/cory-johannsen/arena/internal/game/dice"

// Mode tags the arena mode a reward was earned in.
type Mode string

const (
	ModeSingle Mode = "single"
	ModeTeams  Mode = "teams"
	ModeRoyal  Mode = "royal"
)

// Result is a participant's match result.
type Result int

const (
	ResultLose Result = iota
	ResultWin
	ResultDraw
)

// String returns a human-readable result label.
func (r Result) String() string {
	switch r {
	case ResultWin:
		return "win"
	case ResultDraw:
		return "draw"
	default:
		return "lose"
	}
}

const (
	// GenuineBonusPercent is added to gold and experience for a win over a human opponent.
	GenuineBonusPercent = 20
	// SurrenderPenalty is the fixed rating loss for forfeiting.
	SurrenderPenalty = 5
	// AbuseTurnLimit zeroes a win when the opponent surrendered on or before this turn.
	AbuseTurnLimit = 2
	// FlawlessBonusPercent is extra experience for a team that lost nobody.
	FlawlessBonusPercent = 10
)

var goldTable = [...]int{
	10, 14, 18, 23, 28, 34, 40, 47, 54, 62,
	70, 79, 88, 98, 108, 119, 130, 142, 154, 167,
	180, 194, 208, 223, 238, 254, 270, 287, 304, 322,
}

var experienceTable = [...]int{
	20, 26, 33, 41, 50, 60, 71, 83, 96, 110,
	125, 141, 158, 176, 195, 215, 236, 258, 281, 305,
	330, 356, 383, 411, 440, 470, 501, 533, 566, 600,
}

// modeRule holds the per-mode multipliers (percent) and rating/token grants.
type modeRule struct {
	goldPercent       int
	experiencePercent int
	winRating         int
	loseRating        int
	winTokens         int
}

var modeRules = map[Mode]modeRule{
	ModeSingle: {goldPercent: 100, experiencePercent: 100, winRating: 10, loseRating: -5, winTokens: 1},
	ModeTeams:  {goldPercent: 100, experiencePercent: 120, winRating: 8, loseRating: -4, winTokens: 1},
	ModeRoyal:  {goldPercent: 150, experiencePercent: 150, winRating: 15, loseRating: -3, winTokens: 3},
}

// Flags records which modifiers shaped a reward.
type Flags struct {
	Win         bool `json:"win"`
	Lose        bool `json:"lose"`
	Draw        bool `json:"draw"`
	Surrendered bool `json:"surrendered"`
	AntiAbuse   bool `json:"anti_abuse"`
	Bonus       bool `json:"bonus"`
	Flawless    bool `json:"flawless"`
	Training    bool `json:"training"`
	Genuine     bool `json:"genuine"`
}

// Rewards are the deltas applied to a participant after a match.
type Rewards struct {
	Gold       int   `json:"gold"`
	Tokens     int   `json:"tokens"`
	Rating     int   `json:"rating"`
	Experience int   `json:"experience"`
	Flags      Flags `json:"flags"`
}

// Input describes one participant's match outcome.
type Input struct {
	Mode   Mode
	Result Result
	Level  int
	// Training matches never pay tokens and halve gold and experience.
	Training bool
	// OpponentGenuine is true when the beaten side contained a human.
	OpponentGenuine bool
	// OpponentSurrenderTurn is the turn the opponent surrendered on, 0 if never.
	OpponentSurrenderTurn int
	Surrendered           bool
	Flawless              bool
	// BonusChance is the participant's percent chance of an extra unit.
	BonusChance int
}

// Base returns the level-indexed base gold and experience before mode scaling.
// Levels outside the table are clamped.
func Base(level int) (gold, experience int) {
	i := min(max(level, 1), len(goldTable)) - 1
	return goldTable[i], experienceTable[i]
}

// Calculator computes rewards. The roller drives the bonus roll.
type Calculator struct {
	roller *dice.Roller
}

// NewCalculator returns a Calculator. A nil roller disables the bonus roll.
func NewCalculator(r *dice.Roller) *Calculator {
	return &Calculator{roller: r}
}

// Compute returns the rewards for in.
//
// Postcondition: Gold, Tokens and Experience are >= 0; a surrendered participant
// has Rating == -SurrenderPenalty; a win whose opponent surrendered within
// AbuseTurnLimit turns yields all-zero currency, experience and rating.
func (c *Calculator) Compute(in Input) Rewards {
	rule, ok := modeRules[in.Mode]
	if !ok {
		rule = modeRules[ModeSingle]
	}
	gold, exp := Base(in.Level)
	gold = gold * rule.goldPercent / 100
	exp = exp * rule.experiencePercent / 100

	var out Rewards
	switch in.Result {
	case ResultWin:
		out.Flags.Win = true
		out.Tokens = rule.winTokens
		if in.OpponentGenuine {
			out.Flags.Genuine = true
			gold += gold * GenuineBonusPercent / 100
			exp += exp * GenuineBonusPercent / 100
			out.Rating = rule.winRating
		}
		if in.Flawless {
			out.Flags.Flawless = true
			exp += exp * FlawlessBonusPercent / 100
		}
	case ResultDraw:
		out.Flags.Draw = true
		gold /= 2
		exp /= 2
	default:
		out.Flags.Lose = true
		gold /= 2
		exp /= 3
		out.Rating = rule.loseRating
	}

	if in.Training {
		out.Flags.Training = true
		out.Tokens = 0
		gold /= 2
		exp /= 2
	}
	out.Gold = gold
	out.Experience = exp

	if c.roller != nil && c.roller.Chance("reward:bonus", in.BonusChance) {
		out.Flags.Bonus = true
		out.Gold++
		out.Rating++
	}

	if in.Result == ResultWin && in.OpponentSurrenderTurn > 0 && in.OpponentSurrenderTurn <= AbuseTurnLimit {
		out.Flags.AntiAbuse = true
		out.Gold, out.Experience, out.Rating, out.Tokens = 0, 0, 0, 0
	}

	if in.Surrendered {
		out.Flags.Surrendered = true
		out.Rating = -SurrenderPenalty
	}
	return out
}
