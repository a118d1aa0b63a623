package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cory-johannsen/arena/internal/game/combat"
)

// ErrSnapshotNotFound is returned when no character matches a participant id.
var ErrSnapshotNotFound = errors.New("combat snapshot not found")

// ErrCharacterExists is returned when creating a character whose id is taken.
var ErrCharacterExists = errors.New("character already exists")

// Balance is a character's accumulated reward totals.
type Balance struct {
	Gold       int64
	Tokens     int64
	Rating     int64
	Experience int64
}

// SnapshotRepository reads the combat values of characters.
type SnapshotRepository struct {
	db *pgxpool.Pool
}

// NewSnapshotRepository creates a SnapshotRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewSnapshotRepository(db *pgxpool.Pool) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

const snapshotColumns = `
	id, name, level, training,
	min_damage, max_damage, defense, dodge, critical, counter,
	anti_dodge, anti_critical, critical_power, max_health,
	vampirism, blessing, bonus_chance,
	companion_name, companion_mastery, companion_max_health,
	companion_min_damage, companion_max_damage, companion_critical`

// LoadCombatSnapshot returns the combat snapshot of participantID.
//
// Precondition: participantID must be non-empty.
// Postcondition: Returns the snapshot, or ErrSnapshotNotFound when no row matches.
func (r *SnapshotRepository) LoadCombatSnapshot(ctx context.Context, participantID string) (combat.CharacterSnapshot, error) {
	var (
		s    combat.CharacterSnapshot
		comp combat.CompanionSnapshot
		name *string
	)
	err := r.db.QueryRow(ctx, `SELECT `+snapshotColumns+` FROM characters WHERE id = $1`, participantID).Scan(
		&s.ParticipantID, &s.Name, &s.Level, &s.Training,
		&s.MinDamage, &s.MaxDamage, &s.Defense, &s.Dodge, &s.Critical, &s.Counter,
		&s.AntiDodge, &s.AntiCritical, &s.CriticalPower, &s.MaxHealth,
		&s.Vampirism, &s.Blessing, &s.BonusChance,
		&name, &comp.Mastery, &comp.MaxHealth,
		&comp.MinDamage, &comp.MaxDamage, &comp.Critical,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return combat.CharacterSnapshot{}, ErrSnapshotNotFound
	}
	if err != nil {
		return combat.CharacterSnapshot{}, fmt.Errorf("loading snapshot %q: %w", participantID, err)
	}
	if name != nil && comp.MaxHealth > 0 {
		comp.Name = *name
		s.Companion = &comp
	}
	return s, nil
}

// CreateCharacter inserts a character row from s with zero balances.
//
// Precondition: s.ParticipantID and s.Name must be non-empty.
// Postcondition: Returns ErrCharacterExists when the id is taken.
func (r *SnapshotRepository) CreateCharacter(ctx context.Context, s combat.CharacterSnapshot) error {
	var name *string
	var mastery, maxHealth, minDmg, maxDmg, crit int
	if c := s.Companion; c != nil {
		name = &c.Name
		mastery, maxHealth, minDmg, maxDmg, crit = c.Mastery, c.MaxHealth, c.MinDamage, c.MaxDamage, c.Critical
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO characters (`+snapshotColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23)`,
		s.ParticipantID, s.Name, s.EffectiveLevel(), s.Training,
		s.MinDamage, s.MaxDamage, s.Defense, s.Dodge, s.Critical, s.Counter,
		s.AntiDodge, s.AntiCritical, s.CriticalPower, s.MaxHealth,
		s.Vampirism, s.Blessing, s.BonusChance,
		name, mastery, maxHealth, minDmg, maxDmg, crit,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrCharacterExists
		}
		return fmt.Errorf("inserting character %q: %w", s.ParticipantID, err)
	}
	return nil
}

// Balance returns the accumulated reward totals of participantID.
//
// Postcondition: Returns ErrSnapshotNotFound when no row matches.
func (r *SnapshotRepository) Balance(ctx context.Context, participantID string) (Balance, error) {
	var b Balance
	err := r.db.QueryRow(ctx,
		`SELECT gold, tokens, rating, experience FROM characters WHERE id = $1`, participantID,
	).Scan(&b.Gold, &b.Tokens, &b.Rating, &b.Experience)
	if errors.Is(err, pgx.ErrNoRows) {
		return Balance{}, ErrSnapshotNotFound
	}
	if err != nil {
		return Balance{}, fmt.Errorf("loading balance %q: %w", participantID, err)
	}
	return b, nil
}
