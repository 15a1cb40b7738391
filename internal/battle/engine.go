package battle

import (
	"fmt"
	"math/rand/v2"
)

const (
	MinDamage = 15
	MaxDamage = 45
)

// Roller produces the damage for one attack.
type Roller interface {
	Roll() int
}

// RandomRoller draws damage uniformly from [MinDamage, MaxDamage].
type RandomRoller struct{}

func (RandomRoller) Roll() int {
	return MinDamage + rand.IntN(MaxDamage-MinDamage+1)
}

// ResetLine replaces the log when a new round begins.
const ResetLine = "Battle reset! Get ready for another round!"

func joinedLine(name string) string { return fmt.Sprintf("%s joined the room!", name) }
func readyLine(name string) string  { return fmt.Sprintf("%s is ready!", name) }
func winLine(name string) string    { return fmt.Sprintf("%s wins the battle!", name) }

func attackLine(a, d Player, damage int) string {
	return fmt.Sprintf("%s's %s attacks %s's %s for %d damage!", a.Name, a.Creature, d.Name, d.Creature, damage)
}

// AddPlayer seats p as player2 of a waiting room.
func (r Room) AddPlayer(p Player) (Room, error) {
	if r.State != StateWaiting {
		return r, fmt.Errorf("add player in %s: %w", r.State, ErrNotBattling)
	}
	if len(r.Players) >= 2 {
		return r, ErrRoomFull
	}
	next := r.Clone()
	p.ID = Player2
	next.Players = append(next.Players, p)
	next.Log = append(next.Log, joinedLine(p.Name))
	return next, nil
}

// MarkReady flags slot as ready. Turn state is untouched.
func (r Room) MarkReady(slot Slot) (Room, error) {
	i := r.index(slot)
	if i < 0 {
		return r, ErrUnknownPlayer
	}
	if r.Players[i].Ready {
		return r, ErrAlreadyReady
	}
	if r.Ended() {
		return r, ErrRoundOver
	}
	next := r.Clone()
	next.Players[i].Ready = true
	next.Log = append(next.Log, readyLine(next.Players[i].Name))
	return next, nil
}

// Attack resolves one attack by slot against the other occupant. On a
// failed precondition the room is returned unchanged with the reason.
func (r Room) Attack(slot Slot, roller Roller) (Room, int, error) {
	if err := r.checkAttack(slot); err != nil {
		return r, 0, err
	}
	damage := roller.Roll()
	next := r.Clone()
	ai, di := next.index(slot), next.index(r.opponentSlot(slot))
	attacker, defender := &next.Players[ai], &next.Players[di]

	defender.HP = max(0, defender.HP-damage)
	next.Log = append(next.Log, attackLine(*attacker, *defender, damage))
	next.Turn++

	if defender.HP == 0 {
		next.Winner = attacker.ID
		next.Log = append(next.Log, winLine(attacker.Name))
	}
	return next, damage, nil
}

func (r Room) checkAttack(slot Slot) error {
	switch {
	case r.State != StateBattle:
		return ErrNotBattling
	case r.index(slot) < 0:
		return ErrUnknownPlayer
	case r.Ended():
		return ErrRoundOver
	case !r.CanBattle():
		return ErrNotReady
	case r.TurnSlot() != slot:
		return ErrNotYourTurn
	}
	return nil
}

func (r Room) opponentSlot(slot Slot) Slot {
	if p, ok := r.Opponent(slot); ok {
		return p.ID
	}
	return ""
}

// PlayAgain starts a fresh round once the previous one has a winner.
func (r Room) PlayAgain() (Room, error) {
	if r.State != StateBattle {
		return r, ErrNotBattling
	}
	if !r.Ended() {
		return r, ErrRoundRunning
	}
	next := r.Clone()
	for i := range next.Players {
		next.Players[i].HP = next.Players[i].MaxHP
		next.Players[i].Ready = false
	}
	next.Turn = 0
	next.Winner = ""
	next.Log = []string{ResetLine}
	return next, nil
}
