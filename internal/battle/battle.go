package battle

import "errors"

// Slot identifies a player's fixed seat in a room.
type Slot string

const (
	Player1 Slot = "player1" // created the room
	Player2 Slot = "player2" // joined it
)

// GameState is the coarse lifecycle tag shared by rooms and sessions.
type GameState string

const (
	StateLanding GameState = "landing"
	StateCreate  GameState = "create"
	StateJoin    GameState = "join"
	StateWaiting GameState = "waiting"
	StateBattle  GameState = "battle"
)

// MaxHP is the health every player starts a round with.
const MaxHP = 100

var (
	ErrNotBattling   = errors.New("room is not in battle")
	ErrNotReady      = errors.New("both players must be ready")
	ErrRoundOver     = errors.New("round is over")
	ErrRoundRunning  = errors.New("round is still running")
	ErrNotYourTurn   = errors.New("not your turn")
	ErrAlreadyReady  = errors.New("player is already ready")
	ErrUnknownPlayer = errors.New("no such player in room")
	ErrRoomFull      = errors.New("room is full")
)

// Player is one combatant.
type Player struct {
	ID       Slot   `json:"id"`
	Name     string `json:"name"`
	Creature string `json:"creature"`
	HP       int    `json:"hp"`
	MaxHP    int    `json:"maxHp"`
	Ready    bool   `json:"isReady"`
}

// NewPlayer returns a player at full health who is not ready.
func NewPlayer(id Slot, name, creature string) Player {
	return Player{ID: id, Name: name, Creature: creature, HP: MaxHP, MaxHP: MaxHP}
}

// Room is the shared battle state for up to two players.
type Room struct {
	ID      string    `json:"id"`
	Players []Player  `json:"players"`
	Log     []string  `json:"battleLog"`
	Turn    int       `json:"currentTurn"`
	State   GameState `json:"gameState"`
	Winner  Slot      `json:"winner,omitempty"`
}

// NewHostedRoom opens a room holding only its creator.
func NewHostedRoom(code string, host Player) Room {
	host.ID = Player1
	return Room{
		ID:      code,
		Players: []Player{host},
		Log:     []string{},
		State:   StateWaiting,
	}
}

// NewJoinedRoom builds a room that the joiner enters with the host already
// seated. The round is considered started, so the state is battle.
func NewJoinedRoom(code string, host, joiner Player) Room {
	host.ID = Player1
	joiner.ID = Player2
	return Room{
		ID:      code,
		Players: []Player{host, joiner},
		Log:     []string{joinedLine(joiner.Name)},
		State:   StateBattle,
	}
}

// Clone returns a deep copy.
func (r Room) Clone() Room {
	c := r
	c.Players = append([]Player(nil), r.Players...)
	c.Log = append([]string{}, r.Log...)
	return c
}

// Player returns the occupant of slot.
func (r Room) Player(slot Slot) (Player, bool) {
	for _, p := range r.Players {
		if p.ID == slot {
			return p, true
		}
	}
	return Player{}, false
}

// Opponent returns the occupant of the other slot.
func (r Room) Opponent(slot Slot) (Player, bool) {
	for _, p := range r.Players {
		if p.ID != slot {
			return p, true
		}
	}
	return Player{}, false
}

// TurnSlot is the slot allowed to attack next: even turns belong to
// player1, odd turns to player2.
func (r Room) TurnSlot() Slot {
	if r.Turn%2 == 0 {
		return Player1
	}
	return Player2
}

// Ended reports whether some player has been knocked out.
func (r Room) Ended() bool {
	for _, p := range r.Players {
		if p.HP <= 0 {
			return true
		}
	}
	return false
}

// CanBattle reports whether the room holds two ready players.
func (r Room) CanBattle() bool {
	if len(r.Players) != 2 {
		return false
	}
	for _, p := range r.Players {
		if !p.Ready {
			return false
		}
	}
	return true
}

func (r Room) index(slot Slot) int {
	for i, p := range r.Players {
		if p.ID == slot {
			return i
		}
	}
	return -1
}
