package session

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"digibattle/internal/battle"
	"digibattle/internal/creature"
	"digibattle/internal/storage"
)

var (
	ErrNameRequired      = errors.New("please enter your name")
	ErrNameTooLong       = errors.New("name is too long")
	ErrInvalidTransition = errors.New("action not allowed in this state")
	ErrNoFreeCode        = errors.New("could not allocate a room code")
	ErrClosed            = errors.New("session is closed")
)

// MaxNameLength caps player names.
const MaxNameLength = 20

const codeAttempts = 8

// Names used for the simulated side of the room.
const (
	HostName       = "Host Player"
	HostCreature   = "Gabumon"
	ChallengerName = "Challenger"
)

// Options configure a session. Zero values fall back to defaults.
type Options struct {
	Roster          *creature.Registry
	Directory       Directory
	Scheduler       Scheduler
	Roller          battle.Roller
	OpponentDelay   time.Duration // before the simulated opponent attacks
	ChallengerDelay time.Duration // before a challenger enters a created room; 0 disables
	Logger          *slog.Logger
}

const DefaultOpponentDelay = 1500 * time.Millisecond

func (o Options) withDefaults() Options {
	if o.Roster == nil {
		o.Roster = creature.NewStarterRegistry()
	}
	if o.Directory == nil {
		o.Directory = noDirectory{}
	}
	if o.Scheduler == nil {
		o.Scheduler = timerScheduler{}
	}
	if o.Roller == nil {
		o.Roller = battle.RandomRoller{}
	}
	if o.OpponentDelay <= 0 {
		o.OpponentDelay = DefaultOpponentDelay
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// View is a snapshot of a session handed to clients.
type View struct {
	SessionID string           `json:"sessionId"`
	State     battle.GameState `json:"gameState"`
	Room      *battle.Room     `json:"room,omitempty"`
	You       battle.Slot      `json:"you,omitempty"`
	YourTurn  bool             `json:"yourTurn"`
	Actions   []string         `json:"actions"`
}

type turnKey struct {
	round, turn int
}

// Session is one client's game: the lifecycle state, the room it has open
// and the slot the human occupies in it. The simulated opponent acts
// through deferred tasks that re-enter the session under its lock.
type Session struct {
	mu      sync.Mutex
	ID      string
	opts    Options
	log     *slog.Logger
	state   battle.GameState
	room    *battle.Room
	you     battle.Slot
	round   int // bumped whenever a room opens, resets or closes
	pending turnKey
	subs    map[chan View]struct{}
	seen    time.Time
	closed  bool
}

// New creates a session on the landing screen.
func New(id string, opts Options) *Session {
	opts = opts.withDefaults()
	return &Session{
		ID:      id,
		opts:    opts,
		log:     opts.Logger.With("session", id),
		state:   battle.StateLanding,
		pending: turnKey{-1, -1},
		subs:    make(map[chan View]struct{}),
		seen:    time.Now(),
	}
}

// SelectCreate moves from the landing screen to the create form.
func (s *Session) SelectCreate() (View, error) {
	return s.transition(battle.StateCreate, battle.StateLanding)
}

// SelectJoin moves from the landing screen to the join form.
func (s *Session) SelectJoin() (View, error) {
	return s.transition(battle.StateJoin, battle.StateLanding)
}

// Back leaves the create or join form for the landing screen.
func (s *Session) Back() (View, error) {
	return s.transition(battle.StateLanding, battle.StateCreate, battle.StateJoin)
}

func (s *Session) transition(to battle.GameState, from ...battle.GameState) (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.expectLocked(from...); err != nil {
		return s.viewLocked(), err
	}
	s.state = to
	s.broadcastLocked()
	return s.viewLocked(), nil
}

// CreateRoom opens a room with the caller as player1 and waits for an
// opponent.
func (s *Session) CreateRoom(name, choice string) (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.expectLocked(battle.StateCreate); err != nil {
		return s.viewLocked(), err
	}
	name, err := validName(name)
	if err != nil {
		return s.viewLocked(), err
	}
	pick, err := s.opts.Roster.Resolve(choice)
	if err != nil {
		return s.viewLocked(), err
	}
	code, err := s.allocateCode()
	if err != nil {
		return s.viewLocked(), err
	}

	room := battle.NewHostedRoom(code, battle.NewPlayer(battle.Player1, name, pick))
	if err := s.opts.Directory.PutRoom(storage.RoomRow{
		SessionID: s.ID, Code: code, Host: name, Creature: pick, State: string(battle.StateWaiting),
	}); err != nil {
		return s.viewLocked(), fmt.Errorf("record room: %w", err)
	}
	s.openLocked(room, battle.Player1)
	s.log.Info("room created", "room", code, "player", name, "creature", pick)

	if d := s.opts.ChallengerDelay; d > 0 {
		round := s.round
		s.opts.Scheduler.AfterFunc(d, func() { s.challengerArrives(round, pick) })
	}
	s.broadcastLocked()
	return s.viewLocked(), nil
}

// JoinRoom enters the room with the given code as player2. The host is
// simulated and the round is under way immediately.
func (s *Session) JoinRoom(code, name, choice string) (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.expectLocked(battle.StateJoin); err != nil {
		return s.viewLocked(), err
	}
	name, err := validName(name)
	if err != nil {
		return s.viewLocked(), err
	}
	code, err = battle.NormalizeCode(code)
	if err != nil {
		return s.viewLocked(), err
	}
	pick, err := s.opts.Roster.Resolve(choice)
	if err != nil {
		return s.viewLocked(), err
	}

	room := battle.NewJoinedRoom(code,
		battle.NewPlayer(battle.Player1, HostName, HostCreature),
		battle.NewPlayer(battle.Player2, name, pick))
	if err := s.opts.Directory.PutRoom(storage.RoomRow{
		SessionID: s.ID, Code: code, Host: HostName, Creature: HostCreature, State: string(battle.StateBattle),
	}); err != nil {
		return s.viewLocked(), fmt.Errorf("record room: %w", err)
	}
	s.openLocked(room, battle.Player2)
	s.log.Info("room joined", "room", code, "player", name, "creature", pick)
	s.broadcastLocked()
	return s.viewLocked(), nil
}

// MarkReady flags the human as ready. The simulated opponent follows suit.
func (s *Session) MarkReady() (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.expectLocked(battle.StateWaiting, battle.StateBattle); err != nil {
		return s.viewLocked(), err
	}
	next, err := s.room.MarkReady(s.you)
	if err != nil {
		return s.viewLocked(), err
	}
	*s.room = next
	s.settleLocked()
	s.broadcastLocked()
	return s.viewLocked(), nil
}

// Attack resolves the human's attack and, if the round goes on, schedules
// the opponent's reply.
func (s *Session) Attack() (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.room == nil {
		return s.viewLocked(), ErrInvalidTransition
	}
	next, damage, err := s.room.Attack(s.you, s.opts.Roller)
	if err != nil {
		return s.viewLocked(), err
	}
	*s.room = next
	s.log.Debug("attack", "room", next.ID, "slot", s.you, "damage", damage, "turn", next.Turn)
	s.checkWinnerLocked()
	s.settleLocked()
	s.broadcastLocked()
	return s.viewLocked(), nil
}

// PlayAgain resets a finished round.
func (s *Session) PlayAgain() (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.expectLocked(battle.StateBattle); err != nil {
		return s.viewLocked(), err
	}
	next, err := s.room.PlayAgain()
	if err != nil {
		return s.viewLocked(), err
	}
	*s.room = next
	s.round++
	s.log.Info("round reset", "room", next.ID)
	s.broadcastLocked()
	return s.viewLocked(), nil
}

// Exit discards the room and returns to the landing screen.
func (s *Session) Exit() (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.expectLocked(battle.StateWaiting, battle.StateBattle); err != nil {
		return s.viewLocked(), err
	}
	s.discardLocked()
	s.state = battle.StateLanding
	s.broadcastLocked()
	return s.viewLocked(), nil
}

// View returns the current snapshot.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

// Subscribe returns a channel receiving a View after every change. Views
// are dropped for subscribers that fall behind.
func (s *Session) Subscribe() (<-chan View, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan View, 16)
	if s.closed {
		close(ch)
		return ch, func() {}
	}
	s.subs[ch] = struct{}{}
	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.subs[ch]; ok {
			delete(s.subs, ch)
			close(ch)
		}
	}
}

// Close discards any room and disconnects subscribers.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.discardLocked()
	s.state = battle.StateLanding
	s.closed = true
	for ch := range s.subs {
		close(ch)
		delete(s.subs, ch)
	}
}

// Idle reports how long ago the session last changed and whether anyone
// is watching it.
func (s *Session) Idle(now time.Time) (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.seen), len(s.subs) > 0
}

// opponentTurn is the deferred attack of the simulated opponent. It does
// nothing if the room it was scheduled for has moved on.
func (s *Session) opponentTurn(key turnKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.room == nil || s.round != key.round || s.room.Turn != key.turn || s.room.Ended() {
		s.log.Debug("stale opponent turn dropped", "round", key.round, "turn", key.turn)
		return
	}
	opp, ok := s.room.Opponent(s.you)
	if !ok {
		return
	}
	next, damage, err := s.room.Attack(opp.ID, s.opts.Roller)
	if err != nil {
		s.log.Debug("opponent turn rejected", "err", err)
		return
	}
	*s.room = next
	s.log.Debug("attack", "room", next.ID, "slot", opp.ID, "damage", damage, "turn", next.Turn)
	s.checkWinnerLocked()
	s.settleLocked()
	s.broadcastLocked()
}

// challengerArrives seats a simulated challenger in a room still waiting
// for its second player.
func (s *Session) challengerArrives(round int, hostPick string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.room == nil || s.round != round || s.state != battle.StateWaiting {
		return
	}
	next, err := s.room.AddPlayer(battle.NewPlayer(battle.Player2, ChallengerName, s.rivalCreature(hostPick)))
	if err != nil {
		s.log.Debug("challenger turned away", "err", err)
		return
	}
	*s.room = next
	s.log.Info("challenger joined", "room", next.ID)
	s.settleLocked()
	s.broadcastLocked()
}

// rivalCreature picks the first roster entry that differs from the host's.
func (s *Session) rivalCreature(hostPick string) string {
	for _, c := range s.opts.Roster.List() {
		if c.Name != hostPick {
			return c.Name
		}
	}
	return hostPick
}

// settleLocked applies the automatic consequences of a change: the
// opponent readies after the human, a waiting room with two ready players
// enters battle, and the opponent's move is scheduled when it is its turn.
func (s *Session) settleLocked() {
	if s.room == nil {
		return
	}
	me, _ := s.room.Player(s.you)
	if opp, ok := s.room.Opponent(s.you); ok && me.Ready && !opp.Ready {
		if next, err := s.room.MarkReady(opp.ID); err == nil {
			*s.room = next
		}
	}
	if s.state == battle.StateWaiting && s.room.CanBattle() {
		s.setStateLocked(battle.StateBattle)
		s.log.Info("battle started", "room", s.room.ID)
	}
	s.scheduleOpponentLocked()
}

func (s *Session) scheduleOpponentLocked() {
	r := s.room
	if s.state != battle.StateBattle || !r.CanBattle() || r.Ended() || r.TurnSlot() == s.you {
		return
	}
	key := turnKey{s.round, r.Turn}
	if s.pending == key {
		return
	}
	s.pending = key
	s.opts.Scheduler.AfterFunc(s.opts.OpponentDelay, func() { s.opponentTurn(key) })
}

func (s *Session) checkWinnerLocked() {
	if s.room.Winner == "" {
		return
	}
	w, _ := s.room.Player(s.room.Winner)
	s.log.Info("round won", "room", s.room.ID, "winner", w.Name, "human", s.room.Winner == s.you, "turns", s.room.Turn)
}

func (s *Session) openLocked(room battle.Room, you battle.Slot) {
	s.room = &room
	s.you = you
	s.round++
	s.state = room.State
}

func (s *Session) discardLocked() {
	if s.room == nil {
		return
	}
	if err := s.opts.Directory.DeleteRoom(s.ID); err != nil {
		s.log.Warn("release room", "room", s.room.ID, "err", err)
	}
	s.log.Info("room closed", "room", s.room.ID)
	s.room = nil
	s.you = ""
	s.round++
}

func (s *Session) setStateLocked(state battle.GameState) {
	s.state = state
	s.room.State = state
	if err := s.opts.Directory.UpdateRoomState(s.ID, string(state)); err != nil {
		s.log.Warn("update room state", "room", s.room.ID, "err", err)
	}
}

func (s *Session) expectLocked(states ...battle.GameState) error {
	if s.closed {
		return ErrClosed
	}
	for _, st := range states {
		if s.state == st {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrInvalidTransition, s.state)
}

func (s *Session) allocateCode() (string, error) {
	for i := 0; i < codeAttempts; i++ {
		code, err := battle.NewCode()
		if err != nil {
			return "", err
		}
		taken, err := s.opts.Directory.CodeTaken(code)
		if err != nil {
			return "", fmt.Errorf("check room code: %w", err)
		}
		if !taken {
			return code, nil
		}
	}
	return "", ErrNoFreeCode
}

func validName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrNameRequired
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return "", ErrNameTooLong
	}
	return name, nil
}

func (s *Session) viewLocked() View {
	v := View{SessionID: s.ID, State: s.state, You: s.you, Actions: s.actionsLocked()}
	if s.room != nil {
		r := s.room.Clone()
		v.Room = &r
		v.YourTurn = s.state == battle.StateBattle && r.CanBattle() && !r.Ended() && r.TurnSlot() == s.you
	}
	return v
}

// actionsLocked lists the intents a client may send right now.
func (s *Session) actionsLocked() []string {
	switch s.state {
	case battle.StateLanding:
		return []string{"create", "join"}
	case battle.StateCreate:
		return []string{"createRoom", "back"}
	case battle.StateJoin:
		return []string{"joinRoom", "back"}
	}
	if s.room == nil {
		return []string{}
	}
	actions := []string{}
	me, _ := s.room.Player(s.you)
	switch {
	case s.room.Ended():
		actions = append(actions, "playAgain")
	case !me.Ready:
		actions = append(actions, "ready")
	case s.state == battle.StateBattle && s.room.CanBattle() && s.room.TurnSlot() == s.you:
		actions = append(actions, "attack")
	}
	return append(actions, "exit")
}

func (s *Session) broadcastLocked() {
	s.seen = time.Now()
	if len(s.subs) == 0 {
		return
	}
	v := s.viewLocked()
	for ch := range s.subs {
		select {
		case ch <- v:
		default:
			// drop view if buffer full
		}
	}
}
