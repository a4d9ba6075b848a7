package room

import (
	"time"

	"github.com/undercover/server/broadcast"
	"github.com/undercover/server/models"
	"github.com/undercover/server/state"
)

// The methods in this file satisfy state.RoomContext; every Phase talks to
// the Engine only through that interface.

func (e *Engine) ID() string     { return e.id }
func (e *Engine) HostID() string { return e.hostID }
func (e *Engine) Config() state.RuntimeConfig { return e.cfg }

func (e *Engine) Players() []*models.Player { return e.players }

func (e *Engine) PlayerByID(id string) (*models.Player, bool) {
	idx, ok := e.playerIndex[id]
	if !ok {
		return nil, false
	}
	return e.players[idx], true
}

func (e *Engine) AlivePlayers() []*models.Player {
	var out []*models.Player
	for _, p := range e.players {
		if p.IsAlive {
			out = append(out, p)
		}
	}
	return out
}

func (e *Engine) AliveCount() int {
	n := 0
	for _, p := range e.players {
		if p.IsAlive {
			n++
		}
	}
	return n
}

func (e *Engine) RoundNo() int     { return e.roundNo }
func (e *Engine) SetRoundNo(n int) { e.roundNo = n }

func (e *Engine) CurrentWordPair() *models.WordPair     { return e.wordPair }
func (e *Engine) SetCurrentWordPair(p *models.WordPair) { e.wordPair = p }

func (e *Engine) DrawWordPair() (models.WordPair, bool) {
	return e.words.DrawRandom()
}

func (e *Engine) TurnPlayerID() string      { return e.turnPlayerID }
func (e *Engine) SetTurnPlayerID(id string) { e.turnPlayerID = id }

func (e *Engine) NextAliveSeatFrom(seatIndex int) (string, bool) {
	n := len(e.players)
	if n == 0 {
		return "", false
	}
	for step := 1; step <= n; step++ {
		idx := (seatIndex + step) % n
		if e.players[idx].IsAlive {
			return e.players[idx].ID, true
		}
	}
	return "", false
}

func (e *Engine) Descriptions() []models.Description { return e.descriptions }
func (e *Engine) AddDescription(d models.Description) {
	e.descriptions = append(e.descriptions, d)
}
func (e *Engine) ClearDescriptions() { e.descriptions = nil }

func (e *Engine) Votes() []models.Vote { return e.votes }

func (e *Engine) AddOrReplaceVote(v models.Vote) bool {
	for i, existing := range e.votes {
		if existing.VoterID == v.VoterID {
			e.votes[i] = v
			return false
		}
	}
	e.votes = append(e.votes, v)
	return true
}

func (e *Engine) ClearVotes() { e.votes = nil }

func (e *Engine) MarkEliminated(playerID string) {
	if idx, ok := e.playerIndex[playerID]; ok {
		e.players[idx].IsAlive = false
		e.lastElimSeat = idx
		e.lastEliminatedID = playerID
	}
}

func (e *Engine) LastEliminatedSeatIndex() int      { return e.lastElimSeat }
func (e *Engine) SetLastEliminatedSeatIndex(idx int) { e.lastElimSeat = idx }

func (e *Engine) SetWinner(w models.Role) { e.winner = w }

func (e *Engine) ChangeState(newState state.State) error {
	if err := e.sm.ChangeState(newState); err != nil {
		return err
	}
	e.PersistSnapshot()
	return nil
}

func (e *Engine) Publish(ev broadcast.Event) { e.bus.Publish(ev) }

// PublishStateUpdate sends every subscriber a state_update projected to
// what that recipient is allowed to see: each player's own role/word, but
// not anyone else's, until the game reaches GameOver.
func (e *Engine) PublishStateUpdate() {
	if e.sm == nil {
		// Lobby's OnEnter runs inside NewBaseStateMachine, before NewEngine
		// has stored the machine; nobody can be subscribed yet.
		return
	}
	reveal := e.sm.GetCurrentState().GetID() == string(models.PhaseGameOver)
	snap := e.buildSnapshot()

	if reveal || len(e.players) == 0 {
		e.bus.Publish(broadcast.Event{Kind: broadcast.EventStateUpdate, Payload: snap})
		return
	}

	for _, p := range e.players {
		projected := snap
		projected.Players = make([]models.Player, len(snap.Players))
		copy(projected.Players, snap.Players)
		for i := range projected.Players {
			if projected.Players[i].ID != p.ID {
				projected.Players[i].Role = ""
				projected.Players[i].Word = ""
			}
		}
		e.bus.Publish(broadcast.Event{Kind: broadcast.EventStateUpdate, Recipient: p.ID, Payload: projected})
	}
}

func (e *Engine) buildSnapshot() models.RoomSnapshot {
	players := make([]models.Player, len(e.players))
	for i, p := range e.players {
		players[i] = *p
	}
	return models.RoomSnapshot{
		ID:               e.id,
		Phase:            models.Phase(e.sm.GetCurrentState().GetID()),
		Players:          players,
		HostID:           e.hostID,
		RoundNo:          e.roundNo,
		CurrentWordPair:  e.wordPair,
		TurnPlayerID:     e.turnPlayerID,
		Descriptions:     append([]models.Description(nil), e.descriptions...),
		Votes:            append([]models.Vote(nil), e.votes...),
		ChatLog:          append([]models.ChatMessage(nil), e.chatLog...),
		LastEliminatedID: e.lastEliminatedID,
		Winner:           e.winner,
		LastActivityAt:   e.lastActivityAt,
	}
}

// snapshotFor returns the snapshot as recipientID would see it, for a
// synchronous command reply (e.g. right after Join).
func (e *Engine) snapshotFor(recipientID string) *models.RoomSnapshot {
	snap := e.buildSnapshot()
	reveal := snap.Phase == models.PhaseGameOver
	if !reveal {
		for i := range snap.Players {
			if snap.Players[i].ID != recipientID {
				snap.Players[i].Role = ""
				snap.Players[i].Word = ""
			}
		}
	}
	return &snap
}

func (e *Engine) PersistSnapshot() {
	if e.db == nil {
		return
	}
	snap := e.buildSnapshot()
	if err := e.db.SaveRoomSnapshot(&snap); err != nil && e.log != nil {
		e.log.Warnw("persist room snapshot failed", "room_id", e.id, "error", err)
	}
}

func (e *Engine) PersistHistory() {
	if e.db == nil {
		return
	}
	players := make([]models.Player, len(e.players))
	for i, p := range e.players {
		players[i] = *p
	}
	var pair models.WordPair
	if e.wordPair != nil {
		pair = *e.wordPair
	}
	rec := &models.GameHistoryRecord{
		RoomID:     e.id,
		Players:    players,
		WordPair:   pair,
		Winner:     e.winner,
		FinishedAt: time.Now(),
	}
	if err := e.db.SaveGameHistory(rec); err != nil && e.log != nil {
		e.log.Warnw("persist game history failed", "room_id", e.id, "error", err)
	}
}

// ScheduleTimer arms the room's single outstanding timer, replacing any
// timer already scheduled. The callback re-enters the engine through its
// own command channel rather than mutating state directly, which is what
// keeps the single-writer invariant intact across goroutines.
func (e *Engine) ScheduleTimer(d time.Duration, kind state.CommandKind) {
	e.cancelTimerLocked()
	e.timerID = e.timers.AddTimer(d, 0, func() {
		e.Submit(state.Command{Kind: kind})
	})
}

func (e *Engine) CancelTimer() {
	e.cancelTimerLocked()
}

func (e *Engine) cancelTimerLocked() {
	if e.timerID != 0 {
		e.timers.RemoveTimer(e.timerID)
		e.timerID = 0
	}
}
