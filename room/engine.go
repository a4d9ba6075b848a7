// Package room implements the single-writer room engine, the registry that
// tracks live rooms, and the idle/finished lifecycle sweep.
package room

import (
	"time"

	"github.com/undercover/server/apperr"
	"github.com/undercover/server/broadcast"
	"github.com/undercover/server/models"
	"github.com/undercover/server/monitor"
	"github.com/undercover/server/persistence"
	"github.com/undercover/server/security"
	"github.com/undercover/server/state"
	"github.com/undercover/server/timer"
	"github.com/undercover/server/wordbank"
	"go.uber.org/zap"
)

const maxChatLog = 200

// Engine is a single room: one goroutine owns every field below and is the
// only writer. Every other goroutine talks to it exclusively through cmdCh,
// which keeps all room state mutation single-threaded.
type Engine struct {
	id     string
	hostID string
	cfg    state.RuntimeConfig

	players     []*models.Player
	playerIndex map[string]int

	roundNo          int
	wordPair         *models.WordPair
	turnPlayerID     string
	lastElimSeat     int
	descriptions     []models.Description
	votes            []models.Vote
	chatLog          []models.ChatMessage
	lastEliminatedID string
	winner           models.Role
	lastActivityAt   time.Time

	sm  state.StateMachine
	bus *broadcast.Bus

	db      persistence.Database
	words   *wordbank.Bank
	limiter *security.RateLimiter
	filter  *security.ContentFilter

	timers  *timer.TimerManager
	timerID int64

	cmdCh chan state.Command
	done  chan struct{}

	log     *zap.SugaredLogger
	metrics *monitor.Monitor
}

// NewEngine builds an empty room with hostID as its host and starts its
// command loop. No seat is taken here: hostID issues CmdJoin like any other
// player to take its seat.
func NewEngine(id, hostID string, cfg state.RuntimeConfig, db persistence.Database, words *wordbank.Bank, limiter *security.RateLimiter, filter *security.ContentFilter, timers *timer.TimerManager, metrics *monitor.Monitor, log *zap.SugaredLogger) *Engine {
	e := &Engine{
		id:             id,
		hostID:         hostID,
		cfg:            cfg,
		playerIndex:    make(map[string]int),
		lastElimSeat:   -1,
		bus:            broadcast.NewBus(),
		db:             db,
		words:          words,
		limiter:        limiter,
		filter:         filter,
		timers:         timers,
		cmdCh:          make(chan state.Command, 64),
		done:           make(chan struct{}),
		lastActivityAt: time.Now(),
		metrics:        metrics,
		log:            log,
	}
	e.sm = state.NewBaseStateMachine(state.NewLobbyState(e))
	go e.run()
	return e
}

func (e *Engine) run() {
	for {
		select {
		case cmd := <-e.cmdCh:
			e.lastActivityAt = time.Now()
			e.dispatch(cmd)
		case <-e.done:
			return
		}
	}
}

// Submit posts cmd to the engine's command channel and is safe to call from
// any goroutine. It never blocks on game logic: only on cmdCh's buffer.
func (e *Engine) Submit(cmd state.Command) {
	select {
	case e.cmdCh <- cmd:
	case <-e.done:
		if cmd.Reply != nil {
			cmd.Reply <- state.CommandResult{Err: apperr.InvalidState}
		}
	}
}

// Stop closes the room's bus and timer, ending its command loop.
func (e *Engine) Stop() {
	e.CancelTimer()
	e.bus.Close()
	close(e.done)
}

func (e *Engine) dispatch(cmd state.Command) {
	switch cmd.Kind {
	case state.CmdAttach:
		e.handleAttach(cmd)
	case state.CmdJoin:
		e.reply(cmd, e.handleJoin(cmd))
	case state.CmdDetach:
		e.handleDetach(cmd)
		e.reply(cmd, nil)
	case state.CmdLeave:
		e.reply(cmd, e.handleLeave(cmd))
	case state.CmdKick:
		e.reply(cmd, e.handleKick(cmd))
	case state.CmdChat:
		e.reply(cmd, e.handleChat(cmd, false))
	case state.CmdChatDead:
		e.reply(cmd, e.handleChat(cmd, true))
	case state.CmdReady, state.CmdDescribe, state.CmdVote:
		e.reply(cmd, e.handlePhaseCommand(cmd))
	case state.CmdTurnTimeout, state.CmdPhaseTimeout:
		e.sm.GetCurrentState().HandleAction(nil, cmd)
	}
}

func (e *Engine) reply(cmd state.Command, err *apperr.Error) {
	if cmd.Reply == nil {
		return
	}
	res := state.CommandResult{Err: err}
	if err == nil {
		res.Snapshot = e.snapshotFor(cmd.PlayerID)
	}
	cmd.Reply <- res
}

func (e *Engine) handlePhaseCommand(cmd state.Command) *apperr.Error {
	player, ok := e.PlayerByID(cmd.PlayerID)
	if !ok {
		return apperr.PlayerNotFound
	}

	switch cmd.Kind {
	case state.CmdDescribe:
		if !e.limiter.Allow(player.ID, security.ActionDescribe) {
			e.rejectRateLimit()
			return apperr.RateLimitExceeded
		}
		if e.filter.Contains(cmd.Content) {
			return apperr.WithMessage(apperr.WordBankError, "description contains banned content")
		}
	case state.CmdVote:
		if !e.limiter.Allow(player.ID, security.ActionVote) {
			e.rejectRateLimit()
			return apperr.RateLimitExceeded
		}
	}

	if err := e.sm.GetCurrentState().HandleAction(player, cmd); err != nil {
		if appErr, ok := err.(*apperr.Error); ok {
			return appErr
		}
		return apperr.InternalError
	}
	return nil
}

func (e *Engine) rejectRateLimit() {
	if e.metrics != nil {
		e.metrics.IncRateLimitRejections()
	}
}

// handleAttach subscribes a connection to the room's event bus and hands
// back the current snapshot, without seating a player. A reconnecting
// player still needs to send CmdJoin afterwards to mark themselves
// Connected and take (or resume) their seat.
func (e *Engine) handleAttach(cmd state.Command) {
	if cmd.Reply == nil {
		return
	}
	sub := e.bus.Subscribe(cmd.PlayerID)
	cmd.Reply <- state.CommandResult{Snapshot: e.snapshotFor(cmd.PlayerID), Sub: sub}
}

func (e *Engine) handleJoin(cmd state.Command) *apperr.Error {
	if idx, ok := e.playerIndex[cmd.PlayerID]; ok {
		e.players[idx].Connected = true
		e.PublishStateUpdate()
		e.PersistSnapshot()
		return nil
	}

	if e.sm.GetCurrentState().GetID() != string(models.PhaseLobby) {
		return apperr.GameStarted
	}
	if len(e.players) >= e.cfg.MaxPlayers {
		return apperr.RoomFull
	}

	display := cmd.Display
	if display == "" && cmd.User != nil {
		display = cmd.User.Nickname
		if display == "" {
			display = cmd.User.Username
		}
	}

	p := &models.Player{
		ID:           cmd.PlayerID,
		DisplayName:  display,
		IsAlive:      true,
		Connected:    true,
		LastActionAt: time.Now(),
		SeatIndex:    len(e.players),
	}
	e.playerIndex[p.ID] = len(e.players)
	e.players = append(e.players, p)

	e.Publish(broadcast.Event{Kind: broadcast.EventNotification, Payload: map[string]interface{}{
		"type": "player_joined", "player_id": p.ID, "display_name": p.DisplayName,
	}})
	e.PublishStateUpdate()
	e.PersistSnapshot()
	return nil
}

func (e *Engine) handleDetach(cmd state.Command) {
	if idx, ok := e.playerIndex[cmd.PlayerID]; ok {
		e.players[idx].Connected = false
		e.PublishStateUpdate()
	}
}

func (e *Engine) handleLeave(cmd state.Command) *apperr.Error {
	idx, ok := e.playerIndex[cmd.PlayerID]
	if !ok {
		return apperr.PlayerNotFound
	}

	phase := e.sm.GetCurrentState().GetID()
	inLobby := phase == string(models.PhaseLobby)
	if inLobby {
		e.removePlayerAt(idx)
	} else {
		e.players[idx].Connected = false
		e.players[idx].IsAlive = false
	}
	e.limiter.Forget(cmd.PlayerID)
	e.Publish(broadcast.Event{Kind: broadcast.EventNotification, Payload: map[string]interface{}{
		"type": "player_left", "player_id": cmd.PlayerID,
	}})

	active := !inLobby && phase != string(models.PhaseGameOver)
	if active && e.forceGameOverIfUnderstaffed() {
		e.PersistSnapshot()
		return nil
	}

	e.PublishStateUpdate()
	e.PersistSnapshot()
	return nil
}

// forceGameOverIfUnderstaffed ends the game early when a Leave during an
// active round drops connected players below min_players or leaves at most
// one player alive. The winner is decided by ResultState's own win check on
// the remaining alive players (civilians if no undercover is alive,
// undercovers if they are at least as many as the civilians); a lone
// survivor's side always wins outright. When undercovers are alive but
// outnumbered, no winner is recorded.
func (e *Engine) forceGameOverIfUnderstaffed() bool {
	if e.AliveCount() > 1 && e.ConnectedCount() >= e.cfg.MinPlayers {
		return false
	}

	alive := e.AlivePlayers()
	switch {
	case len(alive) == 1:
		e.SetWinner(alive[0].Role)
	default:
		civilians, undercovers := 0, 0
		for _, p := range alive {
			if p.Role == models.RoleUndercover {
				undercovers++
			} else {
				civilians++
			}
		}
		if undercovers == 0 {
			e.SetWinner(models.RoleCivilian)
		} else if undercovers >= civilians {
			e.SetWinner(models.RoleUndercover)
		}
	}

	e.Publish(broadcast.Event{Kind: broadcast.EventNotification, Payload: map[string]interface{}{
		"type": "game_over_understaffed", "winner": e.winner,
	}})
	e.PersistHistory()
	e.ChangeState(state.NewGameOverState(e))
	return true
}

func (e *Engine) handleKick(cmd state.Command) *apperr.Error {
	if cmd.PlayerID != e.hostID {
		return apperr.InvalidAction
	}
	if e.sm.GetCurrentState().GetID() != string(models.PhaseLobby) {
		return apperr.InvalidState
	}
	idx, ok := e.playerIndex[cmd.TargetID]
	if !ok {
		return apperr.PlayerNotFound
	}
	e.removePlayerAt(idx)
	e.limiter.Forget(cmd.TargetID)
	e.Publish(broadcast.Event{Kind: broadcast.EventNotification, Payload: map[string]interface{}{
		"type": "player_kicked", "player_id": cmd.TargetID,
	}})
	e.PublishStateUpdate()
	return nil
}

func (e *Engine) removePlayerAt(idx int) {
	removedID := e.players[idx].ID
	e.players = append(e.players[:idx], e.players[idx+1:]...)
	delete(e.playerIndex, removedID)
	for i := idx; i < len(e.players); i++ {
		e.players[i].SeatIndex = i
		e.playerIndex[e.players[i].ID] = i
	}
}

func (e *Engine) handleChat(cmd state.Command, dead bool) *apperr.Error {
	player, ok := e.PlayerByID(cmd.PlayerID)
	if !ok {
		return apperr.PlayerNotFound
	}

	if dead {
		if player.IsAlive {
			return apperr.InvalidAction
		}
	} else {
		if !player.IsAlive {
			return apperr.InvalidAction
		}
		switch models.Phase(e.sm.GetCurrentState().GetID()) {
		case models.PhaseDescribe, models.PhaseResult:
			return apperr.InvalidAction
		}
	}

	if !e.limiter.Allow(player.ID, security.ActionDefault) {
		e.rejectRateLimit()
		return apperr.RateLimitExceeded
	}

	content := cmd.Content
	if e.filter.Contains(content) {
		content = e.filter.Sanitize(content)
	}

	msg := models.ChatMessage{
		PlayerID:    player.ID,
		DisplayName: player.DisplayName,
		Content:     content,
		SentAt:      time.Now(),
		Dead:        dead,
	}
	e.chatLog = append(e.chatLog, msg)
	if len(e.chatLog) > maxChatLog {
		e.chatLog = e.chatLog[len(e.chatLog)-maxChatLog:]
	}

	if dead {
		for _, p := range e.players {
			if !p.IsAlive {
				e.bus.Publish(broadcast.Event{Kind: broadcast.EventChat, Recipient: p.ID, Payload: msg})
			}
		}
	} else {
		e.Publish(broadcast.Event{Kind: broadcast.EventChat, Payload: msg})
	}
	return nil
}
