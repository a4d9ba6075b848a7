package state

import (
	"github.com/undercover/server/broadcast"
	"github.com/undercover/server/models"
)

// ResultState tallies the just-closed vote, applies an elimination (or none,
// on a tie or on zero votes), checks the win condition, then holds for
// round_delay before moving on to GameOver or the next DescribePhase.
type ResultState struct {
	PhaseBase
	winner       models.Role
	hasWinner    bool
	eliminatedID string
}

func NewResultState(room RoomContext) *ResultState {
	return &ResultState{PhaseBase: PhaseBase{ID: string(models.PhaseResult), Room: room}}
}

func (s *ResultState) OnEnter() {
	room := s.Room
	eliminatedID, eliminated := tallyVotes(room.Votes())
	if eliminated {
		s.eliminatedID = eliminatedID
		room.MarkEliminated(eliminatedID)
	}

	civilians, undercovers := 0, 0
	for _, p := range room.AlivePlayers() {
		if p.Role == models.RoleUndercover {
			undercovers++
		} else {
			civilians++
		}
	}

	if undercovers == 0 {
		s.winner, s.hasWinner = models.RoleCivilian, true
	} else if undercovers >= civilians {
		s.winner, s.hasWinner = models.RoleUndercover, true
	}

	if s.hasWinner {
		room.SetWinner(s.winner)
	}

	room.Publish(broadcast.Event{Kind: broadcast.EventNotification, Payload: map[string]interface{}{
		"type": "round_result", "eliminated_id": eliminatedID, "eliminated": eliminated,
		"has_winner": s.hasWinner, "winner": s.winner,
	}})
	room.PersistSnapshot()
	room.PublishStateUpdate()

	room.ScheduleTimer(room.Config().RoundDelay, CmdPhaseTimeout)
}

func (s *ResultState) OnExit() {
	s.Room.CancelTimer()
}

func (s *ResultState) HandleAction(player *models.Player, cmd Command) error {
	if cmd.Kind != CmdPhaseTimeout {
		return nil
	}
	room := s.Room
	if s.hasWinner {
		room.PersistHistory()
		room.ChangeState(NewGameOverState(room))
		return nil
	}

	startSeat := -1
	if s.eliminatedID != "" {
		startSeat = room.LastEliminatedSeatIndex()
	}
	if next, ok := room.NextAliveSeatFrom(startSeat); ok {
		room.SetTurnPlayerID(next)
	}
	room.ChangeState(NewDescribeState(room))
	return nil
}

// tallyVotes picks the strictly-highest-voted target. A tie, or zero votes,
// yields no elimination.
func tallyVotes(votes []models.Vote) (string, bool) {
	counts := make(map[string]int)
	for _, v := range votes {
		counts[v.TargetID]++
	}

	topID := ""
	topCount := 0
	tie := false
	for id, c := range counts {
		switch {
		case c > topCount:
			topID, topCount, tie = id, c, false
		case c == topCount && topCount > 0:
			tie = true
		}
	}
	if topCount == 0 || tie {
		return "", false
	}
	return topID, true
}
