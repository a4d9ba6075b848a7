package state

import (
	"time"

	"github.com/undercover/server/apperr"
	"github.com/undercover/server/broadcast"
	"github.com/undercover/server/models"
)

// DescribeState walks the turn pointer once around the alive players. Each
// player submits one description, or is skipped with an empty one on
// turn-timeout. Once every alive player has gone, the phase advances to
// VotePhase.
type DescribeState struct {
	PhaseBase
}

func NewDescribeState(room RoomContext) *DescribeState {
	return &DescribeState{PhaseBase{ID: string(models.PhaseDescribe), Room: room}}
}

func (s *DescribeState) OnEnter() {
	s.Room.ClearDescriptions()
	s.Room.PublishStateUpdate()
	s.Room.ScheduleTimer(s.Room.Config().DescribeTimeLimit, CmdTurnTimeout)
}

func (s *DescribeState) OnExit() {
	s.Room.CancelTimer()
}

func (s *DescribeState) HandleAction(player *models.Player, cmd Command) error {
	switch cmd.Kind {
	case CmdDescribe:
		if player.ID != s.Room.TurnPlayerID() {
			return apperr.NotYourTurn
		}
		s.Room.AddDescription(models.Description{
			PlayerID:    player.ID,
			Content:     cmd.Content,
			SubmittedAt: time.Now(),
		})
		s.Room.Publish(broadcast.Event{Kind: broadcast.EventDescription, Payload: map[string]interface{}{
			"player_id": player.ID, "content": cmd.Content,
		}})
		s.advanceTurn()
		return nil
	case CmdTurnTimeout:
		turnID := s.Room.TurnPlayerID()
		if p, ok := s.Room.PlayerByID(turnID); ok {
			s.Room.AddDescription(models.Description{PlayerID: p.ID, Content: "", SubmittedAt: time.Now()})
			s.Room.Publish(broadcast.Event{Kind: broadcast.EventDescription, Payload: map[string]interface{}{
				"player_id": p.ID, "content": "", "timed_out": true,
			}})
		}
		s.advanceTurn()
		return nil
	}
	return nil
}

func (s *DescribeState) advanceTurn() {
	room := s.Room
	current := room.TurnPlayerID()
	currentSeat := -1
	for i, p := range room.Players() {
		if p.ID == current {
			currentSeat = i
			break
		}
	}

	next, hasMore := nextUnfinishedSeat(room, currentSeat)
	if !hasMore {
		room.PublishStateUpdate()
		room.ChangeState(NewVoteState(room))
		return
	}

	room.SetTurnPlayerID(next)
	room.PublishStateUpdate()
	room.ScheduleTimer(room.Config().DescribeTimeLimit, CmdTurnTimeout)
}

// nextUnfinishedSeat returns the next alive player after seatIndex who has
// not yet submitted a description this round.
func nextUnfinishedSeat(room RoomContext, seatIndex int) (string, bool) {
	described := make(map[string]bool)
	for _, d := range room.Descriptions() {
		described[d.PlayerID] = true
	}

	players := room.Players()
	n := len(players)
	for step := 1; step <= n; step++ {
		idx := (seatIndex + step) % n
		p := players[idx]
		if p.IsAlive && !described[p.ID] {
			return p.ID, true
		}
	}
	return "", false
}
