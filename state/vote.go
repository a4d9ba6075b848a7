package state

import (
	"github.com/undercover/server/apperr"
	"github.com/undercover/server/broadcast"
	"github.com/undercover/server/models"
)

// VoteState accepts one vote per alive player for the phase's duration, with
// no early exit on unanimity: every alive player gets the full vote window
// regardless of how the tally is trending. Tallying and elimination happen
// once the phase ends, in ResultState.
type VoteState struct {
	PhaseBase
}

func NewVoteState(room RoomContext) *VoteState {
	return &VoteState{PhaseBase{ID: string(models.PhaseVote), Room: room}}
}

func (s *VoteState) OnEnter() {
	s.Room.ClearVotes()
	s.Room.PublishStateUpdate()
	s.Room.ScheduleTimer(s.Room.Config().VoteTimeLimit, CmdPhaseTimeout)
}

func (s *VoteState) OnExit() {
	s.Room.CancelTimer()
}

func (s *VoteState) HandleAction(player *models.Player, cmd Command) error {
	switch cmd.Kind {
	case CmdVote:
		if !player.IsAlive {
			return apperr.InvalidAction
		}
		target, ok := s.Room.PlayerByID(cmd.TargetID)
		if !ok || !target.IsAlive {
			return apperr.InvalidVote
		}
		isNew := s.Room.AddOrReplaceVote(models.Vote{VoterID: player.ID, TargetID: cmd.TargetID})
		eventType := "vote_changed"
		if isNew {
			eventType = "vote_cast"
		}
		s.Room.Publish(broadcast.Event{Kind: broadcast.EventVote, Payload: map[string]interface{}{
			"type": eventType, "voter_id": player.ID, "target_id": cmd.TargetID,
		}})
		s.Room.PublishStateUpdate()
		return nil
	case CmdPhaseTimeout:
		s.Room.ChangeState(NewResultState(s.Room))
		return nil
	}
	return nil
}
