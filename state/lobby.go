package state

import (
	"github.com/undercover/server/broadcast"
	"github.com/undercover/server/models"
)

// LobbyState: players join and toggle ready. Transitions to RoleAssignment
// once min_players <= ready_count == player_count <= max_players.
type LobbyState struct {
	PhaseBase
}

func NewLobbyState(room RoomContext) *LobbyState {
	return &LobbyState{PhaseBase{ID: string(models.PhaseLobby), Room: room}}
}

func (s *LobbyState) OnEnter() {
	s.Room.PublishStateUpdate()
}

func (s *LobbyState) HandleAction(player *models.Player, cmd Command) error {
	if cmd.Kind != CmdReady {
		return nil
	}

	if player.IsReady == cmd.Flag {
		return nil // duplicate Ready is a no-op: no event, no error
	}

	player.IsReady = cmd.Flag
	s.Room.Publish(broadcast.Event{
		Kind:    broadcast.EventNotification,
		Payload: map[string]interface{}{"type": "ready_changed", "player_id": player.ID, "flag": cmd.Flag},
	})
	s.Room.PublishStateUpdate()

	if s.readyToStart() {
		s.Room.ChangeState(NewRoleAssignmentState(s.Room))
	}
	return nil
}

func (s *LobbyState) readyToStart() bool {
	cfg := s.Room.Config()
	players := s.Room.Players()
	n := len(players)
	if n < cfg.MinPlayers || n > cfg.MaxPlayers {
		return false
	}
	for _, p := range players {
		if !p.IsReady {
			return false
		}
	}
	return n > 0
}
