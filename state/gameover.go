package state

import "github.com/undercover/server/models"

// GameOverState reveals every player's role and word and waits for a Ready
// to reset the room back to Lobby for another game.
type GameOverState struct {
	PhaseBase
}

func NewGameOverState(room RoomContext) *GameOverState {
	return &GameOverState{PhaseBase{ID: string(models.PhaseGameOver), Room: room}}
}

func (s *GameOverState) OnEnter() {
	s.Room.PublishStateUpdate()
}

func (s *GameOverState) HandleAction(player *models.Player, cmd Command) error {
	if cmd.Kind != CmdReady || !cmd.Flag {
		return nil
	}

	room := s.Room
	for _, p := range room.Players() {
		p.IsAlive = true
		p.IsReady = false
		p.Role = ""
		p.Word = ""
	}
	room.SetRoundNo(0)
	room.SetCurrentWordPair(nil)
	room.SetLastEliminatedSeatIndex(-1)

	room.ChangeState(NewLobbyState(room))
	return nil
}
