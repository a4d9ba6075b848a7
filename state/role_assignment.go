package state

import (
	"math"
	"math/rand"

	"github.com/undercover/server/models"
)

// RoleAssignmentState draws a word pair, assigns civilian/undercover roles
// and private words, seats the turn pointer, then falls straight through to
// DescribePhase. It accepts no player commands: assignment is instantaneous.
type RoleAssignmentState struct {
	PhaseBase
}

func NewRoleAssignmentState(room RoomContext) *RoleAssignmentState {
	return &RoleAssignmentState{PhaseBase{ID: string(models.PhaseRoleAssignment), Room: room}}
}

func (s *RoleAssignmentState) OnEnter() {
	room := s.Room
	pair, ok := room.DrawWordPair()
	if !ok {
		pair = models.WordPair{CivilianWord: "apple", UndercoverWord: "pear"}
	}
	room.SetCurrentWordPair(&pair)

	players := room.Players()
	n := len(players)
	undercoverCount := int(math.Ceil(float64(n) * 0.30))
	if undercoverCount < 1 {
		undercoverCount = 1
	}
	if undercoverCount > n {
		undercoverCount = n
	}

	undercoverSeats := make(map[int]struct{}, undercoverCount)
	for len(undercoverSeats) < undercoverCount {
		undercoverSeats[rand.Intn(n)] = struct{}{}
	}

	for i, p := range players {
		p.IsAlive = true
		p.IsReady = false
		if _, isUndercover := undercoverSeats[i]; isUndercover {
			p.Role = models.RoleUndercover
			p.Word = pair.UndercoverWord
		} else {
			p.Role = models.RoleCivilian
			p.Word = pair.CivilianWord
		}
	}

	room.SetRoundNo(room.RoundNo() + 1)
	room.SetLastEliminatedSeatIndex(-1)
	if first, ok := room.NextAliveSeatFrom(-1); ok {
		room.SetTurnPlayerID(first)
	}

	room.PersistSnapshot()
	room.PublishStateUpdate()

	room.ChangeState(NewDescribeState(room))
}
