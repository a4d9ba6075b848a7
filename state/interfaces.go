// state/interfaces.go
package state

import (
	"time"

	"github.com/undercover/server/broadcast"
	"github.com/undercover/server/models"
)

// RoomContext is everything a Phase needs from the owning Room Engine. This
// breaks the import cycle between room and state: room.Engine implements
// this interface, state never imports room.
type RoomContext interface {
	ID() string
	HostID() string
	Config() RuntimeConfig

	Players() []*models.Player
	PlayerByID(id string) (*models.Player, bool)
	AlivePlayers() []*models.Player
	AliveCount() int

	RoundNo() int
	SetRoundNo(n int)

	CurrentWordPair() *models.WordPair
	SetCurrentWordPair(p *models.WordPair)
	DrawWordPair() (models.WordPair, bool)

	TurnPlayerID() string
	SetTurnPlayerID(id string)
	NextAliveSeatFrom(seatIndex int) (string, bool)

	Descriptions() []models.Description
	AddDescription(d models.Description)
	ClearDescriptions()

	Votes() []models.Vote
	AddOrReplaceVote(v models.Vote) (isNew bool)
	ClearVotes()

	MarkEliminated(playerID string)
	LastEliminatedSeatIndex() int
	SetLastEliminatedSeatIndex(idx int)

	SetWinner(winner models.Role)

	ChangeState(newState State) error
	Publish(e broadcast.Event)
	PublishStateUpdate()
	PersistSnapshot()
	PersistHistory()

	ScheduleTimer(d time.Duration, kind CommandKind)
	CancelTimer()
}

// RuntimeConfig is the tunable knobs a room engine runs with: player bounds,
// phase time limits, and the delay between rounds.
type RuntimeConfig struct {
	MinPlayers        int
	MaxPlayers        int
	DescribeTimeLimit time.Duration
	VoteTimeLimit     time.Duration
	RoundDelay        time.Duration
}
