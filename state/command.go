package state

import (
	"github.com/undercover/server/apperr"
	"github.com/undercover/server/broadcast"
	"github.com/undercover/server/models"
)

// CommandKind is the union of commands a room engine's single command
// channel accepts, plus two internal timer-fired kinds the engine posts to
// itself.
type CommandKind string

const (
	CmdAttach  CommandKind = "attach"
	CmdDetach  CommandKind = "detach"
	CmdJoin    CommandKind = "join"
	CmdReady   CommandKind = "ready"
	CmdDescribe CommandKind = "describe"
	CmdVote    CommandKind = "vote"
	CmdChat    CommandKind = "chat"
	CmdChatDead CommandKind = "chat_dead"
	CmdKick    CommandKind = "kick"
	CmdLeave   CommandKind = "leave"

	CmdTurnTimeout  CommandKind = "_turn_timeout"
	CmdPhaseTimeout CommandKind = "_phase_timeout"
)

// Command is one entry on the engine's command channel. Fields not relevant
// to Kind are left zero.
type Command struct {
	Kind     CommandKind
	PlayerID string
	Display  string
	TargetID string
	Content  string
	Flag     bool
	User     *models.User

	// Reply carries a synchronous result back to the caller for commands
	// that need one (Attach returns a subscription + snapshot; Join/Ready/
	// Describe/Vote/Chat/Leave/Kick return an error, or on success the
	// caller's projected snapshot).
	Reply chan CommandResult
}

// CommandResult is sent back on Command.Reply, if non-nil.
type CommandResult struct {
	Err      *apperr.Error
	Snapshot *models.RoomSnapshot
	Sub      *broadcast.Subscription
}
