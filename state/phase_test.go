package state

import (
	"testing"
	"time"

	"github.com/undercover/server/broadcast"
	"github.com/undercover/server/models"
)

// fakeRoom is a minimal in-memory RoomContext for exercising Phase logic
// without a real room.Engine.
type fakeRoom struct {
	id      string
	hostID  string
	cfg     RuntimeConfig
	players []*models.Player

	roundNo      int
	wordPair     *models.WordPair
	turnPlayerID string
	lastElimSeat int

	descriptions []models.Description
	votes        []models.Vote

	winner models.Role

	state State

	timerScheduled bool
	timerKind      CommandKind
	timerCanceled  bool

	events []broadcast.Event
}

func newFakeRoom(n int) *fakeRoom {
	players := make([]*models.Player, n)
	for i := 0; i < n; i++ {
		players[i] = &models.Player{ID: seatName(i), IsAlive: true}
	}
	return &fakeRoom{
		id:           "room1",
		hostID:       seatName(0),
		cfg:          RuntimeConfig{MinPlayers: 3, MaxPlayers: 8, DescribeTimeLimit: 30 * time.Second, VoteTimeLimit: 10 * time.Second, RoundDelay: 3 * time.Second},
		players:      players,
		lastElimSeat: -1,
	}
}

func seatName(i int) string { return string(rune('a' + i)) }

func (f *fakeRoom) ID() string           { return f.id }
func (f *fakeRoom) HostID() string       { return f.hostID }
func (f *fakeRoom) Config() RuntimeConfig { return f.cfg }

func (f *fakeRoom) Players() []*models.Player { return f.players }
func (f *fakeRoom) PlayerByID(id string) (*models.Player, bool) {
	for _, p := range f.players {
		if p.ID == id {
			return p, true
		}
	}
	return nil, false
}
func (f *fakeRoom) AlivePlayers() []*models.Player {
	var out []*models.Player
	for _, p := range f.players {
		if p.IsAlive {
			out = append(out, p)
		}
	}
	return out
}
func (f *fakeRoom) AliveCount() int { return len(f.AlivePlayers()) }

func (f *fakeRoom) RoundNo() int     { return f.roundNo }
func (f *fakeRoom) SetRoundNo(n int) { f.roundNo = n }

func (f *fakeRoom) CurrentWordPair() *models.WordPair     { return f.wordPair }
func (f *fakeRoom) SetCurrentWordPair(p *models.WordPair) { f.wordPair = p }
func (f *fakeRoom) DrawWordPair() (models.WordPair, bool) {
	return models.WordPair{CivilianWord: "dog", UndercoverWord: "wolf", Similarity: 0.8}, true
}

func (f *fakeRoom) TurnPlayerID() string     { return f.turnPlayerID }
func (f *fakeRoom) SetTurnPlayerID(id string) { f.turnPlayerID = id }
func (f *fakeRoom) NextAliveSeatFrom(seatIndex int) (string, bool) {
	n := len(f.players)
	for step := 1; step <= n; step++ {
		idx := (seatIndex + step) % n
		if f.players[idx].IsAlive {
			return f.players[idx].ID, true
		}
	}
	return "", false
}

func (f *fakeRoom) Descriptions() []models.Description { return f.descriptions }
func (f *fakeRoom) AddDescription(d models.Description) {
	f.descriptions = append(f.descriptions, d)
}
func (f *fakeRoom) ClearDescriptions() { f.descriptions = nil }

func (f *fakeRoom) Votes() []models.Vote { return f.votes }
func (f *fakeRoom) AddOrReplaceVote(v models.Vote) bool {
	for i, existing := range f.votes {
		if existing.VoterID == v.VoterID {
			f.votes[i] = v
			return false
		}
	}
	f.votes = append(f.votes, v)
	return true
}
func (f *fakeRoom) ClearVotes() { f.votes = nil }

func (f *fakeRoom) MarkEliminated(playerID string) {
	for i, p := range f.players {
		if p.ID == playerID {
			p.IsAlive = false
			f.lastElimSeat = i
		}
	}
}
func (f *fakeRoom) LastEliminatedSeatIndex() int      { return f.lastElimSeat }
func (f *fakeRoom) SetLastEliminatedSeatIndex(idx int) { f.lastElimSeat = idx }

func (f *fakeRoom) SetWinner(w models.Role) { f.winner = w }

func (f *fakeRoom) ChangeState(newState State) error {
	if f.state != nil {
		f.state.OnExit()
	}
	f.state = newState
	newState.OnEnter()
	return nil
}
func (f *fakeRoom) Publish(e broadcast.Event) { f.events = append(f.events, e) }
func (f *fakeRoom) PublishStateUpdate()       {}
func (f *fakeRoom) PersistSnapshot()          {}
func (f *fakeRoom) PersistHistory()           {}

func (f *fakeRoom) ScheduleTimer(d time.Duration, kind CommandKind) {
	f.timerScheduled = true
	f.timerKind = kind
	f.timerCanceled = false
}
func (f *fakeRoom) CancelTimer() { f.timerCanceled = true }

func TestLobbyState_AllReadyTransitionsToRoleAssignment(t *testing.T) {
	room := newFakeRoom(3)
	lobby := NewLobbyState(room)
	room.state = lobby

	for _, p := range room.players {
		if err := lobby.HandleAction(p, Command{Kind: CmdReady, PlayerID: p.ID, Flag: true}); err != nil {
			t.Fatalf("HandleAction(ready) returned error: %v", err)
		}
	}

	if room.state.GetID() != string(models.PhaseDescribe) {
		t.Fatalf("expected phase to reach describe via role_assignment, got %s", room.state.GetID())
	}
	for _, p := range room.players {
		if p.Role == "" || p.Word == "" {
			t.Errorf("player %s missing role/word after role assignment", p.ID)
		}
	}
}

func TestLobbyState_DuplicateReadyIsNoop(t *testing.T) {
	room := newFakeRoom(3)
	lobby := NewLobbyState(room)
	room.state = lobby
	p := room.players[0]
	p.IsReady = true

	if err := lobby.HandleAction(p, Command{Kind: CmdReady, Flag: true}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(room.events) != 0 {
		t.Errorf("duplicate ready should not publish an event, got %d", len(room.events))
	}
}

func TestRoleAssignment_UndercoverCountIsCeil30Percent(t *testing.T) {
	room := newFakeRoom(7) // ceil(0.3*7) = 3
	ra := NewRoleAssignmentState(room)
	room.state = ra
	ra.OnEnter()

	undercovers := 0
	for _, p := range room.players {
		if p.Role == models.RoleUndercover {
			undercovers++
		}
	}
	if undercovers != 3 {
		t.Errorf("expected 3 undercovers for 7 players, got %d", undercovers)
	}
}

func TestDescribeState_AdvancesTurnAndTransitionsToVote(t *testing.T) {
	room := newFakeRoom(3)
	for _, p := range room.players {
		p.Role = models.RoleCivilian
	}
	room.turnPlayerID = room.players[0].ID

	describe := NewDescribeState(room)
	room.state = describe
	describe.OnEnter()

	for i := 0; i < 3; i++ {
		turn := room.TurnPlayerID()
		p, _ := room.PlayerByID(turn)
		if err := describe.HandleAction(p, Command{Kind: CmdDescribe, Content: "clue"}); err != nil {
			t.Fatalf("HandleAction(describe) error: %v", err)
		}
	}

	if room.state.GetID() != string(models.PhaseVote) {
		t.Fatalf("expected vote phase after all descriptions submitted, got %s", room.state.GetID())
	}
	if len(room.descriptions) != 3 {
		t.Errorf("expected 3 descriptions recorded, got %d", len(room.descriptions))
	}
}

func TestDescribeState_RejectsOutOfTurnSubmission(t *testing.T) {
	room := newFakeRoom(3)
	room.turnPlayerID = room.players[0].ID
	describe := NewDescribeState(room)
	room.state = describe
	describe.OnEnter()

	err := describe.HandleAction(room.players[1], Command{Kind: CmdDescribe, Content: "clue"})
	if err == nil {
		t.Fatal("expected NotYourTurn error for out-of-turn submission")
	}
}

func TestDescribeState_TurnTimeoutRecordsEmptyDescription(t *testing.T) {
	room := newFakeRoom(3)
	room.turnPlayerID = room.players[0].ID
	describe := NewDescribeState(room)
	room.state = describe
	describe.OnEnter()

	if err := describe.HandleAction(nil, Command{Kind: CmdTurnTimeout}); err != nil {
		t.Fatalf("unexpected error on timeout: %v", err)
	}
	if len(room.descriptions) != 1 || room.descriptions[0].Content != "" {
		t.Fatalf("expected one empty description recorded on timeout, got %+v", room.descriptions)
	}
}

func TestVoteState_RecordsVoteWithoutEarlyExit(t *testing.T) {
	room := newFakeRoom(3)
	for _, p := range room.players {
		p.Role = models.RoleCivilian
	}
	vote := NewVoteState(room)
	room.state = vote
	vote.OnEnter()

	for _, voter := range room.players {
		err := vote.HandleAction(voter, Command{Kind: CmdVote, TargetID: room.players[2].ID})
		if err != nil {
			t.Fatalf("unexpected vote error: %v", err)
		}
		// even after unanimous votes cast early, phase must not transition yet
		if room.state.GetID() != string(models.PhaseVote) {
			t.Fatalf("vote phase must not exit early on unanimity")
		}
	}
	if len(room.votes) != 3 {
		t.Errorf("expected 3 votes recorded, got %d", len(room.votes))
	}
}

func TestResultState_TieYieldsNoElimination(t *testing.T) {
	room := newFakeRoom(4)
	for _, p := range room.players {
		p.Role = models.RoleCivilian
	}
	room.players[0].Role = models.RoleUndercover
	room.votes = []models.Vote{
		{VoterID: room.players[0].ID, TargetID: room.players[1].ID},
		{VoterID: room.players[1].ID, TargetID: room.players[2].ID},
	}

	result := NewResultState(room)
	room.state = result
	result.OnEnter()

	for _, p := range room.players {
		if !p.IsAlive {
			t.Fatalf("tie vote must not eliminate anyone, but %s was eliminated", p.ID)
		}
	}
}

func TestResultState_UndercoverWinsWhenAliveCountsEqual(t *testing.T) {
	room := newFakeRoom(5)
	room.players[0].Role = models.RoleUndercover
	room.players[1].Role = models.RoleUndercover
	room.players[2].Role = models.RoleCivilian
	room.players[3].Role = models.RoleCivilian
	room.players[4].Role = models.RoleCivilian
	room.votes = []models.Vote{
		{VoterID: room.players[0].ID, TargetID: room.players[2].ID},
		{VoterID: room.players[1].ID, TargetID: room.players[2].ID},
		{VoterID: room.players[3].ID, TargetID: room.players[2].ID},
	}

	result := NewResultState(room)
	room.state = result
	result.OnEnter()

	if room.players[2].IsAlive {
		t.Fatal("expected players[2] to be eliminated")
	}
	if room.winner != models.RoleUndercover {
		t.Errorf("expected undercover win once alive counts are equal, got winner=%s", room.winner)
	}
}

func TestGameOverState_ReadyResetsToLobby(t *testing.T) {
	room := newFakeRoom(3)
	for _, p := range room.players {
		p.Role = models.RoleCivilian
		p.IsAlive = false
	}
	room.roundNo = 2

	over := NewGameOverState(room)
	room.state = over
	over.OnEnter()

	if err := over.HandleAction(room.players[0], Command{Kind: CmdReady, Flag: true}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if room.state.GetID() != string(models.PhaseLobby) {
		t.Fatalf("expected lobby after ready reset, got %s", room.state.GetID())
	}
	if room.roundNo != 0 {
		t.Errorf("expected round_no reset to 0, got %d", room.roundNo)
	}
	for _, p := range room.players {
		if p.IsAlive != true || p.Role != "" {
			t.Errorf("player %s not fully reset: alive=%v role=%s", p.ID, p.IsAlive, p.Role)
		}
	}
}
