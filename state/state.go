package state

import (
	"errors"
	"sync"

	"github.com/undercover/server/models"
)

// StateMachine drives a Room through the fixed phase cycle.
type StateMachine interface {
	ChangeState(state State) error
	GetCurrentState() State
	AddTransition(from State, to State, condition func() bool) error
}

// State is one phase of the cycle.
type State interface {
	OnEnter()
	OnExit()
	GetID() string
	// HandleAction handles a command exclusive to this phase (e.g. Ready in
	// Lobby, Describe in DescribePhase, Vote in VotePhase). Commands valid
	// across every phase (Attach/Detach/Join/Leave/Kick/Chat) are handled by
	// the engine itself before reaching the current phase.
	HandleAction(player *models.Player, cmd Command) error
}

var ErrTransitionNotAllowed = errors.New("state transition not allowed")

// BaseStateMachine is a guarded transition table plus the current phase.
type BaseStateMachine struct {
	currentState State
	transitions  map[string]map[string]func() bool
	mutex        sync.RWMutex
}

func NewBaseStateMachine(initialState State) *BaseStateMachine {
	machine := &BaseStateMachine{
		currentState: initialState,
		transitions:  make(map[string]map[string]func() bool),
	}
	initialState.OnEnter()
	return machine
}

func (sm *BaseStateMachine) ChangeState(newState State) error {
	sm.mutex.Lock()
	oldState := sm.currentState
	currentID := oldState.GetID()
	newID := newState.GetID()

	if conditions, exists := sm.transitions[currentID]; exists {
		if condition, exists := conditions[newID]; exists {
			if condition != nil && !condition() {
				sm.mutex.Unlock()
				return ErrTransitionNotAllowed
			}
		}
	}
	sm.currentState = newState
	sm.mutex.Unlock()

	// The hooks run without the lock held: a phase's OnEnter reads the
	// current state and may chain straight into another ChangeState.
	oldState.OnExit()
	newState.OnEnter()

	return nil
}

func (sm *BaseStateMachine) GetCurrentState() State {
	sm.mutex.RLock()
	defer sm.mutex.RUnlock()
	return sm.currentState
}

func (sm *BaseStateMachine) AddTransition(from State, to State, condition func() bool) error {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()

	fromID := from.GetID()
	toID := to.GetID()

	if _, exists := sm.transitions[fromID]; !exists {
		sm.transitions[fromID] = make(map[string]func() bool)
	}
	sm.transitions[fromID][toID] = condition
	return nil
}

// PhaseBase is embedded by every concrete Phase; it supplies the plumbing
// (GetID, default OnEnter/OnExit/HandleAction) each Phase then overrides.
type PhaseBase struct {
	ID   string
	Room RoomContext
}

func (s *PhaseBase) GetID() string { return s.ID }
func (s *PhaseBase) OnEnter()      {}
func (s *PhaseBase) OnExit()       {}
func (s *PhaseBase) HandleAction(player *models.Player, cmd Command) error {
	return nil
}
