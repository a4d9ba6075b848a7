package room

import (
	"testing"
	"time"

	"github.com/undercover/server/state"
)

func TestLifecycleManager_SweepEvictsEmptyRoom(t *testing.T) {
	r := testRegistry(t)
	r.GetOrCreate("empty-room", "host")

	m := NewLifecycleManager(r, time.Hour, time.Hour, time.Hour, nil, nil)
	m.sweep()

	if _, ok := r.Get("empty-room"); ok {
		t.Fatal("expected sweep to evict a room with zero seated players")
	}
}

func TestLifecycleManager_SweepKeepsRecentlyActiveSeatedRoom(t *testing.T) {
	r := testRegistry(t)
	e := r.GetOrCreate("active-room", "host")
	reply := make(chan state.CommandResult, 1)
	e.Submit(state.Command{Kind: state.CmdJoin, PlayerID: "host", Reply: reply})
	if res := <-reply; res.Err != nil {
		t.Fatalf("join failed: %v", res.Err)
	}

	m := NewLifecycleManager(r, time.Hour, time.Hour, time.Hour, nil, nil)
	m.sweep()

	if _, ok := r.Get("active-room"); !ok {
		t.Fatal("a seated, recently active room should survive a sweep")
	}
}

func TestLifecycleManager_SweepEvictsIdleSeatedRoom(t *testing.T) {
	r := testRegistry(t)
	e := r.GetOrCreate("idle-room", "host")
	reply := make(chan state.CommandResult, 1)
	e.Submit(state.Command{Kind: state.CmdJoin, PlayerID: "host", Reply: reply})
	if res := <-reply; res.Err != nil {
		t.Fatalf("join failed: %v", res.Err)
	}
	e.lastActivityAt = time.Now().Add(-time.Hour)

	m := NewLifecycleManager(r, time.Minute, time.Minute, time.Minute, nil, nil)
	m.sweep()

	if _, ok := r.Get("idle-room"); ok {
		t.Fatal("expected sweep to evict a room idle past max_idle_time")
	}
}

func TestLifecycleManager_SweepKeepsGameOverRoomWithinRoundDelay(t *testing.T) {
	r := testRegistry(t)
	e := r.GetOrCreate("over-room", "host")
	reply := make(chan state.CommandResult, 1)
	e.Submit(state.Command{Kind: state.CmdJoin, PlayerID: "host", Reply: reply})
	if res := <-reply; res.Err != nil {
		t.Fatalf("join failed: %v", res.Err)
	}
	e.ChangeState(state.NewGameOverState(e))

	// max_idle_time is huge so only round_delay can explain an eviction here.
	m := NewLifecycleManager(r, time.Hour, time.Hour, time.Minute, nil, nil)
	m.sweep()

	if _, ok := r.Get("over-room"); !ok {
		t.Fatal("a game_over room should survive a sweep before round_delay elapses")
	}
}

func TestLifecycleManager_SweepEvictsGameOverRoomPastRoundDelay(t *testing.T) {
	r := testRegistry(t)
	e := r.GetOrCreate("over-room", "host")
	reply := make(chan state.CommandResult, 1)
	e.Submit(state.Command{Kind: state.CmdJoin, PlayerID: "host", Reply: reply})
	if res := <-reply; res.Err != nil {
		t.Fatalf("join failed: %v", res.Err)
	}
	e.ChangeState(state.NewGameOverState(e))
	e.lastActivityAt = time.Now().Add(-10 * time.Minute)

	// max_idle_time is huge: this must evict on round_delay, not max_idle_time.
	m := NewLifecycleManager(r, time.Minute, time.Hour, time.Minute, nil, nil)
	m.sweep()

	if _, ok := r.Get("over-room"); ok {
		t.Fatal("expected sweep to evict a game_over room past round_delay")
	}
}
