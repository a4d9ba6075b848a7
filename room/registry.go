package room

import (
	"sync"
	"time"

	"github.com/undercover/server/monitor"
	"github.com/undercover/server/persistence"
	"github.com/undercover/server/security"
	"github.com/undercover/server/state"
	"github.com/undercover/server/timer"
	"github.com/undercover/server/wordbank"
	"go.uber.org/zap"
)

// Registry is a concurrent room_id -> Engine map,
// get-or-create on Attach/Join, and a user_id -> room_id side index so a
// reconnecting or newly-joining player can be pulled out of whatever room
// they were previously in before entering a new one.
type Registry struct {
	mu      sync.RWMutex
	rooms   map[string]*Engine
	byUser  map[string]string

	cfg     state.RuntimeConfig
	db      persistence.Database
	words   *wordbank.Bank
	filter  *security.ContentFilter
	timers  *timer.TimerManager
	metrics *monitor.Monitor
	log     *zap.SugaredLogger

	rateLimitCfg security.RateLimitConfig
}

func NewRegistry(cfg state.RuntimeConfig, db persistence.Database, words *wordbank.Bank, rateLimitCfg security.RateLimitConfig, filterCfg security.WordFilterConfig, timers *timer.TimerManager, metrics *monitor.Monitor, log *zap.SugaredLogger) *Registry {
	return &Registry{
		rooms:        make(map[string]*Engine),
		byUser:       make(map[string]string),
		cfg:          cfg,
		db:           db,
		words:        words,
		filter:       security.NewContentFilter(filterCfg),
		timers:       timers,
		metrics:      metrics,
		log:          log,
		rateLimitCfg: rateLimitCfg,
	}
}

// Get returns the room with id, if one currently exists.
func (r *Registry) Get(id string) (*Engine, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.rooms[id]
	return e, ok
}

// GetOrCreate returns the existing room with id, or starts a new, empty one
// with hostID as its host.
func (r *Registry) GetOrCreate(id, hostID string) *Engine {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.rooms[id]; ok {
		return e
	}
	e := NewEngine(id, hostID, r.cfg, r.db, r.words, security.NewRateLimiter(r.rateLimitCfg), r.filter, r.timers, r.metrics, r.log)
	r.rooms[id] = e
	return e
}

// Delete stops and removes a room. Called by the lifecycle sweep once a
// room becomes eligible for eviction.
func (r *Registry) Delete(id string) {
	r.mu.Lock()
	e, ok := r.rooms[id]
	delete(r.rooms, id)
	r.mu.Unlock()
	if ok {
		e.Stop()
	}
}

// List returns every currently-registered room id.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.rooms))
	for id := range r.rooms {
		ids = append(ids, id)
	}
	return ids
}

// Count reports how many rooms are currently registered.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// SetCurrentRoom records that userID is now attached to roomID, evicting
// them from whichever room they were previously attached to: a player may
// only ever be active in one room at a time.
func (r *Registry) SetCurrentRoom(userID, roomID string) {
	r.mu.Lock()
	prevRoomID, hadPrev := r.byUser[userID]
	r.byUser[userID] = roomID
	var prevEngine *Engine
	if hadPrev && prevRoomID != roomID {
		prevEngine = r.rooms[prevRoomID]
	}
	r.mu.Unlock()

	if prevEngine != nil {
		reply := make(chan state.CommandResult, 1)
		prevEngine.Submit(state.Command{Kind: state.CmdLeave, PlayerID: userID, Reply: reply})
		<-reply
	}
}

// ClearCurrentRoom drops the side-index entry for userID, e.g. on Leave.
func (r *Registry) ClearCurrentRoom(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byUser, userID)
}

// IdleFor reports how long ago a room's command loop last processed a
// command; used by the lifecycle sweep to find idle rooms.
func (e *Engine) IdleFor(now time.Time) time.Duration {
	return now.Sub(e.lastActivityAt)
}

// IsGameOver reports whether the room's current phase is game_over, for the
// lifecycle sweep's eviction check.
func (e *Engine) IsGameOver() bool {
	return e.sm.GetCurrentState().GetID() == "game_over"
}

// PlayerCount reports the number of seated players, for eviction of empty
// rooms.
func (e *Engine) PlayerCount() int {
	return len(e.players)
}

// ConnectedCount reports how many seated players currently have a live
// connection.
func (e *Engine) ConnectedCount() int {
	n := 0
	for _, p := range e.players {
		if p.Connected {
			n++
		}
	}
	return n
}
