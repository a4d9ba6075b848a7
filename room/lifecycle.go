package room

import (
	"time"

	"github.com/undercover/server/monitor"
	"go.uber.org/zap"
)

// LifecycleManager is the heartbeat sweep: on each tick it evicts rooms
// that are empty, have sat idle past max_idle_time, or finished a game and
// sat unattended past round_delay since reaching GameOver.
type LifecycleManager struct {
	registry   *Registry
	interval   time.Duration
	maxIdle    time.Duration
	roundDelay time.Duration
	log        *zap.SugaredLogger
	metrics    *monitor.Monitor
	stop       chan struct{}
}

func NewLifecycleManager(registry *Registry, interval, maxIdle, roundDelay time.Duration, metrics *monitor.Monitor, log *zap.SugaredLogger) *LifecycleManager {
	return &LifecycleManager{
		registry:   registry,
		interval:   interval,
		maxIdle:    maxIdle,
		roundDelay: roundDelay,
		log:        log,
		metrics:    metrics,
		stop:       make(chan struct{}),
	}
}

func (m *LifecycleManager) Start() {
	go m.loop()
}

func (m *LifecycleManager) Stop() {
	close(m.stop)
}

func (m *LifecycleManager) loop() {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.sweep()
		case <-m.stop:
			return
		}
	}
}

func (m *LifecycleManager) sweep() {
	now := time.Now()
	for _, id := range m.registry.List() {
		e, ok := m.registry.Get(id)
		if !ok {
			continue
		}

		switch {
		case e.PlayerCount() == 0:
			m.evict(id, "empty")
		case e.IsGameOver() && e.IdleFor(now) > m.roundDelay:
			m.evict(id, "finished_unattended")
		case !e.IsGameOver() && e.IdleFor(now) > m.maxIdle:
			m.evict(id, "idle")
		}
	}
	if m.metrics != nil {
		m.metrics.SetActiveRooms(m.registry.Count())
	}
}

func (m *LifecycleManager) evict(id, reason string) {
	m.registry.Delete(id)
	if m.metrics != nil {
		m.metrics.IncRoomsEvicted()
	}
	if m.log != nil {
		m.log.Infow("room evicted", "room_id", id, "reason", reason)
	}
}
