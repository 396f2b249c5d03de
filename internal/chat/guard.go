package chat

import "sync"

// turnGuard serializes turns per conversation entity. A second turn against
// an entity with one in flight is rejected, not queued.
type turnGuard struct {
	mu       sync.Mutex
	inFlight map[string]struct{}
}

func newTurnGuard() *turnGuard {
	return &turnGuard{inFlight: make(map[string]struct{})}
}

// acquire reports whether the entity was free; on true the caller owns the
// turn until release.
func (g *turnGuard) acquire(entityID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, busy := g.inFlight[entityID]; busy {
		return false
	}
	g.inFlight[entityID] = struct{}{}
	return true
}

func (g *turnGuard) release(entityID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.inFlight, entityID)
}
