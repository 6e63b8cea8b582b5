package router

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// floodGate rate-limits interactions per chat so one spamming user
// cannot starve the worker pool. Idle chat limiters are pruned lazily.
type floodGate struct {
	mu    sync.Mutex
	per   rate.Limit
	burst int
	chats map[int64]*floodEntry
}

type floodEntry struct {
	lim  *rate.Limiter
	seen time.Time
}

const floodIdleTTL = 10 * time.Minute

func newFloodGate(perSec float64, burst int) *floodGate {
	if perSec <= 0 {
		perSec = 1
	}
	if burst <= 0 {
		burst = 3
	}
	return &floodGate{
		per:   rate.Limit(perSec),
		burst: burst,
		chats: map[int64]*floodEntry{},
	}
}

func (g *floodGate) allow(chatID int64) bool {
	now := time.Now()

	g.mu.Lock()
	defer g.mu.Unlock()

	e, ok := g.chats[chatID]
	if !ok {
		e = &floodEntry{lim: rate.NewLimiter(g.per, g.burst)}
		g.chats[chatID] = e
	}
	e.seen = now

	if len(g.chats) > 1024 {
		for id, ent := range g.chats {
			if now.Sub(ent.seen) > floodIdleTTL {
				delete(g.chats, id)
			}
		}
	}
	return e.lim.Allow()
}
