// Package livecode runs the per-chat TOTP countdown: one live message
// per chat, edited every second until the code is claimed, expires, or
// is superseded by another action.
package livecode

import (
	"context"
	"sync"
	"time"

	"mailpost/internal/eventbus"
	"mailpost/internal/otp"
	"mailpost/internal/transport"
	logx "mailpost/pkg/logx"
	"mailpost/pkg/tgui"
)

type job struct {
	gen       uint64
	cancel    context.CancelFunc
	ref       transport.MessageRef
	code      string
	windowEnd time.Time
}

// Manager enforces at most one active countdown per chat. Each new job
// bumps the chat's generation; ticks and claims carrying a stale
// generation are dropped.
type Manager struct {
	log     logx.Logger
	adapter transport.Adapter
	bus     eventbus.Bus

	clock func() time.Time
	tick  time.Duration

	mu   sync.Mutex
	jobs map[int64]*job
	gens map[int64]uint64
}

type Option func(*Manager)

// WithClock substitutes the time source, for tests.
func WithClock(fn func() time.Time) Option {
	return func(m *Manager) { m.clock = fn }
}

// WithTickInterval overrides the 1s edit cadence, for tests.
func WithTickInterval(d time.Duration) Option {
	return func(m *Manager) { m.tick = d }
}

func NewManager(adapter transport.Adapter, log logx.Logger, bus eventbus.Bus, opts ...Option) *Manager {
	m := &Manager{
		log:     log,
		adapter: adapter,
		bus:     bus,
		clock:   time.Now,
		tick:    time.Second,
		jobs:    make(map[int64]*job),
		gens:    make(map[int64]uint64),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start validates the secret, supersedes any running countdown for the
// chat, sends the initial rendered message and begins ticking. The
// initial send happens before Start returns; the ticking is async.
//
// Returns otp.ErrInvalidSecret when no code can be derived.
func (m *Manager) Start(ctx context.Context, chatID int64, rawSecret string) error {
	secret := otp.NormalizeSecret(rawSecret)
	now := m.clock()
	code, err := otp.Code(secret, now)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.supersedeLocked(chatID)
	gen := m.gens[chatID]
	m.mu.Unlock()

	remaining := otp.Remaining(now)
	msg := renderActive(code, remaining, gen)
	ref, err := msg.Send(ctx, m.adapter, transport.ChatTarget{ChatID: chatID})
	if err != nil {
		return err
	}

	jctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	j := &job{
		gen:       gen,
		cancel:    cancel,
		ref:       ref,
		code:      code,
		windowEnd: otp.WindowEnd(now),
	}

	m.mu.Lock()
	// A concurrent Start for the same chat may have won the race.
	if m.gens[chatID] != gen {
		m.mu.Unlock()
		cancel()
		return nil
	}
	m.jobs[chatID] = j
	m.mu.Unlock()

	m.publish(eventbus.TypeCodeStarted, chatID)
	go m.run(jctx, chatID, j)
	return nil
}

func (m *Manager) run(ctx context.Context, chatID int64, j *job) {
	t := time.NewTicker(m.tick)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}

		if m.stale(chatID, j.gen) {
			return
		}

		now := m.clock()
		remaining := int(j.windowEnd.Sub(now).Round(time.Second) / time.Second)
		if remaining <= 0 {
			m.finish(ctx, chatID, j, renderExpired(j.code), eventbus.TypeCodeExpired)
			return
		}

		edit := renderActive(j.code, remaining, j.gen)
		if err := edit.Edit(ctx, m.adapter, j.ref); err != nil {
			// The message is gone or no longer editable; this job is done.
			m.log.Warn("countdown edit failed, superseding",
				logx.Int64("chat_id", chatID), logx.Err(err))
			m.remove(chatID, j.gen)
			m.publish(eventbus.TypeCodeSuperseded, chatID)
			return
		}
	}
}

// Claim handles the claim button for the given generation. It reports
// whether an active job matched; the caller acknowledges the button
// press regardless.
func (m *Manager) Claim(ctx context.Context, chatID int64, gen uint64) bool {
	m.mu.Lock()
	j, ok := m.jobs[chatID]
	if !ok || j.gen != gen {
		m.mu.Unlock()
		return false
	}
	delete(m.jobs, chatID)
	m.mu.Unlock()

	j.cancel()
	if err := renderClaimed(j.code).Edit(ctx, m.adapter, j.ref); err != nil {
		m.log.Warn("claimed edit failed", logx.Int64("chat_id", chatID), logx.Err(err))
	}
	m.publish(eventbus.TypeCodeClaimed, chatID)
	return true
}

// Supersede cancels the chat's running countdown, if any, without
// touching its message. Every mailbox action for the chat calls this.
func (m *Manager) Supersede(chatID int64) {
	m.mu.Lock()
	superseded := m.supersedeLocked(chatID)
	m.mu.Unlock()
	if superseded {
		m.publish(eventbus.TypeCodeSuperseded, chatID)
	}
}

func (m *Manager) supersedeLocked(chatID int64) bool {
	// Bump the generation even when no job is registered yet. A Start
	// suspended in its initial send re-checks the generation before
	// registering, so a supersede landing in that window wins and the
	// half-started job is dropped.
	m.gens[chatID]++
	j, ok := m.jobs[chatID]
	if !ok {
		return false
	}
	delete(m.jobs, chatID)
	j.cancel()
	return true
}

// StopAll cancels every running countdown, for shutdown.
func (m *Manager) StopAll() {
	m.mu.Lock()
	for chatID, j := range m.jobs {
		j.cancel()
		delete(m.jobs, chatID)
		m.gens[chatID]++
	}
	m.mu.Unlock()
}

// Active reports whether the chat currently has a running countdown.
func (m *Manager) Active(chatID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.jobs[chatID]
	return ok
}

func (m *Manager) stale(chatID int64, gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[chatID]
	return !ok || j.gen != gen
}

func (m *Manager) finish(ctx context.Context, chatID int64, j *job, msg tgui.Message, evType string) {
	if !m.remove(chatID, j.gen) {
		return
	}
	if err := msg.Edit(ctx, m.adapter, j.ref); err != nil {
		m.log.Warn("countdown final edit failed",
			logx.Int64("chat_id", chatID), logx.Err(err))
	}
	m.publish(evType, chatID)
}

// remove drops the job if it is still the chat's current one.
func (m *Manager) remove(chatID int64, gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[chatID]
	if !ok || j.gen != gen {
		return false
	}
	delete(m.jobs, chatID)
	return true
}

func (m *Manager) publish(typ string, chatID int64) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(eventbus.Event{Type: typ, Time: m.clock(), Data: Event{ChatID: chatID}})
}

// Event is the bus payload for countdown transitions.
type Event struct {
	ChatID int64
}
