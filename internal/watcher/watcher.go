// Package watcher drives the mailbox poll loop: list each active
// session's inbox, deliver the fresh messages oldest first, advance the
// dedup cursor and rotate the address when the session asks for it.
package watcher

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"mailpost/internal/eventbus"
	"mailpost/internal/mailbox"
	"mailpost/internal/session"
	"mailpost/internal/transport"
	logx "mailpost/pkg/logx"
)

// Lister is the provider surface the poller needs.
type Lister interface {
	List(ctx context.Context, addr string) ([]mailbox.Message, error)
}

// Notifier is the outbound pipeline surface the poller needs.
type Notifier interface {
	Notify(ctx context.Context, n transport.Notification) error
}

// Superseder cancels a chat's live countdown, if one is running.
type Superseder interface {
	Supersede(chatID int64)
}

type Poller struct {
	log      logx.Logger
	client   Lister
	gen      *mailbox.Generator
	sessions *session.Registry
	notifier Notifier
	codes    Superseder
	bus      eventbus.Bus

	mu           sync.Mutex
	interval     time.Duration
	previewLimit int
}

func NewPoller(
	client Lister,
	gen *mailbox.Generator,
	sessions *session.Registry,
	notifier Notifier,
	codes Superseder,
	log logx.Logger,
	bus eventbus.Bus,
	interval time.Duration,
	previewLimit int,
) *Poller {
	if interval <= 0 {
		interval = mailbox.DefaultPollInterval
	}
	if previewLimit <= 0 {
		previewLimit = mailbox.DefaultPreviewLimit
	}
	return &Poller{
		log:          log,
		client:       client,
		gen:          gen,
		sessions:     sessions,
		notifier:     notifier,
		codes:        codes,
		bus:          bus,
		interval:     interval,
		previewLimit: previewLimit,
	}
}

// SetPreviewLimit applies a new body-preview bound live.
func (p *Poller) SetPreviewLimit(n int) {
	if n <= 0 {
		n = mailbox.DefaultPreviewLimit
	}
	p.mu.Lock()
	p.previewLimit = n
	p.mu.Unlock()
}

// Run blocks driving the poll loop until ctx is canceled. The cadence
// is fixed at Run time; the caller restarts Run to change it.
func (p *Poller) Run(ctx context.Context) error {
	p.mu.Lock()
	interval := p.interval
	p.mu.Unlock()

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	_, err := c.AddFunc("@every "+interval.String(), func() {
		p.pollAll(ctx)
	})
	if err != nil {
		return err
	}
	c.Start()
	<-ctx.Done()
	stopCtx := c.Stop()
	<-stopCtx.Done()
	return nil
}

// SetInterval records a new cadence for the next Run.
func (p *Poller) SetInterval(d time.Duration) {
	if d <= 0 {
		d = mailbox.DefaultPollInterval
	}
	p.mu.Lock()
	p.interval = d
	p.mu.Unlock()
}

// Interval returns the current poll cadence.
func (p *Poller) Interval() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.interval
}

func (p *Poller) pollAll(ctx context.Context) {
	for _, sess := range p.sessions.Active() {
		select {
		case <-ctx.Done():
			return
		default:
		}
		p.pollOne(ctx, sess)
	}
}

// pollOne runs one poll cycle for one session. Provider failures mean
// no delta this cycle; the session is retried next tick.
func (p *Poller) pollOne(ctx context.Context, sess session.Session) {
	listing, err := p.client.List(ctx, sess.ActiveAddress)
	if err != nil {
		p.log.Warn("inbox fetch failed",
			logx.Int64("chat_id", sess.ChatID),
			logx.String("address", sess.ActiveAddress),
			logx.Err(err),
		)
		return
	}

	fresh := deltaAfter(listing, sess.LastSeenMailID)
	if len(fresh) == 0 {
		return
	}

	// Advance the cursor once per cycle, before dispatch, so a partial
	// dispatch failure cannot replay the whole delta next tick. The
	// advance is rejected when the chat switched addresses mid-cycle,
	// in which case these messages belong to a retired mailbox.
	if !p.sessions.AdvanceCursor(sess.ChatID, sess.ActiveAddress, listing[0].ID) {
		if cur := p.sessions.Get(sess.ChatID); cur.ActiveAddress == sess.ActiveAddress {
			// Same address, so the listing head is at or below the
			// cursor: the provider handed back ids we already passed.
			p.log.Warn("inbox listing regressed below cursor",
				logx.Int64("chat_id", sess.ChatID),
				logx.String("address", sess.ActiveAddress),
				logx.Uint64("head_id", listing[0].ID),
				logx.Uint64("cursor", sess.LastSeenMailID),
				logx.Err(mailbox.ErrUpstream),
			)
		}
		return
	}

	p.mu.Lock()
	previewLimit := p.previewLimit
	p.mu.Unlock()

	for _, m := range fresh {
		msg := renderMail(m, previewLimit)
		err := p.notifier.Notify(ctx, transport.Notification{
			Target:  transport.ChatTarget{ChatID: sess.ChatID},
			Text:    msg.Text,
			Options: msg.Opt,
		})
		if err != nil {
			p.log.Warn("mail dispatch failed",
				logx.Int64("chat_id", sess.ChatID),
				logx.Uint64("mail_id", m.ID),
				logx.Err(err),
			)
			continue
		}
		if p.bus != nil {
			p.bus.Publish(eventbus.Event{
				Type: eventbus.TypeMailDelivered,
				Time: time.Now(),
				Data: MailEvent{ChatID: sess.ChatID, MailID: m.ID},
			})
		}
	}

	if sess.AutoRotate {
		p.rotate(ctx, sess)
	}
}

// rotate retires the session's address after new mail arrived. The
// countdown job, if any, goes first so a stale 2FA message cannot
// outlive its mailbox.
func (p *Poller) rotate(ctx context.Context, sess session.Session) {
	if p.codes != nil {
		p.codes.Supersede(sess.ChatID)
	}

	var (
		addr string
		err  error
	)
	if sess.UsernamePrefix != "" {
		addr, err = p.gen.FromPrefix(sess.UsernamePrefix)
	} else {
		addr, err = p.gen.Random()
	}
	if err != nil {
		p.log.Error("address rotation failed",
			logx.Int64("chat_id", sess.ChatID), logx.Err(err))
		return
	}

	p.sessions.SetAddress(sess.ChatID, addr)

	msg := renderRotation(addr)
	if err := p.notifier.Notify(ctx, transport.Notification{
		Target:  transport.ChatTarget{ChatID: sess.ChatID},
		Text:    msg.Text,
		Options: msg.Opt,
	}); err != nil {
		p.log.Warn("rotation notice dispatch failed",
			logx.Int64("chat_id", sess.ChatID), logx.Err(err))
	}

	p.log.Info("mailbox rotated",
		logx.Int64("chat_id", sess.ChatID),
		logx.String("address", addr),
	)
	if p.bus != nil {
		p.bus.Publish(eventbus.Event{
			Type: eventbus.TypeMailboxRotated,
			Time: time.Now(),
			Data: RotationEvent{ChatID: sess.ChatID, Address: addr},
		})
	}
}

// MailEvent is the bus payload for a delivered mail.
type MailEvent struct {
	ChatID int64
	MailID uint64
}

// RotationEvent is the bus payload for an address rotation.
type RotationEvent struct {
	ChatID  int64
	Address string
}
